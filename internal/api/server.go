// Package api provides the HTTP surface of the plansync service: a chi
// router with the cross-cutting middleware chain (recovery, request IDs,
// logging, metrics, auth, compression) and the plan/limit endpoint handlers.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzhttp"

	"plansync/internal/config"
	"plansync/internal/types"
)

// StatusService computes plan/usage snapshots and enforces limits.
type StatusService interface {
	Snapshot(ctx context.Context, userID string) (*types.PlanLimitSnapshot, error)
	CheckLimit(ctx context.Context, userID string, n int) error
}

// ReconcileService is the reconciler slice the handlers need.
type ReconcileService interface {
	Report(ctx context.Context) (*types.ReconciliationReport, error)
	FixUser(ctx context.Context, userID string) (*types.SyncDelta, error)
	SyncAll(ctx context.Context) (*types.SyncAllResult, error)
}

// PropertyStore is the property repository slice the handlers need.
type PropertyStore interface {
	GetByID(ctx context.Context, id string) (*types.Property, error)
	SetActive(ctx context.Context, id string, active bool) (*types.Property, error)
}

// PlanStore covers plan lookups and admin plan mutation.
type PlanStore interface {
	GetAssignment(ctx context.Context, userID string) (*types.PlanAssignment, error)
	Assign(ctx context.Context, userID, planID string) error
	Remove(ctx context.Context, userID string) error
}

// Authenticator resolves a bearer token to an Actor. Implementations live
// with the auth collaborator; this package only consumes the result.
type Authenticator interface {
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// Server bundles the dependencies of the HTTP API and owns the router.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Status        StatusService
	Reconciler    ReconcileService
	Properties    PropertyStore
	Plans         PlanStore
	Authenticator Authenticator

	router *chi.Mux
}

// NewServer constructs a Server; the caller mounts routes afterwards so tests
// can customize registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the router wrapped with response compression.
func (s *Server) Handler() http.Handler {
	return gzhttp.GzipHandler(s.router)
}

// Router returns the underlying chi.Mux for route registration and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
