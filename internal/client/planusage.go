package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"plansync/internal/events"
	"plansync/internal/types"
)

// TokenSource supplies the bearer token for each request. Implementations
// live with the auth collaborator; StaticTokenSource covers tests and CLI use.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns the same token on every call.
type StaticTokenSource string

func (s StaticTokenSource) Token(context.Context) (string, error) { return string(s), nil }

// AuthFailureHandler is invoked once per 401 response, before the error is
// returned to the caller. Session teardown lives behind this hook; the SDK
// only raises the signal.
type AuthFailureHandler func(err *types.AppError)

// Config holds the settings for constructing a PlanUsageClient.
type Config struct {
	BaseURL     string
	HTTPTimeout time.Duration
	MaxRetries  int
	Tokens      TokenSource
	Bus         *events.Bus // optional; nil disables event forwarding
	OnAuthFail  AuthFailureHandler
	Logger      *slog.Logger
}

// PlanUsageClient is the typed client for the plan/limit endpoints. Mutating
// responses that carry an eventType tag are forwarded whole to the event bus
// as a side effect of the successful call; the client never interprets them.
type PlanUsageClient struct {
	base       *BaseClient
	baseURL    string
	tokens     TokenSource
	bus        *events.Bus
	onAuthFail AuthFailureHandler
	logger     *slog.Logger
}

// New creates a PlanUsageClient from cfg.
func New(cfg Config, opts ...BaseClientOption) *PlanUsageClient {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	policy := DefaultRetryPolicy()
	if cfg.MaxRetries > 0 {
		policy.MaxRetries = cfg.MaxRetries
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		&http.Client{Timeout: timeout},
		"plansync-api",
		policy,
		"plansync/1.0",
		opts...,
	)

	return &PlanUsageClient{
		base:       base,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		tokens:     cfg.Tokens,
		bus:        cfg.Bus,
		onAuthFail: cfg.OnAuthFail,
		logger:     logger,
	}
}

// ToggleResult is the response of a toggle-active call.
type ToggleResult struct {
	Message   string                   `json:"message"`
	Property  *types.Property          `json:"property"`
	LimitInfo *types.PlanLimitSnapshot `json:"limitInfo,omitempty"`
	EventType string                   `json:"eventType,omitempty"`
}

// SyncCountResult is the response of a self-service count sync.
type SyncCountResult struct {
	Message    string                   `json:"message"`
	Stats      *types.PlanLimitSnapshot `json:"stats"`
	SyncResult *types.SyncDelta         `json:"syncResult"`
	EventType  string                   `json:"eventType,omitempty"`
}

// PlanStatusResult is the richer per-user status from /users/plan-status.
type PlanStatusResult struct {
	types.PlanLimitSnapshot
	PlanTier types.PlanTier `json:"planTier,omitempty"`
}

// FixUserResult is the response of an admin single-user fix.
type FixUserResult struct {
	Success        bool   `json:"success"`
	NewStoredCount int    `json:"newStoredCount"`
	Error          string `json:"error,omitempty"`
}

type syncAllResponse struct {
	Success   bool                  `json:"success"`
	Processed int                   `json:"processed"`
	Errors    []types.SyncUserError `json:"errors"`
}

// FetchSnapshot returns the caller's current plan/usage snapshot.
// Malformed payloads are rejected here rather than propagated into the gate.
func (c *PlanUsageClient) FetchSnapshot(ctx context.Context) (*types.PlanLimitSnapshot, error) {
	var snap types.PlanLimitSnapshot
	if err := c.do(ctx, http.MethodGet, "/properties/limit-stats", nil, &snap); err != nil {
		return nil, err
	}
	if err := types.ValidateSnapshot(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ToggleActive flips a property's active flag. A successful response carrying
// an eventType is forwarded to the bus with the embedded snapshot.
func (c *PlanUsageClient) ToggleActive(ctx context.Context, propertyID string) (*ToggleResult, error) {
	var out ToggleResult
	path := fmt.Sprintf("/properties/%s/toggle-active", propertyID)
	if err := c.do(ctx, http.MethodPut, path, nil, &out); err != nil {
		return nil, err
	}
	if out.LimitInfo != nil {
		if err := types.ValidateSnapshot(out.LimitInfo); err != nil {
			return nil, err
		}
	}
	c.forward(out.EventType, events.Detail{PropertyID: propertyID, Snapshot: out.LimitInfo})
	return &out, nil
}

// SyncCount reconciles the caller's own stored counter against the live count.
func (c *PlanUsageClient) SyncCount(ctx context.Context) (*SyncCountResult, error) {
	var out SyncCountResult
	if err := c.do(ctx, http.MethodPost, "/properties/sync-count", nil, &out); err != nil {
		return nil, err
	}
	if out.Stats != nil {
		if err := types.ValidateSnapshot(out.Stats); err != nil {
			return nil, err
		}
	}
	c.forward(out.EventType, events.Detail{Snapshot: out.Stats})
	return &out, nil
}

// PlanStatus returns the richer plan status for the caller.
func (c *PlanUsageClient) PlanStatus(ctx context.Context) (*PlanStatusResult, error) {
	var out PlanStatusResult
	if err := c.do(ctx, http.MethodGet, "/users/plan-status", nil, &out); err != nil {
		return nil, err
	}
	if err := types.ValidateSnapshot(&out.PlanLimitSnapshot); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchReport returns the admin reconciliation report.
func (c *PlanUsageClient) FetchReport(ctx context.Context) (*types.ReconciliationReport, error) {
	var out types.ReconciliationReport
	if err := c.do(ctx, http.MethodGet, "/admin/property-report", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FixUser repairs one user's stored counter.
func (c *PlanUsageClient) FixUser(ctx context.Context, userID string) (*FixUserResult, error) {
	var out FixUserResult
	path := fmt.Sprintf("/admin/fix-user-count/%s", userID)
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SyncAll sweeps every inconsistent user. A response with per-user errors is
// still a success; the caller inspects Errors.
func (c *PlanUsageClient) SyncAll(ctx context.Context) (*types.SyncAllResult, error) {
	var out syncAllResponse
	if err := c.do(ctx, http.MethodPost, "/admin/sync-property-counts", nil, &out); err != nil {
		return nil, err
	}
	return &types.SyncAllResult{Processed: out.Processed, Errors: out.Errors}, nil
}

// AssignPlan assigns a plan to a user (admin).
func (c *PlanUsageClient) AssignPlan(ctx context.Context, userID, planID string) error {
	body := map[string]string{"planId": planID}
	path := fmt.Sprintf("/plans/assign/%s", userID)
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// RemovePlan removes a user's plan assignment (admin).
func (c *PlanUsageClient) RemovePlan(ctx context.Context, userID string) error {
	path := fmt.Sprintf("/plans/remove/%s", userID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// forward publishes a response's event tag to the bus. The kind is passed
// through uninterpreted; the bus drops kinds it does not know.
func (c *PlanUsageClient) forward(eventType string, detail events.Detail) {
	if c.bus == nil || eventType == "" {
		return
	}
	c.bus.Publish(events.Kind(eventType), detail)
}

// do performs one authenticated JSON round trip through the BaseClient and
// decodes a 2xx body into out (when non-nil).
func (c *PlanUsageClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "encoding request body", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "building request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeAuthTokenMissing, "resolving auth token", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return c.authFailure(resp)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeValidationMalformed, "decoding response body", err)
	}
	return nil
}

// authFailure maps a 401 to the distinguished auth error and raises the
// global auth-failure signal exactly once per response.
func (c *PlanUsageClient) authFailure(resp *http.Response) error {
	msg := serverMessage(resp)
	appErr := types.NewAppError(types.ErrCodeAuthTokenInvalid, msg, nil)
	c.logger.Warn("authentication failure", "status", resp.StatusCode, "message", msg)
	if c.onAuthFail != nil {
		c.onAuthFail(appErr)
	}
	return appErr
}

// statusError maps a non-2xx, non-401 response to an AppError carrying the
// server's message when one is present.
func (c *PlanUsageClient) statusError(resp *http.Response) error {
	msg := serverMessage(resp)

	code := types.ErrCodeUpstreamUnavailable
	switch {
	case resp.StatusCode == http.StatusForbidden:
		code = types.ErrCodePermissionAdminOnly
	case resp.StatusCode == http.StatusNotFound:
		code = types.ErrCodeNotFoundUser
	case resp.StatusCode == http.StatusConflict:
		code = types.ErrCodeConflictStillInconsistent
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		code = types.ErrCodeValidationMalformed
	}
	return types.NewAppError(code, msg, nil)
}

// serverMessage extracts the server-supplied error message from a response
// body, falling back to "HTTP <status>".
func serverMessage(resp *http.Response) string {
	fallback := fmt.Sprintf("HTTP %d", resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil || len(data) == 0 {
		return fallback
	}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil {
		if envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}

	// Some proxies return a bare string body.
	var bare struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &bare); err == nil && bare.Error != "" {
		return bare.Error
	}
	return fallback
}
