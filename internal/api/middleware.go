package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"plansync/internal/metrics"
	"plansync/internal/types"
)

// authPublicPaths lists URL paths exempt from authentication.
var authPublicPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// responseCapture wraps an http.ResponseWriter to capture the status code
// written by downstream handlers, for logging and metrics.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rc *responseCapture) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	return rc.ResponseWriter.Write(b)
}

func (rc *responseCapture) Unwrap() http.ResponseWriter {
	return rc.ResponseWriter
}

// Recoverer catches panics in the handler chain, logs the stack trace, and
// writes a standardized 500 response. Must be the outermost middleware.
func (s *Server) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				s.Logger.Error("panic recovered",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("panic", fmt.Sprintf("%v", rvr)),
					slog.String("stack", string(debug.Stack())),
				)
				Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "an unexpected error occurred", nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RequestIDMiddleware generates or propagates a request correlation ID. An
// incoming X-Request-Id is reused; otherwise a random one is generated. The
// ID lands in the context and the response header.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := types.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger logs request metadata (method, path, status, duration) after
// the handler chain completes.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rc := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rc, r)

			logger.Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rc.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", types.GetRequestID(r.Context())),
			)
		})
	}
}

// MetricsMiddleware records Prometheus request metrics. The chi route pattern
// is used as the path label to keep cardinality bounded.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		rc := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rc, r)

		path := routePattern(r)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rc.statusCode)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// AuthMiddleware resolves the bearer token to an Actor and injects it into
// the request context. Public paths pass through. A nil Authenticator (tests)
// also passes through.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil || authPublicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authorization header is required", nil))
			return
		}
		token := extractBearerToken(authHeader)
		if token == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Bearer token is required", nil))
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err != nil {
			Error(w, r, err)
			return
		}
		if actor == nil {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid authentication token", nil))
			return
		}

		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), *actor)))
	})
}

// RequireAdmin rejects non-admin actors with 403. Must run after
// AuthMiddleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok || !actor.IsAdmin() {
			Error(w, r, types.NewAppError(types.ErrCodePermissionAdminOnly, "admin access required", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractBearerToken parses "Bearer <token>" (case-insensitive scheme per
// RFC 7235). Returns empty string on an invalid format.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// TokenVerifier resolves non-admin bearer tokens to user actors. The real
// implementation belongs to the auth collaborator.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*types.Actor, error)
}

// BearerAuthenticator checks tokens against the configured bcrypt admin
// token hash first, then delegates to the user token verifier.
type BearerAuthenticator struct {
	adminHash []byte
	users     TokenVerifier
}

func NewBearerAuthenticator(adminTokenHash string, users TokenVerifier) *BearerAuthenticator {
	return &BearerAuthenticator{adminHash: []byte(adminTokenHash), users: users}
}

func (a *BearerAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	if len(a.adminHash) > 0 {
		if err := bcrypt.CompareHashAndPassword(a.adminHash, []byte(token)); err == nil {
			return &types.Actor{ID: "admin", Type: types.ActorTypeAdmin}, nil
		}
	}
	if a.users == nil {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid authentication token", nil)
	}
	return a.users.Verify(ctx, token)
}

var _ Authenticator = (*BearerAuthenticator)(nil)
