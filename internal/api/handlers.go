package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"plansync/internal/events"
	"plansync/internal/metrics"
	"plansync/internal/types"
)

// requireActor pulls the authenticated actor from the context. The auth
// middleware guarantees it on protected paths; a missing actor means a
// wiring mistake, reported as 401 rather than a panic.
func requireActor(w http.ResponseWriter, r *http.Request) (types.Actor, bool) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return types.Actor{}, false
	}
	return actor, true
}

// HandleLimitStats returns the caller's current plan/usage snapshot.
func (s *Server) HandleLimitStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	snap, err := s.Status.Snapshot(r.Context(), actor.ID)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, snap)
}

// toggleResponse is the body of a successful toggle-active call. The
// eventType tag lets SDK clients dispatch the response to their event bus.
type toggleResponse struct {
	Message   string                   `json:"message"`
	Property  *types.Property          `json:"property"`
	LimitInfo *types.PlanLimitSnapshot `json:"limitInfo,omitempty"`
	EventType string                   `json:"eventType"`
}

// HandleToggleActive flips a property's active flag. Activation counts
// against the plan limit; deactivation is always allowed.
func (s *Server) HandleToggleActive(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	propertyID := chi.URLParam(r, "id")

	property, err := s.Properties.GetByID(r.Context(), propertyID)
	if err != nil {
		Error(w, r, err)
		return
	}
	// Owners manage their own listings; admins manage any. Others see the
	// same 404 as a nonexistent property.
	if property.OwnerID != actor.ID && !actor.IsAdmin() {
		Error(w, r, types.NewAppError(types.ErrCodeNotFoundProperty, "property not found", nil))
		return
	}

	activating := !property.Active
	if activating {
		if err := s.Status.CheckLimit(r.Context(), property.OwnerID, 1); err != nil {
			metrics.LimitChecksTotal.WithLabelValues("blocked").Inc()
			Error(w, r, err)
			return
		}
		metrics.LimitChecksTotal.WithLabelValues("allowed").Inc()
	}

	updated, err := s.Properties.SetActive(r.Context(), propertyID, activating)
	if err != nil {
		Error(w, r, err)
		return
	}

	direction := "deactivated"
	if activating {
		direction = "activated"
	}
	metrics.PropertyTogglesTotal.WithLabelValues(direction).Inc()

	snap, err := s.Status.Snapshot(r.Context(), property.OwnerID)
	if err != nil {
		// The toggle succeeded; return it with no limitInfo rather than fail.
		s.Logger.Warn("snapshot after toggle failed", "error", err, "user_id", property.OwnerID)
		snap = nil
	}

	JSON(w, r, http.StatusOK, toggleResponse{
		Message:   "property " + direction,
		Property:  updated,
		LimitInfo: snap,
		EventType: string(events.PropertyToggled),
	})
}

// syncCountResponse is the body of a self-service count sync.
type syncCountResponse struct {
	Message    string                   `json:"message"`
	Stats      *types.PlanLimitSnapshot `json:"stats"`
	SyncResult *types.SyncDelta         `json:"syncResult"`
	EventType  string                   `json:"eventType"`
}

// HandleSyncCount reconciles the caller's own stored counter and returns a
// fresh snapshot so clients can patch their cache from the event.
func (s *Server) HandleSyncCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	delta, err := s.Reconciler.FixUser(r.Context(), actor.ID)
	if err != nil {
		Error(w, r, err)
		return
	}
	metrics.CountFixesTotal.WithLabelValues("self_service").Inc()

	snap, err := s.Status.Snapshot(r.Context(), actor.ID)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, syncCountResponse{
		Message:    "property count synchronized",
		Stats:      snap,
		SyncResult: delta,
		EventType:  string(events.PropertyCountSynced),
	})
}

// planStatusResponse is the richer status from /users/plan-status: the
// snapshot plus the plan tier.
type planStatusResponse struct {
	types.PlanLimitSnapshot
	PlanTier types.PlanTier `json:"planTier,omitempty"`
}

// HandlePlanStatus returns the caller's snapshot together with plan tier
// detail for dashboard surfaces.
func (s *Server) HandlePlanStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	snap, err := s.Status.Snapshot(r.Context(), actor.ID)
	if err != nil {
		Error(w, r, err)
		return
	}

	resp := planStatusResponse{PlanLimitSnapshot: *snap}
	assignment, err := s.Plans.GetAssignment(r.Context(), actor.ID)
	if err != nil {
		Error(w, r, err)
		return
	}
	if assignment != nil {
		resp.PlanTier = assignment.Plan.Tier
	}
	JSON(w, r, http.StatusOK, resp)
}

// HandlePropertyReport returns the full reconciliation report.
func (s *Server) HandlePropertyReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.Reconciler.Report(r.Context())
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, report)
}

// syncAllResponse is the body of an admin sweep. Success with a non-empty
// errors list means the sweep ran best-effort and some users failed.
type syncAllResponse struct {
	Success   bool                  `json:"success"`
	Processed int                   `json:"processed"`
	Errors    []types.SyncUserError `json:"errors"`
}

// HandleSyncAll sweeps every inconsistent user.
func (s *Server) HandleSyncAll(w http.ResponseWriter, r *http.Request) {
	result, err := s.Reconciler.SyncAll(r.Context())
	if err != nil {
		Error(w, r, err)
		return
	}
	metrics.CountFixesTotal.WithLabelValues("sweep").Add(float64(result.Processed))

	JSON(w, r, http.StatusOK, syncAllResponse{
		Success:   true,
		Processed: result.Processed,
		Errors:    result.Errors,
	})
}

// fixUserResponse is the body of an admin single-user fix.
type fixUserResponse struct {
	Success        bool             `json:"success"`
	NewStoredCount int              `json:"newStoredCount"`
	SyncResult     *types.SyncDelta `json:"syncResult,omitempty"`
}

// HandleFixUserCount repairs one user's stored counter.
func (s *Server) HandleFixUserCount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	delta, err := s.Reconciler.FixUser(r.Context(), userID)
	if err != nil {
		Error(w, r, err)
		return
	}
	metrics.CountFixesTotal.WithLabelValues("admin").Inc()

	JSON(w, r, http.StatusOK, fixUserResponse{
		Success:        true,
		NewStoredCount: delta.NewCount,
		SyncResult:     delta,
	})
}

type assignPlanRequest struct {
	PlanID string `json:"planId"`
}

// HandleAssignPlan assigns a plan to a user. The user's next status fetch
// reflects the new limits; clients invalidate their cache on the response.
func (s *Server) HandleAssignPlan(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var req assignPlanRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	if req.PlanID == "" {
		Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "planId is required", nil))
		return
	}

	if err := s.Plans.Assign(r.Context(), userID, req.PlanID); err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, map[string]string{"message": "plan assigned"})
}

// HandleRemovePlan removes a user's plan assignment. Idempotent.
func (s *Server) HandleRemovePlan(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	if err := s.Plans.Remove(r.Context(), userID); err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, map[string]string{"message": "plan removed"})
}
