package billing

import (
	"context"

	"plansync/internal/types"
)

// AssignmentLookup provides the minimal plan-assignment data needed for
// status computation. This is a focused interface to avoid depending on the
// full plan repository.
type AssignmentLookup interface {
	// GetAssignment returns the user's current plan assignment, or nil if
	// the user has no plan.
	GetAssignment(ctx context.Context, userID string) (*types.PlanAssignment, error)
}

// UsageDB provides direct database access for the usage queries that bypass
// repository abstractions.
type UsageDB interface {
	// CountActive performs the Direct Count query:
	//   SELECT COUNT(*) FROM properties
	//   WHERE owner_id = $1 AND active AND deleted_at IS NULL
	CountActive(ctx context.Context, userID string) (int, error)
}

// StatusService computes PlanLimitSnapshots and enforces plan limits.
// The Direct Count against the properties table is the source of truth;
// the denormalized stored counter is only used by the reconciler.
type StatusService struct {
	assignments AssignmentLookup
	usageDB     UsageDB
	registry    PlanRegistry
	clock       types.Clock
}

// NewStatusService creates a StatusService. A nil clock defaults to real time.
func NewStatusService(
	assignments AssignmentLookup,
	usageDB UsageDB,
	registry PlanRegistry,
	clock types.Clock,
) *StatusService {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &StatusService{
		assignments: assignments,
		usageDB:     usageDB,
		registry:    registry,
		clock:       clock,
	}
}

// Snapshot builds the user's current PlanLimitSnapshot:
//  1. Fetch the plan assignment (nil means no plan).
//  2. Direct Count of active properties.
//  3. Derive all dependent fields via types.ComputeSnapshot.
//
// When the assignment's plan carries no explicit limit, the PlanRegistry
// supplies the authoritative value for its tier.
func (s *StatusService) Snapshot(ctx context.Context, userID string) (*types.PlanLimitSnapshot, error) {
	assignment, err := s.assignments.GetAssignment(ctx, userID)
	if err != nil {
		return nil, err
	}

	usage, err := s.usageDB.CountActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	if assignment != nil && assignment.Plan.MaxProperties == 0 && assignment.Plan.Tier != types.PlanUnlimited {
		assignment.Plan.MaxProperties = s.registry.GetLimits(assignment.Plan.Tier).MaxProperties
	}

	snap := types.ComputeSnapshot(assignment, usage, s.clock.Now())
	return &snap, nil
}

// CheckLimit verifies whether the user can activate n additional properties
// without exceeding the plan limit. Returns nil if allowed, or an AppError
// with a limit code otherwise.
//
// Admin users must be short-circuited by the caller; this method assumes a
// broker identity.
func (s *StatusService) CheckLimit(ctx context.Context, userID string, n int) error {
	snap, err := s.Snapshot(ctx, userID)
	if err != nil {
		return err
	}

	switch {
	case snap.PlanExpired:
		return types.NewAppError(types.ErrCodeLimitExpired, "plan has expired", nil)
	case !snap.IsActive:
		return types.NewAppError(types.ErrCodeLimitNoPlan, "no plan assigned", nil)
	case snap.IsUnlimited:
		return nil
	case snap.CurrentUsage+n > snap.MaxProperties:
		return types.NewAppErrorWithDetails(
			types.ErrCodeLimitProperties,
			"property limit exceeded for current plan",
			nil,
			map[string]any{
				"current": snap.CurrentUsage,
				"limit":   snap.MaxProperties,
				"plan":    derefPlanName(snap.PlanName),
			},
		)
	default:
		return nil
	}
}

func derefPlanName(name *string) string {
	if name == nil {
		return ""
	}
	return *name
}
