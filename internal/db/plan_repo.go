package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"plansync/internal/types"
)

// PlanRepository provides data access for the plans and user_plans tables.
type PlanRepository struct {
	db DBTX
}

// NewPlanRepository creates a new PlanRepository backed by the given
// database connection (pool or transaction).
func NewPlanRepository(db DBTX) *PlanRepository {
	return &PlanRepository{db: db}
}

// GetPlan retrieves a plan definition by ID.
func (r *PlanRepository) GetPlan(ctx context.Context, id string) (*types.Plan, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, name, tier, max_properties, duration_days FROM plans WHERE id = $1`,
		id,
	)

	var p types.Plan
	err := row.Scan(&p.ID, &p.Name, &p.Tier, &p.MaxProperties, &p.DurationDays)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "querying plan", err)
	}
	return &p, nil
}

// GetAssignment returns the user's current plan assignment, or nil when the
// user has no plan. An expired assignment is still returned; expiry is a
// status-computation concern, not a storage one.
func (r *PlanRepository) GetAssignment(ctx context.Context, userID string) (*types.PlanAssignment, error) {
	row := r.db.QueryRow(ctx,
		`SELECT up.user_id, up.start_date, up.end_date,
		        p.id, p.name, p.tier, p.max_properties, p.duration_days
		 FROM user_plans up
		 JOIN plans p ON p.id = up.plan_id
		 WHERE up.user_id = $1`,
		userID,
	)

	var a types.PlanAssignment
	err := row.Scan(
		&a.UserID, &a.StartDate, &a.EndDate,
		&a.Plan.ID, &a.Plan.Name, &a.Plan.Tier, &a.Plan.MaxProperties, &a.Plan.DurationDays,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "querying plan assignment", err)
	}
	return &a, nil
}

// Assign binds a user to a plan starting now. An existing assignment is
// replaced; the end date derives from the plan's duration (NULL for
// open-ended plans with duration 0).
func (r *PlanRepository) Assign(ctx context.Context, userID, planID string) error {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO user_plans (user_id, plan_id, start_date, end_date)
		 SELECT $1, p.id, now(),
		        CASE WHEN p.duration_days > 0 THEN now() + make_interval(days => p.duration_days) END
		 FROM plans p WHERE p.id = $2
		 ON CONFLICT (user_id) DO UPDATE SET
		        plan_id = EXCLUDED.plan_id,
		        start_date = EXCLUDED.start_date,
		        end_date = EXCLUDED.end_date`,
		userID, planID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "assigning plan", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", nil)
	}
	return nil
}

// Remove deletes a user's plan assignment. Removing a user with no
// assignment is not an error.
func (r *PlanRepository) Remove(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM user_plans WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "removing plan assignment", err)
	}
	return nil
}
