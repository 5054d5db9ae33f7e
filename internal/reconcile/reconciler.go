// Package reconcile detects and repairs drift between users' stored property
// counters and the live count of active listings. The stored counter is
// denormalized and mutated from multiple code paths, so it can diverge;
// reports compare it against a direct count, FixUser repairs one user inside
// a transaction, and SyncAll sweeps every inconsistent user best-effort.
package reconcile

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"plansync/internal/db"
	"plansync/internal/types"
)

// sweepConcurrency bounds parallel per-user fixes during SyncAll.
const sweepConcurrency = 4

// UserStore is the user repository slice the reconciler needs.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
	ListBrokers(ctx context.Context) ([]types.User, error)
	UpdateStoredCount(ctx context.Context, userID string, count int) error
}

// PropertyStore supplies live property counts.
type PropertyStore interface {
	CountActive(ctx context.Context, ownerID string) (int, error)
	CountTotal(ctx context.Context, ownerID string) (int, error)
}

// PlanStore supplies plan assignments for report rows.
type PlanStore interface {
	GetAssignment(ctx context.Context, userID string) (*types.PlanAssignment, error)
}

// Stores bundles the repositories the reconciler reads and writes.
type Stores struct {
	Users      UserStore
	Properties PropertyStore
	Plans      PlanStore
}

// TxRunner runs a function inside a database transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error
}

// DriftMetrics receives reconciliation observability signals. Implementations
// must not fail the reconciliation on publish errors.
type DriftMetrics interface {
	RecordDrift(ctx context.Context, inconsistencies, totalDrift int)
	RecordSweep(ctx context.Context, processed, failed int)
}

// NoopMetrics discards all metrics. Used when no metrics namespace is
// configured and in tests.
type NoopMetrics struct{}

func (NoopMetrics) RecordDrift(context.Context, int, int) {}
func (NoopMetrics) RecordSweep(context.Context, int, int) {}

var _ DriftMetrics = NoopMetrics{}

// Reconciler compares stored counters against live counts and repairs them.
type Reconciler struct {
	stores  Stores
	tx      TxRunner
	scoped  func(tx db.DBTX) Stores
	metrics DriftMetrics
	clock   types.Clock
	logger  *slog.Logger
}

// Config holds the collaborators for constructing a Reconciler. Scoped builds
// transaction-bound stores for FixUser; it receives the open transaction.
type Config struct {
	Stores  Stores
	Tx      TxRunner
	Scoped  func(tx db.DBTX) Stores
	Metrics DriftMetrics
	Clock   types.Clock
	Logger  *slog.Logger
}

func New(cfg Config) *Reconciler {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		stores:  cfg.Stores,
		tx:      cfg.Tx,
		scoped:  cfg.Scoped,
		metrics: metrics,
		clock:   clock,
		logger:  logger.With("component", "reconciler"),
	}
}

// Report builds the full reconciliation report: one row per broker comparing
// the stored counter with a direct count of active properties. The report
// reflects counts at generation time and can go stale before a fix runs.
func (r *Reconciler) Report(ctx context.Context) (*types.ReconciliationReport, error) {
	brokers, err := r.stores.Users.ListBrokers(ctx)
	if err != nil {
		return nil, err
	}

	report := &types.ReconciliationReport{
		TotalUsers:  len(brokers),
		Users:       make([]types.UserReport, 0, len(brokers)),
		GeneratedAt: r.clock.Now(),
	}

	totalDrift := 0
	for _, u := range brokers {
		row, err := r.reportRow(ctx, u)
		if err != nil {
			return nil, err
		}
		if row.HasInconsistency {
			report.Inconsistencies++
			drift := row.Difference
			if drift < 0 {
				drift = -drift
			}
			totalDrift += drift
		}
		if row.PlanName != "" {
			report.Summary.UsersWithPlans++
		}
		report.Summary.TotalProperties += row.TotalCount
		report.Users = append(report.Users, row)
	}
	report.Summary.TotalInconsistencies = report.Inconsistencies

	r.metrics.RecordDrift(ctx, report.Inconsistencies, totalDrift)
	return report, nil
}

func (r *Reconciler) reportRow(ctx context.Context, u types.User) (types.UserReport, error) {
	actual, err := r.stores.Properties.CountActive(ctx, u.ID)
	if err != nil {
		return types.UserReport{}, err
	}
	total, err := r.stores.Properties.CountTotal(ctx, u.ID)
	if err != nil {
		return types.UserReport{}, err
	}

	row := types.UserReport{
		UserID:            u.ID,
		Name:              u.Name,
		Email:             u.Email,
		UserType:          u.UserType,
		StoredCount:       u.StoredPropertyCount,
		ActualActiveCount: actual,
		TotalCount:        total,
		HasInconsistency:  u.StoredPropertyCount != actual,
		Difference:        actual - u.StoredPropertyCount,
	}

	assignment, err := r.stores.Plans.GetAssignment(ctx, u.ID)
	if err != nil {
		return types.UserReport{}, err
	}
	if assignment != nil {
		row.PlanName = assignment.Plan.Name
		row.PlanActive = !assignment.Expired(r.clock.Now())
	}
	return row, nil
}

// FixUser sets one user's stored counter to the live count of active
// properties, inside a transaction so the count and the write see the same
// state. Idempotent: a second call with no intervening mutation is a no-op
// landing on the same count.
func (r *Reconciler) FixUser(ctx context.Context, userID string) (*types.SyncDelta, error) {
	var delta types.SyncDelta
	err := r.tx.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		stores := r.scoped(tx)

		user, err := stores.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		actual, err := stores.Properties.CountActive(ctx, userID)
		if err != nil {
			return err
		}

		delta = types.SyncDelta{
			OldCount:   user.StoredPropertyCount,
			NewCount:   actual,
			Difference: actual - user.StoredPropertyCount,
		}
		if delta.Difference == 0 {
			return nil
		}
		return stores.Users.UpdateStoredCount(ctx, userID, actual)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("stored count synchronized",
		"user_id", userID,
		"old_count", delta.OldCount,
		"new_count", delta.NewCount,
	)
	return &delta, nil
}

// SyncAll fixes every user the current report marks inconsistent. Fixes run
// with bounded concurrency; one user's failure never aborts the others.
// Processed counts successful fixes only.
func (r *Reconciler) SyncAll(ctx context.Context) (*types.SyncAllResult, error) {
	report, err := r.Report(ctx)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		row types.UserReport
		err error
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)

	var idx int
	results := make([]outcome, report.Inconsistencies)
	for _, row := range report.Users {
		if !row.HasInconsistency {
			continue
		}
		row := row
		slot := idx
		idx++
		g.Go(func() error {
			_, err := r.FixUser(ctx, row.UserID)
			results[slot] = outcome{row: row, err: err}
			// Errors are collected, never returned: returning one would
			// cancel the group and abort the remaining users.
			return nil
		})
	}
	_ = g.Wait()

	result := &types.SyncAllResult{Errors: []types.SyncUserError{}}
	for _, o := range results[:idx] {
		if o.err != nil {
			r.logger.Error("sweep fix failed", "user_id", o.row.UserID, "error", o.err)
			result.Errors = append(result.Errors, types.SyncUserError{
				UserID:   o.row.UserID,
				UserName: o.row.Name,
				Error:    o.err.Error(),
			})
			continue
		}
		result.Processed++
	}

	r.metrics.RecordSweep(ctx, result.Processed, len(result.Errors))
	return result, nil
}

// VerifyFixed refetches one user's counts after a fix and reports whether
// they now agree. A disagreement means a mutation interleaved with the fix;
// callers surface it as still-inconsistent rather than silently accepting.
func (r *Reconciler) VerifyFixed(ctx context.Context, userID string) error {
	user, err := r.stores.Users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	actual, err := r.stores.Properties.CountActive(ctx, userID)
	if err != nil {
		return err
	}
	if user.StoredPropertyCount != actual {
		return types.NewAppErrorWithDetails(
			types.ErrCodeConflictStillInconsistent,
			"stored count still disagrees with live count after fix",
			nil,
			map[string]any{"storedCount": user.StoredPropertyCount, "actualActiveCount": actual},
		)
	}
	return nil
}
