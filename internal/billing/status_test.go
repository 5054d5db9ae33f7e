package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"plansync/internal/types"
)

// --- Mocks ---

type mockAssignments struct {
	assignment *types.PlanAssignment
	err        error
}

func (m *mockAssignments) GetAssignment(_ context.Context, _ string) (*types.PlanAssignment, error) {
	return m.assignment, m.err
}

type mockUsageDB struct {
	count int
	err   error
	calls int
}

func (m *mockUsageDB) CountActive(_ context.Context, _ string) (int, error) {
	m.calls++
	return m.count, m.err
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var statusNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func proAssignment(max int, end *time.Time) *types.PlanAssignment {
	return &types.PlanAssignment{
		UserID: "u_1",
		Plan: types.Plan{
			ID:            "plan_pro",
			Name:          "Pro",
			Tier:          types.PlanPro,
			MaxProperties: max,
		},
		StartDate: statusNow.AddDate(0, -1, 0),
		EndDate:   end,
	}
}

func newStatusService(a *mockAssignments, u *mockUsageDB) *StatusService {
	return NewStatusService(a, u, NewStaticPlanRegistry(), fixedClock{statusNow})
}

// --- Snapshot ---

func TestSnapshot_ActivePlan(t *testing.T) {
	svc := newStatusService(
		&mockAssignments{assignment: proAssignment(10, nil)},
		&mockUsageDB{count: 4},
	)

	snap, err := svc.Snapshot(context.Background(), "u_1")
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}

	if !snap.IsActive {
		t.Error("want IsActive")
	}
	if snap.CurrentUsage != 4 || snap.MaxProperties != 10 {
		t.Errorf("usage %d/%d, want 4/10", snap.CurrentUsage, snap.MaxProperties)
	}
	if snap.RemainingSlots != 6 {
		t.Errorf("RemainingSlots = %d, want 6", snap.RemainingSlots)
	}
}

func TestSnapshot_NoPlan(t *testing.T) {
	svc := newStatusService(&mockAssignments{}, &mockUsageDB{count: 1})

	snap, err := svc.Snapshot(context.Background(), "u_1")
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	if snap.IsActive || snap.PlanName != nil {
		t.Error("no assignment must yield inactive, nameless snapshot")
	}
}

func TestSnapshot_RegistryFillsMissingLimit(t *testing.T) {
	// Plan row stored without an explicit limit; the registry supplies the
	// authoritative value for the pro tier.
	svc := newStatusService(
		&mockAssignments{assignment: proAssignment(0, nil)},
		&mockUsageDB{count: 4},
	)

	snap, err := svc.Snapshot(context.Background(), "u_1")
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	if snap.MaxProperties != 50 {
		t.Errorf("MaxProperties = %d, want registry pro limit 50", snap.MaxProperties)
	}
	if snap.IsUnlimited {
		t.Error("pro tier without explicit limit must not become unlimited")
	}
}

func TestSnapshot_UsageDBError(t *testing.T) {
	svc := newStatusService(
		&mockAssignments{assignment: proAssignment(10, nil)},
		&mockUsageDB{err: errors.New("connection reset")},
	)

	if _, err := svc.Snapshot(context.Background(), "u_1"); err == nil {
		t.Fatal("expected error from usage DB")
	}
}

// --- CheckLimit ---

func TestCheckLimit_Allowed(t *testing.T) {
	svc := newStatusService(
		&mockAssignments{assignment: proAssignment(10, nil)},
		&mockUsageDB{count: 4},
	)

	if err := svc.CheckLimit(context.Background(), "u_1", 1); err != nil {
		t.Errorf("CheckLimit returned error: %v", err)
	}
}

func TestCheckLimit_AtLimit(t *testing.T) {
	svc := newStatusService(
		&mockAssignments{assignment: proAssignment(10, nil)},
		&mockUsageDB{count: 10},
	)

	err := svc.CheckLimit(context.Background(), "u_1", 1)
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeLimitProperties {
		t.Fatalf("err = %v, want %s", err, types.ErrCodeLimitProperties)
	}
	if appErr.Details["limit"] != 10 {
		t.Errorf("details limit = %v, want 10", appErr.Details["limit"])
	}
}

func TestCheckLimit_ExpiredPlanTakesPrecedence(t *testing.T) {
	past := statusNow.AddDate(0, 0, -1)
	svc := newStatusService(
		&mockAssignments{assignment: proAssignment(10, &past)},
		&mockUsageDB{count: 1},
	)

	err := svc.CheckLimit(context.Background(), "u_1", 1)
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeLimitExpired {
		t.Fatalf("err = %v, want %s despite free slots", err, types.ErrCodeLimitExpired)
	}
}

func TestCheckLimit_NoPlan(t *testing.T) {
	svc := newStatusService(&mockAssignments{}, &mockUsageDB{count: 0})

	err := svc.CheckLimit(context.Background(), "u_1", 1)
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeLimitNoPlan {
		t.Fatalf("err = %v, want %s", err, types.ErrCodeLimitNoPlan)
	}
}

func TestCheckLimit_UnlimitedNeverBlocks(t *testing.T) {
	a := proAssignment(0, nil)
	a.Plan.Tier = types.PlanUnlimited
	a.Plan.Name = "Unlimited"
	svc := newStatusService(&mockAssignments{assignment: a}, &mockUsageDB{count: 100000})

	if err := svc.CheckLimit(context.Background(), "u_1", 50); err != nil {
		t.Errorf("unlimited plan must never block, got %v", err)
	}
}
