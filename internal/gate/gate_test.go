package gate

import (
	"reflect"
	"testing"

	"plansync/internal/types"
)

func snap(name string, usage, max int, active, expired, unlimited bool) *types.PlanLimitSnapshot {
	s := &types.PlanLimitSnapshot{
		PlanName:      &name,
		IsActive:      active,
		PlanExpired:   expired,
		IsUnlimited:   unlimited,
		CurrentUsage:  usage,
		MaxProperties: max,
	}
	if !unlimited && max > 0 {
		s.RemainingSlots = max - usage
		if s.RemainingSlots < 0 {
			s.RemainingSlots = 0
		}
		s.IsAtLimit = usage >= max
	}
	return s
}

func TestEvaluate_AdminBypassesEverything(t *testing.T) {
	// Admins bypass even with a fully blocked snapshot, and with no snapshot.
	for _, s := range []*types.PlanLimitSnapshot{
		nil,
		snap("basic", 10, 10, true, false, false),
		snap("basic", 1, 10, true, true, false),
	} {
		got := Evaluate(s, true)
		if !got.CanPublish || got.Reason != types.ReasonAdmin {
			t.Errorf("Evaluate(%+v, admin) = %+v, want admin allow", s, got)
		}
	}
}

func TestEvaluate_NilSnapshotBlocksConservatively(t *testing.T) {
	got := Evaluate(nil, false)
	if got.CanPublish {
		t.Fatal("unknown status must never allow publication")
	}
	if got.Reason != types.ReasonUnknown {
		t.Errorf("reason = %q, want %q", got.Reason, types.ReasonUnknown)
	}
}

func TestEvaluate_ExpiredPlanTakesPrecedenceOverFreeSlots(t *testing.T) {
	s := snap("basic", 1, 10, true, true, false)
	got := Evaluate(s, false)
	if got.CanPublish || got.Reason != types.ReasonPlanExpired {
		t.Errorf("got %+v, want plan_expired block", got)
	}
	if len(got.Suggestions) == 0 {
		t.Error("expired plan must carry a renewal suggestion")
	}
}

func TestEvaluate_NoPlan(t *testing.T) {
	got := Evaluate(&types.PlanLimitSnapshot{CurrentUsage: 1}, false)
	if got.CanPublish || got.Reason != types.ReasonNoPlan {
		t.Errorf("got %+v, want no_plan block", got)
	}
	if len(got.Suggestions) != 1 {
		t.Errorf("suggestions = %v, want single subscribe hint", got.Suggestions)
	}
}

func TestEvaluate_UnlimitedAlwaysAllows(t *testing.T) {
	for _, usage := range []int{0, 3, 5000} {
		s := snap("unlimited", usage, 0, true, false, true)
		got := Evaluate(s, false)
		if !got.CanPublish {
			t.Errorf("unlimited plan with usage %d must allow, got %+v", usage, got)
		}
		if got.Reason != "" {
			t.Errorf("unlimited allow must carry no reason, got %q", got.Reason)
		}
	}
}

func TestEvaluate_AtLimitBlocksWithDetailsAndOrderedSuggestions(t *testing.T) {
	s := snap("pro", 5, 5, true, false, false)
	got := Evaluate(s, false)

	if got.CanPublish || got.Reason != types.ReasonLimitReached {
		t.Fatalf("got %+v, want limit_reached block", got)
	}
	want := &types.PublicationDetails{
		CurrentCount:   5,
		MaxProperties:  5,
		PlanName:       "pro",
		RemainingSlots: 0,
	}
	if !reflect.DeepEqual(got.Details, want) {
		t.Errorf("details = %+v, want %+v", got.Details, want)
	}
	if len(got.Suggestions) != 2 {
		t.Fatalf("suggestions = %v, want two entries", got.Suggestions)
	}
	// Deactivating listings is the primary remediation; upgrade is secondary.
	if got.Suggestions[0] != suggestionsAtLimit[0] {
		t.Errorf("primary suggestion = %q", got.Suggestions[0])
	}
}

func TestEvaluate_UnderLimitAllowsWithDetails(t *testing.T) {
	s := snap("basic", 4, 10, true, false, false)
	got := Evaluate(s, false)
	if !got.CanPublish || got.Reason != "" {
		t.Fatalf("got %+v, want plain allow", got)
	}
	if got.Details == nil || got.Details.RemainingSlots != 6 {
		t.Errorf("details = %+v, want remainingSlots 6", got.Details)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	s := snap("basic", 10, 10, true, false, false)
	first := Evaluate(s, false)
	for i := 0; i < 10; i++ {
		if got := Evaluate(s, false); !reflect.DeepEqual(got, first) {
			t.Fatalf("call %d diverged: %+v vs %+v", i, got, first)
		}
	}
}
