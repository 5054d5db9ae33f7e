package events

import (
	"testing"

	"plansync/internal/types"
)

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus(nil)

	var first, second []Detail
	bus.Subscribe(PropertyToggled, func(d Detail) { first = append(first, d) })
	bus.Subscribe(PropertyToggled, func(d Detail) { second = append(second, d) })

	snap := &types.PlanLimitSnapshot{CurrentUsage: 3, MaxProperties: 10, IsActive: true}
	bus.Publish(PropertyToggled, Detail{PropertyID: "prop_1", Snapshot: snap})

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("deliveries = %d/%d, want 1/1", len(first), len(second))
	}
	if first[0].Snapshot != snap || second[0].Snapshot != snap {
		t.Error("all subscribers must receive the same detail value")
	}
}

func TestBus_KindsAreIsolated(t *testing.T) {
	bus := NewBus(nil)

	var got int
	bus.Subscribe(PropertyCreated, func(Detail) { got++ })

	bus.Publish(PropertyDeleted, Detail{})
	bus.Publish(PropertyCountSynced, Detail{})

	if got != 0 {
		t.Errorf("handler received %d events for other kinds", got)
	}
}

func TestBus_UnknownKindDroppedWithoutPanic(t *testing.T) {
	bus := NewBus(nil)
	bus.Subscribe(PropertyCreated, func(Detail) { t.Error("must not be called") })

	// Must not panic and must not reach any subscriber.
	bus.Publish(Kind("somethingElse"), Detail{})
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(nil)

	var got int
	unsub := bus.Subscribe(PropertyDeleted, func(Detail) { got++ })

	bus.Publish(PropertyDeleted, Detail{})
	unsub()
	bus.Publish(PropertyDeleted, Detail{})
	unsub() // second call is harmless

	if got != 1 {
		t.Errorf("deliveries = %d, want 1", got)
	}
}

func TestBus_SameKindPreservesPublishOrder(t *testing.T) {
	bus := NewBus(nil)

	var seen []string
	bus.Subscribe(PropertyToggled, func(d Detail) { seen = append(seen, d.PropertyID) })

	for _, id := range []string{"a", "b", "c"} {
		bus.Publish(PropertyToggled, Detail{PropertyID: id})
	}

	if len(seen) != 3 || seen[0] != "a" || seen[1] != "b" || seen[2] != "c" {
		t.Errorf("order = %v, want [a b c]", seen)
	}
}

func TestBus_HandlerMaySubscribeDuringDelivery(t *testing.T) {
	bus := NewBus(nil)

	var lateCalls int
	bus.Subscribe(PropertyCreated, func(Detail) {
		bus.Subscribe(PropertyCreated, func(Detail) { lateCalls++ })
	})

	bus.Publish(PropertyCreated, Detail{}) // must not deadlock
	bus.Publish(PropertyCreated, Detail{})

	if lateCalls != 1 {
		t.Errorf("late subscriber calls = %d, want 1", lateCalls)
	}
}
