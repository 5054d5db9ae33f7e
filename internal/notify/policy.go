// Package notify decides when plan-limit warnings should be shown and
// remembers the user's dismissals. The policy itself is pure; persistence
// lives behind the DismissalStore interface.
package notify

import (
	"fmt"
	"time"

	"plansync/internal/types"
)

// Condition names a warning condition a snapshot can trigger.
type Condition string

const (
	CondNearLimit   Condition = "near-limit"
	CondAtLimit     Condition = "at-limit"
	CondExpiredPlan Condition = "expired-plan"
	CondNoPlan      Condition = "no-plan"
)

// Frequency controls how long a dismissal suppresses a warning.
type Frequency string

const (
	FreqAlways         Frequency = "always"
	FreqOncePerSession Frequency = "once-per-session"
	FreqDaily          Frequency = "daily"
	FreqWeekly         Frequency = "weekly"
)

// Settings is the user's notification configuration.
type Settings struct {
	Enabled         bool      `json:"enabled"`
	ShowNearLimit   bool      `json:"showNearLimit"`
	ShowAtLimit     bool      `json:"showAtLimit"`
	ShowExpiredPlan bool      `json:"showExpiredPlan"`
	ShowNoPlan      bool      `json:"showNoPlan"`
	Frequency       Frequency `json:"frequency"`
	Position        string    `json:"position"`
}

// DefaultSettings enables every condition with daily re-notification.
func DefaultSettings() Settings {
	return Settings{
		Enabled:         true,
		ShowNearLimit:   true,
		ShowAtLimit:     true,
		ShowExpiredPlan: true,
		ShowNoPlan:      true,
		Frequency:       FreqDaily,
		Position:        "top",
	}
}

// Dismissal records one acknowledged warning. Key identifies the exact
// condition-and-usage combination dismissed, so a change in usage surfaces
// the warning again even inside the suppression window.
type Dismissal struct {
	Key         string    `json:"key"`
	DismissedAt time.Time `json:"dismissedAt"`
}

// DismissalKey builds the composite key for a condition and snapshot.
func DismissalKey(cond Condition, snapshot *types.PlanLimitSnapshot) string {
	var usage, max int
	if snapshot != nil {
		usage = snapshot.CurrentUsage
		max = snapshot.MaxProperties
	}
	return fmt.Sprintf("%s_%d_%d", cond, usage, max)
}

// window returns the suppression window for a frequency. A zero window with
// false means the dismissal never suppresses; zero with true means it
// suppresses until the store is reset (session or identity change).
func window(f Frequency) (time.Duration, bool) {
	switch f {
	case FreqAlways:
		return 0, false
	case FreqOncePerSession:
		return 0, true
	case FreqWeekly:
		return 7 * 24 * time.Hour, true
	default:
		return 24 * time.Hour, true
	}
}

// conditionHolds maps a condition to the snapshot field that triggers it.
func conditionHolds(cond Condition, snapshot *types.PlanLimitSnapshot) bool {
	if snapshot == nil {
		// Only the missing-plan warning makes sense with no status at all.
		return cond == CondNoPlan
	}
	switch cond {
	case CondNearLimit:
		return snapshot.IsNearLimit
	case CondAtLimit:
		return snapshot.IsAtLimit
	case CondExpiredPlan:
		return snapshot.PlanExpired
	case CondNoPlan:
		return !snapshot.IsActive && !snapshot.PlanExpired
	}
	return false
}

// enabledFor reports whether settings allow the condition at all.
func enabledFor(cond Condition, s Settings) bool {
	if !s.Enabled {
		return false
	}
	switch cond {
	case CondNearLimit:
		return s.ShowNearLimit
	case CondAtLimit:
		return s.ShowAtLimit
	case CondExpiredPlan:
		return s.ShowExpiredPlan
	case CondNoPlan:
		return s.ShowNoPlan
	}
	return false
}

// ShouldShow reports whether the warning for cond should currently be
// displayed. Pure given its inputs; dismissal pruning is evaluated here
// rather than at write time.
func ShouldShow(cond Condition, snapshot *types.PlanLimitSnapshot, settings Settings, dismissals []Dismissal, now time.Time) bool {
	if !enabledFor(cond, settings) {
		return false
	}
	if !conditionHolds(cond, snapshot) {
		return false
	}

	dur, suppresses := window(settings.Frequency)
	if !suppresses {
		return true
	}

	key := DismissalKey(cond, snapshot)
	for _, d := range dismissals {
		if d.Key != key {
			continue
		}
		if dur == 0 {
			// Once-per-session: any matching dismissal suppresses until reset.
			return false
		}
		if now.Sub(d.DismissedAt) < dur {
			return false
		}
	}
	return true
}

// Prune drops dismissals older than the frequency window. Session-scoped and
// always-frequency records are kept; the store reset handles those.
func Prune(dismissals []Dismissal, freq Frequency, now time.Time) []Dismissal {
	dur, suppresses := window(freq)
	if !suppresses || dur == 0 {
		return dismissals
	}
	kept := dismissals[:0]
	for _, d := range dismissals {
		if now.Sub(d.DismissedAt) < dur {
			kept = append(kept, d)
		}
	}
	return kept
}
