// Package types defines the shared domain model for the plansync platform:
// plan/usage snapshots, publication decisions, reconciliation reports, and
// the notification settings consumed by dashboard surfaces.
package types

import "time"

// PlanTier identifies a subscription plan level.
type PlanTier string

const (
	PlanFree      PlanTier = "free"
	PlanBasic     PlanTier = "basic"
	PlanPro       PlanTier = "pro"
	PlanUnlimited PlanTier = "unlimited"
)

// PlanLimits defines the resource limits for a plan tier.
// MaxProperties == 0 means unlimited; enforcement code must treat 0 as no limit.
type PlanLimits struct {
	MaxProperties int
}

// Unlimited reports whether this limit set imposes no property cap.
func (l PlanLimits) Unlimited() bool { return l.MaxProperties == 0 }

// UserType distinguishes brokers (subject to plan gating) from admins
// (who bypass it entirely).
type UserType string

const (
	UserTypeBroker UserType = "broker"
	UserTypeAdmin  UserType = "admin"
)

// User is the account record as seen by the plan-limit subsystem.
// StoredPropertyCount is the denormalized usage counter that can drift from
// the live count of active properties; the reconciler exists to repair it.
type User struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Email               string   `json:"email"`
	UserType            UserType `json:"userType"`
	StoredPropertyCount int      `json:"storedPropertyCount"`
}

// Property is a marketplace listing. A property counts toward plan usage
// iff it is active and not soft-deleted.
type Property struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"ownerId"`
	Title     string     `json:"title"`
	Active    bool       `json:"active"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Counted reports whether the property counts toward its owner's plan usage.
func (p *Property) Counted() bool { return p.Active && p.DeletedAt == nil }

// Plan is a subscription tier definition.
type Plan struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Tier          PlanTier `json:"tier"`
	MaxProperties int      `json:"maxProperties"`
	DurationDays  int      `json:"durationDays"`
}

// PlanAssignment binds a user to a plan for a date window.
type PlanAssignment struct {
	UserID    string     `json:"userId"`
	Plan      Plan       `json:"plan"`
	StartDate time.Time  `json:"startDate"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// Expired reports whether the assignment's end date is in the past.
func (a *PlanAssignment) Expired(now time.Time) bool {
	return a.EndDate != nil && a.EndDate.Before(now)
}

// NearLimitPercent is the usage percentage at or above which a snapshot is
// flagged near-limit. The same threshold drives the cache's fast polling tier.
const NearLimitPercent = 80

// PlanLimitSnapshot is the server-computed view of a user's plan and usage
// that clients cache and refresh. It is replaced wholesale on each successful
// fetch and patched in place when an event carries a fresher copy.
type PlanLimitSnapshot struct {
	PlanName        *string    `json:"planName"`
	IsUnlimited     bool       `json:"isUnlimited"`
	IsActive        bool       `json:"isActive"`
	PlanExpired     bool       `json:"planExpired"`
	CurrentUsage    int        `json:"currentUsage"`
	MaxProperties   int        `json:"maxProperties"`
	UsagePercentage int        `json:"usagePercentage"`
	RemainingSlots  int        `json:"remainingSlots"`
	PlanStartDate   *time.Time `json:"planStartDate,omitempty"`
	PlanEndDate     *time.Time `json:"planEndDate,omitempty"`
	IsNearLimit     bool       `json:"isNearLimit"`
	IsAtLimit       bool       `json:"isAtLimit"`
	Error           string     `json:"error,omitempty"`
}

// ComputeSnapshot builds a PlanLimitSnapshot from raw inputs, deriving every
// dependent field. It is the single place the derivation rules live; both the
// server status service and test fixtures go through it.
//
// Invariants enforced:
//   - IsUnlimited forces IsAtLimit == IsNearLimit == false and zeroes
//     UsagePercentage and RemainingSlots.
//   - RemainingSlots == max(MaxProperties-CurrentUsage, 0).
//   - IsNearLimit is true when UsagePercentage >= NearLimitPercent.
//   - A nil assignment yields IsActive == false (no plan).
func ComputeSnapshot(assignment *PlanAssignment, currentUsage int, now time.Time) PlanLimitSnapshot {
	if currentUsage < 0 {
		currentUsage = 0
	}

	if assignment == nil {
		return PlanLimitSnapshot{
			CurrentUsage: currentUsage,
		}
	}

	name := assignment.Plan.Name
	snap := PlanLimitSnapshot{
		PlanName:      &name,
		CurrentUsage:  currentUsage,
		MaxProperties: assignment.Plan.MaxProperties,
		PlanStartDate: timePtr(assignment.StartDate),
		PlanEndDate:   assignment.EndDate,
	}

	if assignment.Expired(now) {
		snap.PlanExpired = true
		return snap
	}
	snap.IsActive = true

	// Negative limits from storage are treated as unlimited, same as 0.
	if assignment.Plan.MaxProperties <= 0 {
		snap.IsUnlimited = true
		snap.MaxProperties = 0
		return snap
	}

	snap.UsagePercentage = roundPercent(currentUsage, assignment.Plan.MaxProperties)
	snap.RemainingSlots = assignment.Plan.MaxProperties - currentUsage
	if snap.RemainingSlots < 0 {
		snap.RemainingSlots = 0
	}
	snap.IsAtLimit = currentUsage >= assignment.Plan.MaxProperties
	snap.IsNearLimit = snap.UsagePercentage >= NearLimitPercent
	return snap
}

// roundPercent computes round(used/limit*100) without floating point drift
// for the common small-integer cases.
func roundPercent(used, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (used*100 + limit/2) / limit
}

func timePtr(t time.Time) *time.Time { return &t }

// PublicationReason explains a blocked (or short-circuited) publication.
type PublicationReason string

const (
	ReasonAdmin        PublicationReason = "admin"
	ReasonUnknown      PublicationReason = "unknown"
	ReasonNoPlan       PublicationReason = "no_plan"
	ReasonPlanExpired  PublicationReason = "plan_expired"
	ReasonLimitReached PublicationReason = "limit_reached"
)

// PublicationDetails carries the numbers behind a decision for UI display.
type PublicationDetails struct {
	CurrentCount   int    `json:"currentCount"`
	MaxProperties  int    `json:"maxProperties"`
	PlanName       string `json:"planName,omitempty"`
	RemainingSlots int    `json:"remainingSlots"`
}

// PublicationDecision is the outcome of evaluating a snapshot against the
// publication gate. Derived, never persisted.
type PublicationDecision struct {
	CanPublish  bool                `json:"canPublish"`
	Reason      PublicationReason   `json:"reason,omitempty"`
	Details     *PublicationDetails `json:"details,omitempty"`
	Suggestions []string            `json:"suggestions,omitempty"`
}

// UserReport is one user's row in a reconciliation report.
// Difference follows the actual-minus-stored sign convention: positive means
// the stored counter undercounts reality.
type UserReport struct {
	UserID            string   `json:"userId"`
	Name              string   `json:"name"`
	Email             string   `json:"email"`
	UserType          UserType `json:"userType"`
	PlanName          string   `json:"planName,omitempty"`
	PlanActive        bool     `json:"planActive"`
	StoredCount       int      `json:"storedCount"`
	ActualActiveCount int      `json:"actualActiveCount"`
	TotalCount        int      `json:"totalCount"`
	HasInconsistency  bool     `json:"hasInconsistency"`
	Difference        int      `json:"difference"`
}

// ReportSummary aggregates a reconciliation report.
type ReportSummary struct {
	TotalInconsistencies int `json:"totalInconsistencies"`
	UsersWithPlans       int `json:"usersWithPlans"`
	TotalProperties      int `json:"totalProperties"`
}

// ReconciliationReport compares stored usage counters against live counts
// for every user. Generated on demand; can go stale between fetch and fix.
type ReconciliationReport struct {
	TotalUsers      int           `json:"totalUsers"`
	Inconsistencies int           `json:"inconsistencies"`
	Users           []UserReport  `json:"users"`
	Summary         ReportSummary `json:"summary"`
	GeneratedAt     time.Time     `json:"generatedAt"`
}

// SyncUserError records a single user's failure during a sweep.
type SyncUserError struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Error    string `json:"error"`
}

// SyncAllResult is the outcome of a best-effort sweep. Processed counts
// successful fixes only; a non-empty Errors list with Processed > 0 still
// means the sweep as a whole succeeded.
type SyncAllResult struct {
	Processed int             `json:"processed"`
	Errors    []SyncUserError `json:"errors"`
}

// SyncDelta reports the before/after of a single-user counter fix.
type SyncDelta struct {
	OldCount   int `json:"oldCount"`
	NewCount   int `json:"newCount"`
	Difference int `json:"difference"`
}
