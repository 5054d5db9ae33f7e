// Package gate decides whether a new property publication is allowed given
// the caller's current plan snapshot. Evaluate is a pure function so the same
// policy runs identically on the server publish path, in the SDK, and in
// tests; UI surfaces consume the decision instead of re-deriving it.
package gate

import "plansync/internal/types"

// Suggestion texts, primary suggestion first. Order is part of the contract:
// consumers render the first entry as the main call to action.
var (
	suggestionsNoPlan      = []string{"Subscribe to a plan to publish properties"}
	suggestionsPlanExpired = []string{"Renew your plan to continue publishing"}
	suggestionsAtLimit     = []string{
		"Deactivate old listings to free up slots",
		"Upgrade to a plan with a higher limit",
	}
)

// Evaluate maps a snapshot to a publication decision.
//
// Precedence: admin bypass, then unknown status, then expired/missing plan,
// then unlimited allow, then the limit check. A nil snapshot means status has
// not loaded yet and is treated as blocked, never as allowed.
func Evaluate(snapshot *types.PlanLimitSnapshot, isAdmin bool) types.PublicationDecision {
	if isAdmin {
		return types.PublicationDecision{
			CanPublish: true,
			Reason:     types.ReasonAdmin,
		}
	}

	if snapshot == nil {
		return types.PublicationDecision{
			CanPublish: false,
			Reason:     types.ReasonUnknown,
		}
	}

	if snapshot.PlanExpired {
		return types.PublicationDecision{
			CanPublish:  false,
			Reason:      types.ReasonPlanExpired,
			Details:     details(snapshot),
			Suggestions: suggestionsPlanExpired,
		}
	}
	if !snapshot.IsActive {
		return types.PublicationDecision{
			CanPublish:  false,
			Reason:      types.ReasonNoPlan,
			Suggestions: suggestionsNoPlan,
		}
	}

	if snapshot.IsUnlimited {
		return types.PublicationDecision{
			CanPublish: true,
			Details:    details(snapshot),
		}
	}

	if snapshot.IsAtLimit {
		return types.PublicationDecision{
			CanPublish:  false,
			Reason:      types.ReasonLimitReached,
			Details:     details(snapshot),
			Suggestions: suggestionsAtLimit,
		}
	}

	return types.PublicationDecision{
		CanPublish: true,
		Details:    details(snapshot),
	}
}

func details(s *types.PlanLimitSnapshot) *types.PublicationDetails {
	d := &types.PublicationDetails{
		CurrentCount:   s.CurrentUsage,
		MaxProperties:  s.MaxProperties,
		RemainingSlots: s.RemainingSlots,
	}
	if s.PlanName != nil {
		d.PlanName = *s.PlanName
	}
	return d
}
