// Package billing provides plan management and limit-enforcement domain logic.
package billing

import "plansync/internal/types"

// PlanRegistry defines the authoritative limits for each tier.
// This is the single source of truth for what each plan allows.
type PlanRegistry interface {
	// GetLimits returns the resource limits for the given plan tier.
	// For unknown tiers, returns the most restrictive (Free) limits
	// to fail safely.
	GetLimits(tier types.PlanTier) types.PlanLimits
}

// staticPlanRegistry is a compile-time plan registry backed by an in-memory map.
// It implements PlanRegistry and is the standard implementation for production use.
type staticPlanRegistry struct {
	limits map[types.PlanTier]types.PlanLimits
}

// planDefaults defines the hardcoded plan limits.
//
//	| Plan      | Active Properties |
//	|-----------|-------------------|
//	| Free      | 2                 |
//	| Basic     | 10                |
//	| Pro       | 50                |
//	| Unlimited | 0 (no cap)        |
//
// Unlimited uses 0 to represent "no cap" -- enforcement code must treat 0 as no limit.
var planDefaults = map[types.PlanTier]types.PlanLimits{
	types.PlanFree:      {MaxProperties: 2},
	types.PlanBasic:     {MaxProperties: 10},
	types.PlanPro:       {MaxProperties: 50},
	types.PlanUnlimited: {MaxProperties: 0},
}

// freeLimits is cached to avoid map lookups on the fallback path.
var freeLimits = planDefaults[types.PlanFree]

// NewStaticPlanRegistry returns a PlanRegistry backed by the hardcoded plan
// limits. This is the standard production implementation; no database or
// external service is required.
func NewStaticPlanRegistry() PlanRegistry {
	// Copy the defaults into a new map so callers cannot mutate the package-level variable.
	m := make(map[types.PlanTier]types.PlanLimits, len(planDefaults))
	for k, v := range planDefaults {
		m[k] = v
	}
	return &staticPlanRegistry{limits: m}
}

// GetLimits returns the resource limits for the given plan tier.
// If the tier is unknown, it returns the Free tier limits as a safe default.
func (r *staticPlanRegistry) GetLimits(tier types.PlanTier) types.PlanLimits {
	if limits, ok := r.limits[tier]; ok {
		return limits
	}
	return freeLimits
}
