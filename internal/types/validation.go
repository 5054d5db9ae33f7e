package types

// ValidateSnapshot checks a snapshot received across a trust boundary (the
// HTTP client) before it is allowed into the cache or the publication gate.
// Malformed server responses are rejected here instead of propagating
// nonsense numbers into decision logic.
func ValidateSnapshot(s *PlanLimitSnapshot) error {
	if s == nil {
		return NewAppError(ErrCodeValidationMalformed, "snapshot is missing", nil)
	}
	if s.CurrentUsage < 0 {
		return NewAppErrorWithDetails(
			ErrCodeValidationNegativeCount,
			"snapshot currentUsage must not be negative",
			nil,
			map[string]any{"currentUsage": s.CurrentUsage},
		)
	}
	if !s.IsUnlimited && s.MaxProperties < 0 {
		return NewAppErrorWithDetails(
			ErrCodeValidationMalformed,
			"snapshot maxProperties must not be negative on a limited plan",
			nil,
			map[string]any{"maxProperties": s.MaxProperties},
		)
	}
	if s.IsUnlimited && (s.IsAtLimit || s.IsNearLimit) {
		return NewAppError(
			ErrCodeValidationMalformed,
			"unlimited snapshot must not be at or near limit",
			nil,
		)
	}
	return nil
}
