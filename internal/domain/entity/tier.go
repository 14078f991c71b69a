package entity

// ThresholdTier maps an amount range to the roles that must approve it.
// The range is [MinAmount, MaxAmount); a nil MaxAmount is open-ended.
type ThresholdTier struct {
	Name       string   `json:"name"`
	MinAmount  int64    `json:"min_amount"`
	MaxAmount  *int64   `json:"max_amount,omitempty"`
	Roles      []string `json:"roles"`
	Sequential bool     `json:"sequential"`
	SLAHours   int      `json:"sla_hours"`
}

// Contains reports whether amount falls inside the tier's range.
func (t ThresholdTier) Contains(amount int64) bool {
	if amount < t.MinAmount {
		return false
	}
	return t.MaxAmount == nil || amount < *t.MaxAmount
}

// OpenEnded reports whether the tier has no upper bound.
func (t ThresholdTier) OpenEnded() bool {
	return t.MaxAmount == nil
}
