package approval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/garyjia/budget-approvals/internal/domain/entity"
)

// ThresholdTable is a validated, read-only set of approval tiers sorted by
// their lower bound.
type ThresholdTable struct {
	tiers []entity.ThresholdTier
}

// NewThresholdTable validates tiers and returns the table. Overlapping
// ranges, gaps between consecutive tiers, more than one open-ended tier, an
// open-ended tier below another tier, empty or duplicated role lists and
// non-positive SLAs are all rejected.
func NewThresholdTable(tiers []entity.ThresholdTier) (*ThresholdTable, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("tier table is empty")
	}

	sorted := make([]entity.ThresholdTier, len(tiers))
	names := make(map[string]bool, len(tiers))
	for i, t := range tiers {
		if err := validateTier(t); err != nil {
			return nil, err
		}
		if names[t.Name] {
			return nil, fmt.Errorf("duplicate tier name %q", t.Name)
		}
		names[t.Name] = true
		sorted[i] = copyTier(t)
	}

	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinAmount < sorted[j].MinAmount })

	for i, t := range sorted {
		if t.OpenEnded() && i != len(sorted)-1 {
			return nil, fmt.Errorf("open-ended tier %q must be the highest tier", t.Name)
		}
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		switch {
		case *prev.MaxAmount > t.MinAmount:
			return nil, fmt.Errorf("tiers %q and %q overlap", prev.Name, t.Name)
		case *prev.MaxAmount < t.MinAmount:
			return nil, fmt.Errorf("gap between tiers %q and %q", prev.Name, t.Name)
		}
	}

	return &ThresholdTable{tiers: sorted}, nil
}

func validateTier(t entity.ThresholdTier) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("tier name is required")
	}
	if t.MinAmount < 0 {
		return fmt.Errorf("tier %q: min amount must not be negative", t.Name)
	}
	if t.MaxAmount != nil && *t.MaxAmount <= t.MinAmount {
		return fmt.Errorf("tier %q: max amount must exceed min amount", t.Name)
	}
	if len(t.Roles) == 0 {
		return fmt.Errorf("tier %q: at least one role is required", t.Name)
	}
	seen := make(map[string]bool, len(t.Roles))
	for _, r := range t.Roles {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("tier %q: blank role", t.Name)
		}
		if seen[r] {
			return fmt.Errorf("tier %q: duplicate role %q", t.Name, r)
		}
		seen[r] = true
	}
	if t.SLAHours <= 0 {
		return fmt.Errorf("tier %q: sla hours must be positive", t.Name)
	}
	return nil
}

// Resolve returns the tier whose range contains amount.
func (tt *ThresholdTable) Resolve(amount int64) (*entity.ThresholdTier, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: negative amount %d", ErrNoMatchingTier, amount)
	}
	for _, t := range tt.tiers {
		if t.Contains(amount) {
			tier := copyTier(t)
			return &tier, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrNoMatchingTier, amount)
}

// Tiers returns a copy of the table in ascending order.
func (tt *ThresholdTable) Tiers() []entity.ThresholdTier {
	out := make([]entity.ThresholdTier, len(tt.tiers))
	for i, t := range tt.tiers {
		out[i] = copyTier(t)
	}
	return out
}

// Coverage reports whether the table starts at zero and has an open top.
// Tables that do not are legal but leave some amounts unroutable.
func (tt *ThresholdTable) Coverage() (startsAtZero, openTop bool) {
	return tt.tiers[0].MinAmount == 0, tt.tiers[len(tt.tiers)-1].OpenEnded()
}

func copyTier(t entity.ThresholdTier) entity.ThresholdTier {
	c := t
	c.Roles = append([]string(nil), t.Roles...)
	if t.MaxAmount != nil {
		m := *t.MaxAmount
		c.MaxAmount = &m
	}
	return c
}
