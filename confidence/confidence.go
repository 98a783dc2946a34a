// Package confidence maps elapsed time to a finding confidence tier.
// It is the single place tier thresholds are interpreted so scenarios
// share one policy shape instead of hardcoding day counts.
package confidence

import (
	"fmt"
	"sort"
	"time"

	"github.com/velhola/gleaner/types"
)

// Band grants a tier once elapsed time reaches MinAge.
type Band struct {
	MinAge time.Duration
	Tier   types.Tier
}

// Policy is an ordered set of bands, strongest threshold first.
// Score walks the bands and returns the first one the elapsed time meets.
type Policy struct {
	bands  []Band
	lowest types.Tier
}

// NewPolicy builds a policy from bands in any order. It fails on an empty
// band list or on two bands sharing the same threshold, because then the
// winning tier would depend on input order.
func NewPolicy(bands []Band) (Policy, error) {
	if len(bands) == 0 {
		return Policy{}, fmt.Errorf("confidence policy needs at least one band")
	}

	sorted := make([]Band, len(bands))
	copy(sorted, bands)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinAge > sorted[j].MinAge
	})

	lowest := sorted[0].Tier
	for i, b := range sorted {
		if i > 0 && b.MinAge == sorted[i-1].MinAge {
			return Policy{}, fmt.Errorf("duplicate confidence band at %s", b.MinAge)
		}
		if b.Tier < lowest {
			lowest = b.Tier
		}
	}

	return Policy{bands: sorted, lowest: lowest}, nil
}

// MustPolicy is NewPolicy for static defaults.
func MustPolicy(bands []Band) Policy {
	p, err := NewPolicy(bands)
	if err != nil {
		panic(err)
	}
	return p
}

// Days converts a day count into the duration bands are defined in.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// Default grades findings on the 7/30/90 day bands most scenarios use.
func Default() Policy {
	return MustPolicy([]Band{
		{MinAge: Days(90), Tier: types.TierCritical},
		{MinAge: Days(30), Tier: types.TierHigh},
		{MinAge: Days(7), Tier: types.TierMedium},
		{MinAge: 0, Tier: types.TierLow},
	})
}

// Score returns the tier of the first band whose threshold the elapsed time
// meets or exceeds, or the lowest defined tier when none match. It is pure,
// so two resources with the same elapsed time always grade the same.
func (p Policy) Score(elapsed time.Duration) types.Tier {
	for _, b := range p.bands {
		if elapsed >= b.MinAge {
			return b.Tier
		}
	}
	return p.lowest
}

// Bands returns a copy of the normalized band list, strongest first.
func (p Policy) Bands() []Band {
	out := make([]Band, len(p.bands))
	copy(out, p.bands)
	return out
}

// IsZero reports whether the policy was never initialized.
func (p Policy) IsZero() bool {
	return len(p.bands) == 0
}
