package types

import (
	"fmt"
	"time"
)

// Tier grades how certain we are that a finding is real waste rather than a
// resource mid-transition. Tiers are ordered: Critical outranks High outranks
// Medium outranks Low.
type Tier int

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
	TierCritical
)

func (t Tier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	case TierCritical:
		return "critical"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// AtLeast reports whether t is the same tier as min or a stronger one.
func (t Tier) AtLeast(min Tier) bool {
	return t >= min
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTier converts the wire form back into a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "low":
		return TierLow, nil
	case "medium":
		return TierMedium, nil
	case "high":
		return TierHigh, nil
	case "critical":
		return TierCritical, nil
	default:
		return TierLow, fmt.Errorf("unknown confidence tier %q", s)
	}
}

// Evidence is one observation that supported a finding: a predicate that
// matched, a metric window, or a graph fact.
type Evidence struct {
	Source string `json:"source"`
	Detail string `json:"detail"`
	Value  string `json:"value,omitempty"`
}

// Finding records that one resource matched one waste scenario during a scan.
// Findings are deduplicated on (ResourceID, ScenarioID) within a scan.
type Finding struct {
	ResourceID     string        `json:"resource_id"`
	ResourceKind   Kind          `json:"resource_kind"`
	ResourceName   string        `json:"resource_name,omitempty"`
	ScenarioID     string        `json:"scenario_id"`
	RuleSetVersion string        `json:"rule_set_version,omitempty"`
	Provider       string        `json:"provider"`
	AccountID      string        `json:"account_id"`
	Region         string        `json:"region"`
	Summary        string        `json:"summary"`
	Cost           CostBreakdown `json:"cost"`
	Confidence     Tier          `json:"confidence"`
	Evidence       []Evidence    `json:"evidence,omitempty"`
	DetectedAt     time.Time     `json:"detected_at"`
	Suppressed     bool          `json:"suppressed,omitempty"`
	SuppressReason string        `json:"suppress_reason,omitempty"`
}

// Key identifies a finding within a scan for deduplication.
func (f Finding) Key() string {
	return f.ResourceID + "/" + f.ScenarioID
}
