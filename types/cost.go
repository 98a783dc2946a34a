package types

import (
	"github.com/shopspring/decimal"
)

// Component names used across cost models. A scenario's cost model decides
// which of these apply to a finding.
const (
	CostCompute     = "compute"
	CostAccelerator = "accelerator"
	CostStorage     = "storage"
	CostNetwork     = "network"
	CostHealthCheck = "health_check"
	CostBackup      = "backup"
	CostOverhead    = "overhead"
)

// CostComponent is one priced line of a breakdown. Formula and Inputs record
// how the amount was computed so a finding can be audited without re-running
// the scan.
type CostComponent struct {
	Name    string            `json:"name"`
	Monthly decimal.Decimal   `json:"monthly_usd"`
	Formula string            `json:"formula,omitempty"`
	Inputs  map[string]string `json:"inputs,omitempty"`
}

// CostBreakdown itemizes the estimated monthly waste of one finding.
// TotalMonthly is always the exact sum of the components.
type CostBreakdown struct {
	Components   []CostComponent `json:"components"`
	TotalMonthly decimal.Decimal `json:"total_monthly_usd"`
	// AlreadyWasted extrapolates the total over the time the resource has
	// been in its wasteful state. Zero for point-in-time misconfigurations.
	AlreadyWasted decimal.Decimal `json:"already_wasted_usd"`
	Currency      string          `json:"currency"`
}

// NewCostBreakdown returns an empty USD breakdown.
func NewCostBreakdown() CostBreakdown {
	return CostBreakdown{Currency: "USD"}
}

// Add appends a component and keeps the total in sync.
func (b *CostBreakdown) Add(c CostComponent) {
	b.Components = append(b.Components, c)
	b.TotalMonthly = b.TotalMonthly.Add(c.Monthly)
}

// Component returns the named component and whether it exists.
func (b CostBreakdown) Component(name string) (CostComponent, bool) {
	for _, c := range b.Components {
		if c.Name == name {
			return c, true
		}
	}
	return CostComponent{}, false
}

// IsZero reports whether the breakdown carries no estimated cost at all.
func (b CostBreakdown) IsZero() bool {
	return b.TotalMonthly.IsZero() && b.AlreadyWasted.IsZero()
}
