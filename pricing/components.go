package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/velhola/gleaner/types"
)

// HoursPerMonth is the flat-rate month used across all hourly components,
// matching provider billing convention.
var HoursPerMonth = decimal.NewFromInt(730)

// ComputeComponent prices a machine type's VM hours for a month.
func (s *Snapshot) ComputeComponent(machineType, region string) (types.CostComponent, error) {
	rate, ok := s.Rate(RateKey{Component: ComponentCompute, SKU: machineType, Region: region})
	if !ok {
		return types.CostComponent{}, fmt.Errorf("no compute rate for %q", machineType)
	}

	return types.CostComponent{
		Name:    types.CostCompute,
		Monthly: rate.Price.Mul(HoursPerMonth),
		Formula: "hourly_rate × hours_per_month",
		Inputs: map[string]string{
			"machine_type":    machineType,
			"hourly_rate":     rate.Price.String(),
			"hours_per_month": HoursPerMonth.String(),
		},
	}, nil
}

// AcceleratorComponent prices attached accelerators for a month.
func (s *Snapshot) AcceleratorComponent(acceleratorType string, count int64, region string) (types.CostComponent, error) {
	if count <= 0 {
		return types.CostComponent{}, fmt.Errorf("accelerator count must be positive, got %d", count)
	}
	rate, ok := s.Rate(RateKey{Component: ComponentAccelerator, SKU: acceleratorType, Region: region})
	if !ok {
		return types.CostComponent{}, fmt.Errorf("no accelerator rate for %q", acceleratorType)
	}

	n := decimal.NewFromInt(count)
	return types.CostComponent{
		Name:    types.CostAccelerator,
		Monthly: rate.Price.Mul(n).Mul(HoursPerMonth),
		Formula: "hourly_rate × count × hours_per_month",
		Inputs: map[string]string{
			"accelerator_type": acceleratorType,
			"count":            n.String(),
			"hourly_rate":      rate.Price.String(),
		},
	}, nil
}

// StorageComponent prices provisioned capacity. Per-GB-month rates carry no
// time dimension: a 500 GB disk costs the same whether read once or never.
func (s *Snapshot) StorageComponent(sizeGB int64, mediaType, region string) (types.CostComponent, error) {
	if sizeGB < 0 {
		return types.CostComponent{}, fmt.Errorf("storage size must be non-negative, got %d", sizeGB)
	}
	rate, ok := s.Rate(RateKey{Component: ComponentStorage, SKU: mediaType, Region: region})
	if !ok {
		return types.CostComponent{}, fmt.Errorf("no storage rate for media type %q", mediaType)
	}

	size := decimal.NewFromInt(sizeGB)
	return types.CostComponent{
		Name:    types.CostStorage,
		Monthly: rate.Price.Mul(size),
		Formula: "size_gb × rate_per_gb_month",
		Inputs: map[string]string{
			"size_gb":           size.String(),
			"media_type":        mediaType,
			"rate_per_gb_month": rate.Price.String(),
		},
	}, nil
}

// NetworkComponent prices monthly egress at a network tier's per-GB rate.
func (s *Snapshot) NetworkComponent(gbPerMonth decimal.Decimal, tier, region string) (types.CostComponent, error) {
	if gbPerMonth.IsNegative() {
		return types.CostComponent{}, fmt.Errorf("egress volume must be non-negative, got %s", gbPerMonth)
	}
	rate, ok := s.Rate(RateKey{Component: ComponentNetwork, SKU: tier, Region: region})
	if !ok {
		return types.CostComponent{}, fmt.Errorf("no network rate for tier %q", tier)
	}

	return types.CostComponent{
		Name:    types.CostNetwork,
		Monthly: rate.Price.Mul(gbPerMonth),
		Formula: "gb_per_month × rate_per_gb",
		Inputs: map[string]string{
			"gb_per_month": gbPerMonth.String(),
			"tier":         tier,
			"rate_per_gb":  rate.Price.String(),
		},
	}, nil
}

// FixedOverheadHourly is the tiered fixed-cost step function: the first
// IncludedUnits cost BaseRate in aggregate, each further unit adds
// IncrementRate. Every scenario pricing discrete units goes through here;
// the step at the tier boundary is easy to get wrong twice.
func FixedOverheadHourly(count int64, tier FixedTier) decimal.Decimal {
	if count <= 0 {
		return decimal.Zero
	}
	if count <= tier.IncludedUnits {
		return tier.BaseRate
	}
	extra := decimal.NewFromInt(count - tier.IncludedUnits)
	return tier.BaseRate.Add(extra.Mul(tier.IncrementRate))
}

// FixedOverheadComponent prices count units of a tiered fixed-cost SKU for a
// month.
func (s *Snapshot) FixedOverheadComponent(name, sku string, count int64) (types.CostComponent, error) {
	tier, ok := s.FixedTierFor(sku)
	if !ok {
		return types.CostComponent{}, fmt.Errorf("no fixed-cost tier for %q", sku)
	}

	hourly := FixedOverheadHourly(count, tier)
	return types.CostComponent{
		Name:    name,
		Monthly: hourly.Mul(HoursPerMonth),
		Formula: "tiered_hourly(count) × hours_per_month",
		Inputs: map[string]string{
			"sku":            sku,
			"count":          decimal.NewFromInt(count).String(),
			"included_units": decimal.NewFromInt(tier.IncludedUnits).String(),
			"base_rate":      tier.BaseRate.String(),
			"increment_rate": tier.IncrementRate.String(),
			"hourly":         hourly.String(),
		},
	}, nil
}

// DeltaWaste turns a right-sizing comparison into a waste amount. A negative
// delta means the recommendation costs more than the current shape, which is
// no finding, so it clamps to zero rather than going negative.
func DeltaWaste(current, recommended decimal.Decimal) decimal.Decimal {
	delta := current.Sub(recommended)
	if delta.IsNegative() {
		return decimal.Zero
	}
	return delta
}

// ExtrapolateWasted converts a monthly figure into the amount already spent
// over a durable wasteful state, pro rata by hours.
func ExtrapolateWasted(monthly decimal.Decimal, hoursInState decimal.Decimal) decimal.Decimal {
	if hoursInState.IsNegative() || hoursInState.IsZero() {
		return decimal.Zero
	}
	return monthly.Div(HoursPerMonth).Mul(hoursInState)
}
