package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velhola/gleaner/types"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFixedOverheadHourly(t *testing.T) {
	tier := FixedTier{
		IncludedUnits: 5,
		BaseRate:      dec("0.025"),
		IncrementRate: dec("0.010"),
	}

	tests := []struct {
		name  string
		count int64
		want  string
	}{
		{"zero units", 0, "0"},
		{"one unit inside tier", 1, "0.025"},
		{"at tier boundary", 5, "0.025"},
		{"one past boundary", 6, "0.035"},
		{"ten units", 10, "0.075"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FixedOverheadHourly(tt.count, tier)
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestFixedOverheadHourlyStrictlyIncreasingPastBoundary(t *testing.T) {
	tier := FixedTier{IncludedUnits: 5, BaseRate: dec("0.025"), IncrementRate: dec("0.010")}

	prev := FixedOverheadHourly(5, tier)
	for n := int64(6); n <= 20; n++ {
		cur := FixedOverheadHourly(n, tier)
		assert.True(t, cur.GreaterThan(prev), "cost(%d)=%s not greater than cost(%d)=%s", n, cur, n-1, prev)
		prev = cur
	}
}

func TestStorageComponentPremiumDisk(t *testing.T) {
	s := DefaultSnapshot()

	comp, err := s.StorageComponent(500, types.MediaPremium, "us-east-1")
	require.NoError(t, err)

	// 500 GB × 0.17/GB-month
	assert.True(t, comp.Monthly.Equal(dec("85.00")), "got %s", comp.Monthly)
	assert.Equal(t, types.CostStorage, comp.Name)
	assert.Equal(t, "500", comp.Inputs["size_gb"])
}

func TestComputeComponent(t *testing.T) {
	s := DefaultSnapshot()

	comp, err := s.ComputeComponent("e2-standard-2", "")
	require.NoError(t, err)
	assert.True(t, comp.Monthly.Equal(dec("48.91")), "got %s", comp.Monthly)
}

func TestNetworkComponent(t *testing.T) {
	s := DefaultSnapshot()

	comp, err := s.NetworkComponent(dec("120"), "premium", "")
	require.NoError(t, err)
	// 120 GB × 0.12/GB
	assert.True(t, comp.Monthly.Equal(dec("14.40")), "got %s", comp.Monthly)
	assert.Equal(t, types.CostNetwork, comp.Name)
	assert.Equal(t, "premium", comp.Inputs["tier"])

	_, err = s.NetworkComponent(dec("-1"), "premium", "")
	assert.Error(t, err)
}

func TestRateFallsBackToDefaultSKU(t *testing.T) {
	s := DefaultSnapshot()

	comp, err := s.ComputeComponent("exotic-machine-type", "eu-west-3")
	require.NoError(t, err)
	// default compute rate 0.05/hr
	assert.True(t, comp.Monthly.Equal(dec("36.50")), "got %s", comp.Monthly)
}

func TestRatePrefersRegionSpecificRow(t *testing.T) {
	rates := []Rate{
		{Key: RateKey{Component: ComponentStorage, SKU: "premium"}, Price: dec("0.17"), Unit: "gb_month"},
		{Key: RateKey{Component: ComponentStorage, SKU: "premium", Region: "asia-east1"}, Price: dec("0.20"), Unit: "gb_month"},
	}
	s := NewSnapshot("test", time.Now(), rates, nil)

	regional, ok := s.Rate(RateKey{Component: ComponentStorage, SKU: "premium", Region: "asia-east1"})
	require.True(t, ok)
	assert.True(t, regional.Price.Equal(dec("0.20")))

	fallback, ok := s.Rate(RateKey{Component: ComponentStorage, SKU: "premium", Region: "us-east-1"})
	require.True(t, ok)
	assert.True(t, fallback.Price.Equal(dec("0.17")))
}

func TestDeltaWasteClampsAtZero(t *testing.T) {
	assert.True(t, DeltaWaste(dec("100"), dec("60")).Equal(dec("40")))
	assert.True(t, DeltaWaste(dec("60"), dec("100")).IsZero())
	assert.True(t, DeltaWaste(dec("60"), dec("60")).IsZero())
}

func TestExtrapolateWasted(t *testing.T) {
	// 73.00/month over 73 hours = 7.30
	got := ExtrapolateWasted(dec("73.00"), dec("73"))
	assert.True(t, got.Equal(dec("7.30")), "got %s", got)

	assert.True(t, ExtrapolateWasted(dec("73.00"), decimal.Zero).IsZero())
	assert.True(t, ExtrapolateWasted(dec("73.00"), dec("-5")).IsZero())
}

func TestEstimateStoppedInstanceStorage(t *testing.T) {
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	reg := NewRegistry(DefaultSnapshot())

	breakdown, err := reg.Estimate(ModelStoppedStorage, Input{
		Resource: types.Resource{
			ID:             "vm-1",
			Kind:           types.KindVMInstance,
			State:          "stopped",
			CreatedAt:      now.Add(-120 * 24 * time.Hour),
			StateChangedAt: now.Add(-30 * 24 * time.Hour),
			Attributes: map[string]any{
				types.AttrSizeGB:    500,
				types.AttrMediaType: types.MediaPremium,
			},
		},
		Now: now,
	})
	require.NoError(t, err)

	storage, ok := breakdown.Component(types.CostStorage)
	require.True(t, ok)
	assert.True(t, storage.Monthly.Equal(dec("85.00")), "got %s", storage.Monthly)
	assert.True(t, breakdown.TotalMonthly.Equal(dec("85.00")))

	// 30 days stopped: 85.00/730h × 720h, rounded to cents
	assert.True(t, breakdown.AlreadyWasted.Equal(dec("83.84")), "got %s", breakdown.AlreadyWasted)
	assert.Equal(t, "USD", breakdown.Currency)
}

func TestEstimateFullComputeWithAccelerators(t *testing.T) {
	reg := NewRegistry(DefaultSnapshot())

	breakdown, err := reg.Estimate(ModelFullCompute, Input{
		Resource: types.Resource{
			ID:   "vm-gpu",
			Kind: types.KindVMInstance,
			Attributes: map[string]any{
				types.AttrMachineType:      "m5.large",
				types.AttrAcceleratorType:  "nvidia-tesla-t4",
				types.AttrAcceleratorCount: 2,
			},
		},
		Now: time.Now(),
	})
	require.NoError(t, err)

	compute, ok := breakdown.Component(types.CostCompute)
	require.True(t, ok)
	assert.True(t, compute.Monthly.Equal(dec("70.08")), "got %s", compute.Monthly)

	acc, ok := breakdown.Component(types.CostAccelerator)
	require.True(t, ok)
	assert.True(t, acc.Monthly.Equal(dec("511.00")), "got %s", acc.Monthly)

	assert.True(t, breakdown.TotalMonthly.Equal(dec("581.08")), "got %s", breakdown.TotalMonthly)
	assert.True(t, breakdown.AlreadyWasted.IsZero(), "idleness start unknown, nothing to extrapolate")
}

func TestEstimateForwardingRuleTieredCount(t *testing.T) {
	reg := NewRegistry(DefaultSnapshot())

	breakdown, err := reg.Estimate(ModelForwardingRule, Input{
		Resource: types.Resource{ID: "fr-1", Kind: types.KindForwardingRule},
		Params:   map[string]any{"unit_count": 10},
		Now:      time.Now(),
	})
	require.NoError(t, err)

	// 0.075/hr × 730
	assert.True(t, breakdown.TotalMonthly.Equal(dec("54.75")), "got %s", breakdown.TotalMonthly)

	comp, ok := breakdown.Component(types.CostOverhead)
	require.True(t, ok)
	assert.Equal(t, "0.075", comp.Inputs["hourly"])
}

func TestEstimateStaticIPExtrapolatesOnlyWithKnownStateChange(t *testing.T) {
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	reg := NewRegistry(DefaultSnapshot())

	withTimestamp, err := reg.Estimate(ModelStaticIP, Input{
		Resource: types.Resource{
			ID:             "ip-1",
			Kind:           types.KindStaticIP,
			CreatedAt:      now.Add(-100 * 24 * time.Hour),
			StateChangedAt: now.Add(-30 * 24 * time.Hour),
		},
		Now: now,
	})
	require.NoError(t, err)
	assert.True(t, withTimestamp.TotalMonthly.Equal(dec("7.30")), "got %s", withTimestamp.TotalMonthly)
	assert.True(t, withTimestamp.AlreadyWasted.Equal(dec("7.2")), "got %s", withTimestamp.AlreadyWasted)

	withoutTimestamp, err := reg.Estimate(ModelStaticIP, Input{
		Resource: types.Resource{
			ID:        "ip-2",
			Kind:      types.KindStaticIP,
			CreatedAt: now.Add(-100 * 24 * time.Hour),
		},
		Now: now,
	})
	require.NoError(t, err)
	assert.True(t, withoutTimestamp.AlreadyWasted.IsZero(),
		"unassignment time unknown, nothing extrapolated")
}

func TestEstimateRightsizing(t *testing.T) {
	reg := NewRegistry(DefaultSnapshot())

	resource := types.Resource{
		ID:         "vm-big",
		Kind:       types.KindVMInstance,
		Attributes: map[string]any{types.AttrMachineType: "m5.xlarge"},
	}

	down, err := reg.Estimate(ModelRightsizing, Input{
		Resource: resource,
		Params:   map[string]any{"recommended_machine_type": "m5.large"},
		Now:      time.Now(),
	})
	require.NoError(t, err)
	// (0.192 − 0.096) × 730
	assert.True(t, down.TotalMonthly.Equal(dec("70.08")), "got %s", down.TotalMonthly)

	up, err := reg.Estimate(ModelRightsizing, Input{
		Resource: types.Resource{
			ID:         "vm-small",
			Kind:       types.KindVMInstance,
			Attributes: map[string]any{types.AttrMachineType: "t3.micro"},
		},
		Params: map[string]any{"recommended_machine_type": "m5.xlarge"},
		Now:    time.Now(),
	})
	require.NoError(t, err)
	// recommendation costs more than current: delta clamps to zero
	assert.True(t, up.TotalMonthly.IsZero(), "got %s", up.TotalMonthly)
}

func TestEstimateStoppedDatabaseIncludesBackup(t *testing.T) {
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	reg := NewRegistry(DefaultSnapshot())

	breakdown, err := reg.Estimate(ModelStoppedDatabase, Input{
		Resource: types.Resource{
			ID:             "db-1",
			Kind:           types.KindDatabase,
			State:          "stopped",
			StateChangedAt: now.Add(-10 * 24 * time.Hour),
			CreatedAt:      now.Add(-300 * 24 * time.Hour),
			Attributes: map[string]any{
				types.AttrSizeGB:    100,
				types.AttrMediaType: types.MediaStandard,
				"backup_gb":         50,
			},
		},
		Now: now,
	})
	require.NoError(t, err)

	backup, ok := breakdown.Component(types.CostBackup)
	require.True(t, ok)
	assert.True(t, backup.Monthly.Equal(dec("1.30")), "got %s", backup.Monthly)
	assert.True(t, breakdown.TotalMonthly.Equal(dec("5.30")), "got %s", breakdown.TotalMonthly)
	assert.False(t, breakdown.AlreadyWasted.IsZero())
}

func TestEstimateTotalEqualsComponentSum(t *testing.T) {
	reg := NewRegistry(DefaultSnapshot())

	breakdown, err := reg.Estimate(ModelFullCompute, Input{
		Resource: types.Resource{
			ID:   "vm-1",
			Kind: types.KindVMInstance,
			Attributes: map[string]any{
				types.AttrMachineType:     "c5.large",
				types.AttrAcceleratorType: "nvidia-tesla-v100",
			},
		},
		Now: time.Now(),
	})
	require.NoError(t, err)

	sum := decimal.Zero
	for _, c := range breakdown.Components {
		sum = sum.Add(c.Monthly)
	}
	assert.True(t, breakdown.TotalMonthly.Equal(sum))
	assert.False(t, breakdown.TotalMonthly.IsNegative())
}

func TestEstimateUnknownModel(t *testing.T) {
	reg := NewRegistry(DefaultSnapshot())

	_, err := reg.Estimate("no-such-model", Input{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-model")
}

func TestRegisterDuplicateModel(t *testing.T) {
	reg := NewRegistry(DefaultSnapshot())

	err := reg.Register(ModelNone, modelNone)
	assert.Error(t, err)
}

func TestModelNoneIsZero(t *testing.T) {
	reg := NewRegistry(DefaultSnapshot())

	breakdown, err := reg.Estimate(ModelNone, Input{
		Resource: types.Resource{ID: "bucket-1", Kind: types.KindBucket},
	})
	require.NoError(t, err)
	assert.True(t, breakdown.IsZero())
	assert.Equal(t, "USD", breakdown.Currency)
}

func TestSnapshotFingerprint(t *testing.T) {
	a := DefaultSnapshot()
	b := DefaultSnapshot()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "same rates, same fingerprint")

	modified := NewSnapshot("other", a.TakenAt(), []Rate{
		computeRate("e2-standard-2", "0.099"),
	}, nil)
	assert.NotEqual(t, a.Fingerprint(), modified.Fingerprint())
}
