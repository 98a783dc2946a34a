package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultSnapshot returns the built-in list-price table. It is deliberately
// coarse (on-demand list prices, no committed-use discounts) because its
// job is ranking findings, not invoicing. Deployments with a pricing feed
// swap in their own snapshot.
func DefaultSnapshot() *Snapshot {
	taken := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	rates := []Rate{
		// Compute, USD per hour
		computeRate("e2-standard-2", "0.067"),
		computeRate("e2-standard-4", "0.134"),
		computeRate("n1-standard-1", "0.0475"),
		computeRate("n1-standard-2", "0.095"),
		computeRate("n2-standard-2", "0.0971"),
		computeRate("t3.micro", "0.0104"),
		computeRate("t3.medium", "0.0416"),
		computeRate("m5.large", "0.096"),
		computeRate("m5.xlarge", "0.192"),
		computeRate("c5.large", "0.085"),
		computeRate("r5.large", "0.126"),
		computeRate("db.t3.medium", "0.068"),
		computeRate(SKUDefault, "0.05"),

		// Accelerators, USD per hour per unit
		acceleratorRate("nvidia-tesla-t4", "0.35"),
		acceleratorRate("nvidia-tesla-v100", "2.48"),
		acceleratorRate("nvidia-tesla-a100", "2.934"),
		acceleratorRate(SKUDefault, "0.50"),

		// Storage, USD per GB-month
		storageRate("standard", "0.04"),
		storageRate("balanced", "0.10"),
		storageRate("premium", "0.17"),
		storageRate("snapshot", "0.026"),
		storageRate(SKUDefault, "0.10"),

		// Network egress, USD per GB
		networkRate("standard", "0.085"),
		networkRate("premium", "0.12"),
		networkRate(SKUDefault, "0.09"),
	}

	fixed := map[string]FixedTier{
		// First five rules billed as one flat block, each extra rule adds
		// its own hourly increment.
		"forwarding_rule": {
			IncludedUnits: 5,
			BaseRate:      decimal.RequireFromString("0.025"),
			IncrementRate: decimal.RequireFromString("0.010"),
		},
		"static_ip": {
			IncludedUnits: 0,
			BaseRate:      decimal.Zero,
			IncrementRate: decimal.RequireFromString("0.01"),
		},
		"nat_gateway": {
			IncludedUnits: 0,
			BaseRate:      decimal.Zero,
			IncrementRate: decimal.RequireFromString("0.045"),
		},
		"health_check": {
			IncludedUnits: 0,
			BaseRate:      decimal.Zero,
			IncrementRate: decimal.RequireFromString("0.0007"),
		},
	}

	return NewSnapshot("builtin-2025-06", taken, rates, fixed)
}

func computeRate(sku, price string) Rate {
	return Rate{
		Key:   RateKey{Component: ComponentCompute, SKU: sku},
		Price: decimal.RequireFromString(price),
		Unit:  "hour",
	}
}

func acceleratorRate(sku, price string) Rate {
	return Rate{
		Key:   RateKey{Component: ComponentAccelerator, SKU: sku},
		Price: decimal.RequireFromString(price),
		Unit:  "hour",
	}
}

func storageRate(sku, price string) Rate {
	return Rate{
		Key:   RateKey{Component: ComponentStorage, SKU: sku},
		Price: decimal.RequireFromString(price),
		Unit:  "gb_month",
	}
}

func networkRate(sku, price string) Rate {
	return Rate{
		Key:   RateKey{Component: ComponentNetwork, SKU: sku},
		Price: decimal.RequireFromString(price),
		Unit:  "gb",
	}
}
