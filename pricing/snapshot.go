// Package pricing estimates the monthly cost of wasted resources. Rates live
// in an immutable point-in-time snapshot; scenarios reference named cost
// models that compose per-component helpers over it. All money math is
// decimal; floats never touch a rate.
package pricing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Rate components. A RateKey's Component picks the table, its SKU the row.
const (
	ComponentCompute     = "compute"
	ComponentAccelerator = "accelerator"
	ComponentStorage     = "storage"
	ComponentNetwork     = "network"
	ComponentFixed       = "fixed"
)

// SKUDefault is the fallback row used when a SKU has no explicit rate.
// Estimates from it are upper-bound guesses, good enough to rank findings.
const SKUDefault = "default"

// RateKey identifies one priced SKU.
type RateKey struct {
	Component string `json:"component"`
	SKU       string `json:"sku"`
	Region    string `json:"region,omitempty"`
}

func (k RateKey) String() string {
	return k.Component + "/" + k.SKU + "/" + k.Region
}

// Rate is one unit price.
type Rate struct {
	Key   RateKey         `json:"key"`
	Price decimal.Decimal `json:"price"`
	Unit  string          `json:"unit"`
}

// FixedTier prices discrete always-on units the way load balancer forwarding
// rules are billed: the first IncludedUnits share one aggregate BaseRate, and
// each unit past that adds IncrementRate.
type FixedTier struct {
	IncludedUnits int64           `json:"included_units"`
	BaseRate      decimal.Decimal `json:"base_rate"`
	IncrementRate decimal.Decimal `json:"increment_rate"`
}

// Snapshot is a point-in-time pricing dataset. It is immutable once built so
// every evaluation in a scan prices against the same numbers.
type Snapshot struct {
	id       string
	currency string
	takenAt  time.Time
	rates    map[string]Rate
	fixed    map[string]FixedTier
}

// NewSnapshot builds a snapshot from rate rows and fixed-cost tiers.
func NewSnapshot(id string, takenAt time.Time, rates []Rate, fixed map[string]FixedTier) *Snapshot {
	s := &Snapshot{
		id:       id,
		currency: "USD",
		takenAt:  takenAt,
		rates:    make(map[string]Rate, len(rates)),
		fixed:    make(map[string]FixedTier, len(fixed)),
	}
	for _, r := range rates {
		s.rates[r.Key.String()] = r
	}
	for sku, tier := range fixed {
		s.fixed[sku] = tier
	}
	return s
}

// ID returns the snapshot identifier.
func (s *Snapshot) ID() string { return s.id }

// Currency returns the snapshot currency.
func (s *Snapshot) Currency() string { return s.currency }

// TakenAt returns when the snapshot was captured.
func (s *Snapshot) TakenAt() time.Time { return s.takenAt }

// Rate resolves a unit price, falling back from the exact region to the
// region-less row to the component's default SKU. Estimation keeps working
// when a machine type is missing from the table; it just gets coarser.
func (s *Snapshot) Rate(key RateKey) (Rate, bool) {
	if r, ok := s.rates[key.String()]; ok {
		return r, true
	}
	if key.Region != "" {
		if r, ok := s.rates[RateKey{Component: key.Component, SKU: key.SKU}.String()]; ok {
			return r, true
		}
	}
	if key.SKU != SKUDefault {
		if r, ok := s.rates[RateKey{Component: key.Component, SKU: SKUDefault}.String()]; ok {
			return r, true
		}
	}
	return Rate{}, false
}

// FixedTierFor returns the tiered fixed-cost rule for a SKU.
func (s *Snapshot) FixedTierFor(sku string) (FixedTier, bool) {
	tier, ok := s.fixed[sku]
	return tier, ok
}

// Fingerprint is a content hash of the snapshot, recorded on findings so a
// report can be traced back to the exact rates that produced it.
func (s *Snapshot) Fingerprint() string {
	lines := make([]string, 0, len(s.rates)+len(s.fixed))
	for k, r := range s.rates {
		lines = append(lines, fmt.Sprintf("%s=%s/%s", k, r.Price.String(), r.Unit))
	}
	for sku, t := range s.fixed {
		lines = append(lines, fmt.Sprintf("fixed:%s=%d/%s/%s", sku, t.IncludedUnits, t.BaseRate.String(), t.IncrementRate.String()))
	}
	sort.Strings(lines)

	h := sha256.New()
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
