package pricing

import (
	"fmt"
	"time"

	"github.com/velhola/gleaner/metrics"
	"github.com/velhola/gleaner/types"
)

// Input is everything a cost model may draw on: the resource under
// evaluation, any metric stats the predicate already fetched, and the
// scenario's parameters.
type Input struct {
	Resource types.Resource
	Stats    map[string]metrics.Stats
	Params   map[string]any
	Now      time.Time
}

// Model turns an Input into an itemized breakdown against a snapshot.
type Model func(in Input, s *Snapshot) (types.CostBreakdown, error)

// Registry resolves scenario cost-model references to Model functions bound
// to one pricing snapshot.
type Registry struct {
	snapshot *Snapshot
	models   map[string]Model
}

// NewRegistry creates a registry over a snapshot with the built-in models
// installed.
func NewRegistry(snapshot *Snapshot) *Registry {
	r := &Registry{
		snapshot: snapshot,
		models:   make(map[string]Model),
	}
	registerBuiltins(r)
	return r
}

// Register adds a model under a reference name. Re-registering a name is a
// configuration bug, not an override.
func (r *Registry) Register(name string, m Model) error {
	if name == "" {
		return fmt.Errorf("cost model name must not be empty")
	}
	if _, exists := r.models[name]; exists {
		return fmt.Errorf("cost model %q already registered", name)
	}
	r.models[name] = m
	return nil
}

// Has reports whether a model reference resolves. Rule loading uses it to
// reject scenarios pointing at nothing before a scan starts.
func (r *Registry) Has(name string) bool {
	_, ok := r.models[name]
	return ok
}

// Snapshot returns the bound pricing snapshot.
func (r *Registry) Snapshot() *Snapshot {
	return r.snapshot
}

// Estimate runs the referenced model. The returned breakdown always carries
// the snapshot currency and a non-negative total.
func (r *Registry) Estimate(ref string, in Input) (types.CostBreakdown, error) {
	model, ok := r.models[ref]
	if !ok {
		return types.CostBreakdown{}, fmt.Errorf("unknown cost model %q", ref)
	}

	breakdown, err := model(in, r.snapshot)
	if err != nil {
		return types.CostBreakdown{}, fmt.Errorf("cost model %q: %w", ref, err)
	}

	if breakdown.Currency == "" {
		breakdown.Currency = r.snapshot.Currency()
	}
	if breakdown.TotalMonthly.IsNegative() {
		return types.CostBreakdown{}, fmt.Errorf("cost model %q produced negative total %s", ref, breakdown.TotalMonthly)
	}
	return breakdown, nil
}
