package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/velhola/gleaner/pricing"
	"github.com/velhola/gleaner/telemetry"
	"github.com/velhola/gleaner/types"
)

// Result reports one (resource, rule) evaluation. Finding is nil unless the
// predicate matched and the estimate survived suppression.
type Result struct {
	RuleID  string
	Outcome Outcome
	Finding *types.Finding

	// Degraded means at least one metric query failed, so an
	// Indeterminate outcome reflects infrastructure trouble rather than
	// lack of waste. The scan report keeps the two apart.
	Degraded bool
}

// Evaluator runs compiled rules against single resources and turns matches
// into findings. It holds no per-scan state and is safe for concurrent use.
type Evaluator struct {
	pricing *pricing.Registry
	logger  *telemetry.Logger
	now     func() time.Time
}

// NewEvaluator creates an evaluator backed by the given cost model registry.
func NewEvaluator(registry *pricing.Registry, logger *telemetry.Logger) *Evaluator {
	return &Evaluator{
		pricing: registry,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock pins the evaluator's clock, for tests.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Evaluate runs one rule against one resource. Missing evidence degrades the
// outcome to Indeterminate instead of failing; the returned error is
// reserved for rule configuration problems that only surface at estimate
// time, such as a missing required parameter.
func (e *Evaluator) Evaluate(ctx context.Context, rule Rule, env Env) (Result, error) {
	if rule.Predicate == nil {
		return Result{RuleID: rule.ID}, &ConfigError{RuleID: rule.ID, Err: fmt.Errorf("rule has no predicate")}
	}
	if env.Now.IsZero() {
		env.Now = e.now()
	}
	if env.Logger == nil {
		env.Logger = e.logger
	}
	env.evidence = nil
	env.stats = nil
	env.degraded = false
	env.noDataMatched = false
	env.unknownHealth = false

	outcome := rule.Predicate.Evaluate(ctx, &env)
	res := Result{RuleID: rule.ID, Outcome: outcome, Degraded: env.degraded}
	if outcome != True {
		return res, nil
	}

	breakdown, err := e.pricing.Estimate(rule.CostModel, pricing.Input{
		Resource: env.Resource,
		Stats:    env.stats,
		Params:   rule.Params,
		Now:      env.Now,
	})
	if err != nil {
		return res, &ConfigError{RuleID: rule.ID, Err: fmt.Errorf("cost model %s: %w", rule.CostModel, err)}
	}

	// A clamped right-sizing delta means the current shape is already the
	// cheapest option: matched, but nothing wasted.
	if rule.SuppressZeroCost && breakdown.TotalMonthly.IsZero() {
		return res, nil
	}

	res.Finding = e.buildFinding(rule, env, breakdown)
	return res, nil
}

func (e *Evaluator) buildFinding(rule Rule, env Env, cost types.CostBreakdown) *types.Finding {
	elapsed := env.Resource.StateAge(env.Now)
	if rule.ConfidenceSinceCreation {
		elapsed = env.Resource.Age(env.Now)
	}
	tier := rule.Confidence.Score(elapsed)
	if env.noDataMatched {
		tier = types.TierLow
	}
	if env.unknownHealth && tier > types.TierLow {
		// Unknown health usually means the health-check call failed, not
		// that the backend is down. Keep the finding, grade it softer.
		tier--
	}

	summary := rule.Description
	if summary == "" {
		summary = fmt.Sprintf("%s matched %s", env.Resource.Kind, rule.ID)
	}

	return &types.Finding{
		ResourceID:   env.Resource.ID,
		ResourceKind: env.Resource.Kind,
		ResourceName: env.Resource.Name,
		ScenarioID:   rule.ID,
		Provider:     env.Resource.Provider,
		AccountID:    env.Resource.AccountID,
		Region:       env.Resource.Region,
		Summary:      summary,
		Cost:         cost,
		Confidence:   tier,
		Evidence:     env.evidence,
		DetectedAt:   env.Now,
	}
}
