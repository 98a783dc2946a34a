package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/velhola/gleaner/graph"
	"github.com/velhola/gleaner/providers"
	"github.com/velhola/gleaner/scenario"
	"github.com/velhola/gleaner/telemetry"
	"github.com/velhola/gleaner/types"
)

// buildGraphs constructs one dependency graph per account, as a barrier
// before evaluation: chain and backend predicates assume a fully
// populated node set. Accounts whose kinds never consult the graph skip
// the build.
func (o *Orchestrator) buildGraphs(ctx context.Context, sc *scan) {
	if !o.needsGraph(sc) {
		return
	}

	ctx, span := telemetry.StartBuildGraph(ctx, o.tracer)
	sc.graphs = make(map[string]*graph.Graph)
	sc.healths = make(map[string]graph.HealthSnapshot)

	byAccount := make(map[string][]types.Resource)
	for _, sess := range sc.sessions {
		account := sess.enum.AccountID()
		byAccount[account] = append(byAccount[account], sess.resources...)
	}

	var nodes, edges, corrupt int64
	for account, resources := range byAccount {
		g := graph.Build(resources)
		sc.graphs[account] = g
		nodes += int64(g.NodeCount())
		edges += int64(g.EdgeCount())

		// Integrity problems exclude the malformed chain from orphan
		// scenarios; everything else on those resources still runs.
		for _, integrity := range g.IntegrityErrors() {
			corrupt++
			sc.report.Warnings = append(sc.report.Warnings,
				fmt.Sprintf("account %s: %v", account, integrity))
			telemetry.RecordGraphIntegrityEvent(span, integrity.ResourceID, integrity.Detail, integrity.Error())
			o.logger.WithContext(ctx).Warn().
				Str("account_id", account).
				Str("resource_id", integrity.ResourceID).
				Msg("dependency chain excluded for integrity problem")
		}
	}

	o.captureHealth(ctx, sc)
	telemetry.EndBuildGraph(span, nodes, edges, corrupt)
}

// needsGraph reports whether any scanned kind has a rule that consults
// the dependency graph.
func (o *Orchestrator) needsGraph(sc *scan) bool {
	for key, cell := range sc.coverage {
		if cell.outcome == types.KindSkipped {
			continue
		}
		if sc.set.NeedsGraph(key.kind) {
			return true
		}
	}
	return false
}

// captureHealth snapshots backend health once per session, merged per
// account. A failed snapshot leaves health unknown for that account;
// health predicates then answer Indeterminate instead of inventing an
// outage.
func (o *Orchestrator) captureHealth(ctx context.Context, sc *scan) {
	for _, sess := range sc.sessions {
		reporter, ok := sess.enum.(providers.HealthReporter)
		if !ok {
			continue
		}

		snapshot, err := reporter.BackendHealth(ctx)
		if err != nil {
			o.logger.WithContext(ctx).Warn().
				Err(err).
				Str("account_id", sess.enum.AccountID()).
				Str("region", sess.enum.Region()).
				Msg("backend health snapshot failed")
			sc.report.Warnings = append(sc.report.Warnings,
				fmt.Sprintf("backend health unavailable for %s/%s: %v",
					sess.enum.AccountID(), sess.enum.Region(), err))
			continue
		}

		account := sess.enum.AccountID()
		merged := sc.healths[account]
		if merged == nil {
			merged = make(graph.HealthSnapshot, len(snapshot))
			sc.healths[account] = merged
		}
		for service, backends := range snapshot {
			merged[service] = append(merged[service], backends...)
		}
	}
}

// evaluate runs every applicable (resource, rule) pair through the
// bounded pool. Units are independent: they share only the read-only
// graph, health snapshot and rule set built before this phase began.
func (o *Orchestrator) evaluate(ctx context.Context, sc *scan) {
	units := o.collectUnits(sc)
	if len(units) == 0 {
		return
	}

	ctx, span := telemetry.StartEvaluate(ctx, o.tracer)
	slots := accountSlots(sc, o.opts.AccountCap)

	var (
		mu            sync.Mutex
		evaluations   int64
		matched       int64
		indeterminate int64
		warned        = make(map[string]bool)
	)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(o.opts.Parallelism)
	for _, u := range units {
		group.Go(func() error {
			account := u.sess.enum.AccountID()
			if err := acquire(gctx, slots[account]); err != nil {
				// Deadline hit while waiting for an account slot; the
				// unit is abandoned, not evaluated.
				mu.Lock()
				markAbandoned(sc, u)
				mu.Unlock()
				return nil
			}
			defer func() { <-slots[account] }()

			result, err := o.evaluateUnit(gctx, sc, u)

			mu.Lock()
			defer mu.Unlock()
			evaluations++
			if err != nil {
				// Rule configuration problems surface once per rule,
				// not once per resource.
				if !warned[u.rule.ID] {
					warned[u.rule.ID] = true
					sc.report.Warnings = append(sc.report.Warnings, err.Error())
				}
				return nil
			}
			switch result.Outcome {
			case scenario.True:
				matched++
			case scenario.Indeterminate:
				indeterminate++
				cell := sc.coverage[kindKey{account, u.res.Kind}]
				if cell != nil {
					cell.indeterminate++
				}
			}
			if result.Finding != nil {
				sc.findings = append(sc.findings, result.Finding)
			}
			return nil
		})
	}
	_ = group.Wait()

	if ctx.Err() != nil {
		sc.deadline = true
	}
	telemetry.EndEvaluate(span, evaluations, matched, indeterminate)
}

func (o *Orchestrator) collectUnits(sc *scan) []unit {
	var units []unit
	for _, sess := range sc.sessions {
		for _, res := range sess.resources {
			for _, rule := range sc.set.ForKind(res.Kind) {
				units = append(units, unit{sess: sess, res: res, rule: rule})
			}
		}
	}
	return units
}

// evaluateUnit runs one rule against one resource with the collaborators
// scoped to the resource's account.
func (o *Orchestrator) evaluateUnit(ctx context.Context, sc *scan, u unit) (scenario.Result, error) {
	if err := ctx.Err(); err != nil {
		return scenario.Result{RuleID: u.rule.ID, Outcome: scenario.Indeterminate, Degraded: true}, nil
	}

	account := u.sess.enum.AccountID()
	env := scenario.Env{
		Resource: u.res,
		Metrics:  u.sess.querier,
		Now:      o.now(),
	}
	// A nil *graph.Graph must stay a nil interface so predicates see
	// "no graph" rather than a typed nil.
	if g := sc.graphs[account]; g != nil {
		env.Graph = g
	}
	if h := sc.healths[account]; h != nil {
		env.Health = h
	}

	started := o.now()
	result, err := o.evaluator.Evaluate(ctx, u.rule, env)
	if o.metrics != nil {
		o.metrics.RecordRuleEvaluated(ctx, u.rule.ID, string(u.res.Kind), result.Outcome.String())
		o.metrics.RecordEvaluateDuration(ctx, string(u.res.Kind), float64(o.now().Sub(started).Milliseconds()))
		if result.Degraded {
			o.metrics.RecordMetricQueryFailure(ctx, u.rule.ID, string(u.res.Kind))
		}
	}
	return result, err
}

// markAbandoned counts a unit the deadline cut off. Its kind degrades
// to Partial at aggregation: the absence of a finding for it proves
// nothing.
func markAbandoned(sc *scan, u unit) {
	cell := sc.coverage[kindKey{u.sess.enum.AccountID(), u.res.Kind}]
	if cell != nil {
		cell.indeterminate++
	}
}

// accountSlots builds one semaphore per account.
func accountSlots(sc *scan, capacity int) map[string]chan struct{} {
	slots := make(map[string]chan struct{})
	for _, sess := range sc.sessions {
		account := sess.enum.AccountID()
		if _, ok := slots[account]; !ok {
			slots[account] = make(chan struct{}, capacity)
		}
	}
	return slots
}

func acquire(ctx context.Context, slot chan struct{}) error {
	select {
	case slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
