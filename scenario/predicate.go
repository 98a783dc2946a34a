package scenario

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/velhola/gleaner/graph"
	"github.com/velhola/gleaner/metrics"
	"github.com/velhola/gleaner/telemetry"
	"github.com/velhola/gleaner/types"
)

// GraphView is the slice of the dependency graph that predicates consult.
// *graph.Graph satisfies it; tests substitute fixtures.
type GraphView interface {
	HasTarget(r types.Resource) bool
	TargetExists(r types.Resource) bool
	Corrupt(id string) bool
	BackendCount(backendServiceID string) int
	AllBackendsUnhealthy(backendServiceID string, snapshot graph.HealthSnapshot) graph.HealthVerdict
	DuplicateTargets() map[string][]string
}

// MetricQuerier answers windowed metric queries. *metrics.Aggregator
// satisfies it.
type MetricQuerier interface {
	Aggregate(ctx context.Context, q metrics.Query) (metrics.Stats, error)
}

// Env carries everything one predicate evaluation may consult: the resource
// under test plus the read-only collaborators built before evaluation began.
// Graph and Health may be nil for kinds that never need them; predicates that
// do need them then evaluate to Indeterminate rather than guessing.
type Env struct {
	Resource types.Resource
	Graph    GraphView
	Metrics  MetricQuerier
	Health   graph.HealthSnapshot
	Now      time.Time
	Logger   *telemetry.Logger

	evidence      []types.Evidence
	stats         map[string]metrics.Stats
	degraded      bool
	noDataMatched bool
	unknownHealth bool
}

func (e *Env) addEvidence(source, detail, value string) {
	e.evidence = append(e.evidence, types.Evidence{Source: source, Detail: detail, Value: value})
}

func (e *Env) recordStats(s metrics.Stats) {
	if e.stats == nil {
		e.stats = make(map[string]metrics.Stats)
	}
	e.stats[s.Metric] = s
}

// checkpoint and rollback let composites discard evidence collected on
// branches that did not contribute to the final outcome.
func (e *Env) checkpoint() int { return len(e.evidence) }

func (e *Env) rollback(mark int) { e.evidence = e.evidence[:mark] }

// Predicate is one node of a scenario condition tree. Implementations never
// return errors: anything that prevents a clean answer degrades to
// Indeterminate and is recorded on the Env.
type Predicate interface {
	Evaluate(ctx context.Context, env *Env) Outcome

	// usesGraph reports whether this subtree consults the dependency
	// graph, so the orchestrator knows to build one before evaluation.
	usesGraph() bool
}

type andPredicate struct {
	children []Predicate
}

// Evaluate short-circuits on the first False so that metric children placed
// after cheap descriptor checks are only queried when reached.
func (p andPredicate) Evaluate(ctx context.Context, env *Env) Outcome {
	mark := env.checkpoint()
	out := True
	for _, c := range p.children {
		switch c.Evaluate(ctx, env) {
		case False:
			env.rollback(mark)
			return False
		case Indeterminate:
			out = Indeterminate
		}
	}
	if out == Indeterminate {
		env.rollback(mark)
	}
	return out
}

func (p andPredicate) usesGraph() bool { return anyUsesGraph(p.children) }

type orPredicate struct {
	children []Predicate
}

// Evaluate returns True on the first matching child. Indeterminate children
// are skipped as long as some sibling produced a definite answer; only when
// every branch came back unknown is the disjunction itself unknown.
func (p orPredicate) Evaluate(ctx context.Context, env *Env) Outcome {
	sawFalse := false
	for _, c := range p.children {
		mark := env.checkpoint()
		switch c.Evaluate(ctx, env) {
		case True:
			return True
		case False:
			sawFalse = true
		}
		env.rollback(mark)
	}
	if sawFalse {
		return False
	}
	return Indeterminate
}

func (p orPredicate) usesGraph() bool { return anyUsesGraph(p.children) }

type notPredicate struct {
	child Predicate
}

func (p notPredicate) Evaluate(ctx context.Context, env *Env) Outcome {
	mark := env.checkpoint()
	out := p.child.Evaluate(ctx, env)
	env.rollback(mark)
	switch out {
	case True:
		return False
	case False:
		return True
	default:
		return Indeterminate
	}
}

func (p notPredicate) usesGraph() bool { return p.child.usesGraph() }

func anyUsesGraph(children []Predicate) bool {
	for _, c := range children {
		if c.usesGraph() {
			return true
		}
	}
	return false
}

// statePredicate compares one descriptor field against a literal or a
// prefix. Field selectors: "state", "label:<key>", "attr:<key>".
type statePredicate struct {
	field  string
	value  string
	prefix string
}

func (p statePredicate) Evaluate(_ context.Context, env *Env) Outcome {
	got, ok := fieldValue(env.Resource, p.field)
	if !ok {
		return False
	}
	if p.prefix != "" {
		if strings.HasPrefix(got, p.prefix) {
			env.addEvidence("state", p.field+" starts with "+p.prefix, got)
			return True
		}
		return False
	}
	if got == p.value {
		env.addEvidence("state", p.field+" is "+p.value, got)
		return True
	}
	return False
}

func (p statePredicate) usesGraph() bool { return false }

func fieldValue(r types.Resource, field string) (string, bool) {
	switch {
	case field == "" || field == "state":
		return r.State, true
	case strings.HasPrefix(field, "label:"):
		v, ok := r.Labels[strings.TrimPrefix(field, "label:")]
		return v, ok
	case strings.HasPrefix(field, "attr:"):
		key := strings.TrimPrefix(field, "attr:")
		if v, ok := r.StrAttr(key); ok {
			return v, true
		}
		if v, ok := r.BoolAttr(key); ok {
			return strconv.FormatBool(v), true
		}
		if v, ok := r.IntAttr(key); ok {
			return strconv.FormatInt(v, 10), true
		}
		return "", false
	}
	return "", false
}

// agePredicate checks elapsed time since creation or since the last state
// transition. A descriptor without the timestamp is simply not old enough.
type agePredicate struct {
	min        time.Duration
	sinceState bool
}

func (p agePredicate) Evaluate(_ context.Context, env *Env) Outcome {
	var elapsed time.Duration
	var basis string
	if p.sinceState {
		elapsed = env.Resource.StateAge(env.Now)
		basis = "in current state"
	} else {
		elapsed = env.Resource.Age(env.Now)
		basis = "since creation"
	}
	if elapsed < p.min {
		return False
	}
	env.addEvidence("age",
		fmt.Sprintf("%s for %dd, threshold %dd", basis, days(elapsed), days(p.min)),
		elapsed.Truncate(time.Hour).String())
	return True
}

func (p agePredicate) usesGraph() bool { return false }

func days(d time.Duration) int { return int(d.Hours() / 24) }

// metricPredicate delegates to the metric aggregator and compares the
// reduced value against a threshold. A NoData window is Indeterminate unless
// the rule opted into absence-implies-idle; any query failure also degrades
// to Indeterminate so one throttled API call cannot abort a scan.
type metricPredicate struct {
	metric        string
	window        time.Duration
	alignment     time.Duration
	reducer       metrics.Reducer
	threshold     float64
	below         bool
	noDataMatches bool
}

func (p metricPredicate) Evaluate(ctx context.Context, env *Env) Outcome {
	if env.Metrics == nil {
		env.degraded = true
		return Indeterminate
	}

	stats, err := env.Metrics.Aggregate(ctx, metrics.Query{
		ResourceID: env.Resource.ID,
		Metric:     p.metric,
		Window:     p.window,
		Alignment:  p.alignment,
		Reducer:    p.reducer,
	})
	if errors.Is(err, metrics.ErrNoData) {
		if p.noDataMatches {
			env.noDataMatched = true
			env.addEvidence("metric",
				fmt.Sprintf("%s: no samples over %dd window, absence treated as idle", p.metric, days(p.window)),
				"no_data")
			return True
		}
		return Indeterminate
	}
	if err != nil {
		env.degraded = true
		if env.Logger != nil {
			env.Logger.LogMetricDegraded(ctx, env.Resource.ID, p.metric, err)
		}
		return Indeterminate
	}

	env.recordStats(stats)
	matched := stats.Value > p.threshold
	cmp := "above"
	if p.below {
		matched = stats.Value < p.threshold
		cmp = "below"
	}
	if !matched {
		return False
	}
	env.addEvidence("metric",
		fmt.Sprintf("%s %s over %dd %s %s", p.metric, p.reducer, days(p.window), cmp, trimFloat(p.threshold)),
		trimFloat(stats.Value))
	return True
}

func (p metricPredicate) usesGraph() bool { return false }

func trimFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// targetMissingPredicate matches resources whose target chain does not fully
// resolve. Resources without a target reference never match, and corrupt
// chains are left to the integrity report instead of masquerading as
// orphans.
type targetMissingPredicate struct{}

func (targetMissingPredicate) Evaluate(_ context.Context, env *Env) Outcome {
	if env.Graph == nil {
		return Indeterminate
	}
	r := env.Resource
	if !env.Graph.HasTarget(r) {
		return False
	}
	if env.Graph.Corrupt(r.ID) {
		return Indeterminate
	}
	if env.Graph.TargetExists(r) {
		return False
	}
	target, _ := r.StrAttr(types.AttrTarget)
	env.addEvidence("graph", "target chain does not resolve", target)
	return True
}

func (targetMissingPredicate) usesGraph() bool { return true }

type backendCountPredicate struct {
	equals int
}

func (p backendCountPredicate) Evaluate(_ context.Context, env *Env) Outcome {
	if env.Graph == nil {
		return Indeterminate
	}
	n := env.Graph.BackendCount(env.Resource.ID)
	if n != p.equals {
		return False
	}
	env.addEvidence("graph", fmt.Sprintf("backend count is %d", p.equals), strconv.Itoa(n))
	return True
}

func (p backendCountPredicate) usesGraph() bool { return true }

// allBackendsUnhealthyPredicate needs both the graph and a health snapshot;
// without either there is no evidence of an outage, only ignorance.
type allBackendsUnhealthyPredicate struct{}

func (allBackendsUnhealthyPredicate) Evaluate(_ context.Context, env *Env) Outcome {
	if env.Graph == nil || env.Health == nil {
		return Indeterminate
	}
	verdict := env.Graph.AllBackendsUnhealthy(env.Resource.ID, env.Health)
	if !verdict.AllUnhealthy {
		return False
	}
	if verdict.UnknownSeen {
		env.unknownHealth = true
	}
	env.addEvidence("graph", "every backend reports unhealthy",
		strconv.Itoa(env.Graph.BackendCount(env.Resource.ID)))
	return True
}

func (allBackendsUnhealthyPredicate) usesGraph() bool { return true }

// duplicateTargetPredicate matches forwarding rules that share their
// resolved terminal with at least one other rule.
type duplicateTargetPredicate struct{}

func (duplicateTargetPredicate) Evaluate(_ context.Context, env *Env) Outcome {
	if env.Graph == nil {
		return Indeterminate
	}
	for terminal, ruleIDs := range env.Graph.DuplicateTargets() {
		for _, id := range ruleIDs {
			if id == env.Resource.ID {
				env.addEvidence("graph",
					fmt.Sprintf("target %s shared by %d forwarding rules", terminal, len(ruleIDs)),
					strings.Join(ruleIDs, ","))
				return True
			}
		}
	}
	return False
}

func (duplicateTargetPredicate) usesGraph() bool { return true }
