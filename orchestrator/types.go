package orchestrator

import (
	"github.com/velhola/gleaner/graph"
	"github.com/velhola/gleaner/providers"
	"github.com/velhola/gleaner/scenario"
	"github.com/velhola/gleaner/types"
)

// Phase is where a scan currently stands. Phases advance strictly
// forward; a scan that reaches a terminal report has passed through all
// of them.
type Phase string

const (
	PhasePending     Phase = "pending"
	PhaseEnumerating Phase = "enumerating"
	PhaseEvaluating  Phase = "evaluating"
	PhaseAggregating Phase = "aggregating"
	PhaseDone        Phase = "done"
)

// RuleSource yields the rule set a scan evaluates against.
// *scenario.Store implements it with hot reload; StaticRules pins one
// compiled set for one-shot scans.
type RuleSource interface {
	Current() *scenario.Set
}

// StaticRules adapts a fixed rule set to RuleSource.
type StaticRules struct {
	Set *scenario.Set
}

// Current returns the pinned set.
func (s StaticRules) Current() *scenario.Set { return s.Set }

// session binds one opened enumerator to the resources it produced and
// the metric querier derived from it. Metric queries must go through
// the session that enumerated the resource, because the querier is
// scoped to that session's region.
type session struct {
	enum      providers.Enumerator
	querier   scenario.MetricQuerier
	resources []types.Resource
}

// kindKey identifies one coverage cell of the scan report.
type kindKey struct {
	account string
	kind    types.Kind
}

// kindState accumulates what happened to one coverage cell while the
// scan runs. It is folded into types.KindCoverage at aggregation.
type kindState struct {
	outcome       types.KindOutcome
	reason        string
	resources     int
	findings      int
	indeterminate int
}

// unit is one (resource, rule) evaluation. Units are independent; the
// pool runs them in any order.
type unit struct {
	sess *session
	res  types.Resource
	rule scenario.Rule
}

// scan is the state of one run, threaded through the phases.
type scan struct {
	id       string
	set      *scenario.Set
	sessions []*session
	coverage map[kindKey]*kindState
	graphs   map[string]*graph.Graph
	healths  map[string]graph.HealthSnapshot
	report   types.ScanReport
	findings []*types.Finding
	deadline bool
}

func (sc *scan) totalResources() int {
	var n int
	for _, sess := range sc.sessions {
		n += len(sess.resources)
	}
	return n
}

// accounts returns the distinct account IDs across sessions, in session
// order.
func (sc *scan) accounts() []string {
	seen := make(map[string]bool)
	var out []string
	for _, sess := range sc.sessions {
		id := sess.enum.AccountID()
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
