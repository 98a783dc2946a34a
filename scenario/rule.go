package scenario

import (
	"fmt"
	"sort"

	"github.com/velhola/gleaner/confidence"
	"github.com/velhola/gleaner/types"
)

// ConfigError marks one scenario definition as unusable. Bad definitions are
// rejected individually at load time; the rest of the set still runs.
type ConfigError struct {
	RuleID string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.RuleID == "" {
		return "scenario config: " + e.Err.Error()
	}
	return fmt.Sprintf("scenario %s: %v", e.RuleID, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Rule is one compiled waste scenario: a predicate tree over resource, graph
// and metric state, the cost model that prices a match, and the policy that
// grades its confidence. Rules are read-only for the duration of a scan.
type Rule struct {
	ID          string
	Kind        types.Kind
	Description string
	Predicate   Predicate
	CostModel   string
	Confidence  confidence.Policy

	// ConfidenceSinceCreation grades confidence on time since creation
	// instead of time in the current state.
	ConfidenceSinceCreation bool

	// Params are operator-tunable inputs handed to the cost model.
	Params map[string]any

	// NoDataMatches lets an idle rule treat an empty metric window as a
	// match, graded at Low confidence. Meant for resources too new to
	// have ever reported the metric.
	NoDataMatches bool

	// SuppressZeroCost drops matches whose estimate clamps to zero, such
	// as a right-sizing recommendation that would cost more than the
	// current shape.
	SuppressZeroCost bool
}

// NeedsGraph reports whether the rule's predicate consults the dependency
// graph.
func (r Rule) NeedsGraph() bool {
	return r.Predicate != nil && r.Predicate.usesGraph()
}

// Set is an immutable, versioned collection of rules keyed by resource kind.
// The version folds in a content hash so that findings produced by a stale
// rule set are detectable after the fact.
type Set struct {
	version  string
	rules    []Rule
	byKind   map[types.Kind][]Rule
	rejected []ConfigError
}

// Version identifies this exact rule set content.
func (s *Set) Version() string { return s.version }

// Len returns the number of accepted rules.
func (s *Set) Len() int { return len(s.rules) }

// Rules returns all accepted rules in declaration order.
func (s *Set) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// ForKind returns the rules that apply to one resource kind.
func (s *Set) ForKind(kind types.Kind) []Rule {
	rules := s.byKind[kind]
	if len(rules) == 0 {
		return nil
	}
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Kinds returns the sorted resource kinds this set covers.
func (s *Set) Kinds() []types.Kind {
	kinds := make([]types.Kind, 0, len(s.byKind))
	for k := range s.byKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// NeedsGraph reports whether any rule for the kind consults the dependency
// graph. The orchestrator uses this to decide which kinds wait on the graph
// build barrier.
func (s *Set) NeedsGraph(kind types.Kind) bool {
	for _, r := range s.byKind[kind] {
		if r.NeedsGraph() {
			return true
		}
	}
	return false
}

// Rejected lists the definitions that failed validation at load time.
func (s *Set) Rejected() []ConfigError {
	out := make([]ConfigError, len(s.rejected))
	copy(out, s.rejected)
	return out
}
