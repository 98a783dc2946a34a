package scenario

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/velhola/gleaner/confidence"
	"github.com/velhola/gleaner/metrics"
	"github.com/velhola/gleaner/types"
)

// ModelChecker validates cost model references at load time.
// *pricing.Registry satisfies it.
type ModelChecker interface {
	Has(name string) bool
}

type fileSpec struct {
	Version   int        `yaml:"version"`
	Scenarios []ruleSpec `yaml:"scenarios"`
}

type ruleSpec struct {
	ID               string         `yaml:"id"`
	Kind             string         `yaml:"kind"`
	Description      string         `yaml:"description"`
	Predicate        *predicateSpec `yaml:"predicate"`
	CostModel        string         `yaml:"cost_model"`
	Confidence       []bandSpec     `yaml:"confidence"`
	ConfidenceBasis  string         `yaml:"confidence_basis"`
	Params           map[string]any `yaml:"params"`
	NoDataMatches    bool           `yaml:"no_data_matches"`
	SuppressZeroCost bool           `yaml:"suppress_zero_cost"`
}

type bandSpec struct {
	MinDays int    `yaml:"min_days"`
	Tier    string `yaml:"tier"`
}

// predicateSpec is one YAML node of the condition tree. Exactly one of the
// fields may be set; empty leaves are written as `target_missing: {}`.
type predicateSpec struct {
	All                  []predicateSpec   `yaml:"all"`
	Any                  []predicateSpec   `yaml:"any"`
	Not                  *predicateSpec    `yaml:"not"`
	StateEquals          *stateEqualsSpec  `yaml:"state_equals"`
	AgeAtLeast           *ageAtLeastSpec   `yaml:"age_at_least"`
	MetricBelow          *metricSpec       `yaml:"metric_below"`
	MetricAbove          *metricSpec       `yaml:"metric_above"`
	TargetMissing        *emptySpec        `yaml:"target_missing"`
	BackendCount         *backendCountSpec `yaml:"backend_count"`
	AllBackendsUnhealthy *emptySpec        `yaml:"all_backends_unhealthy"`
	DuplicateTarget      *emptySpec        `yaml:"duplicate_target"`
}

type emptySpec struct{}

type stateEqualsSpec struct {
	Field  string `yaml:"field"`
	Value  string `yaml:"value"`
	Prefix string `yaml:"prefix"`
}

type ageAtLeastSpec struct {
	Days  int    `yaml:"days"`
	Since string `yaml:"since"`
}

type metricSpec struct {
	Metric         string  `yaml:"metric"`
	WindowDays     int     `yaml:"window_days"`
	AlignmentHours int     `yaml:"alignment_hours"`
	Reducer        string  `yaml:"reducer"`
	Threshold      float64 `yaml:"threshold"`
}

type backendCountSpec struct {
	Equals *int `yaml:"equals"`
}

// LoadSet parses a scenario document and compiles every definition in it.
// Definitions that fail validation are rejected one by one and reported via
// Set.Rejected; a bad rule never blocks its siblings. The returned error is
// reserved for document-level problems.
func LoadSet(data []byte, models ModelChecker) (*Set, error) {
	var file fileSpec
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse scenarios: %w", err)
	}
	if len(file.Scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios defined")
	}
	if file.Version == 0 {
		file.Version = 1
	}

	sum := sha256.Sum256(data)
	set := &Set{
		version: fmt.Sprintf("v%d-%s", file.Version, hex.EncodeToString(sum[:6])),
		byKind:  make(map[types.Kind][]Rule),
	}

	seen := make(map[string]bool)
	for i, spec := range file.Scenarios {
		rule, err := compileRule(spec)
		if err != nil {
			id := spec.ID
			if id == "" {
				id = fmt.Sprintf("scenarios[%d]", i)
			}
			set.rejected = append(set.rejected, ConfigError{RuleID: id, Err: err})
			continue
		}
		if seen[rule.ID] {
			set.rejected = append(set.rejected, ConfigError{
				RuleID: rule.ID,
				Err:    fmt.Errorf("duplicate scenario id"),
			})
			continue
		}
		if models != nil && !models.Has(rule.CostModel) {
			set.rejected = append(set.rejected, ConfigError{
				RuleID: rule.ID,
				Err:    fmt.Errorf("unknown cost model %q", rule.CostModel),
			})
			continue
		}
		seen[rule.ID] = true
		set.rules = append(set.rules, rule)
		set.byKind[rule.Kind] = append(set.byKind[rule.Kind], rule)
	}

	return set, nil
}

func compileRule(spec ruleSpec) (Rule, error) {
	if spec.ID == "" {
		return Rule{}, fmt.Errorf("id is required")
	}
	if spec.Kind == "" {
		return Rule{}, fmt.Errorf("kind is required")
	}
	if spec.CostModel == "" {
		return Rule{}, fmt.Errorf("cost_model is required")
	}
	if spec.Predicate == nil {
		return Rule{}, fmt.Errorf("predicate is required")
	}

	pred, err := compilePredicate(*spec.Predicate, "predicate", spec.NoDataMatches)
	if err != nil {
		return Rule{}, err
	}

	policy, err := compileConfidence(spec.Confidence)
	if err != nil {
		return Rule{}, err
	}

	var sinceCreation bool
	switch spec.ConfidenceBasis {
	case "", "state_changed":
	case "created":
		sinceCreation = true
	default:
		return Rule{}, fmt.Errorf("confidence_basis must be state_changed or created, got %q", spec.ConfidenceBasis)
	}

	return Rule{
		ID:                      spec.ID,
		Kind:                    types.Kind(spec.Kind),
		Description:             spec.Description,
		Predicate:               pred,
		CostModel:               spec.CostModel,
		Confidence:              policy,
		ConfidenceSinceCreation: sinceCreation,
		Params:                  spec.Params,
		NoDataMatches:           spec.NoDataMatches,
		SuppressZeroCost:        spec.SuppressZeroCost,
	}, nil
}

func compileConfidence(bands []bandSpec) (confidence.Policy, error) {
	if len(bands) == 0 {
		return confidence.Default(), nil
	}
	compiled := make([]confidence.Band, 0, len(bands))
	for _, b := range bands {
		tier, err := types.ParseTier(b.Tier)
		if err != nil {
			return confidence.Policy{}, fmt.Errorf("confidence: %w", err)
		}
		compiled = append(compiled, confidence.Band{
			MinAge: confidence.Days(b.MinDays),
			Tier:   tier,
		})
	}
	policy, err := confidence.NewPolicy(compiled)
	if err != nil {
		return confidence.Policy{}, fmt.Errorf("confidence: %w", err)
	}
	return policy, nil
}

func compilePredicate(spec predicateSpec, path string, noDataMatches bool) (Predicate, error) {
	branches := countBranches(spec)
	if branches == 0 {
		return nil, fmt.Errorf("%s: empty predicate node", path)
	}
	if branches > 1 {
		return nil, fmt.Errorf("%s: predicate node must have exactly one operator", path)
	}

	switch {
	case spec.All != nil:
		children, err := compileChildren(spec.All, path+".all", noDataMatches)
		if err != nil {
			return nil, err
		}
		return andPredicate{children: children}, nil

	case spec.Any != nil:
		children, err := compileChildren(spec.Any, path+".any", noDataMatches)
		if err != nil {
			return nil, err
		}
		return orPredicate{children: children}, nil

	case spec.Not != nil:
		child, err := compilePredicate(*spec.Not, path+".not", noDataMatches)
		if err != nil {
			return nil, err
		}
		return notPredicate{child: child}, nil

	case spec.StateEquals != nil:
		return compileStateEquals(*spec.StateEquals, path)

	case spec.AgeAtLeast != nil:
		return compileAgeAtLeast(*spec.AgeAtLeast, path)

	case spec.MetricBelow != nil:
		return compileMetric(*spec.MetricBelow, path+".metric_below", true, noDataMatches)

	case spec.MetricAbove != nil:
		return compileMetric(*spec.MetricAbove, path+".metric_above", false, noDataMatches)

	case spec.TargetMissing != nil:
		return targetMissingPredicate{}, nil

	case spec.BackendCount != nil:
		if spec.BackendCount.Equals == nil || *spec.BackendCount.Equals < 0 {
			return nil, fmt.Errorf("%s.backend_count: equals must be a non-negative integer", path)
		}
		return backendCountPredicate{equals: *spec.BackendCount.Equals}, nil

	case spec.AllBackendsUnhealthy != nil:
		return allBackendsUnhealthyPredicate{}, nil

	case spec.DuplicateTarget != nil:
		return duplicateTargetPredicate{}, nil
	}

	return nil, fmt.Errorf("%s: unsupported predicate", path)
}

func countBranches(spec predicateSpec) int {
	n := 0
	if spec.All != nil {
		n++
	}
	if spec.Any != nil {
		n++
	}
	if spec.Not != nil {
		n++
	}
	if spec.StateEquals != nil {
		n++
	}
	if spec.AgeAtLeast != nil {
		n++
	}
	if spec.MetricBelow != nil {
		n++
	}
	if spec.MetricAbove != nil {
		n++
	}
	if spec.TargetMissing != nil {
		n++
	}
	if spec.BackendCount != nil {
		n++
	}
	if spec.AllBackendsUnhealthy != nil {
		n++
	}
	if spec.DuplicateTarget != nil {
		n++
	}
	return n
}

func compileChildren(specs []predicateSpec, path string, noDataMatches bool) ([]Predicate, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%s: needs at least one child", path)
	}
	children := make([]Predicate, 0, len(specs))
	for i, child := range specs {
		compiled, err := compilePredicate(child, fmt.Sprintf("%s[%d]", path, i), noDataMatches)
		if err != nil {
			return nil, err
		}
		children = append(children, compiled)
	}
	return children, nil
}

func compileStateEquals(spec stateEqualsSpec, path string) (Predicate, error) {
	field := spec.Field
	if field == "" {
		field = "state"
	}
	if !validField(field) {
		return nil, fmt.Errorf("%s.state_equals: field must be state, label:<key> or attr:<key>, got %q", path, field)
	}
	if spec.Value == "" && spec.Prefix == "" {
		return nil, fmt.Errorf("%s.state_equals: value or prefix is required", path)
	}
	if spec.Value != "" && spec.Prefix != "" {
		return nil, fmt.Errorf("%s.state_equals: value and prefix are mutually exclusive", path)
	}
	return statePredicate{field: field, value: spec.Value, prefix: spec.Prefix}, nil
}

func validField(field string) bool {
	if field == "state" {
		return true
	}
	for _, prefix := range []string{"label:", "attr:"} {
		if len(field) > len(prefix) && field[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func compileAgeAtLeast(spec ageAtLeastSpec, path string) (Predicate, error) {
	if spec.Days <= 0 {
		return nil, fmt.Errorf("%s.age_at_least: days must be positive", path)
	}
	var sinceState bool
	switch spec.Since {
	case "", "created":
	case "state_changed":
		sinceState = true
	default:
		return nil, fmt.Errorf("%s.age_at_least: since must be created or state_changed, got %q", path, spec.Since)
	}
	return agePredicate{
		min:        time.Duration(spec.Days) * 24 * time.Hour,
		sinceState: sinceState,
	}, nil
}

func compileMetric(spec metricSpec, path string, below, noDataMatches bool) (Predicate, error) {
	if spec.Metric == "" {
		return nil, fmt.Errorf("%s: metric is required", path)
	}
	if spec.WindowDays <= 0 {
		return nil, fmt.Errorf("%s: window_days must be positive", path)
	}
	reducer, err := metrics.ParseReducer(spec.Reducer)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	alignment := 24 * time.Hour
	if spec.AlignmentHours > 0 {
		alignment = time.Duration(spec.AlignmentHours) * time.Hour
	}
	return metricPredicate{
		metric:        spec.Metric,
		window:        time.Duration(spec.WindowDays) * 24 * time.Hour,
		alignment:     alignment,
		reducer:       reducer,
		threshold:     spec.Threshold,
		below:         below,
		noDataMatches: noDataMatches,
	}, nil
}
