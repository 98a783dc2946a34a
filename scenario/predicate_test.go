package scenario

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velhola/gleaner/graph"
	"github.com/velhola/gleaner/metrics"
	"github.com/velhola/gleaner/types"
)

var testNow = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

type stubPred struct {
	out   Outcome
	calls *int
}

func (s stubPred) Evaluate(_ context.Context, _ *Env) Outcome {
	if s.calls != nil {
		*s.calls++
	}
	return s.out
}

func (s stubPred) usesGraph() bool { return false }

type fakeQuerier struct {
	stats metrics.Stats
	err   error
	calls int
	last  metrics.Query
}

func (f *fakeQuerier) Aggregate(_ context.Context, q metrics.Query) (metrics.Stats, error) {
	f.calls++
	f.last = q
	if f.err != nil {
		return metrics.Stats{}, f.err
	}
	return f.stats, nil
}

func testEnv(r types.Resource) Env {
	return Env{Resource: r, Now: testNow}
}

func TestTriStateComposition(t *testing.T) {
	tests := []struct {
		name string
		pred Predicate
		want Outcome
	}{
		{"and all true", andPredicate{children: []Predicate{stubPred{out: True}, stubPred{out: True}}}, True},
		{"and false wins", andPredicate{children: []Predicate{stubPred{out: True}, stubPred{out: False}}}, False},
		{"and indeterminate poisons", andPredicate{children: []Predicate{stubPred{out: True}, stubPred{out: Indeterminate}}}, Indeterminate},
		{"and false beats indeterminate", andPredicate{children: []Predicate{stubPred{out: False}, stubPred{out: Indeterminate}}}, False},
		{"and single true", andPredicate{children: []Predicate{stubPred{out: True}}}, True},
		{"or ignores indeterminate when true present", orPredicate{children: []Predicate{stubPred{out: Indeterminate}, stubPred{out: True}}}, True},
		{"or ignores indeterminate when false present", orPredicate{children: []Predicate{stubPred{out: Indeterminate}, stubPred{out: False}}}, False},
		{"or all indeterminate stays indeterminate", orPredicate{children: []Predicate{stubPred{out: Indeterminate}, stubPred{out: Indeterminate}}}, Indeterminate},
		{"not true", notPredicate{child: stubPred{out: True}}, False},
		{"not false", notPredicate{child: stubPred{out: False}}, True},
		{"not indeterminate", notPredicate{child: stubPred{out: Indeterminate}}, Indeterminate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testEnv(types.Resource{ID: "r-1"})
			assert.Equal(t, tt.want, tt.pred.Evaluate(context.Background(), &env))
		})
	}
}

func TestAndShortCircuitSkipsMetricQuery(t *testing.T) {
	querier := &fakeQuerier{stats: metrics.Stats{Value: 1}}
	pred := andPredicate{children: []Predicate{
		statePredicate{field: "state", value: "running"},
		metricPredicate{metric: "cpu_utilization", window: 14 * 24 * time.Hour, reducer: metrics.ReducerMean, threshold: 5, below: true},
	}}

	env := testEnv(types.Resource{ID: "i-1", State: "stopped"})
	env.Metrics = querier

	assert.Equal(t, False, pred.Evaluate(context.Background(), &env))
	assert.Zero(t, querier.calls, "metric query must not run after the state check failed")
}

func TestAndDiscardsEvidenceOnFailure(t *testing.T) {
	pred := andPredicate{children: []Predicate{
		statePredicate{field: "state", value: "stopped"},
		agePredicate{min: 30 * 24 * time.Hour, sinceState: true},
	}}

	env := testEnv(types.Resource{
		ID:             "i-1",
		State:          "stopped",
		StateChangedAt: testNow.Add(-2 * 24 * time.Hour),
	})

	assert.Equal(t, False, pred.Evaluate(context.Background(), &env))
	assert.Empty(t, env.evidence, "evidence from the matched state check must not survive the failed branch")
}

func TestStatePredicate(t *testing.T) {
	r := types.Resource{
		ID:     "i-1",
		State:  "stopped",
		Labels: map[string]string{"team": "data"},
		Attributes: map[string]any{
			types.AttrMachineType: "n1-standard-4",
			"replica_count":       int64(3),
		},
	}

	tests := []struct {
		name string
		pred statePredicate
		want Outcome
	}{
		{"state matches", statePredicate{field: "state", value: "stopped"}, True},
		{"state differs", statePredicate{field: "state", value: "running"}, False},
		{"label matches", statePredicate{field: "label:team", value: "data"}, True},
		{"label missing", statePredicate{field: "label:env", value: "prod"}, False},
		{"attr matches", statePredicate{field: "attr:machine_type", value: "n1-standard-4"}, True},
		{"attr prefix matches", statePredicate{field: "attr:machine_type", prefix: "n1-"}, True},
		{"attr prefix differs", statePredicate{field: "attr:machine_type", prefix: "e2-"}, False},
		{"int attr compared as string", statePredicate{field: "attr:replica_count", value: "3"}, True},
		{"attr missing", statePredicate{field: "attr:zone", value: "us-east1-b"}, False},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testEnv(r)
			assert.Equal(t, tt.want, tt.pred.Evaluate(context.Background(), &env))
			if tt.want == True {
				require.Len(t, env.evidence, 1)
				assert.Equal(t, "state", env.evidence[0].Source)
			}
		})
	}
}

func TestAgePredicate(t *testing.T) {
	created := testNow.Add(-40 * 24 * time.Hour)
	stopped := testNow.Add(-10 * 24 * time.Hour)

	tests := []struct {
		name string
		r    types.Resource
		pred agePredicate
		want Outcome
	}{
		{
			name: "old enough since creation",
			r:    types.Resource{CreatedAt: created},
			pred: agePredicate{min: 30 * 24 * time.Hour},
			want: True,
		},
		{
			name: "too young since creation",
			r:    types.Resource{CreatedAt: created},
			pred: agePredicate{min: 90 * 24 * time.Hour},
			want: False,
		},
		{
			name: "state age uses transition time",
			r:    types.Resource{CreatedAt: created, StateChangedAt: stopped},
			pred: agePredicate{min: 30 * 24 * time.Hour, sinceState: true},
			want: False,
		},
		{
			name: "state age falls back to creation",
			r:    types.Resource{CreatedAt: created},
			pred: agePredicate{min: 30 * 24 * time.Hour, sinceState: true},
			want: True,
		},
		{
			name: "unknown creation is not old",
			r:    types.Resource{},
			pred: agePredicate{min: 1 * 24 * time.Hour},
			want: False,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testEnv(tt.r)
			assert.Equal(t, tt.want, tt.pred.Evaluate(context.Background(), &env))
		})
	}
}

func TestMetricPredicateComparisons(t *testing.T) {
	pred := metricPredicate{
		metric:    "cpu_utilization",
		window:    14 * 24 * time.Hour,
		alignment: 24 * time.Hour,
		reducer:   metrics.ReducerMean,
		threshold: 5.0,
		below:     true,
	}

	querier := &fakeQuerier{stats: metrics.Stats{
		ResourceID: "i-1",
		Metric:     "cpu_utilization",
		Value:      3.2,
	}}
	env := testEnv(types.Resource{ID: "i-1"})
	env.Metrics = querier

	assert.Equal(t, True, pred.Evaluate(context.Background(), &env))

	assert.Equal(t, "i-1", querier.last.ResourceID)
	assert.Equal(t, 14*24*time.Hour, querier.last.Window)
	assert.Equal(t, metrics.ReducerMean, querier.last.Reducer)

	require.Len(t, env.evidence, 1)
	assert.Equal(t, "metric", env.evidence[0].Source)
	assert.Equal(t, "3.2", env.evidence[0].Value)

	got, ok := env.stats["cpu_utilization"]
	require.True(t, ok, "matched stats must be recorded for the cost model")
	assert.Equal(t, 3.2, got.Value)

	// Same value against an above comparison.
	above := pred
	above.below = false
	env = testEnv(types.Resource{ID: "i-1"})
	env.Metrics = querier
	assert.Equal(t, False, above.Evaluate(context.Background(), &env))
}

func TestMetricPredicateNoData(t *testing.T) {
	pred := metricPredicate{
		metric:    "bytes_sent",
		window:    14 * 24 * time.Hour,
		reducer:   metrics.ReducerSum,
		threshold: 1e6,
		below:     true,
	}

	t.Run("no data is indeterminate, not zero", func(t *testing.T) {
		env := testEnv(types.Resource{ID: "nat-1"})
		env.Metrics = &fakeQuerier{err: metrics.ErrNoData}

		assert.Equal(t, Indeterminate, pred.Evaluate(context.Background(), &env))
		assert.False(t, env.degraded, "an empty window is absence of data, not a failure")
		assert.Empty(t, env.evidence)
	})

	t.Run("opt-in treats absence as idle", func(t *testing.T) {
		optIn := pred
		optIn.noDataMatches = true
		env := testEnv(types.Resource{ID: "nat-1"})
		env.Metrics = &fakeQuerier{err: metrics.ErrNoData}

		assert.Equal(t, True, optIn.Evaluate(context.Background(), &env))
		assert.True(t, env.noDataMatched)
		require.Len(t, env.evidence, 1)
		assert.Equal(t, "no_data", env.evidence[0].Value)
	})

	t.Run("query failure degrades to indeterminate", func(t *testing.T) {
		env := testEnv(types.Resource{ID: "nat-1"})
		env.Metrics = &fakeQuerier{err: errors.New("throttled")}

		assert.Equal(t, Indeterminate, pred.Evaluate(context.Background(), &env))
		assert.True(t, env.degraded)
	})

	t.Run("missing querier degrades to indeterminate", func(t *testing.T) {
		env := testEnv(types.Resource{ID: "nat-1"})

		assert.Equal(t, Indeterminate, pred.Evaluate(context.Background(), &env))
		assert.True(t, env.degraded)
	})
}

func chainFixture() *graph.Graph {
	return graph.Build([]types.Resource{
		{ID: "fr-ok", Kind: types.KindForwardingRule, Attributes: map[string]any{types.AttrTarget: "tp-1"}},
		{ID: "tp-1", Kind: types.KindTargetProxy, Attributes: map[string]any{types.AttrTarget: "um-1"}},
		{ID: "um-1", Kind: types.KindURLMap, Attributes: map[string]any{types.AttrTarget: "bes-1"}},
		{ID: "bes-1", Kind: types.KindBackendService, Attributes: map[string]any{types.AttrBackends: []string{"i-1", "i-2"}}},
		{ID: "fr-broken", Kind: types.KindForwardingRule, Attributes: map[string]any{types.AttrTarget: "tp-gone"}},
		{ID: "fr-cycle", Kind: types.KindForwardingRule, Attributes: map[string]any{types.AttrTarget: "tp-cycle"}},
		{ID: "tp-cycle", Kind: types.KindTargetProxy, Attributes: map[string]any{types.AttrTarget: "fr-cycle"}},
		{ID: "fr-dup-a", Kind: types.KindForwardingRule, Attributes: map[string]any{types.AttrTarget: "bes-shared"}},
		{ID: "fr-dup-b", Kind: types.KindForwardingRule, Attributes: map[string]any{types.AttrTarget: "bes-shared"}},
		{ID: "bes-shared", Kind: types.KindBackendService, Attributes: map[string]any{types.AttrBackends: []string{"i-3"}}},
		{ID: "bes-empty", Kind: types.KindBackendService, Attributes: map[string]any{types.AttrBackends: []string{}}},
	})
}

func TestTargetMissingPredicate(t *testing.T) {
	g := chainFixture()

	tests := []struct {
		name       string
		resourceID string
		want       Outcome
	}{
		{"resolved chain", "fr-ok", False},
		{"broken chain", "fr-broken", True},
		{"cyclic chain left to integrity report", "fr-cycle", Indeterminate},
		{"no target reference", "bes-1", False},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := g.Node(tt.resourceID)
			require.True(t, ok)
			env := testEnv(r)
			env.Graph = g
			assert.Equal(t, tt.want, targetMissingPredicate{}.Evaluate(context.Background(), &env))
		})
	}

	t.Run("no graph is indeterminate", func(t *testing.T) {
		env := testEnv(types.Resource{ID: "fr-ok"})
		assert.Equal(t, Indeterminate, targetMissingPredicate{}.Evaluate(context.Background(), &env))
	})
}

func TestBackendCountPredicate(t *testing.T) {
	g := chainFixture()

	env := testEnv(types.Resource{ID: "bes-empty", Kind: types.KindBackendService})
	env.Graph = g
	assert.Equal(t, True, backendCountPredicate{equals: 0}.Evaluate(context.Background(), &env))

	env = testEnv(types.Resource{ID: "bes-1", Kind: types.KindBackendService})
	env.Graph = g
	assert.Equal(t, False, backendCountPredicate{equals: 0}.Evaluate(context.Background(), &env),
		"a service with configured backends never counts as empty")
}

func TestAllBackendsUnhealthyPredicate(t *testing.T) {
	g := chainFixture()
	r, ok := g.Node("bes-1")
	require.True(t, ok)

	t.Run("all unhealthy matches", func(t *testing.T) {
		env := testEnv(r)
		env.Graph = g
		env.Health = graph.HealthSnapshot{
			"bes-1": {
				{BackendID: "i-1", State: graph.HealthUnhealthy},
				{BackendID: "i-2", State: graph.HealthUnhealthy},
			},
		}
		assert.Equal(t, True, allBackendsUnhealthyPredicate{}.Evaluate(context.Background(), &env))
		assert.False(t, env.unknownHealth)
	})

	t.Run("one healthy backend clears it", func(t *testing.T) {
		env := testEnv(r)
		env.Graph = g
		env.Health = graph.HealthSnapshot{
			"bes-1": {
				{BackendID: "i-1", State: graph.HealthHealthy},
				{BackendID: "i-2", State: graph.HealthUnhealthy},
			},
		}
		assert.Equal(t, False, allBackendsUnhealthyPredicate{}.Evaluate(context.Background(), &env))
	})

	t.Run("unknown counts as unhealthy but is flagged", func(t *testing.T) {
		env := testEnv(r)
		env.Graph = g
		env.Health = graph.HealthSnapshot{
			"bes-1": {
				{BackendID: "i-1", State: graph.HealthUnhealthy},
				{BackendID: "i-2", State: graph.HealthUnknown},
			},
		}
		assert.Equal(t, True, allBackendsUnhealthyPredicate{}.Evaluate(context.Background(), &env))
		assert.True(t, env.unknownHealth)
	})

	t.Run("no snapshot is indeterminate", func(t *testing.T) {
		env := testEnv(r)
		env.Graph = g
		assert.Equal(t, Indeterminate, allBackendsUnhealthyPredicate{}.Evaluate(context.Background(), &env))
	})
}

func TestDuplicateTargetPredicate(t *testing.T) {
	g := chainFixture()

	env := testEnv(types.Resource{ID: "fr-dup-a", Kind: types.KindForwardingRule})
	env.Graph = g
	require.Equal(t, True, duplicateTargetPredicate{}.Evaluate(context.Background(), &env))
	require.Len(t, env.evidence, 1)
	assert.Equal(t, "fr-dup-a,fr-dup-b", env.evidence[0].Value)

	env = testEnv(types.Resource{ID: "fr-ok", Kind: types.KindForwardingRule})
	env.Graph = g
	assert.Equal(t, False, duplicateTargetPredicate{}.Evaluate(context.Background(), &env))
}
