// Package metrics turns raw monitoring time series into the per-window
// statistics scenario predicates compare against. Its one hard rule:
// a window with no samples is NoData, never zero. "We measured nothing"
// and "we measured 0.0" lead to different findings.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoData reports that the provider returned zero series or zero points
// for a query. Callers must branch on it with errors.Is, not treat it as a
// zero value.
var ErrNoData = errors.New("no metric data in window")

// Reducer collapses a bucketed series into one number.
type Reducer string

const (
	ReducerMean Reducer = "mean"
	ReducerMax  Reducer = "max"
	ReducerSum  Reducer = "sum"
	ReducerRate Reducer = "rate"
)

// ParseReducer validates a reducer name from configuration.
func ParseReducer(s string) (Reducer, error) {
	switch Reducer(s) {
	case ReducerMean, ReducerMax, ReducerSum, ReducerRate:
		return Reducer(s), nil
	default:
		return "", fmt.Errorf("unknown reducer %q", s)
	}
}

// Point is one raw sample.
type Point struct {
	At    time.Time
	Value float64
}

// Series is one provider time series for one resource.
type Series struct {
	Label  string
	Points []Point
}

// Query asks for one reduced statistic over a lookback window.
type Query struct {
	ResourceID string
	Metric     string
	Window     time.Duration
	// Alignment is the bucket size raw samples are grouped into before
	// reduction. Defaults to one day, matching billing granularity.
	Alignment time.Duration
	Reducer   Reducer
}

// Stats is the reduced result of one query.
type Stats struct {
	ResourceID  string        `json:"resource_id"`
	Metric      string        `json:"metric"`
	Reducer     Reducer       `json:"reducer"`
	Value       float64       `json:"value"`
	SampleCount int           `json:"sample_count"`
	Window      time.Duration `json:"window"`
	From        time.Time     `json:"from"`
	To          time.Time     `json:"to"`
}

// Source fetches raw series from a monitoring backend. The query's
// alignment and reducer are hints for backends that pre-aggregate server
// side; sources that ignore them return raw samples and the aggregator
// buckets those itself. Sources report empty windows by returning no
// series, not by inventing zero-valued points.
type Source interface {
	FetchSeries(ctx context.Context, q Query, from, to time.Time) ([]Series, error)
}

// Aggregator reduces raw series into Stats.
type Aggregator struct {
	source Source
	now    func() time.Time
}

// NewAggregator creates an aggregator over a metric source.
func NewAggregator(source Source) *Aggregator {
	return &Aggregator{source: source, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Aggregate runs one query. Returns ErrNoData when the window holds no
// samples; any other error is a provider failure the caller degrades to
// an indeterminate predicate.
func (a *Aggregator) Aggregate(ctx context.Context, q Query) (Stats, error) {
	if err := validateQuery(q); err != nil {
		return Stats{}, err
	}

	if q.Alignment <= 0 {
		q.Alignment = 24 * time.Hour
	}

	to := a.now().UTC()
	from := to.Add(-q.Window)

	series, err := a.source.FetchSeries(ctx, q, from, to)
	if err != nil {
		return Stats{}, fmt.Errorf("fetch %s for %s: %w", q.Metric, q.ResourceID, err)
	}

	points := collectWindow(series, from, to)
	if len(points) == 0 {
		return Stats{}, fmt.Errorf("%s for %s over %s: %w", q.Metric, q.ResourceID, q.Window, ErrNoData)
	}

	value := reduce(points, q.Reducer, from, q.Alignment, q.Window)

	return Stats{
		ResourceID:  q.ResourceID,
		Metric:      q.Metric,
		Reducer:     q.Reducer,
		Value:       value,
		SampleCount: len(points),
		Window:      q.Window,
		From:        from,
		To:          to,
	}, nil
}

func validateQuery(q Query) error {
	if q.ResourceID == "" {
		return fmt.Errorf("metric query missing resource id")
	}
	if q.Metric == "" {
		return fmt.Errorf("metric query missing metric name")
	}
	if q.Window <= 0 {
		return fmt.Errorf("metric query window must be positive, got %s", q.Window)
	}
	if _, err := ParseReducer(string(q.Reducer)); err != nil {
		return err
	}
	return nil
}

// collectWindow flattens all series into the samples inside [from, to].
func collectWindow(series []Series, from, to time.Time) []Point {
	var points []Point
	for _, s := range series {
		for _, p := range s.Points {
			if p.At.Before(from) || p.At.After(to) {
				continue
			}
			points = append(points, p)
		}
	}
	return points
}

// reduce applies the reducer over alignment buckets.
// Mean and max reduce each bucket first, then combine across buckets, so a
// burst of samples in one hour cannot dominate a multi-day window.
func reduce(points []Point, reducer Reducer, from time.Time, alignment, window time.Duration) float64 {
	switch reducer {
	case ReducerSum:
		return sumAll(points)
	case ReducerRate:
		return sumAll(points) / window.Seconds()
	case ReducerMean:
		buckets := bucketize(points, from, alignment)
		var total float64
		for _, b := range buckets {
			total += sumAll(b) / float64(len(b))
		}
		return total / float64(len(buckets))
	case ReducerMax:
		buckets := bucketize(points, from, alignment)
		max := bucketMax(buckets[0])
		for _, b := range buckets[1:] {
			if m := bucketMax(b); m > max {
				max = m
			}
		}
		return max
	default:
		// validateQuery rejects unknown reducers before we get here
		return 0
	}
}

// bucketize groups points by alignment interval since from. Empty buckets
// are dropped: they are absent evidence, not zero.
func bucketize(points []Point, from time.Time, alignment time.Duration) [][]Point {
	byIndex := make(map[int][]Point)
	for _, p := range points {
		idx := int(p.At.Sub(from) / alignment)
		byIndex[idx] = append(byIndex[idx], p)
	}

	buckets := make([][]Point, 0, len(byIndex))
	for _, b := range byIndex {
		buckets = append(buckets, b)
	}
	return buckets
}

func sumAll(points []Point) float64 {
	var total float64
	for _, p := range points {
		total += p.Value
	}
	return total
}

func bucketMax(points []Point) float64 {
	max := points[0].Value
	for _, p := range points[1:] {
		if p.Value > max {
			max = p.Value
		}
	}
	return max
}
