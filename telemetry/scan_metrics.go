package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ScanMetrics holds all scan pipeline metrics
type ScanMetrics struct {
	// Counters
	FindingsDetected    metric.Int64Counter
	RulesEvaluated      metric.Int64Counter
	KindsSkipped        metric.Int64Counter
	MetricQueryFailures metric.Int64Counter

	// Gauges
	FindingsOpen   metric.Int64Gauge
	WasteMonthly   metric.Float64Gauge
	ResourcesKnown metric.Int64Gauge

	// Histograms
	EnumerateDuration metric.Float64Histogram
	EvaluateDuration  metric.Float64Histogram
}

// InitScanMetrics initializes all scan pipeline metrics
func InitScanMetrics(meter metric.Meter) (*ScanMetrics, error) {
	m := &ScanMetrics{}

	if err := m.initCounters(meter); err != nil {
		return nil, err
	}

	if err := m.initGauges(meter); err != nil {
		return nil, err
	}

	if err := m.initHistograms(meter); err != nil {
		return nil, err
	}

	return m, nil
}

// initCounters initializes counter metrics
func (m *ScanMetrics) initCounters(meter metric.Meter) error {
	var err error

	m.FindingsDetected, err = meter.Int64Counter(
		"gleaner.findings.detected.total",
		metric.WithDescription("Total number of waste findings detected"),
		metric.WithUnit("findings"),
	)
	if err != nil {
		return err
	}

	m.RulesEvaluated, err = meter.Int64Counter(
		"gleaner.rules.evaluated.total",
		metric.WithDescription("Total number of scenario rule evaluations"),
		metric.WithUnit("evaluations"),
	)
	if err != nil {
		return err
	}

	m.KindsSkipped, err = meter.Int64Counter(
		"gleaner.kinds.skipped.total",
		metric.WithDescription("Total number of resource kinds skipped during enumeration"),
		metric.WithUnit("kinds"),
	)
	if err != nil {
		return err
	}

	m.MetricQueryFailures, err = meter.Int64Counter(
		"gleaner.metric.query.failures.total",
		metric.WithDescription("Total number of metric queries degraded to indeterminate"),
		metric.WithUnit("queries"),
	)
	if err != nil {
		return err
	}

	return nil
}

// initGauges initializes gauge metrics
func (m *ScanMetrics) initGauges(meter metric.Meter) error {
	var err error

	m.FindingsOpen, err = meter.Int64Gauge(
		"gleaner.findings.open",
		metric.WithDescription("Findings emitted by the latest scan"),
		metric.WithUnit("findings"),
	)
	if err != nil {
		return err
	}

	m.WasteMonthly, err = meter.Float64Gauge(
		"gleaner.waste.monthly.estimate.usd",
		metric.WithDescription("Estimated monthly waste from the latest scan"),
		metric.WithUnit("USD"),
	)
	if err != nil {
		return err
	}

	m.ResourcesKnown, err = meter.Int64Gauge(
		"gleaner.resources.known",
		metric.WithDescription("Resources enumerated by the latest scan"),
		metric.WithUnit("resources"),
	)
	if err != nil {
		return err
	}

	return nil
}

// initHistograms initializes histogram metrics
func (m *ScanMetrics) initHistograms(meter metric.Meter) error {
	var err error

	m.EnumerateDuration, err = meter.Float64Histogram(
		"gleaner.enumerate.duration.ms",
		metric.WithDescription("Time taken to enumerate one resource kind"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	m.EvaluateDuration, err = meter.Float64Histogram(
		"gleaner.evaluate.duration.ms",
		metric.WithDescription("Time taken to evaluate all scenarios for one resource"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	return nil
}

// RecordFindingDetected records one detected finding
func (m *ScanMetrics) RecordFindingDetected(
	ctx context.Context,
	scenarioID string,
	resourceKind string,
	confidence string,
	provider string,
	region string,
) {
	m.FindingsDetected.Add(ctx, 1,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("scenario_id", scenarioID),
			attribute.String("resource_kind", resourceKind),
			attribute.String("confidence", confidence),
			attribute.String("provider", provider),
			attribute.String("region", region),
		)),
	)
}

// RecordRuleEvaluated records one scenario rule evaluation outcome
func (m *ScanMetrics) RecordRuleEvaluated(
	ctx context.Context,
	scenarioID string,
	resourceKind string,
	outcome string,
) {
	m.RulesEvaluated.Add(ctx, 1,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("scenario_id", scenarioID),
			attribute.String("resource_kind", resourceKind),
			attribute.String("outcome", outcome),
		)),
	)
}

// RecordKindSkipped records a resource kind skipped during enumeration
func (m *ScanMetrics) RecordKindSkipped(
	ctx context.Context,
	resourceKind string,
	reason string,
	provider string,
	region string,
) {
	m.KindsSkipped.Add(ctx, 1,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("resource_kind", resourceKind),
			attribute.String("reason", reason),
			attribute.String("provider", provider),
			attribute.String("region", region),
		)),
	)
}

// RecordMetricQueryFailure records an evaluation degraded to
// indeterminate because a metric backend gave no usable answer
func (m *ScanMetrics) RecordMetricQueryFailure(
	ctx context.Context,
	scenarioID string,
	resourceKind string,
) {
	m.MetricQueryFailures.Add(ctx, 1,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("scenario_id", scenarioID),
			attribute.String("resource_kind", resourceKind),
		)),
	)
}

// RecordScanTotals records the gauges summarizing one completed scan
func (m *ScanMetrics) RecordScanTotals(
	ctx context.Context,
	provider string,
	accountID string,
	resources int64,
	findings int64,
	monthlyWasteUSD float64,
) {
	set := metric.WithAttributeSet(attribute.NewSet(
		attribute.String("provider", provider),
		attribute.String("account_id", accountID),
	))
	m.ResourcesKnown.Record(ctx, resources, set)
	m.FindingsOpen.Record(ctx, findings, set)
	m.WasteMonthly.Record(ctx, monthlyWasteUSD, set)
}

// RecordEnumerateDuration records enumeration duration for one kind
func (m *ScanMetrics) RecordEnumerateDuration(
	ctx context.Context,
	resourceKind string,
	provider string,
	region string,
	durationMs float64,
) {
	m.EnumerateDuration.Record(ctx, durationMs,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("resource_kind", resourceKind),
			attribute.String("provider", provider),
			attribute.String("region", region),
		)),
	)
}

// RecordEvaluateDuration records evaluation duration for one resource
func (m *ScanMetrics) RecordEvaluateDuration(
	ctx context.Context,
	resourceKind string,
	durationMs float64,
) {
	m.EvaluateDuration.Record(ctx, durationMs,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("resource_kind", resourceKind),
		)),
	)
}
