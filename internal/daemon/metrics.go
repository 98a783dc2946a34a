package daemon

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds daemon operational metrics following OTEL semantic
// conventions. Scan pipeline internals are instrumented separately in
// telemetry; these cover the scheduling loop itself.
type Metrics struct {
	scans        metric.Int64Counter
	scanDuration metric.Float64Histogram
	findings     metric.Int64Gauge
	suppressed   metric.Int64Gauge
	ruleReloads  metric.Int64Counter
	rulesActive  metric.Int64Gauge
}

// NewMetrics creates daemon metrics on the given meter. Production code
// passes otel.Meter("gleaner.daemon"); tests inject a meter backed by a
// manual reader.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	scans, err := meter.Int64Counter(
		"gleaner.daemon.scans",
		metric.WithDescription("Number of scheduled scan runs"),
		metric.WithUnit("{scan}"),
	)
	if err != nil {
		return nil, err
	}

	scanDuration, err := meter.Float64Histogram(
		"gleaner.daemon.scan.duration",
		metric.WithDescription("Duration of scheduled scan runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	findings, err := meter.Int64Gauge(
		"gleaner.daemon.scan.findings",
		metric.WithDescription("Findings emitted by the most recent scan"),
		metric.WithUnit("{finding}"),
	)
	if err != nil {
		return nil, err
	}

	suppressed, err := meter.Int64Gauge(
		"gleaner.daemon.scan.suppressed",
		metric.WithDescription("Findings suppressed by policy in the most recent scan"),
		metric.WithUnit("{finding}"),
	)
	if err != nil {
		return nil, err
	}

	ruleReloads, err := meter.Int64Counter(
		"gleaner.daemon.rule_reloads",
		metric.WithDescription("Number of scenario rule set reloads"),
		metric.WithUnit("{reload}"),
	)
	if err != nil {
		return nil, err
	}

	rulesActive, err := meter.Int64Gauge(
		"gleaner.rules.active",
		metric.WithDescription("Scenario rules accepted by the current rule set"),
		metric.WithUnit("{rule}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		scans:        scans,
		scanDuration: scanDuration,
		findings:     findings,
		suppressed:   suppressed,
		ruleReloads:  ruleReloads,
		rulesActive:  rulesActive,
	}, nil
}

// RecordScan records one scheduled scan run with its terminal status.
func (m *Metrics) RecordScan(ctx context.Context, status string, durationSeconds float64) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.scans.Add(ctx, 1, attrs)
	m.scanDuration.Record(ctx, durationSeconds, attrs)
}

// RecordScanOutcome records the finding counts of the most recent scan.
func (m *Metrics) RecordScanOutcome(ctx context.Context, findings, suppressed int64) {
	m.findings.Record(ctx, findings)
	m.suppressed.Record(ctx, suppressed)
}

// RecordRuleReload records a rule set swap and the new active rule count.
func (m *Metrics) RecordRuleReload(ctx context.Context, version string, rules int) {
	m.ruleReloads.Add(ctx, 1,
		metric.WithAttributes(attribute.String("rules.version", version)),
	)
	m.rulesActive.Record(ctx, int64(rules))
}
