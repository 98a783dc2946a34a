package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ScanSpan represents one full scan cycle span
type ScanSpan struct {
	ctx  context.Context
	span trace.Span
}

// StartScan starts a new scan span
func StartScan(
	ctx context.Context,
	tracer trace.Tracer,
	scanID string,
	provider string,
	accountID string,
) (context.Context, *ScanSpan) {
	ctx, span := tracer.Start(ctx, "scan",
		trace.WithAttributes(
			attribute.String("scan.id", scanID),
			attribute.String("provider", provider),
			attribute.String("account.id", accountID),
		),
	)

	return ctx, &ScanSpan{ctx: ctx, span: span}
}

// End ends the scan span
func (s *ScanSpan) End() {
	s.span.End()
}

// SetResourceCount sets the total resource count attribute
func (s *ScanSpan) SetResourceCount(count int64) {
	s.span.SetAttributes(attribute.Int64("resources.total", count))
}

// SetFindingCount sets finding count attributes
func (s *ScanSpan) SetFindingCount(total, suppressed int64) {
	s.span.SetAttributes(
		attribute.Int64("findings.total", total),
		attribute.Int64("findings.suppressed", suppressed),
	)
}

// SetTerminalState records the scan's terminal state
func (s *ScanSpan) SetTerminalState(state string, skippedKinds int64) {
	s.span.SetAttributes(
		attribute.String("scan.state", state),
		attribute.Int64("kinds.skipped", skippedKinds),
	)
}

// StartEnumerate starts an enumeration phase span for one kind
func StartEnumerate(
	ctx context.Context,
	tracer trace.Tracer,
	kind string,
	region string,
) (context.Context, trace.Span) {
	return tracer.Start(ctx, "enumerate",
		trace.WithAttributes(
			attribute.String("resource.kind", kind),
			attribute.String("region", region),
		),
	)
}

// EndEnumerate ends the enumerate span with counts
func EndEnumerate(span trace.Span, resourceCount int64, durationSeconds float64) {
	span.SetAttributes(
		attribute.Int64("resources.enumerated", resourceCount),
		attribute.Float64("duration.seconds", durationSeconds),
	)
	span.End()
}

// StartBuildGraph starts a dependency graph construction span
func StartBuildGraph(ctx context.Context, tracer trace.Tracer) (context.Context, trace.Span) {
	return tracer.Start(ctx, "build_graph")
}

// EndBuildGraph ends the graph span with node and edge counts
func EndBuildGraph(span trace.Span, nodes, edges, integrityErrors int64) {
	span.SetAttributes(
		attribute.Int64("graph.nodes", nodes),
		attribute.Int64("graph.edges", edges),
		attribute.Int64("graph.integrity_errors", integrityErrors),
	)
	span.End()
}

// StartEvaluate starts an evaluation phase span
func StartEvaluate(ctx context.Context, tracer trace.Tracer) (context.Context, trace.Span) {
	return tracer.Start(ctx, "evaluate")
}

// EndEvaluate ends the evaluate span with outcome counts
func EndEvaluate(
	span trace.Span,
	evaluations, matched, indeterminate int64,
) {
	span.SetAttributes(
		attribute.Int64("evaluations.total", evaluations),
		attribute.Int64("evaluations.matched", matched),
		attribute.Int64("evaluations.indeterminate", indeterminate),
	)
	span.End()
}

// StartAggregate starts the aggregation phase span
func StartAggregate(ctx context.Context, tracer trace.Tracer) (context.Context, trace.Span) {
	return tracer.Start(ctx, "aggregate")
}

// EndAggregate ends the aggregate span with dedup counts
func EndAggregate(span trace.Span, findings, duplicatesDropped int64) {
	span.SetAttributes(
		attribute.Int64("findings.persisted", findings),
		attribute.Int64("findings.duplicates_dropped", duplicatesDropped),
	)
	span.End()
}

// RecordError records an error in a span
func RecordError(span trace.Span, errorMessage string, errorType string) {
	span.SetAttributes(
		attribute.String("error.message", errorMessage),
		attribute.String("error.type", errorType),
		attribute.Bool("error.occurred", true),
	)
}
