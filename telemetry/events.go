package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RecordFindingDetectedEvent emits a structured event for one waste finding
func RecordFindingDetectedEvent(
	span trace.Span,
	scenarioID string,
	resourceID string,
	resourceKind string,
	confidence string,
	monthlyUSD string,
	provider string,
	region string,
	message string,
) {
	if span == nil {
		return
	}

	span.AddEvent("waste.finding.detected", trace.WithAttributes(
		attribute.String("event.type", "waste.finding.detected"),
		attribute.String("scenario.id", scenarioID),
		attribute.String("resource.id", resourceID),
		attribute.String("resource.kind", resourceKind),
		attribute.String("confidence", confidence),
		attribute.String("cost.monthly_usd", monthlyUSD),
		attribute.String("provider", provider),
		attribute.String("region", region),
		attribute.String("message", message),
	))
}

// RecordKindSkippedEvent emits a structured event for a skipped resource kind
func RecordKindSkippedEvent(
	span trace.Span,
	resourceKind string,
	reason string,
	provider string,
	region string,
	errorMsg string,
) {
	if span == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("event.type", "scan.kind.skipped"),
		attribute.String("resource.kind", resourceKind),
		attribute.String("reason", reason),
		attribute.String("provider", provider),
		attribute.String("region", region),
	}

	if errorMsg != "" {
		attrs = append(attrs, attribute.String("error", errorMsg))
	}

	span.AddEvent("scan.kind.skipped", trace.WithAttributes(attrs...))
}

// RecordGraphIntegrityEvent emits a structured event for malformed dependency data
func RecordGraphIntegrityEvent(
	span trace.Span,
	resourceID string,
	detail string,
	message string,
) {
	if span == nil {
		return
	}

	span.AddEvent("graph.integrity.error", trace.WithAttributes(
		attribute.String("event.type", "graph.integrity.error"),
		attribute.String("resource.id", resourceID),
		attribute.String("detail", detail),
		attribute.String("message", message),
	))
}

// RecordRuleSetLoadedEvent emits a structured event for a scenario rule set load
func RecordRuleSetLoadedEvent(
	span trace.Span,
	version string,
	ruleCount int64,
	rejectedCount int64,
) {
	if span == nil {
		return
	}

	span.AddEvent("rules.loaded", trace.WithAttributes(
		attribute.String("event.type", "rules.loaded"),
		attribute.String("ruleset.version", version),
		attribute.Int64("rules.count", ruleCount),
		attribute.Int64("rules.rejected", rejectedCount),
	))
}

// RecordScanCompletedEvent emits a structured event for scan completion
func RecordScanCompletedEvent(
	span trace.Span,
	scanID string,
	state string,
	provider string,
	resourcesEnumerated int64,
	findingsEmitted int64,
	kindsSkipped int64,
	durationSeconds float64,
	message string,
) {
	if span == nil {
		return
	}

	span.AddEvent("scan.completed", trace.WithAttributes(
		attribute.String("event.type", "scan.completed"),
		attribute.String("scan.id", scanID),
		attribute.String("scan.state", state),
		attribute.String("provider", provider),
		attribute.Int64("resources.enumerated", resourcesEnumerated),
		attribute.Int64("findings.emitted", findingsEmitted),
		attribute.Int64("kinds.skipped", kindsSkipped),
		attribute.Float64("duration.seconds", durationSeconds),
		attribute.String("message", message),
	))
}
