package telemetry

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestRecordFindingDetectedEvent tests finding log events
func TestRecordFindingDetectedEvent(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSyncer(exporter),
	)
	tracer := provider.Tracer("test")

	ctx, span := tracer.Start(context.Background(), "test")

	RecordFindingDetectedEvent(
		span,
		"stopped-instance",
		"i-1234567890abcdef0",
		"vm_instance",
		"high",
		"73.20",
		"aws",
		"us-east-1",
		"Stopped instance still paying for attached storage",
	)

	span.End()
	_ = provider.ForceFlush(ctx)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}

	events := spans[0].Events
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}

	event := events[0]
	if event.Name != "waste.finding.detected" {
		t.Errorf("Expected event name 'waste.finding.detected', got '%s'", event.Name)
	}

	attrs := make(map[string]string)
	for _, attr := range event.Attributes {
		attrs[string(attr.Key)] = attr.Value.AsString()
	}

	if attrs["scenario.id"] != "stopped-instance" {
		t.Errorf("Expected scenario.id 'stopped-instance', got '%s'", attrs["scenario.id"])
	}
	if attrs["confidence"] != "high" {
		t.Errorf("Expected confidence 'high', got '%s'", attrs["confidence"])
	}
	if attrs["cost.monthly_usd"] != "73.20" {
		t.Errorf("Expected cost '73.20', got '%s'", attrs["cost.monthly_usd"])
	}
}

// TestRecordKindSkippedEvent tests skipped-kind log events
func TestRecordKindSkippedEvent(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSyncer(exporter),
	)
	tracer := provider.Tracer("test")

	ctx, span := tracer.Start(context.Background(), "test")

	RecordKindSkippedEvent(span, "database", "permission_denied", "aws", "eu-west-1", "AccessDenied")

	span.End()
	_ = provider.ForceFlush(ctx)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}

	events := spans[0].Events
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}

	if events[0].Name != "scan.kind.skipped" {
		t.Errorf("Expected event name 'scan.kind.skipped', got '%s'", events[0].Name)
	}

	attrs := make(map[string]string)
	for _, attr := range events[0].Attributes {
		attrs[string(attr.Key)] = attr.Value.AsString()
	}

	if attrs["error"] != "AccessDenied" {
		t.Errorf("Expected error attribute, got '%s'", attrs["error"])
	}
}

// TestRecordKindSkippedEvent_NilSpan verifies nil spans are tolerated
func TestRecordKindSkippedEvent_NilSpan(t *testing.T) {
	// Must not panic
	RecordKindSkippedEvent(nil, "database", "permission_denied", "aws", "eu-west-1", "")
	RecordFindingDetectedEvent(nil, "", "", "", "", "", "", "", "")
	RecordScanCompletedEvent(nil, "", "", "", 0, 0, 0, 0, "")
	RecordGraphIntegrityEvent(nil, "", "", "")
	RecordRuleSetLoadedEvent(nil, "", 0, 0)
}

// TestScanSpanPhases exercises the phase span helpers end to end
func TestScanSpanPhases(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSyncer(exporter),
	)
	tracer := provider.Tracer("test")

	ctx, scan := StartScan(context.Background(), tracer, "scan-42", "aws", "123456789012")

	enumCtx, enumSpan := StartEnumerate(ctx, tracer, "vm_instance", "us-east-1")
	EndEnumerate(enumSpan, 12, 0.5)

	_, graphSpan := StartBuildGraph(enumCtx, tracer)
	EndBuildGraph(graphSpan, 40, 35, 0)

	_, evalSpan := StartEvaluate(ctx, tracer)
	EndEvaluate(evalSpan, 120, 7, 3)

	_, aggSpan := StartAggregate(ctx, tracer)
	EndAggregate(aggSpan, 7, 1)

	scan.SetResourceCount(12)
	scan.SetFindingCount(7, 1)
	scan.SetTerminalState("completed", 0)
	scan.End()

	_ = provider.ForceFlush(ctx)

	spans := exporter.GetSpans()
	if len(spans) != 5 {
		t.Fatalf("Expected 5 spans, got %d", len(spans))
	}

	names := make(map[string]bool)
	for _, s := range spans {
		names[s.Name] = true
	}
	for _, want := range []string{"scan", "enumerate", "build_graph", "evaluate", "aggregate"} {
		if !names[want] {
			t.Errorf("Expected span %q", want)
		}
	}
}
