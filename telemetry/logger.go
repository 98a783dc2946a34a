package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	// Skip if no context
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	// Extract span from context
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	// Add trace context to log
	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	// Add span attributes as log fields for correlation
	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a new logger with OTEL hooks
func NewLogger(service string) *Logger {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	// Create base logger with service context
	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", service).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithContext returns a logger with context (for trace propagation)
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// Convenience methods for scan phases

func (l *Logger) LogKindSkipped(ctx context.Context, kind string, reason string, err error) {
	l.WithContext(ctx).Warn().
		Err(err).
		Str("kind", kind).
		Str("reason", reason).
		Msg("resource kind skipped")
}

func (l *Logger) LogMetricDegraded(ctx context.Context, resourceID string, metricName string, err error) {
	l.WithContext(ctx).Warn().
		Err(err).
		Str("resource_id", resourceID).
		Str("metric", metricName).
		Msg("metric query degraded to indeterminate")
}

func (l *Logger) LogRuleRejected(ctx context.Context, scenarioID string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("scenario_id", scenarioID).
		Msg("scenario rule rejected at load")
}

func (l *Logger) LogStorageError(ctx context.Context, operation string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("operation", operation).
		Msg("storage operation failed")
}
