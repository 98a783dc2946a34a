// Package policy suppresses findings through operator-written OPA rules.
// Rego modules declare `package gleaner` and set `suppress` and `reason`
// document fields. Suppression never deletes a finding, it marks the
// finding so aggregation and default listings skip it.
package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/velhola/gleaner/telemetry"
	"github.com/velhola/gleaner/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Engine holds compiled suppression rules. Each loaded module is
// prepared as its own query so one module failing to evaluate never
// hides verdicts from the others.
type Engine struct {
	logger  *telemetry.Logger
	tracer  trace.Tracer
	queries map[string]rego.PreparedEvalQuery
}

// Input is the document suppression rules evaluate against.
type Input struct {
	Finding   types.Finding  `json:"finding"`
	Resource  types.Resource `json:"resource"`
	Timestamp time.Time      `json:"timestamp"`
}

// Verdict is the combined outcome of every loaded rule. Any single
// rule asking for suppression suppresses the finding.
type Verdict struct {
	Suppress bool
	Reason   string
	Rules    []string
}

// NewEngine creates an engine with no rules loaded.
func NewEngine() *Engine {
	return &Engine{
		logger:  telemetry.NewLogger("policy"),
		tracer:  otel.Tracer("policy"),
		queries: make(map[string]rego.PreparedEvalQuery),
	}
}

// Empty reports whether any rules are loaded.
func (e *Engine) Empty() bool {
	return len(e.queries) == 0
}

// LoadModule compiles one rego module and registers it under name.
func (e *Engine) LoadModule(ctx context.Context, name, source string) error {
	ctx, span := e.tracer.Start(ctx, "policy.load_module",
		trace.WithAttributes(attribute.String("policy.name", name)))
	defer span.End()

	prepared, err := rego.New(
		rego.Query("data.gleaner"),
		rego.Module(name, source),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to compile policy %s: %w", name, err)
	}

	e.queries[name] = prepared

	e.logger.WithContext(ctx).Info().
		Str("policy_name", name).
		Msg("policy loaded")
	return nil
}

// Evaluate runs every loaded rule against input. A rule that fails to
// evaluate is logged and skipped so a broken policy cannot stall a scan.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Verdict, error) {
	if e.Empty() {
		return Verdict{}, nil
	}

	ctx, span := e.tracer.Start(ctx, "policy.evaluate",
		trace.WithAttributes(
			attribute.String("resource.id", input.Finding.ResourceID),
			attribute.String("scenario.id", input.Finding.ScenarioID)))
	defer span.End()

	var verdict Verdict
	for name, query := range e.queries {
		suppress, reason, err := e.evaluateModule(ctx, query, input)
		if err != nil {
			e.logger.WithContext(ctx).Error().
				Err(err).
				Str("policy_name", name).
				Msg("policy evaluation failed")
			continue
		}
		if !suppress {
			continue
		}

		verdict.Suppress = true
		verdict.Rules = append(verdict.Rules, name)
		if verdict.Reason == "" {
			verdict.Reason = reason
		}
	}

	if verdict.Suppress && verdict.Reason == "" {
		verdict.Reason = fmt.Sprintf("suppressed by policy %s", verdict.Rules[0])
	}
	return verdict, nil
}

func (e *Engine) evaluateModule(ctx context.Context, query rego.PreparedEvalQuery, input Input) (bool, string, error) {
	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, "", fmt.Errorf("evaluation failed: %w", err)
	}

	var (
		suppress bool
		reason   string
	)
	for _, result := range results {
		for _, expression := range result.Expressions {
			// Rules live directly under `package gleaner`, so the
			// expression value is the flat field map.
			fields, ok := expression.Value.(map[string]interface{})
			if !ok {
				continue
			}
			if v, ok := fields["suppress"].(bool); ok && v {
				suppress = true
			}
			if v, ok := fields["reason"].(string); ok && reason == "" {
				reason = v
			}
		}
	}
	return suppress, reason, nil
}
