// Package orchestrator runs scans: enumerate resources per kind, build
// the dependency graph, evaluate scenario rules in a bounded pool, and
// aggregate findings into a coverage-annotated report. A kind that
// cannot be enumerated is skipped with its reason recorded, never
// silently dropped, so an empty findings list always means "checked and
// clean" rather than "could not check".
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/velhola/gleaner/metrics"
	"github.com/velhola/gleaner/policy"
	"github.com/velhola/gleaner/pricing"
	"github.com/velhola/gleaner/providers"
	"github.com/velhola/gleaner/scenario"
	"github.com/velhola/gleaner/storage"
	"github.com/velhola/gleaner/telemetry"
	"github.com/velhola/gleaner/types"
	"github.com/velhola/gleaner/wal"
)

// Options bounds one scan's parallelism and duration.
type Options struct {
	// Parallelism caps concurrent evaluation units across all accounts.
	Parallelism int

	// AccountCap caps concurrent units per account, on top of the token
	// buckets the adapters consult, so one large account cannot starve
	// provider quota for the rest.
	AccountCap int

	// Deadline bounds the whole scan. Zero means no deadline. On expiry
	// the remaining units are abandoned and the scan reports
	// PartiallyFailed.
	Deadline time.Duration
}

func (o Options) withDefaults() Options {
	if o.Parallelism <= 0 {
		o.Parallelism = 8
	}
	if o.AccountCap <= 0 {
		o.AccountCap = 4
	}
	return o
}

// Orchestrator coordinates enumerate → graph → evaluate → aggregate for
// any number of opened provider sessions.
type Orchestrator struct {
	enums     []providers.Enumerator
	rules     RuleSource
	registry  *pricing.Registry
	evaluator *scenario.Evaluator
	policies  *policy.Engine
	sink      storage.FindingSink
	journal   *wal.WAL
	metrics   *telemetry.ScanMetrics
	logger    *telemetry.Logger
	tracer    trace.Tracer
	opts      Options
	now       func() time.Time
}

// New creates an orchestrator over opened provider sessions.
func New(enums []providers.Enumerator, rules RuleSource, registry *pricing.Registry, opts Options) *Orchestrator {
	logger := telemetry.NewLogger("orchestrator")
	return &Orchestrator{
		enums:     enums,
		rules:     rules,
		registry:  registry,
		evaluator: scenario.NewEvaluator(registry, logger),
		logger:    logger,
		tracer:    otel.Tracer("orchestrator"),
		opts:      opts.withDefaults(),
		now:       time.Now,
	}
}

// WithSink persists scan results to the given store.
func (o *Orchestrator) WithSink(sink storage.FindingSink) *Orchestrator {
	o.sink = sink
	return o
}

// WithJournal records scan lifecycle events to the journal.
func (o *Orchestrator) WithJournal(journal *wal.WAL) *Orchestrator {
	o.journal = journal
	return o
}

// WithPolicies applies a suppression engine to findings before
// aggregation.
func (o *Orchestrator) WithPolicies(engine *policy.Engine) *Orchestrator {
	o.policies = engine
	return o
}

// WithMetrics emits scan pipeline metrics.
func (o *Orchestrator) WithMetrics(m *telemetry.ScanMetrics) *Orchestrator {
	o.metrics = m
	return o
}

// WithClock pins the orchestrator's clock, for tests.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	o.evaluator.WithClock(now)
	return o
}

// Run executes one scan and returns its report and findings. The error
// is non-nil only for scans that produced nothing trustworthy: no rules
// loaded, or every kind failed to enumerate.
func (o *Orchestrator) Run(ctx context.Context) (types.ScanReport, []types.Finding, error) {
	start := o.now()
	sc := &scan{
		id:       fmt.Sprintf("scan-%s", start.UTC().Format("20060102-150405")),
		set:      o.rules.Current(),
		coverage: make(map[kindKey]*kindState),
	}
	sc.report = types.ScanReport{ID: sc.id, StartedAt: start}

	if sc.set == nil || sc.set.Len() == 0 {
		return sc.report, nil, fmt.Errorf("no scenario rules loaded")
	}
	if len(o.enums) == 0 {
		return sc.report, nil, fmt.Errorf("no provider sessions configured")
	}
	sc.report.RuleSetVersion = sc.set.Version()
	if snapshot := o.registry.Snapshot(); snapshot != nil {
		sc.report.PricingVersion = snapshot.ID()
	}
	for _, rejected := range sc.set.Rejected() {
		sc.report.Warnings = append(sc.report.Warnings, rejected.Error())
	}

	if o.opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Deadline)
		defer cancel()
	}

	ctx, span := telemetry.StartScan(ctx, o.tracer, sc.id,
		o.enums[0].Name(), strings.Join(accountIDs(o.enums), ","))
	defer span.End()

	o.logPhase(ctx, sc.id, PhasePending)
	telemetry.RecordRuleSetLoadedEvent(trace.SpanFromContext(ctx),
		sc.set.Version(), int64(sc.set.Len()), int64(len(sc.set.Rejected())))
	o.journalEvent(sc.id, wal.EntryScanStarted, "", map[string]any{
		"sessions":         len(o.enums),
		"rules":            sc.set.Len(),
		"rule_set_version": sc.set.Version(),
	})

	o.logPhase(ctx, sc.id, PhaseEnumerating)
	o.enumerate(ctx, sc)
	if scannedKinds(sc) == 0 {
		return o.fail(ctx, sc, span, fmt.Errorf("enumeration failed for every kind"))
	}

	o.buildGraphs(ctx, sc)

	o.logPhase(ctx, sc.id, PhaseEvaluating)
	o.evaluate(ctx, sc)

	o.logPhase(ctx, sc.id, PhaseAggregating)
	findings := o.aggregate(ctx, sc)

	o.finish(ctx, sc, span, findings)
	o.logPhase(ctx, sc.id, PhaseDone)
	return sc.report, findings, nil
}

// fail finalizes a scan whose enumeration produced nothing at all.
func (o *Orchestrator) fail(ctx context.Context, sc *scan, span *telemetry.ScanSpan, cause error) (types.ScanReport, []types.Finding, error) {
	sc.report.Status = types.ScanFailed
	sc.report.FinishedAt = o.now()
	sc.report.Errors = append(sc.report.Errors, cause.Error())
	sc.report.Coverage = coverageSlice(sc)

	span.SetTerminalState(string(sc.report.Status), int64(skippedKinds(sc)))
	telemetry.RecordError(trace.SpanFromContext(ctx), cause.Error(), "enumeration")
	o.journalEvent(sc.id, wal.EntryScanFinished, "", map[string]any{
		"status": sc.report.Status,
	})
	o.logger.WithContext(ctx).Error().
		Str("scan_id", sc.id).
		Err(cause).
		Msg("scan failed")
	return sc.report, nil, cause
}

func (o *Orchestrator) logPhase(ctx context.Context, scanID string, phase Phase) {
	o.logger.WithContext(ctx).Info().
		Str("scan_id", scanID).
		Str("phase", string(phase)).
		Msg("scan phase")
}

// journalEvent writes one journal entry, tolerating a missing journal.
// Journal write failures must not disturb the scan; they are logged and
// dropped.
func (o *Orchestrator) journalEvent(scanID string, entryType wal.EntryType, subject string, data any) {
	if o.journal == nil {
		return
	}
	if err := o.journal.Append(scanID, entryType, subject, data); err != nil {
		o.logger.Warn().Err(err).Str("scan_id", scanID).Msg("journal write failed")
	}
}

func (o *Orchestrator) journalFailure(scanID string, entryType wal.EntryType, subject string, cause error) {
	if o.journal == nil {
		return
	}
	if err := o.journal.AppendError(scanID, entryType, subject, cause); err != nil {
		o.logger.Warn().Err(err).Str("scan_id", scanID).Msg("journal write failed")
	}
}

func accountIDs(enums []providers.Enumerator) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range enums {
		if !seen[e.AccountID()] {
			seen[e.AccountID()] = true
			out = append(out, e.AccountID())
		}
	}
	return out
}

func scannedKinds(sc *scan) int {
	var n int
	for _, cell := range sc.coverage {
		if cell.outcome != types.KindSkipped {
			n++
		}
	}
	return n
}

func skippedKinds(sc *scan) int {
	var n int
	for _, cell := range sc.coverage {
		if cell.outcome == types.KindSkipped {
			n++
		}
	}
	return n
}

// querierFor derives a metric querier from an adapter, nil when the
// provider exposes no monitoring backend. Metric predicates then
// degrade to Indeterminate instead of guessing.
func querierFor(enum providers.Enumerator) scenario.MetricQuerier {
	sourcer, ok := enum.(providers.MetricSourcer)
	if !ok {
		return nil
	}
	source := sourcer.MetricSource()
	if source == nil {
		return nil
	}
	return metrics.NewAggregator(source)
}
