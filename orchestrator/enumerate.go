package orchestrator

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/velhola/gleaner/graph"
	"github.com/velhola/gleaner/providers"
	"github.com/velhola/gleaner/telemetry"
	"github.com/velhola/gleaner/types"
	"github.com/velhola/gleaner/wal"
)

// enumerate lists every kind the rule set covers across every session.
// Kind-level failures mark the kind Skipped and move on; they never
// abort the scan.
func (o *Orchestrator) enumerate(ctx context.Context, sc *scan) {
	sc.sessions = make([]*session, 0, len(o.enums))
	for _, enum := range o.enums {
		sc.sessions = append(sc.sessions, &session{
			enum:    enum,
			querier: querierFor(enum),
		})
	}

	var mu sync.Mutex
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(o.opts.Parallelism)

	for _, sess := range sc.sessions {
		for _, kind := range kindsToScan(sess.enum, sc) {
			group.Go(func() error {
				o.enumerateKind(gctx, sc, sess, kind, &mu)
				return nil
			})
		}
	}
	// Closures never return errors; Wait only collects.
	_ = group.Wait()

	if ctx.Err() != nil {
		sc.deadline = true
	}
}

// kindsToScan intersects what the adapter can list with what the rule
// set has scenarios for. Kinds without rules are not enumerated; they
// would burn provider quota to prove nothing. The exception is target
// chains: when any graph scenario runs, every chain kind must be
// present in the graph even if no rule targets it, or resolvable
// chains would read as dangling.
func kindsToScan(enum providers.Enumerator, sc *scan) []types.Kind {
	ruled := make(map[types.Kind]bool)
	needGraph := false
	for _, k := range sc.set.Kinds() {
		ruled[k] = true
		if sc.set.NeedsGraph(k) {
			needGraph = true
		}
	}
	if needGraph {
		for _, k := range graph.ChainKinds {
			ruled[k] = true
		}
	}

	var out []types.Kind
	for _, k := range enum.Kinds() {
		if ruled[k] {
			out = append(out, k)
		}
	}
	return out
}

func (o *Orchestrator) enumerateKind(ctx context.Context, sc *scan, sess *session, kind types.Kind, mu *sync.Mutex) {
	enum := sess.enum
	started := o.now()
	ctx, span := telemetry.StartEnumerate(ctx, o.tracer, string(kind), enum.Region())

	resources, err := enum.List(ctx, kind)
	elapsed := o.now().Sub(started)

	if err != nil {
		reason := skipReason(err)
		telemetry.RecordError(span, err.Error(), reason)
		telemetry.RecordKindSkippedEvent(span, string(kind), reason, enum.Name(), enum.Region(), err.Error())
		span.End()

		o.logger.LogKindSkipped(ctx, string(kind), reason, err)
		if o.metrics != nil {
			o.metrics.RecordKindSkipped(ctx, string(kind), reason, enum.Name(), enum.Region())
		}
		o.journalFailure(sc.id, wal.EntryKindSkipped, string(kind), err)

		mu.Lock()
		recordCoverage(sc, kindKey{enum.AccountID(), kind}, types.KindSkipped, err.Error(), 0)
		mu.Unlock()
		return
	}

	telemetry.EndEnumerate(span, int64(len(resources)), elapsed.Seconds())
	if o.metrics != nil {
		o.metrics.RecordEnumerateDuration(ctx, string(kind), enum.Name(), enum.Region(), float64(elapsed.Milliseconds()))
	}
	o.journalEvent(sc.id, wal.EntryKindListed, string(kind), map[string]any{
		"account":   enum.AccountID(),
		"region":    enum.Region(),
		"resources": len(resources),
	})

	mu.Lock()
	sess.resources = append(sess.resources, resources...)
	recordCoverage(sc, kindKey{enum.AccountID(), kind}, types.KindScanned, "", len(resources))
	mu.Unlock()
}

// skipReason classifies an enumeration failure for metrics and logs.
func skipReason(err error) string {
	var perm *providers.PermissionError
	if errors.As(err, &perm) {
		return "permission"
	}
	var transient *providers.TransientError
	if errors.As(err, &transient) {
		return "transient"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "deadline"
	}
	return "error"
}

// recordCoverage folds one enumeration result into a coverage cell. The
// same (account, kind) cell can be written by several regional
// sessions; disagreement between them degrades the cell to Partial so
// it can never resolve findings it did not fully check.
func recordCoverage(sc *scan, key kindKey, outcome types.KindOutcome, reason string, resources int) {
	cell, ok := sc.coverage[key]
	if !ok {
		sc.coverage[key] = &kindState{outcome: outcome, reason: reason, resources: resources}
		return
	}

	cell.resources += resources
	if cell.outcome != outcome {
		cell.outcome = types.KindPartial
	}
	if reason != "" {
		if cell.reason != "" {
			cell.reason += "; "
		}
		cell.reason += reason
	}
}
