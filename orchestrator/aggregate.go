package orchestrator

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"

	"github.com/velhola/gleaner/policy"
	"github.com/velhola/gleaner/telemetry"
	"github.com/velhola/gleaner/types"
	"github.com/velhola/gleaner/wal"
)

// aggregate dedupes and suppresses the findings batch, then folds the
// working coverage cells into the report and journals each finding.
func (o *Orchestrator) aggregate(ctx context.Context, sc *scan) []types.Finding {
	ctx, span := telemetry.StartAggregate(ctx, o.tracer)

	findings, duplicates := dedupe(sc.findings)
	for i := range findings {
		findings[i].RuleSetVersion = sc.set.Version()
	}
	o.suppress(ctx, sc, findings)

	total := decimal.Zero
	var suppressed int
	for _, f := range findings {
		cell := sc.coverage[kindKey{f.AccountID, f.ResourceKind}]
		if cell != nil {
			cell.findings++
		}
		if f.Suppressed {
			suppressed++
			continue
		}
		total = total.Add(f.Cost.TotalMonthly)
	}

	sc.report.Resources = sc.totalResources()
	sc.report.Findings = len(findings)
	sc.report.Suppressed = suppressed
	sc.report.MonthlyWaste = total
	sc.report.Coverage = coverageSlice(sc)
	sc.report.Status = terminalStatus(sc)
	sc.report.FinishedAt = o.now()

	for _, f := range findings {
		telemetry.RecordFindingDetectedEvent(span, f.ScenarioID, f.ResourceID,
			string(f.ResourceKind), f.Confidence.String(), f.Cost.TotalMonthly.StringFixed(2),
			f.Provider, f.Region, f.Summary)
		o.journalEvent(sc.id, wal.EntryFinding, f.Key(), map[string]any{
			"account":     f.AccountID,
			"monthly_usd": f.Cost.TotalMonthly,
			"confidence":  f.Confidence.String(),
			"suppressed":  f.Suppressed,
		})
	}

	telemetry.EndAggregate(span, int64(len(findings)), int64(duplicates))
	return findings
}

// dedupe orders findings by (resource, scenario) and keeps the first of
// each key. A resource cannot carry two findings for the same scenario
// within one scan.
func dedupe(findings []*types.Finding) ([]types.Finding, int) {
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].ResourceID != findings[j].ResourceID {
			return findings[i].ResourceID < findings[j].ResourceID
		}
		return findings[i].ScenarioID < findings[j].ScenarioID
	})

	out := make([]types.Finding, 0, len(findings))
	var duplicates int
	for _, f := range findings {
		if n := len(out); n > 0 && out[n-1].Key() == f.Key() {
			duplicates++
			continue
		}
		out = append(out, *f)
	}
	return out, duplicates
}

// suppress runs the policy engine over each finding. Suppressed
// findings stay in the batch, marked, so the store keeps the audit
// trail while totals and default listings skip them.
func (o *Orchestrator) suppress(ctx context.Context, sc *scan, findings []types.Finding) {
	if o.policies == nil || o.policies.Empty() {
		return
	}

	resources := make(map[string]types.Resource)
	for _, sess := range sc.sessions {
		for _, res := range sess.resources {
			resources[res.ID] = res
		}
	}

	now := o.now()
	for i := range findings {
		verdict, err := o.policies.Evaluate(ctx, policy.Input{
			Finding:   findings[i],
			Resource:  resources[findings[i].ResourceID],
			Timestamp: now,
		})
		if err != nil {
			o.logger.WithContext(ctx).Error().
				Err(err).
				Str("finding", findings[i].Key()).
				Msg("suppression policy failed")
			continue
		}
		if verdict.Suppress {
			findings[i].Suppressed = true
			findings[i].SuppressReason = verdict.Reason
		}
	}
}

// coverageSlice folds the working cells into the report's coverage
// list, sorted for stable output. A scanned cell with indeterminate
// evaluations degrades to Partial here.
func coverageSlice(sc *scan) []types.KindCoverage {
	out := make([]types.KindCoverage, 0, len(sc.coverage))
	for key, cell := range sc.coverage {
		outcome := cell.outcome
		reason := cell.reason
		if outcome == types.KindScanned && (cell.indeterminate > 0 || sc.deadline) {
			outcome = types.KindPartial
			if reason == "" && sc.deadline {
				reason = "scan deadline exceeded"
			}
		}
		out = append(out, types.KindCoverage{
			AccountID:     key.account,
			Kind:          key.kind,
			Outcome:       outcome,
			Reason:        reason,
			Resources:     cell.resources,
			Findings:      cell.findings,
			Indeterminate: cell.indeterminate,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountID != out[j].AccountID {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// terminalStatus decides the scan's terminal state: Completed only when
// every kind enumerated cleanly and nothing was cut short.
func terminalStatus(sc *scan) types.ScanStatus {
	if sc.deadline || skippedKinds(sc) > 0 {
		return types.ScanPartiallyFailed
	}
	for _, cell := range sc.coverage {
		if cell.outcome == types.KindPartial {
			return types.ScanPartiallyFailed
		}
	}
	return types.ScanCompleted
}

// finish persists the scan and emits the trailing telemetry. A failed
// persist is recorded on the report but does not fail the scan; the
// findings were still produced and returned.
func (o *Orchestrator) finish(ctx context.Context, sc *scan, span *telemetry.ScanSpan, findings []types.Finding) {
	if o.sink != nil {
		if _, err := o.sink.SaveScan(sc.report, findings); err != nil {
			sc.report.Errors = append(sc.report.Errors, "persist failed: "+err.Error())
			o.logger.LogStorageError(ctx, "save_scan", err)
		}
	}

	o.journalEvent(sc.id, wal.EntryScanFinished, "", map[string]any{
		"status":   sc.report.Status,
		"findings": sc.report.Findings,
		"waste":    sc.report.MonthlyWaste,
	})

	span.SetResourceCount(int64(sc.report.Resources))
	span.SetFindingCount(int64(sc.report.Findings), int64(sc.report.Suppressed))
	span.SetTerminalState(string(sc.report.Status), int64(skippedKinds(sc)))
	telemetry.RecordScanCompletedEvent(trace.SpanFromContext(ctx), sc.id,
		string(sc.report.Status), o.enums[0].Name(), int64(sc.report.Resources),
		int64(sc.report.Findings), int64(skippedKinds(sc)),
		sc.report.Duration().Seconds(), "scan complete")

	o.recordScanTotals(ctx, sc, findings)
	o.logger.WithContext(ctx).Info().
		Str("scan_id", sc.id).
		Str("status", string(sc.report.Status)).
		Int("resources", sc.report.Resources).
		Int("findings", sc.report.Findings).
		Int("suppressed", sc.report.Suppressed).
		Str("monthly_waste", sc.report.MonthlyWaste.StringFixed(2)).
		Dur("duration", sc.report.Duration()).
		Msg("scan complete")
}

func (o *Orchestrator) recordScanTotals(ctx context.Context, sc *scan, findings []types.Finding) {
	if o.metrics == nil {
		return
	}

	type totals struct {
		resources int64
		findings  int64
		waste     decimal.Decimal
	}
	byAccount := make(map[string]*totals)
	for _, account := range sc.accounts() {
		byAccount[account] = &totals{waste: decimal.Zero}
	}
	for _, sess := range sc.sessions {
		byAccount[sess.enum.AccountID()].resources += int64(len(sess.resources))
	}
	for _, f := range findings {
		t := byAccount[f.AccountID]
		if t == nil || f.Suppressed {
			continue
		}
		t.findings++
		t.waste = t.waste.Add(f.Cost.TotalMonthly)
	}

	provider := o.enums[0].Name()
	for account, t := range byAccount {
		waste, _ := t.waste.Float64()
		o.metrics.RecordScanTotals(ctx, provider, account, t.resources, t.findings, waste)
	}
	for _, f := range findings {
		if f.Suppressed {
			continue
		}
		o.metrics.RecordFindingDetected(ctx, f.ScenarioID, string(f.ResourceKind),
			f.Confidence.String(), f.Provider, f.Region)
	}
}
