package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/velhola/gleaner/config"
	"github.com/velhola/gleaner/orchestrator"
	"github.com/velhola/gleaner/policy"
	"github.com/velhola/gleaner/pricing"
	"github.com/velhola/gleaner/providers"
	_ "github.com/velhola/gleaner/providers/aws" // Register AWS provider
	"github.com/velhola/gleaner/ratelimit"
	"github.com/velhola/gleaner/scenario"
	"github.com/velhola/gleaner/storage"
	"github.com/velhola/gleaner/telemetry"
	"github.com/velhola/gleaner/types"
	"github.com/velhola/gleaner/wal"
)

// ScanCommand implements the 'gleaner scan' command
type ScanCommand struct {
	Regions       []string
	RulesPath     string
	PolicyDir     string
	Output        string
	StoreDir      string
	JournalDir    string
	Deadline      time.Duration
	MinConfidence string
}

// scanInfra holds the wired collaborators of one scan.
type scanInfra struct {
	sessions []providers.Enumerator
	rules    *scenario.Store
	policies *policy.Engine
	store    *storage.Store
	journal  *wal.WAL
	pricing  *pricing.Registry
}

func (i *scanInfra) Close() {
	if i.rules != nil {
		i.rules.Close()
	}
	if i.store != nil {
		_ = i.store.Close()
	}
	if i.journal != nil {
		_ = i.journal.Close()
	}
}

// Run executes the scan command
func (cmd *ScanCommand) Run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cmd.applyOverrides(cfg)

	var minTier types.Tier
	filterTier := cmd.MinConfidence != ""
	if filterTier {
		minTier, err = types.ParseTier(cmd.MinConfidence)
		if err != nil {
			return err
		}
	}

	infra, err := openInfra(ctx, cfg)
	if err != nil {
		return err
	}
	defer infra.Close()

	if cmd.Output != "json" {
		fmt.Printf("Scanning %s regions %s...\n\n", cfg.Provider, strings.Join(cfg.Regions, ", "))
	}

	orch := orchestrator.New(infra.sessions, infra.rules, infra.pricing, orchestrator.Options{
		Parallelism: cfg.Scan.Parallelism,
		AccountCap:  cfg.Scan.AccountCap,
		Deadline:    cfg.Scan.Deadline,
	})
	if infra.policies != nil {
		orch = orch.WithPolicies(infra.policies)
	}
	if infra.store != nil {
		orch = orch.WithSink(infra.store)
	}
	if infra.journal != nil {
		orch = orch.WithJournal(infra.journal)
	}

	report, findings, err := orch.Run(ctx)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if filterTier {
		findings = filterByConfidence(findings, minTier)
	}

	switch cmd.Output {
	case "json":
		return outputJSON(report, findings)
	default:
		return outputTable(report, findings)
	}
}

// applyOverrides lets flags win over the config file.
func (cmd *ScanCommand) applyOverrides(cfg *config.Config) {
	if len(cmd.Regions) > 0 {
		cfg.Regions = cmd.Regions
	}
	if cmd.RulesPath != "" {
		cfg.Rules.Path = cmd.RulesPath
	}
	if cmd.PolicyDir != "" {
		cfg.Policy.Dir = cmd.PolicyDir
	}
	if cmd.StoreDir != "" {
		cfg.Storage.Dir = cmd.StoreDir
	}
	if cmd.JournalDir != "" {
		cfg.Journal.Dir = cmd.JournalDir
	}
	if cmd.Deadline > 0 {
		cfg.Scan.Deadline = cmd.Deadline
	}
}

// openInfra wires every collaborator a scan needs from config. On error,
// anything already opened is closed.
func openInfra(ctx context.Context, cfg *config.Config) (*scanInfra, error) {
	logger := telemetry.NewLogger("cli")
	infra := &scanInfra{pricing: pricing.NewRegistry(pricing.DefaultSnapshot())}

	limits := ratelimit.NewRegistry(ratelimit.Limit{QPS: cfg.Scan.RatePerSec})

	for _, region := range cfg.Regions {
		session, err := providers.Open(ctx, cfg.Provider, providers.Config{
			Region: region,
			Limits: limits,
			Logger: logger,
		})
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("failed to open %s session for %s: %w", cfg.Provider, region, err)
		}
		infra.sessions = append(infra.sessions, session)
	}

	rules, err := scenario.NewStore(cfg.Rules.Path, infra.pricing, logger)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("failed to load scenario rules: %w", err)
	}
	infra.rules = rules

	if cfg.Policy.Dir != "" {
		engine := policy.NewEngine()
		if err := engine.LoadDir(ctx, cfg.Policy.Dir); err != nil {
			infra.Close()
			return nil, fmt.Errorf("failed to load policies: %w", err)
		}
		infra.policies = engine
	}

	if cfg.Storage.Dir != "" {
		store, err := storage.Open(cfg.Storage.Dir)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("failed to open finding store: %w", err)
		}
		infra.store = store
	}

	if cfg.Journal.Dir != "" {
		walCfg := wal.DefaultConfig()
		if cfg.Journal.RetentionDays > 0 {
			walCfg.RetentionDays = cfg.Journal.RetentionDays
		}
		journal, err := wal.Open(cfg.Journal.Dir, walCfg)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		infra.journal = journal
	}

	return infra, nil
}

func filterByConfidence(findings []types.Finding, min types.Tier) []types.Finding {
	kept := findings[:0]
	for _, f := range findings {
		if f.Confidence.AtLeast(min) {
			kept = append(kept, f)
		}
	}
	return kept
}

// outputTable prints the findings followed by the coverage summary.
func outputTable(report types.ScanReport, findings []types.Finding) error {
	fmt.Printf("Scan %s: %s in %s\n", report.ID, report.Status, report.Duration().Round(time.Millisecond))
	fmt.Printf("   Resources: %d\n", report.Resources)
	fmt.Printf("   Findings: %d (%d suppressed)\n", report.Findings, report.Suppressed)
	fmt.Printf("   Monthly waste: %s USD (pricing %s)\n", report.MonthlyWaste.StringFixed(2), report.PricingVersion)
	fmt.Printf("\n")

	if len(report.Warnings) > 0 {
		fmt.Printf("Warnings:\n")
		for _, warning := range report.Warnings {
			fmt.Printf("   %s\n", warning)
		}
		fmt.Printf("\n")
	}
	if len(report.Errors) > 0 {
		fmt.Printf("Errors:\n")
		for _, scanErr := range report.Errors {
			fmt.Printf("   %s\n", scanErr)
		}
		fmt.Printf("\n")
	}

	visible := make([]types.Finding, 0, len(findings))
	for _, f := range findings {
		if !f.Suppressed {
			visible = append(visible, f)
		}
	}

	if len(visible) == 0 {
		fmt.Println("No waste found in the covered kinds.")
		printCoverageGaps(report)
		return nil
	}

	// Most expensive first
	sort.Slice(visible, func(i, j int) bool {
		return visible[i].Cost.TotalMonthly.GreaterThan(visible[j].Cost.TotalMonthly)
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RESOURCE\tKIND\tSCENARIO\tCONFIDENCE\tMONTHLY\tWASTED\tSUMMARY")
	_, _ = fmt.Fprintln(w, "--------\t----\t--------\t----------\t-------\t------\t-------")

	for _, f := range visible {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncate(f.ResourceID, 28),
			f.ResourceKind,
			f.ScenarioID,
			f.Confidence,
			f.Cost.TotalMonthly.StringFixed(2),
			f.Cost.AlreadyWasted.StringFixed(2),
			truncate(f.Summary, 44),
		)
	}

	_ = w.Flush()
	fmt.Printf("\n")

	printCoverageGaps(report)
	return nil
}

// printCoverageGaps lists every kind whose absence from the findings
// proves nothing.
func printCoverageGaps(report types.ScanReport) {
	var gaps []types.KindCoverage
	for _, cell := range report.Coverage {
		if cell.Outcome != types.KindScanned {
			gaps = append(gaps, cell)
		}
	}
	if len(gaps) == 0 {
		return
	}

	fmt.Printf("Not fully covered:\n")
	for _, cell := range gaps {
		switch cell.Outcome {
		case types.KindSkipped:
			fmt.Printf("   %s %s skipped: %s\n", cell.AccountID, cell.Kind, cell.Reason)
		default:
			fmt.Printf("   %s %s partial: %d of %d resources indeterminate\n",
				cell.AccountID, cell.Kind, cell.Indeterminate, cell.Resources)
		}
	}
	fmt.Printf("\n")
}

// outputJSON emits the report and findings as one document.
func outputJSON(report types.ScanReport, findings []types.Finding) error {
	result := struct {
		Report   types.ScanReport `json:"report"`
		Findings []types.Finding  `json:"findings"`
	}{Report: report, Findings: findings}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
