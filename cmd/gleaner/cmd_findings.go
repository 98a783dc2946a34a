package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/velhola/gleaner/storage"
	"github.com/velhola/gleaner/types"
)

var (
	findingsStoreDir   string
	findingsAccount    string
	findingsKind       string
	findingsScenario   string
	findingsSuppressed bool
	findingsOutput     string
)

// findingsCmd represents the findings command
var findingsCmd = &cobra.Command{
	Use:   "findings",
	Short: "List open findings from the store",
	Long: `List the findings that are currently open in the finding store.

A finding stays open until a later scan covers its kind again and the
finding is gone. Suppressed findings are kept but hidden unless
--include-suppressed is given.`,
	Example: `  gleaner findings --store ./gleaner.db
  gleaner findings --account 123456789012      # One account
  gleaner findings --kind disk                 # One resource kind
  gleaner findings --scenario unattached-disk  # One scenario
  gleaner findings --include-suppressed        # Show suppressed too
  gleaner findings --output json               # Machine-readable`,
	RunE: runFindings,
}

func init() {
	rootCmd.AddCommand(findingsCmd)

	findingsCmd.Flags().StringVar(&findingsStoreDir, "store", "", "Finding store directory (overrides config)")
	findingsCmd.Flags().StringVar(&findingsAccount, "account", "", "Filter by account ID")
	findingsCmd.Flags().StringVar(&findingsKind, "kind", "", "Filter by resource kind")
	findingsCmd.Flags().StringVar(&findingsScenario, "scenario", "", "Filter by scenario ID")
	findingsCmd.Flags().BoolVar(&findingsSuppressed, "include-suppressed", false, "Include policy-suppressed findings")
	findingsCmd.Flags().StringVarP(&findingsOutput, "output", "o", "table", "Output format: table, json")
}

func runFindings(cmd *cobra.Command, args []string) error {
	dir := findingsStoreDir
	if dir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir = cfg.Storage.Dir
	}
	if dir == "" {
		return fmt.Errorf("no finding store configured: pass --store or set storage.dir")
	}

	store, err := storage.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open finding store: %w", err)
	}
	defer func() { _ = store.Close() }()

	findings, err := store.OpenFindings(storage.FindingFilter{
		AccountID:         findingsAccount,
		Kind:              types.Kind(findingsKind),
		ScenarioID:        findingsScenario,
		IncludeSuppressed: findingsSuppressed,
	})
	if err != nil {
		return fmt.Errorf("failed to query findings: %w", err)
	}

	if findingsOutput == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(findings)
	}

	if findingsAccount != "" {
		report, covered, err := store.LastScanFor(findingsAccount)
		if err != nil {
			return fmt.Errorf("failed to look up last scan: %w", err)
		}
		if covered {
			fmt.Printf("Account %s last covered by scan %s at %s\n\n",
				findingsAccount, report.ID, report.FinishedAt.Format(time.RFC3339))
		} else {
			fmt.Printf("Account %s has not been covered by any scan.\n\n", findingsAccount)
		}
	}

	if len(findings) == 0 {
		fmt.Println("No open findings.")
		return nil
	}

	sort.Slice(findings, func(i, j int) bool {
		return findings[i].Cost.TotalMonthly.GreaterThan(findings[j].Cost.TotalMonthly)
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RESOURCE\tKIND\tSCENARIO\tCONFIDENCE\tMONTHLY\tDETECTED")
	_, _ = fmt.Fprintln(w, "--------\t----\t--------\t----------\t-------\t--------")
	for _, f := range findings {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncate(f.ResourceID, 28),
			f.ResourceKind,
			f.ScenarioID,
			f.Confidence,
			f.Cost.TotalMonthly.StringFixed(2),
			f.DetectedAt.Format("2006-01-02"),
		)
	}
	_ = w.Flush()

	total, err := store.OpenMonthlyWaste()
	if err != nil {
		return fmt.Errorf("failed to total open waste: %w", err)
	}
	fmt.Printf("\n%d open findings. Store-wide monthly waste: %s USD\n",
		len(findings), total.StringFixed(2))
	return nil
}
