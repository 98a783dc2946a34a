package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/velhola/gleaner/storage"
	"github.com/velhola/gleaner/types"
)

var (
	historyStoreDir string
	historyLimit    int
	historyOutput   string
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent scan reports from the store",
	Long: `List recent scans, newest first. Each line shows what the scan
covered and what it found, so a quiet report can be told apart from
a scan that could not check much.`,
	Example: `  gleaner history --store ./gleaner.db
  gleaner history --limit 5
  gleaner history --output json`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyStoreDir, "store", "", "Finding store directory (overrides config)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of scans to show")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "table", "Output format: table, json")
}

func runHistory(cmd *cobra.Command, args []string) error {
	dir := historyStoreDir
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

	reports, err := store.Reports(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read scan history: %w", err)
	}

	if historyOutput == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	if len(reports) == 0 {
		fmt.Println("No scans recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCAN\tSTATUS\tSTARTED\tDURATION\tRESOURCES\tFINDINGS\tMONTHLY")
	_, _ = fmt.Fprintln(w, "----\t------\t-------\t--------\t---------\t--------\t-------")
	for _, report := range reports {
		skipped := 0
		for _, cell := range report.Coverage {
			if cell.Outcome == types.KindSkipped {
				skipped++
			}
		}
		status := string(report.Status)
		if skipped > 0 {
			status = fmt.Sprintf("%s (%d skipped)", status, skipped)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			truncate(report.ID, 24),
			status,
			report.StartedAt.Format(time.RFC3339),
			report.Duration().Round(time.Second),
			report.Resources,
			report.Findings,
			report.MonthlyWaste.StringFixed(2),
		)
	}
	_ = w.Flush()
	return nil
}
