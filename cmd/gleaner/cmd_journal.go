package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/velhola/gleaner/wal"
)

var journalDir string

// journalCmd represents the journal command
var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the scan journal",
	Long: `Inspect the append-only scan journal. The journal records what every
scan did while it ran: kinds enumerated or skipped, findings emitted,
and whether the scan finished. It is the place to look when a scan
died mid-run.`,
}

var journalTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the most recent scan's journal entries",
	Example: `  gleaner journal tail --journal ./journal
  gleaner journal tail       # Journal directory from config`,
	RunE: runJournalTail,
}

var journalStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show journal segment statistics",
	RunE:  runJournalStats,
}

var journalCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove journal segments past retention",
	RunE:  runJournalCleanup,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTailCmd)
	journalCmd.AddCommand(journalStatsCmd)
	journalCmd.AddCommand(journalCleanupCmd)

	journalCmd.PersistentFlags().StringVar(&journalDir, "journal", "", "Journal directory (overrides config)")
}

// journalLocation resolves the journal directory and retention from the
// flag or the config file.
func journalLocation() (string, wal.Config, error) {
	walCfg := wal.DefaultConfig()
	if journalDir != "" {
		return journalDir, walCfg, nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return "", walCfg, err
	}
	if cfg.Journal.Dir == "" {
		return "", walCfg, fmt.Errorf("no journal configured: pass --journal or set journal.dir")
	}
	if cfg.Journal.RetentionDays > 0 {
		walCfg.RetentionDays = cfg.Journal.RetentionDays
	}
	return cfg.Journal.Dir, walCfg, nil
}

func runJournalTail(cmd *cobra.Command, args []string) error {
	dir, walCfg, err := journalLocation()
	if err != nil {
		return err
	}

	entries, complete, err := wal.LastScan(dir, walCfg)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("Journal is empty.")
		return nil
	}

	state := "finished"
	if !complete {
		state = "did not finish"
	}
	fmt.Printf("Scan %s (%s), %d entries:\n\n", entries[0].ScanID, state, len(entries))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SEQ\tTIME\tTYPE\tSUBJECT\tDETAIL")
	_, _ = fmt.Fprintln(w, "---\t----\t----\t-------\t------")
	for _, entry := range entries {
		detail := string(entry.Data)
		if entry.Error != "" {
			detail = entry.Error
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			entry.Sequence,
			entry.Timestamp.Format("15:04:05"),
			entry.Type,
			entry.Subject,
			truncate(detail, 60),
		)
	}
	_ = w.Flush()
	return nil
}

func runJournalStats(cmd *cobra.Command, args []string) error {
	dir, walCfg, err := journalLocation()
	if err != nil {
		return err
	}

	stats, err := wal.GetStats(dir, walCfg)
	if err != nil {
		return fmt.Errorf("failed to inspect journal: %w", err)
	}
	if stats.Segments == 0 {
		fmt.Println("Journal is empty.")
		return nil
	}

	fmt.Printf("Segments:  %d (%d bytes)\n", stats.Segments, stats.TotalBytes)
	fmt.Printf("Sequences: %d to %d\n", stats.FirstSequence, stats.LastSequence)
	fmt.Printf("Entries:   %s to %s\n",
		stats.OldestEntry.Format(time.RFC3339),
		stats.NewestEntry.Format(time.RFC3339))
	return nil
}

func runJournalCleanup(cmd *cobra.Command, args []string) error {
	dir, walCfg, err := journalLocation()
	if err != nil {
		return err
	}

	removed, err := wal.CleanupWithStats(dir, walCfg)
	if err != nil {
		return fmt.Errorf("failed to clean journal: %w", err)
	}
	fmt.Printf("Removed %d segments past %d day retention, freed %d bytes\n",
		removed.FilesRemoved, walCfg.RetentionDays, removed.BytesFreed)
	return nil
}
