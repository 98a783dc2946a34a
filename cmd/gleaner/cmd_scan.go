package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	scanRegions       []string
	scanRulesPath     string
	scanPolicyDir     string
	scanOutput        string
	scanStoreDir      string
	scanJournalDir    string
	scanDeadline      time.Duration
	scanMinConfidence string
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan and print the findings",
	Long: `Run one scan over the configured regions: enumerate resources,
resolve dependency chains, evaluate the scenario rules, and price
every match.

The report ends with a coverage summary. A kind the scan could not
enumerate is listed as skipped with its reason; its absence from the
findings proves nothing about the account.`,
	Example: `  gleaner scan                              # Scan configured regions
  gleaner scan --region eu-west-1           # Scan one region
  gleaner scan --rules scenarios.yaml       # Custom scenario rules
  gleaner scan --policies ./policies        # Rego suppression policies
  gleaner scan --output json                # Machine-readable output
  gleaner scan --min-confidence high        # Hide uncertain findings
  gleaner scan --store ./gleaner.db         # Track finding lifecycle`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringSliceVarP(&scanRegions, "region", "r", nil, "Regions to scan (overrides config)")
	scanCmd.Flags().StringVar(&scanRulesPath, "rules", "", "Scenario rules file (default: built-in rules)")
	scanCmd.Flags().StringVar(&scanPolicyDir, "policies", "", "Directory of rego suppression policies")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "table", "Output format: table, json")
	scanCmd.Flags().StringVar(&scanStoreDir, "store", "", "Finding store directory (enables lifecycle tracking)")
	scanCmd.Flags().StringVar(&scanJournalDir, "journal", "", "Scan journal directory")
	scanCmd.Flags().DurationVar(&scanDeadline, "deadline", 0, "Scan deadline (overrides config)")
	scanCmd.Flags().StringVar(&scanMinConfidence, "min-confidence", "", "Hide findings below this tier: low, medium, high, critical")
}

func runScan(cmd *cobra.Command, args []string) error {
	scanCommand := &ScanCommand{
		Regions:       scanRegions,
		RulesPath:     scanRulesPath,
		PolicyDir:     scanPolicyDir,
		Output:        scanOutput,
		StoreDir:      scanStoreDir,
		JournalDir:    scanJournalDir,
		Deadline:      scanDeadline,
		MinConfidence: scanMinConfidence,
	}

	validOutputs := []string{"table", "json"}
	if !contains(validOutputs, scanCommand.Output) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)",
			scanCommand.Output, strings.Join(validOutputs, ", "))
	}

	return scanCommand.Run(cmd.Context())
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
