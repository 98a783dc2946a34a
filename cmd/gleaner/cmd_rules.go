package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/velhola/gleaner/pricing"
	"github.com/velhola/gleaner/scenario"
)

var rulesPath string

// rulesCmd represents the rules command
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate scenario rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the scenario rules a scan would evaluate",
	Example: `  gleaner rules list                        # Built-in rule library
  gleaner rules list --rules scenarios.yaml # A custom rule file`,
	RunE: runRulesList,
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a scenario rule file",
	Long: `Validate a scenario rule file the way a scan would load it. Bad
definitions are rejected one by one; the command exits non-zero if
any rule was rejected, so it can gate rule changes in CI.`,
	Example: `  gleaner rules validate --rules scenarios.yaml`,
	RunE:    runRulesValidate,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesValidateCmd)

	rulesCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "Scenario rules file (default: config, then built-in rules)")
}

// loadRuleSet compiles the rule document the same way a scan would:
// the --rules flag wins, then the config file, then the embedded
// default library.
func loadRuleSet(path string) (*scenario.Set, string, error) {
	registry := pricing.NewRegistry(pricing.DefaultSnapshot())

	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, "", err
		}
		path = cfg.Rules.Path
	}
	if path == "" {
		set, err := scenario.DefaultSet(registry)
		return set, "built-in", err
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, "", fmt.Errorf("failed to read rules file: %w", err)
	}
	set, err := scenario.LoadSet(data, registry)
	return set, path, err
}

func runRulesList(cmd *cobra.Command, args []string) error {
	set, source, err := loadRuleSet(rulesPath)
	if err != nil {
		return err
	}

	fmt.Printf("Rule set %s (%s): %d rules\n\n", set.Version(), source, set.Len())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tCOST MODEL\tGRAPH\tDESCRIPTION")
	_, _ = fmt.Fprintln(w, "--\t----\t----------\t-----\t-----------")
	for _, rule := range set.Rules() {
		graph := ""
		if rule.NeedsGraph() {
			graph = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			rule.ID, rule.Kind, rule.CostModel, graph, truncate(rule.Description, 48))
	}
	_ = w.Flush()

	printRejected(set.Rejected())
	return nil
}

func runRulesValidate(cmd *cobra.Command, args []string) error {
	set, source, err := loadRuleSet(rulesPath)
	if err != nil {
		return err
	}

	rejected := set.Rejected()
	fmt.Printf("Validated %s: %d rules accepted, %d rejected\n", source, set.Len(), len(rejected))
	printRejected(rejected)

	if len(rejected) > 0 {
		return fmt.Errorf("%d scenario rules rejected", len(rejected))
	}
	return nil
}

func printRejected(rejected []scenario.ConfigError) {
	if len(rejected) == 0 {
		return
	}
	fmt.Printf("\nRejected:\n")
	for _, confErr := range rejected {
		fmt.Printf("   %s\n", confErr.Error())
	}
}
