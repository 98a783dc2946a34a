package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/velhola/gleaner/config"
)

var (
	version = "0.1.0"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "gleaner",
		Short: "Cloud Waste Detection Engine",
		Long: `Gleaner - Cloud Waste Detection Engine

Gleaner scans cloud accounts for resources that cost money without
doing work: unattached disks, idle instances, orphaned forwarding
rules, aged snapshots. Every finding carries a priced monthly
estimate, the evidence that produced it, and a confidence grade.

A report with zero findings has checked everything it claims to
cover. Kinds that could not be checked are listed as skipped with
the reason, never silently dropped.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// init sets up the root command
func init() {
	rootCmd.SetVersionTemplate(`Gleaner {{.Version}} - Cloud Waste Detection Engine
`)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (YAML)")
}

// loadConfig reads the config file named by --config, or the built-in
// defaults when none was given.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	return config.Load(cfgFile)
}
