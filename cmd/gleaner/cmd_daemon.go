package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/velhola/gleaner/internal/daemon"
	"github.com/velhola/gleaner/orchestrator"
	"github.com/velhola/gleaner/telemetry"
)

var (
	daemonInterval time.Duration
	daemonListen   string
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Scan continuously and serve metrics",
	Long: `Run Gleaner as a long-lived process. The daemon scans on an
interval, tracks finding lifecycle in the store, and exposes
Prometheus metrics and health endpoints over HTTP.

Scenario rule files are watched for edits; a broken edit keeps the
previous rules active instead of taking the daemon down.

Endpoints:
- /metrics   Prometheus metrics
- /healthz   Daemon health and last scan summary
- /-/ready   Readiness`,
	Example: `  gleaner daemon                        # Scan hourly, listen on :9090
  gleaner daemon --interval 15m         # Scan every 15 minutes
  gleaner daemon --listen :2112         # Custom metrics address
  gleaner daemon --config gleaner.yaml  # Full configuration`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 0, "Scan interval (overrides config)")
	daemonCmd.Flags().StringVar(&daemonListen, "listen", "", "Metrics HTTP address (overrides config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if daemonInterval > 0 {
		cfg.Daemon.Interval = daemonInterval
	}
	if daemonListen != "" {
		cfg.Daemon.Listen = daemonListen
	}

	shutdown, err := telemetry.InitOTEL(ctx, telemetry.Config{
		ServiceName:    "gleaner",
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		OTELEndpoint:   cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutCtx)
	}()

	infra, err := openInfra(ctx, cfg)
	if err != nil {
		return err
	}
	defer infra.Close()

	scanMetrics, err := telemetry.InitScanMetrics(otel.Meter("gleaner"))
	if err != nil {
		return fmt.Errorf("failed to create scan metrics: %w", err)
	}

	orch := orchestrator.New(infra.sessions, infra.rules, infra.pricing, orchestrator.Options{
		Parallelism: cfg.Scan.Parallelism,
		AccountCap:  cfg.Scan.AccountCap,
		Deadline:    cfg.Scan.Deadline,
	}).WithMetrics(scanMetrics)
	if infra.policies != nil {
		orch = orch.WithPolicies(infra.policies)
	}
	if infra.store != nil {
		orch = orch.WithSink(infra.store)
	}
	if infra.journal != nil {
		orch = orch.WithJournal(infra.journal)
	}

	daemonMetrics, err := daemon.NewMetrics(otel.Meter("gleaner.daemon"))
	if err != nil {
		return fmt.Errorf("failed to create daemon metrics: %w", err)
	}

	d := daemon.New(orch, daemon.Config{
		Interval: cfg.Daemon.Interval,
		Listen:   cfg.Daemon.Listen,
	}).WithRuleStore(infra.rules).WithMetrics(daemonMetrics)

	fmt.Printf("Starting gleaner daemon\n")
	fmt.Printf("   Provider: %s\n", cfg.Provider)
	fmt.Printf("   Regions: %v\n", cfg.Regions)
	fmt.Printf("   Interval: %s\n", cfg.Daemon.Interval)
	fmt.Printf("   Listen: %s\n\n", cfg.Daemon.Listen)

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("daemon error: %w", err)
	}

	fmt.Println("Daemon stopped")
	return nil
}
