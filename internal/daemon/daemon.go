// Package daemon runs scans continuously: a ticker-driven scan loop, the
// Prometheus metrics endpoint, the scenario file watcher and signal
// handling, wired together as one run group so any of them stopping
// stops them all.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/velhola/gleaner/scenario"
	"github.com/velhola/gleaner/telemetry"
	"github.com/velhola/gleaner/types"
)

// Runner executes one scan. *orchestrator.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context) (types.ScanReport, []types.Finding, error)
}

// Config holds what the daemon needs beyond its collaborators.
type Config struct {
	// Interval between scan starts. The first scan runs immediately.
	Interval time.Duration

	// Listen is the metrics/health HTTP address. Empty disables the
	// server.
	Listen string
}

// Daemon owns the continuous scan loop.
type Daemon struct {
	runner   Runner
	rules    *scenario.Store
	logger   *telemetry.Logger
	metrics  *Metrics
	interval time.Duration
	listen   string

	startTime time.Time
	scanCount atomic.Int64

	mu         sync.RWMutex
	lastReport types.ScanReport
	lastErr    error
}

// New creates a daemon around a scan runner.
func New(runner Runner, cfg Config) *Daemon {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Daemon{
		runner:    runner,
		logger:    telemetry.NewLogger("daemon"),
		interval:  interval,
		listen:    cfg.Listen,
		startTime: time.Now(),
	}
}

// WithRuleStore watches the scenario file for edits while the daemon
// runs, so rule changes apply without a restart.
func (d *Daemon) WithRuleStore(store *scenario.Store) *Daemon {
	d.rules = store
	return d
}

// WithMetrics emits daemon-level metrics.
func (d *Daemon) WithMetrics(m *Metrics) *Daemon {
	d.metrics = m
	return d
}

// Start runs the daemon until the context is cancelled or a signal
// arrives. A clean shutdown returns nil.
func (d *Daemon) Start(ctx context.Context) error {
	var g run.Group

	loopCtx, loopCancel := context.WithCancel(ctx)
	g.Add(func() error {
		return d.scanLoop(loopCtx)
	}, func(error) {
		loopCancel()
	})

	if d.listen != "" {
		srv := d.httpServer()
		g.Add(func() error {
			d.logger.Info().Str("addr", d.listen).Msg("metrics server listening")
			err := srv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}, func(error) {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		})
	}

	if d.rules != nil {
		if err := d.watchRules(&g, ctx); err != nil {
			loopCancel()
			return err
		}
	}

	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	err := g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		d.logger.Info().Str("signal", sig.Signal.String()).Msg("daemon stopping")
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// scanLoop runs the first scan immediately, then one per interval. A
// failed scan is logged and the loop keeps going; the next tick may
// find the provider healthy again.
func (d *Daemon) scanLoop(ctx context.Context) error {
	d.runScan(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.runScan(ctx)
		}
	}
}

func (d *Daemon) runScan(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	started := time.Now()
	report, findings, err := d.runner.Run(ctx)
	elapsed := time.Since(started)

	d.scanCount.Add(1)
	d.mu.Lock()
	d.lastReport = report
	d.lastErr = err
	d.mu.Unlock()

	if d.metrics != nil {
		status := string(report.Status)
		if status == "" {
			status = "failed"
		}
		d.metrics.RecordScan(ctx, status, elapsed.Seconds())
		if err == nil {
			d.metrics.RecordScanOutcome(ctx, int64(report.Findings), int64(report.Suppressed))
		}
	}

	if err != nil {
		d.logger.WithContext(ctx).Error().
			Err(err).
			Str("scan_id", report.ID).
			Dur("duration", elapsed).
			Msg("scheduled scan failed")
		return
	}
	d.logger.WithContext(ctx).Info().
		Str("scan_id", report.ID).
		Str("status", string(report.Status)).
		Int("findings", len(findings)).
		Dur("duration", elapsed).
		Msg("scheduled scan finished")
}

// watchRules starts the scenario file watcher as its own actor. Reloads
// are counted; the store itself handles swap-on-success semantics.
func (d *Daemon) watchRules(g *run.Group, ctx context.Context) error {
	d.rules.OnReload(func(set *scenario.Set) {
		if d.metrics != nil {
			d.metrics.RecordRuleReload(ctx, set.Version(), set.Len())
		}
	})
	if err := d.rules.Watch(); err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	g.Add(func() error {
		<-watchCtx.Done()
		return nil
	}, func(error) {
		cancel()
		d.rules.Close()
	})
	return nil
}

func (d *Daemon) httpServer() *http.Server {
	mux := http.NewServeMux()
	if telemetry.PrometheusRegistry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(
			telemetry.PrometheusRegistry, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.HandleFunc("/healthz", d.handleHealth)
	mux.HandleFunc("/-/ready", d.handleHealth)

	return &http.Server{
		Addr:              d.listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (d *Daemon) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(d.Health())
}

// Health is the daemon's self-report served on /healthz.
type Health struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Scans         int64  `json:"scans"`
	LastScanID    string `json:"last_scan_id,omitempty"`
	LastStatus    string `json:"last_status,omitempty"`
	LastFindings  int    `json:"last_findings"`
}

// Health snapshots the daemon state. Status degrades when the most
// recent scan returned an error.
func (d *Daemon) Health() Health {
	d.mu.RLock()
	report := d.lastReport
	lastErr := d.lastErr
	d.mu.RUnlock()

	status := "healthy"
	if lastErr != nil {
		status = "degraded"
	}
	return Health{
		Status:        status,
		UptimeSeconds: int64(time.Since(d.startTime).Seconds()),
		Scans:         d.scanCount.Load(),
		LastScanID:    report.ID,
		LastStatus:    string(report.Status),
		LastFindings:  report.Findings,
	}
}

// ScanCount returns how many scans have run since start.
func (d *Daemon) ScanCount() int64 {
	return d.scanCount.Load()
}
