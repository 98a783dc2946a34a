package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/velhola/gleaner/types"
)

type fakeRunner struct {
	mu       sync.Mutex
	runs     int
	report   types.ScanReport
	findings []types.Finding
	err      error
	ran      chan struct{}
}

func (f *fakeRunner) Run(_ context.Context) (types.ScanReport, []types.Finding, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.ran != nil {
		select {
		case f.ran <- struct{}{}:
		default:
		}
	}
	return f.report, f.findings, f.err
}

func (f *fakeRunner) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestDaemon_StartScansOnInterval(t *testing.T) {
	runner := &fakeRunner{
		report: types.ScanReport{ID: "scan-1", Status: types.ScanCompleted, Findings: 1},
		ran:    make(chan struct{}, 8),
	}
	d := New(runner, Config{Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	waitSignal(t, runner.ran, "first scan")
	waitSignal(t, runner.ran, "second scan")
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after cancel")
	}

	assert.GreaterOrEqual(t, d.ScanCount(), int64(2))
}

func TestDaemon_RunScanUpdatesHealth(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(provider.Meter("gleaner.daemon"))
	require.NoError(t, err)

	runner := &fakeRunner{
		report: types.ScanReport{
			ID:         "scan-42",
			Status:     types.ScanCompleted,
			Findings:   3,
			Suppressed: 1,
		},
	}
	d := New(runner, Config{Interval: time.Hour}).WithMetrics(m)

	ctx := context.Background()
	d.runScan(ctx)

	health := d.Health()
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, int64(1), health.Scans)
	assert.Equal(t, "scan-42", health.LastScanID)
	assert.Equal(t, "completed", health.LastStatus)
	assert.Equal(t, 3, health.LastFindings)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	foundStatus := false
	for _, sm := range rm.ScopeMetrics {
		for _, rec := range sm.Metrics {
			if rec.Name != "gleaner.daemon.scans" {
				continue
			}
			sum, ok := rec.Data.(metricdata.Sum[int64])
			require.True(t, ok, "expected Sum, got %T", rec.Data)
			require.Len(t, sum.DataPoints, 1)
			assert.Contains(t, sum.DataPoints[0].Attributes.ToSlice(),
				attribute.String("status", "completed"))
			foundStatus = true
		}
	}
	assert.True(t, foundStatus, "scan counter not recorded")
}

func TestDaemon_RunScanFailureDegradesHealth(t *testing.T) {
	runner := &fakeRunner{err: errors.New("provider down")}
	d := New(runner, Config{Interval: time.Hour})

	d.runScan(context.Background())

	health := d.Health()
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, int64(1), health.Scans)
	assert.Empty(t, health.LastScanID)
}

func TestDaemon_SkipsScanWhenContextDone(t *testing.T) {
	runner := &fakeRunner{}
	d := New(runner, Config{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.runScan(ctx)

	assert.Zero(t, runner.runCount())
	assert.Zero(t, d.ScanCount())
}

func TestDaemon_HealthEndpoint(t *testing.T) {
	runner := &fakeRunner{
		report: types.ScanReport{ID: "scan-7", Status: types.ScanPartiallyFailed, Findings: 2},
	}
	d := New(runner, Config{Interval: time.Hour, Listen: ":0"})
	d.runScan(context.Background())

	srv := d.httpServer()

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var health Health
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "scan-7", health.LastScanID)
	assert.Equal(t, "partially_failed", health.LastStatus)
	assert.Equal(t, 2, health.LastFindings)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
