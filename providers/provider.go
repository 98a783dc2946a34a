// Package providers defines the enumeration contract between cloud
// adapters and the scan orchestrator. Adapters translate provider-native
// objects into types.Resource snapshots, classify their failures so the
// orchestrator can tell "not allowed to look" from "try again", and
// register themselves here so callers can open them by name.
package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/velhola/gleaner/graph"
	"github.com/velhola/gleaner/metrics"
	"github.com/velhola/gleaner/ratelimit"
	"github.com/velhola/gleaner/telemetry"
	"github.com/velhola/gleaner/types"
)

// Enumerator lists resources for one provider account and region.
type Enumerator interface {
	// Name identifies the adapter, e.g. "aws".
	Name() string

	// AccountID is the account the adapter enumerates, resolved during
	// construction.
	AccountID() string

	// Region the adapter was opened against.
	Region() string

	// Kinds reports which resource kinds this adapter can enumerate,
	// sorted. The orchestrator scans exactly these.
	Kinds() []types.Kind

	// List enumerates every resource of one kind. Failures are classified:
	// a PermissionError means the kind must be skipped, a TransientError
	// has already been retried and still failed.
	List(ctx context.Context, kind types.Kind) ([]types.Resource, error)
}

// HealthReporter is implemented by adapters that can snapshot the health
// of backends behind load-balancing chains. The orchestrator captures one
// snapshot per scan, after enumeration and before evaluation.
type HealthReporter interface {
	BackendHealth(ctx context.Context) (graph.HealthSnapshot, error)
}

// MetricSourcer is implemented by adapters whose provider exposes a
// monitoring backend usable as a metric source.
type MetricSourcer interface {
	MetricSource() metrics.Source
}

// Config holds what every adapter needs to open a session.
type Config struct {
	Region string

	// Limits gates remote calls per (account, API). Optional; adapters
	// enumerate unthrottled without one.
	Limits *ratelimit.Registry

	// Logger is optional. Adapters must tolerate nil.
	Logger *telemetry.Logger
}

// Factory opens an adapter session for one account and region.
type Factory func(ctx context.Context, cfg Config) (Enumerator, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes an adapter available under a provider name. Adapters
// call this from init.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Open creates an adapter session by provider name.
func Open(ctx context.Context, name string, cfg Config) (Enumerator, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider %s not registered", name)
	}
	return factory(ctx, cfg)
}

// Names returns the registered provider names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
