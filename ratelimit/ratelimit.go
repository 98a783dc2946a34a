package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Key identifies one provider quota bucket.
type Key struct {
	AccountID string
	API       string
}

// Limit is a queries-per-second budget with a burst allowance.
type Limit struct {
	QPS   float64
	Burst int
}

// Registry hands out shared token buckets per (account, API) pair. Every
// evaluation worker of a scan draws from the same bucket, so bounded
// parallelism cannot collectively exceed a provider quota. Buckets are
// created lazily and live as long as the registry; the key space is
// accounts × APIs, small enough that nothing needs evicting.
type Registry struct {
	mu       sync.Mutex
	buckets  map[Key]*rate.Limiter
	fallback Limit
	perAPI   map[string]Limit
}

// NewRegistry creates a registry with one default budget for every bucket.
func NewRegistry(fallback Limit) *Registry {
	if fallback.QPS <= 0 {
		fallback.QPS = 10
	}
	if fallback.Burst <= 0 {
		fallback.Burst = 1
	}
	return &Registry{
		buckets:  make(map[Key]*rate.Limiter),
		fallback: fallback,
		perAPI:   make(map[string]Limit),
	}
}

// SetAPILimit overrides the budget for one API across all accounts. Must be
// called before buckets for that API are first used; later calls only affect
// accounts not seen yet.
func (r *Registry) SetAPILimit(api string, l Limit) {
	if l.QPS <= 0 || l.Burst <= 0 {
		return
	}
	r.mu.Lock()
	r.perAPI[api] = l
	r.mu.Unlock()
}

func (r *Registry) limiter(k Key) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lim, ok := r.buckets[k]; ok {
		return lim
	}
	budget := r.fallback
	if override, ok := r.perAPI[k.API]; ok {
		budget = override
	}
	lim := rate.NewLimiter(rate.Limit(budget.QPS), budget.Burst)
	r.buckets[k] = lim
	return lim
}

// Wait blocks until the (account, API) bucket grants a token or the context
// ends. Callers pass the scan context so a deadline cuts the wait short.
func (r *Registry) Wait(ctx context.Context, accountID, api string) error {
	return r.limiter(Key{AccountID: accountID, API: api}).Wait(ctx)
}

// Allow reports whether a token is available right now, without blocking.
func (r *Registry) Allow(accountID, api string) bool {
	return r.limiter(Key{AccountID: accountID, API: api}).Allow()
}

// Buckets returns the number of live buckets, for observability.
func (r *Registry) Buckets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}
