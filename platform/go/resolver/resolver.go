// Package resolver maps inbound hostnames to store identities with a
// bounded-TTL in-memory cache in front of the master registry. Resolution
// misses are a valid outcome, never an error: a request on an unmapped host
// falls through to default routing.
package resolver

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vendica/vendica-platform/platform/go/metrics"
	"github.com/vendica/vendica-platform/platform/go/persistence"
)

// Defaults; override via options.
const (
	DefaultTTL           = 5 * time.Minute
	DefaultSweepInterval = time.Minute
	lookupTimeout        = 3 * time.Second
)

// StoreContext is the resolved routing identity for one hostname.
type StoreContext struct {
	StoreID   uuid.UUID
	Slug      string
	Hostname  string
	IsPrimary bool
}

// Source is the registry lookup behind the cache.
type Source interface {
	ResolveHostname(ctx context.Context, hostname string) (persistence.DomainRecord, error)
	TouchAccess(ctx context.Context, hostname string) error
}

type entry struct {
	store    StoreContext
	cachedAt time.Time
}

// Resolver caches hostname -> store lookups. Each instance owns its cache
// and sweep goroutine; construct one per process and Close it on shutdown.
type Resolver struct {
	source Source
	logger *zap.Logger

	ttl        time.Duration
	sweepEvery time.Duration
	skipHosts  map[string]struct{}
	now        func() time.Time

	mu    sync.RWMutex
	cache map[string]entry

	sweepTicker *time.Ticker
	done        chan struct{}
	closeOnce   sync.Once
}

// Option tweaks Resolver construction.
type Option func(*Resolver)

// WithTTL overrides the cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithSweepInterval overrides how often expired entries are evicted.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Resolver) { r.sweepEvery = d }
}

// WithSkipHosts adds platform-internal hostnames that never reach the
// registry (loopback, PaaS health-check hosts).
func WithSkipHosts(hosts ...string) Option {
	return func(r *Resolver) {
		for _, h := range hosts {
			r.skipHosts[strings.ToLower(h)] = struct{}{}
		}
	}
}

// WithClock injects a clock for TTL tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// New constructs a Resolver and starts its background sweep.
func New(source Source, logger *zap.Logger, opts ...Option) *Resolver {
	if source == nil {
		panic("resolver: source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Resolver{
		source:     source,
		logger:     logger,
		ttl:        DefaultTTL,
		sweepEvery: DefaultSweepInterval,
		skipHosts: map[string]struct{}{
			"localhost": {},
			"127.0.0.1": {},
			"::1":       {},
		},
		now:   time.Now,
		cache: make(map[string]entry),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.sweepTicker = time.NewTicker(r.sweepEvery)
	go r.sweepLoop()
	return r
}

// Resolve maps a Host header value to a store identity, or nil when there is
// no mapping. Registry failures are swallowed and logged; they must never
// abort the request being routed.
func (r *Resolver) Resolve(ctx context.Context, hostport string) *StoreContext {
	host := normalizeHost(hostport)
	if host == "" {
		return nil
	}
	if _, skip := r.skipHosts[host]; skip {
		return nil
	}

	if sc, ok := r.cached(host); ok {
		metrics.DomainCacheHitsTotal.Inc()
		return sc
	}
	metrics.DomainCacheMissesTotal.Inc()

	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	rec, err := r.source.ResolveHostname(lookupCtx, host)
	if err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			r.logger.Warn("hostname resolution failed", zap.String("host", host), zap.Error(err))
		}
		return nil
	}

	sc := StoreContext{
		StoreID:   rec.StoreID,
		Slug:      rec.StoreSlug,
		Hostname:  rec.Hostname,
		IsPrimary: rec.IsPrimary,
	}

	r.mu.Lock()
	r.cache[host] = entry{store: sc, cachedAt: r.now()}
	r.mu.Unlock()

	// Telemetry rides outside the request path; a lost increment is fine.
	go func() {
		touchCtx, touchCancel := context.WithTimeout(context.Background(), lookupTimeout)
		defer touchCancel()
		if err := r.source.TouchAccess(touchCtx, host); err != nil {
			r.logger.Debug("access count update failed", zap.String("host", host), zap.Error(err))
		}
	}()

	return &sc
}

// Invalidate drops one hostname from the cache.
func (r *Resolver) Invalidate(hostport string) {
	host := normalizeHost(hostport)
	r.mu.Lock()
	delete(r.cache, host)
	r.mu.Unlock()
}

// InvalidateStore drops every cached hostname pointing at a store. Used when
// a store is suspended so stale routing dies with it.
func (r *Resolver) InvalidateStore(storeID uuid.UUID) {
	r.mu.Lock()
	for host, e := range r.cache {
		if e.store.StoreID == storeID {
			delete(r.cache, host)
		}
	}
	r.mu.Unlock()
}

// Clear empties the cache.
func (r *Resolver) Clear() {
	r.mu.Lock()
	r.cache = make(map[string]entry)
	r.mu.Unlock()
}

// Close stops the background sweep.
func (r *Resolver) Close() {
	r.closeOnce.Do(func() {
		r.sweepTicker.Stop()
		close(r.done)
	})
}

func (r *Resolver) cached(host string) (*StoreContext, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.cache[host]
	if !ok {
		return nil, false
	}
	if r.now().Sub(e.cachedAt) > r.ttl {
		return nil, false
	}
	sc := e.store
	return &sc, true
}

// sweepLoop evicts entries older than the TTL on a fixed interval so memory
// stays bounded even when expired hosts never get another request.
func (r *Resolver) sweepLoop() {
	for {
		select {
		case <-r.done:
			return
		case <-r.sweepTicker.C:
			cutoff := r.now().Add(-r.ttl)
			var evicted int
			r.mu.Lock()
			for host, e := range r.cache {
				if e.cachedAt.Before(cutoff) {
					delete(r.cache, host)
					evicted++
				}
			}
			r.mu.Unlock()
			if evicted > 0 {
				metrics.DomainCacheEvictionsTotal.Add(float64(evicted))
				r.logger.Debug("domain cache sweep", zap.Int("evicted", evicted))
			}
		}
	}
}

// normalizeHost lowercases and strips any port from a Host header value.
func normalizeHost(hostport string) string {
	host := strings.TrimSpace(strings.ToLower(hostport))
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.Trim(host, "[]")
}
