package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vendica/vendica-platform/platform/go/persistence"
)

type fakeSource struct {
	mu       sync.Mutex
	records  map[string]persistence.DomainRecord
	lookups  int
	touched  atomic.Int64
	resolveE error
}

func (f *fakeSource) ResolveHostname(_ context.Context, hostname string) (persistence.DomainRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.resolveE != nil {
		return persistence.DomainRecord{}, f.resolveE
	}
	rec, ok := f.records[hostname]
	if !ok {
		return persistence.DomainRecord{}, persistence.ErrNotFound
	}
	return rec, nil
}

func (f *fakeSource) TouchAccess(context.Context, string) error {
	f.touched.Add(1)
	return nil
}

func (f *fakeSource) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

func newFakeSource(hosts ...string) *fakeSource {
	src := &fakeSource{records: map[string]persistence.DomainRecord{}}
	for _, h := range hosts {
		src.records[h] = persistence.DomainRecord{
			DomainID:  uuid.New(),
			StoreID:   uuid.New(),
			Hostname:  h,
			IsPrimary: true,
			StoreSlug: "shop",
		}
	}
	return src
}

func TestResolveCachesWithinTTL(t *testing.T) {
	src := newFakeSource("shop.example.com")
	r := New(src, zap.NewNop())
	defer r.Close()

	first := r.Resolve(context.Background(), "shop.example.com")
	require.NotNil(t, first)
	assert.Equal(t, "shop", first.Slug)

	second := r.Resolve(context.Background(), "shop.example.com:443")
	require.NotNil(t, second)
	assert.Equal(t, first.StoreID, second.StoreID)

	assert.Equal(t, 1, src.lookupCount(), "second hit must come from cache")
}

func TestResolveServesStaleUntilExpiryThenRefetches(t *testing.T) {
	src := newFakeSource("shop.example.com")
	now := time.Now()
	var clockMu sync.Mutex
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}
	r := New(src, zap.NewNop(), WithTTL(5*time.Minute), WithClock(clock))
	defer r.Close()

	require.NotNil(t, r.Resolve(context.Background(), "shop.example.com"))
	require.Equal(t, 1, src.lookupCount())

	// Just inside the TTL the cached row is authoritative even if the
	// registry changed underneath.
	src.mu.Lock()
	delete(src.records, "shop.example.com")
	src.mu.Unlock()

	clockMu.Lock()
	now = now.Add(5*time.Minute - time.Second)
	clockMu.Unlock()
	assert.NotNil(t, r.Resolve(context.Background(), "shop.example.com"))
	assert.Equal(t, 1, src.lookupCount())

	// Past the TTL the stale entry is ignored and the miss is visible.
	clockMu.Lock()
	now = now.Add(2 * time.Second)
	clockMu.Unlock()
	assert.Nil(t, r.Resolve(context.Background(), "shop.example.com"))
	assert.Equal(t, 2, src.lookupCount())
}

func TestResolveMissIsNilNotError(t *testing.T) {
	src := newFakeSource()
	r := New(src, zap.NewNop())
	defer r.Close()

	assert.Nil(t, r.Resolve(context.Background(), "unknown.example.com"))
}

func TestResolveRegistryFailureFallsThrough(t *testing.T) {
	src := newFakeSource()
	src.resolveE = context.DeadlineExceeded
	r := New(src, zap.NewNop())
	defer r.Close()

	assert.Nil(t, r.Resolve(context.Background(), "shop.example.com"))
}

func TestResolveSkipsInternalHosts(t *testing.T) {
	src := newFakeSource("localhost", "health.internal")
	r := New(src, zap.NewNop(), WithSkipHosts("health.internal"))
	defer r.Close()

	assert.Nil(t, r.Resolve(context.Background(), "localhost:8080"))
	assert.Nil(t, r.Resolve(context.Background(), "health.internal"))
	assert.Equal(t, 0, src.lookupCount())
}

func TestInvalidateDropsEntry(t *testing.T) {
	src := newFakeSource("shop.example.com")
	r := New(src, zap.NewNop())
	defer r.Close()

	require.NotNil(t, r.Resolve(context.Background(), "shop.example.com"))
	r.Invalidate("shop.example.com:443")
	require.NotNil(t, r.Resolve(context.Background(), "shop.example.com"))
	assert.Equal(t, 2, src.lookupCount())
}

func TestInvalidateStoreDropsAllHostnames(t *testing.T) {
	src := newFakeSource("a.example.com", "b.example.com")
	storeID := uuid.New()
	for h, rec := range src.records {
		rec.StoreID = storeID
		src.records[h] = rec
	}
	r := New(src, zap.NewNop())
	defer r.Close()

	require.NotNil(t, r.Resolve(context.Background(), "a.example.com"))
	require.NotNil(t, r.Resolve(context.Background(), "b.example.com"))
	r.InvalidateStore(storeID)

	r.Resolve(context.Background(), "a.example.com")
	r.Resolve(context.Background(), "b.example.com")
	assert.Equal(t, 4, src.lookupCount())
}

func TestSweepEvictsExpiredEntries(t *testing.T) {
	src := newFakeSource("shop.example.com")
	now := time.Now()
	var clockMu sync.Mutex
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}
	r := New(src, zap.NewNop(),
		WithTTL(time.Minute),
		WithSweepInterval(5*time.Millisecond),
		WithClock(clock),
	)
	defer r.Close()

	require.NotNil(t, r.Resolve(context.Background(), "shop.example.com"))
	clockMu.Lock()
	now = now.Add(2 * time.Minute)
	clockMu.Unlock()

	assert.Eventually(t, func() bool {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return len(r.cache) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestMiddlewareAttachesStoreContext(t *testing.T) {
	src := newFakeSource("shop.example.com")
	r := New(src, zap.NewNop())
	defer r.Close()

	var seen *StoreContext
	handler := Middleware(r)(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		seen = FromContext(req.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://shop.example.com/", nil)
	req.Host = "shop.example.com"
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, seen)
	assert.Equal(t, "shop.example.com", seen.Hostname)

	seen = nil
	req = httptest.NewRequest(http.MethodGet, "http://other.example.com/", nil)
	req.Host = "other.example.com"
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Nil(t, seen)
}

func TestNormalizeHost(t *testing.T) {
	cases := map[string]string{
		"Shop.Example.COM":      "shop.example.com",
		"shop.example.com:8443": "shop.example.com",
		" shop.example.com ":    "shop.example.com",
		"[::1]:8080":            "::1",
		"":                      "",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeHost(in), in)
	}
}
