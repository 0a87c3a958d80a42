package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	mu    sync.Mutex
	calls int32
	names []string
	err   error
	block chan struct{} // if non-nil, FetchMachines waits on it
}

func (s *stubFetcher) FetchMachines(ctx context.Context) ([]string, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.names, s.err
}

func TestRegistry_SeededWithFallback(t *testing.T) {
	r := New(nil, time.Hour)
	assert.Equal(t, FallbackMachines, r.Machines())
}

func TestRegistry_UpdateReplacesWholesale(t *testing.T) {
	r := New(nil, time.Hour)
	r.Update([]string{"Pump-1", "Pump-2"})
	assert.Equal(t, []string{"Pump-1", "Pump-2"}, r.Machines())

	// Idempotent: same list, same outcome.
	r.Update([]string{"Pump-1", "Pump-2"})
	assert.Equal(t, []string{"Pump-1", "Pump-2"}, r.Machines())
}

func TestRegistry_EmptyUpdateIgnored(t *testing.T) {
	r := New(nil, time.Hour)
	r.Update(nil)
	r.Update([]string{})
	assert.NotEmpty(t, r.Machines(), "whitelist must never become empty")
}

func TestRegistry_SnapshotIsolatedFromUpdates(t *testing.T) {
	r := New(nil, time.Hour)
	snap := r.Machines()
	r.Update([]string{"Other-1"})
	assert.Equal(t, FallbackMachines, snap, "in-flight snapshot must not see the update")
}

func TestRegistry_RefreshAppliesFetchedList(t *testing.T) {
	f := &stubFetcher{names: []string{"Compressor-1", "Chiller-9"}}
	r := New(f, time.Hour)

	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, []string{"Compressor-1", "Chiller-9"}, r.Machines())
}

func TestRegistry_RefreshFailureKeepsOldList(t *testing.T) {
	f := &stubFetcher{err: errors.New("registry down")}
	r := New(f, time.Hour)

	err := r.Refresh(context.Background())
	assert.Error(t, err)
	assert.Equal(t, FallbackMachines, r.Machines())
}

func TestRegistry_OverlappingRefreshCoalesced(t *testing.T) {
	f := &stubFetcher{names: []string{"M-1"}, block: make(chan struct{})}
	r := New(f, time.Hour)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = r.Refresh(context.Background())
	}()

	// Wait for the first refresh to be in flight, then issue a second.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&f.calls) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, r.Refresh(context.Background()), "coalesced refresh is a no-op")
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.calls))

	close(f.block)
	wg.Wait()
	assert.Equal(t, []string{"M-1"}, r.Machines())
}

func TestHTTPFetcher_BareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`["Compressor-1","HVAC-North"]`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, "", time.Second)
	names, err := f.FetchMachines(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Compressor-1", "HVAC-North"}, names)
}

func TestHTTPFetcher_WrappedObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"machines":["Boiler-1"]}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, "", time.Second)
	names, err := f.FetchMachines(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Boiler-1"}, names)
}

func TestHTTPFetcher_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, "", time.Second)
	_, err := f.FetchMachines(context.Background())
	assert.Error(t, err)
}
