// Package registry owns the machine whitelist: the authoritative set of
// canonical machine names every entity mention is validated against.
//
// The whitelist is a long-lived mutable cell. Readers take an immutable
// snapshot copy; the only writers are Update (wholesale replacement) and
// the periodic Refresh against the external machine registry. A stale
// but non-empty whitelist is always preferred over an empty one — the
// validator must never run against zero known machines.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// FallbackMachines is the hardcoded whitelist used until the first
// successful registry fetch, and kept whenever the registry is unreachable.
var FallbackMachines = []string{
	"Compressor-1",
	"Compressor-2",
	"HVAC-North",
	"HVAC-South",
	"Conveyor-A",
	"Conveyor-B",
	"CNC-Mill-1",
	"Welding-Robot-1",
	"Lighting-Main",
	"Boiler-1",
}

// Fetcher retrieves the current list of canonical machine names from the
// external machine/SEU registry. Only the read contract matters here.
type Fetcher interface {
	FetchMachines(ctx context.Context) ([]string, error)
}

// Registry is the process-wide whitelist cell.
type Registry struct {
	mu       sync.RWMutex
	machines []string

	refreshing atomic.Bool
	fetcher    Fetcher
	interval   time.Duration
}

// New creates a Registry seeded with the fallback list. fetcher may be
// nil, in which case Refresh is a no-op and the whitelist only changes
// through Update.
func New(fetcher Fetcher, interval time.Duration) *Registry {
	if interval <= 0 {
		interval = time.Hour
	}
	r := &Registry{
		fetcher:  fetcher,
		interval: interval,
	}
	r.machines = append(r.machines, FallbackMachines...)
	return r
}

// Machines returns a snapshot copy of the current whitelist. The copy is
// immutable from the cell's perspective: a concurrent Update never
// mutates a slice a reader already holds.
func (r *Registry) Machines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.machines))
	copy(out, r.machines)
	return out
}

// Update replaces the whitelist wholesale. Empty lists are ignored to
// preserve the fallback-list invariant. Calling Update twice with the
// same list is idempotent.
func (r *Registry) Update(names []string) {
	if len(names) == 0 {
		slog.Warn("ignoring empty whitelist update, keeping previous list")
		return
	}
	fresh := make([]string, len(names))
	copy(fresh, names)

	r.mu.Lock()
	r.machines = fresh
	r.mu.Unlock()
	slog.Debug("machine whitelist updated", "machines", len(fresh))
}

// Refresh fetches the whitelist from the registry and applies it.
// Overlapping calls coalesce: if a refresh is already in flight the
// call returns immediately without fetching. Readers are never blocked
// by a refresh and observe either the old or the fully replaced list.
func (r *Registry) Refresh(ctx context.Context) error {
	if r.fetcher == nil {
		return nil
	}
	if !r.refreshing.CompareAndSwap(false, true) {
		slog.Debug("whitelist refresh already in progress, skipping")
		return nil
	}
	defer r.refreshing.Store(false)

	names, err := r.fetcher.FetchMachines(ctx)
	if err != nil {
		slog.Warn("whitelist refresh failed, keeping previous list", "error", err)
		return fmt.Errorf("fetching machines: %w", err)
	}
	r.Update(names)
	return nil
}

// Run refreshes the whitelist on the configured interval until the
// context is cancelled. An immediate refresh is attempted on entry.
func (r *Registry) Run(ctx context.Context) {
	_ = r.Refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.Refresh(ctx)
		}
	}
}

// HTTPFetcher implements Fetcher against the machine registry's REST
// read endpoint. The endpoint returns either a bare JSON array of names
// or an object with a "machines" array.
type HTTPFetcher struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPFetcher creates a fetcher for the given endpoint. token is sent
// as a bearer token when non-empty.
func NewHTTPFetcher(endpoint, token string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

// FetchMachines retrieves the canonical machine name list.
func (f *HTTPFetcher) FetchMachines(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("registry fetch failed (status %d): %s", resp.StatusCode, body)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading registry response: %w", err)
	}

	var names []string
	if err := json.Unmarshal(data, &names); err == nil {
		return names, nil
	}

	var wrapped struct {
		Machines []string `json:"machines"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decoding registry response: %w", err)
	}
	return wrapped.Machines, nil
}
