package cases

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Registry is the shared map from conversation key to live case.
//
// Removal and disposal happen inside the same critical section, so a
// removed case can never still hold a live timer.
type Registry struct {
	maxPending int
	log        *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	cases map[int64]*Case
}

// NewRegistry builds a registry with the given pending-case capacity.
func NewRegistry(maxPending int, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}

	return &Registry{
		maxPending: maxPending,
		log:        log.With("component", "cases.registry"),
		now:        time.Now,
		cases:      make(map[int64]*Case),
	}
}

// Len returns the number of live cases.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cases)
}

// Get returns the live case for key, if any.
func (r *Registry) Get(key int64) (*Case, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cases[key]
	return c, ok
}

// GetOrCreate atomically looks up or inserts the case for key. The second
// return reports whether this call created it; concurrent callers observe
// exactly one winning creator.
func (r *Registry) GetOrCreate(key int64, manual bool) (*Case, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.cases[key]; ok {
		return c, false
	}

	c := newCase(key, manual, r.now())
	r.cases[key] = c
	return c, true
}

// TryAdmit reports whether a message for key may proceed. Keys with a live
// case are always admitted; new keys are refused once the registry is at
// capacity.
func (r *Registry) TryAdmit(key int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cases[key]; ok {
		return true
	}

	return len(r.cases) < r.maxPending
}

// AdmitAndCreate combines admission control with lookup-or-insert in one
// critical section, so concurrent first messages from distinct new
// conversations can never push the registry past its capacity. The third
// return reports refusal; a refused call creates nothing.
func (r *Registry) AdmitAndCreate(key int64, manual bool) (c *Case, created bool, admitted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.cases[key]; ok {
		return c, false, true
	}
	if len(r.cases) >= r.maxPending {
		return nil, false, false
	}

	c = newCase(key, manual, r.now())
	r.cases[key] = c
	return c, true, true
}

// Remove atomically removes and disposes the case for key. Removing an
// absent key is a no-op returning nil.
func (r *Registry) Remove(key int64) *Case {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cases[key]
	if !ok {
		return nil
	}

	delete(r.cases, key)
	c.dispose()
	return c
}

// SweepExpired removes and disposes every case older than ttl, returning
// the number of cases dropped.
func (r *Registry) SweepExpired(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, c := range r.cases {
		// Strictly older than ttl; a case aged exactly ttl survives.
		if !c.CreatedAt().Before(cutoff) {
			continue
		}
		delete(r.cases, key)
		c.dispose()
		removed++
	}

	return removed
}

// RunSweeper drops abandoned cases on a fixed interval until ctx ends.
func (r *Registry) RunSweeper(ctx context.Context, ttl time.Duration, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := r.SweepExpired(ttl); removed > 0 {
				r.log.Info("Swept expired cases", "removed", removed, "remaining", r.Len())
			}
		}
	}
}
