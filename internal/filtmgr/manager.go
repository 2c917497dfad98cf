// Package filtmgr is the concurrency and lifecycle core of the
// bloomd service: a registry of named probabilistic filters, the
// take/return discipline that lets many readers or one writer share a
// filter while a drop or unmap call mutates its lifecycle, and the
// hot-set bookkeeping an external flusher drains.
package filtmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rishabg/bloomd/internal/bloomderrors"
	"github.com/rishabg/bloomd/internal/bloomfilter"
	"github.com/rishabg/bloomd/internal/config"
	"github.com/zhangyunhao116/skipmap"
	"github.com/zhangyunhao116/skipset"
)

// Manager owns the registry of filter handles and mediates every
// create/drop/flush/unmap/check/set call against it.
type Manager struct {
	dataDir  string
	defaults bloomfilter.Params

	// mu is the registry lock: a short-critical-section mutex guarding
	// filters' membership plus every handle's refCount/isActive. It is
	// never held across underlying-filter I/O.
	mu      sync.Mutex
	filters *skipmap.StringMap[*handle]

	// hot is swapped wholesale by DrainHot, so it is an atomic pointer
	// rather than a field guarded by mu.
	hot atomic.Pointer[skipset.StringSet]

	// createMu serializes Create calls against each other without
	// blocking unrelated lookups or returns during slow underlying
	// filter initialization.
	createMu sync.Mutex

	log *slog.Logger
}

// New constructs a manager, running discovery synchronously before
// returning — no concurrent caller may be admitted until this
// returns.
func New(cfg config.Config, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.Default()
	}

	m := &Manager{
		dataDir: cfg.Data.DataDir,
		defaults: bloomfilter.Params{
			Capacity:          cfg.Filter.Capacity,
			FalsePositiveRate: cfg.Filter.FalsePositiveRate,
			InMemory:          cfg.Filter.InMemory,
		},
		filters: skipmap.NewString[*handle](),
		log:     log,
	}
	m.hot.Store(skipset.NewString())

	m.discover()
	return m, nil
}

// discover scans dataDir for existing filter directories and loads
// each one. It is not thread-safe by design: it runs once, inside
// New, before the manager is handed to any caller.
func (m *Manager) discover() {
	names, err := discoverFilterNames(m.dataDir)
	if err != nil {
		m.log.Warn("failed to scan data directory for existing filters", "data_dir", m.dataDir, "error", err)
		return
	}
	m.log.Info("found existing filters", "count", len(names))

	for _, name := range names {
		if err := m.addFilter(name, m.defaults, false); err != nil {
			m.log.Warn("failed to load existing filter, skipping", "filter", name, "error", err)
		}
	}
}

// addFilter constructs the underlying filter and, on success, inserts
// a fresh handle into the registry. createIfAbsent is false for
// discovery (the directory must already exist) and true for Create.
func (m *Manager) addFilter(name string, params bloomfilter.Params, createIfAbsent bool) error {
	f, err := bloomfilter.Init(params, m.dataDir, name, createIfAbsent)
	if err != nil {
		return fmt.Errorf("%w: %s", bloomderrors.ErrCreateFailed, err)
	}

	h := newHandle(f)
	m.mu.Lock()
	m.filters.Store(name, h)
	m.mu.Unlock()
	return nil
}

// Create registers a brand-new filter under name. override, if
// non-nil, replaces the manager's default parameter set for this
// filter only.
func (m *Manager) Create(name string, override *bloomfilter.Params) error {
	m.createMu.Lock()
	defer m.createMu.Unlock()

	// Race-free existence probe: does not touch refCount/isActive, so
	// it must not go through take().
	m.mu.Lock()
	_, exists := m.filters.Load(name)
	m.mu.Unlock()
	if exists {
		return bloomderrors.ErrAlreadyExists
	}

	params := m.defaults
	if override != nil {
		params = *override
	}

	if err := m.addFilter(name, params, true); err != nil {
		m.log.Error("create failed", "filter", name, "request_id", uuid.NewString(), "error", err)
		return err
	}
	m.log.Info("filter created", "filter", name, "request_id", uuid.NewString())
	return nil
}

// Drop marks name inactive and releases the registry's own reference.
// Once every in-flight operation holding a reference returns, the
// handle's ref count reaches zero and it is unlinked and destroyed.
// When Drop releases the last reference, that close and destroy run
// before Drop returns. Drop never removes the filter's on-disk
// directory.
func (m *Manager) Drop(name string) error {
	h := m.take(name)
	if h == nil {
		return bloomderrors.ErrNoSuchFilter
	}

	m.mu.Lock()
	h.refCount--
	h.isActive = false
	m.mu.Unlock()

	m.returnFilter(name)
	m.log.Info("filter dropped", "filter", name, "request_id", uuid.NewString())
	return nil
}

// Flush invokes the underlying filter's flush under the handle's
// reader lock: from the manager's perspective flush does not mutate
// externally observable state, it only serializes through the
// underlying filter's own write discipline.
func (m *Manager) Flush(name string) error {
	h := m.take(name)
	if h == nil {
		return bloomderrors.ErrNoSuchFilter
	}
	defer m.returnFilter(name)

	h.rwlock.RLock()
	err := h.filter.Flush()
	h.rwlock.RUnlock()
	if err != nil {
		return fmt.Errorf("%w: flush %s: %s", bloomderrors.ErrInternal, name, err)
	}

	m.markHot(name)
	return nil
}

// Unmap releases the underlying filter's in-memory buffers while
// leaving it registered and active; a subsequent Check/Set causes it
// to reopen its backing file lazily.
func (m *Manager) Unmap(name string) error {
	h := m.take(name)
	if h == nil {
		return bloomderrors.ErrNoSuchFilter
	}
	defer m.returnFilter(name)

	h.rwlock.Lock()
	err := h.filter.Close()
	h.rwlock.Unlock()
	if err != nil {
		return fmt.Errorf("%w: unmap %s: %s", bloomderrors.ErrInternal, name, err)
	}
	return nil
}

// Check reports, for each key in keys, whether it may be present in
// the named filter. Output order matches input order; the batch is
// not atomic across keys but is atomic against drop/unmap.
func (m *Manager) Check(name string, keys [][]byte) ([]bool, error) {
	return m.keyedOp(name, keys, false)
}

// Set adds each key in keys to the named filter, reporting whether it
// was newly added. Output order matches input order.
func (m *Manager) Set(name string, keys [][]byte) ([]bool, error) {
	return m.keyedOp(name, keys, true)
}

func (m *Manager) keyedOp(name string, keys [][]byte, write bool) ([]bool, error) {
	h := m.take(name)
	if h == nil {
		return nil, bloomderrors.ErrNoSuchFilter
	}
	defer m.returnFilter(name)

	if write {
		h.rwlock.Lock()
		defer h.rwlock.Unlock()
	} else {
		h.rwlock.RLock()
		defer h.rwlock.RUnlock()
	}

	results := make([]bool, len(keys))
	for i, key := range keys {
		var (
			v   bool
			err error
		)
		if write {
			v, err = h.filter.Add(key)
		} else {
			v, err = h.filter.Contains(key)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s", bloomderrors.ErrInternal, err)
		}
		results[i] = v
	}

	m.markHot(name)
	return results, nil
}

// NumFilters returns the current registry size.
func (m *Manager) NumFilters() int {
	return m.filters.Len()
}

// Info reports a filter's lifecycle state for operational visibility.
// It does not take a reference and never touches the underlying
// filter, so it is safe to call regardless of isActive.
func (m *Manager) Info(name string) (active bool, refCount int32, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, found := m.filters.Load(name)
	if !found {
		return false, 0, false
	}
	return h.isActive, h.refCount, true
}

// take resolves name to its handle and increments its reference
// count, or returns nil if the name is absent or inactive. Every
// successful take must be matched by exactly one returnFilter.
func (m *Manager) take(name string) *handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.filters.Load(name)
	if !ok || !h.isActive {
		return nil
	}
	h.refCount++
	return h
}

// returnFilter releases one reference on name's handle. If the
// reference count reaches zero the handle is unlinked from the
// registry under the lock, then destroyed outside of it.
func (m *Manager) returnFilter(name string) {
	m.mu.Lock()
	h, ok := m.filters.Load(name)
	if !ok {
		m.mu.Unlock()
		// The caller is required to hold a reference; a missing name
		// here is a programming error, not a race to recover from.
		m.log.Error("return of unknown filter", "filter", name)
		return
	}

	h.refCount--
	shouldDestroy := h.refCount <= 0
	if shouldDestroy {
		m.filters.Delete(name)
	}
	m.mu.Unlock()

	if shouldDestroy {
		if err := h.filter.Close(); err != nil {
			m.log.Warn("error closing filter during destroy", "filter", name, "error", err)
		}
		if err := h.filter.Destroy(); err != nil {
			m.log.Warn("error destroying filter", "filter", name, "error", err)
		}
	}
}

// markHot records name as recently touched. Idempotent within a
// drain window.
func (m *Manager) markHot(name string) {
	m.hot.Load().Add(name)
}

// DrainHot atomically swaps the hot set for an empty one and returns
// the names that were touched since the last drain. This is the
// contract an external periodic flusher consumes; internal/flusher
// provides one reference implementation.
func (m *Manager) DrainHot() []string {
	drained := m.hot.Swap(skipset.NewString())

	names := make([]string, 0, drained.Len())
	drained.Range(func(name string) bool {
		names = append(names, name)
		return true
	})
	return names
}

// Close tears the manager down: every registered filter is closed,
// destroyed in memory, and freed. It assumes all external callers
// have already quiesced; any surviving reference at this point is a
// bug in the caller, not in the manager.
func (m *Manager) Close(_ context.Context) error {
	m.mu.Lock()
	var names []string
	var handles []*handle
	m.filters.Range(func(name string, h *handle) bool {
		names = append(names, name)
		handles = append(handles, h)
		m.filters.Delete(name)
		return true
	})
	m.mu.Unlock()

	for i, h := range handles {
		if err := h.filter.Close(); err != nil {
			m.log.Warn("error closing filter during teardown", "filter", names[i], "error", err)
		}
		if err := h.filter.Destroy(); err != nil {
			m.log.Warn("error destroying filter during teardown", "filter", names[i], "error", err)
		}
	}
	return nil
}
