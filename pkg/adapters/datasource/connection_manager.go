package datasource

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// cleanupInterval is how often the manager sweeps for idle handles.
const cleanupInterval = 1 * time.Minute

// ManagerConfig holds connection caching settings.
type ManagerConfig struct {
	// PoolMaxConns caps each relational pool.
	PoolMaxConns int32
	// PoolMinConns keeps warm connections in each relational pool.
	PoolMinConns int32
	// ConnectionTTL is how long an unused handle stays cached.
	ConnectionTTL time.Duration
	// PreflightTimeout bounds the liveness probe on first dial.
	PreflightTimeout time.Duration
	// StatementTimeout is the server-side statement deadline, applied at
	// pool construction where the family supports it.
	StatementTimeout time.Duration
}

// managedHandle wraps a handle with last-used tracking for TTL eviction.
type managedHandle struct {
	handle   *Handle
	lastUsed time.Time
	mu       sync.Mutex
}

func (m *managedHandle) touch() {
	m.mu.Lock()
	m.lastUsed = time.Now()
	m.mu.Unlock()
}

func (m *managedHandle) idleSince() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUsed
}

// Manager caches one live handle per connection URL, one cache per database
// family. The liveness probe runs only when a handle is first created;
// subsequent acquisitions return the cached handle as-is. Idle handles are
// evicted after ConnectionTTL by a background sweep.
type Manager struct {
	mu      sync.RWMutex
	handles map[models.DatabaseKind]map[string]*managedHandle

	group  singleflight.Group
	config ManagerConfig
	logger *zap.Logger

	cleanupTicker *time.Ticker
	stopChan      chan struct{}
	stopped       bool
	stopMu        sync.Mutex
}

// NewManager creates a connection manager and starts its cleanup routine.
func NewManager(cfg ManagerConfig, logger *zap.Logger) *Manager {
	handles := make(map[models.DatabaseKind]map[string]*managedHandle, len(models.ValidDatabaseKinds))
	for _, k := range models.ValidDatabaseKinds {
		handles[k] = make(map[string]*managedHandle)
	}

	m := &Manager{
		handles:       handles,
		config:        cfg,
		logger:        logger.Named("datasource"),
		cleanupTicker: time.NewTicker(cleanupInterval),
		stopChan:      make(chan struct{}),
	}

	go m.cleanupLoop()
	return m
}

// Acquire returns the cached handle for the endpoint, dialing and probing it
// first if this URL has not been seen. Concurrent first acquisitions of the
// same URL share a single dial.
func (m *Manager) Acquire(ctx context.Context, endpoint models.DatabaseEndpoint) (*Handle, error) {
	dialect := DialectFor(endpoint.Kind)
	if dialect == nil {
		return nil, apperrors.Newf(apperrors.KindUnsupportedEndpoint,
			"no adapter for database kind %q", endpoint.Kind)
	}

	if h := m.lookup(endpoint); h != nil {
		return h, nil
	}

	key := string(endpoint.Kind) + "\x00" + endpoint.RawURL
	v, err, shared := m.group.Do(key, func() (any, error) {
		// Double-check after winning the flight; a previous caller may have
		// stored the handle between our lookup and here.
		if h := m.lookup(endpoint); h != nil {
			return h, nil
		}

		h, err := dialect.Dial(ctx, endpoint, DialConfig{
			PoolMaxConns:     m.config.PoolMaxConns,
			PoolMinConns:     m.config.PoolMinConns,
			ConnMaxIdleTime:  m.config.ConnectionTTL,
			PreflightTimeout: m.config.PreflightTimeout,
			StatementTimeout: m.config.StatementTimeout,
		})
		if err != nil {
			return nil, err
		}
		h.dialect = dialect

		m.mu.Lock()
		m.handles[endpoint.Kind][endpoint.RawURL] = &managedHandle{
			handle:   h,
			lastUsed: time.Now(),
		}
		total := m.totalLocked()
		m.mu.Unlock()

		m.logger.Info("opened datasource connection",
			zap.String("kind", string(endpoint.Kind)),
			zap.String("endpoint", endpoint.Sanitized()),
			zap.Int("total_connections", total))
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.logger.Debug("dial coalesced with concurrent acquisition",
			zap.String("kind", string(endpoint.Kind)))
	}
	return v.(*Handle), nil
}

// lookup returns the cached handle for the endpoint, refreshing its idle
// timer, or nil when absent.
func (m *Manager) lookup(endpoint models.DatabaseEndpoint) *Handle {
	m.mu.RLock()
	managed, ok := m.handles[endpoint.Kind][endpoint.RawURL]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	managed.touch()
	return managed.handle
}

// cleanupLoop periodically removes handles unused past the TTL.
func (m *Manager) cleanupLoop() {
	for {
		select {
		case <-m.cleanupTicker.C:
			m.performCleanup()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Manager) performCleanup() {
	ttl := m.config.ConnectionTTL
	if ttl <= 0 {
		return
	}
	cutoff := time.Now().Add(-ttl)

	type evicted struct {
		handle *Handle
		kind   models.DatabaseKind
		url    string
	}
	var toClose []evicted

	m.mu.Lock()
	for kind, cache := range m.handles {
		for url, managed := range cache {
			if managed.idleSince().Before(cutoff) {
				toClose = append(toClose, evicted{managed.handle, kind, url})
				delete(cache, url)
			}
		}
	}
	m.mu.Unlock()

	for _, e := range toClose {
		e.handle.dialect.Close(e.handle)
		m.logger.Info("evicted idle datasource connection",
			zap.String("kind", string(e.kind)),
			zap.String("endpoint", e.handle.Endpoint.Sanitized()))
	}
}

// Close shuts down the cleanup routine and releases every cached handle.
// Safe to call more than once.
func (m *Manager) Close() {
	m.stopMu.Lock()
	if m.stopped {
		m.stopMu.Unlock()
		return
	}
	m.stopped = true
	close(m.stopChan)
	m.stopMu.Unlock()

	m.cleanupTicker.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cache := range m.handles {
		for url, managed := range cache {
			managed.handle.dialect.Close(managed.handle)
			delete(cache, url)
		}
	}
	m.logger.Info("connection manager closed")
}

// ManagerStats reports cache occupancy for the status endpoint.
type ManagerStats struct {
	TotalConnections  int            `json:"total_connections"`
	ConnectionsByKind map[string]int `json:"connections_by_kind"`
}

// Stats returns current cache occupancy.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := ManagerStats{ConnectionsByKind: make(map[string]int, len(m.handles))}
	for kind, cache := range m.handles {
		if len(cache) == 0 {
			continue
		}
		stats.ConnectionsByKind[string(kind)] = len(cache)
		stats.TotalConnections += len(cache)
	}
	return stats
}

func (m *Manager) totalLocked() int {
	total := 0
	for _, cache := range m.handles {
		total += len(cache)
	}
	return total
}
