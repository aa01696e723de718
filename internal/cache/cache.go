package cache

import (
	"log/slog"
	"sync"
	"time"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	// Purge drops every entry.
	Purge()
	Size() int
}

// Stats counts cache traffic since creation.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Expired   uint64
	Size      int
}

// HitRatio is hits over lookups, 0 before the first lookup.
func (s Stats) HitRatio() float64 {
	if total := s.Hits + s.Misses; total > 0 {
		return float64(s.Hits) / float64(total)
	}
	return 0
}

// Cleaner is a cache the Manager can expire and report on.
type Cleaner interface {
	CleanExpired() int
	Stats() Stats
}

type namedCache struct {
	name  string
	cache Cleaner
}

// Manager runs periodic expiry for a set of named caches
type Manager struct {
	mu          sync.Mutex
	caches      []namedCache
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	started     bool
	logger      *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
		logger:      logger,
	}
}

// Register adds a cache to the manager under name.
func (m *Manager) Register(name string, cache Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, namedCache{name: name, cache: cache})
}

func (m *Manager) snapshot() []namedCache {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]namedCache(nil), m.caches...)
}

// Stats reports each registered cache by name.
func (m *Manager) Stats() map[string]Stats {
	out := map[string]Stats{}
	for _, nc := range m.snapshot() {
		out[nc.name] = nc.cache.Stats()
	}
	return out
}

// LogStats writes one debug record per registered cache.
func (m *Manager) LogStats() {
	for _, nc := range m.snapshot() {
		st := nc.cache.Stats()
		m.logger.Debug("Cache statistics",
			"cache", nc.name,
			"size", st.Size,
			"hits", st.Hits,
			"misses", st.Misses,
			"evictions", st.Evictions,
			"expired", st.Expired,
			"hit_ratio", st.HitRatio())
	}
}

// StartCleanup begins periodic cleanup of all registered caches
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || interval <= 0 {
		return
	}
	m.started = true
	go m.cleanup(interval)
}

// CleanNow expires entries in every registered cache and returns how many
// were removed.
func (m *Manager) CleanNow() int {
	total := 0
	for _, nc := range m.snapshot() {
		total += nc.cache.CleanExpired()
	}
	return total
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanNow(); n > 0 {
				m.logger.Debug("Expired cache entries removed", "count", n)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop gracefully stops the cleanup routine. It is safe to call once.
func (m *Manager) Stop() {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()

	close(m.stopCleanup)
	if started {
		<-m.cleanupDone
	}
}
