package health

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"sdwan-overlay/internal/model"

	"github.com/sirupsen/logrus"
)

// Prober measures one target and folds the probes into a result.
// Implemented by the probe package.
type Prober interface {
	Probe(ctx context.Context, target netip.Addr) model.ProbeResult
}

// Store persists health snapshots and reads them back in ascending
// time order. Implemented by the SQLite store; nil disables
// persistence entirely.
type Store interface {
	InsertHealth(ctx context.Context, h model.PathHealth) error
	HealthHistory(ctx context.Context, pathID model.PathID, since, until time.Time) ([]model.PathHealth, error)
}

// UtilizationSource supplies the current utilization percentage for a
// path, typically derived from data-plane byte rates. Absent source
// means 0% utilization.
type UtilizationSource interface {
	Utilization(pathID model.PathID) float64
}

// Config controls the health monitor
type Config struct {
	// Interval between monitoring ticks
	CheckInterval time.Duration

	// Persist every Nth check to bound write volume; 0 disables
	// persistence
	PersistEvery int
}

// DefaultConfig returns the standard monitoring configuration
func DefaultConfig() Config {
	return Config{
		CheckInterval: 10 * time.Second,
		PersistEvery:  6,
	}
}

// MonitorStats summarizes the monitored path population
type MonitorStats struct {
	TotalPaths    int `json:"total_paths"`
	UpPaths       int `json:"up_paths"`
	DegradedPaths int `json:"degraded_paths"`
	DownPaths     int `json:"down_paths"`
}

// Monitor owns the authoritative current health of every monitored
// path and drives periodic re-measurement through the prober.
type Monitor struct {
	cfg    Config
	prober Prober
	store  Store
	logger *logrus.Logger

	util UtilizationSource

	mu    sync.RWMutex
	cache map[model.PathID]model.PathHealth
	paths []model.Path

	// Per-path check serialization: a path is never probed twice
	// concurrently, and its consecutive checks are strictly ordered.
	checkLocks map[model.PathID]*sync.Mutex

	counterMu  sync.Mutex
	checkCount int

	onUpdate func(model.PathHealth)
}

// NewMonitor creates a health monitor. store may be nil to disable
// persistence.
func NewMonitor(cfg Config, prober Prober, store Store, logger *logrus.Logger) *Monitor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultConfig().CheckInterval
	}
	return &Monitor{
		cfg:        cfg,
		prober:     prober,
		store:      store,
		logger:     logger,
		cache:      make(map[model.PathID]model.PathHealth),
		checkLocks: make(map[model.PathID]*sync.Mutex),
	}
}

// SetUtilizationSource wires the utilization input into scoring
func (m *Monitor) SetUtilizationSource(src UtilizationSource) {
	m.util = src
}

// SetOnUpdate registers a callback invoked after every cache update
// (probe cycles and liveness transitions). Used for metrics export.
func (m *Monitor) SetOnUpdate(fn func(model.PathHealth)) {
	m.onUpdate = fn
}

// RegisterPath adds a path to the monitored set. Until its first
// check completes it reports Down with score 0.
func (m *Monitor) RegisterPath(p model.Path) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.checkLocks[p.ID]; ok {
		return
	}
	m.paths = append(m.paths, p)
	m.checkLocks[p.ID] = &sync.Mutex{}
	// Zero LastChecked marks a path with no measurements yet; the
	// routing engine keeps such paths eligible at the lowest score.
	m.cache[p.ID] = model.PathHealth{
		PathID:        p.ID,
		PacketLossPct: 100,
		Status:        model.StatusDown,
	}
	m.logger.Infof("Monitoring path %s (%s -> %s)", p.ID, p.Name, p.Target)
}

// DeregisterPath removes a path from the monitored set and drops its
// cached health.
func (m *Monitor) DeregisterPath(id model.PathID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.cache, id)
	delete(m.checkLocks, id)
	for i, p := range m.paths {
		if p.ID == id {
			m.paths = append(m.paths[:i], m.paths[i+1:]...)
			break
		}
	}
}

// Paths returns the monitored paths in registration order
func (m *Monitor) Paths() []model.Path {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Path, len(m.paths))
	copy(out, m.paths)
	return out
}

// CheckPathHealth probes a path once, stores the resulting health in
// the cache and persists a snapshot on every Nth check. Persistence
// failures are logged and skipped, never surfaced.
func (m *Monitor) CheckPathHealth(ctx context.Context, id model.PathID) (model.PathHealth, error) {
	m.mu.RLock()
	lock, ok := m.checkLocks[id]
	var target model.Path
	for _, p := range m.paths {
		if p.ID == id {
			target = p
			break
		}
	}
	m.mu.RUnlock()

	if !ok {
		return model.PathHealth{}, fmt.Errorf("path %s is not monitored", id)
	}

	lock.Lock()
	defer lock.Unlock()

	result := m.prober.Probe(ctx, target.Target)

	var utilization float64
	if m.util != nil {
		utilization = m.util.Utilization(id)
	}

	score := Score(result.LatencyMs, result.JitterMs, result.PacketLossPct, utilization)
	h := model.PathHealth{
		PathID:        id,
		LatencyMs:     result.LatencyMs,
		PacketLossPct: result.PacketLossPct,
		JitterMs:      result.JitterMs,
		HealthScore:   score,
		Status:        StatusForScore(score),
		LastChecked:   time.Now(),
	}

	m.publish(h)
	m.maybePersist(ctx, h)

	return h, nil
}

// publish overwrites the cached health for a path. Deregistered paths
// are not resurrected by a check that was already in flight.
func (m *Monitor) publish(h model.PathHealth) {
	m.mu.Lock()
	if _, ok := m.checkLocks[h.PathID]; ok {
		m.cache[h.PathID] = h
	}
	m.mu.Unlock()

	if m.onUpdate != nil {
		m.onUpdate(h)
	}
}

// maybePersist writes a snapshot every Nth check
func (m *Monitor) maybePersist(ctx context.Context, h model.PathHealth) {
	if m.store == nil || m.cfg.PersistEvery <= 0 {
		return
	}

	m.counterMu.Lock()
	m.checkCount++
	persist := m.checkCount >= m.cfg.PersistEvery
	if persist {
		m.checkCount = 0
	}
	m.counterMu.Unlock()

	if !persist {
		return
	}

	if err := m.store.InsertHealth(ctx, h); err != nil {
		m.logger.Errorf("Failed to persist health for path %s: %v", h.PathID, err)
	}
}

// HealthFor returns the cached health for a path
func (m *Monitor) HealthFor(id model.PathID) (model.PathHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.cache[id]
	return h, ok
}

// Snapshot returns a copy of the whole health cache
func (m *Monitor) Snapshot() map[model.PathID]model.PathHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[model.PathID]model.PathHealth, len(m.cache))
	for id, h := range m.cache {
		out[id] = h
	}
	return out
}

// OrderedSnapshot returns current health in path registration order.
// The routing engine relies on this order for deterministic
// tie-breaking.
func (m *Monitor) OrderedSnapshot() []model.PathHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.PathHealth, 0, len(m.paths))
	for _, p := range m.paths {
		if h, ok := m.cache[p.ID]; ok {
			out = append(out, h)
		}
	}
	return out
}

// History reads persisted snapshots for a path in ascending time
// order. No snapshots is an empty list, not an error.
func (m *Monitor) History(ctx context.Context, id model.PathID, since, until time.Time) ([]model.PathHealth, error) {
	if m.store == nil {
		return []model.PathHealth{}, nil
	}
	return m.store.HealthHistory(ctx, id, since, until)
}

// Stats summarizes the monitored path population by status
func (m *Monitor) Stats() MonitorStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := MonitorStats{TotalPaths: len(m.cache)}
	for _, h := range m.cache {
		switch h.Status {
		case model.StatusUp:
			stats.UpPaths++
		case model.StatusDegraded:
			stats.DegradedPaths++
		default:
			stats.DownPaths++
		}
	}
	return stats
}

// Run drives continuous monitoring until ctx is cancelled. Each tick
// checks all paths concurrently and waits for the slowest before the
// next tick; one path's failure never blocks the others.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	m.checkAll(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Health monitor stopped")
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

func (m *Monitor) checkAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range m.Paths() {
		wg.Add(1)
		go func(id model.PathID) {
			defer wg.Done()
			if _, err := m.CheckPathHealth(ctx, id); err != nil {
				m.logger.Errorf("Health check failed for path %s: %v", id, err)
			}
		}(p.ID)
	}
	wg.Wait()
}
