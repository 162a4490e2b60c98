// Package monitoring runs the infrastructure health loop: periodic pings
// of PostgreSQL and the cache store, with bounded alert and sample
// history and prometheus metrics.
package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	maxAlerts  = 100
	maxSamples = 60
)

// Pinger is anything whose liveness can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Alert is a retained health event.
type Alert struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Sample is one periodic health measurement.
type Sample struct {
	Time         time.Time     `json:"time"`
	DBHealthy    bool          `json:"dbHealthy"`
	CacheHealthy bool          `json:"cacheHealthy"`
	DBLatency    time.Duration `json:"dbLatency"`
	CacheLatency time.Duration `json:"cacheLatency"`
}

// Snapshot is a read-only view of the monitoring state.
type Snapshot struct {
	LastCheck            time.Time `json:"lastCheck"`
	Healthy              bool      `json:"healthy"`
	ConsecutiveFailures  int       `json:"consecutiveFailures"`
	ConsecutiveSuccesses int       `json:"consecutiveSuccesses"`
	Alerts               []Alert   `json:"alerts"`
	Samples              []Sample  `json:"samples"`
}

// Monitor owns the process-wide monitoring state. The state is mutated
// only by the monitoring loop and reset only on process restart.
type Monitor struct {
	db       Pinger
	store    Pinger
	interval time.Duration
	metrics  *Metrics
	logger   *zap.Logger

	mu                   sync.RWMutex
	lastCheck            time.Time
	healthy              bool
	consecutiveFailures  int
	consecutiveSuccesses int
	alerts               []Alert
	samples              []Sample

	stopCh chan struct{}
}

// NewMonitor builds the monitor. metrics may be shared with other
// components for request-level counters.
func NewMonitor(db, store Pinger, interval time.Duration, metrics *Metrics, logger *zap.Logger) *Monitor {
	return &Monitor{
		db:       db,
		store:    store,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
		healthy:  true,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the monitoring loop.
func (m *Monitor) Start() {
	go m.loop()
}

// Stop terminates the loop.
func (m *Monitor) Stop() {
	close(m.stopCh)
}

// Check performs one health measurement immediately.
func (m *Monitor) Check(ctx context.Context) Sample {
	sample := Sample{Time: time.Now()}

	start := time.Now()
	sample.DBHealthy = m.db.Ping(ctx) == nil
	sample.DBLatency = time.Since(start)

	start = time.Now()
	sample.CacheHealthy = m.store.Ping(ctx) == nil
	sample.CacheLatency = time.Since(start)

	m.record(sample)
	return sample
}

// Snapshot returns the current state for the health endpoint.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{
		LastCheck:            m.lastCheck,
		Healthy:              m.healthy,
		ConsecutiveFailures:  m.consecutiveFailures,
		ConsecutiveSuccesses: m.consecutiveSuccesses,
		Alerts:               make([]Alert, len(m.alerts)),
		Samples:              make([]Sample, len(m.samples)),
	}
	copy(snap.Alerts, m.alerts)
	copy(snap.Samples, m.samples)
	return snap
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.interval/2)
			m.Check(ctx)
			cancel()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) record(sample Sample) {
	healthy := sample.DBHealthy // the cache is optional infrastructure

	m.mu.Lock()
	m.lastCheck = sample.Time
	if healthy {
		m.consecutiveSuccesses++
		m.consecutiveFailures = 0
	} else {
		m.consecutiveFailures++
		m.consecutiveSuccesses = 0
	}
	wasHealthy := m.healthy
	m.healthy = healthy

	m.samples = append(m.samples, sample)
	if len(m.samples) > maxSamples {
		m.samples = m.samples[len(m.samples)-maxSamples:]
	}

	if wasHealthy && !healthy {
		m.addAlertLocked("critical", "database health check failed")
	}
	if !wasHealthy && healthy {
		m.addAlertLocked("info", "database health restored")
	}
	if sample.DBHealthy && !sample.CacheHealthy {
		m.addAlertLocked("warning", "cache store unreachable, running without cache speedup")
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.observe(sample)
	}

	if !healthy {
		m.logger.Error("health check failed",
			zap.Bool("dbHealthy", sample.DBHealthy),
			zap.Bool("cacheHealthy", sample.CacheHealthy))
	}
}

func (m *Monitor) addAlertLocked(level, message string) {
	m.alerts = append(m.alerts, Alert{Time: time.Now(), Level: level, Message: message})
	if len(m.alerts) > maxAlerts {
		m.alerts = m.alerts[len(m.alerts)-maxAlerts:]
	}
}
