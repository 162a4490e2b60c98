package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors for the backend.
type Metrics struct {
	DBHealthy    prometheus.Gauge
	CacheHealthy prometheus.Gauge
	DBLatency    prometheus.Gauge
	CacheLatency prometheus.Gauge
	ChecksTotal  *prometheus.CounterVec

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// NewMetrics creates and registers the collectors on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DBHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fixia", Subsystem: "health", Name: "db_up",
			Help: "Whether the last database health check succeeded.",
		}),
		CacheHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fixia", Subsystem: "health", Name: "cache_up",
			Help: "Whether the last cache health check succeeded.",
		}),
		DBLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fixia", Subsystem: "health", Name: "db_ping_seconds",
			Help: "Latency of the last database ping.",
		}),
		CacheLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fixia", Subsystem: "health", Name: "cache_ping_seconds",
			Help: "Latency of the last cache ping.",
		}),
		ChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixia", Subsystem: "health", Name: "checks_total",
			Help: "Health checks by outcome.",
		}, []string{"status"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fixia", Subsystem: "cache", Name: "response_hits_total",
			Help: "Response cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fixia", Subsystem: "cache", Name: "response_misses_total",
			Help: "Response cache misses.",
		}),
	}

	reg.MustRegister(m.DBHealthy, m.CacheHealthy, m.DBLatency, m.CacheLatency,
		m.ChecksTotal, m.CacheHits, m.CacheMisses)
	return m
}

func (m *Metrics) observe(sample Sample) {
	setBool(m.DBHealthy, sample.DBHealthy)
	setBool(m.CacheHealthy, sample.CacheHealthy)
	m.DBLatency.Set(sample.DBLatency.Seconds())
	m.CacheLatency.Set(sample.CacheLatency.Seconds())

	status := "ok"
	if !sample.DBHealthy {
		status = "failed"
	}
	m.ChecksTotal.WithLabelValues(status).Inc()
}

func setBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
	} else {
		g.Set(0)
	}
}
