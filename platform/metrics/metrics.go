// Package metrics exposes capture session counters to Prometheus.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soocke/framering-go/domain/capture"
)

// StatsSource is a session whose counters are exported.
type StatsSource interface {
	ID() string
	Stats() capture.Stats
}

// Metrics holds the registry and the collectors refreshed on every scrape.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal  prometheus.Counter
	errorsTotal    prometheus.Counter
	sessionsTotal  prometheus.Counter
	activeSessions prometheus.Gauge

	framesRetained  *prometheus.GaugeVec
	bytesRetained   *prometheus.GaugeVec
	bytesDetached   *prometheus.GaugeVec
	framesCommitted *prometheus.GaugeVec
	framesDropped   *prometheus.GaugeVec
	inFlight        *prometheus.GaugeVec
	openSnapshots   *prometheus.GaugeVec
	readbackSeconds *prometheus.GaugeVec

	mu      sync.Mutex
	sources map[string]StatsSource
}

// New creates and registers the collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	session := []string{"session"}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, session)
	}

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "framering_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "framering_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "framering_sessions_registered_total",
			Help: "Total number of capture sessions registered",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "framering_active_sessions",
			Help: "Number of registered sessions",
		}),
		framesRetained:  gauge("framering_ring_frames", "Frames retained by the ring"),
		bytesRetained:   gauge("framering_ring_bytes", "Bytes retained by the ring"),
		bytesDetached:   gauge("framering_ring_detached_bytes", "Bytes of evicted frames still pinned by snapshots"),
		framesCommitted: gauge("framering_frames_committed", "Frames committed since the session started"),
		framesDropped:   gauge("framering_frames_dropped", "Frames that arrived but were never committed"),
		inFlight:        gauge("framering_staging_in_flight", "Staging slots with a copy in flight"),
		openSnapshots:   gauge("framering_open_snapshots", "Snapshots not yet closed"),
		readbackSeconds: gauge("framering_readback_avg_seconds", "Average map and copy-out time per frame"),
		sources:         make(map[string]StatsSource),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.sessionsTotal,
		m.activeSessions,
		m.framesRetained,
		m.bytesRetained,
		m.bytesDetached,
		m.framesCommitted,
		m.framesDropped,
		m.inFlight,
		m.openSnapshots,
		m.readbackSeconds,
	)
	return m
}

// Register exports the counters of src until Unregister.
func (m *Metrics) Register(src StatsSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[src.ID()]; ok {
		return
	}
	m.sources[src.ID()] = src
	m.sessionsTotal.Inc()
	m.activeSessions.Set(float64(len(m.sources)))
}

// Unregister stops exporting the session with id and drops its series.
func (m *Metrics) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[id]; !ok {
		return
	}
	delete(m.sources, id)
	for _, v := range m.vecs() {
		v.DeleteLabelValues(id)
	}
	m.activeSessions.Set(float64(len(m.sources)))
}

// Refresh copies the current stats of every registered session into the
// gauges.
func (m *Metrics) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, src := range m.sources {
		st := src.Stats()
		m.framesRetained.WithLabelValues(id).Set(float64(st.Ring.Frames))
		m.bytesRetained.WithLabelValues(id).Set(float64(st.Ring.Bytes))
		m.bytesDetached.WithLabelValues(id).Set(float64(st.Ring.DetachedBytes))
		m.framesCommitted.WithLabelValues(id).Set(float64(st.Ring.Committed))
		m.framesDropped.WithLabelValues(id).Set(float64(st.Dropped()))
		m.inFlight.WithLabelValues(id).Set(float64(st.InFlight))
		m.openSnapshots.WithLabelValues(id).Set(float64(st.OpenSnapshots))
		m.readbackSeconds.WithLabelValues(id).Set(st.AvgReadback.Seconds())
	}
}

func (m *Metrics) vecs() []*prometheus.GaugeVec {
	return []*prometheus.GaugeVec{
		m.framesRetained,
		m.bytesRetained,
		m.bytesDetached,
		m.framesCommitted,
		m.framesDropped,
		m.inFlight,
		m.openSnapshots,
		m.readbackSeconds,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns an http.Handler that serves Prometheus metrics. Session
// gauges are refreshed before each scrape.
func (m *Metrics) Handler() http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Refresh()
		h.ServeHTTP(w, r)
	})
}
