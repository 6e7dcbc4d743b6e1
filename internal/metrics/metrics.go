package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the relay.
type Metrics struct {
	registry              *prometheus.Registry
	connections           prometheus.Gauge
	rooms                 prometheus.Gauge
	eventsTotal           *prometheus.CounterVec
	rejectionsTotal       *prometheus.CounterVec
	droppedFramesTotal    prometheus.Counter
	droppedControlTotal   prometheus.Counter
	durableFailuresTotal  prometheus.Counter
	tipsInjectedTotal     *prometheus.CounterVec
	lifecyclePublishFails prometheus.Counter
}

// New creates and registers Prometheus metrics for the relay.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections",
		Help: "Number of open connections",
	})
	rooms := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_rooms",
		Help: "Number of rooms hosted by this instance",
	})
	eventsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_total",
		Help: "Total number of accepted events by type",
	}, []string{"type"})
	rejectionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_rejections_total",
		Help: "Total number of rejected events by type and reason",
	}, []string{"type", "reason"})
	droppedFramesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_dropped_frames_total",
		Help: "Total number of queued frames evicted by newer frames",
	})
	droppedControlTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_dropped_control_total",
		Help: "Total number of control messages dropped on a full queue",
	})
	durableFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_durable_write_failures_total",
		Help: "Total number of failed durable live-state writes",
	})
	tipsInjectedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_tips_injected_total",
		Help: "Total number of tips injected by the payment collaborator by outcome",
	}, []string{"outcome"})
	lifecyclePublishFails := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_lifecycle_publish_failures_total",
		Help: "Total number of stream lifecycle events that could not be produced",
	})

	registry.MustRegister(
		connections,
		rooms,
		eventsTotal,
		rejectionsTotal,
		droppedFramesTotal,
		droppedControlTotal,
		durableFailuresTotal,
		tipsInjectedTotal,
		lifecyclePublishFails,
	)

	return &Metrics{
		registry:              registry,
		connections:           connections,
		rooms:                 rooms,
		eventsTotal:           eventsTotal,
		rejectionsTotal:       rejectionsTotal,
		droppedFramesTotal:    droppedFramesTotal,
		droppedControlTotal:   droppedControlTotal,
		durableFailuresTotal:  durableFailuresTotal,
		tipsInjectedTotal:     tipsInjectedTotal,
		lifecyclePublishFails: lifecyclePublishFails,
	}
}

func (m *Metrics) IncConnections() { m.connections.Inc() }
func (m *Metrics) DecConnections() { m.connections.Dec() }

// SetRooms sets the hosted rooms gauge.
func (m *Metrics) SetRooms(n int) {
	m.rooms.Set(float64(n))
}

// IncEvent counts an accepted event.
func (m *Metrics) IncEvent(eventType string) {
	m.eventsTotal.WithLabelValues(eventType).Inc()
}

// IncRejection counts a rejected event.
func (m *Metrics) IncRejection(eventType, reason string) {
	m.rejectionsTotal.WithLabelValues(eventType, reason).Inc()
}

// AddDroppedFrames adds n evicted frames.
func (m *Metrics) AddDroppedFrames(n int) {
	if n > 0 {
		m.droppedFramesTotal.Add(float64(n))
	}
}

// AddDroppedControl adds n dropped control messages.
func (m *Metrics) AddDroppedControl(n int) {
	if n > 0 {
		m.droppedControlTotal.Add(float64(n))
	}
}

func (m *Metrics) IncDurableFailures() { m.durableFailuresTotal.Inc() }

// IncTipsInjected counts a gateway injection with its outcome label.
func (m *Metrics) IncTipsInjected(outcome string) {
	m.tipsInjectedTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncLifecyclePublishFailures() { m.lifecyclePublishFails.Inc() }

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
