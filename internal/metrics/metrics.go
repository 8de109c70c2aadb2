// Package metrics exposes relay counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hwrelay/internal/domain"
)

const namespace = "hwrelay"

// Command outcomes
const (
	OutcomeRelayed = "relayed"
	OutcomeDropped = "dropped"
)

// Metrics holds the relay's collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	HardwareUp  prometheus.Gauge
	Clients     prometheus.Gauge
	Commands    *prometheus.CounterVec
	Transitions *prometheus.CounterVec
	Received    prometheus.Counter
	Broadcasts  prometheus.Counter
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HardwareUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hardware_up",
			Help:      "1 while the hardware transport is connected.",
		}),
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "browser_clients",
			Help:      "Registered browser control connections.",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Browser commands by outcome.",
		}, []string{"outcome"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liveness_events_total",
			Help:      "Liveness events broadcast, by type.",
		}, []string{"type"}),
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hardware_frames_received_total",
			Help:      "Frames or lines read from the hardware.",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "browser_deliveries_total",
			Help:      "Liveness messages queued to browser clients.",
		}),
	}

	m.registry.MustRegister(
		m.HardwareUp,
		m.Clients,
		m.Commands,
		m.Transitions,
		m.Received,
		m.Broadcasts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Expose both outcomes from the start
	m.Commands.WithLabelValues(OutcomeRelayed)
	m.Commands.WithLabelValues(OutcomeDropped)

	return m
}

// ObserveCommand counts one browser command
func (m *Metrics) ObserveCommand(relayed bool) {
	if relayed {
		m.Commands.WithLabelValues(OutcomeRelayed).Inc()
	} else {
		m.Commands.WithLabelValues(OutcomeDropped).Inc()
	}
}

// ObserveLiveness records a broadcast liveness event and its fan-out
func (m *Metrics) ObserveLiveness(ev domain.LivenessEvent, delivered int) {
	m.Transitions.WithLabelValues(string(ev.Kind)).Inc()
	m.Broadcasts.Add(float64(delivered))
	if ev.Kind == domain.HardwareReady {
		m.HardwareUp.Set(1)
	} else {
		m.HardwareUp.Set(0)
	}
}

// Handler serves the registry for scraping
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
