package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mediadesk/internal/engine"
	"mediadesk/internal/protocol"
	"mediadesk/internal/transcription"
)

// Metrics holds the Prometheus collectors for engine activity.
type Metrics struct {
	registry *prometheus.Registry

	JobsTotal    *prometheus.CounterVec
	ModelLoads   prometheus.Counter
	EventsTotal  *prometheus.CounterVec
	Subscribers  prometheus.Gauge
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics registers every collector on a private registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "mediadesk"
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Finished engine jobs by engine and outcome",
			},
			[]string{"engine", "outcome"},
		),
		ModelLoads: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_loads_total",
				Help:      "Recognizer builds triggered by a model switch",
			},
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_events_total",
				Help:      "Intermediate engine events by engine",
			},
			[]string{"engine"},
		),
		Subscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "event_subscribers",
				Help:      "Open websocket event streams",
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}
	registry.MustRegister(m.JobsTotal, m.ModelLoads, m.EventsTotal, m.Subscribers, m.HTTPRequests)
	return m
}

// Observe records one engine response. It matches coordinator.Options.Observe.
func (m *Metrics) Observe(kind engine.Kind, resp protocol.Response) {
	switch resp.Status {
	case protocol.StatusSuccess:
		m.JobsTotal.WithLabelValues(string(kind), "success").Inc()
	case protocol.StatusError:
		outcome := resp.Kind
		if outcome == "" {
			outcome = "unknown"
		}
		m.JobsTotal.WithLabelValues(string(kind), outcome).Inc()
	default:
		m.EventsTotal.WithLabelValues(string(kind)).Inc()
		if kind == engine.KindTranscription && resp.Message == transcription.MessageSwitchingModel {
			m.ModelLoads.Inc()
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
