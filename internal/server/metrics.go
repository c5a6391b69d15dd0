package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Tyrowin/circe/internal/registry"
)

const metricsNamespace = "circe"

type metrics struct {
	sessions         prometheus.Gauge
	frames           *prometheus.CounterVec
	handlerErrors    *prometheus.CounterVec
	deliveryFailures prometheus.Counter
	rateLimited      prometheus.Counter
	panics           prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, users *registry.Users, rooms *registry.Rooms) *metrics {
	m := &metrics{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions",
			Help:      "Open client sessions, identified or not.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_received_total",
			Help:      "Decoded inbound frames by message type.",
		}, []string{"type"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handler_errors_total",
			Help:      "Requests answered with a failure, by error class.",
		}, []string{"class"}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "delivery_failures_total",
			Help:      "Outbound messages dropped because the recipient was unreachable.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_limited_frames_total",
			Help:      "Inbound frames discarded by the per-session rate limiter.",
		}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handler_panics_total",
			Help:      "Request handlers that panicked.",
		}),
	}

	reg.MustRegister(
		m.sessions,
		m.frames,
		m.handlerErrors,
		m.deliveryFailures,
		m.rateLimited,
		m.panics,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "users",
			Help:      "Identified users.",
		}, func() float64 { return float64(users.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "rooms",
			Help:      "Live rooms.",
		}, func() float64 { return float64(rooms.Len()) }),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *metrics) handlerError(err error) {
	if class := ErrorClass(err); class != "" {
		m.handlerErrors.WithLabelValues(class).Inc()
	}
}
