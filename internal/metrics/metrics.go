// Package metrics exposes the facilitator's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric the daemon exports.
type Metrics struct {
	registry *prometheus.Registry

	MessagesTotal   *prometheus.CounterVec
	MessageDuration *prometheus.HistogramVec

	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec

	SessionsOpen    prometheus.Gauge
	SessionsOpened  prometheus.Counter
	SessionsEvicted prometheus.Counter

	TelegramSentTotal     prometheus.Counter
	TelegramReceivedTotal prometheus.Counter
	TelegramErrorsTotal   prometheus.Counter
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meeple_messages_total",
				Help: "Messages processed, by campaign and outcome",
			},
			[]string{"campaign", "outcome"},
		),
		MessageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meeple_message_duration_seconds",
				Help:    "End-to-end message handling time",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"campaign"},
		),

		ToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meeple_tool_calls_total",
				Help: "Tool invocations, by tool and status",
			},
			[]string{"tool", "status"},
		),
		ToolCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meeple_tool_call_duration_seconds",
				Help:    "Tool handler execution time",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),

		SessionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "meeple_sessions_open",
				Help: "Campaign sessions currently held in memory",
			},
		),
		SessionsOpened: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meeple_sessions_opened_total",
				Help: "Campaign sessions opened since start",
			},
		),
		SessionsEvicted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meeple_sessions_evicted_total",
				Help: "Campaign sessions evicted by the LRU cap",
			},
		),

		TelegramSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meeple_telegram_sent_total",
				Help: "Telegram messages sent",
			},
		),
		TelegramReceivedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meeple_telegram_received_total",
				Help: "Telegram updates received",
			},
		),
		TelegramErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meeple_telegram_errors_total",
				Help: "Telegram send and receive failures",
			},
		),
	}

	m.registry.MustRegister(
		m.MessagesTotal,
		m.MessageDuration,
		m.ToolCallsTotal,
		m.ToolCallDuration,
		m.SessionsOpen,
		m.SessionsOpened,
		m.SessionsEvicted,
		m.TelegramSentTotal,
		m.TelegramReceivedTotal,
		m.TelegramErrorsTotal,
	)
	return m
}

// RecordMessage implements the engine's Metrics interface.
func (m *Metrics) RecordMessage(campaign, outcome string, elapsed time.Duration) {
	if campaign == "" {
		campaign = "unbound"
	}
	m.MessagesTotal.WithLabelValues(campaign, outcome).Inc()
	m.MessageDuration.WithLabelValues(campaign).Observe(elapsed.Seconds())
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
