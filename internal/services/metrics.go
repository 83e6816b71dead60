package services

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// TurnEvent describes one processed dialogue turn
type TurnEvent struct {
	Conversation string
	Intent       string
	Stage        string
	Outcome      string
	Latency      time.Duration
	Missing      int
	Defect       bool
	At           time.Time
}

// TurnMetrics records turn and LLM call metrics to Prometheus and,
// when configured, to InfluxDB
type TurnMetrics struct {
	registry *prometheus.Registry
	turns    *prometheus.CounterVec
	defects  prometheus.Counter
	llm      *prometheus.HistogramVec
	influx   *InfluxService
	logger   *zap.Logger
}

// NewTurnMetrics creates metrics on a dedicated registry. influx may be nil.
func NewTurnMetrics(influx *InfluxService, logger *zap.Logger) *TurnMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	m := &TurnMetrics{
		registry: reg,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskbot_turns_total",
			Help: "Dialogue turns processed, by resulting stage and outcome.",
		}, []string{"stage", "outcome"}),
		defects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskbot_defects_total",
			Help: "Turns that hit an intent/parameter pairing or merge defect.",
		}),
		llm: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskbot_llm_seconds",
			Help:    "Latency of LLM calls.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"provider"}),
		influx: influx,
		logger: logger.Named("metrics"),
	}
	reg.MustRegister(m.turns, m.defects, m.llm)
	return m
}

// RecordTurn counts the turn and forwards it to InfluxDB when enabled.
// InfluxDB failures are logged and never fail the turn.
func (m *TurnMetrics) RecordTurn(ctx context.Context, event TurnEvent) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(event.Stage, event.Outcome).Inc()
	if event.Defect {
		m.defects.Inc()
	}
	if m.influx == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	if err := m.influx.WriteTurn(ctx, event); err != nil {
		m.logger.Warn("failed to write turn event", zap.String("conversation", event.Conversation), zap.Error(err))
	}
}

// ObserveLLM records the latency of one LLM call
func (m *TurnMetrics) ObserveLLM(provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.llm.WithLabelValues(provider).Observe(d.Seconds())
}

// Registry exposes the underlying registry
func (m *TurnMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *TurnMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
