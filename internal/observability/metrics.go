// Package observability holds the Prometheus metrics of the chat pipeline.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// turnsTotal counts finished turns by transport and outcome
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatwidget_turns_total",
		Help: "Chat turns by transport and outcome",
	}, []string{"transport", "outcome"})

	// firstTokenSeconds measures time from request to the first chunk
	firstTokenSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatwidget_first_token_seconds",
		Help:    "Latency until the first streamed chunk",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	})

	// turnSeconds measures full turn duration
	turnSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatwidget_turn_duration_seconds",
		Help:    "Chat turn duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"transport"})

	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatwidget_active_streams",
		Help: "Streams currently open",
	})

	specialEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatwidget_special_events_total",
		Help: "Side-channel events emitted by type",
	}, []string{"type"})

	// degraded counts best-effort steps that failed without failing the turn
	degraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatwidget_degraded_steps_total",
		Help: "Best-effort steps that failed by step",
	}, []string{"step"})

	sequenceConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatwidget_sequence_conflicts_total",
		Help: "Message inserts retried after a sequence collision",
	})

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatwidget_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
)

// StreamOpened marks a stream as active and returns the function that
// records its completion.
func StreamOpened(transport string) func(outcome string) {
	activeStreams.Inc()
	start := time.Now()
	return func(outcome string) {
		activeStreams.Dec()
		turnsTotal.WithLabelValues(transport, outcome).Inc()
		turnSeconds.WithLabelValues(transport).Observe(time.Since(start).Seconds())
	}
}

func ObserveFirstToken(d time.Duration) { firstTokenSeconds.Observe(d.Seconds()) }

func SpecialEventEmitted(eventType string) { specialEvents.WithLabelValues(eventType).Inc() }

func StepDegraded(step string) { degraded.WithLabelValues(step).Inc() }

func SequenceConflict() { sequenceConflicts.Inc() }

func RateLimited() { rateLimited.Inc() }
