package flowmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollAttempts tracks operation attempts per poll task label
	PollAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partake_poll_attempts_total",
			Help: "Total number of polled operation attempts",
		},
		[]string{"task"},
	)

	// PollExhausted tracks polls that hit the attempt ceiling
	PollExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partake_poll_exhausted_total",
			Help: "Total number of polls that exhausted their attempt ceiling",
		},
		[]string{"task"},
	)

	// PollCancelled tracks polls rejected or interrupted by cancellation
	PollCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partake_poll_cancelled_total",
			Help: "Total number of polls cancelled by identity token",
		},
	)

	// HighLoadEvents tracks high-load warnings raised by the retry engine
	HighLoadEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partake_high_load_events_total",
			Help: "Total number of high-load warnings raised",
		},
	)

	// DualReads tracks dual-channel read deliveries per tier and result
	DualReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partake_dual_reads_total",
			Help: "Total number of dual-channel read deliveries",
		},
		[]string{"tier", "result"},
	)

	// DualReadsSuppressed tracks speculative results discarded after an
	// authoritative settlement
	DualReadsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partake_dual_reads_suppressed_total",
			Help: "Total number of speculative results suppressed by the authoritative latch",
		},
	)

	// PhaseTransitions tracks participation state machine transitions
	PhaseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partake_phase_transitions_total",
			Help: "Total number of participation phase transitions",
		},
		[]string{"phase"},
	)

	// FlowOutcomes tracks terminal participation outcomes
	FlowOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partake_flow_outcomes_total",
			Help: "Total number of terminal participation outcomes",
		},
		[]string{"outcome"},
	)
)
