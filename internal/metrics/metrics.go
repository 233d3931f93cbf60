package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chat-memory metrics
var (
	// Turn hook outcomes
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "memory",
			Name:      "turns_total",
			Help:      "Total lifecycle hook executions by phase and outcome",
		},
		[]string{"phase", "status"},
	)

	// Message store operations
	StoreOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "memory",
			Name:      "store_ops_total",
			Help:      "Total message store operations",
		},
		[]string{"op", "status"},
	)

	// Message store operation duration
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chat",
			Subsystem: "memory",
			Name:      "store_op_duration_seconds",
			Help:      "Message store operation duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"op"},
	)

	// Agent completion calls
	AgentCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "agent",
			Name:      "calls_total",
			Help:      "Total agent completion calls",
		},
		[]string{"status"},
	)

	// Agent completion call duration
	AgentCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chat",
			Subsystem: "agent",
			Name:      "call_duration_seconds",
			Help:      "Agent completion call duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// Context window sizes actually injected
	ContextMessages = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chat",
			Subsystem: "memory",
			Name:      "context_messages",
			Help:      "Number of messages injected as conversation context",
			Buckets:   []float64{0, 1, 2, 5, 10, 20},
		},
	)
)

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTurn records a lifecycle hook outcome
func RecordTurn(phase, status string) {
	TurnsTotal.WithLabelValues(phase, status).Inc()
}

// RecordStoreOp records a message store operation
func RecordStoreOp(op, status string, durationSec float64) {
	StoreOpsTotal.WithLabelValues(op, status).Inc()
	StoreOpDuration.WithLabelValues(op).Observe(durationSec)
}

// RecordAgentCall records an agent completion call
func RecordAgentCall(status string, durationSec float64) {
	AgentCallsTotal.WithLabelValues(status).Inc()
	AgentCallDuration.Observe(durationSec)
}

// RecordContextSize records the number of messages injected as context
func RecordContextSize(n int) {
	ContextMessages.Observe(float64(n))
}
