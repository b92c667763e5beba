// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission outcomes used as the status label.
const (
	StatusCommitted = "committed"
	StatusRejected  = "rejected"
	StatusTimeout   = "timeout"
	StatusError     = "error"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Transaction metrics
	TransactionsSubmitted *prometheus.CounterVec
	SubmitLatency         *prometheus.HistogramVec

	// Vault flow metrics, in token base units
	AmountDeposited prometheus.Counter
	AmountWithdrawn prometheus.Counter
	FeesCollected   prometheus.Counter

	// Journal metrics
	JournalEventsStored prometheus.Counter
	JournalErrors       *prometheus.CounterVec

	// Remote metrics
	RPCCallLatency      *prometheus.HistogramVec
	WatchNotifications  prometheus.Counter
	WatchStaleSkipped   prometheus.Counter
	HighestSlotSeen     prometheus.Gauge
	WatchDecodeFailures prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg leaves the metrics unregistered.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "token_vault"
	}
	factory := promauto.With(reg)

	return &Metrics{
		TransactionsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "transactions_submitted_total",
			Help:      "Total number of submitted transactions by instruction and outcome",
		}, []string{"instruction", "status"}),
		SubmitLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "submit_latency_seconds",
			Help:      "Transaction submission latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"instruction"}),

		AmountDeposited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "deposited_base_units_total",
			Help:      "Total principal deposited, in token base units",
		}),
		AmountWithdrawn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "withdrawn_base_units_total",
			Help:      "Total principal withdrawn including fees, in token base units",
		}),
		FeesCollected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "fees_base_units_total",
			Help:      "Total withdrawal fees paid to fee collectors, in token base units",
		}),

		JournalEventsStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "events_stored_total",
			Help:      "Total number of vault events appended to the journal",
		}),
		JournalErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "errors_total",
			Help:      "Total number of journal append failures by error type",
		}, []string{"error_type"}),

		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WatchNotifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "notifications_total",
			Help:      "Total number of vault account notifications applied",
		}),
		WatchStaleSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "stale_notifications_total",
			Help:      "Total number of notifications at or below the checkpoint slot",
		}),
		HighestSlotSeen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),
		WatchDecodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "decode_failures_total",
			Help:      "Total number of notifications whose account data was not a vault record",
		}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// RecordSubmit records a transaction submission.
func (m *Metrics) RecordSubmit(instruction, status string, seconds float64) {
	m.TransactionsSubmitted.WithLabelValues(instruction, status).Inc()
	m.SubmitLatency.WithLabelValues(instruction).Observe(seconds)
}

// RecordDeposit records a committed deposit.
func (m *Metrics) RecordDeposit(amount uint64) {
	m.AmountDeposited.Add(float64(amount))
}

// RecordWithdraw records a committed withdrawal.
func (m *Metrics) RecordWithdraw(amount, fee uint64) {
	m.AmountWithdrawn.Add(float64(amount))
	m.FeesCollected.Add(float64(fee))
}

// RecordJournal records a journal append outcome.
func (m *Metrics) RecordJournal(stored int, errorType string) {
	if errorType != "" {
		m.JournalErrors.WithLabelValues(errorType).Inc()
		return
	}
	m.JournalEventsStored.Add(float64(stored))
}

// RecordNotification records a watcher notification at slot.
func (m *Metrics) RecordNotification(slot int64, stale bool) {
	if stale {
		m.WatchStaleSkipped.Inc()
		return
	}
	m.WatchNotifications.Inc()
	m.HighestSlotSeen.Set(float64(slot))
}

// RecordRPCLatency records RPC call latency.
func (m *Metrics) RecordRPCLatency(method string, seconds float64) {
	m.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
