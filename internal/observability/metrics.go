// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Sync metrics
	SyncRuns            *prometheus.CounterVec
	SyncDuration        prometheus.Histogram
	SignaturesListed    prometheus.Counter
	TransactionsFetched *prometheus.CounterVec
	EventsClassified    *prometheus.CounterVec
	EventsStored        *prometheus.CounterVec
	SyncsShared         prometheus.Counter

	// Solana metrics
	RPCCallLatency  *prometheus.HistogramVec
	RPCErrors       *prometheus.CounterVec
	RateLimitWait   prometheus.Histogram
	WSNotifications prometheus.Counter
	WSReconnects    prometheus.Counter

	// Pricing metrics
	PriceLookups *prometheus.CounterVec
	SOLUSDPrice  prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulSync prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tracker"
	}

	return &Metrics{
		// Sync metrics
		SyncRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of wallet syncs by mode and status",
		}, []string{"mode", "status"}),
		SyncDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Wallet sync duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		SignaturesListed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "signatures_listed_total",
			Help:      "Total number of signatures returned by history listing",
		}),
		TransactionsFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "transactions_total",
			Help:      "Transactions requested by outcome (fetched, missing, failed)",
		}, []string{"outcome"}),
		EventsClassified: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "events_total",
			Help:      "Classified events by protocol and kind",
		}, []string{"protocol", "kind"}),
		EventsStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "events_stored_total",
			Help:      "Event upserts by result (inserted, duplicate, failed)",
		}, []string{"result"}),
		SyncsShared: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "shared_total",
			Help:      "Sync calls that joined an in-flight sync of the same wallet",
		}),

		// Solana metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_errors_total",
			Help:      "Solana RPC calls that failed after retries",
		}, []string{"method"}),
		RateLimitWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting for the request pacer",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		WSNotifications: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_notifications_total",
			Help:      "Log notifications received over websocket",
		}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_reconnects_total",
			Help:      "Websocket reconnect attempts",
		}),

		// Pricing metrics
		PriceLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "lookups_total",
			Help:      "SOL/USD lookups by origin (live, cached, default)",
		}, []string{"origin"}),
		SOLUSDPrice: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "sol_usd",
			Help:      "Last SOL/USD rate used for valuation",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulSync: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sync_timestamp",
			Help:      "Unix timestamp of last successful sync",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSyncRun records a finished sync.
func RecordSyncRun(mode, status string, durationSeconds float64) {
	DefaultMetrics.SyncRuns.WithLabelValues(mode, status).Inc()
	DefaultMetrics.SyncDuration.Observe(durationSeconds)
}

// RecordSignaturesListed adds n listed signatures.
func RecordSignaturesListed(n int) {
	DefaultMetrics.SignaturesListed.Add(float64(n))
}

// RecordTransactions records batch fetch outcomes.
func RecordTransactions(fetched, missing, failed int) {
	DefaultMetrics.TransactionsFetched.WithLabelValues("fetched").Add(float64(fetched))
	DefaultMetrics.TransactionsFetched.WithLabelValues("missing").Add(float64(missing))
	DefaultMetrics.TransactionsFetched.WithLabelValues("failed").Add(float64(failed))
}

// RecordEventClassified increments the classified counter.
func RecordEventClassified(protocol, kind string) {
	DefaultMetrics.EventsClassified.WithLabelValues(protocol, kind).Inc()
}

// RecordEventStored records one upsert result: "inserted", "duplicate" or "failed".
func RecordEventStored(result string) {
	DefaultMetrics.EventsStored.WithLabelValues(result).Inc()
}

// RecordSyncShared increments the shared sync counter.
func RecordSyncShared() {
	DefaultMetrics.SyncsShared.Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordRPCError increments the RPC error counter.
func RecordRPCError(method string) {
	DefaultMetrics.RPCErrors.WithLabelValues(method).Inc()
}

// RecordRateLimitWait records time spent in the pacer.
func RecordRateLimitWait(seconds float64) {
	DefaultMetrics.RateLimitWait.Observe(seconds)
}

// RecordWSNotification increments the websocket notification counter.
func RecordWSNotification() {
	DefaultMetrics.WSNotifications.Inc()
}

// RecordWSReconnect increments the websocket reconnect counter.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// RecordPriceLookup records where a SOL/USD rate came from.
func RecordPriceLookup(origin string, rate float64) {
	DefaultMetrics.PriceLookups.WithLabelValues(origin).Inc()
	DefaultMetrics.SOLUSDPrice.Set(rate)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// MarkSyncSuccess sets the last successful sync timestamp.
func MarkSyncSuccess(unix int64) {
	DefaultMetrics.LastSuccessfulSync.Set(float64(unix))
}
