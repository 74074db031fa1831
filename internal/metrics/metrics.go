package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scanner
	ScannerScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collection_scanner",
		Subsystem: "scanner",
		Name:      "scans_total",
		Help:      "Total scans by outcome (completed, cancelled, aborted)",
	}, []string{"outcome"})

	ScannerBatchesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "collection_scanner",
		Subsystem: "scanner",
		Name:      "batches_processed_total",
		Help:      "Total batches completed",
	})

	ScannerBatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "collection_scanner",
		Subsystem: "scanner",
		Name:      "batch_duration_seconds",
		Help:      "Duration of one batch of concurrent probes",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	ScannerResolvedCollections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "collection_scanner",
		Subsystem: "scanner",
		Name:      "resolved_collections",
		Help:      "Collections with active listings found by the last completed scan",
	})

	// Probe
	ProbeCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collection_scanner",
		Subsystem: "probe",
		Name:      "calls_total",
		Help:      "Total listing probes by result (listed, unlisted, failed, timeout)",
	}, []string{"result"})

	ProbeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "collection_scanner",
		Subsystem: "probe",
		Name:      "duration_seconds",
		Help:      "Listing probe duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// Cache
	ListingCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collection_scanner",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Listing cache lookups by result (hit, miss)",
	}, []string{"result"})

	ListingCachePurges = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "collection_scanner",
		Subsystem: "cache",
		Name:      "purges_total",
		Help:      "Listing cache purges triggered by collection change events",
	})

	// Marketplace RPC
	MarketplaceRPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collection_scanner",
		Subsystem: "marketplace",
		Name:      "rpc_calls_total",
		Help:      "Total marketplace RPC calls by method and status",
	}, []string{"chain", "method", "status"})

	MarketplaceRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collection_scanner",
		Subsystem: "marketplace",
		Name:      "rate_limit_waits_total",
		Help:      "Times a marketplace call waited for a rate limit token",
	}, []string{"chain"})

	MarketplaceCircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "collection_scanner",
		Subsystem: "marketplace",
		Name:      "circuit_state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"chain"})

	// Trigger
	TriggerEventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collection_scanner",
		Subsystem: "trigger",
		Name:      "events_received_total",
		Help:      "Collection change events received by transport",
	}, []string{"transport"})

	TriggerRescansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "collection_scanner",
		Subsystem: "trigger",
		Name:      "rescans_total",
		Help:      "Rescans started after debouncing change events",
	})

	// Source
	SourceFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "collection_scanner",
		Subsystem: "source",
		Name:      "fetch_errors_total",
		Help:      "Failures loading the owned collection list",
	})

	// DB connection pool
	DBPoolOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "collection_scanner",
		Subsystem: "db_pool",
		Name:      "open_connections",
		Help:      "Open database connections",
	}, []string{"owner"})

	DBPoolInUse = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "collection_scanner",
		Subsystem: "db_pool",
		Name:      "in_use_connections",
		Help:      "Database connections currently in use",
	}, []string{"owner"})

	DBPoolIdle = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "collection_scanner",
		Subsystem: "db_pool",
		Name:      "idle_connections",
		Help:      "Idle database connections",
	}, []string{"owner"})

	DBPoolWaitCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "collection_scanner",
		Subsystem: "db_pool",
		Name:      "wait_count",
		Help:      "Total connections waited for",
	}, []string{"owner"})

	DBPoolWaitDurationSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "collection_scanner",
		Subsystem: "db_pool",
		Name:      "wait_duration_seconds",
		Help:      "Total time blocked waiting for a connection",
	}, []string{"owner"})

	// Alerting
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collection_scanner",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Alerts delivered, by channel and type",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collection_scanner",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Alerts suppressed by the cooldown window",
	}, []string{"channel", "type"})
)
