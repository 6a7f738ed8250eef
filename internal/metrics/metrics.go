package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WalletQueueLength tracks the number of wallets waiting for a refresh
	WalletQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "copytrail_wallet_queue_length",
		Help: "The number of wallets currently in the refresh queue",
	})

	// WorkersActive tracks the number of active workers
	WorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "copytrail_workers_active",
		Help: "The number of workers currently active",
	})

	// ProviderRequestsTotal tracks provider requests by endpoint kind and status
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copytrail_provider_requests_total",
			Help: "The total number of upstream provider requests",
		},
		[]string{"endpoint", "status"}, // rpc/enhanced, success/failed/rate_limited/cancelled
	)

	// WalletSyncSeconds tracks time taken to sync wallets end to end
	WalletSyncSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "copytrail_wallet_sync_seconds",
		Help:    "Time taken to sync a wallet in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
	})

	// TradesParsed tracks the number of trades produced by the swap parser
	TradesParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copytrail_trades_parsed_total",
			Help: "The total number of trades produced by the swap parser",
		},
		[]string{"side"}, // buy, sell
	)

	// TransactionsSkipped tracks records that produced no trades
	TransactionsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copytrail_transactions_skipped_total",
			Help: "The total number of transaction records skipped during parsing",
		},
		[]string{"reason"}, // failed_tx, empty, malformed
	)

	// FIFORebuildSeconds tracks the duration of full position rebuilds
	FIFORebuildSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "copytrail_fifo_rebuild_seconds",
		Help:    "Time taken to recompute a wallet's lots and positions",
		Buckets: prometheus.DefBuckets,
	})

	// DatabaseOperations tracks database operations
	DatabaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copytrail_database_operations_total",
			Help: "The total number of database operations",
		},
		[]string{"operation", "status"}, // insert/update/delete, success/failed
	)

	// RPCEndpointHealth tracks RPC endpoint health
	RPCEndpointHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "copytrail_rpc_endpoint_health",
			Help: "Health status of RPC endpoints (1 = healthy, 0 = unhealthy)",
		},
		[]string{"endpoint"},
	)
)

// RecordProviderRequest records an upstream provider request
func RecordProviderRequest(endpoint, status string) {
	ProviderRequestsTotal.WithLabelValues(endpoint, status).Inc()
}

// RecordWalletSync records the time taken to sync a wallet
func RecordWalletSync(duration float64) {
	WalletSyncSeconds.Observe(duration)
}

// RecordTradeParsed records a parsed trade by side
func RecordTradeParsed(side string) {
	TradesParsed.WithLabelValues(side).Inc()
}

// RecordTransactionSkipped records a skipped transaction record
func RecordTransactionSkipped(reason string) {
	TransactionsSkipped.WithLabelValues(reason).Inc()
}

// RecordFIFORebuild records the duration of a position rebuild
func RecordFIFORebuild(duration float64) {
	FIFORebuildSeconds.Observe(duration)
}

// RecordDatabaseOperation records a database operation
func RecordDatabaseOperation(operation, status string) {
	DatabaseOperations.WithLabelValues(operation, status).Inc()
}

// SetRPCEndpointHealth sets the health status of an RPC endpoint
func SetRPCEndpointHealth(endpoint string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	RPCEndpointHealth.WithLabelValues(endpoint).Set(value)
}
