package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Signing
	// ============================================
	TransactionsSigned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosschain_transactions_signed_total",
			Help: "Total number of crosschain transactions signed, by type tag",
		},
		[]string{"type"},
	)

	SigningFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosschain_signing_failures_total",
			Help: "Total number of signing failures, by signing strategy",
		},
		[]string{"strategy"},
	)

	// ============================================
	// Submission
	// ============================================
	SubmissionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosschain_submission_outcomes_total",
			Help: "Terminal state of originating submissions",
		},
		[]string{"type", "state"},
	)

	TxHashMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crosschain_tx_hash_mismatch_total",
		Help: "Submissions whose node-reported hash differed from the locally computed hash",
	})

	RPCErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosschain_rpc_errors_total",
			Help: "Node RPC failures, by method and kind (transport or envelope)",
		},
		[]string{"method", "kind"},
	)

	// ============================================
	// Receipts
	// ============================================
	ReceiptWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crosschain_receipt_wait_seconds",
		Help:    "Time spent waiting for a transaction receipt",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	ReceiptTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crosschain_receipt_timeouts_total",
		Help: "Receipt waits that exhausted all polling attempts",
	})

	// ============================================
	// Coordination chain
	// ============================================
	CoordinationHead = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crosschain_coordination_head_block",
		Help: "Last coordination chain block number observed while composing a transaction",
	})

	// ============================================
	// NATS
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crosschain_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosschain_nats_events_published_total",
			Help: "Submission events published to NATS, by result",
		},
		[]string{"result"},
	)
)
