package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the ledger service.
type Metrics struct {
	// --- HTTP ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// --- Deposits ---
	DepositsVerified     *prometheus.CounterVec
	DepositsRejected     *prometheus.CounterVec
	DepositsCreditedSol  *prometheus.CounterVec
	DepositRecordMissing *prometheus.CounterVec
	PostbacksReceived    *prometheus.CounterVec

	// --- Withdrawals ---
	WithdrawalsRequested prometheus.Counter
	WithdrawalsRefused   *prometheus.CounterVec
	WithdrawalsResolved  *prometheus.CounterVec

	// --- Upstreams ---
	UpstreamDuration *prometheus.HistogramVec
	UpstreamErrors   *prometheus.CounterVec
	WalletRouted     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	upstreamBuckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10}

	return &Metrics{
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leverpad_http_requests_total",
			Help: "HTTP requests served, by method and status code",
		}, []string{"method", "code"}),

		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leverpad_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),

		DepositsVerified: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leverpad_deposits_verified_total",
			Help: "Deposits credited, by verification source",
		}, []string{"source"}),

		DepositsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leverpad_deposits_rejected_total",
			Help: "Deposit verifications that did not credit, by reason",
		}, []string{"reason"}),

		DepositsCreditedSol: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leverpad_deposits_credited_sol_total",
			Help: "Native units credited to wallets, by verification source",
		}, []string{"source"}),

		DepositRecordMissing: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leverpad_deposit_record_missing_total",
			Help: "Credits committed without a deposit record",
		}, []string{"source"}),

		PostbacksReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leverpad_offramp_postbacks_total",
			Help: "Off-ramp postbacks, by outcome",
		}, []string{"outcome"}),

		WithdrawalsRequested: factory.NewCounter(prometheus.CounterOpts{
			Name: "leverpad_withdrawals_requested_total",
			Help: "Withdrawal requests accepted",
		}),

		WithdrawalsRefused: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leverpad_withdrawals_refused_total",
			Help: "Withdrawal requests refused, by reason",
		}, []string{"reason"}),

		WithdrawalsResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leverpad_withdrawals_resolved_total",
			Help: "Withdrawal requests resolved by an administrator, by status",
		}, []string{"status"}),

		UpstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leverpad_upstream_duration_seconds",
			Help:    "Latency of calls to external services",
			Buckets: upstreamBuckets,
		}, []string{"upstream"}),

		UpstreamErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leverpad_upstream_errors_total",
			Help: "Failed calls to external services",
		}, []string{"upstream"}),

		WalletRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leverpad_wallet_routed_total",
			Help: "Platform wallet selections, by pool",
		}, []string{"pool"}),
	}
}
