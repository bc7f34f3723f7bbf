package monitoring

import (
	"math/big"
	"net/http"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crl/logx"
)

type RejectedReason string

var (
	RejectNotAdministrator       RejectedReason = "not_administrator"
	RejectNotOperator            RejectedReason = "not_operator"
	RejectInsufficientBalance    RejectedReason = "insufficient_balance"
	RejectInsufficientAllowance  RejectedReason = "insufficient_allowance"
	RejectInsufficientCollateral RejectedReason = "insufficient_collateral"
	RejectRecipientUnknown       RejectedReason = "recipient_unknown"
	RejectTransferFailed         RejectedReason = "transfer_failed"
	RejectReentrantCall          RejectedReason = "reentrant_call"
)

type ledgerPromMetrics struct {
	nodeUpUnixSeconds prometheus.Gauge
	totalSupply       prometheus.Gauge
	reserveBalance    prometheus.Gauge
	collateralRatio   prometheus.Gauge
	recipientCount    prometheus.Gauge
	mintedTotal       prometheus.Counter
	burnedTotal       prometheus.Counter
	paidTotal         prometheus.Counter
	rejectedOpCount   *prometheus.CounterVec
	panicCount        prometheus.Counter
}

func newLedgerPromMetrics() *ledgerPromMetrics {
	return &ledgerPromMetrics{
		nodeUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crl_node_up_timestamp_unix_seconds",
				Help: "Unix timestamp of the node",
			},
		),
		totalSupply: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crl_total_supply",
				Help: "Outstanding credit supply",
			},
		),
		reserveBalance: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crl_reserve_balance",
				Help: "Reserve currency held by the ledger",
			},
		),
		collateralRatio: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crl_collateral_ratio",
				Help: "Reserve to supply ratio, 1.0 is full backing",
			},
		),
		recipientCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crl_recipient_count",
				Help: "Number of authorized recipients",
			},
		),
		mintedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crl_minted_total",
				Help: "Cumulative credits minted",
			},
		),
		burnedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crl_burned_total",
				Help: "Cumulative credits burned",
			},
		),
		paidTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crl_paid_total",
				Help: "Cumulative credits redeemed through payouts",
			},
		),
		rejectedOpCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crl_rejected_ops_total",
				Help: "Rejected operations by reason",
			},
			[]string{"reason"},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crl_panic_total",
				Help: "Recovered panics",
			},
		),
	}
}

var metrics = newLedgerPromMetrics()

// StartMetricsServer exposes /metrics on addr
func StartMetricsServer(addr string) {
	metrics.nodeUpUnixSeconds.Set(float64(time.Now().Unix()))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logx.Error("MONITORING", "Metrics server stopped:", err.Error())
		}
	}()
	logx.Info("MONITORING", "Metrics server listening on ", addr)
}

func SetTotalSupply(supply *uint256.Int) {
	metrics.totalSupply.Set(uint256ToFloat(supply))
}

func SetReserve(reserve *uint256.Int) {
	metrics.reserveBalance.Set(uint256ToFloat(reserve))
}

// SetCollateralRatio exposes reserve/supply, zero when no credit is outstanding
func SetCollateralRatio(reserve, supply *uint256.Int) {
	if supply == nil || supply.IsZero() {
		metrics.collateralRatio.Set(0)
		return
	}
	metrics.collateralRatio.Set(uint256ToFloat(reserve) / uint256ToFloat(supply))
}

func SetRecipientCount(count int) {
	metrics.recipientCount.Set(float64(count))
}

func RecordMint(amount *uint256.Int) {
	metrics.mintedTotal.Add(uint256ToFloat(amount))
}

func RecordBurn(amount *uint256.Int) {
	metrics.burnedTotal.Add(uint256ToFloat(amount))
}

func RecordPayment(amount *uint256.Int) {
	metrics.paidTotal.Add(uint256ToFloat(amount))
}

func RecordRejection(reason RejectedReason) {
	metrics.rejectedOpCount.WithLabelValues(string(reason)).Inc()
}

func IncreasePanicCount() {
	metrics.panicCount.Inc()
}

// uint256ToFloat converts lossily for gauge exposure
func uint256ToFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
