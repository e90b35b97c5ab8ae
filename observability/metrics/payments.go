package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics tracks settlement activity for dashboards and alerting.
type PaymentMetrics struct {
	transactions    *prometheus.CounterVec
	feesCollected   prometheus.Counter
	volume          prometheus.Counter
	distributions   prometheus.Counter
	rejected        *prometheus.CounterVec
	bucketBalances  *prometheus.GaugeVec
	pendingPayments prometheus.Gauge
}

var (
	paymentsOnce     sync.Once
	paymentsRegistry *PaymentMetrics
)

// Payments returns the process-wide settlement metrics registry.
func Payments() *PaymentMetrics {
	paymentsOnce.Do(func() {
		paymentsRegistry = &PaymentMetrics{
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "flowcash_transactions_total",
				Help: "Count of recorded transactions by payment type.",
			}, []string{"type"}),
			feesCollected: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "flowcash_fees_collected_wei_total",
				Help: "Cumulative protocol fees attributed to the treasury in wei.",
			}),
			volume: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "flowcash_volume_wei_total",
				Help: "Cumulative net settlement volume in wei.",
			}),
			distributions: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "flowcash_fee_distributions_total",
				Help: "Count of treasury payouts to the beneficiary wallets.",
			}),
			rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "flowcash_requests_rejected_total",
				Help: "Count of failed requests by reason.",
			}, []string{"reason"}),
			bucketBalances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "flowcash_treasury_bucket_wei",
				Help: "Current tracked treasury bucket balances in wei.",
			}, []string{"bucket"}),
			pendingPayments: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "flowcash_pending_payments",
				Help: "Number of airtime/bill payments awaiting confirmation.",
			}),
		}
		prometheus.MustRegister(
			paymentsRegistry.transactions,
			paymentsRegistry.feesCollected,
			paymentsRegistry.volume,
			paymentsRegistry.distributions,
			paymentsRegistry.rejected,
			paymentsRegistry.bucketBalances,
			paymentsRegistry.pendingPayments,
		)
	})
	return paymentsRegistry
}

// RecordTransaction counts a settled or pending transaction of the given type
// with its fee and net volume.
func (m *PaymentMetrics) RecordTransaction(paymentType string, fee, net *big.Int) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(paymentType).Inc()
	m.feesCollected.Add(weiToFloat(fee))
	m.volume.Add(weiToFloat(net))
}

// RecordDistribution counts a treasury payout.
func (m *PaymentMetrics) RecordDistribution() {
	if m == nil {
		return
	}
	m.distributions.Inc()
}

// RecordRejection counts a failed request by reason.
func (m *PaymentMetrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

// SetBucketBalance updates the tracked bucket gauge.
func (m *PaymentMetrics) SetBucketBalance(bucket string, balance *big.Int) {
	if m == nil {
		return
	}
	m.bucketBalances.WithLabelValues(bucket).Set(weiToFloat(balance))
}

// SetPendingPayments updates the pending-settlement gauge.
func (m *PaymentMetrics) SetPendingPayments(count float64) {
	if m == nil {
		return
	}
	m.pendingPayments.Set(count)
}

func weiToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
