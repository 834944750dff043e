package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the billing engine counters.
type Metrics struct {
	BillingRows    *prometheus.CounterVec
	WalletTxns     *prometheus.CounterVec
	WalletRejected *prometheus.CounterVec
	Disputes       *prometheus.CounterVec
	SchedulerRuns  *prometheus.CounterVec
	SchedulerErrs  *prometheus.CounterVec
}

// New registers the engine counters on the default registry.
func New() *Metrics {
	return &Metrics{
		BillingRows: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shipledger_billing_rows_total",
			Help: "Billing rows processed by result (success, failed, skipped).",
		}, []string{"result"}),
		WalletTxns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shipledger_wallet_transactions_total",
			Help: "Applied wallet transactions by type.",
		}, []string{"type"}),
		WalletRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shipledger_wallet_rejections_total",
			Help: "Wallet mutations rejected at the ledger boundary.",
		}, []string{"type"}),
		Disputes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shipledger_weight_disputes_total",
			Help: "Weight dispute transitions by outcome.",
		}, []string{"outcome"}),
		SchedulerRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shipledger_scheduler_job_runs_total",
			Help: "Scheduler job executions.",
		}, []string{"job"}),
		SchedulerErrs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shipledger_scheduler_job_errors_total",
			Help: "Scheduler job failures.",
		}, []string{"job"}),
	}
}

func (m *Metrics) IncBillingRow(result string) {
	if m == nil {
		return
	}
	m.BillingRows.WithLabelValues(result).Inc()
}

func (m *Metrics) IncWalletTxn(txnType string) {
	if m == nil {
		return
	}
	m.WalletTxns.WithLabelValues(txnType).Inc()
}

func (m *Metrics) IncWalletRejection(txnType string) {
	if m == nil {
		return
	}
	m.WalletRejected.WithLabelValues(txnType).Inc()
}

func (m *Metrics) IncDispute(outcome string) {
	if m == nil {
		return
	}
	m.Disputes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.SchedulerRuns.WithLabelValues(job).Inc()
}

func (m *Metrics) IncJobError(job string) {
	if m == nil {
		return
	}
	m.SchedulerErrs.WithLabelValues(job).Inc()
}
