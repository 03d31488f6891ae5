package metrics

import (
	"strconv"
	"time"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wallet_ledger"

// Metrics implements ports.MetricsRecorder. A nil *Metrics records nothing.
type Metrics struct {
	webhookEvents         *prometheus.CounterVec
	lockAcquisitions      *prometheus.CounterVec
	locksSwept            *prometheus.CounterVec
	withdrawals           *prometheus.CounterVec
	reconciliationRuns    *prometheus.CounterVec
	reconciliationDrift   prometheus.Gauge
	reconciliationDiscrep prometheus.Gauge
	reconciliationFailed  prometheus.Gauge
	reconciliationLastRun prometheus.Gauge
	stuckOperations       *prometheus.GaugeVec
	timeToPaid            prometheus.Gauge
	jobRuns               *prometheus.CounterVec
	jobDuration           *prometheus.HistogramVec
	requestDuration       *prometheus.HistogramVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		webhookEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "events_total",
				Help:      "Provider webhook deliveries by outcome.",
			},
			[]string{"outcome"},
		),
		lockAcquisitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lock",
				Name:      "acquisitions_total",
				Help:      "Soft lock acquisition attempts by resource kind and result.",
			},
			[]string{"kind", "result"},
		),
		locksSwept: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lock",
				Name:      "swept_total",
				Help:      "Stale soft locks cleared by the sweeper.",
			},
			[]string{"kind"},
		),
		withdrawals: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "withdrawal",
				Name:      "transitions_total",
				Help:      "Withdrawal state transitions by target status.",
			},
			[]string{"status"},
		),
		reconciliationRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconciliation",
				Name:      "runs_total",
				Help:      "Reconciliation runs partitioned by result.",
			},
			[]string{"result"},
		),
		reconciliationDrift: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "reconciliation",
				Name:      "drift_kobo",
				Help:      "Sum of absolute wallet-versus-ledger deltas found by the last run.",
			},
		),
		reconciliationDiscrep: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "reconciliation",
				Name:      "discrepancies",
				Help:      "Stores with a non-zero delta in the last run.",
			},
		),
		reconciliationFailed: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "reconciliation",
				Name:      "stores_failed",
				Help:      "Stores skipped because of an error in the last run.",
			},
		),
		reconciliationLastRun: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "reconciliation",
				Name:      "last_run_unix",
				Help:      "Unix time of the most recent completed run.",
			},
		),
		stuckOperations: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "monitoring",
				Name:      "stuck_operations",
				Help:      "Operations found by the last stuck-operation scan, by kind.",
			},
			[]string{"kind"},
		),
		timeToPaid: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "monitoring",
				Name:      "withdrawal_time_to_paid_seconds",
				Help:      "Average seconds from withdrawal creation to SUCCESS over the recent window.",
			},
		),
		jobRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "runs_total",
				Help:      "Scheduled job runs by job and result.",
			},
			[]string{"job", "result"},
		),
		jobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "run_duration_seconds",
				Help:      "Scheduled job run duration.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"job"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by route and status.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5},
			},
			[]string{"method", "route", "status"},
		),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *Metrics) ObserveWebhook(outcome ports.WebhookOutcome, err error) {
	if m == nil {
		return
	}
	label := string(outcome)
	if err != nil {
		label = "failed"
	}
	m.webhookEvents.WithLabelValues(label).Inc()
}

// ObserveLockAcquire counts one attempt. result is granted, denied or race.
func (m *Metrics) ObserveLockAcquire(kind domain.LockKind, result string) {
	if m == nil {
		return
	}
	m.lockAcquisitions.WithLabelValues(string(kind), result).Inc()
}

func (m *Metrics) ObserveLocksSwept(kind domain.LockKind, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.locksSwept.WithLabelValues(string(kind)).Add(float64(n))
}

func (m *Metrics) ObserveWithdrawal(status domain.WithdrawalStatus) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) ObserveReconciliation(res *domain.ReconciliationResult, err error) {
	if m == nil {
		return
	}
	m.reconciliationRuns.WithLabelValues(result(err)).Inc()
	if res == nil {
		return
	}
	m.reconciliationLastRun.Set(float64(res.FinishedAt.Unix()))
	m.reconciliationDiscrep.Set(float64(res.Discrepancies))
	m.reconciliationFailed.Set(float64(res.StoresFailed))
	m.reconciliationDrift.Set(float64(res.TotalDeltaKobo))
}

func (m *Metrics) ObserveStuckFindings(f *domain.StuckFindings) {
	if m == nil || f == nil {
		return
	}
	m.stuckOperations.WithLabelValues("stuck_withdrawal").Set(float64(len(f.StuckWithdrawals)))
	m.stuckOperations.WithLabelValues("aging_withdrawal").Set(float64(len(f.AgingWithdrawals)))
	m.stuckOperations.WithLabelValues("stuck_export").Set(float64(len(f.StuckExports)))
}

// ObserveTimeToPaid sets the gauge; nil (no settled withdrawals) resets it to zero.
func (m *Metrics) ObserveTimeToPaid(seconds *float64) {
	if m == nil {
		return
	}
	if seconds == nil {
		m.timeToPaid.Set(0)
		return
	}
	m.timeToPaid.Set(*seconds)
}

func (m *Metrics) ObserveJobRun(job string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, result(err)).Inc()
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
