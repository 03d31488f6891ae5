package service

import (
	"time"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
)

// nopMetrics stands in when no recorder is wired.
type nopMetrics struct{}

func (nopMetrics) ObserveWebhook(ports.WebhookOutcome, error)                {}
func (nopMetrics) ObserveLockAcquire(domain.LockKind, string)                {}
func (nopMetrics) ObserveLocksSwept(domain.LockKind, int64)                  {}
func (nopMetrics) ObserveWithdrawal(domain.WithdrawalStatus)                 {}
func (nopMetrics) ObserveReconciliation(*domain.ReconciliationResult, error) {}
func (nopMetrics) ObserveStuckFindings(*domain.StuckFindings)                {}
func (nopMetrics) ObserveTimeToPaid(*float64)                                {}
func (nopMetrics) ObserveJobRun(string, time.Duration, error)                {}
func (nopMetrics) ObserveRequest(string, string, int, time.Duration)         {}

func metricsOrNop(m ports.MetricsRecorder) ports.MetricsRecorder {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
