package worker

import (
	"context"
	"time"

	"merchant-wallet-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

const (
	JobReconciliation = "reconciliation"
	JobStuckDetection = "stuck_detection"
	JobLockSweep      = "lock_sweep"
	JobWebhookRetry   = "webhook_retry"
)

// ReconciliationJob compares every wallet with its ledger.
func ReconciliationJob(svc ports.ReconciliationService, interval time.Duration) Job {
	return Job{
		Name:     JobReconciliation,
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := svc.Run(ctx)
			return err
		},
	}
}

// StuckDetectionJob pushes alerts for stuck withdrawals and exports.
func StuckDetectionJob(svc ports.MonitoringService, interval time.Duration) Job {
	return Job{
		Name:       JobStuckDetection,
		Interval:   interval,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			_, err := svc.DetectAndAlert(ctx)
			return err
		},
	}
}

// LockSweepJob clears soft locks older than the lock timeout.
func LockSweepJob(svc ports.LockService, interval time.Duration, log zerolog.Logger) Job {
	return Job{
		Name:     JobLockSweep,
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := svc.Sweep(ctx)
			if n > 0 {
				log.Info().Int64("cleared", n).Msg("stale locks swept")
			}
			return err
		},
	}
}

// WebhookRetryJob reprocesses failed and abandoned webhook events.
func WebhookRetryJob(svc ports.WebhookService, interval time.Duration, log zerolog.Logger) Job {
	return Job{
		Name:     JobWebhookRetry,
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := svc.RetryFailed(ctx)
			if n > 0 {
				log.Info().Int("events", n).Msg("webhook events retried")
			}
			return err
		},
	}
}
