package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"merchant-wallet-ledger/internal/core/ports/mocks"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func startScheduler(t *testing.T, s *Scheduler) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("scheduler did not stop")
		}
	}
}

func TestScheduler_RunsJobsRepeatedly(t *testing.T) {
	s := NewScheduler(time.Second, nil, zerolog.Nop())
	var runs atomic.Int32
	require.NoError(t, s.Register(Job{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	stop := startScheduler(t, s)
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	stop()
}

func TestScheduler_FailuresAndPanicsDoNotStopTheLoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	metrics := mocks.NewMockMetricsRecorder(ctrl)
	metrics.EXPECT().ObserveJobRun("flaky", gomock.Any(), gomock.Not(gomock.Nil())).MinTimes(2)
	metrics.EXPECT().ObserveJobRun("flaky", gomock.Any(), gomock.Nil()).AnyTimes()

	s := NewScheduler(time.Second, metrics, zerolog.Nop())
	var runs atomic.Int32
	require.NoError(t, s.Register(Job{
		Name:     "flaky",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) error {
			switch runs.Add(1) {
			case 1:
				panic("boom")
			case 2:
				return errors.New("db down")
			}
			return nil
		},
	}))

	stop := startScheduler(t, s)
	require.Eventually(t, func() bool { return runs.Load() >= 4 }, time.Second, time.Millisecond)
	stop()
}

func TestScheduler_RunHasDeadline(t *testing.T) {
	s := NewScheduler(20*time.Millisecond, nil, zerolog.Nop())
	require.NoError(t, s.Register(Job{
		Name:     "slow",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}))

	err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_RunOnStart(t *testing.T) {
	s := NewScheduler(0, nil, zerolog.Nop())
	ran := make(chan struct{}, 1)
	require.NoError(t, s.Register(Job{
		Name:       "eager",
		Interval:   time.Hour,
		RunOnStart: true,
		Run: func(context.Context) error {
			ran <- struct{}{}
			return nil
		},
	}))

	stop := startScheduler(t, s)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job did not run on start")
	}
	stop()
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := NewScheduler(0, nil, zerolog.Nop())
	noop := func(context.Context) error { return nil }

	assert.Error(t, s.Register(Job{Name: "", Interval: time.Second, Run: noop}))
	assert.Error(t, s.Register(Job{Name: "x", Interval: 0, Run: noop}))
	assert.Error(t, s.Register(Job{Name: "x", Interval: time.Second}))
	require.NoError(t, s.Register(Job{Name: "x", Interval: time.Second, Run: noop}))
	assert.Error(t, s.Register(Job{Name: "x", Interval: time.Second, Run: noop}), "duplicate name")
	assert.Error(t, s.RunNow(context.Background(), "missing"))
}

func TestJobs_DelegateToServices(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	recon := mocks.NewMockReconciliationService(ctrl)
	recon.EXPECT().Run(gomock.Any()).Return(nil, errors.New("x"))
	assert.Error(t, ReconciliationJob(recon, time.Hour).Run(ctx))

	mon := mocks.NewMockMonitoringService(ctrl)
	mon.EXPECT().DetectAndAlert(gomock.Any()).Return(nil, nil)
	assert.NoError(t, StuckDetectionJob(mon, time.Minute).Run(ctx))

	locks := mocks.NewMockLockService(ctrl)
	locks.EXPECT().Sweep(gomock.Any()).Return(int64(2), nil)
	assert.NoError(t, LockSweepJob(locks, time.Second, zerolog.Nop()).Run(ctx))

	hooks := mocks.NewMockWebhookService(ctrl)
	hooks.EXPECT().RetryFailed(gomock.Any()).Return(3, nil)
	job := WebhookRetryJob(hooks, time.Second, zerolog.Nop())
	assert.Equal(t, JobWebhookRetry, job.Name)
	assert.NoError(t, job.Run(ctx))
}
