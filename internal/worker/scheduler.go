// Package worker runs the recurring background jobs: reconciliation, stuck
// operation detection, soft lock sweeping and webhook retries.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"merchant-wallet-ledger/internal/core/ports"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Job is one recurring task.
type Job struct {
	Name     string
	Interval time.Duration
	// RunOnStart runs the job once before the first tick.
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// Scheduler runs each registered job on its own ticker. A failing or
// panicking run is logged and counted; it never stops the scheduler.
type Scheduler struct {
	mu      sync.Mutex
	jobs    []Job
	started bool
	timeout time.Duration
	metrics ports.MetricsRecorder
	log     zerolog.Logger
}

// NewScheduler creates a scheduler whose runs are cut off after timeout.
// A zero timeout disables the per-run deadline.
func NewScheduler(timeout time.Duration, metrics ports.MetricsRecorder, log zerolog.Logger) *Scheduler {
	return &Scheduler{timeout: timeout, metrics: metrics, log: log.With().Str("component", "scheduler").Logger()}
}

// Register adds a job. It must be called before Start.
func (s *Scheduler) Register(j Job) error {
	if j.Name == "" || j.Run == nil {
		return errors.New("worker: job needs a name and a run func")
	}
	if j.Interval <= 0 {
		return fmt.Errorf("worker: job %s needs a positive interval", j.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("worker: cannot register %s after start", j.Name)
	}
	for _, existing := range s.jobs {
		if existing.Name == j.Name {
			return fmt.Errorf("worker: job %s already registered", j.Name)
		}
	}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start blocks until ctx is done and every in-flight run has returned.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.started = true
	jobs := append([]Job(nil), s.jobs...)
	s.mu.Unlock()

	s.log.Info().Int("jobs", len(jobs)).Msg("scheduler started")

	g, gctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		g.Go(func() error {
			s.loop(gctx, j)
			return nil
		})
	}
	err := g.Wait()
	s.log.Info().Msg("scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	if j.RunOnStart {
		s.runOnce(ctx, j)
	}

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, j)
		}
	}
}

// RunNow executes a registered job once, synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var job *Job
	for i := range s.jobs {
		if s.jobs[i].Name == name {
			job = &s.jobs[i]
			break
		}
	}
	s.mu.Unlock()
	if job == nil {
		return fmt.Errorf("worker: unknown job %s", name)
	}
	return s.runOnce(ctx, *job)
}

func (s *Scheduler) runOnce(ctx context.Context, j Job) (err error) {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.Name, r)
		}
		took := time.Since(start)
		if s.metrics != nil {
			s.metrics.ObserveJobRun(j.Name, took, err)
		}
		if err != nil {
			s.log.Error().Err(err).Str("job", j.Name).Dur("took", took).Msg("job run failed")
			return
		}
		s.log.Debug().Str("job", j.Name).Dur("took", took).Msg("job run finished")
	}()

	return j.Run(ctx)
}
