package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/apperror"
	"merchant-wallet-ledger/pkg/clock"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Lock acquisition results reported to metrics.
const (
	lockGranted = "granted"
	lockDenied  = "denied"
	lockRace    = "race"
)

// LockServiceImpl implements ports.LockService on top of the row-level
// compare-and-swap in ports.LockRepository. There is no in-process mutex;
// the single conditional UPDATE is the only arbiter.
type LockServiceImpl struct {
	repo     ports.LockRepository
	auditSvc ports.AuditService
	metrics  ports.MetricsRecorder
	clock    clock.Clock
	timeout  time.Duration
	log      zerolog.Logger
}

// NewLockService creates a new LockServiceImpl.
func NewLockService(
	repo ports.LockRepository,
	auditSvc ports.AuditService,
	metrics ports.MetricsRecorder,
	clk clock.Clock,
	timeout time.Duration,
	log zerolog.Logger,
) *LockServiceImpl {
	return &LockServiceImpl{
		repo:     repo,
		auditSvc: auditSvc,
		metrics:  metricsOrNop(metrics),
		clock:    clk,
		timeout:  timeout,
		log:      log,
	}
}

// Acquire takes the soft lock on (kind, id) for actor. Re-acquiring a lock
// the actor already holds refreshes locked_at.
func (s *LockServiceImpl) Acquire(ctx context.Context, kind domain.LockKind, id uuid.UUID, actor string) (*domain.LockHolder, error) {
	if !kind.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown lock kind %q", kind))
	}
	if actor == "" {
		return nil, apperror.Validation("actor is required")
	}

	now := s.clock.Now()
	granted, err := s.repo.TryAcquire(ctx, kind, id, actor, now, now.Add(-s.timeout))
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("acquire lock: %w", err))
	}

	if granted {
		holder := &domain.LockHolder{Kind: kind, ID: id, LockedAt: &now, LockedBy: &actor}
		s.metrics.ObserveLockAcquire(kind, lockGranted)
		s.auditSvc.Log(ctx, &domain.AuditEntry{
			Actor:    actor,
			Action:   domain.AuditActionLockAcquired,
			Entity:   string(kind),
			EntityID: id.String(),
			After:    domain.Snapshot(holder),
		})
		return holder, nil
	}

	holder, err := s.repo.GetHolder(ctx, kind, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("read lock holder: %w", err))
	}
	if holder == nil {
		return nil, apperror.ErrNotFound(lockEntityName(kind))
	}

	if holder.HeldByOther(actor, now, s.timeout) {
		s.metrics.ObserveLockAcquire(kind, lockDenied)
		s.auditSvc.Log(ctx, &domain.AuditEntry{
			Actor:    actor,
			Action:   domain.AuditActionLockDenied,
			Entity:   string(kind),
			EntityID: id.String(),
			Before:   domain.Snapshot(holder),
		})
		return nil, apperror.ErrLockHeld(*holder.LockedBy)
	}

	// The row changed between the CAS and the read: the lock was released,
	// went stale or was taken and dropped. Nothing to audit.
	s.metrics.ObserveLockAcquire(kind, lockRace)
	return nil, apperror.ErrLockRace()
}

// Release clears the lock only when actor owns it.
func (s *LockServiceImpl) Release(ctx context.Context, kind domain.LockKind, id uuid.UUID, actor string) error {
	if !kind.Valid() {
		return apperror.Validation(fmt.Sprintf("unknown lock kind %q", kind))
	}

	released, err := s.repo.Release(ctx, kind, id, actor)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("release lock: %w", err))
	}
	if !released {
		holder, err := s.repo.GetHolder(ctx, kind, id)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("read lock holder: %w", err))
		}
		if holder == nil {
			return apperror.ErrNotFound(lockEntityName(kind))
		}
		return apperror.ErrLockNotOwned()
	}

	s.auditSvc.Log(ctx, &domain.AuditEntry{
		Actor:    actor,
		Action:   domain.AuditActionLockReleased,
		Entity:   string(kind),
		EntityID: id.String(),
	})
	return nil
}

// Require fails unless actor holds a non-stale lock on the resource.
func (s *LockServiceImpl) Require(ctx context.Context, kind domain.LockKind, id uuid.UUID, actor string) error {
	holder, err := s.repo.GetHolder(ctx, kind, id)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("read lock holder: %w", err))
	}
	if holder == nil {
		return apperror.ErrNotFound(lockEntityName(kind))
	}
	if !holder.HeldBy(actor, s.clock.Now(), s.timeout) {
		return apperror.ErrLockNotOwned()
	}
	return nil
}

// Sweep clears stale locks on every lockable table. A failing table does
// not stop the others.
func (s *LockServiceImpl) Sweep(ctx context.Context) (int64, error) {
	staleBefore := s.clock.Now().Add(-s.timeout)

	var total int64
	var errs []error
	for _, kind := range domain.LockKinds {
		n, err := s.repo.SweepStale(ctx, kind, staleBefore)
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", kind, err))
			continue
		}
		s.metrics.ObserveLocksSwept(kind, n)
		total += n
	}

	if total > 0 {
		s.log.Info().Int64("cleared", total).Msg("stale locks swept")
	}
	return total, errors.Join(errs...)
}

func lockEntityName(kind domain.LockKind) string {
	switch kind {
	case domain.LockKindWithdrawal:
		return "Withdrawal"
	case domain.LockKindExportJob:
		return "Export job"
	}
	return string(kind)
}
