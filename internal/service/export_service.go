package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/apperror"
	"merchant-wallet-ledger/pkg/clock"
	"merchant-wallet-ledger/pkg/money"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const exportTTL = 24 * time.Hour

var exportHeader = []string{
	"entry_id", "created_at", "reference_type", "reference_id",
	"direction", "account", "amount", "currency", "description",
}

// ExportServiceImpl builds CSV exports of a store's ledger. Regenerate and
// Expire are privileged and need the operator's soft lock.
type ExportServiceImpl struct {
	exports ports.ExportRepository
	ledger  ports.LedgerRepository
	stores  ports.StoreRepository
	locks   ports.LockService
	audit   ports.AuditService
	clk     clock.Clock
	log     zerolog.Logger
}

// NewExportService creates a new ExportServiceImpl.
func NewExportService(
	exports ports.ExportRepository,
	ledger ports.LedgerRepository,
	stores ports.StoreRepository,
	locks ports.LockService,
	audit ports.AuditService,
	clk clock.Clock,
	log zerolog.Logger,
) *ExportServiceImpl {
	return &ExportServiceImpl{exports: exports, ledger: ledger, stores: stores, locks: locks, audit: audit, clk: clk, log: log}
}

func (s *ExportServiceImpl) Create(ctx context.Context, storeID uuid.UUID, actor string) (*domain.ExportJob, error) {
	store, err := s.stores.GetByID(ctx, storeID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get store: %w", err))
	}
	if store == nil {
		return nil, apperror.ErrNotFound("Store")
	}

	now := s.clk.Now()
	job := &domain.ExportJob{
		ID:          uuid.New(),
		StoreID:     storeID,
		RequestedBy: actor,
		Status:      domain.ExportJobStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.exports.Create(ctx, job); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create export: %w", err))
	}

	if err := s.build(ctx, job); err != nil {
		return nil, err
	}
	s.log.Info().Str("export_id", job.ID.String()).Str("store_id", storeID.String()).Int("rows", job.RowCount).Msg("export ready")
	return job, nil
}

func (s *ExportServiceImpl) Get(ctx context.Context, id uuid.UUID) (*domain.ExportJob, error) {
	job, err := s.exports.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get export: %w", err))
	}
	if job == nil {
		return nil, apperror.ErrNotFound("Export")
	}
	return job, nil
}

// Download returns the job with its content while it is READY and unexpired.
func (s *ExportServiceImpl) Download(ctx context.Context, id uuid.UUID) (*domain.ExportJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.Downloadable(s.clk.Now()) {
		status := string(job.Status)
		if job.Status == domain.ExportJobStatusReady {
			status = string(domain.ExportJobStatusExpired)
		}
		return nil, apperror.ErrInvalidState("Export", status)
	}
	return job, nil
}

func (s *ExportServiceImpl) Regenerate(ctx context.Context, id uuid.UUID, actor string) (*domain.ExportJob, error) {
	if err := s.locks.Require(ctx, domain.LockKindExportJob, id, actor); err != nil {
		return nil, err
	}
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *job

	if err := s.build(ctx, job); err != nil {
		return nil, err
	}
	s.audit.Log(ctx, &domain.AuditEntry{
		Actor:    actor,
		Action:   domain.AuditActionExportRegenerate,
		Entity:   string(domain.LockKindExportJob),
		EntityID: id.String(),
		Before:   domain.Snapshot(before),
		After:    domain.Snapshot(job),
	})
	return job, nil
}

func (s *ExportServiceImpl) Expire(ctx context.Context, id uuid.UUID, actor string) (*domain.ExportJob, error) {
	if err := s.locks.Require(ctx, domain.LockKindExportJob, id, actor); err != nil {
		return nil, err
	}
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status == domain.ExportJobStatusExpired {
		return nil, apperror.ErrInvalidState("Export", string(job.Status))
	}
	before := *job

	now := s.clk.Now()
	if err := s.exports.MarkExpired(ctx, id, now); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("expire export: %w", err))
	}
	job.Status = domain.ExportJobStatusExpired
	job.ExpiresAt = &now
	job.UpdatedAt = now

	s.audit.Log(ctx, &domain.AuditEntry{
		Actor:    actor,
		Action:   domain.AuditActionExportExpire,
		Entity:   string(domain.LockKindExportJob),
		EntityID: id.String(),
		Before:   domain.Snapshot(before),
		After:    domain.Snapshot(job),
	})
	return job, nil
}

// build renders the ledger into job and saves it as READY, or FAILED when
// the ledger cannot be read.
func (s *ExportServiceImpl) build(ctx context.Context, job *domain.ExportJob) error {
	now := s.clk.Now()
	entries, err := s.ledger.ListAllByStore(ctx, job.StoreID)
	if err == nil {
		job.Content, err = renderLedgerCSV(entries)
	}
	if err != nil {
		job.Status = domain.ExportJobStatusFailed
		job.UpdatedAt = now
		if saveErr := s.exports.SaveContent(ctx, job); saveErr != nil {
			s.log.Error().Err(saveErr).Str("export_id", job.ID.String()).Msg("failed to mark export failed")
		}
		return apperror.InternalError(fmt.Errorf("build export: %w", err))
	}

	expires := now.Add(exportTTL)
	job.Status = domain.ExportJobStatusReady
	job.RowCount = len(entries)
	job.ExpiresAt = &expires
	job.UpdatedAt = now
	if err := s.exports.SaveContent(ctx, job); err != nil {
		return apperror.InternalError(fmt.Errorf("save export: %w", err))
	}
	return nil
}

func renderLedgerCSV(entries []domain.LedgerEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, e := range entries {
		row := []string{
			e.ID.String(),
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.ReferenceType,
			e.ReferenceID,
			string(e.Direction),
			string(e.Account),
			money.Format(e.AmountKobo),
			e.Currency,
			e.Description,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
