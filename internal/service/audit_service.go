package service

import (
	"context"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/clock"
	"merchant-wallet-ledger/pkg/correlation"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type auditService struct {
	repo  ports.AuditRepository
	clock clock.Clock
	log   zerolog.Logger
}

// NewAuditService creates the audit sink.
// If repo is nil, audit entries are only written to the logger.
func NewAuditService(repo ports.AuditRepository, clk clock.Clock, log zerolog.Logger) ports.AuditService {
	return &auditService{repo: repo, clock: clk, log: log}
}

// Log records an audit entry asynchronously (fire-and-forget). The request
// context may already be cancelled when the write runs, so only its
// correlation id is carried over.
func (s *auditService) Log(ctx context.Context, entry *domain.AuditEntry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CorrelationID == "" {
		entry.CorrelationID = correlation.FromContext(ctx)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now()
	}

	go s.write(entry)
}

func (s *auditService) write(entry *domain.AuditEntry) {
	s.log.Info().
		Str("actor", entry.Actor).
		Str("action", string(entry.Action)).
		Str("entity", entry.Entity).
		Str("entity_id", entry.EntityID).
		Str("correlation_id", entry.CorrelationID).
		Msg("audit")

	if s.repo == nil {
		return
	}
	if err := s.repo.Create(context.Background(), entry); err != nil {
		s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit entry")
	}
}
