package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/apperror"
	"merchant-wallet-ledger/pkg/clock"
	"merchant-wallet-ledger/pkg/money"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReconciliationServiceImpl compares each wallet's available balance with
// the signed sum of its WALLET ledger entries. It only reads wallets and
// the ledger; findings are written as incidents.
type ReconciliationServiceImpl struct {
	wallets      ports.WalletRepository
	ledger       ports.LedgerRepository
	incidents    ports.IncidentRepository
	notifier     ports.Notifier
	metrics      ports.MetricsRecorder
	clk          clock.Clock
	opsRecipient string
	log          zerolog.Logger

	mu     sync.RWMutex
	latest *domain.ReconciliationResult
}

// NewReconciliationService creates a new ReconciliationServiceImpl.
func NewReconciliationService(
	wallets ports.WalletRepository,
	ledger ports.LedgerRepository,
	incidents ports.IncidentRepository,
	notifier ports.Notifier,
	metrics ports.MetricsRecorder,
	clk clock.Clock,
	opsRecipient string,
	log zerolog.Logger,
) *ReconciliationServiceImpl {
	return &ReconciliationServiceImpl{
		wallets:      wallets,
		ledger:       ledger,
		incidents:    incidents,
		notifier:     notifier,
		metrics:      metricsOrNop(metrics),
		clk:          clk,
		opsRecipient: opsRecipient,
		log:          log,
	}
}

// Run checks every store that has a wallet. A store that cannot be checked
// is logged, counted in StoresFailed and skipped.
func (s *ReconciliationServiceImpl) Run(ctx context.Context) (*domain.ReconciliationResult, error) {
	res := &domain.ReconciliationResult{
		RunID:     uuid.New(),
		StartedAt: s.clk.Now(),
		Incidents: []domain.ReconciliationIncident{},
	}
	log := s.log.With().Str("run_id", res.RunID.String()).Logger()

	storeIDs, err := s.wallets.ListStoreIDs(ctx)
	if err != nil {
		err = apperror.InternalError(fmt.Errorf("list stores: %w", err))
		s.metrics.ObserveReconciliation(nil, err)
		return nil, err
	}

	for _, storeID := range storeIDs {
		if err := ctx.Err(); err != nil {
			s.metrics.ObserveReconciliation(nil, err)
			return nil, err
		}

		inc, err := s.checkStore(ctx, res.RunID, storeID)
		if err != nil {
			res.StoresFailed++
			log.Error().Err(err).Str("store_id", storeID.String()).Msg("reconciliation check failed")
			continue
		}
		res.StoresChecked++
		if inc == nil {
			continue
		}

		res.Discrepancies++
		res.TotalDeltaKobo += absKobo(inc.DeltaKobo)
		res.Incidents = append(res.Incidents, *inc)
		log.Warn().
			Str("store_id", storeID.String()).
			Int64("wallet_kobo", inc.WalletKobo).
			Int64("ledger_kobo", inc.LedgerKobo).
			Int64("delta_kobo", inc.DeltaKobo).
			Str("note", inc.Note).
			Msg("wallet drifted from ledger")
	}
	res.FinishedAt = s.clk.Now()

	s.mu.Lock()
	s.latest = res
	s.mu.Unlock()

	s.metrics.ObserveReconciliation(res, nil)
	log.Info().
		Int("stores_checked", res.StoresChecked).
		Int("stores_failed", res.StoresFailed).
		Int("discrepancies", res.Discrepancies).
		Int64("total_delta_kobo", res.TotalDeltaKobo).
		Dur("took", res.FinishedAt.Sub(res.StartedAt)).
		Msg("reconciliation run finished")

	if res.Discrepancies > 0 && s.notifier != nil {
		s.notifier.Dispatch(ctx, ports.Notification{
			Recipient: s.opsRecipient,
			Template:  ports.TemplateLedgerDrift,
			Data: map[string]any{
				"run_id":           res.RunID.String(),
				"discrepancies":    res.Discrepancies,
				"total_delta_kobo": res.TotalDeltaKobo,
			},
		})
	}
	return res, nil
}

// checkStore returns the persisted incident for a drifting store, or nil.
func (s *ReconciliationServiceImpl) checkStore(ctx context.Context, runID, storeID uuid.UUID) (*domain.ReconciliationIncident, error) {
	wallet, err := s.wallets.GetByStoreID(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	if wallet == nil {
		return nil, fmt.Errorf("wallet for store %s vanished", storeID)
	}

	sum, err := s.ledger.WalletSum(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("sum ledger: %w", err)
	}

	note := ""
	ledgerKobo, err := money.ToKobo(sum)
	switch {
	case errors.Is(err, money.ErrSubKobo):
		// Keep the whole-kobo part for the delta and report the fraction.
		ledgerKobo = sum.Shift(2).Truncate(0).IntPart()
		note = apperror.ErrSubKoboLedger(sum.String()).Error()
	case err != nil:
		return nil, fmt.Errorf("convert ledger sum: %w", err)
	}

	delta := wallet.AvailableKobo - ledgerKobo
	if delta == 0 && note == "" {
		return nil, nil
	}
	if note == "" {
		note = apperror.ErrLedgerDrift(delta).Error()
	}

	inc := &domain.ReconciliationIncident{
		ID:         uuid.New(),
		RunID:      runID,
		StoreID:    storeID,
		WalletKobo: wallet.AvailableKobo,
		LedgerKobo: ledgerKobo,
		DeltaKobo:  delta,
		Note:       note,
		DetectedAt: s.clk.Now(),
	}
	if err := s.incidents.Create(ctx, inc); err != nil {
		return nil, fmt.Errorf("record incident: %w", err)
	}
	return inc, nil
}

// Latest returns the most recent run of this process, or nil.
func (s *ReconciliationServiceImpl) Latest() *domain.ReconciliationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// ListIncidents returns the incidents of runID, defaulting to the latest run.
func (s *ReconciliationServiceImpl) ListIncidents(ctx context.Context, runID *uuid.UUID) ([]domain.ReconciliationIncident, error) {
	if runID == nil {
		if latest := s.Latest(); latest != nil {
			runID = &latest.RunID
		} else {
			id, err := s.incidents.LatestRunID(ctx)
			if err != nil {
				return nil, apperror.InternalError(fmt.Errorf("latest run: %w", err))
			}
			if id == nil {
				return []domain.ReconciliationIncident{}, nil
			}
			runID = id
		}
	}

	incidents, err := s.incidents.ListByRun(ctx, *runID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list incidents: %w", err))
	}
	return incidents, nil
}

func absKobo(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
