package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/apperror"
	"merchant-wallet-ledger/pkg/clock"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// webhookRetrySchedule is the delay before the Nth retry of a failed event.
var webhookRetrySchedule = []time.Duration{
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
	30 * time.Minute,
	time.Hour,
}

const defaultCurrency = "NGN"

// WebhookConfig tunes the idempotency guard.
type WebhookConfig struct {
	// StaleAfter is how long a RECEIVED row may sit before a redelivery takes it over.
	StaleAfter   time.Duration
	MaxAttempts  int
	RetryBatch   int
	ProcessedTTL time.Duration
}

// WebhookDeps groups the collaborators of the webhook service.
type WebhookDeps struct {
	TxManager   ports.DBTransactor
	Events      ports.WebhookEventRepository
	Orders      ports.OrderRepository
	Payments    ports.PaymentTransactionRepository
	Wallets     ports.WalletRepository
	Ledger      ports.LedgerRepository
	Withdrawals ports.WithdrawalSettler
	Cache       ports.ProcessedEventCache
	Delivery    ports.DeliveryScheduler
	Metrics     ports.MetricsRecorder
	Clock       clock.Clock
}

// webhookService implements ports.WebhookService.
type webhookService struct {
	deps    WebhookDeps
	metrics ports.MetricsRecorder
	cfg     WebhookConfig
	log     zerolog.Logger
}

// NewWebhookService creates the provider webhook guard.
func NewWebhookService(deps WebhookDeps, cfg WebhookConfig, log zerolog.Logger) ports.WebhookService {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = len(webhookRetrySchedule)
	}
	if cfg.RetryBatch <= 0 {
		cfg.RetryBatch = 50
	}
	return &webhookService{deps: deps, metrics: metricsOrNop(deps.Metrics), cfg: cfg, log: log}
}

// settlement is what a committed event left to do outside the transaction.
type settlement struct {
	outcome ports.WebhookOutcome
	orderID *uuid.UUID
}

// HandleEvent runs the guard for a signature-verified body.
func (s *webhookService) HandleEvent(ctx context.Context, provider string, rawBody []byte) (*ports.WebhookResult, error) {
	evt, err := parseProviderEvent(rawBody)
	if err != nil {
		return nil, err
	}
	eventID := evt.EventID()
	log := s.log.With().Str("provider", provider).Str("event_id", eventID).Str("event", evt.Event).Logger()

	result, err := s.guard(ctx, provider, eventID, evt, rawBody, log)
	if result != nil {
		s.metrics.ObserveWebhook(result.Outcome, err)
	} else {
		s.metrics.ObserveWebhook(ports.WebhookOutcomeProcessed, err)
	}
	return result, err
}

func (s *webhookService) guard(ctx context.Context, provider, eventID string, evt *domain.ProviderEvent, rawBody []byte, log zerolog.Logger) (*ports.WebhookResult, error) {
	if s.deps.Cache != nil {
		seen, err := s.deps.Cache.IsProcessed(ctx, provider, eventID)
		if err != nil {
			log.Warn().Err(err).Msg("processed-event cache unavailable, falling back to database")
		} else if seen {
			return &ports.WebhookResult{Outcome: ports.WebhookOutcomeDuplicate, EventID: eventID}, nil
		}
	}

	now := s.deps.Clock.Now()
	row := &domain.PaymentWebhookEvent{
		ID:              uuid.New(),
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       evt.Event,
		Payload:         rawBody,
		Status:          domain.WebhookEventReceived,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	claimed, err := s.deps.Events.Claim(ctx, row)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("claim webhook event: %w", err))
	}

	if !claimed {
		existing, err := s.deps.Events.GetByProviderEventID(ctx, provider, eventID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("load webhook event: %w", err))
		}
		if existing == nil {
			return nil, apperror.InternalError(fmt.Errorf("webhook event %s vanished after conflict", eventID))
		}

		switch {
		case existing.IsProcessed():
			// The settlement committed earlier; the post-commit steps may not have.
			log.Info().Msg("duplicate webhook absorbed")
			if err := s.afterCommit(ctx, provider, eventID, evt, true, log); err != nil {
				return nil, err
			}
			return &ports.WebhookResult{Outcome: ports.WebhookOutcomeDuplicate, EventID: eventID}, nil

		case existing.Reclaimable(now, s.cfg.StaleAfter):
			won, err := s.deps.Events.Reclaim(ctx, existing.ID, existing.Status, existing.UpdatedAt, now)
			if err != nil {
				return nil, apperror.InternalError(fmt.Errorf("reclaim webhook event: %w", err))
			}
			if !won {
				return &ports.WebhookResult{Outcome: ports.WebhookOutcomeInProgress, EventID: eventID}, nil
			}
			log.Info().Str("previous_status", string(existing.Status)).Int("attempts", existing.Attempts).Msg("webhook event reclaimed")
			row = existing

		default:
			return &ports.WebhookResult{Outcome: ports.WebhookOutcomeInProgress, EventID: eventID}, nil
		}
	}

	return s.process(ctx, row, evt, log)
}

// process settles one claimed row and runs the post-commit steps.
func (s *webhookService) process(ctx context.Context, row *domain.PaymentWebhookEvent, evt *domain.ProviderEvent, log zerolog.Logger) (*ports.WebhookResult, error) {
	st, err := s.settle(ctx, row, evt)
	if err != nil {
		var appErr *apperror.AppError
		permanent := errors.As(err, &appErr) && appErr.Kind == apperror.KindValidation
		s.recordFailure(ctx, row, err, !permanent, log)
		if permanent {
			return nil, appErr
		}
		return nil, apperror.InternalError(fmt.Errorf("settle webhook event: %w", err))
	}

	log.Info().Str("outcome", string(st.outcome)).Msg("webhook event committed")

	if err := s.afterCommit(ctx, row.Provider, row.ProviderEventID, evt, false, log); err != nil {
		return nil, err
	}
	return &ports.WebhookResult{Outcome: st.outcome, EventID: row.ProviderEventID}, nil
}

// settle is the settlement transaction. The guard row flips to PROCESSED in
// the same commit as the money movement.
func (s *webhookService) settle(ctx context.Context, row *domain.PaymentWebhookEvent, evt *domain.ProviderEvent) (*settlement, error) {
	dbTx, err := s.deps.TxManager.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	st := &settlement{outcome: ports.WebhookOutcomeProcessed}
	now := s.deps.Clock.Now()

	switch {
	case evt.IsStorefrontCharge():
		orderID, err := s.settleCharge(ctx, dbTx, row.Provider, evt, now)
		if err != nil {
			return nil, err
		}
		st.orderID = orderID

	case evt.IsTransferOutcome():
		err := s.deps.Withdrawals.ApplyTransferOutcome(ctx, dbTx, ports.ApplyTransferRequest{
			ReferenceCode: evt.Data.Reference,
			Succeeded:     evt.Event == domain.EventTransferSuccess,
			Reason:        transferFailureReason(evt),
		})
		if err != nil {
			return nil, err
		}

	default:
		st.outcome = ports.WebhookOutcomeIgnored
	}

	if err := s.deps.Events.MarkProcessed(ctx, dbTx, row.ID, now); err != nil {
		return nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit settlement: %w", err)
	}
	return st, nil
}

// settleCharge credits a storefront order exactly once. Three guards stop a
// double credit: the order row lock with its PAID check, the unique
// provider reference on payment_transactions, and the unique ledger
// reference. Returns the order to schedule for delivery.
func (s *webhookService) settleCharge(ctx context.Context, tx pgx.Tx, provider string, evt *domain.ProviderEvent, now time.Time) (*uuid.UUID, error) {
	orderID, err := uuid.Parse(evt.Metadata.OrderID)
	if err != nil {
		return nil, apperror.Validation("metadata.orderId is not a valid id")
	}
	if evt.Data.Amount <= 0 || evt.Data.Fees < 0 || evt.Data.NetKobo() < 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if strings.TrimSpace(evt.Data.Reference) == "" {
		return nil, apperror.Validation("data.reference is required")
	}

	order, err := s.deps.Orders.GetByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperror.ErrNotFound("Order")
	}
	if evt.Metadata.StoreID != "" && evt.Metadata.StoreID != order.StoreID.String() {
		return nil, apperror.Validation("metadata.storeId does not own the order")
	}
	if order.IsPaid() {
		s.log.Info().Str("order_id", orderID.String()).Msg("order already paid, skipping credit")
		return &orderID, nil
	}
	if order.TotalKobo != evt.Data.Amount {
		return nil, apperror.Validation(fmt.Sprintf("charged amount %d does not match order total %d", evt.Data.Amount, order.TotalKobo))
	}

	if err := s.deps.Orders.MarkPaid(ctx, tx, orderID, now); err != nil {
		return nil, err
	}

	currency := evt.Data.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	payment := &domain.PaymentTransaction{
		ID:                uuid.New(),
		StoreID:           order.StoreID,
		OrderID:           orderID,
		Provider:          provider,
		ProviderReference: evt.Data.Reference,
		AmountKobo:        evt.Data.Amount,
		FeesKobo:          evt.Data.Fees,
		NetKobo:           evt.Data.NetKobo(),
		Currency:          currency,
		Status:            domain.TransactionStatusSuccess,
		CreatedAt:         now,
	}
	inserted, err := s.deps.Payments.Create(ctx, tx, payment)
	if err != nil {
		return nil, err
	}
	if !inserted {
		s.log.Warn().Str("reference", evt.Data.Reference).Msg("payment reference already recorded, skipping credit")
		return &orderID, nil
	}

	wallet, err := s.deps.Wallets.LockOrCreate(ctx, tx, order.StoreID)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Wallets.Credit(ctx, tx, wallet.ID, payment.NetKobo); err != nil {
		return nil, err
	}
	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		StoreID:       order.StoreID,
		ReferenceType: domain.ReferencePaymentTransaction,
		ReferenceID:   payment.ID.String(),
		Direction:     domain.DirectionCredit,
		Account:       domain.LedgerAccountWallet,
		AmountKobo:    payment.NetKobo,
		Currency:      currency,
		Description:   fmt.Sprintf("Order %s payment %s", orderID, evt.Data.Reference),
		CreatedAt:     now,
	}
	if err := s.deps.Ledger.Create(ctx, tx, entry); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("store_id", order.StoreID.String()).
		Str("order_id", orderID.String()).
		Int64("net_kobo", payment.NetKobo).
		Msg("order settled")
	return &orderID, nil
}

// afterCommit schedules delivery and writes the fast-path marker. The
// marker is only written once delivery is scheduled, so a cache hit never
// skips an enqueue. On a redelivery of a processed event the order's
// delivery flag is checked first, since the queue's dedupe key expires.
func (s *webhookService) afterCommit(ctx context.Context, provider, eventID string, evt *domain.ProviderEvent, redelivery bool, log zerolog.Logger) error {
	if evt.IsStorefrontCharge() && s.deps.Delivery != nil {
		if orderID, err := uuid.Parse(evt.Metadata.OrderID); err == nil {
			if err := s.scheduleDelivery(ctx, orderID, redelivery, log); err != nil {
				return err
			}
		}
	}

	if s.deps.Cache != nil {
		if err := s.deps.Cache.MarkProcessed(ctx, provider, eventID, s.cfg.ProcessedTTL); err != nil {
			log.Warn().Err(err).Msg("failed to write processed-event marker")
		}
	}
	return nil
}

func (s *webhookService) scheduleDelivery(ctx context.Context, orderID uuid.UUID, redelivery bool, log zerolog.Logger) error {
	log = log.With().Str("order_id", orderID.String()).Logger()

	if redelivery {
		order, err := s.deps.Orders.GetByID(ctx, orderID)
		switch {
		case err != nil:
			// The queue's dedupe key still covers recent redeliveries.
			log.Warn().Err(err).Msg("order lookup failed, relying on delivery dedupe")
		case order != nil && order.DeliveryScheduled():
			return nil
		}
	}

	scheduled, err := s.deps.Delivery.Enqueue(ctx, orderID)
	if err != nil {
		log.Error().Err(err).Msg("delivery enqueue failed after commit")
		return apperror.InternalError(fmt.Errorf("enqueue delivery: %w", err))
	}
	if scheduled {
		log.Info().Msg("delivery scheduled")
	}

	// Enqueue reports false when the dedupe key was already set, which also
	// means the job exists, so the flag is written either way.
	if err := s.deps.Orders.MarkDeliveryScheduled(ctx, orderID, s.deps.Clock.Now()); err != nil {
		log.Warn().Err(err).Msg("failed to record delivery schedule on order")
	}
	return nil
}

func (s *webhookService) recordFailure(ctx context.Context, row *domain.PaymentWebhookEvent, cause error, retry bool, log zerolog.Logger) {
	now := s.deps.Clock.Now()
	attempts := row.Attempts + 1

	var next *time.Time
	if retry && attempts < s.cfg.MaxAttempts {
		delay := webhookRetrySchedule[min(attempts-1, len(webhookRetrySchedule)-1)]
		at := now.Add(delay)
		next = &at
	}

	log.Error().Err(cause).Int("attempts", attempts).Msg("webhook settlement failed")
	if err := s.deps.Events.MarkFailed(ctx, row.ID, cause.Error(), next, now); err != nil {
		log.Error().Err(err).Msg("failed to record webhook failure")
	}
}

// RetryFailed reprocesses due FAILED rows and stale RECEIVED rows.
func (s *webhookService) RetryFailed(ctx context.Context) (int, error) {
	now := s.deps.Clock.Now()
	rows, err := s.deps.Events.ClaimRetryable(ctx, now, now.Add(-s.cfg.StaleAfter), s.cfg.MaxAttempts, s.cfg.RetryBatch)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("claim retryable events: %w", err))
	}

	for i := range rows {
		row := &rows[i]
		log := s.log.With().Str("provider", row.Provider).Str("event_id", row.ProviderEventID).Int("attempts", row.Attempts).Logger()

		evt, err := parseProviderEvent(row.Payload)
		if err != nil {
			// Stored payloads passed parsing once; a failure here is permanent.
			_ = s.deps.Events.MarkFailed(ctx, row.ID, err.Error(), nil, s.deps.Clock.Now())
			log.Error().Err(err).Msg("stored webhook payload unreadable")
			continue
		}

		res, err := s.process(ctx, row, evt, log)
		if res != nil {
			s.metrics.ObserveWebhook(res.Outcome, err)
		} else {
			s.metrics.ObserveWebhook(ports.WebhookOutcomeProcessed, err)
		}
		if err != nil {
			log.Warn().Err(err).Msg("webhook retry failed")
		}
	}

	if len(rows) > 0 {
		s.log.Info().Int("retried", len(rows)).Msg("webhook retry pass finished")
	}
	return len(rows), nil
}

func parseProviderEvent(raw []byte) (*domain.ProviderEvent, error) {
	var evt domain.ProviderEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, apperror.Validation("malformed event payload")
	}
	if evt.Event == "" {
		return nil, apperror.Validation("event type is required")
	}
	if strings.TrimSpace(string(evt.Data.ID)) == "" && strings.TrimSpace(evt.Data.Reference) == "" {
		return nil, apperror.Validation("event has neither data.id nor data.reference")
	}
	return &evt, nil
}

func transferFailureReason(evt *domain.ProviderEvent) string {
	if evt.Event == domain.EventTransferSuccess {
		return ""
	}
	if evt.Data.Reason != "" {
		return evt.Data.Reason
	}
	return evt.Event
}
