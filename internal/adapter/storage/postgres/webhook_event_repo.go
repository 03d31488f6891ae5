package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"merchant-wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const webhookEventColumns = `id, provider, provider_event_id, event_type, payload, status, attempts,
		last_error, next_retry_at, created_at, updated_at, processed_at`

// WebhookEventRepo implements ports.WebhookEventRepository.
type WebhookEventRepo struct {
	pool Pool
}

// NewWebhookEventRepo creates a new WebhookEventRepo.
func NewWebhookEventRepo(pool Pool) *WebhookEventRepo {
	return &WebhookEventRepo{pool: pool}
}

func scanWebhookEvent(row pgx.Row) (*domain.PaymentWebhookEvent, error) {
	e := &domain.PaymentWebhookEvent{}
	err := row.Scan(
		&e.ID, &e.Provider, &e.ProviderEventID, &e.EventType, &e.Payload, &e.Status, &e.Attempts,
		&e.LastError, &e.NextRetryAt, &e.CreatedAt, &e.UpdatedAt, &e.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// Claim inserts the guard row in RECEIVED. The unique (provider,
// provider_event_id) index makes concurrent claims race-free.
func (r *WebhookEventRepo) Claim(ctx context.Context, e *domain.PaymentWebhookEvent) (bool, error) {
	query := `INSERT INTO payment_webhook_events (id, provider, provider_event_id, event_type, payload, status,
		attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		e.ID, e.Provider, e.ProviderEventID, e.EventType, e.Payload, domain.WebhookEventReceived, e.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("claim webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByProviderEventID fetches the guard row.
func (r *WebhookEventRepo) GetByProviderEventID(ctx context.Context, provider, providerEventID string) (*domain.PaymentWebhookEvent, error) {
	query := `SELECT ` + webhookEventColumns + `
		FROM payment_webhook_events WHERE provider = $1 AND provider_event_id = $2`

	e, err := scanWebhookEvent(r.pool.QueryRow(ctx, query, provider, providerEventID))
	if err != nil {
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	return e, nil
}

// Reclaim is a compare-and-swap back to RECEIVED. Only one redelivery wins.
func (r *WebhookEventRepo) Reclaim(ctx context.Context, id uuid.UUID, status domain.WebhookEventStatus, observedUpdatedAt, now time.Time) (bool, error) {
	query := `UPDATE payment_webhook_events SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4 AND updated_at = $5`

	tag, err := r.pool.Exec(ctx, query, domain.WebhookEventReceived, now, id, status, observedUpdatedAt)
	if err != nil {
		return false, fmt.Errorf("reclaim webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkProcessed flips the row inside the settlement transaction so the flag
// becomes visible exactly when the paired writes commit.
func (r *WebhookEventRepo) MarkProcessed(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error {
	query := `UPDATE payment_webhook_events
		SET status = $1, processed_at = $2, updated_at = $2, last_error = NULL, next_retry_at = NULL
		WHERE id = $3`

	tag, err := tx.Exec(ctx, query, domain.WebhookEventProcessed, at, id)
	if err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook event not found: %s", id)
	}
	return nil
}

// MarkFailed records a failed attempt. nextRetryAt nil means no more retries.
func (r *WebhookEventRepo) MarkFailed(ctx context.Context, id uuid.UUID, lastError string, nextRetryAt *time.Time, at time.Time) error {
	query := `UPDATE payment_webhook_events
		SET status = $1, attempts = attempts + 1, last_error = $2, next_retry_at = $3, updated_at = $4
		WHERE id = $5 AND status <> $6`

	_, err := r.pool.Exec(ctx, query, domain.WebhookEventFailed, lastError, nextRetryAt, at, id, domain.WebhookEventProcessed)
	if err != nil {
		return fmt.Errorf("mark webhook event failed: %w", err)
	}
	return nil
}

// ClaimRetryable reserves a batch of due events. Rows locked by another worker are skipped.
func (r *WebhookEventRepo) ClaimRetryable(ctx context.Context, now, staleBefore time.Time, maxAttempts, limit int) ([]domain.PaymentWebhookEvent, error) {
	query := `UPDATE payment_webhook_events SET status = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM payment_webhook_events
			WHERE attempts < $3
			  AND ((status = $4 AND next_retry_at IS NOT NULL AND next_retry_at <= $2)
			    OR (status = $1 AND updated_at < $5))
			ORDER BY created_at
			LIMIT $6
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + webhookEventColumns

	rows, err := r.pool.Query(ctx, query, domain.WebhookEventReceived, now, maxAttempts, domain.WebhookEventFailed, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("claim retryable webhook events: %w", err)
	}
	defer rows.Close()

	var events []domain.PaymentWebhookEvent
	for rows.Next() {
		e, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook events: %w", err)
	}
	return events, nil
}
