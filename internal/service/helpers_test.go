package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/pkg/apperror"
	"merchant-wallet-ledger/pkg/clock"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func newTestClock() *clock.Manual {
	return clock.NewManual(testNow)
}

func newTestLogger() zerolog.Logger {
	return zerolog.Nop()
}

// mockTx satisfies pgx.Tx for service tests; repositories are mocked so the
// transaction itself is never used.
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

// failingCommitTx reports a commit failure.
type failingCommitTx struct{ pgx.Tx }

func (m *failingCommitTx) Rollback(_ context.Context) error { return nil }
func (m *failingCommitTx) Commit(_ context.Context) error   { return errors.New("commit failed") }

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, expectedCode, appErr.Code)
}

// nopAudit drops audit entries.
type nopAudit struct{}

func (nopAudit) Log(context.Context, *domain.AuditEntry) {}

// recordingAudit captures audit entries synchronously.
type recordingAudit struct {
	entries []*domain.AuditEntry
}

func (r *recordingAudit) Log(_ context.Context, e *domain.AuditEntry) {
	r.entries = append(r.entries, e)
}

func (r *recordingAudit) actions() []domain.AuditAction {
	out := make([]domain.AuditAction, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
