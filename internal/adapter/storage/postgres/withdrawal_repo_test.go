package postgres

import (
	"context"
	"testing"
	"time"

	"merchant-wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withdrawalCols() []string {
	return []string{"id", "store_id", "bank_account_id", "amount_kobo", "status", "otp_hash", "otp_expires_at",
		"reference_code", "provider_reference", "failure_reason", "locked_at", "locked_by", "created_at", "updated_at"}
}

func newTestWithdrawal(status domain.WithdrawalStatus) *domain.Withdrawal {
	now := time.Now().UTC().Truncate(time.Microsecond)
	hash := "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8"
	expires := now.Add(10 * time.Minute)
	return &domain.Withdrawal{
		ID:            uuid.New(),
		StoreID:       uuid.New(),
		BankAccountID: uuid.New(),
		AmountKobo:    500000,
		Status:        status,
		OTPHash:       &hash,
		OTPExpiresAt:  &expires,
		ReferenceCode: "WD-20260301-ABCDEF",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func withdrawalRows(ws ...*domain.Withdrawal) *pgxmock.Rows {
	rows := pgxmock.NewRows(withdrawalCols())
	for _, w := range ws {
		rows.AddRow(w.ID, w.StoreID, w.BankAccountID, w.AmountKobo, w.Status, w.OTPHash, w.OTPExpiresAt,
			w.ReferenceCode, w.ProviderReference, w.FailureReason, w.LockedAt, w.LockedBy, w.CreatedAt, w.UpdatedAt)
	}
	return rows
}

func TestWithdrawalRepo_CreateAndGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWithdrawalRepo(mock)
	w := newTestWithdrawal(domain.WithdrawalStatusPendingOTP)

	mock.ExpectExec("INSERT INTO withdrawals").
		WithArgs(w.ID, w.StoreID, w.BankAccountID, w.AmountKobo, w.Status, w.OTPHash, w.OTPExpiresAt,
			w.ReferenceCode, w.CreatedAt, w.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT .+ FROM withdrawals WHERE id = \\$1$").
		WithArgs(w.ID).
		WillReturnRows(withdrawalRows(w))

	require.NoError(t, repo.Create(context.Background(), w))
	got, err := repo.GetByID(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.ReferenceCode, got.ReferenceCode)
	assert.Equal(t, domain.WithdrawalStatusPendingOTP, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalRepo_GetByReferenceForUpdate_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWithdrawalRepo(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("WHERE reference_code = \\$1 FOR UPDATE").
		WithArgs("WD-missing").
		WillReturnRows(pgxmock.NewRows(withdrawalCols()))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	got, err := repo.GetByReferenceForUpdate(context.Background(), tx, "WD-missing")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalRepo_ListByStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWithdrawalRepo(mock)
	a := newTestWithdrawal(domain.WithdrawalStatusSuccess)
	b := newTestWithdrawal(domain.WithdrawalStatusFailed)
	b.StoreID = a.StoreID

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(a.StoreID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(12)))
	mock.ExpectQuery("ORDER BY created_at DESC LIMIT").
		WithArgs(a.StoreID, 10, 10).
		WillReturnRows(withdrawalRows(a, b))

	out, total, err := repo.ListByStore(context.Background(), a.StoreID, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)
	assert.Len(t, out, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalRepo_ReservedKobo_UsesPoolWithoutTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWithdrawalRepo(mock)
	storeID := uuid.New()

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount_kobo\\)").
		WithArgs(storeID, domain.WithdrawalStatusProcessing).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(250000)))

	reserved, err := repo.ReservedKobo(context.Background(), nil, storeID)
	require.NoError(t, err)
	assert.Equal(t, int64(250000), reserved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalRepo_Transitions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWithdrawalRepo(mock)
	id := uuid.New()
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE withdrawals SET status = \\$1, otp_hash = NULL").
		WithArgs(domain.WithdrawalStatusProcessing, at, id, domain.WithdrawalStatusPendingOTP).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE withdrawals SET provider_reference").
		WithArgs("TRF_1ptvuv321ahaa7q", at, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("COALESCE\\(NULLIF\\(\\$2, ''\\), provider_reference\\)").
		WithArgs(domain.WithdrawalStatusSuccess, "", at, id, domain.WithdrawalStatusProcessing).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("failure_reason = \\$2").
		WithArgs(domain.WithdrawalStatusFailed, "late failure", at, id, domain.WithdrawalStatusProcessing).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	ok, err := repo.MarkProcessing(context.Background(), tx, id, at)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.SetProviderReference(context.Background(), id, "TRF_1ptvuv321ahaa7q", at))

	ok, err = repo.MarkSucceeded(context.Background(), tx, id, "", at)
	require.NoError(t, err)
	assert.True(t, ok)

	// Already SUCCESS, so the guarded update touches nothing.
	ok, err = repo.MarkFailed(context.Background(), tx, id, domain.WithdrawalStatusProcessing, "late failure", at)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
