package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithdrawalStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from WithdrawalStatus
		to   WithdrawalStatus
		want bool
	}{
		{"otp to processing", WithdrawalStatusPendingOTP, WithdrawalStatusProcessing, true},
		{"otp to failed", WithdrawalStatusPendingOTP, WithdrawalStatusFailed, true},
		{"otp to success", WithdrawalStatusPendingOTP, WithdrawalStatusSuccess, false},
		{"processing to success", WithdrawalStatusProcessing, WithdrawalStatusSuccess, true},
		{"processing to failed", WithdrawalStatusProcessing, WithdrawalStatusFailed, true},
		{"success is terminal", WithdrawalStatusSuccess, WithdrawalStatusFailed, false},
		{"failed is terminal", WithdrawalStatusFailed, WithdrawalStatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
	assert.True(t, WithdrawalStatusSuccess.IsTerminal())
	assert.False(t, WithdrawalStatusProcessing.IsTerminal())
}

func TestWithdrawal_OTPExpired(t *testing.T) {
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	expires := issued.Add(10 * time.Minute)
	w := &Withdrawal{OTPExpiresAt: &expires}

	assert.False(t, w.OTPExpired(issued.Add(9*time.Minute)))
	assert.True(t, w.OTPExpired(issued.Add(10*time.Minute)))
	assert.True(t, w.OTPExpired(issued.Add(11*time.Minute)))
	assert.True(t, (&Withdrawal{}).OTPExpired(issued))
}

func TestWallet_PINLock(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	until := now.Add(15 * time.Minute)
	w := &Wallet{IsLocked: true, LockedUntil: &until}

	assert.True(t, w.PINLockActive(now))
	assert.False(t, w.PINLockExpired(now))
	assert.False(t, w.PINLockActive(until))
	assert.True(t, w.PINLockExpired(until.Add(time.Second)))

	unlocked := &Wallet{}
	assert.False(t, unlocked.PINLockActive(now))
	assert.False(t, unlocked.PINLockExpired(now))
}

func TestWallet_CanWithdraw(t *testing.T) {
	for _, s := range []KYCStatus{KYCStatusNotStarted, KYCStatusPending, KYCStatusRejected} {
		assert.False(t, (&Wallet{KYCStatus: s}).CanWithdraw(), s)
	}
	assert.True(t, (&Wallet{KYCStatus: KYCStatusVerified}).CanWithdraw())
}

func TestLedgerEntry_SignedKobo(t *testing.T) {
	credit := &LedgerEntry{Direction: DirectionCredit, AmountKobo: 150000}
	debit := &LedgerEntry{Direction: DirectionDebit, AmountKobo: 50000}

	assert.Equal(t, int64(150000), credit.SignedKobo())
	assert.Equal(t, int64(-50000), debit.SignedKobo())
}

func TestProviderEvent_Decode(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"id":302961,"reference":"ref-1","amount":150000,"fees":2250,"currency":"NGN"},"metadata":{"storeId":"s1","type":"storefront_order","orderId":"o1"}}`)

	var evt ProviderEvent
	require.NoError(t, json.Unmarshal(body, &evt))

	assert.Equal(t, "charge.success:302961", evt.EventID())
	assert.True(t, evt.IsStorefrontCharge())
	assert.False(t, evt.IsTransferOutcome())
	assert.Equal(t, int64(147750), evt.Data.NetKobo())
}

func TestProviderEvent_EventIDFallsBackToReference(t *testing.T) {
	var evt ProviderEvent
	require.NoError(t, json.Unmarshal([]byte(`{"event":"transfer.success","data":{"id":"","reference":"WD-20260301-ABC123"}}`), &evt))

	assert.Equal(t, "transfer.success:WD-20260301-ABC123", evt.EventID())
	assert.True(t, evt.IsTransferOutcome())
}

func TestPaymentWebhookEvent_Reclaimable(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		status  WebhookEventStatus
		updated time.Time
		want    bool
	}{
		{"failed", WebhookEventFailed, now, true},
		{"processed", WebhookEventProcessed, now.Add(-time.Hour), false},
		{"fresh received", WebhookEventReceived, now.Add(-time.Minute), false},
		{"stale received", WebhookEventReceived, now.Add(-6 * time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &PaymentWebhookEvent{Status: tt.status, UpdatedAt: tt.updated}
			assert.Equal(t, tt.want, e.Reclaimable(now, 5*time.Minute))
		})
	}
}

func TestLockHolder(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	taken := now.Add(-10 * time.Second)
	a := "admin-a"
	h := &LockHolder{Kind: LockKindWithdrawal, LockedAt: &taken, LockedBy: &a}

	assert.True(t, h.HeldByOther("admin-b", now, 30*time.Second))
	assert.False(t, h.HeldByOther("admin-a", now, 30*time.Second))
	assert.True(t, h.HeldBy("admin-a", now, 30*time.Second))
	assert.False(t, h.HeldByOther("admin-b", now.Add(31*time.Second), 30*time.Second))
	assert.False(t, (&LockHolder{}).HeldByOther("admin-b", now, 30*time.Second))

	assert.True(t, LockKindExportJob.Valid())
	assert.False(t, LockKind("orders").Valid())
}

func TestMaskIdentifier(t *testing.T) {
	assert.Equal(t, "*******1234", MaskIdentifier("22200001234"))
	assert.Equal(t, "******7890", MaskIdentifier("0123457890"))
	assert.Equal(t, "***", MaskIdentifier("123"))
}

func TestCanSubmitKYC(t *testing.T) {
	assert.True(t, CanSubmitKYC(KYCStatusNotStarted))
	assert.True(t, CanSubmitKYC(KYCStatusRejected))
	assert.False(t, CanSubmitKYC(KYCStatusPending))
	assert.False(t, CanSubmitKYC(KYCStatusVerified))
}

func TestExportJob_Downloadable(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	exp := now.Add(time.Hour)
	job := &ExportJob{Status: ExportJobStatusReady, ExpiresAt: &exp}

	assert.True(t, job.Downloadable(now))
	assert.False(t, job.Downloadable(exp))
	job.Status = ExportJobStatusExpired
	assert.False(t, job.Downloadable(now))
}

func TestStuckFindings_Total(t *testing.T) {
	f := &StuckFindings{}
	assert.True(t, f.Empty())

	f.StuckWithdrawals = []Withdrawal{{}}
	f.StuckExports = []ExportJob{{}, {}}
	assert.False(t, f.Empty())
	assert.Equal(t, 3, f.Total())
}

func TestSnapshot(t *testing.T) {
	assert.Nil(t, Snapshot(nil))
	assert.JSONEq(t, `{"status":"PENDING"}`, string(Snapshot(map[string]string{"status": "PENDING"})))
}
