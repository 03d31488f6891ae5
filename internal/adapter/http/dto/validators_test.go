package dto

import (
	"testing"
	"time"

	"merchant-wallet-ledger/internal/core/domain"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) *validator.Validate {
	t.Helper()
	v := validator.New()
	v.SetTagName("binding")
	RegisterValidators(v)
	return v
}

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsAndEscapes(t *testing.T) {
	req := AddBeneficiaryRequest{
		BankCode:      " 058 ",
		AccountNumber: " 0123456789 ",
		AccountName:   "  Ada <b>Stores</b> ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, "058", req.BankCode)
	assert.Equal(t, "0123456789", req.AccountNumber)
	assert.Equal(t, "Ada &lt;b&gt;Stores&lt;/b&gt;", req.AccountName)
}

func TestSanitizeStruct_HandlesPointerString(t *testing.T) {
	s := "  padded  "
	v := struct{ Note *string }{Note: &s}
	SanitizeStruct(&v)
	assert.Equal(t, "padded", *v.Note)

	empty := struct{ Note *string }{}
	SanitizeStruct(&empty)
	assert.Nil(t, empty.Note)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	s := "hello"
	SanitizeStruct(s) // should not panic
}

// --- Custom Validator tests ---

func TestSafeID(t *testing.T) {
	for _, tc := range []string{"ref-001", "TRF_002", "a.b.c", "ABC-def_GHI.123"} {
		assert.True(t, safeStringRe.MatchString(tc), "expected valid: %s", tc)
	}
	for _, tc := range []string{"ref 001", "ref<001>", "ref;DROP", "", "ref\n001"} {
		assert.False(t, safeStringRe.MatchString(tc), "expected invalid: %s", tc)
	}
}

func TestInitiateWithdrawalRequest_Validation(t *testing.T) {
	v := newValidator(t)
	valid := InitiateWithdrawalRequest{PIN: "1234", BankAccountID: uuid.NewString(), AmountKobo: 500_000}
	require.NoError(t, v.Struct(valid))

	tests := []struct {
		name   string
		mutate func(r *InitiateWithdrawalRequest)
	}{
		{"five digit pin", func(r *InitiateWithdrawalRequest) { r.PIN = "12345" }},
		{"alpha pin", func(r *InitiateWithdrawalRequest) { r.PIN = "12a4" }},
		{"negative amount", func(r *InitiateWithdrawalRequest) { r.AmountKobo = -1 }},
		{"amount above cap", func(r *InitiateWithdrawalRequest) { r.AmountKobo = MaxAmountKobo + 1 }},
		{"bad beneficiary id", func(r *InitiateWithdrawalRequest) { r.BankAccountID = "acct-1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			assert.Error(t, v.Struct(r))
		})
	}
}

func TestOTPAndNUBAN(t *testing.T) {
	v := newValidator(t)

	assert.NoError(t, v.Struct(ConfirmWithdrawalRequest{OTPCode: "004211"}))
	assert.Error(t, v.Struct(ConfirmWithdrawalRequest{OTPCode: "4211"}))
	assert.Error(t, v.Struct(ConfirmWithdrawalRequest{OTPCode: "42a1b2"}))

	ok := AddBeneficiaryRequest{BankCode: "058", AccountNumber: "0123456789", AccountName: "Ada Stores"}
	assert.NoError(t, v.Struct(ok))
	ok.AccountNumber = "012345678"
	assert.Error(t, v.Struct(ok))
}

func TestSetPINRequest_SixDigits(t *testing.T) {
	v := newValidator(t)
	assert.NoError(t, v.Struct(SetPINRequest{PIN: "246810"}))
	assert.Error(t, v.Struct(SetPINRequest{PIN: ""}))
}

func TestNewWalletResponse(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	until := now.Add(10 * time.Minute)
	w := &domain.Wallet{
		StoreID:       uuid.New(),
		Currency:      "NGN",
		AvailableKobo: 1_000_050,
		KYCStatus:     domain.KYCStatusVerified,
		PINSet:        true,
		IsLocked:      true,
		LockedUntil:   &until,
	}

	resp := NewWalletResponse(w, now)
	assert.Equal(t, "10000.50", resp.AvailableDisplay)
	assert.True(t, resp.Locked)
	require.NotNil(t, resp.LockedUntil)
	assert.Equal(t, "2026-03-02T09:40:00Z", *resp.LockedUntil)

	after := NewWalletResponse(w, until.Add(time.Second))
	assert.False(t, after.Locked)
	assert.Nil(t, after.LockedUntil)
}

func TestNewWithdrawalResponse_HidesExpiryAfterConfirm(t *testing.T) {
	exp := time.Date(2026, 3, 2, 9, 40, 0, 0, time.UTC)
	w := &domain.Withdrawal{ID: uuid.New(), Status: domain.WithdrawalStatusPendingOTP, OTPExpiresAt: &exp, AmountKobo: 250_000}

	resp := NewWithdrawalResponse(w)
	require.NotNil(t, resp.OTPExpiresAt)
	assert.Equal(t, "2500.00", resp.AmountDisplay)

	w.Status = domain.WithdrawalStatusProcessing
	assert.Nil(t, NewWithdrawalResponse(w).OTPExpiresAt)
}
