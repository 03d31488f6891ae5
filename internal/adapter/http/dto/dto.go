package dto

import (
	"time"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/pkg/money"
)

// RegisterRequest is the request body for store registration.
type RegisterRequest struct {
	Username   string `json:"username" binding:"required,min=3,max=50,safe_id"`
	Password   string `json:"password" binding:"required,min=8,max=128"`
	StoreName  string `json:"storeName" binding:"required,min=1,max=100"`
	OwnerEmail string `json:"ownerEmail" binding:"required,email,max=254"`
	OwnerPhone string `json:"ownerPhone" binding:"omitempty,max=20"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterResponse is the response body for successful registration.
type RegisterResponse struct {
	StoreID string `json:"storeId"`
	UserID  string `json:"userId"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// SetPINRequest sets the withdrawal PIN for the first time.
type SetPINRequest struct {
	PIN string `json:"pin" binding:"required,pin_code"`
}

// ChangePINRequest replaces the withdrawal PIN.
type ChangePINRequest struct {
	CurrentPIN string `json:"currentPin" binding:"required,pin_code"`
	NewPIN     string `json:"newPin" binding:"required,pin_code"`
}

// InitiateWithdrawalRequest starts a payout.
type InitiateWithdrawalRequest struct {
	PIN           string `json:"pin" binding:"required,pin_code"`
	BankAccountID string `json:"bankAccountId" binding:"required,uuid"`
	AmountKobo    int64  `json:"amountKobo" binding:"required,kobo"`
}

// ConfirmWithdrawalRequest carries the OTP sent at initiation.
type ConfirmWithdrawalRequest struct {
	OTPCode string `json:"otpCode" binding:"required,otp_code"`
}

// ResolveWithdrawalRequest is an operator decision on a PROCESSING payout.
type ResolveWithdrawalRequest struct {
	Outcome           string `json:"outcome" binding:"required,oneof=SUCCESS FAILED"`
	ProviderReference string `json:"providerReference" binding:"omitempty,max=100,safe_id"`
	Reason            string `json:"reason" binding:"omitempty,max=500"`
}

// SubmitKYCRequest is the merchant identity submission.
type SubmitKYCRequest struct {
	IDType   string `json:"idType" binding:"required,oneof=BVN NIN"`
	IDNumber string `json:"idNumber" binding:"required,len=11,numeric"`
	FullName string `json:"fullName" binding:"required,min=2,max=150"`
}

// ReviewKYCRequest is the operator verdict on a pending KYC record.
type ReviewKYCRequest struct {
	Decision string `json:"decision" binding:"required,oneof=APPROVE REJECT"`
	Reason   string `json:"reason" binding:"omitempty,max=500"`
}

// AddBeneficiaryRequest registers a payout destination.
type AddBeneficiaryRequest struct {
	BankCode      string `json:"bankCode" binding:"required,min=3,max=10,numeric"`
	AccountNumber string `json:"accountNumber" binding:"required,nuban"`
	AccountName   string `json:"accountName" binding:"required,min=2,max=150"`
}

// CreateExportRequest asks for a ledger CSV of one store.
type CreateExportRequest struct {
	StoreID string `json:"storeId" binding:"required,uuid"`
}

// WalletResponse is the merchant balance view.
type WalletResponse struct {
	StoreID          string           `json:"storeId"`
	Currency         string           `json:"currency"`
	AvailableKobo    int64            `json:"availableKobo"`
	PendingKobo      int64            `json:"pendingKobo"`
	AvailableDisplay string           `json:"availableDisplay"`
	PendingDisplay   string           `json:"pendingDisplay"`
	KYCStatus        domain.KYCStatus `json:"kycStatus"`
	PINSet           bool             `json:"pinSet"`
	Locked           bool             `json:"locked"`
	LockedUntil      *string          `json:"lockedUntil,omitempty"`
}

// NewWalletResponse renders w. Locked reflects the lockout state at now.
func NewWalletResponse(w *domain.Wallet, now time.Time) WalletResponse {
	resp := WalletResponse{
		StoreID:          w.StoreID.String(),
		Currency:         w.Currency,
		AvailableKobo:    w.AvailableKobo,
		PendingKobo:      w.PendingKobo,
		AvailableDisplay: money.Format(w.AvailableKobo),
		PendingDisplay:   money.Format(w.PendingKobo),
		KYCStatus:        w.KYCStatus,
		PINSet:           w.PINSet,
		Locked:           w.PINLockActive(now),
	}
	if resp.Locked {
		until := w.LockedUntil.UTC().Format(time.RFC3339)
		resp.LockedUntil = &until
	}
	return resp
}

// LedgerEntryResponse is one ledger line with its formatted amount.
type LedgerEntryResponse struct {
	ID            string `json:"id"`
	ReferenceType string `json:"referenceType"`
	ReferenceID   string `json:"referenceId"`
	Direction     string `json:"direction"`
	Account       string `json:"account"`
	AmountKobo    int64  `json:"amountKobo"`
	AmountDisplay string `json:"amountDisplay"`
	Currency      string `json:"currency"`
	Description   string `json:"description"`
	CreatedAt     string `json:"createdAt"`
}

// NewLedgerEntryResponse renders e.
func NewLedgerEntryResponse(e domain.LedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:            e.ID.String(),
		ReferenceType: e.ReferenceType,
		ReferenceID:   e.ReferenceID,
		Direction:     string(e.Direction),
		Account:       string(e.Account),
		AmountKobo:    e.AmountKobo,
		AmountDisplay: money.Format(e.AmountKobo),
		Currency:      e.Currency,
		Description:   e.Description,
		CreatedAt:     e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// WithdrawalResponse is the client view of a withdrawal. The OTP hash never leaves the service.
type WithdrawalResponse struct {
	ID                string  `json:"id"`
	ReferenceCode     string  `json:"referenceCode"`
	BankAccountID     string  `json:"bankAccountId"`
	AmountKobo        int64   `json:"amountKobo"`
	AmountDisplay     string  `json:"amountDisplay"`
	Status            string  `json:"status"`
	OTPExpiresAt      *string `json:"otpExpiresAt,omitempty"`
	ProviderReference *string `json:"providerReference,omitempty"`
	FailureReason     *string `json:"failureReason,omitempty"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
}

// NewWithdrawalResponse renders w.
func NewWithdrawalResponse(w *domain.Withdrawal) WithdrawalResponse {
	resp := WithdrawalResponse{
		ID:                w.ID.String(),
		ReferenceCode:     w.ReferenceCode,
		BankAccountID:     w.BankAccountID.String(),
		AmountKobo:        w.AmountKobo,
		AmountDisplay:     money.Format(w.AmountKobo),
		Status:            string(w.Status),
		ProviderReference: w.ProviderReference,
		FailureReason:     w.FailureReason,
		CreatedAt:         w.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         w.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if w.Status == domain.WithdrawalStatusPendingOTP && w.OTPExpiresAt != nil {
		exp := w.OTPExpiresAt.UTC().Format(time.RFC3339)
		resp.OTPExpiresAt = &exp
	}
	return resp
}

// ListResponse wraps a paginated list.
type ListResponse struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

// PaginationQuery holds common pagination query params.
type PaginationQuery struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"pageSize" binding:"omitempty,min=1,max=100"`
}

// ReconciliationQuery selects a reconciliation run.
type ReconciliationQuery struct {
	RunID string `form:"runId" binding:"omitempty,uuid"`
}
