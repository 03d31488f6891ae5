package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an AppError for callers that branch on the failure family.
type Kind string

const (
	KindValidation       Kind = "VALIDATION"
	KindAuthentication   Kind = "AUTHENTICATION"
	KindLock             Kind = "LOCK"
	KindState            Kind = "STATE"
	KindExternalProvider Kind = "EXTERNAL_PROVIDER"
	KindDataIntegrity    Kind = "DATA_INTEGRITY"
	KindNotFound         Kind = "NOT_FOUND"
	KindForbidden        Kind = "FORBIDDEN"
	KindRateLimit        Kind = "RATE_LIMIT"
	KindInternal         Kind = "INTERNAL"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Kind       Kind           `json:"error"`
	Code       string         `json:"error_code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail attaches a client-visible detail and returns the same error.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError.
func New(kind Kind, code string, message string, httpStatus int) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(kind Kind, code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// CodeOf returns the error code of an AppError, or "" for other errors.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// ---- Validation (VAL) ----

// Validation returns a generic malformed-input error.
func Validation(message string) *AppError {
	return New(KindValidation, "VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New(KindValidation, "VAL_002", "Invalid amount", http.StatusBadRequest)
}

func ErrDuplicate(entity string) *AppError {
	return New(KindValidation, "VAL_003", fmt.Sprintf("%s already exists", entity), http.StatusConflict)
}

// ---- Authentication (AUTH, PIN, OTP) ----

func ErrInvalidCredentials() *AppError {
	return New(KindAuthentication, "AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrInvalidSignature() *AppError {
	return New(KindAuthentication, "AUTH_002", "Invalid signature", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New(KindAuthentication, "AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New(KindForbidden, "AUTH_004", "Operation not permitted for this account", http.StatusForbidden)
}

func ErrPINNotSet() *AppError {
	return New(KindValidation, "PIN_001", "Withdrawal PIN has not been set", http.StatusBadRequest)
}

// ErrInvalidPIN carries only the remaining attempt count, never the hash.
func ErrInvalidPIN(remaining int) *AppError {
	return New(KindAuthentication, "PIN_002", "Invalid PIN", http.StatusUnauthorized).
		WithDetail("remaining_attempts", remaining)
}

func ErrPINLocked(until time.Time) *AppError {
	return New(KindAuthentication, "PIN_003", "Too many failed PIN attempts, try again later", http.StatusLocked).
		WithDetail("locked_until", until.UTC().Format(time.RFC3339))
}

func ErrPINAlreadySet() *AppError {
	return New(KindState, "PIN_004", "Withdrawal PIN is already set", http.StatusConflict)
}

func ErrInvalidOTP() *AppError {
	return New(KindAuthentication, "OTP_001", "Invalid OTP", http.StatusUnauthorized)
}

func ErrOTPExpired() *AppError {
	return New(KindAuthentication, "OTP_002", "OTP has expired", http.StatusUnauthorized)
}

func ErrOTPAttemptsExceeded() *AppError {
	return New(KindRateLimit, "OTP_003", "Too many OTP attempts, try again later", http.StatusTooManyRequests)
}

// ---- KYC gate ----

func ErrKYCRequired() *AppError {
	return New(KindState, "KYC_REQUIRED", "Identity verification must be completed before withdrawing", http.StatusForbidden)
}

// ---- Soft locks (LOCK) ----

func ErrLockHeld(holder string) *AppError {
	return New(KindLock, "LOCK_001", "Resource is locked by another operator", http.StatusConflict).
		WithDetail("locked_by", holder)
}

func ErrLockRace() *AppError {
	return New(KindLock, "LOCK_002", "Lock acquisition raced, retry", http.StatusConflict)
}

func ErrLockNotOwned() *AppError {
	return New(KindLock, "LOCK_003", "Lock is not held by this operator", http.StatusConflict)
}

// ---- State machine (STATE) ----

// ErrInvalidState reports an operation that is not allowed for the current status.
func ErrInvalidState(entity string, status string) *AppError {
	return New(KindState, "STATE_001", fmt.Sprintf("%s is %s", entity, status), http.StatusConflict)
}

func ErrInsufficientFunds() *AppError {
	return New(KindState, "STATE_002", "Insufficient balance in wallet", http.StatusUnprocessableEntity)
}

func ErrNotFound(entity string) *AppError {
	return New(KindNotFound, "STATE_004", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- External provider (PROV) ----

func ErrExternalProvider(err error) *AppError {
	return Wrap(KindExternalProvider, "PROV_001", "Payout provider request failed", http.StatusBadGateway, err)
}

// ---- Data integrity (INTEG), recorded never returned to clients ----

func ErrLedgerDrift(deltaKobo int64) *AppError {
	return New(KindDataIntegrity, "INTEG_001", fmt.Sprintf("wallet differs from ledger by %d kobo", deltaKobo), http.StatusInternalServerError)
}

// ErrSubKoboLedger reports a ledger sum that cannot be expressed in whole kobo.
func ErrSubKoboLedger(sum string) *AppError {
	return New(KindDataIntegrity, "INTEG_002", fmt.Sprintf("ledger sum %s has sub-kobo precision", sum), http.StatusInternalServerError)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(KindRateLimit, "RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap(KindInternal, "SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap(KindInternal, "SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(KindInternal, "SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
