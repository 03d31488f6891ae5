package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// IDType is the kind of government identifier submitted for KYC.
type IDType string

const (
	IDTypeBVN IDType = "BVN"
	IDTypeNIN IDType = "NIN"
)

// KYCDecision is an operator review outcome.
type KYCDecision string

const (
	KYCDecisionApprove KYCDecision = "APPROVE"
	KYCDecisionReject  KYCDecision = "REJECT"
)

// KycRecord is one identity submission. Only the masked identifier leaves the store.
type KycRecord struct {
	ID                uuid.UUID  `json:"id"`
	StoreID           uuid.UUID  `json:"store_id"`
	IDType            IDType     `json:"id_type"`
	IDNumberEncrypted string     `json:"-"`
	IDNumberMasked    string     `json:"id_number_masked"`
	FullName          string     `json:"full_name"`
	Status            KYCStatus  `json:"status"`
	ReviewedBy        *string    `json:"reviewed_by,omitempty"`
	RejectionReason   *string    `json:"rejection_reason,omitempty"`
	SubmittedAt       time.Time  `json:"submitted_at"`
	ReviewedAt        *time.Time `json:"reviewed_at,omitempty"`
}

// CanSubmitKYC reports whether a store in status s may submit (or resubmit).
func CanSubmitKYC(s KYCStatus) bool {
	return s == KYCStatusNotStarted || s == KYCStatusRejected
}

// MaskIdentifier keeps the last four characters and stars the rest.
func MaskIdentifier(v string) string {
	if len(v) <= 4 {
		return strings.Repeat("*", len(v))
	}
	return strings.Repeat("*", len(v)-4) + v[len(v)-4:]
}
