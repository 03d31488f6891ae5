package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionLockAcquired     AuditAction = "LOCK_ACQUIRED"
	AuditActionLockDenied       AuditAction = "LOCK_DENIED"
	AuditActionLockReleased     AuditAction = "LOCK_RELEASED"
	AuditActionKYCSubmitted     AuditAction = "KYC_SUBMITTED"
	AuditActionKYCApproved      AuditAction = "KYC_APPROVED"
	AuditActionKYCRejected      AuditAction = "KYC_REJECTED"
	AuditActionStuckOperation   AuditAction = "STUCK_OPERATION"
	AuditActionWithdrawResolved AuditAction = "WITHDRAWAL_RESOLVED"
	AuditActionExportRegenerate AuditAction = "EXPORT_REGENERATED"
	AuditActionExportExpire     AuditAction = "EXPORT_EXPIRED"
	AuditActionRegister         AuditAction = "REGISTER"
	AuditActionLogin            AuditAction = "LOGIN"
	AuditActionHTTPMutation     AuditAction = "HTTP_MUTATION"
)

// AuditEntry is one append-only audit record. Before and After are JSON snapshots.
type AuditEntry struct {
	ID            uuid.UUID       `json:"id"`
	Actor         string          `json:"actor"`
	Action        AuditAction     `json:"action"`
	Entity        string          `json:"entity"`
	EntityID      string          `json:"entity_id,omitempty"`
	Before        json.RawMessage `json:"before,omitempty"`
	After         json.RawMessage `json:"after,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Snapshot marshals v for Before/After. Marshal failures yield nil.
func Snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
