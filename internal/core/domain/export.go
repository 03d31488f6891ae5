package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ExportJobStatus is the state of a ledger export.
type ExportJobStatus string

const (
	ExportJobStatusPending ExportJobStatus = "PENDING"
	ExportJobStatusReady   ExportJobStatus = "READY"
	ExportJobStatusExpired ExportJobStatus = "EXPIRED"
	ExportJobStatusFailed  ExportJobStatus = "FAILED"
)

// ExportJob is a generated CSV of a store's ledger. It carries the same
// soft lock columns as Withdrawal.
type ExportJob struct {
	ID          uuid.UUID       `json:"id"`
	StoreID     uuid.UUID       `json:"store_id"`
	RequestedBy string          `json:"requested_by"`
	Status      ExportJobStatus `json:"status"`
	RowCount    int             `json:"row_count"`
	Content     []byte          `json:"-"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	LockedAt    *time.Time      `json:"locked_at,omitempty"`
	LockedBy    *string         `json:"locked_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Downloadable reports whether the file may be served at now.
func (e *ExportJob) Downloadable(now time.Time) bool {
	return e.Status == ExportJobStatusReady && e.ExpiresAt != nil && now.Before(*e.ExpiresAt)
}

// Filename is the attachment name for a download.
func (e *ExportJob) Filename() string {
	return "ledger-" + e.StoreID.String() + "-" + strconv.FormatInt(e.CreatedAt.Unix(), 10) + ".csv"
}
