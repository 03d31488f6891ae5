package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReconciliationIncident records a wallet/ledger mismatch. Written once, never updated.
type ReconciliationIncident struct {
	ID         uuid.UUID `json:"id"`
	RunID      uuid.UUID `json:"run_id"`
	StoreID    uuid.UUID `json:"store_id"`
	WalletKobo int64     `json:"wallet_kobo"`
	LedgerKobo int64     `json:"ledger_kobo"`
	DeltaKobo  int64     `json:"delta_kobo"`
	Note       string    `json:"note,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
}

// ReconciliationResult summarizes one run.
type ReconciliationResult struct {
	RunID          uuid.UUID                `json:"run_id"`
	StartedAt      time.Time                `json:"started_at"`
	FinishedAt     time.Time                `json:"finished_at"`
	StoresChecked  int                      `json:"stores_checked"`
	StoresFailed   int                      `json:"stores_failed"`
	Discrepancies  int                      `json:"discrepancies"`
	TotalDeltaKobo int64                    `json:"total_delta_kobo"`
	Incidents      []ReconciliationIncident `json:"incidents"`
}

// StuckFindings is the output of one stuck-operation detection pass.
type StuckFindings struct {
	StuckWithdrawals []Withdrawal `json:"stuck_withdrawals"`
	AgingWithdrawals []Withdrawal `json:"aging_withdrawals"`
	StuckExports     []ExportJob  `json:"stuck_exports"`
	DetectedAt       time.Time    `json:"detected_at"`
}

// Empty reports whether nothing was found.
func (f *StuckFindings) Empty() bool {
	return len(f.StuckWithdrawals) == 0 && len(f.AgingWithdrawals) == 0 && len(f.StuckExports) == 0
}

// Total counts all findings.
func (f *StuckFindings) Total() int {
	return len(f.StuckWithdrawals) + len(f.AgingWithdrawals) + len(f.StuckExports)
}
