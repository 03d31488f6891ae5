package domain

import (
	"time"

	"github.com/google/uuid"
)

// LockKind names a resource type that carries soft lock columns.
type LockKind string

const (
	LockKindWithdrawal LockKind = "withdrawal"
	LockKindExportJob  LockKind = "export_job"
)

// LockKinds lists every lockable resource, in sweep order.
var LockKinds = []LockKind{LockKindWithdrawal, LockKindExportJob}

// Valid reports whether k is a known lock kind.
func (k LockKind) Valid() bool {
	for _, known := range LockKinds {
		if k == known {
			return true
		}
	}
	return false
}

// LockHolder is the current (locked_at, locked_by) pair of a resource row.
type LockHolder struct {
	Kind     LockKind   `json:"kind"`
	ID       uuid.UUID  `json:"id"`
	LockedAt *time.Time `json:"locked_at,omitempty"`
	LockedBy *string    `json:"locked_by,omitempty"`
}

// HeldByOther reports a live lock owned by someone other than actor.
func (h *LockHolder) HeldByOther(actor string, now time.Time, timeout time.Duration) bool {
	if h.LockedAt == nil || h.LockedBy == nil {
		return false
	}
	return *h.LockedBy != actor && !IsLockStale(*h.LockedAt, now, timeout)
}

// HeldBy reports a live lock owned by actor.
func (h *LockHolder) HeldBy(actor string, now time.Time, timeout time.Duration) bool {
	if h.LockedAt == nil || h.LockedBy == nil {
		return false
	}
	return *h.LockedBy == actor && !IsLockStale(*h.LockedAt, now, timeout)
}

// IsLockStale reports whether a lock taken at lockedAt has outlived timeout.
func IsLockStale(lockedAt, now time.Time, timeout time.Duration) bool {
	return now.Sub(lockedAt) > timeout
}
