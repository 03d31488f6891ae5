package metrics

import (
	"sync"

	"merchant-wallet-ledger/internal/core/ports"
)

// SlowPathBuffer is a fixed-capacity ring of slow requests. When full the
// oldest entry is overwritten.
type SlowPathBuffer struct {
	mu    sync.Mutex
	items []ports.SlowPath
	next  int
	full  bool
}

// NewSlowPathBuffer creates a buffer holding at most capacity entries.
func NewSlowPathBuffer(capacity int) *SlowPathBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &SlowPathBuffer{items: make([]ports.SlowPath, capacity)}
}

func (b *SlowPathBuffer) Record(p ports.SlowPath) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.next] = p
	b.next = (b.next + 1) % len(b.items)
	if b.next == 0 {
		b.full = true
	}
}

// Snapshot returns a copy, oldest first.
func (b *SlowPathBuffer) Snapshot() []ports.SlowPath {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full {
		out := make([]ports.SlowPath, b.next)
		copy(out, b.items[:b.next])
		return out
	}
	out := make([]ports.SlowPath, 0, len(b.items))
	out = append(out, b.items[b.next:]...)
	out = append(out, b.items[:b.next]...)
	return out
}

// Len returns the number of buffered entries.
func (b *SlowPathBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return len(b.items)
	}
	return b.next
}
