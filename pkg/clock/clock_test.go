package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReal_IsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Real{}.Now().Location())
}

func TestManual_AdvanceAndSet(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewManual(start)

	c.Advance(31 * time.Second)
	assert.Equal(t, start.Add(31*time.Second), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}
