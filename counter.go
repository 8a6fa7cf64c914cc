package reveal

import (
	"strconv"
	"sync/atomic"
)

// Counter is the externally persisted reveal count. Increment is called once
// per completed expansion, on the interaction loop.
type Counter interface {
	Increment() int64
	Value() int64
}

// MemoryCounter is a Counter kept in memory. The zero value starts at 0.
type MemoryCounter struct {
	n atomic.Int64
}

// NewMemoryCounter returns a counter starting at start, e.g. a value loaded
// from external storage.
func NewMemoryCounter(start int64) *MemoryCounter {
	c := &MemoryCounter{}
	c.n.Store(start)
	return c
}

// Increment adds one and returns the new value.
func (c *MemoryCounter) Increment() int64 { return c.n.Add(1) }

// Value returns the current value.
func (c *MemoryCounter) Value() int64 { return c.n.Load() }

// FormatCount renders a count for display: plain below 1,000, then with a
// "k" or "M" suffix and one decimal place, dropped when the value is exact.
// The decimal is truncated, never rounded up, so 999,999 is "999.9k".
//
//	0 -> "0", 1500 -> "1.5k", 2000 -> "2k", 2500000 -> "2.5M"
func FormatCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return scaled(n, 1_000_000) + "M"
	case n >= 1_000:
		return scaled(n, 1_000) + "k"
	default:
		return strconv.FormatInt(n, 10)
	}
}

// scaled formats n/unit with at most one truncated decimal.
func scaled(n, unit int64) string {
	tenths := n / (unit / 10)
	whole, frac := tenths/10, tenths%10
	if frac == 0 {
		return strconv.FormatInt(whole, 10)
	}
	return strconv.FormatInt(whole, 10) + "." + strconv.FormatInt(frac, 10)
}
