package sync

import "sync"

// Cursor is the monotonic watermark below which every message is
// considered consumed. It only ever moves forward: Advance takes the max
// of the current value and all candidates, so a late response from a
// superseded poll can never move it backwards.
type Cursor struct {
	mu    sync.Mutex
	value int64
}

// NewCursor creates a cursor starting at zero.
func NewCursor() *Cursor {
	return &Cursor{}
}

// Value returns the current watermark in milliseconds.
func (c *Cursor) Value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Advance raises the watermark to the maximum of its current value and
// the given candidates, and returns the resulting value. Candidates that
// would lower the watermark are ignored.
func (c *Cursor) Advance(candidates ...int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range candidates {
		if v > c.value {
			c.value = v
		}
	}
	return c.value
}
