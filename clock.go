package nt4

import (
	"sync"
	"time"
)

// clockState is the session's monotonic time base: a local anchor plus
// the server offset discovered via periodic RTT exchange. Both fields are
// guarded by a small mutex whose critical sections are arithmetic only.
type clockState struct {
	mu        sync.Mutex
	startTime time.Time
	offset    uint32
}

func newClockState() *clockState {
	return &clockState{startTime: time.Now()}
}

// clientTimeMicros is microseconds since the anchor, truncated to 32
// bits — the same wraparound a `as u32` cast on a u64 microsecond count
// produces in the source.
func (c *clockState) clientTimeMicros() uint32 {
	c.mu.Lock()
	anchor := c.startTime
	c.mu.Unlock()
	return uint32(uint64(time.Since(anchor) / time.Microsecond))
}

// serverTimeMicros is client time plus the current offset, both as
// wrapping 32-bit arithmetic.
func (c *clockState) serverTimeMicros() uint32 {
	c.mu.Lock()
	offset := c.offset
	c.mu.Unlock()
	return c.clientTimeMicros() + offset
}

func (c *clockState) reanchor() {
	c.mu.Lock()
	c.startTime = time.Now()
	c.mu.Unlock()
}

// checkedSubU32 mirrors Rust's `u32::checked_sub`: it fails (ok=false)
// rather than wrapping when the subtraction would underflow.
func checkedSubU32(a, b uint32) (uint32, bool) {
	if a < b {
		return 0, false
	}
	return a - b, true
}

// handleNewTimestamp folds one time-sync reply into the offset. serverTS
// is the server's reported time at send; echoedClientTS is this client's
// own time value the server echoed back unmodified.
//
// Every step is checked; any underflow (because startTime has drifted
// more than 2^32 microseconds into the past) fails the whole update
// rather than producing a nonsensical offset.
func (c *clockState) handleNewTimestamp(serverTS, echoedClientTS uint32) bool {
	receiveTime := c.clientTimeMicros()

	rtt, ok := checkedSubU32(receiveTime, echoedClientTS)
	if !ok {
		return false
	}
	serverAtReceive, ok := checkedSubU32(serverTS, rtt/2)
	if !ok {
		return false
	}
	offset, ok := checkedSubU32(serverAtReceive, receiveTime)
	if !ok {
		return false
	}

	c.mu.Lock()
	c.offset = offset
	c.mu.Unlock()
	return true
}

// idCounter is a pubuid/subuid allocator: it increments from the last
// value handed out and wraps from the 32-bit max back to 1, never 0 —
// 0 and negative values are reserved by the protocol.
type idCounter struct {
	mu   sync.Mutex
	next uint32
}

func newIDCounter() *idCounter {
	return &idCounter{next: 1}
}

func (c *idCounter) allocate() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.next
	if c.next == ^uint32(0) {
		c.next = 1
	} else {
		c.next++
	}
	return v
}
