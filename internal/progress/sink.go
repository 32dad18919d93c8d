package progress

import "sync"

// Sink receives byte-level progress for a single transfer.
type Sink interface {
	// TotalKnown is called at most once per attempt, when the transfer size
	// becomes known.
	TotalKnown(total int64)
	// Advance reports n more bytes transferred.
	Advance(n int64)
	// Reset discards the progress of a failed attempt before a retry.
	Reset()
	// Close marks the transfer as finished, successfully or not.
	Close()
}

// NoopSink discards all progress events.
type NoopSink struct{}

func (NoopSink) TotalKnown(int64) {}
func (NoopSink) Advance(int64)    {}
func (NoopSink) Reset()           {}
func (NoopSink) Close()           {}

// Gate serializes every write to the shared terminal. One Gate is created per
// run and handed to each task explicitly.
type Gate struct {
	mu sync.Mutex
}

// NewGate returns an unlocked Gate.
func NewGate() *Gate {
	return &Gate{}
}

// Do runs fn while holding the gate. The gate is released even if fn panics.
func (g *Gate) Do(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn()
}
