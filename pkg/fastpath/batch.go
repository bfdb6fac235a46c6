package fastpath

import (
	"sync"
	"time"

	"devtel/internal/model"
)

// Entry pairs a parsed event with the broker message ID it arrived under.
// The pair travels through the whole batch lifecycle so that timeout
// flushes can acknowledge exactly the right messages instead of re-deriving
// the association afterwards.
type Entry struct {
	MessageID string
	Event     *model.Event
}

// BatchAccumulator groups events by count/time threshold before a write.
// A batch is owned by exactly one consumer instance; operations are safe
// under concurrent calls from that consumer's goroutines.
type BatchAccumulator struct {
	batchSize    int
	batchTimeout time.Duration

	mu      sync.Mutex
	entries []Entry
	firstAt time.Time
}

// NewBatchAccumulator creates an accumulator bounded by count and elapsed time.
func NewBatchAccumulator(batchSize int, batchTimeout time.Duration) *BatchAccumulator {
	return &BatchAccumulator{
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		entries:      make([]Entry, 0, batchSize),
	}
}

// Add appends an entry and reports whether the batch just reached the size
// threshold and is ready to flush.
func (b *BatchAccumulator) Add(entry Entry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) == 0 {
		b.firstAt = time.Now()
	}
	b.entries = append(b.entries, entry)
	return len(b.entries) >= b.batchSize
}

// Drain returns the accumulated entries in arrival order and atomically
// clears the internal state.
func (b *BatchAccumulator) Drain() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.entries
	b.entries = make([]Entry, 0, b.batchSize)
	b.firstAt = time.Time{}
	return entries
}

// ShouldFlush reports whether the time since the first event in the current
// batch exceeds the batch timeout. Always false for an empty batch.
func (b *BatchAccumulator) ShouldFlush() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) == 0 {
		return false
	}
	return time.Since(b.firstAt) >= b.batchTimeout
}

// Size returns the current batch size.
func (b *BatchAccumulator) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// IsEmpty reports whether the batch is empty.
func (b *BatchAccumulator) IsEmpty() bool {
	return b.Size() == 0
}
