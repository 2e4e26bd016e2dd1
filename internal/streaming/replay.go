package streaming

import (
	"sync"
	"time"

	"RangePull/internal/domain/models"
)

type replayEntry struct {
	at  time.Time
	bar *models.RangeBar
}

// ReplayBuffer retains recently emitted bars for late-joining consumers
// and diagnostics. Entries are evicted by wall-clock age, not count, so
// the buffer tracks a fixed time window of activity.
//
// Thread-safe for concurrent writes and reads.
type ReplayBuffer struct {
	mu      sync.RWMutex
	maxAge  time.Duration
	entries []replayEntry
	now     func() time.Time
}

// NewReplayBuffer creates a replay buffer holding bars for maxAge.
func NewReplayBuffer(maxAge time.Duration) *ReplayBuffer {
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	return &ReplayBuffer{maxAge: maxAge, now: time.Now}
}

// Push appends a bar and evicts anything past the age window.
func (rb *ReplayBuffer) Push(bar *models.RangeBar) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	now := rb.now()
	rb.entries = append(rb.entries, replayEntry{at: now, bar: bar})
	rb.evict(now)
}

// Recent returns up to limit of the newest retained bars, oldest first.
func (rb *ReplayBuffer) Recent(limit int) []*models.RangeBar {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.evict(rb.now())

	n := len(rb.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*models.RangeBar, 0, n)
	for _, e := range rb.entries[len(rb.entries)-n:] {
		out = append(out, e.bar)
	}
	return out
}

// Len returns the number of bars currently retained.
func (rb *ReplayBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.evict(rb.now())
	return len(rb.entries)
}

// evict drops entries older than the window. Caller holds the lock.
func (rb *ReplayBuffer) evict(now time.Time) {
	cutoff := now.Add(-rb.maxAge)
	i := 0
	for i < len(rb.entries) && rb.entries[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		rb.entries = append(rb.entries[:0], rb.entries[i:]...)
	}
}
