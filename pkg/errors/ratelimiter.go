package errors

import (
	"sync"
	"time"
)

// rateLimiter suppresses repeated reports from one call site within the silent window.
type rateLimiter struct {
	lock   sync.Mutex
	silent time.Duration
	now    func() time.Time
	buffer map[string]*errorStats
}

func newRateLimiter(silent time.Duration) *rateLimiter {
	return &rateLimiter{
		silent: silent,
		now:    time.Now,
		buffer: map[string]*errorStats{},
	}
}

type errorStats struct {
	totalOccurCount int
	// occurrences swallowed since the last report
	occurCountSinceLastReport int
	lastReportTime            *time.Time
}

func (in errorStats) snapshot() *errorStats {
	return &in
}

// StackBasedRateLimited reports whether an error from stack must be dropped, and
// the stats as they were before this occurrence.
func (b *rateLimiter) StackBasedRateLimited(stack string) (bool, *errorStats) {
	b.lock.Lock()
	defer b.lock.Unlock()
	stats, ok := b.buffer[stack]
	if !ok {
		stats = &errorStats{}
		b.buffer[stack] = stats
	}
	before := stats.snapshot()
	stats.totalOccurCount++

	now := b.now()
	if stats.lastReportTime != nil && now.Sub(*stats.lastReportTime) < b.silent {
		stats.occurCountSinceLastReport++
		return true, before
	}
	stats.occurCountSinceLastReport = 0
	stats.lastReportTime = &now
	return false, before
}
