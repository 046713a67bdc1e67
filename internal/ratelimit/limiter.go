package ratelimit

import (
	"sync"
	"time"

	"github.com/akozma/mailcore/internal/models"
)

const (
	// DefaultHourlyLimit and DefaultDailyLimit are the per-client send
	// ceilings. Process-scoped: the ledger starts empty on restart.
	DefaultHourlyLimit = 500
	DefaultDailyLimit  = 2000
)

// Limiter tracks per-client send timestamps in a sliding 24-hour window.
// Advisory only: Check is a snapshot, and a batch run in flight is not
// re-checked, so concurrent runs for one client can overshoot slightly.
type Limiter struct {
	mu          sync.Mutex
	events      map[string][]time.Time
	hourlyLimit int
	dailyLimit  int
	now         func() time.Time
}

// NewLimiter creates a Limiter with the default limits.
func NewLimiter() *Limiter {
	return NewLimiterWithLimits(DefaultHourlyLimit, DefaultDailyLimit)
}

// NewLimiterWithLimits creates a Limiter with custom ceilings.
func NewLimiterWithLimits(hourlyLimit, dailyLimit int) *Limiter {
	return &Limiter{
		events:      make(map[string][]time.Time),
		hourlyLimit: hourlyLimit,
		dailyLimit:  dailyLimit,
		now:         time.Now,
	}
}

// Check returns the client's current window counts. Pruning happens here:
// entries older than 24 hours are dropped before counting.
func (l *Limiter) Check(clientID string) models.RateLimitStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	events := l.prune(clientID, now)

	hourAgo := now.Add(-time.Hour)
	hourly := 0
	for _, t := range events {
		if t.After(hourAgo) {
			hourly++
		}
	}
	daily := len(events)

	return models.RateLimitStatus{
		Hourly:          hourly,
		Daily:           daily,
		HourlyLimit:     l.hourlyLimit,
		DailyLimit:      l.dailyLimit,
		RemainingHourly: max(l.hourlyLimit-hourly, 0),
		RemainingDaily:  max(l.dailyLimit-daily, 0),
		CanSend:         hourly < l.hourlyLimit && daily < l.dailyLimit,
	}
}

// Record appends count send events for the client at the current time.
func (l *Limiter) Record(clientID string, count int) {
	if count <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	events := l.prune(clientID, now)
	for i := 0; i < count; i++ {
		events = append(events, now)
	}
	l.events[clientID] = events
}

// prune drops entries outside the 24-hour window. Caller holds the lock.
func (l *Limiter) prune(clientID string, now time.Time) []time.Time {
	dayAgo := now.Add(-24 * time.Hour)

	events := l.events[clientID]
	kept := events[:0]
	for _, t := range events {
		if t.After(dayAgo) {
			kept = append(kept, t)
		}
	}
	l.events[clientID] = kept
	return kept
}
