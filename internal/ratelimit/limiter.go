// Package ratelimit admits or rejects requests per client over a sliding
// time window. Each client keeps the timestamps of its admitted requests;
// timestamps older than the window are pruned on every check.
package ratelimit

import (
	"sync"
	"time"

	gwerrors "emissions-gateway/internal/common/errors"
	"emissions-gateway/internal/common/metrics"
)

// Limiter tracks admitted request timestamps per client identifier.
type Limiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	clients     map[string][]time.Time

	now func() time.Time
}

func New(maxRequests int, window time.Duration) *Limiter {
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		clients:     make(map[string][]time.Time),
		now:         time.Now,
	}
}

// Allow records and admits the request when the client is under its budget.
// When the budget is exhausted it returns a RATE_LIMIT_EXCEEDED error whose
// retry_after says when the oldest in-window timestamp falls out of the
// window. Denied requests are not recorded and never extend the penalty.
func (l *Limiter) Allow(clientID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	l.sweepLocked(cutoff)

	stamps := l.prune(l.clients[clientID], cutoff)

	if len(stamps) >= l.maxRequests {
		l.clients[clientID] = stamps
		metrics.RateLimited.Inc()
		retryAfter := stamps[0].Add(l.window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return gwerrors.NewRateLimitExceededError(retryAfter)
	}

	l.clients[clientID] = append(stamps, now)
	return nil
}

// prune drops timestamps at or before the cutoff. Stamps are appended in
// order, so the slice stays sorted and a prefix scan suffices.
func (l *Limiter) prune(stamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(stamps) && !stamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return stamps
	}
	return append(stamps[:0:0], stamps[idx:]...)
}

// sweepLocked drops a handful of clients whose windows have fully expired,
// so the client map does not grow with every session ID the process ever
// saw. Map iteration order varies per call, which spreads the sweep across
// the whole map over time.
func (l *Limiter) sweepLocked(cutoff time.Time) {
	checked := 0
	for id, stamps := range l.clients {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(l.clients, id)
		}
		checked++
		if checked >= 4 {
			return
		}
	}
}

// Reset drops all recorded state for a client.
func (l *Limiter) Reset(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, clientID)
}
