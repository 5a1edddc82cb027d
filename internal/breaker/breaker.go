// Package breaker wraps calls to the warehouse and the inference service
// with a three-state circuit breaker. Consecutive failures trip the circuit;
// after a cooldown a single trial request probes whether the downstream has
// recovered.
package breaker

import (
	"context"
	"sync"
	"time"

	gwerrors "emissions-gateway/internal/common/errors"
	"emissions-gateway/internal/common/metrics"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker guards one named downstream. The mutex is never held across the
// wrapped call: Do acquires it once to decide admission and once afterwards
// to record the outcome.
type Breaker struct {
	name             string
	failureThreshold int
	cooldown         time.Duration

	mu           sync.Mutex
	state        State
	failures     int
	openedAt     time.Time
	trialPending bool

	now func() time.Time
}

func New(name string, failureThreshold int, cooldown time.Duration) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		state:            StateClosed,
		now:              time.Now,
	}
	b.publishState()
	return b
}

// Do runs fn if the circuit admits the request. While OPEN it fails fast
// with CIRCUIT_OPEN and a retry_after pointing at the end of the cooldown.
// In HALF_OPEN exactly one trial call is admitted; concurrent callers are
// rejected as if the circuit were still open.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		remaining := b.cooldown - b.now().Sub(b.openedAt)
		if remaining > 0 {
			return gwerrors.NewCircuitOpenError(remaining)
		}
		b.transition(StateHalfOpen)
		b.trialPending = true
		return nil
	case StateHalfOpen:
		if b.trialPending {
			return gwerrors.NewCircuitOpenError(0)
		}
		b.trialPending = true
		return nil
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if err != nil {
			b.failures++
			if b.failures >= b.failureThreshold {
				b.openedAt = b.now()
				b.transition(StateOpen)
			}
			return
		}
		b.failures = 0
	case StateHalfOpen:
		b.trialPending = false
		if err != nil {
			b.openedAt = b.now()
			b.transition(StateOpen)
			return
		}
		b.failures = 0
		b.transition(StateClosed)
	case StateOpen:
		// A call admitted before the trip finished after it; nothing to do.
	}
}

// transition assumes b.mu is held.
func (b *Breaker) transition(next State) {
	b.state = next
	b.publishState()
}

func (b *Breaker) publishState() {
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(b.state))
}

// State reports the current state, resolving an elapsed cooldown the same
// way admit would.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}
