package api

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open: SoundCloud API is unavailable, backing off")

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

func (s circuitState) String() string {
	switch s {
	case circuitClosed:
		return "closed"
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// circuitBreaker opens after threshold consecutive API-level failures
// (HTTP 429 or 5xx) and lets a single trial request through once cooldown has passed.
type circuitBreaker struct {
	mu           sync.Mutex
	state        circuitState
	failures     int
	threshold    int
	cooldown     time.Duration
	openedAt     time.Time
	now          func() time.Time
	onTransition func(from, to circuitState)
}

func newCircuitBreaker(threshold int, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// allow reports the state a request runs under and whether it may run.
func (cb *circuitBreaker) allow() (circuitState, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == circuitOpen {
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return circuitOpen, false
		}
		cb.transition(circuitHalfOpen)
	}
	return cb.state, true
}

func (cb *circuitBreaker) success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.transition(circuitClosed)
}

func (cb *circuitBreaker) failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.state == circuitHalfOpen || cb.failures >= cb.threshold {
		cb.openedAt = cb.now()
		cb.transition(circuitOpen)
	}
}

// transition must be called with mu held.
func (cb *circuitBreaker) transition(to circuitState) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if cb.onTransition != nil {
		cb.onTransition(from, to)
	}
}

func (cb *circuitBreaker) current() circuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
