// Package circuit implements a per-host circuit breaker used to stop the
// dispatcher from repeatedly hammering a docker host that is not
// responding. A breaker has three states, closed, open and half-open, and
// transitions between them based on consecutive connection-level
// failures.
package circuit

import (
	"sync"
	"time"
)

// State is one of the three breaker states.
type State int

const (
	// Closed is the normal state: calls are allowed through.
	Closed State = iota
	// Open rejects calls until ResetTimeout has elapsed since the
	// breaker tripped.
	Open
	// HalfOpen lets calls through; the next recorded success returns the
	// breaker to Closed and the next recorded failure sends it back to
	// Open.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalJSON renders a State as its string name rather than its
// underlying int, so fleet snapshots read naturally as JSON.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Config controls when a breaker trips and how long it stays open.
type Config struct {
	// MaxFailures is the number of consecutive failures that trips the
	// breaker from Closed to Open.
	MaxFailures int
	// ResetTimeout is how long the breaker stays Open before Allow moves
	// it to HalfOpen and lets calls through again.
	ResetTimeout time.Duration
}

// DefaultConfig matches spec.md's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxFailures:  5,
		ResetTimeout: 60 * time.Second,
	}
}

// Breaker tracks the health of a single docker host.
type Breaker struct {
	cfg Config

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
}

// New creates a breaker in the Closed state.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: Closed}
}

// Allow reports whether a call against the guarded host may proceed. It
// performs the Open -> HalfOpen transition as a side effect once
// ResetTimeout has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		return true
	case Open:
		if time.Since(b.openedAt) >= b.cfg.ResetTimeout {
			b.state = HalfOpen
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess reports a successful call. In HalfOpen this closes the
// breaker and resets the failure count; in Closed it resets the failure
// count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFail = 0
	b.state = Closed
}

// RecordFailure reports a connection-level failure. A failure seen while
// HalfOpen immediately reopens the breaker; a failure seen while Closed
// trips the breaker once MaxFailures consecutive failures have
// accumulated.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.consecutiveFail++
		if b.consecutiveFail >= b.cfg.MaxFailures {
			b.trip()
		}
	case Open:
		// Already open; nothing to do beyond keeping it open.
	}
}

func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = time.Now()
}

// State returns the breaker's current state without mutating it (it does
// not perform the Open -> HalfOpen timeout transition; use Allow for
// that).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to Closed, clearing any accumulated
// failures. Used by operator-facing reset tooling.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.consecutiveFail = 0
}

// Open forces the breaker into the Open state, as if MaxFailures had
// just been reached. Exposed for operators and tests that need to
// simulate a tripped host without feeding it real failures (spec.md
// §4.2's "explicit open()/half-open()/close() transitions").
func (b *Breaker) Open() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trip()
}

// HalfOpen forces the breaker into the HalfOpen state, as if
// ResetTimeout had just elapsed on an Open breaker.
func (b *Breaker) HalfOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = HalfOpen
}

// Close forces the breaker into the Closed state, clearing the
// consecutive-failure count. Equivalent to Reset; kept as a
// same-named counterpart to Open/HalfOpen for operator tooling.
func (b *Breaker) Close() {
	b.Reset()
}
