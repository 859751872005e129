package llm

import (
	"sync/atomic"
	"time"
)

// BreakerState is the circuit state guarding the primary backend.
type BreakerState int32

const (
	// BreakerClosed admits every call to primary.
	BreakerClosed BreakerState = iota
	// BreakerOpen routes every call straight to fallback until the cooldown
	// elapses. This replaces a plain sticky flag: the primary's timeout cost
	// is paid once, not per call, and recovery does not need an external reset.
	BreakerOpen
	// BreakerHalfOpen admits exactly one probe call to primary.
	BreakerHalfOpen
)

// Breaker is a process-wide circuit breaker shared by every consumer of the
// completion provider. State transitions use atomics only; no lock is held
// across a network call.
type Breaker struct {
	state    atomic.Int32
	openedAt atomic.Int64
	cooldown time.Duration
	now      func() time.Time
}

// NewBreaker returns a closed breaker with the given half-open cooldown.
func NewBreaker(cooldown time.Duration) *Breaker {
	return &Breaker{cooldown: cooldown, now: time.Now}
}

// State returns the current circuit state.
func (b *Breaker) State() BreakerState {
	return BreakerState(b.state.Load())
}

// Allow reports whether the caller may attempt the primary backend. When the
// breaker is open and the cooldown has elapsed, the first caller to observe it
// wins the half-open probe slot; concurrent callers keep using fallback.
func (b *Breaker) Allow() bool {
	switch BreakerState(b.state.Load()) {
	case BreakerClosed:
		return true
	case BreakerOpen:
		opened := time.Unix(0, b.openedAt.Load())
		if b.now().Sub(opened) < b.cooldown {
			return false
		}
		return b.state.CompareAndSwap(int32(BreakerOpen), int32(BreakerHalfOpen))
	default:
		return false
	}
}

// MarkSuccess closes the circuit after a successful primary call.
func (b *Breaker) MarkSuccess() {
	b.state.Store(int32(BreakerClosed))
}

// MarkFailure opens the circuit after a primary failure or timeout.
func (b *Breaker) MarkFailure() {
	b.openedAt.Store(b.now().UnixNano())
	b.state.Store(int32(BreakerOpen))
}

// ReleaseProbe returns an unfinished half-open probe slot to the open state,
// so a later call can win a fresh probe. The holder must call it when the
// probe ends without a verdict, such as caller cancellation mid-flight. No-op
// unless the circuit is half-open.
func (b *Breaker) ReleaseProbe() {
	b.state.CompareAndSwap(int32(BreakerHalfOpen), int32(BreakerOpen))
}
