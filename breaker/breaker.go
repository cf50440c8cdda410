/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package breaker implements the circuit breaker of spec.md §4.9: a
// closed/open/half-open state machine guarding calls to an unreliable
// downstream, hand-rolled rather than wrapping sony/gobreaker so its
// transition rules match spec.md exactly (see DESIGN.md).
package breaker

import (
	"sync"
	"time"
)

// State is one of the three circuit-breaker states.
type State uint8

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

const (
	DefaultFailureThreshold   = 5
	DefaultOpenDuration       = 30 * time.Second
	DefaultHalfOpenSuccesses  = 2
	DefaultHalfOpenMaxCalls   = 3
)

// FuncStateChange is invoked exactly once per transition with (old, new).
type FuncStateChange func(old, new State)

// Config carries the breaker's tunables; zero values fall back to the
// spec.md §4.9 defaults.
type Config struct {
	FailureThreshold  int
	OpenDuration      time.Duration
	HalfOpenSuccesses int
	HalfOpenMaxCalls  int
	OnStateChange     FuncStateChange
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.OpenDuration <= 0 {
		c.OpenDuration = DefaultOpenDuration
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = DefaultHalfOpenMaxCalls
	}
	return c
}

// Breaker is a closed/open/half-open circuit breaker guarding calls to an
// unreliable resource, per spec.md §4.9.
type Breaker struct {
	cfg Config

	mu              sync.Mutex
	state           State
	failureCount    int
	halfOpenSuccess int
	halfOpenInFlight int
	openedAt        time.Time
}

// New builds a Breaker with cfg, applying spec.md §4.9 defaults for any
// zero-valued field.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), state: StateClosed}
}

// AllowCall reports whether a call may proceed right now, transitioning
// open→half-open when the open_duration has elapsed (spec.md §4.9).
func (b *Breaker) AllowCall() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Now().Before(b.openedAt.Add(b.cfg.OpenDuration)) {
			return false
		}
		// The open_duration has elapsed: transition to half-open and
		// admit this caller as the first probe. Holding mu for the whole
		// check-then-transition prevents a second caller from also
		// observing StateOpen and firing a duplicate transition.
		b.transition(StateHalfOpen)
		b.halfOpenInFlight = 1
		return true
	case StateHalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			return false
		}
		b.halfOpenInFlight++
		return true
	default:
		return false
	}
}

// RecordSuccess reports a successful call. In closed state it resets the
// failure counter; in half-open it counts toward HalfOpenSuccesses and
// transitions to closed once reached.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.halfOpenSuccess++
		if b.halfOpenSuccess >= b.cfg.HalfOpenSuccesses {
			b.transition(StateClosed)
			b.failureCount = 0
			b.halfOpenSuccess = 0
			b.halfOpenInFlight = 0
		}
	}
}

// RecordFailure reports a failed call. In closed state it increments the
// failure counter, opening the breaker at FailureThreshold; in half-open
// any failure reopens it immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
			b.openedAt = time.Now()
		}
	case StateHalfOpen:
		b.transition(StateOpen)
		b.openedAt = time.Now()
		b.halfOpenSuccess = 0
		b.halfOpenInFlight = 0
	}
}

// transition must be called with mu held. It fires OnStateChange exactly
// once with (old, new), per spec.md §4.9.
func (b *Breaker) transition(to State) {
	old := b.state
	if old == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(old, to)
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount exposes the closed-state failure counter for introspection
// (supplemented from the original implementation's failure_count accessor).
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// NextAttemptTime returns when the breaker will next allow a probe call
// while open, or the zero time if it is not open (supplemented from the
// original's next_attempt_time accessor).
func (b *Breaker) NextAttemptTime() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return time.Time{}
	}
	return b.openedAt.Add(b.cfg.OpenDuration)
}
