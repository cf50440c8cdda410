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

// Package resilient implements the resilient client of spec.md §4.10: a
// messaging client wrapped with exponential backoff (cenkalti/backoff/v4)
// and gated by a breaker.Breaker.
package resilient

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nabbar/nettransport/breaker"
	liberr "github.com/nabbar/nettransport/errors"
)

// DefaultMaxRetries, DefaultBaseBackoff and DefaultMaxBackoff are
// spec.md §4.10's base × 2^(attempt−1), capped at 30s schedule.
const (
	DefaultMaxRetries = 5
	DefaultBaseBackoff = 250 * time.Millisecond
	DefaultMaxBackoff  = 30 * time.Second
)

// Sender is the messaging client resilient.Client wraps.
type Sender interface {
	Send(data []byte) error
	Connected() bool
	Reconnect() error
}

// FuncReconnect is invoked on every reconnect attempt with its 1-based
// index, per spec.md §4.10's "fires the reconnect callback with its
// 1-based attempt index".
type FuncReconnect func(attempt int)

// Config carries resilient.Client's tunables; zero values fall back to
// the spec.md §4.10 defaults.
type Config struct {
	MaxRetries    int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	Breaker       *breaker.Breaker
	OnReconnect   FuncReconnect
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = DefaultBaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.Breaker == nil {
		c.Breaker = breaker.New(breaker.Config{})
	}
	return c
}

// Client wraps a Sender with the breaker-gated send-with-retry policy of
// spec.md §4.10.
type Client struct {
	cfg    Config
	sender Sender
}

// New builds a Client wrapping sender with cfg.
func New(sender Sender, cfg Config) *Client {
	return &Client{sender: sender, cfg: cfg.withDefaults()}
}

// backoffSchedule builds the base×2^(attempt-1) capped exponential
// schedule spec.md §4.10 specifies, expressed via cenkalti/backoff/v4's
// ExponentialBackOff so the retry loop below only has to call
// NextBackOff().
func (c *Client) backoffSchedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.BaseBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // the attempt count, not elapsed time, bounds retry
	b.Reset()
	return b
}

// SendWithRetry implements spec.md §4.10's send_with_retry(data):
//  1. consult the breaker; if not allowed, fail fast with "circuit open".
//  2. if not connected, attempt reconnect (itself retried).
//  3. attempt send; record success/failure to the breaker.
//  4. on failure, back off and retry until MaxRetries is exhausted.
func (c *Client) SendWithRetry(data []byte) error {
	if !c.cfg.Breaker.AllowCall() {
		return liberr.New(uint16(ErrorCircuitOpen), getMessage(ErrorCircuitOpen))
	}

	bo := c.backoffSchedule()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if !c.sender.Connected() {
			if err := c.reconnectWithRetry(); err != nil {
				lastErr = err
				continue
			}
		}

		if err := c.sender.Send(data); err != nil {
			c.cfg.Breaker.RecordFailure()
			lastErr = err

			time.Sleep(bo.NextBackOff())
			continue
		}

		c.cfg.Breaker.RecordSuccess()
		return nil
	}

	return liberr.New(uint16(ErrorRetriesExhausted), getMessage(ErrorRetriesExhausted), lastErr)
}

// reconnectWithRetry retries Sender.Reconnect using the same exponential
// backoff schedule, firing OnReconnect with the 1-based attempt index.
func (c *Client) reconnectWithRetry() error {
	bo := c.backoffSchedule()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if c.cfg.OnReconnect != nil {
			c.cfg.OnReconnect(attempt)
		}

		if err := c.sender.Reconnect(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		time.Sleep(bo.NextBackOff())
	}

	return liberr.New(uint16(ErrorReconnectFailed), getMessage(ErrorReconnectFailed), lastErr)
}
