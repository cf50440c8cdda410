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

// Package pool implements the connection pool of spec.md §4.8: a bounded
// set of clients opened synchronously at Initialize, handed out by
// Acquire and returned by Release, with reconnect-on-release and a
// shutdown drain.
package pool

import (
	"errors"
	"sync"

	liberr "github.com/nabbar/nettransport/errors"
)

// Client is the resource type a Pool manages.
type Client interface {
	IsConnected() bool
	Reconnect() error
	Close() error
}

// Factory builds the i-th client during Initialize.
type Factory func(index int) (Client, error)

// Pool is the bounded blocking connection pool of spec.md §4.8.
type Pool[T Client] struct {
	mu   sync.Mutex
	cond *sync.Cond

	available []T
	active    int
	size      int

	shutdown bool
}

// New builds an empty Pool; call Initialize to populate it.
func New[T Client]() *Pool[T] {
	p := &Pool[T]{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Initialize synchronously opens n clients via factory. A failure aborts
// initialization and reports the 0-based index of the failed client, per
// spec.md §4.8.
func (p *Pool[T]) Initialize(n int, factory func(index int) (T, error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < n; i++ {
		c, err := factory(i)
		if err != nil {
			return liberr.New(uint16(ErrorInitFailed), getMessage(ErrorInitFailed), &indexError{index: i, cause: err})
		}
		p.available = append(p.available, c)
		p.active++
		p.size++
	}

	return nil
}

// indexError records the 0-based index of the client Initialize failed
// to open, per spec.md §4.8's "reports the index of the failed connection".
type indexError struct {
	index int
	cause error
}

func (e *indexError) Error() string {
	return e.cause.Error()
}

func (e *indexError) Unwrap() error {
	return e.cause
}

// FailedIndex extracts the index recorded by Initialize's failure, or -1
// if err did not originate from Initialize.
func FailedIndex(err error) int {
	var ie *indexError
	if errors.As(err, &ie) {
		return ie.index
	}
	return -1
}

// Acquire blocks until a client is available or Shutdown is called, in
// which case it returns the zero value and ok=false, per spec.md §4.8.
func (p *Pool[T]) Acquire() (c T, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.available) == 0 && !p.shutdown {
		p.cond.Wait()
	}

	if p.shutdown {
		var zero T
		return zero, false
	}

	c = p.available[len(p.available)-1]
	p.available = p.available[:len(p.available)-1]
	return c, true
}

// Release returns c to the pool. If c reports itself disconnected,
// Release attempts one reconnect; on failure the client is dropped
// (active count decremented, not re-enqueued), per spec.md §4.8.
func (p *Pool[T]) Release(c T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !c.IsConnected() {
		if err := c.Reconnect(); err != nil {
			p.active--
			p.cond.Signal()
			return
		}
	}

	p.available = append(p.available, c)
	p.cond.Signal()
}

// Shutdown marks the pool as shutting down, wakes every blocked Acquire,
// and closes every currently-available client.
func (p *Pool[T]) Shutdown() {
	p.mu.Lock()
	p.shutdown = true
	items := p.available
	p.available = nil
	p.mu.Unlock()

	p.cond.Broadcast()

	for _, c := range items {
		_ = c.Close()
	}
}

// Active returns the number of clients currently tracked as connected
// (opened minus dropped-on-reconnect-failure).
func (p *Pool[T]) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Size returns the number of clients Initialize opened.
func (p *Pool[T]) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}
