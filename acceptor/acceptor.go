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

// Package acceptor implements the listening-socket layer of spec.md §4.7:
// a net.Listener driving a mutex-protected session vector, a periodic
// cleanup timer that evicts stopped sessions, and a callback fan-out that
// copies its callback set before invoking user code to avoid lock-order
// inversion between the acceptor and a session's own callbacks.
package acceptor

import (
	"net"
	"sync"
	"time"

	liberr "github.com/nabbar/nettransport/errors"
	liblog "github.com/nabbar/nettransport/logger"
	"github.com/nabbar/nettransport/session"
)

// DefaultCleanupInterval is the periodic stopped-session sweep interval
// of spec.md §4.7.
const DefaultCleanupInterval = 30 * time.Second

// FuncAccept fires once per newly accepted session, after it has been
// added to the acceptor's session vector and started.
type FuncAccept func(sess *session.Session)

// FuncAcceptError fires when Listener.Accept returns an error. The
// acceptor's run loop stops after reporting it.
type FuncAcceptError func(err error)

// Callbacks bundles the acceptor-level fan-out copied under the
// acceptor's lock before being invoked outside of it.
type Callbacks struct {
	OnAccept      FuncAccept
	OnAcceptError FuncAcceptError
	Session       session.Callbacks
}

// Acceptor owns a net.Listener and the set of sessions it spawned.
type Acceptor struct {
	ln  net.Listener
	log liblog.Logger

	cleanupInterval int
	softLimit       int
	hardLimit       int
	bufferSize      int

	mu       sync.Mutex
	sessions []*session.Session
	cb       Callbacks

	closeOnce sync.Once
	stopped   chan struct{}
	loopDone  chan struct{}
}

// Option configures an Acceptor at construction time.
type Option func(*Acceptor)

// WithInboxLimits overrides the per-session soft/hard inbox watermarks.
func WithInboxLimits(soft, hard int) Option {
	return func(a *Acceptor) {
		a.softLimit = soft
		a.hardLimit = hard
	}
}

// WithBufferSize overrides the per-session read buffer size.
func WithBufferSize(n int) Option {
	return func(a *Acceptor) {
		a.bufferSize = n
	}
}

// WithCleanupInterval overrides spec.md §4.7's 30s stopped-session sweep.
func WithCleanupInterval(d time.Duration) Option {
	return func(a *Acceptor) {
		a.cleanupInterval = int(d)
	}
}

// WithLogger attaches a logger forwarded to every spawned session.
func WithLogger(log liblog.Logger) Option {
	return func(a *Acceptor) {
		a.log = log
	}
}

// New wraps ln with an Acceptor. ln must not be nil.
func New(ln net.Listener, cb Callbacks, opts ...Option) (*Acceptor, error) {
	if ln == nil {
		return nil, liberr.New(uint16(ErrorParamsEmpty), getMessage(ErrorParamsEmpty))
	}

	a := &Acceptor{
		ln:              ln,
		cb:              cb,
		cleanupInterval: int(DefaultCleanupInterval),
		stopped:         make(chan struct{}),
		loopDone:        make(chan struct{}),
	}

	for _, o := range opts {
		o(a)
	}

	return a, nil
}

// Run drives the accept loop and the periodic cleanup timer until Stop is
// called or the listener returns an error.
func (a *Acceptor) Run() {
	go a.cleanupLoop()
	defer close(a.loopDone)

	for {
		conn, err := a.ln.Accept()
		if err != nil {
			select {
			case <-a.stopped:
				return
			default:
			}
			if a.cb.OnAcceptError != nil {
				a.cb.OnAcceptError(err)
			}
			return
		}

		sessCb := a.sessionCallbacks()
		sess, err := session.New(conn, sessCb, a.softLimit, a.hardLimit, a.log)
		if err != nil {
			if a.cb.OnAcceptError != nil {
				a.cb.OnAcceptError(err)
			}
			_ = conn.Close()
			continue
		}
		sess.Start(a.bufferSize)

		a.mu.Lock()
		a.sessions = append(a.sessions, sess)
		onAccept := a.cb.OnAccept
		a.mu.Unlock()

		if onAccept != nil {
			onAccept(sess)
		}
	}
}

// sessionCallbacks copies the acceptor's configured session callbacks
// under the lock, per spec.md §4.7's lock-order-inversion avoidance:
// user callbacks never run while the acceptor's mutex is held.
func (a *Acceptor) sessionCallbacks() session.Callbacks {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cb.Session
}

// cleanupLoop evicts stopped sessions from the vector every
// cleanupInterval, per spec.md §4.7.
func (a *Acceptor) cleanupLoop() {
	interval := time.Duration(a.cleanupInterval)
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-a.stopped:
			return
		case <-t.C:
			a.sweep()
		}
	}
}

func (a *Acceptor) sweep() {
	a.mu.Lock()
	defer a.mu.Unlock()

	live := a.sessions[:0]
	for _, s := range a.sessions {
		select {
		case <-s.Done():
			continue
		default:
			live = append(live, s)
		}
	}
	a.sessions = live
}

// Sessions returns a snapshot of the currently tracked sessions.
func (a *Acceptor) Sessions() []*session.Session {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*session.Session, len(a.sessions))
	copy(out, a.sessions)
	return out
}

// Stop closes the listener, stops every tracked session, and waits for
// the accept loop to return. It is idempotent.
func (a *Acceptor) Stop() {
	a.closeOnce.Do(func() {
		close(a.stopped)
		_ = a.ln.Close()
		<-a.loopDone

		a.mu.Lock()
		sessions := a.sessions
		a.sessions = nil
		a.mu.Unlock()

		for _, s := range sessions {
			s.Stop()
		}
	})
}
