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

// Package session implements the session layer of spec.md §4.6: each
// session owns a protected socket and a bounded inbox with soft/hard
// watermarks; Stop covers the per-session steps of the stop sequence
// (stop reading, close the socket).
package session

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	liberr "github.com/nabbar/nettransport/errors"
	liblog "github.com/nabbar/nettransport/logger"
)

// DefaultSoftLimit and DefaultHardLimit are the inbox watermarks of
// spec.md §4.6 (soft: log and continue; hard: 2x soft, disconnect).
const (
	DefaultSoftLimit = 1000
	DefaultHardLimit = 2 * DefaultSoftLimit
)

// Socket is the minimal protected-socket surface a Session drives; it is
// satisfied by every socket.Handle implementation (tlssock, dtlssock)
// without this package importing socket and its transport-specific
// dependencies. quicsock.Connection does not satisfy it.
type Socket interface {
	io.ReadWriteCloser
}

// FuncReceive delivers one dequeued payload, running under the session's
// callback mutex so at most one receive callback runs concurrently.
type FuncReceive func(sess *Session, payload []byte)

// FuncDisconnect fires once the session's socket has been closed.
type FuncDisconnect func(sess *Session)

// FuncError fires on any socket or inbox error.
type FuncError func(sess *Session, err error)

// FuncCloseCode fires for transports (QUIC) that carry a structured close
// code/reason in addition to a plain disconnection.
type FuncCloseCode func(sess *Session, code uint64, reason string)

// Callbacks bundles the four callback slots spec.md §4.6 names.
type Callbacks struct {
	OnReceive    FuncReceive
	OnDisconnect FuncDisconnect
	OnError      FuncError
	OnClose      FuncCloseCode
}

// Session owns a protected socket and a bounded FIFO inbox.
type Session struct {
	ID uuid.UUID

	sock Socket
	log  liblog.Logger

	cb Callbacks

	softLimit int
	hardLimit int

	inboxMu sync.Mutex
	inbox   [][]byte

	cbMu sync.Mutex // serializes receive-callback dispatch

	stopOnce sync.Once
	stopped  chan struct{}

	readDone chan struct{}
}

// New builds a Session wrapping sock with the given callbacks. Zero
// softLimit/hardLimit fall back to spec.md §4.6's defaults. sock must not
// be nil.
func New(sock Socket, cb Callbacks, softLimit, hardLimit int, log liblog.Logger) (*Session, error) {
	if sock == nil {
		return nil, errParamsEmpty()
	}

	if softLimit <= 0 {
		softLimit = DefaultSoftLimit
	}
	if hardLimit <= 0 {
		hardLimit = 2 * softLimit
	}

	return &Session{
		ID:        uuid.New(),
		sock:      sock,
		cb:        cb,
		softLimit: softLimit,
		hardLimit: hardLimit,
		log:       log,
		stopped:   make(chan struct{}),
		readDone:  make(chan struct{}),
	}, nil
}

// Start launches the session's read loop, pushing each received payload
// onto the bounded inbox.
func (s *Session) Start(bufferSize int) {
	if bufferSize <= 0 {
		bufferSize = 32 * 1024
	}

	go s.readLoop(bufferSize)
}

func (s *Session) readLoop(bufferSize int) {
	defer close(s.readDone)

	buf := make([]byte, bufferSize)
	for {
		select {
		case <-s.stopped:
			return
		default:
		}

		n, err := s.sock.Read(buf)
		if err != nil {
			if s.cb.OnError != nil {
				s.cb.OnError(s, err)
			}
			return
		}

		if n == 0 {
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		s.enqueue(payload)
	}
}

// enqueue appends payload to the inbox, applying the soft/hard watermark
// policy of spec.md §4.6.
func (s *Session) enqueue(payload []byte) {
	s.inboxMu.Lock()
	s.inbox = append(s.inbox, payload)
	n := len(s.inbox)
	s.inboxMu.Unlock()

	if n >= s.hardLimit {
		if s.log != nil {
			s.log.Error(fmt.Sprintf("session %s inbox hit hard limit (%d); disconnecting abusive peer", s.ID, s.hardLimit), nil)
		}
		// enqueue runs on the read loop and Stop waits for the read loop
		// to exit, so Stop runs on its own goroutine.
		go s.Stop()
		return
	}

	if n >= s.softLimit {
		if s.log != nil {
			s.log.Warning(fmt.Sprintf("session %s inbox at %d messages (soft limit %d)", s.ID, n, s.softLimit), nil)
		}
	}
}

// ProcessNextMessage dequeues one payload and hands it to the receive
// callback, serialized by the session's callback mutex so at most one
// callback runs concurrently from this dispatch path. It reports whether
// a message was available.
func (s *Session) ProcessNextMessage() bool {
	s.inboxMu.Lock()
	if len(s.inbox) == 0 {
		s.inboxMu.Unlock()
		return false
	}
	payload := s.inbox[0]
	s.inbox = s.inbox[1:]
	s.inboxMu.Unlock()

	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	if s.cb.OnReceive != nil {
		s.cb.OnReceive(s, payload)
	}
	return true
}

// Done returns a channel closed once the session has been stopped
// (via Stop or CloseWithCode), for callers tracking session liveness.
func (s *Session) Done() <-chan struct{} {
	return s.stopped
}

// Send writes payload to the underlying socket.
func (s *Session) Send(payload []byte) error {
	_, err := s.sock.Write(payload)
	if err != nil && s.cb.OnError != nil {
		s.cb.OnError(s, err)
	}
	return err
}

// Stop runs the session-local portion of spec.md §4.6's stop sequence
// (steps 1-2: stop reading, close the socket) and is idempotent.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		_ = s.sock.Close()
		<-s.readDone

		if s.cb.OnDisconnect != nil {
			s.cb.OnDisconnect(s)
		}
	})
}

// CloseWithCode is Stop's counterpart for transports that carry a
// structured close code/reason (QUIC), firing OnClose instead of the
// plain OnDisconnect.
func (s *Session) CloseWithCode(code uint64, reason string) {
	s.stopOnce.Do(func() {
		close(s.stopped)
		_ = s.sock.Close()
		<-s.readDone

		if s.cb.OnClose != nil {
			s.cb.OnClose(s, code, reason)
		}
	})
}

func errParamsEmpty() error {
	return liberr.New(uint16(ErrorParamsEmpty), getMessage(ErrorParamsEmpty))
}
