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

package socket

import (
	"io"
	"sync"
	"sync/atomic"

	liberr "github.com/nabbar/nettransport/errors"
	libatm "github.com/nabbar/nettransport/atomic"
)

// FuncError is invoked whenever a socket observes an error while in the
// given ConnState. The callback slot is swapped atomically so it can be
// rebound at any point in the socket's lifetime without racing reads/writes.
type FuncError func(state ConnState, err error)

// FuncInfo is invoked for informational, non-error lifecycle events (e.g.
// a successful handshake, a clean close).
type FuncInfo func(state ConnState, message string)

// Handle is the contract of the protected stream and datagram sockets
// (tlssock.Socket, dtlssock.Socket). It wraps a transport conn with a
// fixed read buffer, callback slots and an idempotent Close, per spec.md
// §3. quicsock.Connection exposes a stream API and does not implement it.
type Handle interface {
	io.ReadWriteCloser

	// RegisterFuncError rebinds the error callback. Safe for concurrent use.
	RegisterFuncError(fct FuncError)
	// RegisterFuncInfo rebinds the informational callback. Safe for concurrent use.
	RegisterFuncInfo(fct FuncInfo)

	// IsClosed reports whether Close has already run to completion.
	IsClosed() bool

	// LocalAddr and RemoteAddr mirror net.Conn for observability/logging.
	LocalAddr() string
	RemoteAddr() string
}

// base bundles the state a Handle needs: the atomic callback slots, the
// closed flag and the fixed-size read buffer. tlssock and dtlssock do not
// embed it; they keep their own copies of this state.
type base struct {
	closed atomic.Bool
	mu     sync.Mutex

	fctErr  libatm.Value[FuncError]
	fctInfo libatm.Value[FuncInfo]

	buf []byte
}

// newBase allocates a base with the default buffer size and no-op callback
// defaults, so RegisterFuncError/RegisterFuncInfo are optional.
func newBase(bufferSize int) base {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	b := base{
		fctErr:  libatm.NewValue[FuncError](),
		fctInfo: libatm.NewValue[FuncInfo](),
		buf:     make([]byte, bufferSize),
	}

	b.fctErr.SetDefaultLoad(func(ConnState, error) {})
	b.fctInfo.SetDefaultLoad(func(ConnState, string) {})

	return b
}

func (b *base) RegisterFuncError(fct FuncError) {
	if fct == nil {
		return
	}
	b.fctErr.Store(fct)
}

func (b *base) RegisterFuncInfo(fct FuncInfo) {
	if fct == nil {
		return
	}
	b.fctInfo.Store(fct)
}

func (b *base) notifyError(state ConnState, err error) {
	if err = ErrorFilter(err); err == nil {
		return
	}
	b.fctErr.Load()(state, err)
}

func (b *base) notifyInfo(state ConnState, msg string) {
	b.fctInfo.Load()(state, msg)
}

func (b *base) IsClosed() bool {
	return b.closed.Load()
}

// markClosed flips the closed flag and reports whether this call is the one
// that transitioned it, so callers can make Close idempotent: only the
// first caller runs the underlying teardown.
func (b *base) markClosed() bool {
	return b.closed.CompareAndSwap(false, true)
}

func errParamsEmpty() error {
	return liberr.New(uint16(ErrorParamsEmpty), getMessage(ErrorParamsEmpty))
}
