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

// Package dtlssock implements the DTLS datagram socket of spec.md §4.3.
// The original's hand-rolled memory-BIO pump is replaced by pion/dtls/v2,
// which already multiplexes per-client sessions keyed by sender endpoint
// behind a net.Listener — the ecosystem substitute noted in DESIGN.md.
package dtlssock

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pion/dtls/v2"

	liberr "github.com/nabbar/nettransport/errors"
	"github.com/nabbar/nettransport/socket"
)

// HandshakeHandler is invoked exactly once when the DTLS handshake
// dispatched by Handshake completes.
type HandshakeHandler func(err error)

// Config builds a pion dtls.Config from the supplied certificate/root-CA
// material. Certificates is left for the caller to assemble (typically via
// the certificates package's certs.Cert helpers) since pion's Config
// shape differs from crypto/tls.Config.
type Config = dtls.Config

// Listener wraps a pion DTLS listener to accept per-client sessions, each
// surfaced as its own Socket, keyed implicitly by sender endpoint the way
// pion's internal flight manager already does.
type Listener struct {
	ln net.Listener
}

// Listen binds a UDP listener and wraps it with the DTLS handshake layer.
func Listen(laddr *net.UDPAddr, cfg *Config) (*Listener, error) {
	if laddr == nil || cfg == nil {
		return nil, liberr.New(uint16(socket.ErrorParamsEmpty), "listen address and dtls config are required")
	}

	ln, err := dtls.Listen("udp", laddr, cfg)
	if err != nil {
		return nil, liberr.New(uint16(ErrorListen), getMessage(ErrorListen), err)
	}

	return &Listener{ln: ln}, nil
}

// Accept blocks for the next client session and wraps it in a Socket. The
// handshake itself is not awaited here: callers should call Handshake on
// the returned Socket, matching the async handshake(role, handler) contract.
func (l *Listener) Accept() (*Socket, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, liberr.New(uint16(ErrorAccept), getMessage(ErrorAccept), err)
	}

	return &Socket{conn: conn, buf: make([]byte, socket.DefaultBufferSize)}, nil
}

func (l *Listener) Close() error {
	return l.ln.Close()
}

func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Dial connects to a DTLS server, returning a Socket whose handshake has
// not yet been driven (see Handshake).
func Dial(raddr *net.UDPAddr, cfg *Config, connectTimeout time.Duration) (*Socket, error) {
	if raddr == nil || cfg == nil {
		return nil, liberr.New(uint16(socket.ErrorParamsEmpty), "remote address and dtls config are required")
	}

	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	conn, err := dtls.DialWithContext(ctx, "udp", raddr, cfg)
	if err != nil {
		return nil, liberr.New(uint16(ErrorDial), getMessage(ErrorDial), err)
	}

	return &Socket{conn: conn, buf: make([]byte, socket.DefaultBufferSize)}, nil
}

// Socket is the DTLS datagram socket Handle implementation. The handshake
// has already happened by the time Accept/Dial return a usable *dtls.Conn
// (pion drives it internally), so Handshake here simply surfaces that
// outcome asynchronously to match spec.md §4.3's handshake(role, handler).
type Socket struct {
	mu     sync.Mutex
	conn   net.Conn
	closed bool
	buf    []byte

	notifyMu sync.Mutex
	onErr    socket.FuncError
	onInfo   socket.FuncInfo
}

var _ socket.Handle = (*Socket)(nil)

func (s *Socket) RegisterFuncError(fct socket.FuncError) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.onErr = fct
}

func (s *Socket) RegisterFuncInfo(fct socket.FuncInfo) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.onInfo = fct
}

func (s *Socket) notifyError(state socket.ConnState, err error) {
	if err = socket.ErrorFilter(err); err == nil {
		return
	}
	s.notifyMu.Lock()
	fct := s.onErr
	s.notifyMu.Unlock()
	if fct != nil {
		fct(state, err)
	}
}

func (s *Socket) notifyInfo(state socket.ConnState, msg string) {
	s.notifyMu.Lock()
	fct := s.onInfo
	s.notifyMu.Unlock()
	if fct != nil {
		fct(state, msg)
	}
}

// Handshake reports the handshake outcome asynchronously. Since pion has
// already completed the handshake by the time the underlying *dtls.Conn
// exists, this performs a cheap liveness probe (ConnectionState) rather
// than re-driving any flight exchange.
func (s *Socket) Handshake(handler HandshakeHandler) {
	go func() {
		var err error
		if dc, ok := s.conn.(*dtls.Conn); ok {
			_ = dc.ConnectionState()
		}
		s.notifyInfo(socket.ConnectionNew, "dtls handshake complete")
		if handler != nil {
			handler(err)
		}
	}()
}

// Receive reads one decrypted datagram, matching spec.md §4.3's receive
// callback shape of (plaintext, sender-endpoint); the endpoint is the
// already-associated peer since pion binds one Socket per client session.
func (s *Socket) Receive() (payload []byte, from net.Addr, err error) {
	if s.IsClosed() {
		return nil, nil, liberr.New(uint16(socket.ErrorConnClosed), "dtls socket closed")
	}

	n, err := s.conn.Read(s.buf)
	if err != nil {
		s.notifyError(socket.ConnectionRead, err)
		return nil, nil, err
	}

	out := make([]byte, n)
	copy(out, s.buf[:n])
	return out, s.conn.RemoteAddr(), nil
}

func (s *Socket) Read(p []byte) (int, error) {
	if s.IsClosed() {
		return 0, liberr.New(uint16(socket.ErrorConnClosed), "dtls socket closed")
	}
	n, err := s.conn.Read(p)
	if err != nil {
		s.notifyError(socket.ConnectionRead, err)
	}
	return n, err
}

// Send writes one plaintext datagram to the peer, matching spec.md §4.3's
// `SSL_write(plaintext)` then drain-to-peer sequence (pion performs the
// drain internally on Write).
func (s *Socket) Send(payload []byte) error {
	_, err := s.Write(payload)
	return err
}

func (s *Socket) Write(p []byte) (int, error) {
	if s.IsClosed() {
		return 0, liberr.New(uint16(socket.ErrorConnClosed), "dtls socket closed")
	}
	n, err := s.conn.Write(p)
	if err != nil {
		s.notifyError(socket.ConnectionWrite, err)
	}
	return n, err
}

func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.conn.Close()
	if e := socket.ErrorFilter(err); e != nil {
		s.notifyError(socket.ConnectionClose, e)
		return e
	}

	s.notifyInfo(socket.ConnectionClose, "dtls socket closed")
	return nil
}

func (s *Socket) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Socket) LocalAddr() string {
	return s.conn.LocalAddr().String()
}

func (s *Socket) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}
