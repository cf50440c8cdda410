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

// Package tlssock implements the TLS stream socket of spec.md §4.2: a
// net.Conn wrapped in crypto/tls, pinned to TLS 1.3 with a restricted
// cipher suite list, exposing async handshake/read/write over the
// socket package's Handle contract.
package tlssock

import (
	"context"
	"crypto/tls"
	"net"
	"sync"

	libctx "github.com/nabbar/nettransport/certificates"
	liberr "github.com/nabbar/nettransport/errors"
	"github.com/nabbar/nettransport/socket"
)

// PinnedCipherSuites is the fixed cipher-suite allowlist spec.md §4.2
// requires the acceptor to enforce: AES-256-GCM-SHA384,
// CHACHA20-POLY1305-SHA256 and AES-128-GCM-SHA256.
var PinnedCipherSuites = []uint16{
	tls.TLS_AES_256_GCM_SHA384,
	tls.TLS_CHACHA20_POLY1305_SHA256,
	tls.TLS_AES_128_GCM_SHA256,
}

// Role distinguishes the TLS handshake role a Socket performs.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

// HandshakeHandler is invoked exactly once when an async handshake
// completes, successfully or not.
type HandshakeHandler func(err error)

// Config builds the pinned *tls.Config used by Dial/NewSocket. It
// delegates certificate/root-CA assembly to the certificates package and
// only overrides the version/cipher pinning spec.md §4.2 mandates.
func Config(tlsCfg libctx.TLSConfig, serverName string) *tls.Config {
	var cfg *tls.Config

	if tlsCfg != nil {
		cfg = tlsCfg.TLS(serverName)
	} else {
		cfg = &tls.Config{ServerName: serverName}
	}

	cfg.MinVersion = tls.VersionTLS13
	cfg.MaxVersion = tls.VersionTLS13
	cfg.CipherSuites = PinnedCipherSuites

	return cfg
}

// Socket is the TLS stream socket Handle implementation.
type Socket struct {
	mu   sync.Mutex
	conn *tls.Conn
	raw  net.Conn

	closed   bool
	notifyMu sync.Mutex

	onErr  socket.FuncError
	onInfo socket.FuncInfo

	buf []byte
}

var _ socket.Handle = (*Socket)(nil)

// New wraps an already-dialed/accepted net.Conn and a pinned tls.Config
// into a Socket, without performing the handshake (see Handshake).
func New(raw net.Conn, cfg *tls.Config, bufferSize int) (*Socket, error) {
	if raw == nil || cfg == nil {
		return nil, liberr.New(uint16(socket.ErrorParamsEmpty), "raw connection and tls config are required")
	}

	if bufferSize <= 0 {
		bufferSize = socket.DefaultBufferSize
	}

	return &Socket{
		raw:  raw,
		conn: tls.Client(raw, cfg),
		buf:  make([]byte, bufferSize),
	}, nil
}

// NewServer is New's server-role counterpart: it wraps the accepted raw
// connection with tls.Server instead of tls.Client.
func NewServer(raw net.Conn, cfg *tls.Config, bufferSize int) (*Socket, error) {
	if raw == nil || cfg == nil {
		return nil, liberr.New(uint16(socket.ErrorParamsEmpty), "raw connection and tls config are required")
	}

	if bufferSize <= 0 {
		bufferSize = socket.DefaultBufferSize
	}

	return &Socket{
		raw:  raw,
		conn: tls.Server(raw, cfg),
		buf:  make([]byte, bufferSize),
	}, nil
}

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

// Handshake dispatches the TLS handshake on its own goroutine and invokes
// handler exactly once with the outcome, matching spec.md §4.2's
// `handshake(role, handler)` async contract.
func (s *Socket) Handshake(ctx context.Context, handler HandshakeHandler) {
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		err := s.conn.HandshakeContext(ctx)
		if err != nil {
			s.notifyError(socket.ConnectionDial, err)
		} else {
			s.notifyInfo(socket.ConnectionNew, "tls handshake complete")
		}
		if handler != nil {
			handler(err)
		}
	}()
}

// Read implements io.Reader over the TLS record layer, stopping cleanly
// once the socket has been closed.
func (s *Socket) Read(p []byte) (int, error) {
	if s.IsClosed() {
		return 0, liberr.New(uint16(socket.ErrorConnClosed), "tls socket closed")
	}

	n, err := s.conn.Read(p)
	if err != nil {
		s.notifyError(socket.ConnectionRead, err)
	}
	return n, err
}

// Write implements io.Writer; if the socket is already closed it fails
// synchronously with ErrorConnClosed rather than touching the wire,
// mirroring spec.md §4.2's "not_connected" synchronous-failure path.
func (s *Socket) Write(p []byte) (int, error) {
	if s.IsClosed() {
		return 0, liberr.New(uint16(socket.ErrorConnClosed), "tls socket closed")
	}

	n, err := s.conn.Write(p)
	if err != nil {
		s.notifyError(socket.ConnectionWrite, err)
	}
	return n, err
}

// Close marks the socket closed before touching the underlying conn, and
// is idempotent: only the first caller runs the actual teardown.
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

	s.notifyInfo(socket.ConnectionClose, "tls socket closed")
	return nil
}

func (s *Socket) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Socket) LocalAddr() string {
	if s.raw == nil {
		return ""
	}
	return s.raw.LocalAddr().String()
}

func (s *Socket) RemoteAddr() string {
	if s.raw == nil {
		return ""
	}
	return s.raw.RemoteAddr().String()
}
