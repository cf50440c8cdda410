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

// Package quicsock implements the QUIC socket and connection engine of
// spec.md §4.4. The packet/frame/crypto engine itself is delegated to
// quic-go/quic-go; this package supplies the state-machine and bookkeeping
// view spec.md describes, backed by network/quicwire, and exposes the
// session layer's stream create/send/close surface over it.
package quicsock

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	liberr "github.com/nabbar/nettransport/errors"
	"github.com/nabbar/nettransport/network/quicwire"
)

// DefaultIdleTimeout is the idle period after which a connection with no
// sent or received packet transitions to closed (spec.md §4.4).
const DefaultIdleTimeout = 30 * time.Second

// FuncState is invoked on each state transition Close makes (closing,
// draining, closed). The transitions up to connected happen inside Dial
// and Accept, before a callback can be registered, and are not announced.
type FuncState func(state quicwire.ConnState)

// FuncStream delivers (stream-id, payload, fin) for inbound stream data.
type FuncStream func(streamID int64, payload []byte, fin bool)

// FuncClose delivers the QUIC CONNECTION_CLOSE (error-code, reason).
type FuncClose func(code uint64, reason string)

// Config builds the *quic.Config the engine uses, pinning the idle
// timeout to spec.md §4.4's default unless overridden.
func Config(idleTimeout time.Duration) *quic.Config {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &quic.Config{MaxIdleTimeout: idleTimeout}
}

// Connection wraps a quic.Connection with the idle→...→closed state
// machine, packet-number-space bookkeeping and stream fan-out spec.md
// §4.4 describes. quic-go owns the actual wire engine (handshake, packet
// protection, loss detection); Connection supplies the observable view.
type Connection struct {
	conn quic.Connection

	state  *quicwire.Machine
	spaces *quicwire.Spaces

	mu        sync.Mutex
	closed    bool
	lastTouch time.Time

	onState  FuncState
	onStream FuncStream
	onClose  FuncClose
}

// newConnection wraps an established quic.Connection and transitions the
// state machine through handshake_start → handshake → connected,
// mirroring §4.4 (the handshake itself already completed inside
// quic-go's Dial/Accept by the time a quic.Connection exists).
func newConnection(c quic.Connection) *Connection {
	m := quicwire.NewMachine()
	m.Transition(quicwire.ConnStateHandshakeStart)
	m.Transition(quicwire.ConnStateHandshake)
	m.Transition(quicwire.ConnStateConnected)

	return &Connection{
		conn:      c,
		state:     m,
		spaces:    quicwire.NewSpaces(),
		lastTouch: time.Now(),
	}
}

// Dial opens a client QUIC connection to addr.
func Dial(ctx context.Context, addr string, tlsConf *tls.Config, cfg *quic.Config) (*Connection, error) {
	c, err := quic.DialAddr(ctx, addr, tlsConf, cfg)
	if err != nil {
		return nil, liberr.New(uint16(ErrorDial), getMessage(ErrorDial), err)
	}
	return newConnection(c), nil
}

// Listener accepts incoming QUIC connections.
type Listener struct {
	ln *quic.Listener
}

// Listen binds a UDP listener running the QUIC server handshake.
func Listen(addr string, tlsConf *tls.Config, cfg *quic.Config) (*Listener, error) {
	ln, err := quic.ListenAddr(addr, tlsConf, cfg)
	if err != nil {
		return nil, liberr.New(uint16(ErrorListen), getMessage(ErrorListen), err)
	}
	return &Listener{ln: ln}, nil
}

// Accept blocks for the next client connection.
func (l *Listener) Accept(ctx context.Context) (*Connection, error) {
	c, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, liberr.New(uint16(ErrorAccept), getMessage(ErrorAccept), err)
	}
	return newConnection(c), nil
}

func (l *Listener) Close() error {
	return l.ln.Close()
}

func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

func (c *Connection) RegisterFuncState(fct FuncState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fct
}

func (c *Connection) RegisterFuncStream(fct FuncStream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStream = fct
}

func (c *Connection) RegisterFuncClose(fct FuncClose) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fct
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() quicwire.ConnState {
	return c.state.Current()
}

// PacketNumberSpaces exposes the four per-level packet-number counters for
// observability/metrics consumers.
func (c *Connection) PacketNumberSpaces() *quicwire.Spaces {
	return c.spaces
}

// IsEarlyDataAccepted reports whether the handshake's 0-RTT data was
// accepted by the peer; quicsock surfaces this without implementing a
// replay cache, per spec.md §9 (left to the host).
func (c *Connection) IsEarlyDataAccepted() bool {
	return c.conn.ConnectionState().Used0RTT
}

// CreateStream allocates a new stream, following QUIC's id-direction
// encoding (bidirectional unless unidirectional is requested).
func (c *Connection) CreateStream(ctx context.Context, unidirectional bool) (*Stream, error) {
	defer c.touch()

	if unidirectional {
		s, err := c.conn.OpenUniStreamSync(ctx)
		if err != nil {
			return nil, liberr.New(uint16(ErrorStream), getMessage(ErrorStream), err)
		}
		return &Stream{send: s, id: int64(s.StreamID()), parent: c}, nil
	}

	s, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, liberr.New(uint16(ErrorStream), getMessage(ErrorStream), err)
	}
	return &Stream{stream: s, send: s, recv: s, id: int64(s.StreamID()), parent: c}, nil
}

// AcceptStream blocks for the next peer-initiated stream, delivering
// inbound data through FuncStream as it is read.
func (c *Connection) AcceptStream(ctx context.Context) (*Stream, error) {
	s, err := c.conn.AcceptStream(ctx)
	if err != nil {
		return nil, liberr.New(uint16(ErrorStream), getMessage(ErrorStream), err)
	}
	c.touch()
	return &Stream{stream: s, send: s, recv: s, id: int64(s.StreamID()), parent: c}, nil
}

// Close transitions the connection through closing → draining → closed
// and tears down the underlying quic.Connection, then fires the close
// callback with code and reason. A CONNECTION_CLOSE sent by the peer is
// not delivered to the close callback.
func (c *Connection) Close(code uint64, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cb := c.onClose
	onState := c.onState
	c.mu.Unlock()

	c.state.Transition(quicwire.ConnStateClosing)
	if onState != nil {
		onState(quicwire.ConnStateClosing)
	}
	c.state.Transition(quicwire.ConnStateDraining)
	if onState != nil {
		onState(quicwire.ConnStateDraining)
	}

	err := c.conn.CloseWithError(quic.ApplicationErrorCode(code), reason)

	c.state.Transition(quicwire.ConnStateClosed)
	if onState != nil {
		onState(quicwire.ConnStateClosed)
	}
	if cb != nil {
		cb(code, reason)
	}

	return err
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastTouch = time.Now()
	c.mu.Unlock()
}

// IdleFor reports how long it has been since the connection last sent or
// received a packet, for the idle-timeout policy of spec.md §4.4.
func (c *Connection) IdleFor() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastTouch)
}

// Stream wraps a quic-go stream (uni or bidirectional) with the
// send/close surface spec.md §4.4 names: send_stream_data and close_stream.
type Stream struct {
	stream quic.Stream
	send   quic.SendStream
	recv   quic.ReceiveStream
	id     int64
	parent *Connection
}

func (s *Stream) ID() int64 {
	return s.id
}

// SendData enqueues data for the stream, optionally marking it final with
// fin (send_stream_data in spec.md §4.4).
func (s *Stream) SendData(data []byte, fin bool) error {
	if s.parent != nil {
		s.parent.touch()
	}

	if _, err := s.send.Write(data); err != nil {
		return liberr.New(uint16(ErrorStream), getMessage(ErrorStream), err)
	}
	if fin {
		return s.send.Close()
	}
	return nil
}

// Receive reads the next chunk of stream data, reporting fin when the
// peer half-closes the stream (io.EOF from the underlying stream), and
// fans the payload out through the parent connection's FuncStream
// callback (stream-id, payload, fin) per spec.md §4.4's dispatch rule.
func (s *Stream) Receive(buf []byte) (n int, fin bool, err error) {
	if s.recv == nil {
		return 0, false, liberr.New(uint16(ErrorStream), "stream is send-only")
	}

	n, err = s.recv.Read(buf)
	if err == io.EOF {
		fin = true
		err = nil
	}

	if s.parent != nil {
		s.parent.touch()

		s.parent.mu.Lock()
		cb := s.parent.onStream
		s.parent.mu.Unlock()

		if cb != nil && n > 0 {
			cb(s.id, buf[:n], fin)
		}
	}

	return n, fin, err
}

// Reset queues a RESET_STREAM, aborting the stream (close_stream's
// optional abort path in spec.md §4.4).
func (s *Stream) Reset(code uint64) {
	if s.send != nil {
		s.send.CancelWrite(quic.StreamErrorCode(code))
	}
	if s.recv != nil {
		s.recv.CancelRead(quic.StreamErrorCode(code))
	}
}

// Close queues a final empty STREAM frame with FIN, per spec.md §4.4's
// close_stream (non-abort path).
func (s *Stream) Close() error {
	if s.send == nil {
		return nil
	}
	return s.send.Close()
}
