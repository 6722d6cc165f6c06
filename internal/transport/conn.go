// Package transport provides the reliable byte-stream connection used between
// an audio endpoint and the relay. Transfers are all-or-nothing: a send or
// receive either moves the full requested length or fails, and the first
// failure leaves the connection permanently broken.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/1ureka/pcmlink/internal/protocol"
	"github.com/1ureka/pcmlink/internal/util"
)

// ErrBroken is returned by every operation on a connection that has already
// failed or been closed. Broken connections are never repaired.
var ErrBroken = errors.New("transport: connection is broken")

// ConnectError reports a failed connection attempt (DNS, refused, timeout).
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// IOError reports a mid-stream send or receive failure.
type IOError struct {
	Op  string // "send" or "recv"
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Conn is a single-use framed byte stream over TCP.
//
// One goroutine may send while another receives; concurrent senders are
// serialized so that frames never interleave.
type Conn struct {
	raw net.Conn
	id  uint32

	sendMu sync.Mutex

	mu     sync.Mutex
	broken bool

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to addr. The attempt is bounded only by ctx and the
// operating system's own connect timeout.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: err}
	}
	if tcp, ok := raw.(*net.TCPConn); ok {
		// Frames are small and latency-sensitive.
		tcp.SetNoDelay(true)
	}
	return Wrap(raw), nil
}

// Wrap adopts an already established connection, e.g. one returned by
// net.Listener.Accept on the relay side.
func Wrap(raw net.Conn) *Conn {
	return &Conn{raw: raw, id: util.ConnID(raw)}
}

// ID is a short hash of the connection's 4-tuple used to tag log lines.
func (c *Conn) ID() uint32 { return c.id }

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr { return c.raw.LocalAddr() }

// SendAll writes all of b or fails. Short writes are retried internally
// until a hard error or peer close.
func (c *Conn) SendAll(b []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.isBroken() {
		return ErrBroken
	}

	for sent := 0; sent < len(b); {
		n, err := c.raw.Write(b[sent:])
		sent += n
		if err != nil {
			return c.fail("send", err)
		}
		if n == 0 {
			return c.fail("send", io.ErrShortWrite)
		}
	}
	return nil
}

// RecvExact reads exactly n bytes or fails.
func (c *Conn) RecvExact(n int) ([]byte, error) {
	if c.isBroken() {
		return nil, ErrBroken
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(c.raw, buf); err != nil {
		return nil, c.fail("recv", err)
	}
	return buf, nil
}

// Read implements io.Reader on top of the failure tracking so that the
// stream can be handed to protocol.ReadFrame / ReadHandshake directly.
func (c *Conn) Read(p []byte) (int, error) {
	if c.isBroken() {
		return 0, ErrBroken
	}
	n, err := c.raw.Read(p)
	if err != nil {
		c.markBroken()
	}
	return n, err
}

// WriteFrame encodes one data frame and sends it in a single SendAll, so
// concurrent writers can never interleave a header with another payload.
func (c *Conn) WriteFrame(typ uint8, payload []byte) error {
	if err := protocol.CheckPayload(payload); err != nil {
		return err
	}
	return c.SendAll(protocol.Encode(typ, payload))
}

// ReadFrame receives exactly one frame. Protocol violations also break the
// connection: there is no resynchronization within a stream.
func (c *Conn) ReadFrame() (*protocol.Frame, error) {
	f, err := protocol.ReadFrame(c)
	if err != nil {
		c.markBroken()
		if errors.Is(err, ErrBroken) {
			return nil, err
		}
		if isProtocolError(err) {
			return nil, err
		}
		return nil, &IOError{Op: "recv", Err: err}
	}
	return f, nil
}

// WriteHandshake sends the identity token for d.
func (c *Conn) WriteHandshake(d protocol.Direction) error {
	return c.SendAll([]byte(d.Token()))
}

// ReadHandshake classifies the connection. The read is bounded by timeout
// when it is positive; the deadline is cleared again on success.
func (c *Conn) ReadHandshake(timeout time.Duration) (protocol.Direction, error) {
	if timeout > 0 {
		c.raw.SetReadDeadline(time.Now().Add(timeout))
		defer c.raw.SetReadDeadline(time.Time{})
	}
	d, err := protocol.ReadHandshake(c)
	if err != nil {
		c.markBroken()
		return 0, err
	}
	return d, nil
}

// SetDeadline forwards to the underlying connection.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.raw.SetDeadline(t)
}

// Close releases the socket. It is safe to call more than once and from any
// goroutine; blocked Send/Recv calls return promptly.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.markBroken()
		c.closeErr = c.raw.Close()
	})
	return c.closeErr
}

// Broken reports whether the connection has failed or been closed.
func (c *Conn) Broken() bool { return c.isBroken() }

func (c *Conn) isBroken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken
}

func (c *Conn) markBroken() {
	c.mu.Lock()
	c.broken = true
	c.mu.Unlock()
}

func (c *Conn) fail(op string, err error) error {
	c.markBroken()
	return &IOError{Op: op, Err: err}
}

func isProtocolError(err error) bool {
	return errors.Is(err, protocol.ErrBadMagic) ||
		errors.Is(err, protocol.ErrBadType) ||
		errors.Is(err, protocol.ErrZeroLength) ||
		errors.Is(err, protocol.ErrTruncated)
}
