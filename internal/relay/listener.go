package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/1ureka/pcmlink/internal/observe"
	"github.com/1ureka/pcmlink/internal/protocol"
	"github.com/1ureka/pcmlink/internal/transport"
	"github.com/1ureka/pcmlink/internal/util"
)

// DefaultHandshakeTimeout bounds how long a new connection may take to send
// its identity token.
const DefaultHandshakeTimeout = 5 * time.Second

// ErrListenerClosed is returned by AcceptEmbedded after Close.
var ErrListenerClosed = errors.New("relay: listener closed")

type accepted struct {
	dir  protocol.Direction
	conn *transport.Conn
}

// Listener accepts embedded-side TCP connections and classifies each one by
// its handshake. Handshakes run concurrently, so one slow client cannot hold
// up the others.
type Listener struct {
	ln      net.Listener
	timeout time.Duration
	metrics *observe.Metrics

	ready chan accepted
	done  chan struct{}

	closeOnce sync.Once
	err       error // set before done is closed
}

// Listen opens a TCP listener on addr (e.g. ":9002").
func Listen(addr string, handshakeTimeout time.Duration) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return NewListener(ln, handshakeTimeout), nil
}

// NewListener adopts ln and starts accepting immediately.
func NewListener(ln net.Listener, handshakeTimeout time.Duration) *Listener {
	if handshakeTimeout <= 0 {
		handshakeTimeout = DefaultHandshakeTimeout
	}
	l := &Listener{
		ln:      ln,
		timeout: handshakeTimeout,
		metrics: observe.DefaultMetrics(),
		ready:   make(chan accepted),
		done:    make(chan struct{}),
	}
	go l.acceptLoop()
	return l
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// AcceptEmbedded blocks until a new connection has identified itself, and
// returns its direction. Connections whose first bytes are not a known token,
// or that stay silent past the handshake timeout, are closed and never
// returned.
func (l *Listener) AcceptEmbedded(ctx context.Context) (protocol.Direction, *transport.Conn, error) {
	select {
	case a := <-l.ready:
		return a.dir, a.conn, nil
	case <-l.done:
		return 0, nil, l.err
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// Close stops accepting. Connections still in their handshake are closed.
func (l *Listener) Close() error {
	return l.shutdown(ErrListenerClosed)
}

func (l *Listener) shutdown(err error) error {
	var closeErr error
	l.closeOnce.Do(func() {
		l.err = err
		closeErr = l.ln.Close()
		close(l.done)
	})
	return closeErr
}

func (l *Listener) acceptLoop() {
	for {
		raw, err := l.ln.Accept()
		if err != nil {
			l.shutdown(fmt.Errorf("%w: %w", ErrListenerClosed, err))
			return
		}
		if tcp, ok := raw.(*net.TCPConn); ok {
			tcp.SetNoDelay(true)
		}

		conn := transport.Wrap(raw)
		util.LogDebug("[%08x] embedded connection from %s", conn.ID(), conn.RemoteAddr())
		go l.identify(conn)
	}
}

func (l *Listener) identify(conn *transport.Conn) {
	dir, err := conn.ReadHandshake(l.timeout)
	if err != nil {
		util.LogWarning("[%08x] rejected %s: %v", conn.ID(), conn.RemoteAddr(), err)
		l.metrics.RecordProtocolError(context.Background(), "unknown", err)
		conn.Close()
		return
	}

	select {
	case l.ready <- accepted{dir: dir, conn: conn}:
	case <-l.done:
		conn.Close()
	}
}
