package peer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/pcmlink/internal/protocol"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// ErrPeerClosed is returned by Send after Close.
var ErrPeerClosed = errors.New("peer: closed")

// WebSocket is a browser connected on /ws.
type WebSocket struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// NewWebSocket wraps an upgraded connection.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	// Headroom for the largest frame a peer may inject.
	conn.SetReadLimit(protocol.MaxPayload + 1)

	return &WebSocket{
		id:   newID(),
		conn: conn,
		done: make(chan struct{}),
	}
}

func (p *WebSocket) ID() string   { return p.id }
func (p *WebSocket) Kind() string { return KindWebSocket }

// Done is closed once the peer has been closed.
func (p *WebSocket) Done() <-chan struct{} { return p.done }

// Send writes payload as one binary message.
func (p *WebSocket) Send(payload []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	select {
	case <-p.done:
		return ErrPeerClosed
	default:
	}

	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(websocket.BinaryMessage, payload)
}

// Close sends a close frame and drops the connection. Safe to call
// repeatedly and concurrently with Serve.
func (p *WebSocket) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = p.conn.Close()
	})
	return err
}

// Serve reads messages until the connection fails, ctx is cancelled, or the
// peer is closed. Binary messages go to deliver, which may be nil; text
// messages are ignored. The peer is closed on return.
func (p *WebSocket) Serve(ctx context.Context, deliver DeliverFunc) error {
	defer p.Close()

	stop := context.AfterFunc(ctx, func() { p.Close() })
	defer stop()

	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go p.keepalive()

	for {
		typ, data, err := p.conn.ReadMessage()
		if err != nil {
			select {
			case <-p.done:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		// Any traffic counts as liveness.
		p.conn.SetReadDeadline(time.Now().Add(pongWait))

		if typ != websocket.BinaryMessage || deliver == nil {
			continue
		}
		deliver(data)
	}
}

func (p *WebSocket) keepalive() {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-p.done:
			return
		}
	}
}
