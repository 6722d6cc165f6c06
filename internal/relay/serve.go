package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/1ureka/pcmlink/internal/protocol"
	"github.com/1ureka/pcmlink/internal/transport"
	"github.com/1ureka/pcmlink/internal/util"
)

// Serve accepts embedded connections from ln until ctx is cancelled, and
// forwards traffic for each. The listener is closed on return.
func (b *Bridge) Serve(ctx context.Context, ln *Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	util.LogInfo("relay: waiting for the endpoint on %s", ln.Addr())

	for {
		dir, conn, err := ln.AcceptEmbedded(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil // normal shutdown
			}
			return fmt.Errorf("accept error: %w", err)
		}
		go b.Handle(ctx, dir, conn)
	}
}

// Handle installs conn as the embedded leg for dir, replacing any previous
// one, and services it until it fails or ctx ends. Uplink connections are
// read for frames; downlink connections are only watched for closure.
func (b *Bridge) Handle(ctx context.Context, dir protocol.Direction, conn *transport.Conn) {
	s := b.sessions[dir]
	if s == nil {
		conn.Close()
		return
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if old := s.setEmbedded(conn); old != nil {
		util.LogInfo("[%s] embedded connection [%08x] replaced by [%08x]", dir, old.ID(), conn.ID())
		old.Close()
	} else {
		b.metrics.EmbeddedAttached(ctx, dir.String(), 1)
	}
	s.barrier()
	util.LogSuccess("[%s] endpoint connected from %s", dir, conn.RemoteAddr())
	b.metrics.RecordConnect(ctx, dir.String(), "relay")

	var err error
	if dir == protocol.Up {
		err = b.forwardUp(ctx, s, conn)
	} else {
		err = b.watchDown(conn)
	}
	conn.Close()

	if s.clearEmbedded(conn) {
		b.metrics.EmbeddedAttached(context.Background(), dir.String(), -1)
	}

	switch {
	case ctx.Err() != nil:
	case isClosed(err):
		util.LogInfo("[%s] endpoint disconnected", dir)
	default:
		util.LogWarning("[%s] endpoint dropped: %v", dir, err)
		if !isIO(err) {
			b.metrics.RecordProtocolError(context.Background(), dir.String(), err)
		}
	}
}

// forwardUp reads frames in arrival order and hands each payload to the
// current uplink peer. Without a peer the frame is discarded.
func (b *Bridge) forwardUp(ctx context.Context, s *session, conn *transport.Conn) error {
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			return err
		}
		if f.Type != protocol.TypeUp {
			return fmt.Errorf("%w: %d on uplink", protocol.ErrBadType, f.Type)
		}

		b.sendUp(ctx, s, conn, f.Payload)
	}
}

func (b *Bridge) sendUp(ctx context.Context, s *session, conn *transport.Conn, payload []byte) {
	s.fwd.Lock()
	peer, current := s.legs()
	if current != conn {
		// Replaced while this frame was in flight.
		s.fwd.Unlock()
		return
	}
	if peer == nil {
		s.fwd.Unlock()
		b.drop(protocol.Up, "no_peer")
		return
	}
	err := peer.Send(payload)
	s.fwd.Unlock()

	if errors.Is(err, ErrPeerBusy) {
		b.drop(protocol.Up, "peer_busy")
		return
	}
	if err != nil {
		util.LogWarning("[up] peer %s send failed: %v", peer.ID(), err)
		if s.clearPeer(peer) {
			b.metrics.PeerAttached(context.Background(), "up", peer.Kind(), -1)
		}
		peer.Close()
		return
	}

	util.Stats.AddUp(len(payload))
	b.metrics.RecordFrame(ctx, "up", "peer", len(payload))
}

// watchDown blocks until the downlink connection closes. The endpoint never
// sends on it after the handshake; stray bytes are discarded.
func (b *Bridge) watchDown(conn *transport.Conn) error {
	_, err := io.Copy(io.Discard, conn)
	if err == nil {
		return io.EOF
	}
	return err
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, transport.ErrBroken)
}

func isIO(err error) bool {
	var ioErr *transport.IOError
	return errors.As(err, &ioErr)
}
