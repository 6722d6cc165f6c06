// Package relay implements the PC side of the audio link. It accepts the
// endpoint's two directional TCP connections, and for each direction pairs
// the current embedded connection with the current far-side peer (a browser
// socket or a WebRTC DataChannel), forwarding payloads between them.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/1ureka/pcmlink/internal/observe"
	"github.com/1ureka/pcmlink/internal/protocol"
	"github.com/1ureka/pcmlink/internal/util"
)

// ErrNotAttached is returned by Deliver when the peer is not the current
// downlink peer. The payload is discarded.
var ErrNotAttached = errors.New("relay: peer is not attached to the downlink")

// ErrPeerBusy is returned by Peer.Send when the peer dropped the message
// because it is not keeping up. The peer stays attached.
var ErrPeerBusy = errors.New("relay: peer busy")

// Peer is a far-side consumer/producer of raw PCM16 messages, one message
// per frame. The bridge only references peers; their lifetime belongs to
// the transport that created them, except that a replaced peer is closed.
type Peer interface {
	ID() string
	Kind() string

	// Send delivers one uplink payload as a single message. It must not
	// block for long; a peer that cannot keep up returns ErrPeerBusy.
	Send(payload []byte) error

	// Close must not block on the peer's own read loop.
	Close() error
}

// Options tunes a Bridge.
type Options struct {
	// Metrics receives frame and session counters. Default observe.DefaultMetrics().
	Metrics *observe.Metrics
}

// Bridge holds one session per direction.
type Bridge struct {
	metrics  *observe.Metrics
	sessions map[protocol.Direction]*session
}

// New creates a bridge with empty Up and Down sessions.
func New(opts Options) *Bridge {
	if opts.Metrics == nil {
		opts.Metrics = observe.DefaultMetrics()
	}

	b := &Bridge{
		metrics:  opts.Metrics,
		sessions: make(map[protocol.Direction]*session, len(protocol.Directions)),
	}
	// The map is fixed after construction; only the sessions mutate.
	for _, d := range protocol.Directions {
		b.sessions[d] = &session{dir: d}
	}
	return b
}

// AttachPeer makes p the target for direction d, replacing any previous peer
// (last writer wins). The replaced peer is closed unless it is still attached
// to the other direction. When AttachPeer returns, the replaced peer receives
// no further frames for d. The returned detach func clears the slot if p is
// still the current peer; it is safe to call more than once.
func (b *Bridge) AttachPeer(d protocol.Direction, p Peer) (detach func()) {
	s := b.sessions[d]
	if s == nil {
		return func() {}
	}

	old := s.setPeer(p)
	if old != p {
		b.metrics.PeerAttached(context.Background(), d.String(), p.Kind(), 1)
		util.LogInfo("[%s] peer %s (%s) attached", d, p.ID(), p.Kind())
	}

	if old != nil && old != p {
		b.metrics.PeerAttached(context.Background(), d.String(), old.Kind(), -1)
		util.LogInfo("[%s] peer %s replaced by %s", d, old.ID(), p.ID())
		if !b.attached(old) {
			old.Close()
		}
	}
	s.barrier()

	return func() {
		if s.clearPeer(p) {
			b.metrics.PeerAttached(context.Background(), d.String(), p.Kind(), -1)
			util.LogInfo("[%s] peer %s detached", d, p.ID())
		}
	}
}

// attached reports whether p is the current peer of any direction.
func (b *Bridge) attached(p Peer) bool {
	for _, s := range b.sessions {
		if s.currentPeer() == p {
			return true
		}
	}
	return false
}

// Deliver wraps one message from p into a downlink frame and writes it to
// the current embedded downlink connection. Messages from a peer that is not
// the current downlink peer return ErrNotAttached; with no embedded
// connection the message is discarded and Deliver returns nil.
func (b *Bridge) Deliver(p Peer, payload []byte) error {
	if err := protocol.CheckPayload(payload); err != nil {
		b.drop(protocol.Down, "invalid")
		return err
	}

	s := b.sessions[protocol.Down]

	s.fwd.Lock()
	defer s.fwd.Unlock()

	peer, conn := s.legs()
	if peer != p {
		return ErrNotAttached
	}
	if conn == nil {
		b.drop(protocol.Down, "no_embedded")
		return nil
	}

	if err := conn.WriteFrame(protocol.TypeDown, payload); err != nil {
		// The embedded leg is gone; its watcher clears the slot.
		util.LogWarning("[%08x] downlink write failed: %v", conn.ID(), err)
		conn.Close()
		return nil
	}

	util.Stats.AddDown(len(payload))
	b.metrics.RecordFrame(context.Background(), "down", "embedded", len(payload))
	return nil
}

// SessionInfo is a point-in-time view of one direction.
type SessionInfo struct {
	Direction     string    `json:"direction"`
	Embedded      string    `json:"embedded,omitempty"`
	EmbeddedSince time.Time `json:"embedded_since,omitzero"`
	PeerID        string    `json:"peer_id,omitempty"`
	PeerKind      string    `json:"peer_kind,omitempty"`
	PeerSince     time.Time `json:"peer_since,omitzero"`
	Active        bool      `json:"active"` // both legs present
}

// Sessions returns a snapshot of both directions, Up first.
func (b *Bridge) Sessions() []SessionInfo {
	out := make([]SessionInfo, 0, len(protocol.Directions))
	for _, d := range protocol.Directions {
		out = append(out, b.sessions[d].info())
	}
	return out
}

func (b *Bridge) drop(d protocol.Direction, reason string) {
	util.Stats.AddDropped()
	b.metrics.RecordDrop(context.Background(), d.String(), reason)
}
