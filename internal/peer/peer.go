// Package peer adapts far-side browser connections to relay.Peer. Each peer
// carries raw PCM16 payloads, one message per 20 ms frame, with no framing
// of its own.
package peer

import (
	"github.com/google/uuid"

	"github.com/1ureka/pcmlink/internal/relay"
)

// Kinds reported by Peer.Kind.
const (
	KindWebSocket = "websocket"
	KindWebRTC    = "webrtc"
)

// DeliverFunc receives one inbound binary message from the browser.
type DeliverFunc func(payload []byte)

var (
	_ relay.Peer = (*WebSocket)(nil)
	_ relay.Peer = (*DataChannel)(nil)
)

func newID() string { return uuid.NewString() }
