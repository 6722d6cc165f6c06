// Package webrtc carries audio payloads over a single pion DataChannel. It is
// the relay's alternative to the plain WebSocket peer when the browser sits
// behind a network that favours UDP.
package webrtc

import (
	"github.com/pion/webrtc/v4"
)

// DefaultSTUNServers are used when Config.ICEServers is nil. No TURN: the
// relay and the browser are expected to reach each other directly.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Config selects the ICE servers. An empty, non-nil slice disables STUN
// (host candidates only).
type Config struct {
	ICEServers []string
}

func (c Config) iceServers() []webrtc.ICEServer {
	urls := c.ICEServers
	if urls == nil {
		urls = DefaultSTUNServers
	}
	if len(urls) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: urls}}
}

// newPeerConnection creates a PeerConnection with the configured ICE servers.
func newPeerConnection(cfg Config) (*webrtc.PeerConnection, error) {
	return webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: cfg.iceServers(),
	})
}

// newDataChannel creates the pre-negotiated audio channel (ID 0) so that both
// sides can open it without waiting for OnDataChannel. The channel is
// ordered: each message is one 20 ms frame and playback order matters.
func newDataChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	ordered := true
	negotiated := true
	id := uint16(0)

	return pc.CreateDataChannel(ChannelLabel, &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
}

// ChannelLabel is the label of the negotiated audio DataChannel.
const ChannelLabel = "pcm"
