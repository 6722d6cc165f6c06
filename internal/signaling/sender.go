package signaling

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/1ureka/pcmlink/internal/webrtc"
)

// sender serializes outgoing signaling messages to the WebSocket.
type sender struct {
	tr   *webrtc.Transport
	conn *websocket.Conn
	mu   sync.Mutex
}

// send writes a signaling message to the WebSocket, guarded by a mutex.
func (s *sender) send(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

// sendOffer creates an SDP offer, sets it as local description, and sends it.
// The lock is held throughout so no trickled candidate overtakes the offer.
func (s *sender) sendOffer() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, err := s.tr.CreateOffer()
	if err != nil {
		return err
	}

	if err := s.tr.SetLocalDescription(offer); err != nil {
		return err
	}

	return s.conn.WriteJSON(Message{Type: MsgTypeOffer, SDP: offer.SDP})
}

// sendCandidate sends an ICE candidate message over the WebSocket.
func (s *sender) sendCandidate(candidate string) error {
	return s.send(Message{Type: MsgTypeCandidate, Candidate: candidate})
}

// sendError reports a signaling failure to the browser before closing.
func (s *sender) sendError(err error) error {
	return s.send(Message{Type: MsgTypeError, Error: err.Error()})
}
