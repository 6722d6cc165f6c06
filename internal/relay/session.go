package relay

import (
	"sync"
	"time"

	"github.com/1ureka/pcmlink/internal/protocol"
	"github.com/1ureka/pcmlink/internal/transport"
)

// session is the relay state for one direction: at most one embedded
// connection and at most one peer, each replaced by the newest arrival.
type session struct {
	dir protocol.Direction

	// fwd is held across "look up the current legs, then deliver". Replacing
	// a leg swaps it under mu, closes the old one if nothing else uses it
	// (which unblocks a delivery stuck on it), then passes through fwd once;
	// after that no frame can reach the old leg.
	fwd sync.Mutex

	mu            sync.Mutex
	embedded      *transport.Conn
	embeddedSince time.Time
	peer          Peer
	peerSince     time.Time
}

func (s *session) legs() (Peer, *transport.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer, s.embedded
}

// barrier waits for any delivery that looked up the old legs to finish.
func (s *session) barrier() {
	s.fwd.Lock()
	s.fwd.Unlock()
}

func (s *session) currentPeer() Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

func (s *session) setPeer(p Peer) (old Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, s.peer, s.peerSince = s.peer, p, time.Now()
	return old
}

func (s *session) clearPeer(p Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer != p {
		return false
	}
	s.peer, s.peerSince = nil, time.Time{}
	return true
}

func (s *session) setEmbedded(c *transport.Conn) (old *transport.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, s.embedded, s.embeddedSince = s.embedded, c, time.Now()
	return old
}

func (s *session) clearEmbedded(c *transport.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.embedded != c {
		return false
	}
	s.embedded, s.embeddedSince = nil, time.Time{}
	return true
}

func (s *session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := SessionInfo{Direction: s.dir.String()}
	if s.embedded != nil {
		info.Embedded = s.embedded.RemoteAddr().String()
		info.EmbeddedSince = s.embeddedSince
	}
	if s.peer != nil {
		info.PeerID = s.peer.ID()
		info.PeerKind = s.peer.Kind()
		info.PeerSince = s.peerSince
	}
	info.Active = s.embedded != nil && s.peer != nil
	return info
}
