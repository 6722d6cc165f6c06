package signaling_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	pion "github.com/pion/webrtc/v4"

	"github.com/1ureka/pcmlink/internal/protocol"
	"github.com/1ureka/pcmlink/internal/relay"
	"github.com/1ureka/pcmlink/internal/signaling"
	"github.com/1ureka/pcmlink/internal/webrtc"
)

// needsNetwork skips when ICE has no usable host candidate.
func needsNetwork(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("webrtc loopback skipped in -short mode")
	}
	ifaces, _ := net.Interfaces()
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp != 0 && ifc.Flags&net.FlagLoopback == 0 {
			return
		}
	}
	t.Skip("no non-loopback interface for ICE host candidates")
}

// answerer is the browser side of /rtc, played by a second pion stack.
type answerer struct {
	pc   *pion.PeerConnection
	dc   *pion.DataChannel
	ws   *websocket.Conn
	mu   sync.Mutex
	open chan struct{}
	msgs chan []byte
}

func dialAnswerer(t *testing.T, url string) *answerer {
	t.Helper()

	pc, err := pion.NewPeerConnection(pion.Configuration{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pc.Close() })

	ordered, negotiated, id := true, true, uint16(0)
	dc, err := pc.CreateDataChannel(webrtc.ChannelLabel, &pion.DataChannelInit{
		Ordered: &ordered, Negotiated: &negotiated, ID: &id,
	})
	if err != nil {
		t.Fatal(err)
	}

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial /rtc: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	a := &answerer{pc: pc, dc: dc, ws: ws, open: make(chan struct{}), msgs: make(chan []byte, 16)}
	var once sync.Once
	dc.OnOpen(func() { once.Do(func() { close(a.open) }) })
	dc.OnMessage(func(m pion.DataChannelMessage) { a.msgs <- m.Data })

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		data, _ := json.Marshal(c.ToJSON())
		a.mu.Lock()
		defer a.mu.Unlock()
		ws.WriteJSON(signaling.Message{Type: signaling.MsgTypeCandidate, Candidate: string(data)})
	})

	go a.readLoop()
	return a
}

func (a *answerer) readLoop() {
	for {
		var msg signaling.Message
		if err := a.ws.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case signaling.MsgTypeOffer:
			a.mu.Lock()
			a.pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: msg.SDP})
			answer, err := a.pc.CreateAnswer(nil)
			if err == nil {
				a.pc.SetLocalDescription(answer)
				a.ws.WriteJSON(signaling.Message{Type: signaling.MsgTypeAnswer, SDP: answer.SDP})
			}
			a.mu.Unlock()
		case signaling.MsgTypeCandidate:
			var init pion.ICECandidateInit
			if json.Unmarshal([]byte(msg.Candidate), &init) == nil {
				a.pc.AddICECandidate(init)
			}
		}
	}
}

func TestNegotiatedDataChannelCarriesAudio(t *testing.T) {
	needsNetwork(t)

	ln, err := relay.Listen("127.0.0.1:0", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	b := relay.New(relay.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Serve(ctx, ln)

	srv := httptest.NewServer(signaling.NewServer(b, signaling.Options{
		WebRTC:           webrtc.Config{ICEServers: []string{}},
		NegotiateTimeout: 10 * time.Second,
	}).Handler())
	defer srv.Close()

	h := &harness{bridge: b, tcpAddr: ln.Addr().String(), http: srv}
	down := h.endpoint(t, protocol.Down)
	up := h.endpoint(t, protocol.Up)

	a := dialAnswerer(t, "ws"+strings.TrimPrefix(srv.URL, "http")+"/rtc?dir=both")
	select {
	case <-a.open:
	case <-time.After(10 * time.Second):
		t.Fatal("DataChannel did not open")
	}
	h.waitSession(t, protocol.Up, func(s relay.SessionInfo) bool { return s.PeerKind == "webrtc" })
	h.waitSession(t, protocol.Down, func(s relay.SessionInfo) bool { return s.PeerKind == "webrtc" })

	up.WriteFrame(protocol.TypeUp, []byte{1, 2, 3, 4})
	select {
	case got := <-a.msgs:
		if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
			t.Fatalf("uplink message = %v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no uplink message over the DataChannel")
	}

	if err := a.dc.Send([]byte{9, 8}); err != nil {
		t.Fatal(err)
	}
	down.SetDeadline(time.Now().Add(5 * time.Second))
	f, err := down.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(f.Payload, []byte{9, 8}) {
		t.Fatalf("downlink frame = %v", f.Payload)
	}
}
