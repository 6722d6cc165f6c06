package webrtc

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pcmlink/internal/util"
)

// ErrClosed is the cause reported once the DataChannel or the transport has
// been closed.
var ErrClosed = errors.New("webrtc: transport closed")

// ErrQueueFull is returned by Send when the outgoing queue is full. The
// message is dropped; the transport stays up.
var ErrQueueFull = errors.New("webrtc: send queue full")

// Transport is one browser leg: a PeerConnection carrying the "pcm"
// DataChannel. Each DataChannel message is one PCM16 frame payload.
//
// The transport ends when the channel closes, the ICE session fails, a send
// fails, or ctx is cancelled. Err reports which.
type Transport struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	sender     *sender
	openSignal chan struct{}

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
}

// NewTransport builds the PeerConnection and its negotiated channel. Frames
// queued with Send before the channel opens are held by the sender.
func NewTransport(ctx context.Context, cfg Config) (*Transport, error) {
	pc, err := newPeerConnection(cfg)
	if err != nil {
		return nil, err
	}

	dc, err := newDataChannel(pc)
	if err != nil {
		pc.Close()
		return nil, err
	}

	tCtx, tCancel := context.WithCancelCause(ctx)

	t := &Transport{
		pc:         pc,
		dc:         dc,
		openSignal: make(chan struct{}),
		ctx:        tCtx,
		cancel:     tCancel,
		pcState:    webrtc.PeerConnectionStateNew,
	}

	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() { close(t.openSignal) })
	})

	dc.OnClose(func() {
		util.LogDebug("DataChannel closed")
		tCancel(ErrClosed)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		t.mu.Lock()
		t.pcState = state
		t.mu.Unlock()

		// A failed ICE session never closes the DataChannel by itself.
		if state == webrtc.PeerConnectionStateFailed {
			tCancel(errors.New("webrtc: peer connection failed"))
		}
	})

	t.sender = newSender(tCtx, dc, t.openSignal, tCancel)

	return t, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Ready is closed once the channel is open.
func (t *Transport) Ready() <-chan struct{} {
	return t.openSignal
}

// Done is closed when the transport ends.
func (t *Transport) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Err returns why the transport shut down, or nil while it is alive.
func (t *Transport) Err() error {
	return context.Cause(t.ctx)
}

// Close ends the transport with ErrClosed.
func (t *Transport) Close() error {
	t.cancel(ErrClosed)
	return errors.Join(t.dc.Close(), t.pc.Close())
}

func (t *Transport) ConnectionState() webrtc.PeerConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pcState
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// The relay always offers; CreateAnswer exists for pion-to-pion tests.

func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) { return t.pc.CreateOffer(nil) }

func (t *Transport) CreateAnswer() (webrtc.SessionDescription, error) { return t.pc.CreateAnswer(nil) }

func (t *Transport) SetLocalDescription(d webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(d)
}

func (t *Transport) SetRemoteDescription(d webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(d)
}

// OnICECandidate registers fn for locally gathered candidates; nil marks the
// end of gathering.
func (t *Transport) OnICECandidate(fn func(*webrtc.ICECandidate)) { t.pc.OnICECandidate(fn) }

func (t *Transport) AddICECandidate(c webrtc.ICECandidateInit) error { return t.pc.AddICECandidate(c) }

// ---------------------------------------------------------------------------
// Data
// ---------------------------------------------------------------------------

// Send enqueues one binary message and never blocks. It returns
// ErrQueueFull while the channel is backed up, and the shutdown cause once
// the transport is done. payload must not be modified afterwards.
func (t *Transport) Send(payload []byte) error {
	err := t.sender.send(t.ctx, payload)
	switch {
	case err == nil, errors.Is(err, ErrQueueFull):
		return err
	default:
		return context.Cause(t.ctx)
	}
}

// OnMessage registers a callback invoked for every inbound binary message.
// Text messages are ignored.
func (t *Transport) OnMessage(fn func([]byte)) {
	t.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString {
			return
		}
		fn(msg.Data)
	})
}
