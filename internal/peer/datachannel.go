package peer

import (
	"context"
	"errors"
	"fmt"

	"github.com/1ureka/pcmlink/internal/relay"
	"github.com/1ureka/pcmlink/internal/webrtc"
)

// DataChannel is a browser connected through WebRTC after /rtc signaling.
type DataChannel struct {
	id string
	tr *webrtc.Transport
}

// NewDataChannel wraps a negotiated transport. The transport should already
// be open; Send blocks until it is.
func NewDataChannel(tr *webrtc.Transport) *DataChannel {
	return &DataChannel{id: newID(), tr: tr}
}

func (p *DataChannel) ID() string   { return p.id }
func (p *DataChannel) Kind() string { return KindWebRTC }

// Send enqueues payload. While the channel is backed up the frame is
// dropped and relay.ErrPeerBusy returned.
func (p *DataChannel) Send(payload []byte) error {
	err := p.tr.Send(payload)
	if errors.Is(err, webrtc.ErrQueueFull) {
		return fmt.Errorf("%w: %w", relay.ErrPeerBusy, err)
	}
	return err
}

func (p *DataChannel) Close() error { return p.tr.Close() }

// Serve forwards binary messages to deliver until the transport shuts down
// or ctx is cancelled. The transport is closed on return.
func (p *DataChannel) Serve(ctx context.Context, deliver DeliverFunc) error {
	defer p.tr.Close()

	if deliver != nil {
		p.tr.OnMessage(deliver)
	}

	select {
	case <-p.tr.Done():
		err := p.tr.Err()
		if errors.Is(err, webrtc.ErrClosed) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-ctx.Done():
		return nil
	}
}
