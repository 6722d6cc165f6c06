package webrtc

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pcmlink/internal/util"
)

const (
	highWaterMark  = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark   = 64 * 1024  // resume sending when bufferedAmount drops below this
	sendBufferSize = 64         // outgoing message channel capacity
)

// sender is a goroutine-based message writer that serializes all writes to a
// single DataChannel, adding open-gate and backpressure control.
type sender struct {
	inbox       chan []byte
	drainSignal chan struct{}
}

// newSender creates a sender, wires the backpressure callbacks on dc, and
// starts the background loop. The loop exits when ctx is cancelled; a failed
// write calls fail.
func newSender(ctx context.Context, dc *webrtc.DataChannel, openSignal <-chan struct{}, fail func(error)) *sender {
	s := &sender{
		inbox:       make(chan []byte, sendBufferSize),
		drainSignal: make(chan struct{}, 1),
	}

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case s.drainSignal <- struct{}{}:
		default:
		}
	})

	go s.loop(ctx, dc, openSignal, fail)

	return s
}

// loop waits for the DataChannel to open, then drains the inbox with
// backpressure awareness.
func (s *sender) loop(ctx context.Context, dc *webrtc.DataChannel, openSignal <-chan struct{}, fail func(error)) {
	select {
	case <-openSignal:
	case <-ctx.Done():
		return
	}

	for {
		select {
		case msg := <-s.inbox:
			if dc.BufferedAmount() > uint64(highWaterMark) {
				select {
				case <-s.drainSignal:
				case <-ctx.Done():
					return
				}
			}

			if err := dc.Send(msg); err != nil {
				util.LogError("DataChannel send failed (%d bytes): %v", len(msg), err)
				fail(err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// send enqueues one message without blocking. A full inbox means the channel
// is not keeping up, and the message is refused with ErrQueueFull.
func (s *sender) send(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.inbox <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}
