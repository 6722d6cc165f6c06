// Package endpoint implements the embedded side of the audio link: two
// independent directional workers that dial the relay, identify themselves,
// and then stream framed PCM until the connection fails, reconnecting
// forever.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/1ureka/pcmlink/internal/audio"
	"github.com/1ureka/pcmlink/internal/observe"
	"github.com/1ureka/pcmlink/internal/protocol"
	"github.com/1ureka/pcmlink/internal/transport"
	"github.com/1ureka/pcmlink/internal/util"
)

// State is a worker's position in its connection lifecycle.
type State int32

const (
	Disconnected State = iota
	Connecting
	Identifying
	Streaming
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Identifying:
		return "identifying"
	case Streaming:
		return "streaming"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Conn is the subset of *transport.Conn a worker needs.
type Conn interface {
	WriteHandshake(d protocol.Direction) error
	WriteFrame(typ uint8, payload []byte) error
	ReadFrame() (*protocol.Frame, error)
	Close() error
}

// Dialer opens a new connection to the relay.
type Dialer func(ctx context.Context, addr string) (Conn, error)

// DialTCP is the production Dialer.
func DialTCP(ctx context.Context, addr string) (Conn, error) {
	c, err := transport.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Options configures a Worker. Zero fields take the defaults below.
type Options struct {
	Addr         string        // relay host:port
	Backoff      Backoff       // reconnect delays
	CaptureRetry time.Duration // wait while the capture source is not ready
	Dial         Dialer        // defaults to DialTCP

	// OnState, when set, is called synchronously on every transition.
	OnState func(State)
}

// DefaultCaptureRetry is the pause between capture polls while the codec has
// no frame ready.
const DefaultCaptureRetry = 5 * time.Millisecond

// Worker drives one direction of the link.
type Worker struct {
	dir  protocol.Direction
	dev  audio.Device
	opts Options

	state atomic.Int32
}

// NewUplink returns a worker that streams captured audio to the relay.
func NewUplink(dev audio.Device, opts Options) *Worker {
	return newWorker(protocol.Up, dev, opts)
}

// NewDownlink returns a worker that plays audio received from the relay.
func NewDownlink(dev audio.Device, opts Options) *Worker {
	return newWorker(protocol.Down, dev, opts)
}

func newWorker(dir protocol.Direction, dev audio.Device, opts Options) *Worker {
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff
	}
	if opts.CaptureRetry <= 0 {
		opts.CaptureRetry = DefaultCaptureRetry
	}
	if opts.Dial == nil {
		opts.Dial = DialTCP
	}
	return &Worker{dir: dir, dev: dev, opts: opts}
}

// Direction returns the flow this worker carries.
func (w *Worker) Direction() protocol.Direction { return w.dir }

// State returns the current lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
	if w.opts.OnState != nil {
		w.opts.OnState(s)
	}
}

// Run loops Connecting → Identifying → Streaming → Disconnected until ctx
// is cancelled. Every transport or protocol failure is handled here by
// reconnecting; Run only returns ctx's error.
func (w *Worker) Run(ctx context.Context) error {
	failures := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		w.setState(Connecting)
		conn, err := w.opts.Dial(ctx, w.opts.Addr)
		if err != nil {
			failures++
			w.setState(Disconnected)
			if ctx.Err() == nil {
				util.LogWarning("[%s] connect failed (attempt %d): %v", w.dir, failures, err)
			}
			if !sleep(ctx, w.opts.Backoff.Delay(failures)) {
				return ctx.Err()
			}
			continue
		}
		failures = 0

		err = w.session(ctx, conn)
		conn.Close()
		w.setState(Disconnected)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logDrop(err)

		if !sleep(ctx, w.opts.Backoff.Delay(0)) {
			return ctx.Err()
		}
	}
}

// session identifies the connection and streams until it fails.
func (w *Worker) session(ctx context.Context, conn Conn) error {
	// Unblock a pending read or write when the worker is shut down.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	w.setState(Identifying)
	if err := conn.WriteHandshake(w.dir); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	// No acknowledgement is awaited for the identity token.
	w.setState(Streaming)
	util.LogSuccess("[%s] streaming to %s", w.dir, w.opts.Addr)
	util.Stats.AddReconnect()
	observe.DefaultMetrics().RecordConnect(ctx, w.dir.String(), "endpoint")

	if w.dir == protocol.Up {
		return w.streamUp(ctx, conn)
	}
	return w.streamDown(ctx, conn)
}

// streamUp captures, frames and sends one 20 ms block at a time.
func (w *Worker) streamUp(ctx context.Context, conn Conn) error {
	buf := audio.NewFrameBuffer(w.dev)
	var payload []byte

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Enabled lazily and left on across reconnects.
		if !w.dev.CaptureEnabled() {
			w.dev.EnableCapture(true)
		}
		if !w.dev.CaptureFrame(buf) {
			if !sleep(ctx, w.opts.CaptureRetry) {
				return ctx.Err()
			}
			continue
		}

		payload = audio.Int16ToBytes(payload, buf)
		if err := conn.WriteFrame(protocol.TypeUp, payload); err != nil {
			return err
		}

		util.Stats.AddUp(len(payload))
		observe.DefaultMetrics().RecordFrame(ctx, "up", "endpoint", len(payload))
	}
}

// streamDown receives frames in order and hands each one to the speaker.
func (w *Worker) streamDown(ctx context.Context, conn Conn) error {
	var samples []int16

	for {
		f, err := conn.ReadFrame()
		if err != nil {
			return err
		}
		if f.Type != protocol.TypeDown {
			return fmt.Errorf("%w: %d on downlink", protocol.ErrBadType, f.Type)
		}

		if !w.dev.PlaybackEnabled() {
			w.dev.EnablePlayback(true)
		}
		samples = audio.BytesToInt16(samples, f.Payload)
		w.dev.PlaybackFrame(samples)

		util.Stats.AddDown(len(f.Payload))
		observe.DefaultMetrics().RecordFrame(ctx, "down", "endpoint", len(f.Payload))
	}
}

func (w *Worker) logDrop(err error) {
	var ioErr *transport.IOError
	switch {
	case errors.As(err, &ioErr), errors.Is(err, transport.ErrBroken):
		util.LogWarning("[%s] connection lost: %v", w.dir, err)
	case err != nil:
		util.LogWarning("[%s] dropping connection: %v", w.dir, err)
		observe.DefaultMetrics().RecordProtocolError(context.Background(), w.dir.String(), err)
	}
}

// sleep waits d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
