package audio

import (
	"io"
	"math"
	"sync"
	"time"

	"github.com/1ureka/pcmlink/internal/util"
)

// Tone is a synthetic Device. Capture produces a sine wave paced at real
// time, one frame per FrameDuration; playback is written as raw PCM16 to an
// optional sink and counted.
type Tone struct {
	rate     int
	channels int
	freq     float64

	// mu guards enable/disable transitions only; steady-state capture and
	// playback run on their own direction's goroutine.
	mu       sync.Mutex
	capture  bool
	playback bool

	phase    float64
	nextTick time.Time

	sink    io.Writer
	sinkErr error // first write failure; the sink is abandoned after it
	played  []byte

	playedFrames int64
}

// NewTone returns a device generating freq Hz at the given sample rate.
// sink may be nil to discard playback.
func NewTone(sampleRate, channels int, freq float64, sink io.Writer) *Tone {
	if channels < 1 {
		channels = 1
	}
	return &Tone{rate: sampleRate, channels: channels, freq: freq, sink: sink}
}

func (t *Tone) SampleRate() int { return t.rate }
func (t *Tone) Channels() int   { return t.channels }

func (t *Tone) EnableCapture(on bool) {
	t.mu.Lock()
	t.capture = on
	t.nextTick = time.Time{}
	t.mu.Unlock()
}

func (t *Tone) EnablePlayback(on bool) {
	t.mu.Lock()
	t.playback = on
	t.mu.Unlock()
}

func (t *Tone) CaptureEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.capture
}

func (t *Tone) PlaybackEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playback
}

// CaptureFrame reports not-ready until the next frame boundary is due, which
// keeps the producer at the real-time rate of a hardware codec.
func (t *Tone) CaptureFrame(buf []int16) bool {
	if !t.CaptureEnabled() {
		return false
	}

	now := time.Now()
	if t.nextTick.IsZero() {
		t.nextTick = now
	}
	if now.Before(t.nextTick) {
		return false
	}
	t.nextTick = t.nextTick.Add(FrameDuration)

	step := 2 * math.Pi * t.freq / float64(t.rate)
	for i := 0; i < len(buf); i += t.channels {
		v := int16(math.Sin(t.phase) * 0.3 * math.MaxInt16)
		for c := 0; c < t.channels && i+c < len(buf); c++ {
			buf[i+c] = v
		}
		t.phase += step
		if t.phase > 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
	return true
}

func (t *Tone) PlaybackFrame(buf []int16) {
	if !t.PlaybackEnabled() {
		return
	}
	t.playedFrames++
	if t.sink == nil || t.sinkErr != nil {
		return
	}
	t.played = Int16ToBytes(t.played, buf)
	if _, err := t.sink.Write(t.played); err != nil {
		t.sinkErr = err
		util.LogError("playback sink failed, no longer writing: %v", err)
	}
}

// SinkErr returns the write error that disabled the playback sink, if any.
// Same goroutine rules as PlayedFrames.
func (t *Tone) SinkErr() error { return t.sinkErr }

// PlayedFrames returns how many frames reached the speaker. It must be read
// from the playback goroutine or after it has stopped.
func (t *Tone) PlayedFrames() int64 { return t.playedFrames }
