package audio

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestFrameSamples(t *testing.T) {
	testCases := []struct {
		rate, channels, want int
	}{
		{24000, 1, 480},
		{16000, 1, 320},
		{48000, 2, 1920},
		{8000, 0, 160},
	}
	for _, tc := range testCases {
		if got := FrameSamples(tc.rate, tc.channels); got != tc.want {
			t.Errorf("FrameSamples(%d, %d) = %d, want %d", tc.rate, tc.channels, got, tc.want)
		}
	}
}

func TestPCMConversionRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234}
	b := Int16ToBytes(nil, samples)
	if !bytes.Equal(b[:4], []byte{0x00, 0x00, 0x01, 0x00}) {
		t.Fatalf("not little-endian: % x", b[:4])
	}

	got := BytesToInt16(nil, b)
	if len(got) != len(samples) {
		t.Fatalf("length: got %d, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], samples[i])
		}
	}
}

func TestTonePacesCapture(t *testing.T) {
	dev := NewTone(24000, 1, 440, nil)
	buf := NewFrameBuffer(dev)

	if dev.CaptureFrame(buf) {
		t.Fatal("capture must not produce frames while disabled")
	}

	dev.EnableCapture(true)
	if !dev.CaptureFrame(buf) {
		t.Fatal("first frame should be ready immediately")
	}
	if dev.CaptureFrame(buf) {
		t.Fatal("second frame should not be ready before the next 20ms boundary")
	}

	time.Sleep(FrameDuration + 5*time.Millisecond)
	if !dev.CaptureFrame(buf) {
		t.Fatal("frame should be ready after one frame duration")
	}

	var nonZero bool
	for _, s := range buf {
		if s != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Error("tone produced silence")
	}
}

func TestTonePlaybackSink(t *testing.T) {
	var sink bytes.Buffer
	dev := NewTone(24000, 1, 440, &sink)

	dev.PlaybackFrame([]int16{1, 2})
	if sink.Len() != 0 {
		t.Fatal("playback must be dropped while disabled")
	}

	dev.EnablePlayback(true)
	dev.PlaybackFrame([]int16{1, 2})
	if !bytes.Equal(sink.Bytes(), []byte{1, 0, 2, 0}) {
		t.Fatalf("sink: got % x", sink.Bytes())
	}
	if dev.PlayedFrames() != 1 {
		t.Errorf("PlayedFrames = %d, want 1", dev.PlayedFrames())
	}
}

type failingWriter struct{ writes int }

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	return 0, errors.New("disk full")
}

func TestTonePlaybackSinkFailure(t *testing.T) {
	sink := &failingWriter{}
	dev := NewTone(24000, 1, 440, sink)
	dev.EnablePlayback(true)

	dev.PlaybackFrame([]int16{1})
	dev.PlaybackFrame([]int16{2})

	if dev.SinkErr() == nil {
		t.Fatal("write failure not recorded")
	}
	if sink.writes != 1 {
		t.Errorf("sink written %d times after failing, want 1", sink.writes)
	}
	if dev.PlayedFrames() != 2 {
		t.Errorf("PlayedFrames = %d, want 2", dev.PlayedFrames())
	}
}
