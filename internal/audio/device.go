// Package audio defines the codec-hardware contract the endpoint workers
// drive, plus PCM16 helpers and a synthetic device for running an endpoint
// without real hardware.
package audio

import (
	"encoding/binary"
	"time"
)

// FrameDuration is the capture/playback window carried by one frame.
const FrameDuration = 20 * time.Millisecond

// Device is the audio codec interface. Capture and playback are independent
// directions: the uplink worker is the only caller of the capture methods and
// the downlink worker the only caller of the playback methods.
type Device interface {
	// SampleRate and Channels are fixed for the lifetime of the device.
	SampleRate() int
	Channels() int

	EnableCapture(on bool)
	EnablePlayback(on bool)
	CaptureEnabled() bool
	PlaybackEnabled() bool

	// CaptureFrame fills buf with the next block of samples. It returns false
	// when the source is temporarily not ready; the caller retries.
	CaptureFrame(buf []int16) bool

	// PlaybackFrame emits buf to the speaker.
	PlaybackFrame(buf []int16)
}

// FrameSamples returns the number of interleaved samples in one 20 ms frame.
func FrameSamples(sampleRate, channels int) int {
	if channels < 1 {
		channels = 1
	}
	return sampleRate / int(time.Second/FrameDuration) * channels
}

// NewFrameBuffer allocates a buffer sized for one frame of dev.
func NewFrameBuffer(dev Device) []int16 {
	return make([]int16, FrameSamples(dev.SampleRate(), dev.Channels()))
}

// Int16ToBytes encodes samples as little-endian PCM16 into dst, growing it
// when needed, and returns the encoded slice.
func Int16ToBytes(dst []byte, samples []int16) []byte {
	n := len(samples) * 2
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(s))
	}
	return dst
}

// BytesToInt16 decodes little-endian PCM16. A trailing odd byte is ignored.
func BytesToInt16(dst []int16, b []byte) []int16 {
	n := len(b) / 2
	if cap(dst) < n {
		dst = make([]int16, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return dst
}
