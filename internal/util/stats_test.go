package util

import "testing"

func TestFormatBytes(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{48000, "46.9 KiB"},
		{5 * 1024 * 1024, " 5.0 MiB"},
	}

	for _, tc := range testCases {
		if got := formatBytes(tc.in); got != tc.want {
			t.Errorf("formatBytes(%v) = %q, want %q", tc.in, got, tc.want)
		}
		if len(formatBytes(tc.in)) != 8 {
			t.Errorf("formatBytes(%v) is not 8 chars wide", tc.in)
		}
	}
}

func TestStatsCounters(t *testing.T) {
	s := &stats{}
	s.AddUp(640)
	s.AddUp(640)
	s.AddDown(960)
	s.AddDropped()

	if s.UpFrames.Load() != 2 || s.UpBytes.Load() != 1280 {
		t.Errorf("uplink counters: frames=%d bytes=%d", s.UpFrames.Load(), s.UpBytes.Load())
	}
	if s.DownFrames.Load() != 1 || s.DownBytes.Load() != 960 {
		t.Errorf("downlink counters: frames=%d bytes=%d", s.DownFrames.Load(), s.DownBytes.Load())
	}
	if s.Dropped.Load() != 1 {
		t.Errorf("dropped: %d", s.Dropped.Load())
	}
}
