package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide audio traffic counter.
var Stats = &stats{}

type stats struct {
	UpBytes    atomic.Int64 // payload bytes carried on the uplink (mic → far end)
	DownBytes  atomic.Int64 // payload bytes carried on the downlink (far end → speaker)
	UpFrames   atomic.Int64
	DownFrames atomic.Int64
	Dropped    atomic.Int64 // frames discarded because the other leg was absent
	Reconnects atomic.Int64 // cumulative connection (re)establishments
}

func (s *stats) AddUp(n int) {
	s.UpFrames.Add(1)
	s.UpBytes.Add(int64(n))
}

func (s *stats) AddDown(n int) {
	s.DownFrames.Add(1)
	s.DownBytes.Add(int64(n))
}

func (s *stats) AddDropped()   { s.Dropped.Add(1) }
func (s *stats) AddReconnect() { s.Reconnects.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// reportInterval is how often StartStatsReporter samples the counters.
const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs audio statistics
// every 10 seconds. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		var prevUp, prevDown, prevDropped, prevReconn int64
		for {
			select {
			case <-ticker.C:
				up := Stats.UpBytes.Load()
				down := Stats.DownBytes.Load()
				dropped := Stats.Dropped.Load()
				reconn := Stats.Reconnects.Load()

				upS := float64(up-prevUp) / reportInterval.Seconds()
				downS := float64(down-prevDown) / reportInterval.Seconds()

				if upS > 10 || downS > 10 || dropped != prevDropped || reconn != prevReconn {
					pterm.DefaultLogger.Info(formatStats(upS, downS, dropped-prevDropped, reconn-prevReconn))
				}

				prevUp = up
				prevDown = down
				prevDropped = dropped
				prevReconn = reconn

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(upS, downS float64, dropped, reconn int64) string {
	return fmt.Sprintf("Up: %s/s | Down: %s/s | Dropped: %3d | Reconnects: %2d",
		formatBytes(upS),
		formatBytes(downS),
		dropped,
		reconn,
	)
}
