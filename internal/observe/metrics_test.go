package observe

import (
	"context"
	"fmt"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/1ureka/pcmlink/internal/protocol"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the int64 sum data point whose attribute key has value.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestRecordFrame(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFrame(ctx, "up", "peer", 640)
	m.RecordFrame(ctx, "up", "peer", 640)
	m.RecordFrame(ctx, "down", "embedded", 960)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "pcmlink.frames", "direction", "up"); got != 2 {
		t.Errorf("up frames = %d, want 2", got)
	}
	if got := sumFor(t, rm, "pcmlink.bytes", "direction", "down"); got != 960 {
		t.Errorf("down bytes = %d, want 960", got)
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.PeerAttached(ctx, "down", "websocket", 1)
	m.PeerAttached(ctx, "down", "websocket", 1)
	m.PeerAttached(ctx, "down", "websocket", -1)
	m.EmbeddedAttached(ctx, "up", 1)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "pcmlink.active_peers", "kind", "websocket"); got != 1 {
		t.Errorf("active peers = %d, want 1", got)
	}
	if got := sumFor(t, rm, "pcmlink.active_embedded", "direction", "up"); got != 1 {
		t.Errorf("active embedded = %d, want 1", got)
	}
}

func TestRecordProtocolError(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProtocolError(ctx, "down", fmt.Errorf("read: %w", protocol.ErrBadMagic))

	rm := collect(t, reader)
	if got := sumFor(t, rm, "pcmlink.protocol_errors", "error", "bad_magic"); got != 1 {
		t.Errorf("bad_magic errors = %d, want 1", got)
	}
}

func TestErrorKind(t *testing.T) {
	testCases := []struct {
		err  error
		want string
	}{
		{protocol.ErrBadMagic, "bad_magic"},
		{protocol.ErrBadType, "bad_type"},
		{protocol.ErrZeroLength, "zero_length"},
		{fmt.Errorf("%w: short", protocol.ErrTruncated), "truncated"},
		{protocol.ErrUnrecognizedHandshake, "handshake"},
		{fmt.Errorf("boom"), "other"},
	}
	for _, tc := range testCases {
		if got := errorKind(tc.err); got != tc.want {
			t.Errorf("errorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
