// Package observe provides OpenTelemetry metrics for the audio link and a
// Prometheus exporter bridge so they can be scraped from /metrics.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) backs the
// production code paths; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/1ureka/pcmlink/internal/protocol"
)

// meterName is the instrumentation scope name used for all pcmlink metrics.
const meterName = "github.com/1ureka/pcmlink"

// Metrics holds every instrument the relay and endpoint record into.
// All fields are safe for concurrent use.
type Metrics struct {
	// Frames counts forwarded frames. Attributes: direction, leg.
	Frames metric.Int64Counter

	// Bytes counts forwarded payload bytes. Attributes: direction, leg.
	Bytes metric.Int64Counter

	// Dropped counts frames discarded because the opposite leg was absent.
	// Attributes: direction, reason.
	Dropped metric.Int64Counter

	// Connects counts established embedded connections. Attributes: direction, role.
	Connects metric.Int64Counter

	// ProtocolErrors counts connections dropped for a wire-format violation.
	// Attributes: direction, error.
	ProtocolErrors metric.Int64Counter

	// ActivePeers tracks attached peers. Attributes: direction, kind.
	ActivePeers metric.Int64UpDownCounter

	// ActiveEmbedded tracks live embedded connections. Attributes: direction.
	ActiveEmbedded metric.Int64UpDownCounter
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Frames, err = m.Int64Counter("pcmlink.frames",
		metric.WithDescription("Audio frames forwarded, by direction and leg."),
	); err != nil {
		return nil, err
	}
	if met.Bytes, err = m.Int64Counter("pcmlink.bytes",
		metric.WithDescription("PCM payload bytes forwarded, by direction and leg."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.Dropped, err = m.Int64Counter("pcmlink.frames.dropped",
		metric.WithDescription("Frames discarded because no counterpart was attached."),
	); err != nil {
		return nil, err
	}
	if met.Connects, err = m.Int64Counter("pcmlink.connects",
		metric.WithDescription("Embedded connections established, by direction and role."),
	); err != nil {
		return nil, err
	}
	if met.ProtocolErrors, err = m.Int64Counter("pcmlink.protocol_errors",
		metric.WithDescription("Connections dropped for a framing or handshake violation."),
	); err != nil {
		return nil, err
	}
	if met.ActivePeers, err = m.Int64UpDownCounter("pcmlink.active_peers",
		metric.WithDescription("Currently attached far-side peers."),
	); err != nil {
		return nil, err
	}
	if met.ActiveEmbedded, err = m.Int64UpDownCounter("pcmlink.active_embedded",
		metric.WithDescription("Currently identified embedded connections."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Call [InitProvider] before the
// first use so the instruments bind to the Prometheus exporter.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordFrame counts one forwarded frame of n payload bytes.
func (m *Metrics) RecordFrame(ctx context.Context, direction, leg string, n int) {
	attrs := metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.String("leg", leg),
	)
	m.Frames.Add(ctx, 1, attrs)
	m.Bytes.Add(ctx, int64(n), attrs)
}

// RecordDrop counts one discarded frame.
func (m *Metrics) RecordDrop(ctx context.Context, direction, reason string) {
	m.Dropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.String("reason", reason),
	))
}

// RecordConnect counts one established embedded connection.
func (m *Metrics) RecordConnect(ctx context.Context, direction, role string) {
	m.Connects.Add(ctx, 1, metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.String("role", role),
	))
}

// RecordProtocolError counts one connection dropped for err.
func (m *Metrics) RecordProtocolError(ctx context.Context, direction string, err error) {
	m.ProtocolErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.String("error", errorKind(err)),
	))
}

// PeerAttached adjusts the attached-peer gauge by delta (+1 / -1).
func (m *Metrics) PeerAttached(ctx context.Context, direction, kind string, delta int64) {
	m.ActivePeers.Add(ctx, delta, metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.String("kind", kind),
	))
}

// EmbeddedAttached adjusts the embedded-connection gauge by delta (+1 / -1).
func (m *Metrics) EmbeddedAttached(ctx context.Context, direction string, delta int64) {
	m.ActiveEmbedded.Add(ctx, delta, metric.WithAttributes(
		attribute.String("direction", direction),
	))
}

// errorKind maps protocol violations onto a small, fixed label set.
func errorKind(err error) string {
	switch {
	case errors.Is(err, protocol.ErrBadMagic):
		return "bad_magic"
	case errors.Is(err, protocol.ErrBadType):
		return "bad_type"
	case errors.Is(err, protocol.ErrZeroLength):
		return "zero_length"
	case errors.Is(err, protocol.ErrTruncated):
		return "truncated"
	case errors.Is(err, protocol.ErrUnrecognizedHandshake):
		return "handshake"
	default:
		return "other"
	}
}
