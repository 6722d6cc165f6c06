package webrtc

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestICEServers(t *testing.T) {
	if got := (Config{}).iceServers(); len(got) != 1 || len(got[0].URLs) != len(DefaultSTUNServers) {
		t.Errorf("nil list: %+v, want the default STUN servers", got)
	}
	if got := (Config{ICEServers: []string{}}).iceServers(); got != nil {
		t.Errorf("empty list: %+v, want none", got)
	}
	if got := (Config{ICEServers: []string{"stun:example.org:3478"}}).iceServers(); got[0].URLs[0] != "stun:example.org:3478" {
		t.Errorf("custom list: %+v", got)
	}
}

func TestTransportLifecycle(t *testing.T) {
	tr, err := NewTransport(context.Background(), Config{ICEServers: []string{}})
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}

	if tr.dc.Label() != ChannelLabel || !tr.dc.Ordered() {
		t.Errorf("channel label=%q ordered=%v", tr.dc.Label(), tr.dc.Ordered())
	}
	if id := tr.dc.ID(); id == nil || *id != 0 {
		t.Errorf("channel id = %v, want 0", id)
	}

	// Queued until the channel opens.
	if err := tr.Send([]byte{1, 2}); err != nil {
		t.Fatalf("Send before open: %v", err)
	}
	if tr.Err() != nil {
		t.Fatalf("Err() = %v on a live transport", tr.Err())
	}

	tr.Close()
	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed")
	}
	if !errors.Is(tr.Err(), ErrClosed) {
		t.Errorf("Err() = %v, want ErrClosed", tr.Err())
	}
	if err := tr.Send([]byte{3}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
}

func TestSendDropsWhenQueueFull(t *testing.T) {
	tr, err := NewTransport(context.Background(), Config{ICEServers: []string{}})
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	// Never opened, so nothing drains the queue.
	for i := range sendBufferSize {
		if err := tr.Send([]byte{byte(i)}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	done := make(chan error, 1)
	go func() { done <- tr.Send([]byte{0xff}) }()
	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueFull) {
			t.Fatalf("Send on a full queue = %v, want ErrQueueFull", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a full queue")
	}
	if tr.Err() != nil {
		t.Errorf("a full queue ended the transport: %v", tr.Err())
	}
}

func TestTransportFollowsParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr, err := NewTransport(ctx, Config{ICEServers: []string{}})
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	cancel()
	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("transport outlived its parent context")
	}
	if !errors.Is(tr.Err(), context.Canceled) {
		t.Errorf("Err() = %v, want context.Canceled", tr.Err())
	}
}
