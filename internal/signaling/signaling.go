// Package signaling serves the relay's HTTP surface: the browser client, the
// PCM WebSocket peer endpoint, WebRTC offer/answer signaling, and status
// routes.
package signaling

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	pion "github.com/pion/webrtc/v4"

	"github.com/1ureka/pcmlink/internal/util"
	"github.com/1ureka/pcmlink/internal/webrtc"
)

// Negotiate performs the offering side of the SDP/ICE exchange over an
// established WebSocket:
//  1. Trickle local ICE candidates to the browser
//  2. Send the Offer
//  3. Apply the Answer and remote candidates as they arrive
//  4. Return once the DataChannel is open
//
// The WebSocket is no longer read after Negotiate returns; the caller closes
// it.
func Negotiate(ctx context.Context, wsConn *websocket.Conn, tr *webrtc.Transport) error {
	s := &sender{tr: tr, conn: wsConn}
	r := &receiver{tr: tr, conn: wsConn}

	tr.OnICECandidate(func(c *pion.ICECandidate) {
		if c != nil {
			data, _ := json.Marshal(c.ToJSON())
			// Best effort: a lost candidate only narrows the pairs ICE can try.
			s.sendCandidate(string(data))
		}
	})

	// Exits when wsConn is closed by the caller.
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.watch()
	}()

	if err := s.sendOffer(); err != nil {
		return fmt.Errorf("failed to send Offer: %w", err)
	}

	select {
	case <-tr.Ready():
		util.LogDebug("WebRTC DataChannel established")
		return nil

	case err := <-errCh:
		return fmt.Errorf("signaling failed: %w", err)

	case <-tr.Done():
		return fmt.Errorf("signaling failed: %w", tr.Err())

	case <-ctx.Done():
		s.sendError(ctx.Err())
		return ctx.Err()
	}
}
