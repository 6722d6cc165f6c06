package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	pion "github.com/pion/webrtc/v4"

	"github.com/1ureka/pcmlink/internal/webrtc"
)

// receiver applies the browser's answer and trickled candidates.
type receiver struct {
	tr   *webrtc.Transport
	conn wsReader
}

type wsReader interface {
	ReadJSON(v any) error
}

// watch runs until the WebSocket fails or the browser reports an error.
func (r *receiver) watch() error {
	for {
		var msg Message
		if err := r.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed to read WS message: %w", err)
		}

		switch msg.Type {
		case MsgTypeAnswer:
			if err := r.tr.SetRemoteDescription(pion.SessionDescription{
				Type: pion.SDPTypeAnswer, SDP: msg.SDP,
			}); err != nil {
				return err
			}

		case MsgTypeCandidate:
			var init pion.ICECandidateInit
			if err := json.Unmarshal([]byte(msg.Candidate), &init); err != nil {
				return fmt.Errorf("failed to parse ICE candidate: %w", err)
			}
			if err := r.tr.AddICECandidate(init); err != nil {
				return err
			}

		case MsgTypeError:
			return errors.New("remote: " + msg.Error)
		}
	}
}
