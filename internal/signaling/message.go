package signaling

// MessageType identifies the kind of signaling message.
type MessageType string

const (
	MsgTypeOffer     MessageType = "offer"
	MsgTypeAnswer    MessageType = "answer"
	MsgTypeCandidate MessageType = "candidate"
	MsgTypeError     MessageType = "error"
)

// Message is the JSON structure exchanged over the /rtc WebSocket during
// signaling.
type Message struct {
	Type      MessageType `json:"type"`
	SDP       string      `json:"sdp,omitempty"`
	Candidate string      `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
	Error     string      `json:"error,omitempty"`
}
