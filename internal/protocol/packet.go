// Package protocol defines the PCM0 wire frame and the direction handshake
// exchanged between an audio endpoint and the relay.
package protocol

import "fmt"

// Magic is the frame marker, "PCM0" when read as little-endian bytes.
const Magic uint32 = 0x304D4350

// Frame type constants.
const (
	TypeUp   uint8 = 0x01 // capture → far end (microphone uplink)
	TypeDown uint8 = 0x02 // far end → playback (speaker downlink)
)

// HeaderSize is the fixed header size: Magic(4) + Type(1) + Len(2), not padded.
const HeaderSize = 7

// MaxPayload is the largest payload the 16-bit length field can describe.
const MaxPayload = 0xFFFF

// Frame is one unit of framed PCM16 payload on the wire.
type Frame struct {
	Type    uint8  // TypeUp or TypeDown
	Payload []byte // raw PCM16 mono samples, len(Payload) == header len
}

// Direction identifies one of the two independent audio flows.
type Direction uint8

const (
	Up   Direction = 1 // endpoint microphone → peer
	Down Direction = 2 // peer → endpoint speaker
)

// Directions lists both flows in a stable order.
var Directions = [...]Direction{Up, Down}

// FrameType returns the frame type carried on a connection of this direction.
func (d Direction) FrameType() uint8 {
	return uint8(d)
}

// Valid reports whether d is Up or Down.
func (d Direction) Valid() bool {
	return d == Up || d == Down
}

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// ParseDirection converts "up" or "down" into a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "up", "uplink":
		return Up, nil
	case "down", "downlink":
		return Down, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}
