package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Handshake tokens. They are fixed ASCII sequences of different lengths;
// the receiver reads the shorter prefix first and only then the remainder.
const (
	TokenUp   = "HELLO-UP"
	TokenDown = "HELLO-DOWN"
)

// ErrUnrecognizedHandshake is returned when the identity token matches
// neither direction.
var ErrUnrecognizedHandshake = errors.New("protocol: unrecognized handshake")

// Token returns the identity token a connection of direction d sends.
func (d Direction) Token() string {
	if d == Down {
		return TokenDown
	}
	return TokenUp
}

// WriteHandshake sends the identity token for d. It is sent once per
// connection and never acknowledged.
func WriteHandshake(w io.Writer, d Direction) error {
	if !d.Valid() {
		return fmt.Errorf("protocol: cannot identify as %s", d)
	}
	_, err := io.WriteString(w, d.Token())
	return err
}

// ReadHandshake classifies a freshly accepted connection by reading its
// identity token. It reads len(TokenUp) bytes, and two more when those do
// not already spell TokenUp.
func ReadHandshake(r io.Reader) (Direction, error) {
	buf := make([]byte, len(TokenDown))

	head := buf[:len(TokenUp)]
	if _, err := io.ReadFull(r, head); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnrecognizedHandshake, err)
	}
	if string(head) == TokenUp {
		return Up, nil
	}
	if !bytes.HasPrefix([]byte(TokenDown), head) {
		return 0, fmt.Errorf("%w: %q", ErrUnrecognizedHandshake, head)
	}

	if _, err := io.ReadFull(r, buf[len(TokenUp):]); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnrecognizedHandshake, err)
	}
	if string(buf) == TokenDown {
		return Down, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnrecognizedHandshake, buf)
}
