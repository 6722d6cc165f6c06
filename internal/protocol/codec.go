package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Protocol violations. A connection that produces one of these is dropped;
// no attempt is made to resynchronize within the byte stream.
var (
	ErrBadMagic        = errors.New("protocol: bad magic")
	ErrBadType         = errors.New("protocol: bad frame type")
	ErrZeroLength      = errors.New("protocol: zero payload length")
	ErrTruncated       = errors.New("protocol: truncated frame")
	ErrPayloadTooLarge = errors.New("protocol: payload exceeds 65535 bytes")
)

// Encode serializes a frame header followed by payload. It panics if
// payload exceeds MaxPayload, since the length field cannot represent it;
// use WriteFrame or CheckPayload for untrusted sizes. An empty payload is
// encoded as is and rejected by Decode.
func Encode(typ uint8, payload []byte) []byte {
	if len(payload) > MaxPayload {
		panic(fmt.Sprintf("protocol: Encode of %d bytes exceeds MaxPayload", len(payload)))
	}
	buf := make([]byte, HeaderSize+len(payload))
	putHeader(buf, typ, len(payload))
	copy(buf[HeaderSize:], payload)
	return buf
}

func putHeader(buf []byte, typ uint8, n int) {
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	buf[4] = typ
	binary.LittleEndian.PutUint16(buf[5:7], uint16(n))
}

// Decode deserializes one complete frame from data. Bytes beyond the
// declared length are ignored. The returned payload does not alias data.
func Decode(data []byte) (*Frame, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: %d bytes (need at least %d)", ErrTruncated, len(data), HeaderSize)
	}
	if m := binary.LittleEndian.Uint32(data[0:4]); m != Magic {
		return nil, fmt.Errorf("%w: %08x", ErrBadMagic, m)
	}
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes (need at least %d)", ErrTruncated, len(data), HeaderSize)
	}

	typ, n, err := parseHeader(data[:HeaderSize])
	if err != nil {
		return nil, err
	}
	if len(data) < HeaderSize+n {
		return nil, fmt.Errorf("%w: have %d of %d payload bytes", ErrTruncated, len(data)-HeaderSize, n)
	}

	pkt := &Frame{Type: typ, Payload: make([]byte, n)}
	copy(pkt.Payload, data[HeaderSize:HeaderSize+n])
	return pkt, nil
}

// parseHeader validates a 7-byte header and returns its type and length.
func parseHeader(hdr []byte) (uint8, int, error) {
	if m := binary.LittleEndian.Uint32(hdr[0:4]); m != Magic {
		return 0, 0, fmt.Errorf("%w: %08x", ErrBadMagic, m)
	}
	typ := hdr[4]
	if typ != TypeUp && typ != TypeDown {
		return 0, 0, fmt.Errorf("%w: %d", ErrBadType, typ)
	}
	n := int(binary.LittleEndian.Uint16(hdr[5:7]))
	if n == 0 {
		return 0, 0, ErrZeroLength
	}
	return typ, n, nil
}

// ReadFrame reads exactly one frame from r: the fixed header, then exactly
// the declared number of payload bytes.
//
// A stream that ends before the first header byte returns io.EOF; one that
// ends anywhere inside a frame returns an error wrapping ErrTruncated.
func ReadFrame(r io.Reader) (*Frame, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, truncated(err)
	}

	typ, n, err := parseHeader(hdr[:])
	if err != nil {
		return nil, err
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, truncated(err)
	}

	return &Frame{Type: typ, Payload: payload}, nil
}

// WriteFrame writes header and payload to w with a single Write call.
func WriteFrame(w io.Writer, typ uint8, payload []byte) error {
	if err := CheckPayload(payload); err != nil {
		return err
	}
	_, err := w.Write(Encode(typ, payload))
	return err
}

// CheckPayload reports whether payload fits in a single data frame.
func CheckPayload(payload []byte) error {
	switch {
	case len(payload) == 0:
		return ErrZeroLength
	case len(payload) > MaxPayload:
		return fmt.Errorf("%w: %d", ErrPayloadTooLarge, len(payload))
	}
	return nil
}

func truncated(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrTruncated, err)
	}
	return err
}
