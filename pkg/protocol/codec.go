package protocol

import (
	"encoding/json"
	"fmt"
)

// SingleFrameCapacity is the number of encoded payload bytes that fit in one
// optical frame at the chosen error-correction level. Payloads above this go
// through the multi-frame fountain transport.
const SingleFrameCapacity = 800

// Encode serializes a payload to its compact textual wire form. The output
// round-trips exactly through Decode.
func Encode(p *Payload) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return string(data), nil
}

// Decode parses a textual wire form back into a payload. The kind
// discriminant is validated before any other field is trusted. Unknown extra
// fields are tolerated for forward compatibility.
func Decode(text string) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if p.Version == 0 {
		return nil, fmt.Errorf("%w: missing protocol version", ErrInvalidPayload)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Version != Version {
		return nil, fmt.Errorf("%w: got version %d, expected %d", ErrVersionMismatch, p.Version, Version)
	}

	return &p, nil
}

// PayloadSize returns the size of the encoded form in bytes. Byte length,
// not character count, is what the optical channel is constrained by.
func PayloadSize(p *Payload) (int, error) {
	encoded, err := Encode(p)
	if err != nil {
		return 0, err
	}
	return len(encoded), nil
}

// NeedsMultiFrame reports whether the payload's encoded form exceeds the
// single-frame capacity and must go through the fountain transport.
func NeedsMultiFrame(p *Payload) (bool, error) {
	size, err := PayloadSize(p)
	if err != nil {
		return false, err
	}
	return size > SingleFrameCapacity, nil
}
