package protocol

import (
	"errors"
	"fmt"
)

// Protocol error taxonomy. Validation failures are resolved locally by the
// caller and never retried automatically.
var (
	// ErrMalformedPayload means the text is not well-formed structured data.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrInvalidPayload means required fields (kind discriminant, version) are
	// absent or inconsistent with the declared kind.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrVersionMismatch means the payload's protocol version is not the
	// version this build speaks. There is no negotiation.
	ErrVersionMismatch = errors.New("protocol version mismatch")

	// ErrResponseMismatch means a response does not match its originating
	// request (id, version, or signature index coverage).
	ErrResponseMismatch = errors.New("response does not match request")

	// ErrRequestExpired means a request is older than the expiry window or
	// timestamped too far into the future.
	ErrRequestExpired = errors.New("request expired")

	// ErrRequestReplayed means this device has already produced a response
	// for the request id.
	ErrRequestReplayed = errors.New("request already processed")

	// ErrRequestDeclined means the signer device answered with an explicit
	// error response. The response is structurally valid.
	ErrRequestDeclined = errors.New("request declined by signer")
)

// DeclinedError carries the error payload of a structurally valid OK=false
// response. It matches ErrRequestDeclined under errors.Is.
type DeclinedError struct {
	Code    string
	Message string
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("request declined by signer: %s (%s)", e.Message, e.Code)
}

// Is makes errors.Is(err, ErrRequestDeclined) true for DeclinedError values.
func (e *DeclinedError) Is(target error) bool {
	return target == ErrRequestDeclined
}
