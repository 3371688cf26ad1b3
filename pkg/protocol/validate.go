package protocol

import (
	"fmt"
	"sort"
	"time"
)

// ValidateResponse checks a decoded response against its originating
// request: id match, protocol version match, and, for OK responses, exact
// signature coverage of the request's index range.
//
// A declined response (OK=false) is structurally valid; it is surfaced as a
// DeclinedError so the caller can distinguish device refusal from transport
// corruption.
func ValidateResponse(resp *Payload, req *Payload) error {
	if resp == nil || resp.Kind != KindResponse || resp.Response == nil {
		return fmt.Errorf("%w: not a response payload", ErrResponseMismatch)
	}
	if req == nil || req.Kind != KindRequest || req.Request == nil {
		return fmt.Errorf("%w: not a request payload", ErrResponseMismatch)
	}

	if resp.Response.ID != req.Request.ID {
		return fmt.Errorf("%w: response id %q does not match request id %q",
			ErrResponseMismatch, resp.Response.ID, req.Request.ID)
	}
	if resp.Version != req.Version {
		return fmt.Errorf("%w: response version %d does not match request version %d",
			ErrResponseMismatch, resp.Version, req.Version)
	}

	if !resp.Response.OK {
		return &DeclinedError{
			Code:    resp.Response.Err.Code,
			Message: resp.Response.Err.Message,
		}
	}

	n := len(req.Request.Txns)
	if len(resp.Response.Sigs) != n {
		return fmt.Errorf("%w: got %d signatures, expected %d",
			ErrResponseMismatch, len(resp.Response.Sigs), n)
	}
	seen := make([]bool, n)
	for _, sig := range resp.Response.Sigs {
		if sig.Index < 0 || sig.Index >= n {
			return fmt.Errorf("%w: signature index %d out of range [0,%d)",
				ErrResponseMismatch, sig.Index, n)
		}
		if seen[sig.Index] {
			return fmt.Errorf("%w: duplicate signature index %d", ErrResponseMismatch, sig.Index)
		}
		seen[sig.Index] = true
	}
	return nil
}

// SortSignatures returns the response signatures ordered by index. Transport
// order is not guaranteed to equal logical order, so consumers always get a
// re-sorted copy.
func SortSignatures(sigs []TxnSignature) []TxnSignature {
	sorted := make([]TxnSignature, len(sigs))
	copy(sorted, sigs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Index < sorted[j].Index
	})
	return sorted
}

// CheckFreshness rejects requests older than the expiry window or
// timestamped beyond the clock-skew allowance into the future. Evaluated
// once at acceptance time, never continuously.
func CheckFreshness(req *Payload, now time.Time) error {
	if req == nil || req.Kind != KindRequest {
		return fmt.Errorf("%w: not a request payload", ErrInvalidPayload)
	}

	ts := time.UnixMilli(req.Ts)
	if now.Sub(ts) > RequestExpiry {
		return fmt.Errorf("%w: request is %s old (limit %s)",
			ErrRequestExpired, now.Sub(ts).Truncate(time.Second), RequestExpiry)
	}
	if ts.Sub(now) > MaxClockSkew {
		return fmt.Errorf("%w: request timestamp is %s in the future (allowance %s)",
			ErrRequestExpired, ts.Sub(now).Truncate(time.Second), MaxClockSkew)
	}
	return nil
}
