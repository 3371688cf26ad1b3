package persistence

import (
	"github.com/xarmian/voi-wallet-sub002/pkg/types"
)

// DeviceState is the durable identity of this device in the air-gapped pair.
type DeviceState struct {
	// Role is the part this device plays: wallet or signer.
	Role types.DeviceRole `json:"role"`

	// DeviceID identifies this device in pairing payloads. Generated once
	// when the role is first set to signer.
	DeviceID string `json:"deviceId,omitempty"`

	// DeviceName is the user-visible name exported in pairing payloads.
	DeviceName string `json:"deviceName,omitempty"`
}

// PairedSignerRecord describes an air-gapped signer device the wallet device
// has imported a pairing from. Owned by the wallet device; created on
// pairing import, updated on every matched response, deleted only by
// explicit user action.
type PairedSignerRecord struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName,omitempty"`

	// Addresses is the set of account addresses this device can sign for.
	Addresses []string `json:"addresses"`

	// LastActivity is the Unix timestamp (ms) of the last completed
	// signature matched to this device.
	LastActivity int64 `json:"lastActivity"`
}

// ProcessedRequest is one entry of the replay-prevention ledger kept by the
// signer device. Additive-only during normal operation; survives restarts.
type ProcessedRequest struct {
	RequestID string `json:"requestId"`

	// ProcessedAt is the Unix timestamp (ms) when the request was signed.
	// Used only by maintenance pruning.
	ProcessedAt int64 `json:"processedAt"`
}

// CanSignFor reports whether the paired device holds the key for an address.
func (r *PairedSignerRecord) CanSignFor(address string) bool {
	if r == nil {
		return false
	}
	for _, addr := range r.Addresses {
		if addr == address {
			return true
		}
	}
	return false
}
