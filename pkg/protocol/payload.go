package protocol

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Version is the current wire protocol version. Checked for exact equality,
// there is no negotiation between devices.
const Version = 1

const (
	// RequestExpiry is how old a request may be before it is rejected at
	// acceptance time.
	RequestExpiry = 10 * time.Minute

	// MaxClockSkew is how far into the future a request timestamp may be.
	// The two devices have no time sync, so a small allowance is required.
	MaxClockSkew = 30 * time.Second
)

// Kind discriminates the payload union. It is validated before any other
// field is trusted.
type Kind string

const (
	KindRequest   Kind = "sign_request"
	KindResponse  Kind = "sign_response"
	KindPairing   Kind = "pairing"
	KindKeyExport Kind = "key_export"
)

// Payload is the envelope carried inside optical frames. Exactly one of the
// body pointers is set, matching Kind.
type Payload struct {
	Kind    Kind  `json:"kind"`
	Version int   `json:"version"`
	Ts      int64 `json:"ts"` // milliseconds since epoch

	Request   *Request   `json:"request,omitempty"`
	Response  *Response  `json:"response,omitempty"`
	Pairing   *Pairing   `json:"pairing,omitempty"`
	KeyExport *KeyExport `json:"keyExport,omitempty"`
}

// SignableTxn is one member of an atomic transaction group.
type SignableTxn struct {
	// Index is the 0-based position in the group. Indices are unique and
	// contiguous across the request.
	Index int `json:"index"`
	// Blob is the unsigned transaction, base64 (std) encoded msgpack.
	Blob string `json:"blob"`
	// Signer is the address whose signature is required.
	Signer string `json:"signer"`
	// AuthAddr is set when Signer has been rekeyed to a different key.
	AuthAddr string `json:"authAddr,omitempty"`
}

// RequestMeta is optional display metadata attached by the requesting app.
type RequestMeta struct {
	AppName     string `json:"appName,omitempty"`
	Description string `json:"description,omitempty"`
}

// Request asks the signer device to sign an ordered transaction group.
type Request struct {
	ID          string        `json:"id"`
	NetworkID   string        `json:"networkId"`
	GenesisHash string        `json:"genesisHash"`
	Txns        []SignableTxn `json:"txns"`
	Meta        *RequestMeta  `json:"meta,omitempty"`
}

// TxnSignature is one signature in a successful response.
type TxnSignature struct {
	Index int    `json:"index"`
	Blob  string `json:"blob"` // base64 (std) encoded signed transaction
}

// ResponseError describes why the signer device refused a request.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response answers a Request. OK responses carry signatures covering exactly
// the request's index range; failed responses carry Err instead.
type Response struct {
	ID   string         `json:"id"`
	OK   bool           `json:"ok"`
	Sigs []TxnSignature `json:"sigs,omitempty"`
	Err  *ResponseError `json:"error,omitempty"`
}

// PairedAccount is one account a signer device can sign for.
type PairedAccount struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"` // base64 (std) ed25519 public key
	Label     string `json:"label,omitempty"`
	// Proof is a base64 ed25519 signature over deviceID|address, produced by
	// the account key held on the device. Present on transfer confirmations.
	Proof string `json:"proof,omitempty"`
}

// Pairing is exported when a signer device is set up so the wallet device
// can recognize it later, and echoed back as the confirmation in the
// transfer-account flow.
type Pairing struct {
	DeviceID   string          `json:"deviceId"`
	DeviceName string          `json:"deviceName,omitempty"`
	Accounts   []PairedAccount `json:"accounts"`
}

// KeyExport carries a private key from the wallet device to a signer device
// during account transfer. The key is sealed under a one-time code; the raw
// key never appears on the optical channel.
type KeyExport struct {
	Address string `json:"address"`
	Sealed  string `json:"sealed"` // base64 (std) chacha20poly1305 ciphertext
	Salt    string `json:"salt"`   // base64 (std) argon2id salt
	Nonce   string `json:"nonce"`  // base64 (std) 24-byte nonce
}

// NewRequest builds a sign_request payload with a fresh id and the current
// timestamp.
func NewRequest(networkID, genesisHash string, txns []SignableTxn, meta *RequestMeta) *Payload {
	return &Payload{
		Kind:    KindRequest,
		Version: Version,
		Ts:      time.Now().UnixMilli(),
		Request: &Request{
			ID:          uuid.NewString(),
			NetworkID:   networkID,
			GenesisHash: genesisHash,
			Txns:        txns,
			Meta:        meta,
		},
	}
}

// NewResponse builds a successful sign_response for the given request id.
func NewResponse(requestID string, sigs []TxnSignature) *Payload {
	return &Payload{
		Kind:    KindResponse,
		Version: Version,
		Ts:      time.Now().UnixMilli(),
		Response: &Response{
			ID:   requestID,
			OK:   true,
			Sigs: sigs,
		},
	}
}

// NewErrorResponse builds a declined sign_response for the given request id.
func NewErrorResponse(requestID, code, message string) *Payload {
	return &Payload{
		Kind:    KindResponse,
		Version: Version,
		Ts:      time.Now().UnixMilli(),
		Response: &Response{
			ID:  requestID,
			OK:  false,
			Err: &ResponseError{Code: code, Message: message},
		},
	}
}

// NewPairing builds a pairing payload for this signer device.
func NewPairing(deviceID, deviceName string, accounts []PairedAccount) *Payload {
	return &Payload{
		Kind:    KindPairing,
		Version: Version,
		Ts:      time.Now().UnixMilli(),
		Pairing: &Pairing{
			DeviceID:   deviceID,
			DeviceName: deviceName,
			Accounts:   accounts,
		},
	}
}

// NewKeyExport builds a key_export payload.
func NewKeyExport(address, sealed, salt, nonce string) *Payload {
	return &Payload{
		Kind:    KindKeyExport,
		Version: Version,
		Ts:      time.Now().UnixMilli(),
		KeyExport: &KeyExport{
			Address: address,
			Sealed:  sealed,
			Salt:    salt,
			Nonce:   nonce,
		},
	}
}

// Validate checks that the payload is internally consistent: the kind
// discriminant names a known kind, exactly the matching body is present,
// and per-kind invariants hold. Version equality is checked separately so
// callers can distinguish ErrVersionMismatch from ErrInvalidPayload.
func (p *Payload) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil payload", ErrInvalidPayload)
	}

	switch p.Kind {
	case KindRequest:
		if p.Request == nil {
			return fmt.Errorf("%w: missing request body", ErrInvalidPayload)
		}
		return p.Request.validate()
	case KindResponse:
		if p.Response == nil {
			return fmt.Errorf("%w: missing response body", ErrInvalidPayload)
		}
		return p.Response.validate()
	case KindPairing:
		if p.Pairing == nil {
			return fmt.Errorf("%w: missing pairing body", ErrInvalidPayload)
		}
		return p.Pairing.validate()
	case KindKeyExport:
		if p.KeyExport == nil {
			return fmt.Errorf("%w: missing keyExport body", ErrInvalidPayload)
		}
		return p.KeyExport.validate()
	case "":
		return fmt.Errorf("%w: missing kind discriminant", ErrInvalidPayload)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPayload, p.Kind)
	}
}

func (r *Request) validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: request id is empty", ErrInvalidPayload)
	}
	if r.GenesisHash == "" {
		return fmt.Errorf("%w: request genesisHash is empty", ErrInvalidPayload)
	}
	if len(r.Txns) == 0 {
		return fmt.Errorf("%w: request has no transactions", ErrInvalidPayload)
	}

	// Indices must form the contiguous range 0..n-1 with no duplicates.
	seen := make([]bool, len(r.Txns))
	for _, txn := range r.Txns {
		if txn.Index < 0 || txn.Index >= len(r.Txns) {
			return fmt.Errorf("%w: txn index %d out of range [0,%d)", ErrInvalidPayload, txn.Index, len(r.Txns))
		}
		if seen[txn.Index] {
			return fmt.Errorf("%w: duplicate txn index %d", ErrInvalidPayload, txn.Index)
		}
		seen[txn.Index] = true
		if txn.Blob == "" {
			return fmt.Errorf("%w: txn %d has empty blob", ErrInvalidPayload, txn.Index)
		}
		if txn.Signer == "" {
			return fmt.Errorf("%w: txn %d has empty signer", ErrInvalidPayload, txn.Index)
		}
	}
	return nil
}

func (r *Response) validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: response id is empty", ErrInvalidPayload)
	}
	if r.OK {
		if len(r.Sigs) == 0 {
			return fmt.Errorf("%w: ok response has no signatures", ErrInvalidPayload)
		}
		if r.Err != nil {
			return fmt.Errorf("%w: ok response carries an error", ErrInvalidPayload)
		}
	} else {
		if r.Err == nil {
			return fmt.Errorf("%w: failed response has no error", ErrInvalidPayload)
		}
		if len(r.Sigs) != 0 {
			return fmt.Errorf("%w: failed response carries signatures", ErrInvalidPayload)
		}
	}
	return nil
}

func (pr *Pairing) validate() error {
	if pr.DeviceID == "" {
		return fmt.Errorf("%w: pairing deviceId is empty", ErrInvalidPayload)
	}
	if len(pr.Accounts) == 0 {
		return fmt.Errorf("%w: pairing has no accounts", ErrInvalidPayload)
	}
	for i, acct := range pr.Accounts {
		if acct.Address == "" {
			return fmt.Errorf("%w: pairing account %d has empty address", ErrInvalidPayload, i)
		}
		if acct.PublicKey == "" {
			return fmt.Errorf("%w: pairing account %d has empty public key", ErrInvalidPayload, i)
		}
	}
	return nil
}

func (ke *KeyExport) validate() error {
	if ke.Address == "" {
		return fmt.Errorf("%w: keyExport address is empty", ErrInvalidPayload)
	}
	if ke.Sealed == "" {
		return fmt.Errorf("%w: keyExport sealed blob is empty", ErrInvalidPayload)
	}
	if ke.Salt == "" {
		return fmt.Errorf("%w: keyExport salt is empty", ErrInvalidPayload)
	}
	if ke.Nonce == "" {
		return fmt.Errorf("%w: keyExport nonce is empty", ErrInvalidPayload)
	}
	return nil
}
