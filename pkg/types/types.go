package types

// AccountType describes where the signing authority for an account lives.
type AccountType string

const (
	// AccountTypeLocal is a software account whose ed25519 key is held in the
	// on-device keystore.
	AccountTypeLocal AccountType = "local"
	// AccountTypeWatch is an address-only account with no key material anywhere.
	AccountTypeWatch AccountType = "watch"
	// AccountTypeHardware is controlled by a cable/BLE hardware device.
	AccountTypeHardware AccountType = "hardware"
	// AccountTypeRemoteSigner is controlled by a paired air-gapped signer device.
	AccountTypeRemoteSigner AccountType = "remoteSigner"
)

// Account is the wallet-side view of an account participating in signing.
type Account struct {
	Address string      `json:"address"`
	Name    string      `json:"name,omitempty"`
	Type    AccountType `json:"type"`

	// SignerDeviceID is set for remote-signer accounts and identifies the
	// paired air-gapped device that holds the key.
	SignerDeviceID string `json:"signerDeviceId,omitempty"`

	// AuthAddress is set when signing authority has been rekeyed to a
	// different address.
	AuthAddress string `json:"authAddress,omitempty"`
}

// DeviceRole is the role this physical device plays in the air-gapped pair.
type DeviceRole string

const (
	// RoleWallet is the online device that builds transactions and displays
	// signing requests as optical frames.
	RoleWallet DeviceRole = "wallet"
	// RoleSigner is the permanently offline device that scans requests and
	// answers with signatures.
	RoleSigner DeviceRole = "signer"
)

// Valid reports whether r is a known device role.
func (r DeviceRole) Valid() bool {
	return r == RoleWallet || r == RoleSigner
}
