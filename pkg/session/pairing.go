package session

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	sdktypes "github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/xarmian/voi-wallet-sub002/pkg/encryption"
	"github.com/xarmian/voi-wallet-sub002/pkg/persistence"
	"github.com/xarmian/voi-wallet-sub002/pkg/protocol"
)

// KeyImporter stores a private key received from another device. Satisfied
// by the keystore.
type KeyImporter interface {
	ImportPrivateKey(privateKey ed25519.PrivateKey, pin string) error
}

func proofMessage(deviceID, address string) []byte {
	return []byte(deviceID + "|" + address)
}

// SignPairingProof signs the device-binding message for one account with
// that account's key. The proof lets the wallet device check that the
// signer device really holds the key it claims to hold.
func SignPairingProof(privateKey ed25519.PrivateKey, deviceID, address string) string {
	sig := ed25519.Sign(privateKey, proofMessage(deviceID, address))
	return base64.StdEncoding.EncodeToString(sig)
}

// VerifyPairingProof checks one pairing account record: the public key must
// derive the claimed address, and the proof must be that key's signature
// over the device-binding message.
func VerifyPairingProof(acct *protocol.PairedAccount, deviceID string) error {
	pub, err := base64.StdEncoding.DecodeString(acct.PublicKey)
	if err != nil {
		return fmt.Errorf("public key is not base64: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("public key has length %d, want %d", len(pub), ed25519.PublicKeySize)
	}

	var addr sdktypes.Address
	copy(addr[:], pub)
	if addr.String() != acct.Address {
		return fmt.Errorf("public key does not derive address %s", acct.Address)
	}

	if acct.Proof == "" {
		return fmt.Errorf("account record carries no proof")
	}
	sig, err := base64.StdEncoding.DecodeString(acct.Proof)
	if err != nil {
		return fmt.Errorf("proof is not base64: %w", err)
	}

	if !ed25519.Verify(pub, proofMessage(deviceID, acct.Address), sig) {
		return fmt.Errorf("proof signature does not verify")
	}

	return nil
}

// ImportKeyExport runs on the signer device: it unseals a scanned
// key_export payload with the one-time code, stores the key under the
// device PIN and returns the imported address. The unsealed key material is
// cleared once stored.
func ImportKeyExport(p *protocol.Payload, exportCode, pin string, importer KeyImporter) (string, error) {
	if p == nil || p.Kind != protocol.KindKeyExport {
		return "", fmt.Errorf("%w: not a key export", protocol.ErrInvalidPayload)
	}
	if err := p.Validate(); err != nil {
		return "", err
	}

	ke := p.KeyExport

	ciphertext, err := base64.StdEncoding.DecodeString(ke.Sealed)
	if err != nil {
		return "", fmt.Errorf("%w: sealed blob is not base64", protocol.ErrMalformedPayload)
	}
	salt, err := base64.StdEncoding.DecodeString(ke.Salt)
	if err != nil {
		return "", fmt.Errorf("%w: salt is not base64", protocol.ErrMalformedPayload)
	}
	nonce, err := base64.StdEncoding.DecodeString(ke.Nonce)
	if err != nil {
		return "", fmt.Errorf("%w: nonce is not base64", protocol.ErrMalformedPayload)
	}

	sealer := encryption.NewPassphraseSealer()
	plaintext, err := sealer.Open(&encryption.SealedBox{
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, exportCode)
	if err != nil {
		return "", fmt.Errorf("failed to unseal key export: %w", err)
	}
	defer zeroBytes(plaintext)

	if len(plaintext) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("unsealed key has length %d, want %d", len(plaintext), ed25519.PrivateKeySize)
	}

	sk := ed25519.PrivateKey(plaintext)
	pub := sk.Public().(ed25519.PublicKey)

	var addr sdktypes.Address
	copy(addr[:], pub)
	if addr.String() != ke.Address {
		return "", fmt.Errorf("%w: key does not derive address %s", protocol.ErrInvalidPayload, ke.Address)
	}

	if err := importer.ImportPrivateKey(sk, pin); err != nil {
		return "", fmt.Errorf("failed to store imported key: %w", err)
	}

	return ke.Address, nil
}

// ConfirmTransfer runs on the signer device after a successful import: it
// builds the pairing confirmation the wallet device is waiting to scan,
// carrying exactly one proven account record.
func ConfirmTransfer(deviceID, deviceName, address, pin string, vault KeyVault) (*protocol.Payload, error) {
	acct, err := provenAccount(deviceID, address, pin, vault)
	if err != nil {
		return nil, err
	}

	return protocol.NewPairing(deviceID, deviceName, []protocol.PairedAccount{*acct}), nil
}

// BuildPairingExport runs on the signer device at setup time: it builds the
// pairing payload listing every account this device can sign for, each with
// a device-binding proof.
func BuildPairingExport(deviceID, deviceName string, addresses []string, pin string, vault KeyVault) (*protocol.Payload, error) {
	if len(addresses) == 0 {
		return nil, fmt.Errorf("no accounts to export")
	}

	accounts := make([]protocol.PairedAccount, 0, len(addresses))
	for _, address := range addresses {
		acct, err := provenAccount(deviceID, address, pin, vault)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acct)
	}

	return protocol.NewPairing(deviceID, deviceName, accounts), nil
}

// ImportPairing runs on the wallet device: it verifies a scanned pairing
// export and persists the paired-signer record. Every account record must
// carry a valid device-binding proof; one bad record rejects the whole
// pairing.
func ImportPairing(p *protocol.Payload, store persistence.IDeviceStatePersistence) (*persistence.PairedSignerRecord, error) {
	if p == nil || p.Kind != protocol.KindPairing {
		return nil, fmt.Errorf("%w: not a pairing", protocol.ErrInvalidPayload)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Version != protocol.Version {
		return nil, fmt.Errorf("%w: got version %d, want %d", protocol.ErrVersionMismatch, p.Version, protocol.Version)
	}

	pairing := p.Pairing

	addresses := make([]string, 0, len(pairing.Accounts))
	for i := range pairing.Accounts {
		if err := VerifyPairingProof(&pairing.Accounts[i], pairing.DeviceID); err != nil {
			return nil, fmt.Errorf("pairing account %s rejected: %w", pairing.Accounts[i].Address, err)
		}
		addresses = append(addresses, pairing.Accounts[i].Address)
	}

	record, err := store.LoadPairedSigner(pairing.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load paired signer: %w", err)
	}
	if record == nil {
		record = &persistence.PairedSignerRecord{DeviceID: pairing.DeviceID}
	}
	if pairing.DeviceName != "" {
		record.DeviceName = pairing.DeviceName
	}
	for _, address := range addresses {
		if !record.CanSignFor(address) {
			record.Addresses = append(record.Addresses, address)
		}
	}
	record.LastActivity = p.Ts

	if err := store.SavePairedSigner(record); err != nil {
		return nil, fmt.Errorf("failed to persist paired signer: %w", err)
	}

	return record, nil
}

func provenAccount(deviceID, address, pin string, vault KeyVault) (*protocol.PairedAccount, error) {
	sk, err := vault.SigningKey(address, pin)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve key for %s: %w", address, err)
	}
	defer zeroBytes(sk)

	pub := sk.Public().(ed25519.PublicKey)

	return &protocol.PairedAccount{
		Address:   address,
		PublicKey: base64.StdEncoding.EncodeToString(pub),
		Proof:     SignPairingProof(sk, deviceID, address),
	}, nil
}
