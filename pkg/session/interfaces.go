package session

import (
	"context"
	"crypto/ed25519"

	"github.com/xarmian/voi-wallet-sub002/pkg/types"
)

// TransactionSigner signs one msgpack-encoded unsigned transaction at a
// time. Satisfied by the keystore and hardware signers.
type TransactionSigner interface {
	SignTransaction(ctx context.Context, address string, txnBlob []byte) ([]byte, error)
}

// KeyVault is the authenticated key storage consumed by the transfer flow.
// Satisfied by the keystore.
type KeyVault interface {
	// SigningKey unseals the private key for an address under the PIN.
	// Callers zero the returned key as soon as they are done with it.
	SigningKey(address, pin string) (ed25519.PrivateKey, error)

	// DeleteKey irreversibly removes the key for an address.
	DeleteKey(address string) error
}

// AccountStore is the wallet's account-metadata surface: lookup by address
// and the local-to-remote-signer conversion at the end of a transfer.
type AccountStore interface {
	FindByAddress(address string) (*types.Account, error)
	ConvertToRemoteSigner(address, signerDeviceID string) error
}
