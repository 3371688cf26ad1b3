package signer

import (
	"context"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	sdktypes "github.com/algorand/go-algorand-sdk/v2/types"
	"go.uber.org/zap"

	"github.com/xarmian/voi-wallet-sub002/pkg/keystore"
)

// ITransactionSigner provides methods for signing transactions
type ITransactionSigner interface {
	// SignTransaction signs a msgpack-encoded unsigned transaction with the
	// key held for address and returns the msgpack-encoded signed transaction
	SignTransaction(ctx context.Context, address string, txnBlob []byte) ([]byte, error)

	// CanSignFor reports whether this signer holds a key for the address
	CanSignFor(address string) bool
}

// KeystoreSigner signs transactions with keys unsealed from the local
// key store. Constructed per signing session with the PIN the user entered.
type KeystoreSigner struct {
	keystore *keystore.KeyStore
	pin      string
	logger   *zap.Logger
}

var _ ITransactionSigner = (*KeystoreSigner)(nil)

// NewKeystoreSigner creates a signer backed by the local key store
func NewKeystoreSigner(ks *keystore.KeyStore, pin string, logger *zap.Logger) *KeystoreSigner {
	return &KeystoreSigner{
		keystore: ks,
		pin:      pin,
		logger:   logger,
	}
}

// SignTransaction unseals the key for address and signs the transaction.
// When the signing address differs from the transaction sender (rekeyed
// account), the resulting signed transaction carries the auth address.
func (s *KeystoreSigner) SignTransaction(ctx context.Context, address string, txnBlob []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var txn sdktypes.Transaction
	if err := msgpack.Decode(txnBlob, &txn); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	sk, err := s.keystore.SigningKey(address, s.pin)
	if err != nil {
		return nil, err
	}
	defer zeroKey(sk)

	txid, stxBytes, err := crypto.SignTransaction(sk, txn)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	s.logger.Sugar().Debugw("Transaction signed", "txid", txid, "address", address)

	return stxBytes, nil
}

// CanSignFor reports whether the key store holds a key for the address
func (s *KeystoreSigner) CanSignFor(address string) bool {
	return s.keystore.HasKey(address)
}

// zeroKey wipes unsealed key bytes once the signature has been produced.
func zeroKey(sk []byte) {
	for i := range sk {
		sk[i] = 0
	}
}
