package keystore

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/xarmian/voi-wallet-sub002/pkg/encryption"
)

var (
	// ErrKeyNotFound is returned when no key exists for the requested address.
	ErrKeyNotFound = errors.New("key not found")

	// ErrAuthenticationFailed is returned when the PIN does not unlock a key.
	ErrAuthenticationFailed = errors.New("authentication failed")
)

const keyFileExt = ".key.json"

// KeyStore holds account signing keys encrypted at rest. Each key is sealed
// under the user's PIN and stored as one file per address. Thread-safe.
type KeyStore struct {
	mu sync.RWMutex

	dir    string
	sealer *encryption.PassphraseSealer
	logger *zap.Logger
}

// NewKeyStore opens a key store rooted at dir, creating it if needed.
func NewKeyStore(dir string, logger *zap.Logger) (*KeyStore, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve keystore path: %w", err)
	}

	if err := os.MkdirAll(absDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory: %w", err)
	}

	return &KeyStore{
		dir:    absDir,
		sealer: encryption.NewPassphraseSealer(),
		logger: logger,
	}, nil
}

// GenerateAccount creates a new ed25519 account, seals it under the PIN and
// returns its address.
func (ks *KeyStore) GenerateAccount(pin string) (string, error) {
	account := crypto.GenerateAccount()

	address := account.Address.String()
	if err := ks.ImportPrivateKey(account.PrivateKey, pin); err != nil {
		return "", err
	}

	return address, nil
}

// ImportPrivateKey seals an existing ed25519 private key under the PIN.
// The address is derived from the key; importing the same key twice
// overwrites the sealed file.
func (ks *KeyStore) ImportPrivateKey(privateKey ed25519.PrivateKey, pin string) error {
	account, err := crypto.AccountFromPrivateKey(privateKey)
	if err != nil {
		return errors.Wrap(err, "invalid private key")
	}

	box, err := ks.sealer.Seal(privateKey, pin)
	if err != nil {
		return fmt.Errorf("failed to seal private key: %w", err)
	}

	data, err := json.Marshal(box)
	if err != nil {
		return fmt.Errorf("failed to marshal sealed key: %w", err)
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	path := ks.keyPath(account.Address.String())
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}

	ks.logger.Sugar().Infow("Account key stored", "address", account.Address.String())

	return nil
}

// SigningKey unseals and returns the private key for an address.
// Returns ErrKeyNotFound if the address has no key, ErrAuthenticationFailed
// if the PIN is wrong.
func (ks *KeyStore) SigningKey(address, pin string) (ed25519.PrivateKey, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	data, err := os.ReadFile(ks.keyPath(address))
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrKeyNotFound, "address %s", address)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	var box encryption.SealedBox
	if err := json.Unmarshal(data, &box); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sealed key: %w", err)
	}

	plaintext, err := ks.sealer.Open(&box, pin)
	if err != nil {
		return nil, errors.Wrapf(ErrAuthenticationFailed, "address %s", address)
	}

	if len(plaintext) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("unexpected key length: %d", len(plaintext))
	}

	return ed25519.PrivateKey(plaintext), nil
}

// HasKey reports whether a sealed key exists for the address.
func (ks *KeyStore) HasKey(address string) bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	_, err := os.Stat(ks.keyPath(address))
	return err == nil
}

// ListAddresses returns the addresses of all stored keys, sorted.
func (ks *KeyStore) ListAddresses() ([]string, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	entries, err := os.ReadDir(ks.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore directory: %w", err)
	}

	var addresses []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, keyFileExt) {
			continue
		}
		addresses = append(addresses, strings.TrimSuffix(name, keyFileExt))
	}

	sort.Strings(addresses)

	return addresses, nil
}

// DeleteKey removes the sealed key for an address. The key material is gone
// after this: callers are expected to have confirmed the deletion with the
// user. Returns ErrKeyNotFound if no key exists.
func (ks *KeyStore) DeleteKey(address string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	path := ks.keyPath(address)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return errors.Wrapf(ErrKeyNotFound, "address %s", address)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete key file: %w", err)
	}

	ks.logger.Sugar().Infow("Account key deleted", "address", address)

	return nil
}

func (ks *KeyStore) keyPath(address string) string {
	return filepath.Join(ks.dir, address+keyFileExt)
}
