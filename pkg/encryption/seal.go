package encryption

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Argon2id parameters for passphrase key derivation
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MiB
	argonThreads = 4
	saltSize     = 16
)

// SealedBox is an authenticated ciphertext together with the parameters
// needed to open it. Safe to serialize and transfer over untrusted channels.
type SealedBox struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// PassphraseSealer provides authenticated encryption under a passphrase.
// Keys are derived with Argon2id and data is sealed with ChaCha20-Poly1305.
type PassphraseSealer struct{}

// NewPassphraseSealer creates a new passphrase sealer instance
func NewPassphraseSealer() *PassphraseSealer {
	return &PassphraseSealer{}
}

// Seal encrypts plaintext under the passphrase with a fresh salt and nonce
func (s *PassphraseSealer) Seal(plaintext []byte, passphrase string) (*SealedBox, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	return &SealedBox{
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// Open decrypts a sealed box with the passphrase.
// Returns an error if the passphrase is wrong or the data was tampered with.
func (s *PassphraseSealer) Open(box *SealedBox, passphrase string) ([]byte, error) {
	if box == nil {
		return nil, fmt.Errorf("sealed box cannot be nil")
	}
	if len(box.Salt) != saltSize {
		return nil, fmt.Errorf("invalid salt length: %d", len(box.Salt))
	}

	key := deriveKey(passphrase, box.Salt)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(box.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("invalid nonce length: %d", len(box.Nonce))
	}

	plaintext, err := aead.Open(nil, box.Nonce, box.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}

	return plaintext, nil
}

// deriveKey derives a 256-bit key from the passphrase using Argon2id
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}
