package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// AES-256 requires 32-byte key
	keySize = 32

	// SaltSize is the PBKDF2 salt length prefixed to encrypted blobs.
	SaltSize = 16

	// GCM standard nonce size
	nonceSize = 12

	tagSize = 16

	pbkdf2Iterations = 100000
)

// Sealer encrypts and decrypts values with one derived AES-256-GCM key.
// Deriving the key once keeps per-value sealing cheap.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer derives a key from passphrase and salt.
func NewSealer(passphrase string, salt []byte) (*Sealer, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}

	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Sealer{gcm: gcm}, nil
}

// Seal returns [nonce(12)][ciphertext][tag(16)].
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize, nonceSize+len(plaintext)+tagSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+tagSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	plaintext, err := s.gcm.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong passphrase or corrupted data): %w", err)
	}
	return plaintext, nil
}

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// Encrypt encrypts a standalone blob with a fresh salt.
// Returns: [salt(16)][nonce(12)][ciphertext][tag(16)]
func Encrypt(plaintext []byte, passphrase string) ([]byte, error) {
	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}
	s, err := NewSealer(passphrase, salt)
	if err != nil {
		return nil, err
	}
	sealed, err := s.Seal(plaintext)
	if err != nil {
		return nil, err
	}
	return append(salt, sealed...), nil
}

// Decrypt decrypts a blob produced by Encrypt.
func Decrypt(ciphertext []byte, passphrase string) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	if len(ciphertext) < SaltSize+nonceSize+tagSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	s, err := NewSealer(passphrase, ciphertext[:SaltSize])
	if err != nil {
		return nil, err
	}
	return s.Open(ciphertext[SaltSize:])
}
