package kv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/spideyz0r/searchbar/pkg/crypto"
)

const (
	// SaltKey holds the key-derivation salt of an encrypted store.
	SaltKey = "__searchbar_salt"
	// VerifierKey holds a known value sealed with the store's passphrase.
	VerifierKey = "__searchbar_verifier"
)

// ErrWrongPassphrase is returned when the passphrase does not open the
// store's verifier.
var ErrWrongPassphrase = errors.New("wrong passphrase")

var verifierPlaintext = []byte("searchbar")

// Encrypted seals every value written to the wrapped store.
type Encrypted struct {
	inner  Store
	sealer *crypto.Sealer
}

// NewEncrypted wraps inner. The salt is read from SaltKey, or created and
// stored there on first use. A store whose VerifierKey does not open with
// passphrase is rejected with ErrWrongPassphrase before anything is written.
func NewEncrypted(ctx context.Context, inner Store, passphrase string) (*Encrypted, error) {
	encoded, ok, err := inner.Get(ctx, SaltKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}

	var salt []byte
	if ok {
		salt, err = base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode salt: %w", err)
		}
	} else {
		salt, err = crypto.NewSalt()
		if err != nil {
			return nil, err
		}
		if err := inner.Set(ctx, SaltKey, base64.StdEncoding.EncodeToString(salt)); err != nil {
			return nil, fmt.Errorf("failed to store salt: %w", err)
		}
	}

	sealer, err := crypto.NewSealer(passphrase, salt)
	if err != nil {
		return nil, err
	}
	e := &Encrypted{inner: inner, sealer: sealer}

	if err := e.verify(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// verify opens the verifier, writing it first if the store has none yet.
func (e *Encrypted) verify(ctx context.Context) error {
	encoded, ok, err := e.inner.Get(ctx, VerifierKey)
	if err != nil {
		return fmt.Errorf("failed to read verifier: %w", err)
	}

	// Stores created before the verifier existed get one now
	if !ok {
		if err := e.Set(ctx, VerifierKey, string(verifierPlaintext)); err != nil {
			return fmt.Errorf("failed to store verifier: %w", err)
		}
		return nil
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode verifier: %w", err)
	}
	if _, err := e.sealer.Open(sealed); err != nil {
		return ErrWrongPassphrase
	}
	return nil
}

func (e *Encrypted) Get(ctx context.Context, key string) (string, bool, error) {
	encoded, ok, err := e.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", false, fmt.Errorf("failed to decode value for %q: %w", key, err)
	}
	plaintext, err := e.sealer.Open(sealed)
	if err != nil {
		return "", false, fmt.Errorf("failed to open value for %q: %w", key, err)
	}
	return string(plaintext), true, nil
}

func (e *Encrypted) Set(ctx context.Context, key, value string) error {
	sealed, err := e.sealer.Seal([]byte(value))
	if err != nil {
		return err
	}
	return e.inner.Set(ctx, key, base64.StdEncoding.EncodeToString(sealed))
}

func (e *Encrypted) Remove(ctx context.Context, key string) error {
	return e.inner.Remove(ctx, key)
}

func (e *Encrypted) Close() error {
	return e.inner.Close()
}
