package kvstore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Sealed encrypts values with XChaCha20-Poly1305 before handing them to the
// wrapped Storage. The key name is bound as associated data, so a value
// copied under another key fails to open.
type Sealed struct {
	inner Storage
	key   []byte
}

// NewSealed wraps inner. key must be chacha20poly1305.KeySize bytes.
func NewSealed(inner Storage, key []byte) (*Sealed, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("kvstore: encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Sealed{inner: inner, key: k}, nil
}

func (s *Sealed) GetItem(ctx context.Context, key string) (string, error) {
	raw, err := s.inner.GetItem(ctx, key)
	if err != nil {
		return "", err
	}
	return s.open(key, raw)
}

func (s *Sealed) SetItem(ctx context.Context, key, value string) error {
	sealed, err := s.seal(key, value)
	if err != nil {
		return err
	}
	return s.inner.SetItem(ctx, key, sealed)
}

func (s *Sealed) RemoveItem(ctx context.Context, key string) error {
	return s.inner.RemoveItem(ctx, key)
}

func (s *Sealed) Close() error { return s.inner.Close() }

func (s *Sealed) seal(key, value string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("kvstore: cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(value)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("kvstore: nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *Sealed) open(key, raw string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealed, err)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("kvstore: cipher: %w", err)
	}
	if len(data) < aead.NonceSize() {
		return "", fmt.Errorf("%w: value too short", ErrSealed)
	}
	nonce, ct := data[:aead.NonceSize()], data[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, []byte(key))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealed, err)
	}
	return string(plain), nil
}
