package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	sealVersion = 1
	nonceSize   = 12
	tagSize     = 16
)

// ErrCiphertextTooShort is returned for inputs that cannot hold a sealed box.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Seal encrypts plaintext with AES-256-GCM, binding it to associatedData.
// Format: [version (1 byte)][nonce (12 bytes)][ciphertext][auth tag (16 bytes)]
func Seal(key, plaintext, associatedData []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 1+nonceSize, 1+nonceSize+len(plaintext)+tagSize)
	out[0] = sealVersion
	copy(out[1:], nonce)
	return gcm.Seal(out, nonce, plaintext, associatedData), nil
}

// Open reverses Seal. associatedData must match the value used to seal.
func Open(key, sealed, associatedData []byte) ([]byte, error) {
	if len(sealed) < 1+nonceSize+tagSize {
		return nil, ErrCiphertextTooShort
	}
	if sealed[0] != sealVersion {
		return nil, fmt.Errorf("unsupported encryption version: %d", sealed[0])
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, sealed[1:1+nonceSize], sealed[1+nonceSize:], associatedData)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
