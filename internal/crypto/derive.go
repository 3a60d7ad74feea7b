package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey expands seed into a 32-byte key bound to usage. Different usages
// yield independent keys from the same seed.
func DeriveKey(seed []byte, usage string) ([]byte, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("empty key seed")
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, seed, []byte("otpless-loginpage"), []byte(usage))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", usage, err)
	}
	return key, nil
}
