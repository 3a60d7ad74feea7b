package storage

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const keySeedSize = 32

// LoadKeySeed loads the base64 key seed stored at path.
func LoadKeySeed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	seed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(seed) != keySeedSize {
		return nil, fmt.Errorf("invalid key length: %d (expected %d)", len(seed), keySeedSize)
	}
	return seed, nil
}

// GetOrCreateKeySeed loads the key seed at path, generating and persisting a
// fresh one when the file is missing or unreadable.
func GetOrCreateKeySeed(path string) ([]byte, error) {
	if seed, err := LoadKeySeed(path); err == nil {
		return seed, nil
	}

	seed := make([]byte, keySeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(seed)
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write key: %w", err)
	}
	return seed, nil
}
