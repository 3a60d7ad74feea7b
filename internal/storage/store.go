package storage

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/otpless/loginpage/internal/crypto"
)

// Well-known entry names.
const (
	KeySession = "session"
	KeyState   = "state"
)

// Store is a string key-value store.
type Store interface {
	// Get returns the value for key; ok is false when no entry exists.
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(keys ...string) error
}

// SecureStore persists entries as a JSON object of AES-GCM sealed values.
// Each value is bound to its key name so entries cannot be swapped on disk.
type SecureStore struct {
	mu   sync.Mutex
	path string
	key  []byte
}

var _ Store = (*SecureStore)(nil)

// NewSecureStore opens (lazily) an encrypted store at path using a key
// derived from seed.
func NewSecureStore(path string, seed []byte) (*SecureStore, error) {
	key, err := crypto.DeriveKey(seed, "secure-storage")
	if err != nil {
		return nil, err
	}
	return &SecureStore{path: path, key: key}, nil
}

// OpenSecureStore loads or creates the key seed at keyPath and opens the
// store at path.
func OpenSecureStore(path, keyPath string) (*SecureStore, error) {
	seed, err := GetOrCreateKeySeed(keyPath)
	if err != nil {
		return nil, err
	}
	return NewSecureStore(path, seed)
}

// Get implements Store.
func (s *SecureStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadLocked()
	if err != nil {
		return "", false, err
	}
	sealedB64, ok := entries[key]
	if !ok {
		return "", false, nil
	}
	sealed, err := base64.StdEncoding.DecodeString(sealedB64)
	if err != nil {
		return "", false, fmt.Errorf("decode %s: %w", key, err)
	}
	plain, err := crypto.Open(s.key, sealed, []byte(key))
	if err != nil {
		return "", false, fmt.Errorf("open %s: %w", key, err)
	}
	return string(plain), true, nil
}

// Set implements Store.
func (s *SecureStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadLocked()
	if err != nil {
		return err
	}
	sealed, err := crypto.Seal(s.key, []byte(value), []byte(key))
	if err != nil {
		return err
	}
	entries[key] = base64.StdEncoding.EncodeToString(sealed)
	return s.saveLocked(entries)
}

// Delete implements Store. Missing keys are ignored.
func (s *SecureStore) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadLocked()
	if err != nil {
		return err
	}
	changed := false
	for _, key := range keys {
		if _, ok := entries[key]; ok {
			delete(entries, key)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.saveLocked(entries)
}

func (s *SecureStore) loadLocked() (map[string]string, error) {
	entries := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entries, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("corrupt store %s: %w", s.path, err)
	}
	return entries, nil
}

func (s *SecureStore) saveLocked(entries map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.Mutex
	entries map[string]string
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]string)}
}

// Get implements Store.
func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

// Set implements Store.
func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}
