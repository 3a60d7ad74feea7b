package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewTrackingID returns a "<uuid>-<unix millis>" identifier, the format used
// for both installation and tracking session ids.
func NewTrackingID(now time.Time) string {
	return fmt.Sprintf("%s-%d", uuid.NewString(), now.UnixMilli())
}

// GetOrCreateInstallationID returns the installation id stored unencrypted at
// path, creating it on first use.
func GetOrCreateInstallationID(path string, now time.Time) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read installation id: %w", err)
	}

	id := NewTrackingID(now)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(id), 0o600); err != nil {
		return "", fmt.Errorf("write installation id: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return id, nil
}
