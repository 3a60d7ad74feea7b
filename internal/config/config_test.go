package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("OTPLESS_HOME_DIR", filepath.Join(home, "state"))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://user-auth.otpless.app", cfg.UserAuthURL)
	require.Equal(t, "https://connect.otpless.app", cfg.ConnectURL)
	require.Equal(t, "https://otpless.com", cfg.APIURL)
	require.Equal(t, 2*time.Second, cfg.RoomTimeout)
	require.Equal(t, 3*time.Minute, cfg.RefreshInterval)
	require.Zero(t, cfg.RetryDelay)

	info, err := os.Stat(cfg.HomeDir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
	require.Equal(t, filepath.Join(cfg.HomeDir, "secure.json"), cfg.StoreFile())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OTPLESS_HOME_DIR", t.TempDir())
	t.Setenv("OTPLESS_CONNECT_URL", " https://connect.example.test/ ")
	t.Setenv("OTPLESS_RETRY_DELAY", "250ms")
	t.Setenv("OTPLESS_DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://connect.example.test", cfg.ConnectURL)
	require.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	require.True(t, cfg.Debug)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("OTPLESS_HOME_DIR", t.TempDir())
	t.Setenv("OTPLESS_ROOM_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
}

func TestDefaultIgnoresEnvironment(t *testing.T) {
	t.Setenv("OTPLESS_API_URL", "https://elsewhere.test")

	cfg := Default()
	require.Equal(t, "https://otpless.com", cfg.APIURL)
	require.Equal(t, "https://otpless.com/rc5/appid/", cfg.LoginPageURL)
}

func TestDefaultResolvesHomeDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := Default()
	require.Equal(t, filepath.Join(home, ".otpless"), cfg.HomeDir)
	_, err := os.Stat(cfg.HomeDir)
	require.True(t, os.IsNotExist(err))
}
