package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/otpless/loginpage/internal/api"
	"github.com/otpless/loginpage/internal/clock/clocktest"
	"github.com/otpless/loginpage/internal/storage"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func mintJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
		"sub": "user-1",
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

type fakeRepo struct {
	mu sync.Mutex

	refreshResp *api.SessionResponse
	refreshErr  error
	authResp    *api.SessionResponse
	authErr     error
	deleteErr   error
	deleteGate  chan struct{}

	refreshCalls atomic.Int32
	authCalls    atomic.Int32
	deleteCalls  atomic.Int32
	lastHeaders  map[string]string
	lastDelete   string
}

func (f *fakeRepo) AuthenticateSession(_ context.Context, headers map[string]string, _ api.AuthenticateRequest) (*api.SessionResponse, error) {
	f.authCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastHeaders = headers
	return f.authResp, f.authErr
}

func (f *fakeRepo) RefreshSession(_ context.Context, headers map[string]string, _ api.RefreshRequest) (*api.SessionResponse, error) {
	f.refreshCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastHeaders = headers
	return f.refreshResp, f.refreshErr
}

func (f *fakeRepo) DeleteSession(_ context.Context, headers map[string]string, token string, _ api.DeleteRequest) (*api.SessionResponse, error) {
	f.deleteCalls.Add(1)
	if f.deleteGate != nil {
		<-f.deleteGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastHeaders = headers
	f.lastDelete = token
	return nil, f.deleteErr
}

// brokenStore fails every read.
type brokenStore struct {
	*storage.Memory
	deleted atomic.Bool
}

func (b *brokenStore) Get(string) (string, bool, error) { return "", false, errors.New("keychain locked") }

func (b *brokenStore) Delete(keys ...string) error {
	b.deleted.Store(true)
	return b.Memory.Delete(keys...)
}

func newManager(t *testing.T, repo Repository, store Store, opts ...Option) (*Manager, *clocktest.Fake) {
	t.Helper()
	clk := clocktest.New(epoch)
	opts = append([]Option{WithClock(clk)}, opts...)
	m := NewManager(repo, store, opts...)
	m.Initialize("APP1")
	t.Cleanup(m.Close)
	return m, clk
}

func storedInfo(t *testing.T, store Store) (Info, bool) {
	t.Helper()
	raw, ok, err := store.Get(storage.KeySession)
	require.NoError(t, err)
	if !ok {
		return Info{}, false
	}
	var info Info
	require.NoError(t, json.Unmarshal([]byte(raw), &info))
	return info, true
}

func TestJWTLiveness(t *testing.T) {
	t.Parallel()

	now := epoch
	require.True(t, IsJWTActive(mintJWT(t, now.Add(60*time.Second)), now))
	require.False(t, IsJWTActive(mintJWT(t, now.Add(-time.Second)), now))
	require.False(t, IsJWTActive("not-a-jwt", now))
	require.False(t, IsJWTActive("a.b", now))
	require.False(t, IsJWTActive("a.!!!.c", now))
	require.False(t, IsJWTActive("a."+base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"x"}`))+".c", now))
	require.False(t, IsJWTActive("a."+base64.RawURLEncoding.EncodeToString([]byte(`[1,2]`))+".c", now))
}

func TestDecodeSegmentRoundTrip(t *testing.T) {
	t.Parallel()

	payloads := []string{
		`{"exp":1}`,
		`{"name":"??>>??","n":1}`,
		`{"k":"ÿÿÿ~~~"}`,
		strings.Repeat("x", 7),
	}
	for _, payload := range payloads {
		encoded := base64.RawURLEncoding.EncodeToString([]byte(payload))
		decoded, err := DecodeSegment(encoded)
		require.NoError(t, err, encoded)
		require.Equal(t, payload, string(decoded))
	}

	// Url-safe alphabet with padding stripped.
	decoded, err := DecodeSegment("-_8")
	require.NoError(t, err)
	require.Equal(t, []byte{0xfb, 0xff}, decoded)
}

func TestGetActiveSessionWithoutSession(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	m, _ := newManager(t, repo, storage.NewMemory())
	require.Equal(t, Inactive(), m.GetActiveSession(context.Background()))
	require.Zero(t, repo.refreshCalls.Load())
	require.False(t, m.RefreshLoopRunning())
}

func TestGetActiveSessionLiveJWT(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	store := storage.NewMemory()
	m, _ := newManager(t, repo, store)
	live := mintJWT(t, epoch.Add(time.Hour))
	require.NoError(t, m.SaveSession(Info{SessionToken: "s", RefreshToken: "r", JWTToken: live}, "state-1"))

	require.Equal(t, Active(live), m.GetActiveSession(context.Background()))
	require.True(t, m.RefreshLoopRunning())
	require.Zero(t, repo.refreshCalls.Load())

	// A second call does not start a second loop.
	m.GetActiveSession(context.Background())
	require.True(t, m.RefreshLoopRunning())
}

func TestGetActiveSessionRefreshesExpiredJWT(t *testing.T) {
	t.Parallel()

	fresh := mintJWT(t, epoch.Add(time.Hour))
	repo := &fakeRepo{refreshResp: &api.SessionResponse{SessionToken: "s2", JWTToken: fresh}}
	store := storage.NewMemory()
	m, _ := newManager(t, repo, store)
	require.NoError(t, m.SaveSession(Info{SessionToken: "s1", RefreshToken: "r1", JWTToken: mintJWT(t, epoch.Add(-time.Minute))}, "state-1"))

	require.Equal(t, Active(fresh), m.GetActiveSession(context.Background()))
	require.EqualValues(t, 1, repo.refreshCalls.Load())
	require.Equal(t, map[string]string{"appId": "APP1", "state": "state-1"}, repo.lastHeaders)

	info, ok := storedInfo(t, store)
	require.True(t, ok)
	require.Equal(t, Info{SessionToken: "s2", RefreshToken: "r1", JWTToken: fresh}, info)
	require.True(t, m.RefreshLoopRunning())
}

func TestGetActiveSessionRefreshFailureKeepsSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		repo *fakeRepo
	}{
		{name: "api error", repo: &fakeRepo{refreshErr: &api.Error{Message: "nope", StatusCode: 401}}},
		{name: "still expired", repo: &fakeRepo{refreshResp: &api.SessionResponse{JWTToken: "garbage"}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := storage.NewMemory()
			m, _ := newManager(t, tt.repo, store)
			stale := Info{SessionToken: "s1", RefreshToken: "r1", JWTToken: mintJWT(t, epoch.Add(-time.Minute))}
			require.NoError(t, m.SaveSession(stale, ""))

			require.Equal(t, Inactive(), m.GetActiveSession(context.Background()))
			info, ok := storedInfo(t, store)
			require.True(t, ok, "ordinary refresh failure keeps the session")
			require.Equal(t, stale, info)
			require.False(t, m.RefreshLoopRunning())
		})
	}
}

func TestGetActiveSessionUnexpectedErrorDeletesSession(t *testing.T) {
	t.Parallel()

	store := &brokenStore{Memory: storage.NewMemory()}
	m, _ := newManager(t, &fakeRepo{}, store)

	require.Equal(t, Inactive(), m.GetActiveSession(context.Background()))
	require.True(t, store.deleted.Load())
}

func TestGetActiveSessionCorruptEntryDeletesSession(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	require.NoError(t, store.Set(storage.KeySession, "{not json"))
	require.NoError(t, store.Set(storage.KeyState, "st"))
	m, _ := newManager(t, &fakeRepo{}, store)

	require.Equal(t, Inactive(), m.GetActiveSession(context.Background()))
	_, ok, _ := store.Get(storage.KeySession)
	require.False(t, ok)
	_, ok, _ = store.Get(storage.KeyState)
	require.False(t, ok)
}

func TestLogoutWithoutSessionIsNoop(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	m, _ := newManager(t, repo, storage.NewMemory())
	m.Logout(context.Background())
	require.Zero(t, repo.deleteCalls.Load())
}

func TestLogoutDeletesLocallyBeforeRemote(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{
		deleteGate: make(chan struct{}),
		deleteErr:  &api.Error{Message: "server down", StatusCode: 500},
	}
	store := storage.NewMemory()
	m, _ := newManager(t, repo, store)
	require.NoError(t, m.SaveSession(Info{SessionToken: "s1", JWTToken: mintJWT(t, epoch.Add(time.Hour))}, "state-1"))
	m.StartRefreshLoop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Logout(context.Background())
	}()

	require.Eventually(t, func() bool { return repo.deleteCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	_, ok, _ := store.Get(storage.KeySession)
	require.False(t, ok, "local session is gone while the remote call is in flight")
	_, ok, _ = store.Get(storage.KeyState)
	require.False(t, ok)
	require.False(t, m.RefreshLoopRunning())

	close(repo.deleteGate)
	<-done
	require.Equal(t, "s1", repo.lastDelete)
	require.Equal(t, "state-1", repo.lastHeaders["state"])
	_, ok, _ = store.Get(storage.KeySession)
	require.False(t, ok)
}

func TestRefreshLoopPersistsNewJWT(t *testing.T) {
	t.Parallel()

	newJWT := mintJWT(t, epoch.Add(2*time.Hour))
	repo := &fakeRepo{authResp: &api.SessionResponse{SessionTokenJWT: newJWT}}
	store := storage.NewMemory()
	m, _ := newManager(t, repo, store, WithRefreshInterval(10*time.Millisecond))
	require.NoError(t, m.SaveSession(Info{SessionToken: "s1", RefreshToken: "r1", JWTToken: mintJWT(t, epoch.Add(time.Hour))}, ""))

	m.StartRefreshLoop()
	require.Eventually(t, func() bool {
		info, ok := storedInfo(t, store)
		return ok && info.JWTToken == newJWT
	}, 2*time.Second, 5*time.Millisecond)
	info, _ := storedInfo(t, store)
	require.Equal(t, "s1", info.SessionToken)
	require.Equal(t, "r1", info.RefreshToken)
}

func TestRefreshLoopSurvivesFailuresAndMissingSession(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{authErr: errors.New("timeout")}
	store := storage.NewMemory()
	m, _ := newManager(t, repo, store, WithRefreshInterval(5*time.Millisecond))

	// No session: cycles skip but the loop keeps running.
	m.StartRefreshLoop()
	time.Sleep(30 * time.Millisecond)
	require.True(t, m.RefreshLoopRunning())
	require.Zero(t, repo.authCalls.Load())

	original := Info{SessionToken: "s1", JWTToken: mintJWT(t, epoch.Add(time.Hour))}
	require.NoError(t, m.SaveSession(original, ""))
	require.Eventually(t, func() bool { return repo.authCalls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.True(t, m.RefreshLoopRunning())

	info, ok := storedInfo(t, store)
	require.True(t, ok)
	require.Equal(t, original, info)
}

func TestRefreshLoopIgnoresExpiredOnArrival(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{authResp: &api.SessionResponse{JWTToken: mintJWT(t, epoch.Add(-time.Hour))}}
	store := storage.NewMemory()
	m, _ := newManager(t, repo, store, WithRefreshInterval(5*time.Millisecond))
	original := Info{SessionToken: "s1", JWTToken: mintJWT(t, epoch.Add(time.Hour))}
	require.NoError(t, m.SaveSession(original, ""))

	m.StartRefreshLoop()
	require.Eventually(t, func() bool { return repo.authCalls.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	info, _ := storedInfo(t, store)
	require.Equal(t, original, info)
}

func TestStartRefreshLoopIsIdempotent(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t, &fakeRepo{}, storage.NewMemory())
	m.StartRefreshLoop()
	m.mu.Lock()
	first := m.loopDone
	m.mu.Unlock()
	m.StartRefreshLoop()
	m.mu.Lock()
	second := m.loopDone
	m.mu.Unlock()
	require.Equal(t, first, second)

	m.Close()
	require.False(t, m.RefreshLoopRunning())
	select {
	case <-first:
	default:
		t.Fatal("loop goroutine still running after Close")
	}
}

func TestInitializeIsSetOnce(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t, &fakeRepo{}, storage.NewMemory())
	m.Initialize("OTHER")
	require.Equal(t, "APP1", m.AppID())
	require.Equal(t, "https://otpless.com/rc5/appid/APP1", m.LoginURI())
}

func TestConcurrentAccessSerializes(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{authResp: &api.SessionResponse{JWTToken: mintJWT(t, epoch.Add(time.Hour))}}
	store := storage.NewMemory()
	m, _ := newManager(t, repo, store, WithRefreshInterval(time.Millisecond))
	live := mintJWT(t, epoch.Add(time.Hour))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = m.SaveSession(Info{SessionToken: "s", JWTToken: live}, "st")
				m.GetActiveSession(context.Background())
				return
			}
			m.Logout(context.Background())
		}(i)
	}
	wg.Wait()

	m.Logout(context.Background())
	_, ok, _ := store.Get(storage.KeySession)
	require.False(t, ok)
	require.False(t, m.RefreshLoopRunning())
}
