package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/otpless/loginpage/internal/api"
	"github.com/otpless/loginpage/internal/clock"
	"github.com/otpless/loginpage/internal/storage"
	"github.com/otpless/loginpage/internal/telemetry"
	"github.com/otpless/loginpage/pkg/logger"
)

const (
	// DefaultRefreshInterval is the pause between background re-authentications.
	DefaultRefreshInterval = 3 * time.Minute
	// DefaultOrigin is reported as the request origin to the session API.
	DefaultOrigin = "https://otpless.com"
)

// Repository is the session API surface.
type Repository interface {
	AuthenticateSession(ctx context.Context, headers map[string]string, req api.AuthenticateRequest) (*api.SessionResponse, error)
	RefreshSession(ctx context.Context, headers map[string]string, req api.RefreshRequest) (*api.SessionResponse, error)
	DeleteSession(ctx context.Context, headers map[string]string, sessionToken string, req api.DeleteRequest) (*api.SessionResponse, error)
}

// Store persists the session and state entries.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(keys ...string) error
}

// Telemetry receives best-effort events.
type Telemetry interface {
	Send(name string, params map[string]any)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for liveness checks.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithRefreshInterval overrides the background refresh interval.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithTelemetry installs a telemetry sink.
func WithTelemetry(t Telemetry) Option {
	return func(m *Manager) { m.telemetry = t }
}

// WithOrigin overrides the origin used to build request bodies.
func WithOrigin(origin string) Option {
	return func(m *Manager) { m.origin = origin }
}

// Manager owns the persisted session.
//
// Every read and write of the session entry happens under mu. At most one
// background refresh loop runs at a time; Logout cancels it.
type Manager struct {
	repo      Repository
	store     Store
	clock     clock.Clock
	telemetry Telemetry
	interval  time.Duration
	origin    string

	mu         sync.Mutex
	appID      string
	state      string
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// NewManager creates a Manager.
func NewManager(repo Repository, store Store, opts ...Option) *Manager {
	m := &Manager{
		repo:     repo,
		store:    store,
		clock:    clock.Real{},
		interval: DefaultRefreshInterval,
		origin:   DefaultOrigin,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize sets the app id. Later calls are ignored.
func (m *Manager) Initialize(appID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appID != "" || appID == "" {
		return
	}
	m.appID = appID
}

// AppID returns the configured app id.
func (m *Manager) AppID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appID
}

// LoginURI is the login page URI reported to the session API.
func (m *Manager) LoginURI() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loginURILocked()
}

func (m *Manager) loginURILocked() string {
	return fmt.Sprintf("%s/rc5/appid/%s", m.origin, m.appID)
}

// SaveSession persists info and, when non-empty, the state correlation
// string.
func (m *Manager) SaveSession(info Info, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.saveLocked(info); err != nil {
		return err
	}
	if state == "" {
		return nil
	}
	if err := m.store.Set(storage.KeyState, state); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	m.state = state
	return nil
}

// Current returns the persisted session, if any.
func (m *Manager) Current() (Info, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked()
}

// GetActiveSession reports whether a live session exists, refreshing an
// expired one. An ordinary refresh failure leaves the stored session in
// place; an unexpected failure (corrupt storage, panic) deletes it.
func (m *Manager) GetActiveSession(ctx context.Context) (st State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("get active session panic: %v\n%s", r, debug.Stack())
			m.discardLocked(fmt.Errorf("panic: %v", r))
			st = Inactive()
		}
		m.send(telemetry.GetActiveSession, map[string]any{"active": st.Active})
	}()

	info, ok, err := m.loadLocked()
	if err != nil {
		m.discardLocked(err)
		return Inactive()
	}
	if !ok {
		return Inactive()
	}

	if IsJWTActive(info.JWTToken, m.clock.Now()) {
		m.startLoopLocked()
		return Active(info.JWTToken)
	}

	resp, err := m.repo.RefreshSession(ctx, m.headersLocked(), api.RefreshRequest{
		AppID:        m.appID,
		RefreshToken: info.RefreshToken,
		Origin:       m.origin,
		LoginURI:     m.loginURILocked(),
	})
	if err != nil {
		logger.Debugf("session refresh failed: %v", err)
		m.send(telemetry.SessionError, errorParams("refresh", err))
		return Inactive()
	}
	jwt := resp.JWT()
	if !IsJWTActive(jwt, m.clock.Now()) {
		return Inactive()
	}

	refreshed := merge(info, resp)
	if err := m.saveLocked(refreshed); err != nil {
		m.discardLocked(err)
		return Inactive()
	}
	m.startLoopLocked()
	return Active(jwt)
}

// Logout deletes the local session, stops the refresh loop and then asks
// the server to revoke the session. Without a stored session it does
// nothing.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	info, ok, err := m.loadLocked()
	if err == nil && !ok {
		m.mu.Unlock()
		return
	}
	headers := m.headersLocked()
	req := api.DeleteRequest{AppID: m.appID, Origin: m.origin, LoginURI: m.loginURILocked()}
	if delErr := m.deleteLocked(); delErr != nil {
		logger.Warnf("logout: delete local session: %v", delErr)
	}
	m.stopLoopLocked()
	m.mu.Unlock()

	m.send(telemetry.LogoutSession, nil)
	if info.SessionToken == "" {
		return
	}
	if _, err := m.repo.DeleteSession(ctx, headers, info.SessionToken, req); err != nil {
		logger.Debugf("logout: remote delete failed: %v", err)
	}
}

// RefreshLoopRunning reports whether the background loop is active.
func (m *Manager) RefreshLoopRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loopCancel != nil
}

// StartRefreshLoop starts the background loop if it is not running.
func (m *Manager) StartRefreshLoop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startLoopLocked()
}

// Close stops the refresh loop and waits for it to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	done := m.loopDone
	m.stopLoopLocked()
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (m *Manager) startLoopLocked() {
	if m.loopCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.loopCancel = cancel
	m.loopDone = done
	go m.runLoop(ctx, done)
}

func (m *Manager) stopLoopLocked() {
	if m.loopCancel == nil {
		return
	}
	m.loopCancel()
	m.loopCancel = nil
	m.loopDone = nil
}

func (m *Manager) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(m.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		m.refreshCycle(ctx)
		timer.Reset(m.interval)
	}
}

// refreshCycle re-authenticates the stored session once. The network call
// runs without holding mu; the result is only written back if the loop is
// still live and the stored session has not been replaced meanwhile.
func (m *Manager) refreshCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("session refresh loop panic: %v\n%s", r, debug.Stack())
		}
	}()

	m.mu.Lock()
	info, ok, err := m.loadLocked()
	headers := m.headersLocked()
	req := api.AuthenticateRequest{
		SessionToken:    info.SessionToken,
		SessionTokenJWT: info.JWTToken,
		AppID:           m.appID,
		Origin:          m.origin,
		LoginURI:        m.loginURILocked(),
	}
	m.mu.Unlock()
	if err != nil {
		logger.Debugf("session refresh: load failed: %v", err)
		return
	}
	if !ok {
		return
	}

	resp, err := m.repo.AuthenticateSession(ctx, headers, req)
	if err != nil {
		logger.Debugf("session refresh: authenticate failed: %v", err)
		return
	}
	jwt := resp.JWT()
	if !IsJWTActive(jwt, m.clock.Now()) {
		logger.Debugf("session refresh: received expired jwt")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	current, ok, err := m.loadLocked()
	if err != nil || !ok || current.SessionToken != info.SessionToken {
		return
	}
	if err := m.saveLocked(merge(current, resp)); err != nil {
		logger.Warnf("session refresh: save failed: %v", err)
	}
}

func (m *Manager) headersLocked() map[string]string {
	if m.state == "" {
		if state, ok, err := m.store.Get(storage.KeyState); err == nil && ok {
			m.state = state
		}
	}
	return map[string]string{
		"appId": m.appID,
		"state": m.state,
	}
}

func (m *Manager) loadLocked() (Info, bool, error) {
	raw, ok, err := m.store.Get(storage.KeySession)
	if err != nil {
		return Info{}, false, fmt.Errorf("load session: %w", err)
	}
	if !ok || raw == "" {
		return Info{}, false, nil
	}
	var info Info
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return Info{}, false, fmt.Errorf("decode session: %w", err)
	}
	return info, true, nil
}

func (m *Manager) saveLocked(info Info) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	if err := m.store.Set(storage.KeySession, string(raw)); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (m *Manager) deleteLocked() error {
	m.state = ""
	return m.store.Delete(storage.KeySession, storage.KeyState)
}

func (m *Manager) discardLocked(cause error) {
	logger.Warnf("discarding session: %v", cause)
	m.send(telemetry.SessionError, errorParams("unexpected", cause))
	if err := m.deleteLocked(); err != nil {
		logger.Warnf("delete session: %v", err)
	}
}

func (m *Manager) send(name string, params map[string]any) {
	if m.telemetry == nil {
		return
	}
	m.telemetry.Send(name, params)
}

func merge(info Info, resp *api.SessionResponse) Info {
	if resp.SessionToken != "" {
		info.SessionToken = resp.SessionToken
	}
	if resp.RefreshToken != "" {
		info.RefreshToken = resp.RefreshToken
	}
	info.JWTToken = resp.JWT()
	return info
}

func errorParams(stage string, err error) map[string]any {
	params := map[string]any{"stage": stage, "error": err.Error()}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		params["status_code"] = apiErr.StatusCode
	}
	return params
}
