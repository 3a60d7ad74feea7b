package sdk

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/otpless/loginpage/internal/config"
	"github.com/otpless/loginpage/internal/netmon"
	"github.com/otpless/loginpage/internal/realtime"
	"github.com/otpless/loginpage/internal/storage"
	"github.com/otpless/loginpage/internal/websocket"
	"github.com/otpless/loginpage/pkg/types"
	"github.com/stretchr/testify/require"
)

// fakeRooms serves room ids after delay. A negative delay never answers.
// The first failures calls return no room.
type fakeRooms struct {
	mu       sync.Mutex
	delay    time.Duration
	roomID   string
	failures int
	calls    int
}

func (r *fakeRooms) GetRoomID(ctx context.Context, _ map[string]string) (string, bool) {
	r.mu.Lock()
	r.calls++
	delay, id := r.delay, r.roomID
	if r.calls <= r.failures {
		id = ""
	}
	r.mu.Unlock()

	if delay < 0 {
		<-ctx.Done()
		return "", false
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(delay):
		}
	}
	return id, id != ""
}

func (r *fakeRooms) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *fakeRooms) GetRoomToken(context.Context, string, string) (string, bool) {
	return "", false
}

type nopPusher struct{}

func (nopPusher) PushEvent(context.Context, map[string]string) error { return nil }

type noCellular struct{}

func (noCellular) Perform(context.Context, *url.URL) map[string]any {
	return map[string]any{"errorCode": "unsupported"}
}

type fakeSocket struct {
	mu       sync.Mutex
	handlers map[string]websocket.Handler
	emits    []map[string]any
	closed   bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{handlers: map[string]websocket.Handler{}}
}

func (s *fakeSocket) On(event string, handler websocket.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = handler
}

func (s *fakeSocket) Connect() error { return nil }

func (s *fakeSocket) Emit(_ string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, _ := data.(map[string]any)
	s.emits = append(s.emits, m)
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) fire(args ...any) {
	s.mu.Lock()
	h := s.handlers[realtime.Channel]
	s.mu.Unlock()
	if h != nil {
		h(args)
	}
}

type fakePresenter struct {
	mu        sync.Mutex
	urls      []string
	at        []time.Time
	dismissed int
	err       error
}

func (p *fakePresenter) Present(loginURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.urls = append(p.urls, loginURL)
	p.at = append(p.at, time.Now())
	return p.err
}

func (p *fakePresenter) Dismiss() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dismissed++
}

func (p *fakePresenter) presented() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.urls...)
}

func (p *fakePresenter) dismissCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dismissed
}

type resultRecorder struct {
	ch chan types.AuthResult
}

func newResultRecorder() *resultRecorder {
	return &resultRecorder{ch: make(chan types.AuthResult, 8)}
}

func (r *resultRecorder) OnResult(res types.AuthResult) { r.ch <- res }

func (r *resultRecorder) next(t *testing.T) types.AuthResult {
	t.Helper()
	select {
	case res := <-r.ch:
		return res
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for result")
		return types.AuthResult{}
	}
}

func (r *resultRecorder) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case res := <-r.ch:
		t.Fatalf("unexpected result: %+v", res)
	case <-time.After(wait):
	}
}

type testEnv struct {
	client    *Client
	rooms     *fakeRooms
	monitor   *netmon.Static
	presenter *fakePresenter
	results   *resultRecorder

	mu      sync.Mutex
	sockets []*fakeSocket
}

func newTestEnv(t *testing.T, rooms *fakeRooms) *testEnv {
	t.Helper()
	if rooms == nil {
		rooms = &fakeRooms{roomID: "room-1"}
	}
	env := &testEnv{
		rooms:     rooms,
		monitor:   netmon.NewStatic(true, false),
		presenter: &fakePresenter{},
		results:   newResultRecorder(),
	}
	cfg := config.Default()
	cfg.HomeDir = t.TempDir()

	c, err := New(cfg,
		WithStore(storage.NewMemory()),
		WithRoomRepository(rooms),
		WithMonitor(env.monitor),
		WithTelemetryPusher(nopPusher{}),
		WithCellular(noCellular{}),
		WithDevice(&StaticDevice{Package: "com.example.app", OS: "ios", Info: map[string]string{"model": "test"}}),
		WithDialer(func(string) realtime.Socket {
			s := newFakeSocket()
			env.mu.Lock()
			env.sockets = append(env.sockets, s)
			env.mu.Unlock()
			return s
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	c.SetListener(env.results)
	env.client = c
	return env
}

func (e *testEnv) socket(t *testing.T) *fakeSocket {
	t.Helper()
	var s *fakeSocket
	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		if len(e.sockets) == 0 {
			return false
		}
		s = e.sockets[len(e.sockets)-1]
		return true
	}, 3*time.Second, 10*time.Millisecond)
	return s
}

func (e *testEnv) waitPresented(t *testing.T) string {
	t.Helper()
	var urls []string
	require.Eventually(t, func() bool {
		urls = e.presenter.presented()
		return len(urls) > 0
	}, 3*time.Second, 5*time.Millisecond)
	return urls[len(urls)-1]
}

// sync waits for queued dispatch work to drain.
func (e *testEnv) sync() {
	_, _ = e.client.dispatch.call(func() (any, error) { return nil, nil })
}

var errFake = errors.New("fake failure")
