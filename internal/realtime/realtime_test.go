package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/otpless/loginpage/internal/telemetry"
	"github.com/otpless/loginpage/internal/websocket"
	"github.com/otpless/loginpage/pkg/types"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	event string
	data  map[string]any
}

type fakeSocket struct {
	mu         sync.Mutex
	handlers   map[string]websocket.Handler
	emits      []emitted
	connectErr error
	closed     int
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{handlers: map[string]websocket.Handler{}}
}

func (s *fakeSocket) On(event string, handler websocket.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = handler
}

func (s *fakeSocket) Connect() error { return s.connectErr }

func (s *fakeSocket) Emit(event string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, _ := data.(map[string]any)
	s.emits = append(s.emits, emitted{event: event, data: m})
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSocket) fire(event string, args ...any) {
	s.mu.Lock()
	h := s.handlers[event]
	s.mu.Unlock()
	if h != nil {
		h(args)
	}
}

func (s *fakeSocket) sent() []emitted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]emitted(nil), s.emits...)
}

type recordingTelemetry struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingTelemetry) Send(name string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
}

func (r *recordingTelemetry) has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.names {
		if n == name {
			return true
		}
	}
	return false
}

type harness struct {
	sock    *fakeSocket
	mgr     *Manager
	tel     *recordingTelemetry
	mu      sync.Mutex
	results []types.AuthResult
}

func newHarness(t *testing.T, sna func(ctx context.Context, rawURL string) map[string]any) *harness {
	t.Helper()
	h := &harness{sock: newFakeSocket(), tel: &recordingTelemetry{}}
	h.mgr = NewManager(
		func(string) Socket { return h.sock },
		Callbacks{
			AppInfo: func() map[string]any { return map[string]any{"platform": "go"} },
			OnResult: func(res types.AuthResult) {
				h.mu.Lock()
				defer h.mu.Unlock()
				h.results = append(h.results, res)
			},
			PerformSNA: sna,
		},
		WithTelemetry(h.tel),
	)
	t.Cleanup(h.mgr.Close)
	return h
}

func (h *harness) delivered() []types.AuthResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.AuthResult(nil), h.results...)
}

func TestParseEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		args  []any
		ok    bool
		typ   Type
		value map[string]any
		msgID string
	}{
		{
			name:  "auth response",
			args:  []any{map[string]any{"event_name": "11", "event_value": map[string]any{"token": "xyz"}, "messageId": "m1"}},
			ok:    true,
			typ:   TypeAuthResponse,
			value: map[string]any{"token": "xyz"},
			msgID: "m1",
		},
		{
			name:  "numeric name and string value",
			args:  []any{map[string]any{"event_name": float64(42), "event_value": `{"url":"https://x"}`}},
			ok:    true,
			typ:   TypeCellularResponse,
			value: map[string]any{"url": "https://x"},
		},
		{
			name:  "json string envelope",
			args:  []any{`{"event_name":"8"}`, "ack"},
			ok:    true,
			typ:   TypeAppInfo,
			value: map[string]any{},
		},
		{
			name:  "unknown code",
			args:  []any{map[string]any{"event_name": "999"}},
			ok:    true,
			typ:   TypeUnknown,
			value: map[string]any{},
		},
		{
			name:  "malformed fields degrade",
			args:  []any{map[string]any{"event_name": "error", "event_value": []any{1}, "senderId": 7}},
			ok:    true,
			typ:   TypeError,
			value: map[string]any{},
		},
		{name: "no args", typ: TypeUnknown, value: map[string]any{}},
		{name: "not an object", args: []any{17}, typ: TypeUnknown, value: map[string]any{}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ev, ok := ParseEvent(tt.args)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.typ, ev.Type)
			require.Equal(t, tt.value, ev.Value)
			require.Equal(t, tt.msgID, ev.MessageID)
		})
	}
}

func TestParseEventUnknownKeepsRaw(t *testing.T) {
	t.Parallel()

	envelope := map[string]any{"event_name": "999", "extra": true}
	ev, ok := ParseEvent([]any{envelope})
	require.True(t, ok)
	require.Equal(t, envelope, ev.Raw)
	require.Equal(t, "999", ev.Name)
}

func TestOpenRefusesEmptyRoom(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.ErrorIs(t, h.mgr.Open(""), ErrEmptyRoomID)
	require.False(t, h.mgr.IsOpen())
}

func TestOpenConnectFailureCloses(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.sock.connectErr = errors.New("refused")
	require.Error(t, h.mgr.Open("room-1"))
	require.False(t, h.mgr.IsOpen())
	require.True(t, h.tel.has(telemetry.ConnectionError))
}

func TestAuthResponseDeliversSuccess(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.mgr.Open("room-1"))
	h.sock.fire(Channel, map[string]any{"event_name": "11", "event_value": map[string]any{"token": "xyz"}}, "ack")

	res := h.delivered()
	require.Len(t, res, 1)
	require.Equal(t, types.Success("xyz", "", ""), res[0])
	require.True(t, h.tel.has(telemetry.ConnectEventsReceived))
}

func TestUnknownEventIsIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.mgr.Open("room-1"))
	require.NotPanics(t, func() {
		h.sock.fire(Channel, map[string]any{"event_name": "999"})
		h.sock.fire(Channel)
		h.sock.fire(Channel, nil)
	})
	require.Empty(t, h.delivered())
	require.Empty(t, h.sock.sent())
}

func TestAppInfoRequestIsAnswered(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.mgr.Open("room-1"))
	h.sock.fire(Channel, map[string]any{"event_name": "8"})

	sent := h.sock.sent()
	require.Len(t, sent, 1)
	require.Equal(t, Channel, sent[0].event)
	require.Equal(t, "8", sent[0].data["event_name"])
	require.Equal(t, map[string]any{"platform": "go"}, sent[0].data["event_value"])
}

func TestCellularRequestEmitsResult(t *testing.T) {
	t.Parallel()

	var gotURL string
	h := newHarness(t, func(_ context.Context, rawURL string) map[string]any {
		gotURL = rawURL
		return map[string]any{"status": 200}
	})
	require.NoError(t, h.mgr.Open("room-1"))
	h.sock.fire(Channel, map[string]any{"event_name": "42", "event_value": map[string]any{"url": "https://sna.example/check"}})
	h.mgr.Wait()

	require.Equal(t, "https://sna.example/check", gotURL)
	sent := h.sock.sent()
	require.Len(t, sent, 1)
	require.Equal(t, "42", sent[0].data["event_name"])
	require.Equal(t, map[string]any{"status": 200}, sent[0].data["event_value"])
}

func TestCloseDropsLateResults(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	h := newHarness(t, func(ctx context.Context, _ string) map[string]any {
		<-release
		return map[string]any{"status": 200}
	})
	require.NoError(t, h.mgr.Open("room-1"))
	h.sock.fire(Channel, map[string]any{"event_name": "42", "event_value": map[string]any{"url": "https://sna.example"}})

	h.mgr.Close()
	h.mgr.Close()
	close(release)
	h.mgr.Wait()

	require.Empty(t, h.sock.sent())
	require.Equal(t, 1, h.sock.closed)
	require.ErrorIs(t, h.mgr.Emit("8", nil), ErrClosed)

	h.sock.fire(Channel, map[string]any{"event_name": "11", "event_value": map[string]any{"token": "late"}})
	require.Empty(t, h.delivered())
}

func TestOpenSameRoomIsNoop(t *testing.T) {
	t.Parallel()

	dials := 0
	sock := newFakeSocket()
	m := NewManager(func(string) Socket { dials++; return sock }, Callbacks{})
	defer m.Close()

	require.NoError(t, m.Open("room-1"))
	require.NoError(t, m.Open("room-1"))
	require.Equal(t, 1, dials)
	require.Equal(t, "room-1", m.RoomID())

	require.NoError(t, m.Open("room-2"))
	require.Equal(t, 2, dials)
	require.Equal(t, 1, sock.closed)
}

func TestLifecycleTelemetry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.mgr.Open("room-1"))
	h.sock.fire(websocket.EventConnect)
	h.sock.fire(websocket.EventDisconnect, "transport close")

	require.Eventually(t, func() bool {
		return h.tel.has(telemetry.ConnectConnection) && h.tel.has(telemetry.ConnectionDropped)
	}, time.Second, 5*time.Millisecond)
}
