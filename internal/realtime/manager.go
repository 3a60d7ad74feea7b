package realtime

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"github.com/otpless/loginpage/internal/telemetry"
	"github.com/otpless/loginpage/internal/websocket"
	"github.com/otpless/loginpage/pkg/logger"
	"github.com/otpless/loginpage/pkg/types"
	"github.com/rs/zerolog"
)

// Channel is the single logical channel both directions use.
const Channel = "message"

// ErrEmptyRoomID is returned when Open is called before a room id exists.
var ErrEmptyRoomID = errors.New("realtime: empty room id")

// ErrClosed is returned by Emit when no channel is open.
var ErrClosed = errors.New("realtime: channel closed")

// Socket is the transport a Manager drives.
type Socket interface {
	On(event string, handler websocket.Handler)
	Connect() error
	Emit(event string, data any) error
	Close() error
}

// Dialer creates an unconnected Socket for a room.
type Dialer func(roomID string) Socket

// WebsocketDialer dials rooms on the connect backend at baseURL.
func WebsocketDialer(baseURL string) Dialer {
	return func(roomID string) Socket {
		return websocket.NewRoomClient(baseURL, roomID)
	}
}

// Callbacks are the host capabilities inbound events need.
type Callbacks struct {
	// AppInfo returns the payload answered to an app info request.
	AppInfo func() map[string]any
	// OnResult receives the terminal result carried by an auth response.
	OnResult func(types.AuthResult)
	// OnAuthPayload receives the raw auth response object, before OnResult.
	OnAuthPayload func(map[string]any)
	// PerformSNA runs a silent network auth request over cellular.
	PerformSNA func(ctx context.Context, rawURL string) map[string]any
}

// Telemetry receives best-effort events.
type Telemetry interface {
	Send(name string, params map[string]any)
}

// Option configures a Manager.
type Option func(*Manager)

// WithTelemetry installs a telemetry sink.
func WithTelemetry(t Telemetry) Option {
	return func(m *Manager) { m.telemetry = t }
}

// Manager owns at most one room connection at a time.
type Manager struct {
	dial      Dialer
	cb        Callbacks
	telemetry Telemetry
	log       zerolog.Logger

	mu     sync.Mutex
	sock   Socket
	roomID string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a Manager.
func NewManager(dial Dialer, cb Callbacks, opts ...Option) *Manager {
	m := &Manager{dial: dial, cb: cb, log: logger.With("realtime")}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open connects to roomID. Opening the room that is already open does
// nothing; opening another room replaces the current connection.
func (m *Manager) Open(roomID string) error {
	if roomID == "" {
		return ErrEmptyRoomID
	}

	m.mu.Lock()
	if m.sock != nil && m.roomID == roomID {
		m.mu.Unlock()
		return nil
	}
	m.closeLocked()

	sock := m.dial(roomID)
	ctx, cancel := context.WithCancel(context.Background())
	m.sock = sock
	m.roomID = roomID
	m.cancel = cancel
	m.mu.Unlock()

	sock.On(websocket.EventConnect, func([]any) {
		m.send(telemetry.ConnectConnection, map[string]any{"connected": true})
	})
	sock.On(websocket.EventDisconnect, func(args []any) {
		m.send(telemetry.ConnectionDropped, map[string]any{"reason": argString(args)})
	})
	sock.On(websocket.EventConnectError, func(args []any) {
		m.send(telemetry.ConnectionError, map[string]any{"error": argString(args)})
	})
	sock.On(Channel, func(args []any) {
		m.handle(ctx, sock, args)
	})

	if err := sock.Connect(); err != nil {
		m.mu.Lock()
		if m.sock == sock {
			m.closeLocked()
		}
		m.mu.Unlock()
		m.send(telemetry.ConnectionError, map[string]any{"error": err.Error()})
		return err
	}
	m.log.Debug().Str("room", roomID).Msg("channel opened")
	return nil
}

// RoomID returns the room of the open channel, or "".
func (m *Manager) RoomID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomID
}

// IsOpen reports whether a channel is open.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sock != nil
}

// Emit sends {event_name, event_value} on the channel.
func (m *Manager) Emit(code string, value any) error {
	m.mu.Lock()
	sock := m.sock
	m.mu.Unlock()
	if sock == nil {
		return ErrClosed
	}
	if err := sock.Emit(Channel, map[string]any{
		"event_name":  code,
		"event_value": value,
	}); err != nil {
		return err
	}
	m.send(telemetry.ConnectEventsSent, map[string]any{"event_name": code})
	return nil
}

// Close disconnects the channel and abandons in-flight SNA requests.
// Calling it more than once is safe.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

// Wait blocks until background SNA requests have returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) closeLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.sock != nil {
		if err := m.sock.Close(); err != nil {
			m.log.Debug().Err(err).Msg("close socket")
		}
		m.sock = nil
	}
	m.roomID = ""
}

func (m *Manager) current(sock Socket) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sock == sock
}

func (m *Manager) handle(ctx context.Context, sock Socket, args []any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("realtime handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	if !m.current(sock) {
		return
	}

	ev, ok := ParseEvent(args)
	if !ok {
		m.log.Debug().Interface("raw", ev.Raw).Msg("undecodable message")
		return
	}
	m.send(telemetry.ConnectEventsReceived, map[string]any{"event_name": ev.Name})

	switch ev.Type {
	case TypeAppInfo:
		var info map[string]any
		if m.cb.AppInfo != nil {
			info = m.cb.AppInfo()
		}
		if err := m.Emit(string(TypeAppInfo), info); err != nil {
			m.log.Debug().Err(err).Msg("reply app info")
		}
	case TypeAuthResponse:
		m.deliverAuth(ev.Value)
	case TypeCellularResponse:
		rawURL, _ := ev.Value["url"].(string)
		if rawURL == "" {
			m.log.Debug().Msg("cellular request without url")
			return
		}
		m.startSNA(ctx, rawURL)
	case TypeError:
		m.log.Warn().Interface("value", ev.Value).Msg("error event")
	default:
		m.log.Debug().Str("event_name", ev.Name).Msg("ignoring event")
	}
}

// deliverAuth forwards an auth response. A payload without a string token
// still yields a success result with an empty token.
func (m *Manager) deliverAuth(value map[string]any) {
	if m.cb.OnAuthPayload != nil {
		m.cb.OnAuthPayload(value)
	}
	res, ok := types.SuccessFromPayload(value)
	if !ok {
		m.log.Warn().Msg("auth response without token")
		res = types.Success("", "", "")
	}
	if m.cb.OnResult != nil {
		m.cb.OnResult(res)
	}
}

func (m *Manager) startSNA(ctx context.Context, rawURL string) {
	if m.cb.PerformSNA == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		result := m.cb.PerformSNA(ctx, rawURL)
		if ctx.Err() != nil {
			return
		}
		if err := m.Emit(string(TypeCellularResponse), result); err != nil {
			m.log.Debug().Err(err).Msg("reply cellular result")
		}
	}()
}

func (m *Manager) send(name string, params map[string]any) {
	if m.telemetry == nil {
		return
	}
	m.telemetry.Send(name, params)
}

func argString(args []any) string {
	if len(args) == 0 {
		return ""
	}
	switch v := args[0].(type) {
	case string:
		return v
	case error:
		return v.Error()
	}
	return ""
}
