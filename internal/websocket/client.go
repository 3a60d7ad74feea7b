package websocket

import (
	"crypto/tls"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/otpless/loginpage/pkg/logger"
	"github.com/rs/zerolog"
	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"
)

// Socket.IO lifecycle event names.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
)

// DefaultPath is the Socket.IO endpoint path on the connect backend.
const DefaultPath = "/socket.io"

// ErrNotConnected is returned by Emit before Connect or after Close.
var ErrNotConnected = errors.New("websocket: not connected")

// Handler receives the raw arguments of one inbound event.
type Handler func(args []any)

// Options configures a Client.
type Options struct {
	// URL is the connect backend base URL.
	URL string
	// Path overrides DefaultPath.
	Path string
	// Query is sent with the handshake.
	Query url.Values
	// InsecureTLS accepts self-signed certificates.
	InsecureTLS bool
}

// Client is a Socket.IO client bound to one room.
type Client struct {
	opts      Options
	socket    *socket.Socket
	mu        sync.RWMutex
	handlers  map[string]Handler
	closeOnce sync.Once
	connected bool
	log       zerolog.Logger
}

// NewClient creates a Client. Handlers must be registered with On before
// Connect.
func NewClient(opts Options) *Client {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	return &Client{
		opts:     opts,
		handlers: make(map[string]Handler),
		log:      logger.With("websocket"),
	}
}

// NewRoomClient creates a Client that joins roomID on the connect backend.
func NewRoomClient(baseURL, roomID string) *Client {
	return NewClient(Options{
		URL:         baseURL + "/?token=" + url.QueryEscape(roomID),
		Query:       url.Values{"token": []string{roomID}},
		InsecureTLS: true,
	})
}

// On registers the handler for event. Lifecycle events may be observed too.
func (c *Client) On(event string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = handler
}

// Connect registers the handlers and then dials the backend. Reconnection
// is handled by the transport.
func (c *Client) Connect() error {
	c.log.Debug().Str("url", c.opts.URL).Str("path", c.opts.Path).Msg("connecting")

	opts := socket.DefaultOptions()
	opts.SetPath(c.opts.Path)
	opts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))
	opts.SetReconnection(true)
	opts.SetAutoConnect(false)
	if len(c.opts.Query) > 0 {
		opts.SetQuery(c.opts.Query)
	}
	if c.opts.InsecureTLS {
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec
	}

	sock, err := socket.Connect(c.opts.URL, opts)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.socket = sock
	events := make([]string, 0, len(c.handlers))
	for event := range c.handlers {
		events = append(events, event)
	}
	c.mu.Unlock()

	sock.On(types.EventName(EventConnect), func(args ...any) {
		c.setConnected(true)
		c.log.Debug().Str("id", string(sock.Id())).Msg("connected")
		c.dispatch(EventConnect, args)
	})
	sock.On(types.EventName(EventDisconnect), func(args ...any) {
		c.setConnected(false)
		c.log.Debug().Interface("reason", first(args)).Msg("disconnected")
		c.dispatch(EventDisconnect, args)
	})
	sock.On(types.EventName(EventConnectError), func(args ...any) {
		c.log.Warn().Interface("error", first(args)).Msg("connection error")
		c.dispatch(EventConnectError, args)
	})

	for _, event := range events {
		if event == EventConnect || event == EventDisconnect || event == EventConnectError {
			continue
		}
		name := event
		sock.On(types.EventName(name), func(args ...any) {
			c.log.Trace().Str("event", name).Msg("received")
			c.dispatch(name, args)
		})
	}

	// Handlers are in place before the handshake so early pushes are seen.
	sock.Connect()
	return nil
}

func (c *Client) dispatch(event string, args []any) {
	c.mu.RLock()
	handler, ok := c.handlers[event]
	c.mu.RUnlock()
	if ok && handler != nil {
		go handler(args)
	}
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// Emit sends data under event.
func (c *Client) Emit(event string, data any) error {
	c.mu.RLock()
	sock := c.socket
	c.mu.RUnlock()
	if sock == nil {
		return ErrNotConnected
	}
	c.log.Trace().Str("event", event).Msg("sending")
	sock.Emit(event, data)
	return nil
}

// WaitForConnect polls until the socket reports connected or timeout
// elapses.
func (c *Client) WaitForConnect(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.IsConnected() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return c.IsConnected()
}

// IsConnected reports whether the transport is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	sock := c.socket
	connected := c.connected
	c.mu.RUnlock()
	if connected {
		return true
	}
	return sock != nil && sock.Connected()
}

// Close disconnects. Calling it more than once is safe.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		sock := c.socket
		c.socket = nil
		c.connected = false
		c.mu.Unlock()
		if sock != nil {
			sock.Disconnect()
		}
	})
	return nil
}

func first(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}
