package events

import (
	"fmt"
	"strings"
	"sync"

	"github.com/otpless/loginpage/internal/telemetry"
	"github.com/otpless/loginpage/pkg/logger"
)

// Category is the coarse kind of a login page event.
type Category string

const (
	CategoryAction Category = "ACTION"
	CategoryClick  Category = "CLICK"
	CategoryLoad   Category = "LOAD"
)

// Type is the specific login page event.
type Type string

const (
	TypeInitiate          Type = "INITIATE"
	TypeVerifyError       Type = "VERIFY_ERROR"
	TypeOTPAutoRead       Type = "OTP_AUTO_READ"
	TypeDeliveryStatus    Type = "DELIVERY_STATUS"
	TypeFallbackTriggered Type = "FALLBACK_TRIGGERED"
	TypePhoneChange       Type = "PHONE_CHANGE"
	TypeVerify            Type = "VERIFY"
	TypeResend            Type = "RESEND"
	TypePageLoaded        Type = "PAGE_LOADED"
	TypeCustom            Type = "CUSTOM"
)

var categories = map[Category]struct{}{
	CategoryAction: {},
	CategoryClick:  {},
	CategoryLoad:   {},
}

var eventTypes = map[Type]struct{}{
	TypeInitiate:          {},
	TypeVerifyError:       {},
	TypeOTPAutoRead:       {},
	TypeDeliveryStatus:    {},
	TypeFallbackTriggered: {},
	TypePhoneChange:       {},
	TypeVerify:            {},
	TypeResend:            {},
	TypePageLoaded:        {},
	TypeCustom:            {},
}

// Event is a login page event reported by web content.
type Event struct {
	Category Category       `json:"category"`
	Type     Type           `json:"eventType"`
	MetaData map[string]any `json:"metaData"`
}

// ParseError describes why a payload is not a valid Event.
type ParseError struct {
	Key   string
	Value string
	// Missing is true when Key was absent rather than invalid.
	Missing bool
}

func (e *ParseError) Error() string {
	if e.Missing {
		return "Missing required key: " + e.Key
	}
	return fmt.Sprintf("Invalid value '%s' for key '%s'", e.Value, e.Key)
}

// Parse decodes payload["eventData"]. event and type are matched
// case-insensitively; metaData is optional.
func Parse(payload map[string]any) (Event, error) {
	data, ok := payload["eventData"].(map[string]any)
	if !ok {
		return Event{}, &ParseError{Key: "eventData", Missing: true}
	}
	rawCategory, ok := data["event"].(string)
	if !ok {
		return Event{}, &ParseError{Key: "event", Missing: true}
	}
	rawType, ok := data["type"].(string)
	if !ok {
		return Event{}, &ParseError{Key: "type", Missing: true}
	}
	meta, _ := data["metaData"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
	}

	category := Category(strings.ToUpper(rawCategory))
	if _, ok := categories[category]; !ok {
		return Event{}, &ParseError{Key: "event", Value: string(category)}
	}
	eventType := Type(strings.ToUpper(rawType))
	if _, ok := eventTypes[eventType]; !ok {
		return Event{}, &ParseError{Key: "type", Value: string(eventType)}
	}
	return Event{Category: category, Type: eventType, MetaData: meta}, nil
}

// Telemetry receives best-effort events.
type Telemetry interface {
	Send(name string, params map[string]any)
}

// Listener receives parsed events.
type Listener func(Event)

// Manager forwards events from web content to the host.
type Manager struct {
	telemetry Telemetry

	mu       sync.RWMutex
	listener Listener
}

// NewManager creates a Manager. telemetry may be nil.
func NewManager(t Telemetry) *Manager {
	return &Manager{telemetry: t}
}

// SetListener installs the host listener. A nil listener drops events.
func (m *Manager) SetListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = l
}

// Ingest parses payload and hands the event to the listener. Parse
// failures are reported to telemetry only.
func (m *Manager) Ingest(payload map[string]any) {
	ev, err := Parse(payload)
	if err != nil {
		logger.Debugf("event ingest: %v", err)
		m.send(telemetry.EventParsingError, map[string]any{"error": err.Error()})
		return
	}

	m.send(telemetry.WebEventIngested, map[string]any{
		"category": string(ev.Category),
		"type":     string(ev.Type),
	})
	m.mu.RLock()
	l := m.listener
	m.mu.RUnlock()
	if l != nil {
		l(ev)
	}
}

func (m *Manager) send(name string, params map[string]any) {
	if m.telemetry == nil {
		return
	}
	m.telemetry.Send(name, params)
}
