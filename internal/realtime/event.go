package realtime

import (
	"encoding/json"
	"strconv"
)

// Type identifies an inbound event.
type Type string

const (
	TypeAppInfo          Type = "8"
	TypeAuthResponse     Type = "11"
	TypeCellularResponse Type = "42"
	TypeError            Type = "error"
	TypeUnknown          Type = "unknown"
)

var knownTypes = map[string]Type{
	string(TypeAppInfo):          TypeAppInfo,
	string(TypeAuthResponse):     TypeAuthResponse,
	string(TypeCellularResponse): TypeCellularResponse,
	string(TypeError):            TypeError,
}

// Event is a decoded inbound envelope.
type Event struct {
	Type      Type
	Name      string
	Value     map[string]any
	MessageID string
	SenderID  string
	// Raw holds the undecoded first argument for TypeUnknown events.
	Raw any
}

// ParseEvent decodes the first element of a message's arguments. Fields
// that are missing or of the wrong type fall back to empty values, and an
// unrecognized event_name yields TypeUnknown. ok is false only when the
// first argument is not an object at all.
func ParseEvent(args []any) (Event, bool) {
	if len(args) == 0 {
		return Event{Type: TypeUnknown, Value: map[string]any{}}, false
	}
	envelope, ok := asObject(args[0])
	if !ok {
		return Event{Type: TypeUnknown, Value: map[string]any{}, Raw: args[0]}, false
	}

	ev := Event{
		Name:      scalarString(envelope["event_name"]),
		Value:     map[string]any{},
		MessageID: scalarString(envelope["messageId"]),
		SenderID:  scalarString(envelope["senderId"]),
	}
	if value, ok := asObject(envelope["event_value"]); ok {
		ev.Value = value
	}
	if t, ok := knownTypes[ev.Name]; ok {
		ev.Type = t
	} else {
		ev.Type = TypeUnknown
		ev.Raw = envelope
	}
	return ev, true
}

// asObject accepts a decoded JSON object, or a JSON object encoded as a
// string or bytes.
func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case string:
		return decodeObject([]byte(t))
	case []byte:
		return decodeObject(t)
	case json.RawMessage:
		return decodeObject(t)
	}
	return nil, false
}

func decodeObject(raw []byte) (map[string]any, bool) {
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}
