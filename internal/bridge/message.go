package bridge

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Keys understood by Handler.
const (
	KeyUnknown      = 0
	KeyOpenDeeplink = 7
	KeyAppInfo      = 8
	KeyEvent        = 15
	KeyCellular     = 42
	KeyResponse     = 69
)

// Message is a decoded web content message.
type Message struct {
	Key     int
	Payload map[string]any
	// RawKey is the undecoded key when Key is KeyUnknown.
	RawKey any
}

// ParseMessage decodes a JSON message body. The key may be a number or a
// numeric string; anything else yields KeyUnknown. ok is false only when
// body is not a JSON object.
func ParseMessage(body string) (Message, bool) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(body), &payload); err != nil || payload == nil {
		return Message{Key: KeyUnknown}, false
	}
	msg := Message{Payload: payload}
	switch k := payload["key"].(type) {
	case float64:
		if k == float64(int(k)) {
			msg.Key = int(k)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(k)); err == nil {
			msg.Key = n
		}
	}
	if msg.Key == KeyUnknown {
		msg.RawKey = payload["key"]
	}
	return msg, true
}

// Script renders a call of fn with payload encoded as JSON. Newlines are
// stripped so the result is a single statement.
func Script(fn string, payload any) string {
	encoded, err := json.Marshal(payload)
	if err != nil {
		encoded = []byte("{}")
	}
	return strings.ReplaceAll(fn+"("+string(encoded)+")", "\n", "")
}
