package bridge

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/otpless/loginpage/pkg/types"
)

// ParseResponse maps a final response payload onto a result. The first
// match wins:
//
//  1. decoded "response" carrying a token
//  2. top level "token"
//  3. decoded "error"
//  4. decoded "response" read as an error
//  5. unknown response error
func ParseResponse(payload map[string]any) types.AuthResult {
	response := decodeObject(payload["response"])
	if response != nil {
		if res, ok := types.SuccessFromPayload(response); ok {
			return res
		}
	}
	if res, ok := types.SuccessFromPayload(payload); ok {
		return res
	}
	if errObj := decodeObject(payload["error"]); errObj != nil {
		return types.FailureFromPayload(errObj)
	}
	if response != nil {
		return types.FailureFromPayload(response)
	}
	return types.Failure(types.ErrorTypeInitiate, types.CodeUnknown, types.MessageUnknownResponse)
}

// decodeObject accepts an object or a base64 encoded JSON object.
func decodeObject(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case string:
		return DecodeBase64JSON(t)
	}
	return nil
}

// DecodeBase64JSON decodes a base64 (standard or URL alphabet, padded or
// not) JSON object. It returns nil on any failure.
func DecodeBase64JSON(s string) map[string]any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		raw, err := enc.DecodeString(s)
		if err != nil {
			continue
		}
		var out map[string]any
		if err := json.Unmarshal(raw, &out); err == nil && out != nil {
			return out
		}
	}
	return nil
}
