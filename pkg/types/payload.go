package types

// SuccessFromPayload builds a success result from an auth response object.
// The token is read from "token"; the optional session JWT and Firebase
// token are read from the "sessionInfo" and "firebaseInfo" sub-objects.
// ok is false when payload carries no string token.
func SuccessFromPayload(payload map[string]any) (AuthResult, bool) {
	token, ok := payload["token"].(string)
	if !ok {
		return AuthResult{}, false
	}
	var sessionJWT, firebase string
	if info, ok := payload["sessionInfo"].(map[string]any); ok {
		sessionJWT = firstString(info, "sessionTokenJWT", "jwtToken")
	}
	if info, ok := payload["firebaseInfo"].(map[string]any); ok {
		firebase = firstString(info, "firebaseToken", "fireBaseToken")
	}
	return Success(token, sessionJWT, firebase), true
}

// FailureFromPayload builds an error result from an error object. Missing
// fields fall back to INITIATE, CodeUnknown and an empty message.
func FailureFromPayload(payload map[string]any) AuthResult {
	errorType := ErrorTypeInitiate
	if raw, ok := payload["errorType"].(string); ok && raw != "" {
		errorType = ErrorType(raw)
	}
	code := CodeUnknown
	switch v := payload["errorCode"].(type) {
	case float64:
		code = int(v)
	case int:
		code = v
	case int64:
		code = int(v)
	}
	message, _ := payload["errorMessage"].(string)
	return Failure(errorType, code, message)
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
