package types

import "encoding/json"

// Status is the terminal status of a login flow.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrorType classifies a terminal error.
type ErrorType string

const (
	// ErrorTypeInitiate covers precondition, validation and unknown failures
	// that happen before the user authenticates.
	ErrorTypeInitiate ErrorType = "INITIATE"
	// ErrorTypeVerify is reserved for verification failures.
	ErrorTypeVerify ErrorType = "VERIFY"
	// ErrorTypeNetwork signals missing connectivity.
	ErrorTypeNetwork ErrorType = "NETWORK"
)

// Error codes delivered with ErrorType.
const (
	CodeUnknown        = -1
	CodeInvalidPhone   = 7102
	CodeInvalidEmail   = 7104
	CodeInternet       = 9103
	CodeNotInitialized = 9120
	CodeUserCancelled  = 10000
	CodeException      = 11000
)

// Human readable messages paired with the codes above.
const (
	MessageInternet        = "Internet is not available"
	MessageInvalidPhone    = "Invalid phone number"
	MessageInvalidEmail    = "Invalid email"
	MessageNotInitialized  = "Loginpage sdk not initialized"
	MessageUserCancelled   = "User cancelled"
	MessageUnknown         = "Unknown error"
	MessageUnknownResponse = "Unknown response"
	MessageURLError        = "Unknown url error"
	MessageLoadError       = "Request load error"
)

// AuthResult is the terminal value of a login flow.
//
// Success results always carry Token (possibly empty for legacy payloads).
// Error results always carry ErrorType and ErrorCode together.
type AuthResult struct {
	Status          Status    `json:"status"`
	Token           string    `json:"token,omitempty"`
	SessionTokenJWT string    `json:"sessionTokenJWT,omitempty"`
	FirebaseToken   string    `json:"fireBaseToken,omitempty"`
	TraceID         string    `json:"traceId"`
	ErrorType       ErrorType `json:"errorType,omitempty"`
	ErrorCode       int       `json:"errorCode,omitempty"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
}

// Success returns a success result.
func Success(token, sessionTokenJWT, firebaseToken string) AuthResult {
	return AuthResult{
		Status:          StatusSuccess,
		Token:           token,
		SessionTokenJWT: sessionTokenJWT,
		FirebaseToken:   firebaseToken,
	}
}

// Failure returns an error result.
func Failure(errorType ErrorType, code int, message string) AuthResult {
	if errorType == "" {
		errorType = ErrorTypeInitiate
	}
	return AuthResult{
		Status:       StatusError,
		ErrorType:    errorType,
		ErrorCode:    code,
		ErrorMessage: message,
	}
}

// WithTraceID returns a copy of r correlated with the given trace id.
func (r AuthResult) WithTraceID(traceID string) AuthResult {
	r.TraceID = traceID
	return r
}

// IsSuccess reports whether r is a success result.
func (r AuthResult) IsSuccess() bool {
	return r.Status == StatusSuccess
}

// Map flattens r into the key set reported to telemetry and hosts.
func (r AuthResult) Map() map[string]any {
	if r.IsSuccess() {
		return map[string]any{
			"token":           r.Token,
			"sessionTokenJWT": r.SessionTokenJWT,
			"fireBaseToken":   r.FirebaseToken,
			"traceId":         r.TraceID,
		}
	}
	return map[string]any{
		"errorCode":    r.ErrorCode,
		"errorMessage": r.ErrorMessage,
		"errorType":    string(r.ErrorType),
		"traceId":      r.TraceID,
	}
}

// JSON encodes r as a JSON object string.
func (r AuthResult) JSON() string {
	encoded, err := json.Marshal(r)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

// NewUserCancelled returns the error delivered when the user dismisses the
// login surface.
func NewUserCancelled() AuthResult {
	return Failure(ErrorTypeInitiate, CodeUserCancelled, MessageUserCancelled)
}
