package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	defaultErrorMessage = "Something Went Wrong!"
	unknownErrorMessage = "Unknown error"
)

// Error is the uniform failure shape for every API call.
type Error struct {
	Message      string
	StatusCode   int
	ResponseJSON map[string]any
}

// Error implements error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// transportError wraps a failure that produced no HTTP response.
func transportError(err error) *Error {
	return &Error{
		Message:    err.Error(),
		StatusCode: http.StatusInternalServerError,
		ResponseJSON: map[string]any{
			"errorCode":    "500",
			"errorMessage": defaultErrorMessage,
		},
	}
}

// statusError builds an Error from a non-2xx response body. The message is
// taken from "message", then "description", then the raw body.
func statusError(status int, body []byte) *Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	apiErr := &Error{StatusCode: status, Message: unknownErrorMessage}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		if len(body) > 0 {
			apiErr.Message = string(body)
		}
		apiErr.ResponseJSON = map[string]any{
			"errorCode":    fmt.Sprintf("%d", status),
			"errorMessage": apiErr.Message,
		}
		return apiErr
	}

	apiErr.ResponseJSON = decoded
	if msg, ok := decoded["message"].(string); ok && msg != "" {
		apiErr.Message = msg
	} else if desc, ok := decoded["description"].(string); ok && desc != "" {
		apiErr.Message = desc
	}
	return apiErr
}

// decodeError reports a 2xx response whose body did not match the contract.
func decodeError(status int, body []byte, err error) *Error {
	return &Error{
		Message:    fmt.Sprintf("malformed response: %v", err),
		StatusCode: status,
		ResponseJSON: map[string]any{
			"errorCode":    fmt.Sprintf("%d", status),
			"errorMessage": string(body),
		},
	}
}
