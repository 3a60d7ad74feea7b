package telemetry

import "strings"

// Event names pushed by the SDK.
const (
	InitializationStarted = "native_lp_initialization_started"
	CallbackSet           = "native_lp_callback_set"
	APIInitialized        = "native_lp_api_initialized"
	APIResponse           = "native_lp_api_response"
	ConnectConnection     = "native_lp_connect_connection"
	ConnectEventsReceived = "native_lp_connect_events_received"
	ConnectEventsSent     = "native_lp_connect_events_sent"
	OnNewIntent           = "native_lp_on_new_intent"
	SNAURLInitiated       = "native_lp_sna_url_initiated"
	SNAURLRedirection     = "native_lp_sna_url_redirection"
	SNAURLResponse        = "native_lp_sna_url_response"
	ClientCommit          = "native_lp_client_commit"

	NativeErrorResult    = "native_lp_error_result"
	NativeWebErrorResult = "native_lp_web_error_result"
	NativeSuccessResult  = "native_lp_success_result"

	GetActiveSession  = "native_lp_get_active_session"
	SessionError      = "native_lp_session_error"
	LogoutSession     = "native_lp_logout_session"
	EventParsingError = "native_lp_event_parsing_error"
	WebEventIngested  = "native_lp_web_event"
	ConnectionError   = "native_lp_connect_error"
	ConnectionDropped = "native_lp_connect_disconnect"
)

// Auth lifecycle events reported by hosts through UserAuthEvent.
const (
	AuthInitiated = "AUTH_INITIATED"
	AuthSuccess   = "AUTH_SUCCESS"
	AuthFailed    = "AUTH_FAILED"
)

// Provider types reported by hosts through UserAuthEvent.
const (
	ProviderClient  = "CLIENT"
	ProviderOtpless = "OTPLESS"
)

// NativeName maps a host supplied auth event or provider type onto the
// telemetry namespace.
func NativeName(value string) string {
	return strings.ToLower("native_lp_cle_" + value)
}
