package repository

import (
	"context"
	"net/url"
	"strings"

	"github.com/otpless/loginpage/internal/api"
	"github.com/otpless/loginpage/internal/telemetry"
	"github.com/otpless/loginpage/pkg/logger"
)

// API is the subset of *api.Client used by the repository.
type API interface {
	RoomToken(ctx context.Context, appID, secret string) (string, error)
	RoomID(ctx context.Context, headers map[string]string) (*api.RoomIDResponse, error)
	Authenticate(ctx context.Context, headers map[string]string, req api.AuthenticateRequest) (*api.SessionResponse, error)
	Refresh(ctx context.Context, headers map[string]string, req api.RefreshRequest) (*api.SessionResponse, error)
	DeleteSession(ctx context.Context, headers map[string]string, sessionToken string, req api.DeleteRequest) (*api.SessionResponse, error)
	PushEvent(ctx context.Context, params map[string]string) error
}

// Telemetry receives best-effort events.
type Telemetry interface {
	Send(name string, params map[string]any)
}

// SNAPerformer issues a request over the cellular radio.
type SNAPerformer interface {
	Perform(ctx context.Context, target *url.URL) map[string]any
}

// Repository exposes the SDK's domain operations on top of the API client.
//
// Simple accessors collapse every failure into ok=false. Session operations
// return *api.Error on failure.
type Repository struct {
	api       API
	cellular  SNAPerformer
	telemetry Telemetry
}

// New creates a Repository. When client supports observers, every API call
// is reported to telemetry with a redacted response summary.
func New(client API, cellular SNAPerformer) *Repository {
	r := &Repository{api: client, cellular: cellular}
	if o, ok := client.(interface{ SetObserver(api.Observer) }); ok {
		o.SetObserver(r.observe)
	}
	return r
}

// SetTelemetry installs the telemetry sink. The tracker itself pushes through
// the repository, so it is wired after construction.
func (r *Repository) SetTelemetry(t Telemetry) {
	r.telemetry = t
}

// GetRoomToken exchanges an app secret for a room token.
func (r *Repository) GetRoomToken(ctx context.Context, appID, secret string) (string, bool) {
	token, err := r.api.RoomToken(ctx, appID, secret)
	if err != nil {
		logger.Debugf("room token failed: %v", err)
		return "", false
	}
	if token == "" {
		return "", false
	}
	return token, true
}

// GetRoomID creates a signaling room. headers carries "appId" or "token".
func (r *Repository) GetRoomID(ctx context.Context, headers map[string]string) (string, bool) {
	resp, err := r.api.RoomID(ctx, headers)
	if err != nil {
		logger.Debugf("room id failed: %v", err)
		return "", false
	}
	if resp == nil || resp.Data.RoomID == "" {
		return "", false
	}
	return resp.Data.RoomID, true
}

// PerformSNA runs silent network auth against rawURL over the cellular path.
func (r *Repository) PerformSNA(ctx context.Context, rawURL string) map[string]any {
	target, err := ParseSNAURL(rawURL)
	if err != nil {
		return URLParseError()
	}
	r.send(telemetry.SNAURLInitiated, map[string]any{"url": target.Redacted()})
	if r.cellular == nil {
		return UnsupportedError()
	}
	return r.cellular.Perform(ctx, target)
}

// AuthenticateSession re-authenticates an existing session.
func (r *Repository) AuthenticateSession(ctx context.Context, headers map[string]string, req api.AuthenticateRequest) (*api.SessionResponse, error) {
	resp, err := r.api.Authenticate(ctx, headers, req)
	if err != nil {
		return nil, api.AsError(err)
	}
	return resp, nil
}

// RefreshSession exchanges a refresh token for a new session.
func (r *Repository) RefreshSession(ctx context.Context, headers map[string]string, req api.RefreshRequest) (*api.SessionResponse, error) {
	resp, err := r.api.Refresh(ctx, headers, req)
	if err != nil {
		return nil, api.AsError(err)
	}
	return resp, nil
}

// DeleteSession revokes a session on the server.
func (r *Repository) DeleteSession(ctx context.Context, headers map[string]string, sessionToken string, req api.DeleteRequest) (*api.SessionResponse, error) {
	resp, err := r.api.DeleteSession(ctx, headers, sessionToken, req)
	if err != nil {
		return nil, api.AsError(err)
	}
	return resp, nil
}

// PushEvent forwards one telemetry payload.
func (r *Repository) PushEvent(ctx context.Context, params map[string]string) error {
	return r.api.PushEvent(ctx, params)
}

func (r *Repository) observe(endpoint string, success bool, response map[string]any) {
	r.send(telemetry.APIResponse, map[string]any{
		"api_success": success,
		"which_api":   endpoint,
		"response":    Redact(response),
	})
}

func (r *Repository) send(name string, params map[string]any) {
	if r.telemetry == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warnf("telemetry %s panic: %v", name, rec)
		}
	}()
	r.telemetry.Send(name, params)
}

// ParseSNAURL accepts absolute http(s) URLs only.
func ParseSNAURL(rawURL string) (*url.URL, error) {
	target, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, err
	}
	if (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, &url.Error{Op: "parse", URL: rawURL, Err: errInvalidSNAURL}
	}
	return target, nil
}

// URLParseError is the result reported when an SNA URL cannot be parsed.
func URLParseError() map[string]any {
	return map[string]any{
		"errorCode":    "url_parsing_fail",
		"errorMessage": "Unable to parse url from string.",
	}
}
