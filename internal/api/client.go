package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/otpless/loginpage/pkg/logger"
	"resty.dev/v3"
)

// Endpoint names reported to the Observer.
const (
	EndpointRoomToken    = "room_token"
	EndpointRoomID       = "room_id"
	EndpointAuthenticate = "session_authenticate"
	EndpointRefresh      = "session_refresh"
	EndpointDelete       = "session_delete"
)

const (
	roomTokenPath    = "/internal/v1/backed/session"
	roomIDPath       = "/api/rooms"
	authenticatePath = "/v4/session/authenticate"
	refreshPath      = "/v4/session/refresh"
	sessionPath      = "/v4/session/"
	telemetryPath    = "/prod/appevent"
)

// Observer is notified after every call except telemetry pushes. response is
// the decoded body on success or the error JSON on failure.
type Observer func(endpoint string, success bool, response map[string]any)

// Options configures a Client.
type Options struct {
	UserAuthURL  string
	ConnectURL   string
	APIURL       string
	TelemetryURL string
	Timeout      time.Duration
}

// Client performs the SDK's HTTP calls.
type Client struct {
	http     *resty.Client
	opts     Options
	observer Observer
}

type startedAtKey struct{}

// NewClient creates a Client with request logging middleware.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	opts.UserAuthURL = strings.TrimRight(opts.UserAuthURL, "/")
	opts.ConnectURL = strings.TrimRight(opts.ConnectURL, "/")
	opts.APIURL = strings.TrimRight(opts.APIURL, "/")
	opts.TelemetryURL = strings.TrimRight(opts.TelemetryURL, "/")

	client := resty.New().SetTimeout(opts.Timeout)
	client.AddRequestMiddleware(func(c *resty.Client, r *resty.Request) error {
		r.SetContext(context.WithValue(r.Context(), startedAtKey{}, time.Now()))
		return nil
	})
	client.AddResponseMiddleware(func(c *resty.Client, r *resty.Response) error {
		log := logger.With("api")
		started, _ := r.Request.Context().Value(startedAtKey{}).(time.Time)
		log.Debug().
			Str("method", r.Request.Method).
			Str("url", r.Request.URL).
			Int("status", r.StatusCode()).
			Dur("latency", time.Since(started)).
			Msg("HTTP client request")
		return nil
	})
	return &Client{http: client, opts: opts}
}

// SetObserver installs the per-call observer.
func (c *Client) SetObserver(observer Observer) {
	c.observer = observer
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// RoomToken exchanges an app secret for a room token.
func (c *Client) RoomToken(ctx context.Context, appID, secret string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, EndpointRoomToken, http.MethodPost, c.opts.UserAuthURL+roomTokenPath,
		map[string]string{"secret": secret}, map[string]string{"appId": appID}, &out)
	if err != nil {
		return "", err
	}
	return out.Token, nil
}

// RoomIDResponse is the body returned by the room endpoint.
type RoomIDResponse struct {
	Status int `json:"status"`
	Data   struct {
		RoomID string `json:"room_id"`
	} `json:"data"`
	Timestamp string `json:"timestamp"`
}

// RoomID creates a signaling room. headers carries either "appId" or "token".
func (c *Client) RoomID(ctx context.Context, headers map[string]string) (*RoomIDResponse, error) {
	var out RoomIDResponse
	if err := c.do(ctx, EndpointRoomID, http.MethodPost, c.opts.ConnectURL+roomIDPath, headers, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthenticateRequest is the body of the session authenticate call.
type AuthenticateRequest struct {
	SessionToken    string `json:"sessionToken"`
	SessionTokenJWT string `json:"sessionTokenJWT"`
	AppID           string `json:"appId"`
	Origin          string `json:"origin"`
	LoginURI        string `json:"loginUri"`
}

// RefreshRequest is the body of the session refresh call.
type RefreshRequest struct {
	AppID        string `json:"appId"`
	RefreshToken string `json:"refreshToken"`
	Origin       string `json:"origin"`
	LoginURI     string `json:"loginUri"`
}

// DeleteRequest is the body of the session delete call.
type DeleteRequest struct {
	AppID    string `json:"appId"`
	Origin   string `json:"origin"`
	LoginURI string `json:"loginUri"`
}

// SessionResponse is the union of the session endpoint response bodies.
type SessionResponse struct {
	SessionToken    string `json:"sessionToken,omitempty"`
	RefreshToken    string `json:"refreshToken,omitempty"`
	JWTToken        string `json:"jwtToken,omitempty"`
	SessionTokenJWT string `json:"sessionTokenJWT,omitempty"`
	Success         bool   `json:"success,omitempty"`
	Message         string `json:"message,omitempty"`
}

// JWT returns whichever JWT field the endpoint populated.
func (r *SessionResponse) JWT() string {
	if r == nil {
		return ""
	}
	if r.JWTToken != "" {
		return r.JWTToken
	}
	return r.SessionTokenJWT
}

// Authenticate re-authenticates an existing session.
func (c *Client) Authenticate(ctx context.Context, headers map[string]string, req AuthenticateRequest) (*SessionResponse, error) {
	var out SessionResponse
	if err := c.do(ctx, EndpointAuthenticate, http.MethodPost, c.opts.APIURL+authenticatePath, headers, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges a refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, headers map[string]string, req RefreshRequest) (*SessionResponse, error) {
	var out SessionResponse
	if err := c.do(ctx, EndpointRefresh, http.MethodPost, c.opts.APIURL+refreshPath, headers, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession revokes sessionToken on the server.
func (c *Client) DeleteSession(ctx context.Context, headers map[string]string, sessionToken string, req DeleteRequest) (*SessionResponse, error) {
	var out SessionResponse
	target := c.opts.APIURL + sessionPath + url.PathEscape(sessionToken)
	if err := c.do(ctx, EndpointDelete, http.MethodDelete, target, headers, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PushEvent sends one telemetry event as query parameters. The response body
// is ignored.
func (c *Client) PushEvent(ctx context.Context, params map[string]string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(c.opts.TelemetryURL + telemetryPath)
	if err != nil {
		return transportError(err)
	}
	if resp.IsError() {
		return statusError(resp.StatusCode(), resp.Bytes())
	}
	return nil
}

func (c *Client) do(ctx context.Context, endpoint, method, target string, headers map[string]string, body, out any) error {
	req := c.http.R().SetContext(ctx).SetHeader("Content-Type", "application/json")
	for k, v := range headers {
		if v != "" {
			req.SetHeader(k, v)
		}
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, target)
	if err != nil {
		apiErr := transportError(err)
		c.notify(endpoint, false, apiErr.ResponseJSON)
		return apiErr
	}

	raw := resp.Bytes()
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		apiErr := statusError(resp.StatusCode(), raw)
		c.notify(endpoint, false, apiErr.ResponseJSON)
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			apiErr := decodeError(resp.StatusCode(), raw, err)
			c.notify(endpoint, false, apiErr.ResponseJSON)
			return apiErr
		}
	}

	var summary map[string]any
	_ = json.Unmarshal(raw, &summary)
	c.notify(endpoint, true, summary)
	return nil
}

func (c *Client) notify(endpoint string, success bool, response map[string]any) {
	if c.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("api observer panic: %v", r)
		}
	}()
	c.observer(endpoint, success, response)
}

// AsError unwraps err into an *Error, synthesizing one when err came from
// elsewhere.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return transportError(err)
}
