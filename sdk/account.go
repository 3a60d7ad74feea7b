package sdk

import (
	"context"

	"github.com/otpless/loginpage/internal/session"
	"github.com/otpless/loginpage/internal/telemetry"
)

// Session returns the persisted session orchestrator.
func (c *Client) Session() *session.Manager {
	return c.sessions
}

// GetActiveSession reports whether a live session exists, refreshing an
// expired one.
func (c *Client) GetActiveSession(ctx context.Context) session.State {
	return c.sessions.GetActiveSession(ctx)
}

// Logout clears the local session and revokes it on the server.
func (c *Client) Logout(ctx context.Context) {
	c.sessions.Logout(ctx)
}

// UserAuthEvent reports a host driven authentication step.
func (c *Client) UserAuthEvent(event, providerType string, fallback bool, providerInfo map[string]string) {
	info := make(map[string]any, len(providerInfo))
	for k, v := range providerInfo {
		info[k] = v
	}
	fb := "false"
	if fallback {
		fb = "true"
	}
	c.tracker.Send(telemetry.NativeName(event), map[string]any{
		"providerType": telemetry.NativeName(providerType),
		"fallback":     fb,
		"providerInfo": info,
	})
}

// saveAuthPayload persists the session carried by an auth response. A
// payload without a session token is ignored.
func (c *Client) saveAuthPayload(payload map[string]any) {
	raw, _ := payload["sessionInfo"].(map[string]any)
	if raw == nil {
		return
	}
	info := session.Info{
		SessionToken: stringField(raw, "sessionToken"),
		RefreshToken: stringField(raw, "refreshToken"),
		JWTToken:     stringField(raw, "sessionTokenJWT", "jwtToken"),
	}
	if info.SessionToken == "" {
		return
	}
	state := stringField(raw, "state")
	if state == "" {
		state = stringField(payload, "state")
	}
	if err := c.sessions.SaveSession(info, state); err != nil {
		c.log.Warn().Err(err).Msg("save session from auth response")
		return
	}
	c.sessions.StartRefreshLoop()
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
