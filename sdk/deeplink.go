package sdk

import (
	"net/url"
	"path"
	"strings"

	"github.com/otpless/loginpage/internal/bridge"
	"github.com/otpless/loginpage/internal/telemetry"
	"github.com/otpless/loginpage/pkg/types"
)

const (
	deeplinkHost  = "otpless"
	deeplinkClose = "close"
)

// IsOtplessDeeplink reports whether rawURL targets the SDK's callback host.
func IsOtplessDeeplink(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, deeplinkHost)
}

// IsOtplessDeeplink reports whether rawURL targets the SDK's callback host.
func (c *Client) IsOtplessDeeplink(rawURL string) bool {
	return IsOtplessDeeplink(rawURL)
}

// ParseDeeplink maps a close callback onto a result. ok is false for links
// that complete nothing.
func ParseDeeplink(rawURL string) (types.AuthResult, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !strings.EqualFold(u.Host, deeplinkHost) {
		return types.AuthResult{}, false
	}
	if !strings.EqualFold(path.Base(u.Path), deeplinkClose) {
		return types.AuthResult{}, false
	}
	q := u.Query()
	if q.Has("token") {
		return types.Success(q.Get("token"), "", ""), true
	}
	if q.Has("error") {
		// Standard base64 may carry '+', which query decoding turns into a space.
		encoded := strings.ReplaceAll(q.Get("error"), " ", "+")
		payload := bridge.DecodeBase64JSON(encoded)
		if payload == nil {
			payload = map[string]any{}
		}
		return types.FailureFromPayload(payload), true
	}
	return types.AuthResult{}, false
}

// ProcessDeeplink completes the running flow from a callback link. Links
// that are not close callbacks are ignored.
func (c *Client) ProcessDeeplink(rawURL string) {
	_ = c.dispatch.do(func() { c.processDeeplink(rawURL) })
}

func (c *Client) processDeeplink(rawURL string) {
	defer func() {
		if r := recover(); r != nil {
			c.logPanic("ProcessDeeplink", r)
		}
	}()
	c.tracker.Send(telemetry.OnNewIntent, map[string]any{"deeplink": redactLink(rawURL)})

	res, ok := ParseDeeplink(rawURL)
	if !ok {
		c.log.Debug().Msg("ignoring deeplink")
		return
	}
	if res.IsSuccess() {
		c.deliver(res, "")
		return
	}
	c.deliver(res, telemetry.NativeWebErrorResult)
}

// redactLink drops the token from a callback link before it is reported.
func redactLink(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
