package sdk

import (
	"errors"

	"github.com/otpless/loginpage/internal/bridge"
)

// ErrNoPresenter is returned when web content asks for an in-app page and
// no flow is presenting.
var ErrNoPresenter = errors.New("no active presenter")

// SetWebView attaches the embedded login page. Scripts answering bridge
// requests are evaluated on it from the callbacks goroutine.
func (c *Client) SetWebView(w bridge.WebView) {
	c.mu.Lock()
	c.webView = w
	c.mu.Unlock()
}

// HandleBridgeMessage runs one message posted by the embedded login page
// and reports whether its key was recognized.
func (c *Client) HandleBridgeMessage(body string) bool {
	return c.bridge.Handle(c.ctx, body)
}

// webViewProxy forwards scripts to whichever web view is attached.
type webViewProxy struct{ c *Client }

func (p webViewProxy) EvaluateScript(script string) {
	p.c.mu.Lock()
	w := p.c.webView
	p.c.mu.Unlock()
	if w == nil {
		p.c.log.Debug().Msg("no web view attached, dropping script")
		return
	}
	_ = p.c.callbacks.do(func() {
		defer func() {
			if r := recover(); r != nil {
				p.c.logPanic("WebView.EvaluateScript", r)
			}
		}()
		w.EvaluateScript(script)
	})
}

// bridgeHost exposes the device and presenter to web content.
type bridgeHost struct{ c *Client }

func (h bridgeHost) OpenURL(rawURL string) error {
	return h.c.device.OpenURL(rawURL)
}

func (h bridgeHost) InAppActive() bool {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	return h.c.presenting && h.c.presenter != nil
}

// PresentInApp queues rawURL on the active presenter. Bridge messages may
// arrive on the callbacks goroutine, so it does not wait for the result.
func (h bridgeHost) PresentInApp(rawURL string) error {
	h.c.mu.Lock()
	presenter := h.c.presenter
	h.c.mu.Unlock()
	if presenter == nil {
		return ErrNoPresenter
	}
	return h.c.callbacks.do(func() {
		defer func() {
			if r := recover(); r != nil {
				h.c.logPanic("Presenter.Present", r)
			}
		}()
		if err := presenter.Present(rawURL); err != nil {
			h.c.log.Warn().Err(err).Msg("present in-app url")
		}
	})
}

func (h bridgeHost) AppInfo() map[string]any {
	return h.c.appInfo()
}

func (h bridgeHost) AppSignature() string {
	return h.c.device.AppSignature()
}

// DismissView detaches the embedded page ahead of a final response.
func (h bridgeHost) DismissView() {
	h.c.mu.Lock()
	h.c.webView = nil
	h.c.mu.Unlock()
}

// appInfo is the device payload answered to app info requests from the
// page or the realtime channel.
func (c *Client) appInfo() map[string]any {
	info := make(map[string]any)
	for k, v := range c.device.AppInfo() {
		info[k] = v
	}
	info["packageName"] = c.device.PackageName()
	info["platform"] = c.device.Platform()
	info["hasWhatsapp"] = c.device.HasWhatsApp()
	info["inid"] = c.tracker.InstallationID()
	info["tsid"] = c.tracker.TrackingID()
	info["sdkVersion"] = Version
	return info
}
