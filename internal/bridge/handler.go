package bridge

import (
	"context"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/otpless/loginpage/internal/repository"
	"github.com/otpless/loginpage/internal/telemetry"
	"github.com/otpless/loginpage/pkg/logger"
	"github.com/otpless/loginpage/pkg/types"
)

// Script entry points exposed by the login page.
const (
	FuncAppInfoResult  = "onAppInfoResult"
	FuncCellularResult = "onCellularNetworkResult"
)

// WebView runs scripts inside the embedded login page.
type WebView interface {
	EvaluateScript(script string)
}

// Host provides the native capabilities web content may request.
type Host interface {
	// OpenURL hands rawURL to the operating system.
	OpenURL(rawURL string) error
	// InAppActive reports whether an in-app web surface is showing.
	InAppActive() bool
	// PresentInApp shows rawURL in the active in-app surface.
	PresentInApp(rawURL string) error
	AppInfo() map[string]any
	AppSignature() string
	// DismissView detaches the embedded login page.
	DismissView()
}

// EventSink receives login page events.
type EventSink interface {
	Ingest(payload map[string]any)
}

// SNAPerformer runs silent network auth.
type SNAPerformer interface {
	PerformSNA(ctx context.Context, rawURL string) map[string]any
}

// Telemetry receives best-effort events.
type Telemetry interface {
	Send(name string, params map[string]any)
}

// Config wires a Handler. Only WebView and Host are required.
type Config struct {
	WebView   WebView
	Host      Host
	Events    EventSink
	SNA       SNAPerformer
	Telemetry Telemetry
	// OnResult receives the final response of key 69.
	OnResult func(types.AuthResult)
}

// Handler dispatches web content messages to native capabilities.
type Handler struct {
	cfg Config
	wg  sync.WaitGroup
}

// NewHandler creates a Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{cfg: cfg}
}

// Handle decodes body and runs the matching capability. It reports whether
// the key was recognized. Silent network auth completes in the background;
// use Wait to block on it.
func (h *Handler) Handle(ctx context.Context, body string) bool {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("bridge handler panic: %v\n%s", r, debug.Stack())
		}
	}()

	msg, ok := ParseMessage(body)
	if !ok {
		logger.Debugf("bridge: undecodable message")
		return false
	}

	switch msg.Key {
	case KeyOpenDeeplink:
		link, _ := msg.Payload["deeplink"].(string)
		h.openDeeplink(link)
	case KeyAppInfo:
		h.appInfo()
	case KeyEvent:
		if h.cfg.Events != nil {
			h.cfg.Events.Ingest(msg.Payload)
		}
	case KeyCellular:
		rawURL, _ := msg.Payload["url"].(string)
		h.cellular(ctx, rawURL)
	case KeyResponse:
		h.response(msg.Payload)
	default:
		logger.Tracef("bridge: ignoring key %v", msg.RawKey)
		return false
	}
	return true
}

// Wait blocks until background requests have called back.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) openDeeplink(link string) {
	if link == "" {
		return
	}
	target := NormalizeDeeplink(link)
	parsed, err := url.Parse(target)
	if err != nil {
		logger.Debugf("bridge: bad deeplink %q: %v", link, err)
		return
	}
	scheme := strings.ToLower(parsed.Scheme)
	if (scheme == "http" || scheme == "https") && h.cfg.Host.InAppActive() {
		if err := h.cfg.Host.PresentInApp(target); err != nil {
			logger.Warnf("bridge: present in app: %v", err)
		}
		return
	}
	if err := h.cfg.Host.OpenURL(target); err != nil {
		logger.Warnf("bridge: open url: %v", err)
	}
}

func (h *Handler) appInfo() {
	info := make(map[string]any)
	for k, v := range h.cfg.Host.AppInfo() {
		info[k] = v
	}
	info["appSignature"] = h.cfg.Host.AppSignature()
	h.cfg.WebView.EvaluateScript(Script(FuncAppInfoResult, info))
}

func (h *Handler) cellular(ctx context.Context, rawURL string) {
	if _, err := repository.ParseSNAURL(rawURL); err != nil {
		h.cfg.WebView.EvaluateScript(Script(FuncCellularResult, repository.URLParseError()))
		h.send(telemetry.SNAURLResponse, map[string]any{
			"response": map[string]any{"error": "url_parsing_fail"},
		})
		return
	}
	if h.cfg.SNA == nil {
		h.cellularResult(repository.UnsupportedError())
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.cellularResult(h.cfg.SNA.PerformSNA(ctx, rawURL))
	}()
}

func (h *Handler) cellularResult(result map[string]any) {
	script := Script(FuncCellularResult, result)
	h.cfg.WebView.EvaluateScript(script)
	h.send(telemetry.SNAURLResponse, map[string]any{"response": repository.Redact(result)})
}

func (h *Handler) response(payload map[string]any) {
	h.cfg.Host.DismissView()
	res := ParseResponse(payload)
	if h.cfg.OnResult != nil {
		h.cfg.OnResult(res)
	}
}

func (h *Handler) send(name string, params map[string]any) {
	if h.cfg.Telemetry == nil {
		return
	}
	h.cfg.Telemetry.Send(name, params)
}

// NormalizeDeeplink percent-decodes link and re-encodes every byte outside
// the URL query character set.
func NormalizeDeeplink(link string) string {
	decoded, err := url.PathUnescape(link)
	if err != nil {
		decoded = link
	}
	var b strings.Builder
	for i := 0; i < len(decoded); i++ {
		c := decoded[i]
		if queryAllowed(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte("0123456789ABCDEF"[c>>4])
		b.WriteByte("0123456789ABCDEF"[c&0x0f])
	}
	return b.String()
}

func queryAllowed(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!$&'()*+,-./:;=?@_~", c) >= 0
}
