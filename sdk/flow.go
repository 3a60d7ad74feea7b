package sdk

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/otpless/loginpage/internal/telemetry"
	"github.com/otpless/loginpage/pkg/types"
)

// ErrClientClosed is returned after Close.
var ErrClientClosed = errors.New("client closed")

// StartOptions configures one login flow.
type StartOptions struct {
	// Presenter shows the login page. Required.
	Presenter Presenter
	// Extras prefill the login page. Phone needs a country code.
	Extras map[string]string
	// Timeout bounds the wait for a room id. Zero uses the configured
	// room timeout.
	Timeout time.Duration
	// BaseURL replaces the hosted login page. The app id is passed as the
	// appid query parameter.
	BaseURL string
}

// Initialize sets the app id and starts acquiring a room in the
// background. An empty loginURI defaults to otpless.{appid}://otpless.
// It returns the trace id attached to every result of this client.
func (c *Client) Initialize(appID, loginURI string) (string, error) {
	return c.InitializeWithSecret(appID, "", loginURI)
}

// InitializeWithSecret is Initialize for apps that exchange an app secret
// for a room token before requesting a room.
func (c *Client) InitializeWithSecret(appID, secret, loginURI string) (string, error) {
	value, err := c.dispatch.call(func() (any, error) {
		return c.initialize(appID, secret, loginURI)
	})
	if err != nil {
		return "", err
	}
	traceID, _ := value.(string)
	return traceID, nil
}

func (c *Client) initialize(appID, secret, loginURI string) (traceID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logPanic("Initialize", r)
			err = errors.New("initialize panicked")
		}
	}()
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return "", ErrEmptyAppID
	}
	if loginURI == "" {
		loginURI = "otpless." + strings.ToLower(appID) + "://otpless"
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClientClosed
	}
	changed := c.appID != appID || c.secret != secret
	c.appID = appID
	c.secret = secret
	c.loginURI = loginURI
	if changed {
		c.room = nil
		c.roomID = ""
		c.roomToken = ""
	}
	c.mu.Unlock()

	c.tracker.SetIdentity(appID, c.tracker.InstallationID(), c.tracker.TrackingID())
	c.sessions.Initialize(appID)
	c.tracker.Send(telemetry.InitializationStarted, map[string]any{"login_uri": loginURI})
	c.monitor.Start()
	c.ensureRoom()
	c.log.Info().Str("app_id", appID).Msg("initialized")
	return c.tracker.TrackingID(), nil
}

// ensureRoom returns the pending room acquisition, starting one if none
// is in flight or the last one failed. Runs on the dispatch goroutine.
func (c *Client) ensureRoom() *roomFuture {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room != nil {
		if !c.room.resolved() || c.room.roomID != "" {
			return c.room
		}
		c.room = nil
	}
	fut := newRoomFuture()
	if c.closed {
		fut.resolve("")
		return fut
	}
	c.room = fut
	appID, secret := c.appID, c.secret

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		roomID, token := c.acquireRoom(c.ctx, appID, secret)
		fut.resolve(roomID)
		_ = c.dispatch.do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.room != fut {
				return
			}
			c.roomID = roomID
			c.roomToken = token
		})
	}()
	return fut
}

// acquireRoom runs the room use cases. With a secret it first trades the
// secret for a room token and falls back to the app id route when that
// fails.
func (c *Client) acquireRoom(ctx context.Context, appID, secret string) (roomID, token string) {
	if secret != "" {
		if tok, ok := c.roomTokens.Invoke(ctx, appID, secret); ok {
			if id, ok := c.roomByToken.Invoke(ctx, tok); ok {
				return id, tok
			}
			token = tok
		}
	}
	if id, ok := c.roomByApp.Invoke(ctx, appID); ok {
		return id, token
	}
	return "", token
}

// RoomID returns the acquired room id, if any.
func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Start launches the login flow. It returns immediately; the outcome
// reaches the Listener exactly once.
func (c *Client) Start(opts StartOptions) {
	if err := c.dispatch.do(func() { c.start(opts) }); err != nil {
		c.log.Warn().Err(err).Msg("start dropped")
	}
}

// StartWithBaseURL is Start against a custom login page.
func (c *Client) StartWithBaseURL(baseURL string, opts StartOptions) {
	opts.BaseURL = strings.TrimSpace(baseURL)
	c.Start(opts)
}

func (c *Client) start(opts StartOptions) {
	defer func() {
		if r := recover(); r != nil {
			c.logPanic("Start", r)
		}
	}()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.slot != nil && !c.slot.spent() {
		c.mu.Unlock()
		c.log.Warn().Msg("start while a flow is running, cancelling it")
		c.deliver(types.NewUserCancelled(), "")
		c.mu.Lock()
	}
	c.slot = newResultSlot(c.listener)
	initialized := c.appID != ""
	c.mu.Unlock()

	if !initialized {
		c.deliver(types.Failure(types.ErrorTypeInitiate, types.CodeNotInitialized, types.MessageNotInitialized), "")
		return
	}
	c.monitor.Start()
	if !c.monitor.Connected() {
		c.deliver(types.Failure(types.ErrorTypeNetwork, types.CodeInternet, types.MessageInternet), "")
		return
	}
	if res, ok := validateExtras(opts.Extras); !ok {
		c.deliver(res, "")
		return
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.RoomTimeout
	}
	c.mu.Lock()
	c.extras = copyExtras(opts.Extras)
	c.flow++
	flow := c.flow
	c.mu.Unlock()

	fut := c.ensureRoom()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		roomID, ok := fut.wait(c.ctx, timeout)
		if !ok {
			c.log.Debug().Dur("timeout", timeout).Msg("room id not ready, presenting without it")
		}
		_ = c.dispatch.do(func() { c.present(flow, opts, roomID) })
	}()
}

// present builds the loading URL, opens the realtime channel and hands the
// page to the presenter. A flow that was ceased meanwhile is skipped.
func (c *Client) present(flow uint64, opts StartOptions, roomID string) {
	defer func() {
		if r := recover(); r != nil {
			c.logPanic("present", r)
		}
	}()

	c.mu.Lock()
	if flow != c.flow || c.slot.spent() {
		c.mu.Unlock()
		return
	}
	params := loadParams{
		PackageName:     c.device.PackageName(),
		LoginURI:        c.loginURI,
		HasWhatsApp:     c.device.HasWhatsApp(),
		Platform:        c.device.Platform(),
		AppInfo:         c.device.AppInfo(),
		InstallationID:  c.tracker.InstallationID(),
		TrackingID:      c.tracker.TrackingID(),
		CellularEnabled: c.monitor.CellularEnabled(),
		Extras:          c.extras,
		RoomID:          roomID,
	}
	start := startURL(c.cfg.LoginPageURL, opts.BaseURL, c.appID)
	c.mu.Unlock()

	loadingURL, err := buildLoadingURL(start, params)
	if err != nil {
		c.log.Error().Err(err).Msg("cannot build login page url")
		c.deliver(types.Failure(types.ErrorTypeInitiate, types.CodeException, types.MessageURLError), "")
		return
	}
	if opts.Presenter == nil {
		c.log.Error().Msg("start without a presenter")
		c.deliver(types.Failure(types.ErrorTypeInitiate, types.CodeException, types.MessageLoadError), "")
		return
	}

	if roomID != "" {
		if err := c.realtime.Open(roomID); err != nil {
			c.log.Warn().Err(err).Msg("realtime channel unavailable")
		}
	}

	c.mu.Lock()
	c.presenter = opts.Presenter
	c.presenting = true
	c.mu.Unlock()

	presenter := opts.Presenter
	_ = c.callbacks.do(func() {
		defer func() {
			if r := recover(); r != nil {
				c.logPanic("Presenter.Present", r)
			}
		}()
		if err := presenter.Present(loadingURL); err != nil {
			c.log.Error().Err(err).Msg("present login page")
			_ = c.dispatch.do(func() {
				c.mu.Lock()
				current := flow == c.flow
				c.mu.Unlock()
				if current {
					c.deliver(types.Failure(types.ErrorTypeInitiate, types.CodeException, types.MessageLoadError), "")
				}
			})
		}
	})
}

// OnUserDismissed reports that the user closed the login page.
func (c *Client) OnUserDismissed() {
	_ = c.dispatch.do(func() {
		c.mu.Lock()
		c.presenting = false
		c.mu.Unlock()
		c.deliver(types.NewUserCancelled(), "")
	})
}

// Cease tears the current flow down. It is safe to call repeatedly.
func (c *Client) Cease() {
	_, _ = c.dispatch.call(func() (any, error) {
		c.cease()
		return nil, nil
	})
}

// cease disconnects the realtime channel, dismisses the presented page,
// clears the room credentials and stops connectivity monitoring. Runs on
// the dispatch goroutine.
func (c *Client) cease() {
	defer func() {
		if r := recover(); r != nil {
			c.logPanic("Cease", r)
		}
	}()

	c.realtime.Close()

	c.mu.Lock()
	presenter := c.presenter
	presenting := c.presenting
	c.presenter = nil
	c.presenting = false
	c.webView = nil
	c.room = nil
	c.roomID = ""
	c.roomToken = ""
	c.extras = nil
	c.slot = nil
	c.flow++
	c.mu.Unlock()

	if presenter != nil && presenting {
		_ = c.callbacks.do(func() {
			defer func() {
				if r := recover(); r != nil {
					c.logPanic("Presenter.Dismiss", r)
				}
			}()
			presenter.Dismiss()
		})
	}
	c.monitor.Stop()
}

// deliverAsync hands a result from a socket or bridge goroutine to the
// dispatch goroutine.
func (c *Client) deliverAsync(res types.AuthResult) {
	if err := c.dispatch.do(func() { c.deliver(res, "") }); err != nil {
		c.log.Warn().Err(err).Msg("result dropped after close")
	}
}

// deliver fires the armed listener once and tears the flow down. event
// overrides the telemetry event name. Runs on the dispatch goroutine.
func (c *Client) deliver(res types.AuthResult, event string) {
	c.mu.Lock()
	slot := c.slot
	c.mu.Unlock()

	listener, ok := slot.take()
	if !ok {
		c.log.Warn().Str("result", describe(res)).Msg("dropping result, no flow is waiting")
		return
	}

	res = res.WithTraceID(c.tracker.TrackingID())
	if event == "" {
		event = telemetry.NativeErrorResult
		if res.IsSuccess() {
			event = telemetry.NativeSuccessResult
		}
	}
	c.tracker.Send(event, res.Map())

	if listener != nil {
		_ = c.callbacks.do(func() {
			defer func() {
				if r := recover(); r != nil {
					c.logPanic("Listener.OnResult", r)
				}
			}()
			listener.OnResult(res)
		})
	} else {
		c.log.Warn().Str("result", describe(res)).Msg("no listener registered")
	}
	c.cease()
}

func copyExtras(extras map[string]string) map[string]string {
	if len(extras) == 0 {
		return nil
	}
	out := make(map[string]string, len(extras))
	for k, v := range extras {
		out[k] = v
	}
	return out
}
