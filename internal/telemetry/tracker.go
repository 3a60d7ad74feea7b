package telemetry

import (
	"context"
	"encoding/json"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/otpless/loginpage/internal/clock"
	"github.com/otpless/loginpage/pkg/logger"
)

const (
	defaultPlatform = "go-lp"
	timestampLayout = "2006-01-02T15:04:05.000Z"
	pushTimeout     = 10 * time.Second
)

// Pusher delivers one flattened event.
type Pusher interface {
	PushEvent(ctx context.Context, params map[string]string) error
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithPlatform overrides the reported platform tag.
func WithPlatform(platform string) Option {
	return func(t *Tracker) { t.platform = platform }
}

// WithSDKVersion sets the reported SDK version.
func WithSDKVersion(version string) Option {
	return func(t *Tracker) { t.sdkVersion = version }
}

// WithDeviceInfo replaces the device info reported with every event.
func WithDeviceInfo(info map[string]string) Option {
	return func(t *Tracker) { t.deviceInfo = encodeJSON(info) }
}

// Tracker builds and ships telemetry events. Pushes are fire-and-forget:
// failures are logged and never reach the caller.
type Tracker struct {
	pusher     Pusher
	clock      clock.Clock
	platform   string
	sdkVersion string
	deviceInfo string

	mu      sync.Mutex
	counter int
	appID   string
	inid    string
	tsid    string

	wg sync.WaitGroup
}

// New creates a Tracker. A nil pusher drops every event.
func New(pusher Pusher, opts ...Option) *Tracker {
	t := &Tracker{
		pusher:   pusher,
		clock:    clock.Real{},
		platform: defaultPlatform,
		counter:  1,
		deviceInfo: encodeJSON(map[string]string{
			"os":        runtime.GOOS,
			"arch":      runtime.GOARCH,
			"goVersion": runtime.Version(),
		}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetIdentity sets the app id, installation id and tracking session id
// reported with every subsequent event.
func (t *Tracker) SetIdentity(appID, installationID, trackingID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appID = appID
	t.inid = installationID
	t.tsid = trackingID
}

// TrackingID returns the current tracking session id.
func (t *Tracker) TrackingID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tsid
}

// InstallationID returns the installation id.
func (t *Tracker) InstallationID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inid
}

// Send pushes an event asynchronously.
func (t *Tracker) Send(name string, params map[string]any) {
	if t == nil {
		return
	}
	payload := t.build(name, params)
	if t.pusher == nil {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Warnf("telemetry push panic: %v", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		if err := t.pusher.PushEvent(ctx, payload); err != nil {
			logger.Debugf("telemetry %s failed: %v", name, err)
			return
		}
		logger.Tracef("telemetry ---> %s", name)
	}()
}

// Wait blocks until in-flight pushes finish.
func (t *Tracker) Wait() {
	if t == nil {
		return
	}
	t.wg.Wait()
}

func (t *Tracker) build(name string, params map[string]any) map[string]string {
	t.mu.Lock()
	eventID := t.counter
	t.counter++
	appID, inid, tsid := t.appID, t.inid, t.tsid
	t.mu.Unlock()

	if params == nil {
		params = map[string]any{}
	}
	return map[string]string{
		"event_name":      name,
		"platform":        t.platform,
		"sdk_version":     t.sdkVersion,
		"inid":            inid,
		"tsid":            tsid,
		"mid":             appID,
		"event_id":        strconv.Itoa(eventID),
		"event_timestamp": t.clock.Now().UTC().Format(timestampLayout),
		"device_info":     t.deviceInfo,
		"event_params":    encodeJSON(params),
	}
}

func encodeJSON(v any) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}
