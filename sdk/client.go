package sdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/otpless/loginpage/internal/api"
	"github.com/otpless/loginpage/internal/bridge"
	"github.com/otpless/loginpage/internal/clock"
	"github.com/otpless/loginpage/internal/config"
	"github.com/otpless/loginpage/internal/events"
	"github.com/otpless/loginpage/internal/netmon"
	"github.com/otpless/loginpage/internal/realtime"
	"github.com/otpless/loginpage/internal/repository"
	"github.com/otpless/loginpage/internal/session"
	"github.com/otpless/loginpage/internal/storage"
	"github.com/otpless/loginpage/internal/telemetry"
	"github.com/otpless/loginpage/internal/usecase"
	"github.com/otpless/loginpage/pkg/logger"
	"github.com/rs/zerolog"
)

// Version is reported to telemetry as the SDK version.
const Version = "1.0.0"

// ErrEmptyAppID is returned by Initialize when no app id is given.
var ErrEmptyAppID = errors.New("app id is required")

// ErrNoHomeDir is returned by New when the config has no home directory.
var ErrNoHomeDir = errors.New("config home directory is required")

// Option configures a Client.
type Option func(*options)

type options struct {
	store    storage.Store
	monitor  netmon.Monitor
	dialer   realtime.Dialer
	device   Device
	rooms    usecase.RoomRepository
	pusher   telemetry.Pusher
	cellular repository.SNAPerformer
	clock    clock.Clock
}

// WithStore replaces the encrypted on-disk session store.
func WithStore(s storage.Store) Option {
	return func(o *options) { o.store = s }
}

// WithMonitor replaces the polling connectivity monitor.
func WithMonitor(m netmon.Monitor) Option {
	return func(o *options) { o.monitor = m }
}

// WithDialer replaces the websocket room dialer.
func WithDialer(d realtime.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithDevice describes the host application.
func WithDevice(d Device) Option {
	return func(o *options) { o.device = d }
}

// WithRoomRepository replaces the HTTP room endpoints.
func WithRoomRepository(r usecase.RoomRepository) Option {
	return func(o *options) { o.rooms = r }
}

// WithTelemetryPusher replaces the HTTP telemetry sink.
func WithTelemetryPusher(p telemetry.Pusher) Option {
	return func(o *options) { o.pusher = p }
}

// WithCellular replaces the cellular request path used for silent
// network auth.
func WithCellular(p repository.SNAPerformer) Option {
	return func(o *options) { o.cellular = p }
}

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Client drives one login page flow at a time.
//
// Exported methods may be called from any goroutine. Flow state is only
// written on the dispatch goroutine; host callbacks (Listener, Presenter,
// WebView) run on the callbacks goroutine.
type Client struct {
	cfg    *config.Config
	device Device
	clock  clock.Clock
	log    zerolog.Logger

	api      *api.Client
	repo     *repository.Repository
	tracker  *telemetry.Tracker
	sessions *session.Manager
	realtime *realtime.Manager
	events   *events.Manager
	monitor  netmon.Monitor
	bridge   *bridge.Handler

	roomByApp   *usecase.RoomID
	roomByToken *usecase.RoomIDByToken
	roomTokens  *usecase.RoomToken

	logs *logFile

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	appID         string
	secret        string
	loginURI      string
	listener      Listener
	eventListener EventListener
	room          *roomFuture
	roomID        string
	roomToken     string
	extras        map[string]string
	presenter     Presenter
	presenting    bool
	webView       bridge.WebView
	slot          *resultSlot
	flow          uint64
	closed        bool

	dispatch  *dispatcher
	callbacks *dispatcher
}

// New wires a Client from cfg. A nil cfg uses config.Default. Sessions and
// the installation id live under cfg.HomeDir unless WithStore is given.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if cfg.HomeDir == "" {
		return nil, ErrNoHomeDir
	}
	o := options{clock: clock.Real{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.device == nil {
		o.device = DefaultDevice()
	}

	c := &Client{
		cfg:       cfg,
		device:    o.device,
		clock:     o.clock,
		log:       logger.With("sdk"),
		logs:      newLogFile(),
		dispatch:  newDispatcher(256),
		callbacks: newDispatcher(256),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.api = api.NewClient(api.Options{
		UserAuthURL:  cfg.UserAuthURL,
		ConnectURL:   cfg.ConnectURL,
		APIURL:       cfg.APIURL,
		TelemetryURL: cfg.TelemetryURL,
		Timeout:      cfg.HTTPTimeout,
	})
	cellular := o.cellular
	if cellular == nil {
		cellular = repository.NewCellularPath(cfg.CellularInterface)
	}
	c.repo = repository.New(c.api, cellular)

	pusher := o.pusher
	if pusher == nil {
		pusher = c.repo
	}
	c.tracker = telemetry.New(pusher,
		telemetry.WithClock(o.clock),
		telemetry.WithSDKVersion(Version),
		telemetry.WithDeviceInfo(o.device.AppInfo()),
	)
	c.repo.SetTelemetry(c.tracker)

	installationID, err := c.installationID()
	if err != nil {
		c.log.Warn().Err(err).Msg("installation id unavailable, using an ephemeral one")
		installationID = storage.NewTrackingID(o.clock.Now())
	}
	c.tracker.SetIdentity("", installationID, storage.NewTrackingID(o.clock.Now()))

	store := o.store
	if store == nil {
		store, err = c.openStore()
		if err != nil {
			c.cancel()
			return nil, err
		}
	}
	c.sessions = session.NewManager(c.repo, store,
		session.WithClock(o.clock),
		session.WithRefreshInterval(cfg.RefreshInterval),
		session.WithTelemetry(c.tracker),
		session.WithOrigin(cfg.APIURL),
	)

	rooms := o.rooms
	if rooms == nil {
		rooms = c.repo
	}
	policy := usecase.DefaultPolicy()
	policy.Delay = cfg.RetryDelay
	c.roomByApp = usecase.NewRoomID(rooms, policy)
	c.roomByToken = usecase.NewRoomIDByToken(rooms, policy)
	c.roomTokens = usecase.NewRoomToken(rooms, policy)

	dialer := o.dialer
	if dialer == nil {
		dialer = realtime.WebsocketDialer(cfg.ConnectURL)
	}
	c.realtime = realtime.NewManager(dialer, realtime.Callbacks{
		AppInfo:       c.appInfo,
		OnResult:      c.deliverAsync,
		OnAuthPayload: c.saveAuthPayload,
		PerformSNA:    c.repo.PerformSNA,
	}, realtime.WithTelemetry(c.tracker))

	c.events = events.NewManager(c.tracker)

	c.monitor = o.monitor
	if c.monitor == nil {
		c.monitor = netmon.NewPoller(netmon.DefaultPollInterval)
	}

	c.bridge = bridge.NewHandler(bridge.Config{
		WebView:   webViewProxy{c},
		Host:      bridgeHost{c},
		Events:    c.events,
		SNA:       c.repo,
		Telemetry: c.tracker,
		OnResult:  c.deliverAsync,
	})
	return c, nil
}

func (c *Client) installationID() (string, error) {
	return storage.GetOrCreateInstallationID(c.cfg.InstallationFile(), c.clock.Now())
}

func (c *Client) openStore() (storage.Store, error) {
	store, err := storage.OpenSecureStore(c.cfg.StoreFile(), c.cfg.KeyFile())
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return store, nil
}

// TraceID returns the tracking session id attached to results.
func (c *Client) TraceID() string {
	return c.tracker.TrackingID()
}

// InstallationID returns the persisted installation id.
func (c *Client) InstallationID() string {
	return c.tracker.InstallationID()
}

// SetListener registers the result listener for subsequent flows.
func (c *Client) SetListener(listener Listener) {
	_, _ = c.dispatch.call(func() (any, error) {
		c.mu.Lock()
		c.listener = listener
		c.mu.Unlock()
		c.tracker.Send(telemetry.CallbackSet, nil)
		return nil, nil
	})
}

// SetEventListener registers a listener for login page events.
func (c *Client) SetEventListener(listener EventListener) {
	c.mu.Lock()
	c.eventListener = listener
	c.mu.Unlock()
	if listener == nil {
		c.events.SetListener(nil)
		return
	}
	c.events.SetListener(func(e events.Event) {
		_ = c.callbacks.do(func() {
			defer func() {
				if r := recover(); r != nil {
					c.logPanic("EventListener", r)
				}
			}()
			listener.OnEvent(e)
		})
	})
}

// SetLogDirectory mirrors SDK logs into rotating files under path.
func (c *Client) SetLogDirectory(path string) error {
	_, err := c.dispatch.call(func() (any, error) {
		return nil, c.setLogDirectory(path)
	})
	return err
}

func (c *Client) setLogDirectory(path string) error {
	defer func() {
		if r := recover(); r != nil {
			c.logPanic("SetLogDirectory", r)
		}
	}()
	if err := c.logs.setDir(path); err != nil {
		return err
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, c.logs))
	return nil
}

// Logs returns the retained log files, oldest first.
func (c *Client) Logs() []byte {
	return c.logs.snapshot()
}

// RecentLogs returns the most recent log lines kept in memory.
func (c *Client) RecentLogs() []string {
	return c.logs.tailLines()
}

// Close tears down the flow and releases every background resource. It
// must not be called from a Listener.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	_, _ = c.dispatch.call(func() (any, error) {
		c.cease()
		return nil, nil
	})
	c.cancel()
	c.wg.Wait()
	c.realtime.Wait()
	c.bridge.Wait()
	c.dispatch.stop()
	c.callbacks.stop()

	c.sessions.Close()
	c.tracker.Wait()
	err := c.api.Close()
	c.logs.close()
	return err
}
