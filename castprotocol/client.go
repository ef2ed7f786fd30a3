package castprotocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vishen/go-chromecast/application"
	"github.com/vishen/go-chromecast/cast"
)

// ClientConfig tunes go-chromecast backed clients.
type ClientConfig struct {
	// ConnectionRetries is handed to go-chromecast; slow TVs need time to wake.
	ConnectionRetries int
	// PollInterval paces media status polling once callbacks are registered.
	PollInterval time.Duration
}

const (
	defaultConnectionRetries = 5
	defaultPollInterval      = time.Second
	launchPollAttempts       = 8
)

// CastClient wraps go-chromecast Application behind the Client interface.
type CastClient struct {
	app         *application.Application
	conn        cast.Conn // keep reference to connection for custom commands
	mu          sync.RWMutex
	host        string
	port        int
	connected   bool
	opts        Options
	cfg         ClientConfig
	watchers    map[string]context.CancelFunc
	receiver    receiverState
	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once
}

// receiverState is the part of the receiver status the Listener hooks react to.
type receiverState struct {
	AppRunning bool
	StatusText string
	Level      float32
	Muted      bool
}

var _ Client = (*CastClient)(nil)

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (c *CastClient) Log() *zerolog.Logger {
	if c.LogOutput != nil {
		c.initLogOnce.Do(func() {
			c.Logger = zerolog.New(c.LogOutput).With().Timestamp().Str("Component", "castprotocol").Logger()
		})
	}
	return &c.Logger
}

// NewConnector returns a Connector producing go-chromecast backed clients.
func NewConnector(cfg ClientConfig) Connector {
	return func(opts Options) (Client, error) {
		return NewCastClient(opts, cfg)
	}
}

// NewCastClient prepares a client for the device in opts. It does not connect.
func NewCastClient(opts Options, cfg ClientConfig) (*CastClient, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("chromecast client: empty host for device %q", opts.DeviceID)
	}

	port := opts.Port
	if port == 0 {
		port = defaultCastPort
	}

	if cfg.ConnectionRetries <= 0 {
		cfg.ConnectionRetries = defaultConnectionRetries
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	// Create our own connection that we can use for custom commands
	conn := cast.NewConnection()

	app := application.NewApplication(
		application.WithConnection(conn),
		application.WithConnectionRetries(cfg.ConnectionRetries),
	)

	return &CastClient{
		app:       app,
		conn:      conn,
		host:      opts.Host,
		port:      port,
		opts:      opts,
		cfg:       cfg,
		watchers:  make(map[string]context.CancelFunc),
		LogOutput: opts.LogOutput,
	}, nil
}

// runWithContext runs a blocking go-chromecast call, giving up when ctx is done.
func runWithContext(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect establishes connection to the Chromecast device.
// The library handles retries internally with WithConnectionRetries.
func (c *CastClient) Connect(ctx context.Context) error {
	c.Log().Debug().Str("Method", "Connect").Str("Host", c.host).Int("Port", c.port).Msg("connecting")

	err := runWithContext(ctx, func() error {
		return c.app.Start(c.host, c.port)
	})
	if err != nil {
		c.Log().Error().Str("Method", "Connect").Err(err).Msg("connection failed")
		return fmt.Errorf("chromecast connect: %w", err)
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	c.Log().Debug().Str("Method", "Connect").Msg("connected successfully")
	return nil
}

// IsConnected returns whether client is connected.
func (c *CastClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Host returns the hostname of the Chromecast device.
func (c *CastClient) Host() string {
	return c.host
}

// LaunchApplication launches appID and waits until the receiver reports it running.
func (c *CastClient) LaunchApplication(ctx context.Context, appID string) Status {
	if !c.IsConnected() {
		return Status{Code: StatusInvalidRequest, Err: ErrNotConnected}
	}

	c.Log().Debug().Str("Method", "LaunchApplication").Str("AppID", appID).Msg("launching receiver")

	err := runWithContext(ctx, func() error {
		if err := LaunchReceiver(c.conn, appID); err != nil {
			return err
		}
		return c.waitForApp(ctx, appID)
	})
	if err != nil {
		c.Log().Error().Str("Method", "LaunchApplication").Err(err).Msg("launch receiver failed")
		if errors.Is(err, ErrAppNotRunning) {
			return Status{Code: StatusApplicationNotRunning, Err: err}
		}
		return StatusFromError(err)
	}

	return Success
}

// waitForApp polls the receiver status until appID reports a transport id.
func (c *CastClient) waitForApp(ctx context.Context, appID string) error {
	for i := range launchPollAttempts {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := c.app.Update(); err != nil {
			c.Log().Debug().Str("Method", "LaunchApplication").Int("Attempt", i+1).Err(err).Msg("app.Update retry")
			time.Sleep(time.Duration(i+1) * 500 * time.Millisecond)
			continue
		}

		app := c.app.App()
		if app != nil && app.AppId == appID && app.TransportId != "" {
			c.Log().Debug().Str("Method", "LaunchApplication").Str("TransportId", app.TransportId).Msg("got transport ID")
			return nil
		}
		time.Sleep(time.Duration(i+1) * 500 * time.Millisecond)
	}

	return ErrAppNotRunning
}

// StopApplication stops the running receiver application.
func (c *CastClient) StopApplication(ctx context.Context) Status {
	if !c.IsConnected() {
		return Status{Code: StatusInvalidRequest, Err: ErrNotConnected}
	}

	app := c.app.App()
	if app == nil || app.SessionId == "" {
		return Status{Code: StatusApplicationNotRunning, Err: ErrAppNotRunning}
	}

	c.Log().Debug().Str("Method", "StopApplication").Str("SessionId", app.SessionId).Msg("stopping receiver")

	err := runWithContext(ctx, func() error {
		return StopReceiver(c.conn, app.SessionId)
	})
	if err != nil {
		c.Log().Error().Str("Method", "StopApplication").Err(err).Msg("failed")
	}

	return StatusFromError(err)
}

// NewMediaChannel returns a media channel bound to this client.
func (c *CastClient) NewMediaChannel() MediaChannel {
	return &mediaChannel{client: c}
}

// SetMessageReceivedCallbacks starts delivering media status for ch.
func (c *CastClient) SetMessageReceivedCallbacks(ch MediaChannel) error {
	mc, ok := ch.(*mediaChannel)
	if !ok || mc.client != c {
		return ErrForeignChannel
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return ErrNotConnected
	}

	ns := mc.Namespace()
	if _, ok := c.watchers[ns]; ok {
		return ErrAlreadyRegistered
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.watchers[ns] = cancel
	go c.watch(ctx, mc)

	return nil
}

// RemoveMessageReceivedCallbacks stops delivering status for namespace.
func (c *CastClient) RemoveMessageReceivedCallbacks(namespace string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cancel, ok := c.watchers[namespace]
	if !ok {
		return ErrNotRegistered
	}

	cancel()
	delete(c.watchers, namespace)
	return nil
}

// Disconnect closes the connection without stopping the receiver.
func (c *CastClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Log().Debug().Str("Method", "Disconnect").Msg("closing connection")
	for ns, cancel := range c.watchers {
		cancel()
		delete(c.watchers, ns)
	}

	c.connected = false
	err := c.app.Close(false)
	if err != nil {
		c.Log().Error().Str("Method", "Disconnect").Err(err).Msg("failed")
	}
	return err
}

// transportID returns the transport id of the running receiver, if any.
func (c *CastClient) transportID() string {
	app := c.app.App()
	if app == nil {
		return ""
	}
	return app.TransportId
}

// snapshot refreshes and converts the current device status.
func (c *CastClient) snapshot() (*MediaStatus, *MediaInfo, receiverState, error) {
	if err := c.app.Update(); err != nil {
		return nil, nil, receiverState{}, err
	}

	app, media, vol := c.app.Status()

	var recv receiverState
	if app != nil {
		recv.AppRunning = !app.IsIdleScreen
		recv.StatusText = app.StatusText
	}
	if vol != nil {
		recv.Level = vol.Level
		recv.Muted = vol.Muted
	}

	if media == nil {
		return nil, nil, recv, nil
	}

	status := &MediaStatus{
		MediaSessionId: media.MediaSessionId,
		PlayerState:    media.PlayerState,
		IdleReason:     media.IdleReason,
		CurrentTime:    media.CurrentTime,
		Volume:         recv.Level,
		Muted:          recv.Muted,
	}

	info := &MediaInfo{
		ContentId:   media.Media.ContentId,
		ContentType: media.Media.ContentType,
		StreamType:  media.Media.StreamType,
		Duration:    media.Media.Duration,
		Metadata: &MediaMeta{
			MetadataType: media.Media.Metadata.MetadataType,
			Title:        media.Media.Metadata.Title,
		},
	}

	return status, info, recv, nil
}

// watch polls device status until ctx is canceled and feeds ch and the Listener.
func (c *CastClient) watch(ctx context.Context, ch *mediaChannel) {
	limiter := newPollLimiter(c.cfg.PollInterval)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		status, info, recv, err := c.snapshot()
		if err != nil {
			c.Log().Debug().Str("Method", "watch").Err(err).Msg("status refresh failed")
			continue
		}

		if ctx.Err() != nil {
			return
		}

		c.observeReceiver(recv)
		if status != nil {
			ch.observe(status, info)
		}
	}
}

// observeReceiver fires the Listener hooks for receiver level changes.
func (c *CastClient) observeReceiver(next receiverState) {
	c.mu.Lock()
	prev := c.receiver
	c.receiver = next
	c.mu.Unlock()

	l := c.opts.Listener
	if prev.AppRunning && !next.AppRunning {
		if l.OnApplicationDisconnected != nil {
			l.OnApplicationDisconnected(StatusApplicationNotRunning)
		}
		return
	}

	if prev.StatusText != next.StatusText && l.OnApplicationStatusChanged != nil {
		l.OnApplicationStatusChanged()
	}

	if (prev.Level != next.Level || prev.Muted != next.Muted) && l.OnVolumeChanged != nil {
		l.OnVolumeChanged()
	}
}
