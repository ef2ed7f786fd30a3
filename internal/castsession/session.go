package castsession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go2tv.app/go2cast/castprotocol"
	"go2tv.app/go2cast/devices"
	"go2tv.app/go2cast/internal/events"
)

const (
	// Manufacturer is reported for every device. All cast receivers are assumed to be Google devices.
	Manufacturer = "Google Inc."

	defaultCommandTimeout = 30 * time.Second
)

var (
	ErrCastUnavailable = errors.New("castsession: casting is not available on this platform")
	ErrNilRoute        = errors.New("castsession: nil route")
	ErrNoMediaChannel  = errors.New("castsession: no media channel, load has not succeeded")
	ErrNoSession       = errors.New("castsession: no active session")
	ErrSessionBusy     = errors.New("castsession: a session is already active")
	ErrClosed          = errors.New("castsession: session closed")
)

// Session adapts a single cast device to the MediaPlayer contract.
//
// Vendor calls run on their own goroutines. Their results, all state
// transitions and all user callbacks run on the session's dispatcher.
type Session struct {
	route     devices.Route
	connector castprotocol.Connector
	bus       events.Publisher
	appID     string
	timeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	d      *dispatcher

	mu         sync.RWMutex
	state      State
	generation uint64
	client     castprotocol.Client
	channel    castprotocol.MediaChannel

	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once
}

var _ MediaPlayer = (*Session)(nil)

// Option configures a Session.
type Option func(*Session)

// WithConnector sets the vendor client builder.
func WithConnector(c castprotocol.Connector) Option {
	return func(s *Session) {
		s.connector = c
	}
}

// WithEventBus sets where session events are broadcast.
func WithEventBus(p events.Publisher) Option {
	return func(s *Session) {
		s.bus = p
	}
}

// WithLogOutput enables logging to w.
func WithLogOutput(w io.Writer) Option {
	return func(s *Session) {
		s.LogOutput = w
	}
}

// WithCommandTimeout bounds every vendor call.
func WithCommandTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithReceiverAppID overrides the receiver application launched by Load.
func WithReceiverAppID(appID string) Option {
	return func(s *Session) {
		if appID != "" {
			s.appID = appID
		}
	}
}

// New builds a Session for route. It fails with ErrCastUnavailable when the
// platform cannot cast at all.
func New(ctx context.Context, platform castprotocol.Platform, route devices.Route, opts ...Option) (*Session, error) {
	if platform == nil {
		return nil, fmt.Errorf("%w: no platform", ErrCastUnavailable)
	}

	if err := platform.CastSupport(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCastUnavailable, err)
	}

	if route == nil {
		return nil, ErrNilRoute
	}

	s := &Session{
		route:   route,
		appID:   castprotocol.DefaultMediaReceiverAppID,
		timeout: defaultCommandTimeout,
	}

	for _, o := range opts {
		o(s)
	}

	if s.connector == nil {
		s.connector = castprotocol.NewConnector(castprotocol.ClientConfig{})
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.d = newDispatcher(func(r any) {
		s.Log().Error().Str("Method", "dispatch").Interface("Panic", r).Msg("callback panicked")
	})

	return s, nil
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (s *Session) Log() *zerolog.Logger {
	if s.LogOutput != nil {
		s.initLogOnce.Do(func() {
			s.Logger = zerolog.New(s.LogOutput).With().Timestamp().Str("Component", "castsession").Logger()
		})
	}
	return &s.Logger
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// MediaStatus returns the last media status pushed by the receiver, if any.
func (s *Session) MediaStatus() *castprotocol.MediaStatus {
	s.mu.RLock()
	ch := s.channel
	s.mu.RUnlock()

	if ch == nil {
		return nil
	}
	return ch.MediaStatus()
}

// DescribeDevice reports the device behind the route. It never panics;
// on extraction failure the map holds whatever could be read.
func (s *Session) DescribeDevice() (out map[string]any) {
	out = make(map[string]any)

	defer func() {
		if r := recover(); r != nil {
			s.Log().Warn().Str("Method", "DescribeDevice").Interface("Panic", r).Msg("error building route")
		}
	}()

	out["id"] = s.route.ID()

	d, err := s.route.CastDevice()
	if err != nil {
		s.Log().Warn().Str("Method", "DescribeDevice").Err(err).Msg("error building route")
		return out
	}

	ip := ""
	if d.IPAddress != nil {
		ip = d.IPAddress.String()
	}

	out["firmwareVersion"] = d.DeviceVersion
	out["friendlyName"] = d.FriendlyName
	out["ipAddress"] = ip
	out["modelName"] = d.ModelName
	out["manufacturer"] = Manufacturer

	return out
}

// Load connects to the device, launches the media receiver and loads url.
// cb fires once the receiver accepted the LOAD command or any stage failed.
func (s *Session) Load(title, url, mimeType string, cb Callback) {
	oc := once(cb)
	s.post(oc, func() {
		s.startLoad(title, url, mimeType, oc)
	})
}

// Start has nothing to do on cast devices; playback starts with Load.
func (s *Session) Start(cb Callback) {
	oc := once(cb)
	s.post(oc, func() {
		oc.SendSuccess(nil)
	})
}

// Stop has nothing to do on cast devices; use Pause or End.
func (s *Session) Stop(cb Callback) {
	oc := once(cb)
	s.post(oc, func() {
		oc.SendSuccess(nil)
	})
}

// Play resumes playback. It returns ErrNoMediaChannel, and fails cb, when
// no Load has succeeded.
func (s *Session) Play(cb Callback) error {
	return s.command("Play", cb, func(ctx context.Context, ch castprotocol.MediaChannel) castprotocol.Status {
		return ch.Play(ctx)
	})
}

// Pause pauses playback. It returns ErrNoMediaChannel, and fails cb, when
// no Load has succeeded.
func (s *Session) Pause(cb Callback) error {
	return s.command("Pause", cb, func(ctx context.Context, ch castprotocol.MediaChannel) castprotocol.Status {
		return ch.Pause(ctx)
	})
}

// End stops the receiver application and releases the session. cb may be nil.
// The session is dropped even when the receiver refuses to stop.
func (s *Session) End(cb Callback) {
	oc := once(cb)
	s.post(oc, func() {
		s.shutdown("End", oc, nil)
	})
}

// Close releases the session and stops the dispatcher. Operations issued
// afterwards fail through their callback.
func (s *Session) Close() {
	s.d.post(func() {
		if err := s.release(); err != nil {
			s.Log().Warn().Str("Method", "Close").Err(err).Msg("teardown failed")
		}
	})
	s.d.stop()
	s.cancel()
}

// post runs fn on the dispatcher, failing cb when the session is closed.
func (s *Session) post(cb Callback, fn func()) {
	if !s.d.post(fn) {
		s.Log().Debug().Err(ErrClosed).Msg("operation after close")
		cb.SendError(nil)
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// isCurrent reports whether gen still names the live session.
func (s *Session) isCurrent(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation == gen
}

// stageLive reports whether a load stage of session gen may continue.
// End and natural finish move the state to Ending before releasing.
func (s *Session) stageLive(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation == gen && s.state != Ending
}

// await runs call on its own goroutine and hands the result to onResult on
// the dispatcher. Panics and timeouts become failure statuses.
func (s *Session) await(method string, cb Callback, call func(ctx context.Context) castprotocol.Status, onResult func(castprotocol.Status)) {
	go func() {
		st := s.invoke(method, call)
		if !s.d.post(func() { onResult(st) }) {
			cb.SendError(nil)
		}
	}()
}

func (s *Session) invoke(method string, call func(ctx context.Context) castprotocol.Status) (st castprotocol.Status) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			st = castprotocol.Status{
				Code: castprotocol.StatusInternalError,
				Err:  fmt.Errorf("%s panicked: %v", method, r),
			}
		}
	}()

	return call(ctx)
}

// startLoad runs on the dispatcher.
func (s *Session) startLoad(title, url, mimeType string, cb Callback) {
	if s.State() != Disconnected {
		s.Log().Warn().Str("Method", "Load").Str("State", s.State().String()).Err(ErrSessionBusy).Msg("load rejected")
		cb.SendError(nil)
		return
	}

	opts, err := s.clientOptions()
	if err != nil {
		s.Log().Error().Str("Method", "Load").Err(err).Msg("no device descriptor")
		cb.SendError(nil)
		return
	}

	client, err := s.newClient(opts)
	if err != nil {
		s.Log().Error().Str("Method", "Load").Err(err).Msg("client build failed")
		cb.SendError(nil)
		return
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.client = client
	s.state = Connecting
	s.mu.Unlock()

	s.Log().Debug().Str("Method", "Load").Str("URL", url).Str("ContentType", mimeType).Msg("connecting")

	s.await("Connect", cb, func(ctx context.Context) castprotocol.Status {
		return castprotocol.StatusFromError(client.Connect(ctx))
	}, func(st castprotocol.Status) {
		if !s.stageLive(gen) {
			cb.SendError(nil)
			return
		}
		if !st.IsSuccess() || !client.IsConnected() {
			s.failLoad("Connect", st, cb)
			return
		}

		s.setState(Launching)
		s.launch(gen, client, castprotocol.NewMovieInfo(url, mimeType, title), cb)
	})
}

func (s *Session) launch(gen uint64, client castprotocol.Client, info castprotocol.MediaInfo, cb Callback) {
	s.await("LaunchApplication", cb, func(ctx context.Context) castprotocol.Status {
		return client.LaunchApplication(ctx, s.appID)
	}, func(st castprotocol.Status) {
		if !s.stageLive(gen) {
			cb.SendError(nil)
			return
		}
		s.Log().Debug().Str("Method", "LaunchApplication").Int("Code", st.Code).Msg("application connection result")
		if !st.IsSuccess() {
			s.failLoad("LaunchApplication", st, cb)
			return
		}

		ch := client.NewMediaChannel()
		ch.SetOnStatusUpdated(func() {
			s.d.post(func() { s.onStatusUpdated(gen, ch) })
		})
		ch.SetOnMetadataUpdated(func() {
			s.d.post(func() { s.onMetadataUpdated(gen, ch) })
		})

		s.mu.Lock()
		s.channel = ch
		s.state = Active
		s.mu.Unlock()

		if err := client.SetMessageReceivedCallbacks(ch); err != nil {
			s.Log().Warn().Str("Method", "LaunchApplication").Err(err).Msg("exception while creating media channel")
		}

		s.loadMedia(gen, ch, info, cb)
	})
}

func (s *Session) loadMedia(gen uint64, ch castprotocol.MediaChannel, info castprotocol.MediaInfo, cb Callback) {
	s.await("Load", cb, func(ctx context.Context) castprotocol.Status {
		return ch.Load(ctx, info, true)
	}, func(st castprotocol.Status) {
		if !s.stageLive(gen) {
			cb.SendError(nil)
			return
		}
		if !st.IsSuccess() {
			s.failLoad("Load", st, cb)
			return
		}

		s.Log().Debug().Str("Method", "Load").Msg("media loaded successfully")
		cb.SendSuccess(nil)
	})
}

// failLoad releases whatever the load built so far and fails cb.
func (s *Session) failLoad(stage string, st castprotocol.Status, cb Callback) {
	s.Log().Error().Str("Method", stage).Int("Code", st.Code).Err(st.Err).Msg("load failed")
	if err := s.release(); err != nil {
		s.Log().Warn().Str("Method", stage).Err(err).Msg("teardown after failed load")
	}
	cb.SendError(nil)
}

func (s *Session) clientOptions() (castprotocol.Options, error) {
	d, err := s.route.CastDevice()
	if err != nil {
		return castprotocol.Options{}, err
	}

	if d.IPAddress == nil {
		return castprotocol.Options{}, fmt.Errorf("%w: no address for %q", devices.ErrMalformedRoute, d.FriendlyName)
	}

	// Mid-session application and volume changes are not acted upon.
	listener := castprotocol.Listener{
		OnApplicationStatusChanged: func() {},
		OnVolumeChanged:            func() {},
		OnApplicationDisconnected:  func(code int) {},
	}

	return castprotocol.Options{
		DeviceID:     d.ID,
		FriendlyName: d.FriendlyName,
		Host:         d.IPAddress.String(),
		Port:         d.Port,
		Listener:     listener,
		LogOutput:    s.LogOutput,
	}, nil
}

func (s *Session) newClient(opts castprotocol.Options) (client castprotocol.Client, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("connector panicked: %v", r)
		}
	}()

	client, err = s.connector(opts)
	if err == nil && client == nil {
		err = errors.New("connector returned no client")
	}
	return client, err
}

func (s *Session) command(method string, cb Callback, fn func(context.Context, castprotocol.MediaChannel) castprotocol.Status) error {
	oc := once(cb)

	s.mu.RLock()
	ch := s.channel
	gen := s.generation
	s.mu.RUnlock()

	if ch == nil {
		s.Log().Error().Str("Method", method).Err(ErrNoMediaChannel).Msg("command without media channel")
		s.post(oc, func() { oc.SendError(nil) })
		return ErrNoMediaChannel
	}

	s.await(method, oc, func(ctx context.Context) castprotocol.Status {
		return fn(ctx, ch)
	}, func(st castprotocol.Status) {
		if !st.IsSuccess() {
			s.Log().Debug().Str("Method", method).Int("Code", st.Code).Uint64("Session", gen).Msg("unable to toggle pause")
			oc.SendError(nil)
			return
		}
		oc.SendSuccess(nil)
	})

	return nil
}

// shutdown stops the receiver application and releases the session. Runs on
// the dispatcher. onDone, if set, runs once the session has been released.
func (s *Session) shutdown(method string, cb Callback, onDone func()) {
	s.mu.Lock()
	client := s.client
	gen := s.generation
	if client != nil {
		s.state = Ending
	}
	s.mu.Unlock()

	if client == nil {
		s.Log().Debug().Str("Method", method).Err(ErrNoSession).Msg("error ending")
		cb.SendError(nil)
		return
	}

	s.await("StopApplication", cb, func(ctx context.Context) castprotocol.Status {
		return client.StopApplication(ctx)
	}, func(st castprotocol.Status) {
		if onDone != nil {
			defer onDone()
		}

		if !s.isCurrent(gen) {
			s.Log().Debug().Str("Method", method).Msg("session already released")
			cb.SendError(nil)
			return
		}

		err := s.release()
		if !st.IsSuccess() {
			s.Log().Warn().Str("Method", method).Int("Code", st.Code).Err(st.Err).Msg("stop application failed")
			cb.SendError(nil)
			return
		}
		if err != nil {
			s.Log().Warn().Str("Method", method).Err(err).Msg("error ending")
			cb.SendError(nil)
			return
		}

		cb.SendSuccess(nil)
	})
}

// release unregisters the media channel, disconnects the client and drops
// both handles. Every step runs even if an earlier one fails.
func (s *Session) release() error {
	s.mu.Lock()
	client := s.client
	ch := s.channel
	s.client = nil
	s.channel = nil
	s.state = Disconnected
	s.generation++
	s.mu.Unlock()

	var errs []error

	if client != nil && ch != nil {
		if err := guard("remove message callbacks", func() error {
			return client.RemoveMessageReceivedCallbacks(ch.Namespace())
		}); err != nil {
			s.Log().Warn().Str("Method", "release").Err(err).Msg("media channel unregister failed")
			errs = append(errs, err)
		}
	}

	if client != nil {
		if err := guard("disconnect", client.Disconnect); err != nil {
			s.Log().Warn().Str("Method", "release").Err(err).Msg("disconnect failed")
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// guard runs fn, turning a panic into an error.
func guard(step string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", step, r)
		}
	}()

	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}

// onStatusUpdated runs on the dispatcher for every status push.
func (s *Session) onStatusUpdated(gen uint64, ch castprotocol.MediaChannel) {
	if !s.isCurrent(gen) || s.State() != Active {
		return
	}

	st := ch.MediaStatus()
	if st == nil {
		return
	}

	s.Log().Debug().Str("Method", "onStatusUpdated").Str("PlayerState", st.PlayerState).Str("Reason", st.IdleReason).Msg("status updated")

	if st.PlayerState != castprotocol.PlayerStateIdle {
		return
	}

	if !st.IsFinished() {
		// Only a natural finish ends the session; the caller decides what to do
		// about errors and interruptions.
		s.Log().Warn().Str("Method", "onStatusUpdated").Str("Reason", st.IdleReason).Msg("receiver idle, session kept")
		return
	}

	s.Log().Debug().Str("Method", "onStatusUpdated").Msg("playback finished")
	s.shutdown("finish", once(nil), func() {
		if s.bus != nil {
			s.bus.Broadcast(events.Event{Name: events.CastingStop})
		}
	})
}

func (s *Session) onMetadataUpdated(gen uint64, ch castprotocol.MediaChannel) {
	if !s.isCurrent(gen) {
		return
	}

	info := ch.MediaInfo()
	if info == nil {
		return
	}

	title := ""
	if info.Metadata != nil {
		title = info.Metadata.Title
	}
	s.Log().Debug().Str("Method", "onMetadataUpdated").Str("URL", info.ContentId).Str("Title", title).Msg("metadata updated")
}
