package castsession

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"go2tv.app/go2cast/castprotocol"
	"go2tv.app/go2cast/devices"
)

type okPlatform struct{}

func (okPlatform) CastSupport() error { return nil }

type fakeRoute struct {
	id     string
	device *devices.CastDevice
	err    error
	panics bool
}

func (r *fakeRoute) ID() string {
	if r.panics {
		panic("route id unavailable")
	}
	return r.id
}

func (r *fakeRoute) CastDevice() (*devices.CastDevice, error) {
	if r.err != nil {
		return nil, r.err
	}
	d := *r.device
	return &d, nil
}

func livingRoom() *fakeRoute {
	return &fakeRoute{
		id: "route-1",
		device: &devices.CastDevice{
			ID:            "abc123",
			DeviceVersion: "1.56.500000",
			FriendlyName:  "Living Room TV",
			IPAddress:     net.ParseIP("192.168.1.20"),
			Port:          8009,
			ModelName:     "Chromecast Ultra",
		},
	}
}

// fakeVendor scripts the results of every vendor call.
type fakeVendor struct {
	mu sync.Mutex

	connectErr    error
	connectPanic  bool
	launch        castprotocol.Status
	launchPanic   bool
	load          castprotocol.Status
	loadPanic     bool
	play          castprotocol.Status
	playPanic     bool
	pause         castprotocol.Status
	pausePanic    bool
	stopApp       castprotocol.Status
	stopAppPanic  bool
	removePanic   bool
	disconnectErr error

	// Connect and LaunchApplication block until their gate is closed.
	connectGate chan struct{}
	launchGate  chan struct{}

	opts        castprotocol.Options
	client      *fakeClient
	channel     *fakeChannel
	loaded      []castprotocol.MediaInfo
	removes     int
	disconnects int
	stopApps    int
}

func (v *fakeVendor) connector() castprotocol.Connector {
	return func(opts castprotocol.Options) (castprotocol.Client, error) {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.opts = opts
		v.client = &fakeClient{v: v}
		return v.client, nil
	}
}

func (v *fakeVendor) wait(gate chan struct{}) {
	if gate != nil {
		<-gate
	}
}

func (v *fakeVendor) counts() (removes, disconnects, stopApps int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.removes, v.disconnects, v.stopApps
}

type fakeClient struct {
	v         *fakeVendor
	connected bool
}

func (c *fakeClient) Connect(ctx context.Context) error {
	c.v.wait(c.v.connectGate)

	c.v.mu.Lock()
	defer c.v.mu.Unlock()
	if c.v.connectPanic {
		panic("connect exploded")
	}
	if c.v.connectErr != nil {
		return c.v.connectErr
	}
	c.connected = true
	return nil
}

func (c *fakeClient) IsConnected() bool {
	c.v.mu.Lock()
	defer c.v.mu.Unlock()
	return c.connected
}

func (c *fakeClient) LaunchApplication(ctx context.Context, appID string) castprotocol.Status {
	c.v.wait(c.v.launchGate)

	c.v.mu.Lock()
	defer c.v.mu.Unlock()
	if c.v.launchPanic {
		panic("launch exploded")
	}
	return c.v.launch
}

func (c *fakeClient) StopApplication(ctx context.Context) castprotocol.Status {
	c.v.mu.Lock()
	defer c.v.mu.Unlock()
	c.v.stopApps++
	if c.v.stopAppPanic {
		panic("stop application exploded")
	}
	return c.v.stopApp
}

func (c *fakeClient) NewMediaChannel() castprotocol.MediaChannel {
	c.v.mu.Lock()
	defer c.v.mu.Unlock()
	c.v.channel = &fakeChannel{v: c.v}
	return c.v.channel
}

func (c *fakeClient) SetMessageReceivedCallbacks(ch castprotocol.MediaChannel) error {
	return nil
}

func (c *fakeClient) RemoveMessageReceivedCallbacks(namespace string) error {
	c.v.mu.Lock()
	defer c.v.mu.Unlock()
	c.v.removes++
	if c.v.removePanic {
		panic("unregister exploded")
	}
	return nil
}

func (c *fakeClient) Disconnect() error {
	c.v.mu.Lock()
	defer c.v.mu.Unlock()
	c.v.disconnects++
	c.connected = false
	return c.v.disconnectErr
}

type fakeChannel struct {
	v *fakeVendor

	mu         sync.Mutex
	status     *castprotocol.MediaStatus
	onStatus   func()
	onMetadata func()
}

func (ch *fakeChannel) Namespace() string { return castprotocol.MediaNamespace }

func (ch *fakeChannel) SetOnStatusUpdated(fn func()) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.onStatus = fn
}

func (ch *fakeChannel) SetOnMetadataUpdated(fn func()) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.onMetadata = fn
}

func (ch *fakeChannel) Load(ctx context.Context, info castprotocol.MediaInfo, autoplay bool) castprotocol.Status {
	ch.v.mu.Lock()
	defer ch.v.mu.Unlock()
	if ch.v.loadPanic {
		panic("load exploded")
	}
	ch.v.loaded = append(ch.v.loaded, info)
	return ch.v.load
}

func (ch *fakeChannel) Play(ctx context.Context) castprotocol.Status {
	ch.v.mu.Lock()
	defer ch.v.mu.Unlock()
	if ch.v.playPanic {
		panic("play exploded")
	}
	return ch.v.play
}

func (ch *fakeChannel) Pause(ctx context.Context) castprotocol.Status {
	ch.v.mu.Lock()
	defer ch.v.mu.Unlock()
	if ch.v.pausePanic {
		panic("pause exploded")
	}
	return ch.v.pause
}

func (ch *fakeChannel) Stop(ctx context.Context) castprotocol.Status {
	return castprotocol.Success
}

func (ch *fakeChannel) MediaStatus() *castprotocol.MediaStatus {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.status == nil {
		return nil
	}
	st := *ch.status
	return &st
}

func (ch *fakeChannel) MediaInfo() *castprotocol.MediaInfo {
	ch.v.mu.Lock()
	defer ch.v.mu.Unlock()
	if len(ch.v.loaded) == 0 {
		return nil
	}
	info := ch.v.loaded[len(ch.v.loaded)-1]
	return &info
}

// push simulates a status message from the receiver.
func (ch *fakeChannel) push(st castprotocol.MediaStatus) {
	ch.mu.Lock()
	ch.status = &st
	fn := ch.onStatus
	ch.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (ch *fakeChannel) pushMetadata() {
	ch.mu.Lock()
	fn := ch.onMetadata
	ch.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// recorder is a Callback counting results.
type recorder struct {
	results chan string
	mu      sync.Mutex
	success int
	failure int
}

func newRecorder() *recorder {
	return &recorder{results: make(chan string, 16)}
}

func (r *recorder) SendSuccess(payload any) {
	r.mu.Lock()
	r.success++
	r.mu.Unlock()
	r.results <- "success"
}

func (r *recorder) SendError(payload any) {
	r.mu.Lock()
	r.failure++
	r.mu.Unlock()
	r.results <- "error"
}

func (r *recorder) wait(t *testing.T) string {
	t.Helper()
	select {
	case res := <-r.results:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
		return ""
	}
}

// quiet fails if another result shows up.
func (r *recorder) quiet(t *testing.T) {
	t.Helper()
	select {
	case res := <-r.results:
		t.Fatalf("unexpected extra callback %q", res)
	case <-time.After(50 * time.Millisecond):
	}
}

func (r *recorder) totals() (success, failure int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.success, r.failure
}

// handles reads the session handles under lock.
func (s *Session) handles() (castprotocol.Client, castprotocol.MediaChannel) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client, s.channel
}
