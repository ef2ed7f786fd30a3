package interactive

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/require"
	"go2tv.app/go2cast/castprotocol"
	"go2tv.app/go2cast/internal/castsession"
	"go2tv.app/go2cast/internal/events"
)

type fakePlayer struct {
	mu     sync.Mutex
	status *castprotocol.MediaStatus
	calls  []string
}

func (f *fakePlayer) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakePlayer) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePlayer) DescribeDevice() map[string]any { return map[string]any{} }

func (f *fakePlayer) Load(title, url, mimeType string, cb castsession.Callback) {
	f.record("Load")
	cb.SendSuccess(nil)
}

func (f *fakePlayer) Start(cb castsession.Callback) { cb.SendSuccess(nil) }
func (f *fakePlayer) Stop(cb castsession.Callback)  { cb.SendSuccess(nil) }

func (f *fakePlayer) Play(cb castsession.Callback) error {
	f.record("Play")
	cb.SendSuccess(nil)
	return nil
}

func (f *fakePlayer) Pause(cb castsession.Callback) error {
	f.record("Pause")
	cb.SendError(nil)
	return nil
}

func (f *fakePlayer) End(cb castsession.Callback) {
	f.record("End")
	cb.SendSuccess(nil)
}

func (f *fakePlayer) MediaStatus() *castprotocol.MediaStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func newTestScreen(t *testing.T, player Player) (*ChromecastScreen, context.Context) {
	t.Helper()

	sim := tcell.NewSimulationScreen("")
	require.NoError(t, sim.Init())
	sim.SetSize(80, 25)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return &ChromecastScreen{
		Current:     sim,
		Player:      player,
		exitCTXfunc: cancel,
		mediaTitle:  "Big Buck Bunny",
	}, ctx
}

func TestPlayPauseAction(t *testing.T) {
	tests := []struct {
		name   string
		status *castprotocol.MediaStatus
		want   string
	}{
		{"playing maps to pause", &castprotocol.MediaStatus{PlayerState: castprotocol.PlayerStatePlaying}, "Pause"},
		{"paused maps to play", &castprotocol.MediaStatus{PlayerState: castprotocol.PlayerStatePaused}, "Play"},
		{"buffering maps to play", &castprotocol.MediaStatus{PlayerState: castprotocol.PlayerStateBuffering}, "Play"},
		{"no status maps to play", nil, "Play"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, playPauseAction(tt.status))
		})
	}
}

func TestStatusMessage(t *testing.T) {
	require.Equal(t, "", statusMessage(nil))
	require.Equal(t, "Playing", statusMessage(&castprotocol.MediaStatus{PlayerState: castprotocol.PlayerStatePlaying}))
	require.Equal(t, "Buffering...", statusMessage(&castprotocol.MediaStatus{PlayerState: castprotocol.PlayerStateBuffering}))
	require.Equal(t, "Stopped", statusMessage(&castprotocol.MediaStatus{
		PlayerState: castprotocol.PlayerStateIdle,
		IdleReason:  castprotocol.IdleReasonFinished,
	}))
	require.Equal(t, "", statusMessage(&castprotocol.MediaStatus{
		PlayerState: castprotocol.PlayerStateIdle,
		IdleReason:  castprotocol.IdleReasonError,
	}))
}

func TestToggleKey(t *testing.T) {
	player := &fakePlayer{status: &castprotocol.MediaStatus{PlayerState: castprotocol.PlayerStatePlaying}}
	p, _ := newTestScreen(t, player)

	p.handleKey(tcell.KeyRune, 'p')
	require.Equal(t, []string{"Pause"}, player.recorded())
	require.Equal(t, "Unable to toggle pause", p.getLastAction())

	player.mu.Lock()
	player.status = &castprotocol.MediaStatus{PlayerState: castprotocol.PlayerStatePaused}
	player.mu.Unlock()

	p.handleKey(tcell.KeyRune, 'p')
	require.Equal(t, []string{"Pause", "Play"}, player.recorded())

	p.handleKey(tcell.KeyRune, 'x')
	require.Len(t, player.recorded(), 2)
}

func TestEscapeEndsAndExits(t *testing.T) {
	player := &fakePlayer{}
	p, ctx := newTestScreen(t, player)

	p.handleKey(tcell.KeyEscape, 0)
	require.Equal(t, []string{"End"}, player.recorded())
	require.ErrorIs(t, ctx.Err(), context.Canceled)

	require.NotPanics(t, p.Fini)
}

func TestCastingStopEventExits(t *testing.T) {
	p, ctx := newTestScreen(t, &fakePlayer{})

	bus := events.New()
	bus.Subscribe(SubscriberID, p.OnEvent)

	bus.Broadcast(events.Event{Name: "Other"})
	require.NoError(t, ctx.Err())

	bus.Broadcast(events.Event{Name: events.CastingStop})
	require.Equal(t, "Stopped", p.getLastAction())
	require.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestPollStatusStopsWhenDone(t *testing.T) {
	player := &fakePlayer{status: &castprotocol.MediaStatus{PlayerState: castprotocol.PlayerStatePlaying}}
	p, _ := newTestScreen(t, player)

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		p.pollStatus(time.Millisecond, done)
		close(exited)
	}()

	require.Eventually(t, func() bool {
		return p.getLastAction() == "Playing"
	}, 2*time.Second, 5*time.Millisecond)

	close(done)
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("status poller kept running")
	}
}
