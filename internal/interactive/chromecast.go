package interactive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"go2tv.app/go2cast/castprotocol"
	"go2tv.app/go2cast/internal/castsession"
	"go2tv.app/go2cast/internal/events"
)

// SubscriberID is the event bus id the screen subscribes with.
const SubscriberID = "interactive"

// Player is what the screen drives.
type Player interface {
	castsession.MediaPlayer
	MediaStatus() *castprotocol.MediaStatus
}

// ChromecastScreen handles interactive CLI for Chromecast devices.
type ChromecastScreen struct {
	Current     tcell.Screen
	Player      Player
	exitCTXfunc context.CancelFunc
	mediaTitle  string
	lastAction  string
	finiOnce    sync.Once
	mu          sync.RWMutex
}

func (p *ChromecastScreen) emitStr(x, y int, style tcell.Style, str string) {
	s := p.Current
	for _, c := range str {
		var comb []rune
		w := runewidth.RuneWidth(c)
		if w == 0 {
			comb = []rune{c}
			c = ' '
			w = 1
		}
		s.SetContent(x, y, c, comb, style)
		x += w
	}
}

// EmitMsg displays status to the interactive terminal.
func (p *ChromecastScreen) EmitMsg(inputtext string) {
	p.updateLastAction(inputtext)
	s := p.Current

	p.mu.RLock()
	mediaTitle := p.mediaTitle
	p.mu.RUnlock()

	titleLen := runewidth.StringWidth("Title: " + mediaTitle)
	w, h := s.Size()
	boldStyle := tcell.StyleDefault.
		Background(tcell.ColorBlack).
		Foreground(tcell.ColorWhite).Bold(true)
	blinkStyle := tcell.StyleDefault.
		Background(tcell.ColorBlack).
		Foreground(tcell.ColorWhite).Blink(true)

	s.Clear()

	p.emitStr(w/2-titleLen/2, h/2-2, tcell.StyleDefault, "Title: "+mediaTitle)
	switch inputtext {
	case "Waiting for status...", "Buffering...":
		p.emitStr(w/2-len(inputtext)/2, h/2, blinkStyle, inputtext)
	default:
		p.emitStr(w/2-len(inputtext)/2, h/2, boldStyle, inputtext)
	}
	p.emitStr(1, 1, tcell.StyleDefault, "Press ESC to stop and exit.")

	if st := p.status(); st != nil && st.Muted {
		p.emitStr(w/2-len("MUTED")/2, h/2+2, blinkStyle, "MUTED")
	}

	p.emitStr(w/2-len(`"p" (Play/Pause)`)/2, h/2+4, tcell.StyleDefault, `"p" (Play/Pause)`)
	s.Show()
}

// InterInit starts the interactive terminal for Chromecast. It returns when
// the screen is closed.
func (p *ChromecastScreen) InterInit(title string, c chan error) {
	p.mu.Lock()
	p.mediaTitle = title
	p.mu.Unlock()

	s := p.Current
	if err := s.Init(); err != nil {
		c <- fmt.Errorf("chromecast interactive: %w", err)
		return
	}

	defStyle := tcell.StyleDefault.
		Background(tcell.ColorBlack).
		Foreground(tcell.ColorWhite)
	s.SetStyle(defStyle)

	p.EmitMsg("Waiting for status...")

	done := make(chan struct{})
	defer close(done)
	go p.pollStatus(time.Second, done)

	for {
		switch ev := s.PollEvent().(type) {
		case nil:
			return
		case *tcell.EventResize:
			s.Sync()
			p.EmitMsg(p.getLastAction())
		case *tcell.EventKey:
			p.HandleKeyEvent(ev)
		}
	}
}

// pollStatus refreshes the status line until done is closed.
func (p *ChromecastScreen) pollStatus(interval time.Duration, done <-chan struct{}) {
	statusTicker := time.NewTicker(interval)
	defer statusTicker.Stop()

	for {
		select {
		case <-done:
			return
		case <-statusTicker.C:
			if msg := statusMessage(p.status()); msg != "" && msg != p.getLastAction() {
				p.EmitMsg(msg)
			}
		}
	}
}

// HandleKeyEvent handles key press events for Chromecast.
func (p *ChromecastScreen) HandleKeyEvent(ev *tcell.EventKey) {
	p.handleKey(ev.Key(), ev.Rune())
}

func (p *ChromecastScreen) handleKey(key tcell.Key, r rune) {
	if p.Player == nil {
		return
	}

	if key == tcell.KeyEscape {
		done := make(chan struct{})
		p.Player.End(castsession.CallbackFuncs{
			Success: func(any) { close(done) },
			Error:   func(any) { close(done) },
		})
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
		p.Fini()
		return
	}

	if r != 'p' {
		return
	}

	failed := castsession.CallbackFuncs{
		Error: func(any) { p.EmitMsg("Unable to toggle pause") },
	}

	switch playPauseAction(p.status()) {
	case "Pause":
		_ = p.Player.Pause(failed)
	default:
		_ = p.Player.Play(failed)
	}
}

// OnEvent is the event bus handler. A finished session closes the screen.
func (p *ChromecastScreen) OnEvent(e events.Event) {
	if e.Name != events.CastingStop {
		return
	}
	p.EmitMsg("Stopped")
	p.Fini()
}

// Fini closes the screen and exits.
func (p *ChromecastScreen) Fini() {
	p.finiOnce.Do(func() {
		p.Current.Fini()
		p.exitCTXfunc()
	})
}

// InitChromecastScreen creates a new Chromecast interactive screen.
func InitChromecastScreen(player Player, ctxCancel context.CancelFunc) (*ChromecastScreen, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("chromecast interactive: %w", err)
	}

	return &ChromecastScreen{
		Current:     s,
		Player:      player,
		exitCTXfunc: ctxCancel,
	}, nil
}

func (p *ChromecastScreen) status() *castprotocol.MediaStatus {
	if p.Player == nil {
		return nil
	}
	return p.Player.MediaStatus()
}

// playPauseAction picks the command that toggles the current player state.
func playPauseAction(st *castprotocol.MediaStatus) string {
	if st != nil && st.PlayerState == castprotocol.PlayerStatePlaying {
		return "Pause"
	}
	return "Play"
}

func statusMessage(st *castprotocol.MediaStatus) string {
	if st == nil {
		return ""
	}

	switch st.PlayerState {
	case castprotocol.PlayerStatePlaying:
		return "Playing"
	case castprotocol.PlayerStatePaused:
		return "Paused"
	case castprotocol.PlayerStateBuffering:
		return "Buffering..."
	case castprotocol.PlayerStateIdle:
		if st.IsFinished() {
			return "Stopped"
		}
	}
	return ""
}

func (p *ChromecastScreen) getLastAction() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastAction
}

func (p *ChromecastScreen) updateLastAction(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastAction = s
}
