package castprotocol

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// mediaChannel is the go-chromecast backed MediaChannel.
type mediaChannel struct {
	client *CastClient

	mu                sync.RWMutex
	status            *MediaStatus
	info              *MediaInfo
	onStatusUpdated   func()
	onMetadataUpdated func()
}

var _ MediaChannel = (*mediaChannel)(nil)

func newPollLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

func (m *mediaChannel) Namespace() string {
	return MediaNamespace
}

func (m *mediaChannel) SetOnStatusUpdated(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatusUpdated = fn
}

func (m *mediaChannel) SetOnMetadataUpdated(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMetadataUpdated = fn
}

// Load sends a LOAD command to the running media receiver.
func (m *mediaChannel) Load(ctx context.Context, info MediaInfo, autoplay bool) Status {
	c := m.client
	if !c.IsConnected() {
		return Status{Code: StatusInvalidRequest, Err: ErrNotConnected}
	}

	c.Log().Debug().Str("Method", "Load").Str("URL", info.ContentId).Str("ContentType", info.ContentType).Bool("Autoplay", autoplay).Msg("loading media")

	transportId := c.transportID()
	if transportId == "" {
		c.Log().Error().Str("Method", "Load").Msg("no transport ID")
		return Status{Code: StatusApplicationNotRunning, Err: ErrAppNotRunning}
	}

	err := runWithContext(ctx, func() error {
		return LoadMedia(c.conn, transportId, info, autoplay)
	})
	if err != nil {
		c.Log().Error().Str("Method", "Load").Err(err).Msg("failed")
		return StatusFromError(err)
	}

	m.mu.Lock()
	loaded := info
	m.info = &loaded
	m.mu.Unlock()

	c.Log().Debug().Str("Method", "Load").Msg("load success")
	return Success
}

// Play resumes playback.
func (m *mediaChannel) Play(ctx context.Context) Status {
	return m.command(ctx, "Play", func() error { return m.client.app.Unpause() })
}

// Pause pauses playback.
func (m *mediaChannel) Pause(ctx context.Context) Status {
	return m.command(ctx, "Pause", func() error { return m.client.app.Pause() })
}

// Stop stops playback and closes the media session.
func (m *mediaChannel) Stop(ctx context.Context) Status {
	return m.command(ctx, "Stop", func() error { return m.client.app.Stop() })
}

// command refreshes the media session id and runs fn against it.
// PLAY/PAUSE/STOP need the mediaSessionId from the LOAD response, which
// go-chromecast only learns through Update.
func (m *mediaChannel) command(ctx context.Context, method string, fn func() error) Status {
	c := m.client
	if !c.IsConnected() {
		return Status{Code: StatusInvalidRequest, Err: ErrNotConnected}
	}

	c.Log().Debug().Str("Method", method).Msg("sending media command")
	err := runWithContext(ctx, func() error {
		if err := c.app.Update(); err != nil {
			return err
		}
		return fn()
	})
	if err != nil {
		c.Log().Error().Str("Method", method).Err(err).Msg("failed")
	}

	return StatusFromError(err)
}

// MediaStatus returns the last observed media status, nil before the first update.
func (m *mediaChannel) MediaStatus() *MediaStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == nil {
		return nil
	}
	st := *m.status
	return &st
}

// MediaInfo returns the last loaded or observed media item.
func (m *mediaChannel) MediaInfo() *MediaInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.info == nil {
		return nil
	}
	info := *m.info
	return &info
}

// observe stores a status snapshot and fires the listeners for what changed.
func (m *mediaChannel) observe(status *MediaStatus, info *MediaInfo) {
	m.mu.Lock()
	statusChanged := m.status == nil || statusDiffers(*m.status, *status)
	m.status = status

	metadataChanged := false
	if info != nil && info.ContentId != "" {
		metadataChanged = m.info == nil || metadataDiffers(*m.info, *info)
		m.info = info
	}

	onStatus := m.onStatusUpdated
	onMetadata := m.onMetadataUpdated
	m.mu.Unlock()

	if statusChanged && onStatus != nil {
		onStatus()
	}
	if metadataChanged && onMetadata != nil {
		onMetadata()
	}
}

// statusDiffers ignores the playback position, which moves on every poll.
func statusDiffers(a, b MediaStatus) bool {
	return a.MediaSessionId != b.MediaSessionId ||
		a.PlayerState != b.PlayerState ||
		a.IdleReason != b.IdleReason ||
		a.Volume != b.Volume ||
		a.Muted != b.Muted
}

func metadataDiffers(a, b MediaInfo) bool {
	if a.ContentId != b.ContentId || a.ContentType != b.ContentType {
		return true
	}

	var at, bt string
	if a.Metadata != nil {
		at = a.Metadata.Title
	}
	if b.Metadata != nil {
		bt = b.Metadata.Title
	}
	return at != bt
}
