package castprotocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMediaChannelObserveFiresOnChangeOnly(t *testing.T) {
	assertions := require.New(t)

	ch := &mediaChannel{}
	var statusCalls, metadataCalls int
	ch.SetOnStatusUpdated(func() { statusCalls++ })
	ch.SetOnMetadataUpdated(func() { metadataCalls++ })

	info := &MediaInfo{ContentId: "http://host/a.mp4", ContentType: "video/mp4", Metadata: &MediaMeta{Title: "A"}}

	ch.observe(&MediaStatus{MediaSessionId: 1, PlayerState: PlayerStateBuffering}, info)
	assertions.Equal(1, statusCalls)
	assertions.Equal(1, metadataCalls)

	// Position moves on every poll and must not count as a change.
	ch.observe(&MediaStatus{MediaSessionId: 1, PlayerState: PlayerStateBuffering, CurrentTime: 3}, info)
	assertions.Equal(1, statusCalls)
	assertions.Equal(1, metadataCalls)

	ch.observe(&MediaStatus{MediaSessionId: 1, PlayerState: PlayerStatePlaying}, info)
	assertions.Equal(2, statusCalls)
	assertions.Equal(1, metadataCalls)

	renamed := &MediaInfo{ContentId: "http://host/a.mp4", ContentType: "video/mp4", Metadata: &MediaMeta{Title: "B"}}
	ch.observe(&MediaStatus{MediaSessionId: 1, PlayerState: PlayerStatePlaying}, renamed)
	assertions.Equal(2, statusCalls)
	assertions.Equal(2, metadataCalls)

	st := ch.MediaStatus()
	assertions.Equal(PlayerStatePlaying, st.PlayerState)
	assertions.Equal("B", ch.MediaInfo().Metadata.Title)
}

func TestMediaChannelSnapshotsAreCopies(t *testing.T) {
	ch := &mediaChannel{}
	require.Nil(t, ch.MediaStatus())
	require.Nil(t, ch.MediaInfo())

	ch.observe(&MediaStatus{PlayerState: PlayerStateIdle, IdleReason: IdleReasonFinished}, nil)
	st := ch.MediaStatus()
	st.PlayerState = PlayerStatePlaying
	require.True(t, ch.MediaStatus().IsFinished())
	require.Equal(t, MediaNamespace, ch.Namespace())
}

func TestObserveReceiverHooks(t *testing.T) {
	assertions := require.New(t)

	var statusChanged, volumeChanged int
	disconnected := -1
	c := &CastClient{opts: Options{Listener: Listener{
		OnApplicationStatusChanged: func() { statusChanged++ },
		OnVolumeChanged:            func() { volumeChanged++ },
		OnApplicationDisconnected:  func(code int) { disconnected = code },
	}}}

	c.observeReceiver(receiverState{AppRunning: true, StatusText: "Ready", Level: 0.5})
	assertions.Equal(1, statusChanged)
	assertions.Equal(1, volumeChanged)

	c.observeReceiver(receiverState{AppRunning: true, StatusText: "Ready", Level: 0.5, Muted: true})
	assertions.Equal(1, statusChanged)
	assertions.Equal(2, volumeChanged)

	c.observeReceiver(receiverState{})
	assertions.Equal(StatusApplicationNotRunning, disconnected)
	assertions.Equal(1, statusChanged)
}

func TestObserveReceiverNilHooks(t *testing.T) {
	c := &CastClient{}
	require.NotPanics(t, func() {
		c.observeReceiver(receiverState{AppRunning: true, StatusText: "x", Level: 1})
		c.observeReceiver(receiverState{})
	})
}
