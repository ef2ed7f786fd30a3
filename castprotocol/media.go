package castprotocol

// Player states reported by the default media receiver.
const (
	PlayerStateIdle      = "IDLE"
	PlayerStatePlaying   = "PLAYING"
	PlayerStatePaused    = "PAUSED"
	PlayerStateBuffering = "BUFFERING"
)

// Idle reasons reported alongside PlayerStateIdle.
const (
	IdleReasonFinished    = "FINISHED"
	IdleReasonCancelled   = "CANCELLED"
	IdleReasonInterrupted = "INTERRUPTED"
	IdleReasonError       = "ERROR"
)

// Stream types accepted by the LOAD command.
const (
	StreamTypeBuffered = "BUFFERED"
	StreamTypeLive     = "LIVE"
)

// MetadataTypeMovie is the Cast metadata type for movie media.
const MetadataTypeMovie = 1

// MediaInfo describes the media item sent with a LOAD command.
type MediaInfo struct {
	ContentId   string     `json:"contentId"`
	ContentType string     `json:"contentType"`
	StreamType  string     `json:"streamType"`
	Duration    float32    `json:"duration,omitempty"`
	Metadata    *MediaMeta `json:"metadata,omitempty"`
}

// MediaMeta contains metadata about the media.
type MediaMeta struct {
	MetadataType int    `json:"metadataType"`
	Title        string `json:"title,omitempty"`
}

// NewMovieInfo builds a buffered MediaInfo carrying a movie title.
func NewMovieInfo(url, contentType, title string) MediaInfo {
	return MediaInfo{
		ContentId:   url,
		ContentType: contentType,
		StreamType:  StreamTypeBuffered,
		Metadata: &MediaMeta{
			MetadataType: MetadataTypeMovie,
			Title:        title,
		},
	}
}

// MediaStatus represents current Chromecast playback state.
type MediaStatus struct {
	MediaSessionId int
	PlayerState    string  // "PLAYING", "PAUSED", "IDLE", "BUFFERING"
	IdleReason     string  // "FINISHED", "CANCELLED", "INTERRUPTED", "ERROR"
	CurrentTime    float32 // Current position in seconds
	Volume         float32 // Volume level (0.0 to 1.0)
	Muted          bool
}

// IsFinished reports whether playback reached the end of the stream.
func (m *MediaStatus) IsFinished() bool {
	return m != nil && m.PlayerState == PlayerStateIdle && m.IdleReason == IdleReasonFinished
}
