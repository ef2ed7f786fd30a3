package castprotocol

import (
	"context"
	"errors"
	"io"
)

const (
	// DefaultMediaReceiverAppID is the application id of the Styled/Default Media Receiver.
	DefaultMediaReceiverAppID = "CC1AD845"
	// MediaNamespace carries media commands and media status.
	MediaNamespace            = "urn:x-cast:com.google.cast.media"
	// ReceiverNamespace carries application launch/stop and receiver status.
	ReceiverNamespace         = "urn:x-cast:com.google.cast.receiver"

	defaultSenderID   = "sender-0"
	defaultReceiverID = "receiver-0"
	defaultCastPort   = 8009
)

var (
	ErrNotConnected      = errors.New("chromecast: client not connected")
	ErrAppNotRunning     = errors.New("chromecast: receiver application not running")
	ErrAlreadyRegistered = errors.New("chromecast: message callbacks already registered")
	ErrNotRegistered     = errors.New("chromecast: no message callbacks registered")
	ErrForeignChannel    = errors.New("chromecast: media channel belongs to another client")
)

// Listener receives receiver level notifications for a connected client.
// Nil hooks are ignored.
type Listener struct {
	OnApplicationStatusChanged func()
	OnVolumeChanged            func()
	OnApplicationDisconnected  func(code int)
}

// Options identifies the device a Client talks to.
type Options struct {
	DeviceID     string
	FriendlyName string
	Host         string
	Port         int
	Listener     Listener
	LogOutput    io.Writer
}

// Client is a connection to a single cast device.
type Client interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	LaunchApplication(ctx context.Context, appID string) Status
	StopApplication(ctx context.Context) Status
	NewMediaChannel() MediaChannel
	SetMessageReceivedCallbacks(ch MediaChannel) error
	RemoveMessageReceivedCallbacks(namespace string) error
	Disconnect() error
}

// MediaChannel is the media sub-connection of a launched receiver.
type MediaChannel interface {
	Namespace() string
	SetOnStatusUpdated(fn func())
	SetOnMetadataUpdated(fn func())
	Load(ctx context.Context, info MediaInfo, autoplay bool) Status
	Play(ctx context.Context) Status
	Pause(ctx context.Context) Status
	Stop(ctx context.Context) Status
	MediaStatus() *MediaStatus
	MediaInfo() *MediaInfo
}

// Connector builds a Client for the given options without connecting it.
type Connector func(opts Options) (Client, error)
