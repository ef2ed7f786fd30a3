package castprotocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vishen/go-chromecast/cast"
)

type sentMessage struct {
	requestID     int
	payload       cast.Payload
	sourceID      string
	destinationID string
	namespace     string
}

type fakeSender struct {
	sent []sentMessage
	err  error
}

func (f *fakeSender) Send(requestID int, payload cast.Payload, sourceID, destinationID, namespace string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{requestID, payload, sourceID, destinationID, namespace})
	return nil
}

func TestLoadMediaCarriesTitleAndBufferedStream(t *testing.T) {
	assertions := require.New(t)

	conn := &fakeSender{}
	info := NewMovieInfo("http://host/bbb.mp4", "video/mp4", "Big Buck Bunny")
	assertions.NoError(LoadMedia(conn, "transport-1", info, true))
	assertions.Len(conn.sent, 1)

	msg := conn.sent[0]
	assertions.Equal("sender-0", msg.sourceID)
	assertions.Equal("transport-1", msg.destinationID)
	assertions.Equal(MediaNamespace, msg.namespace)

	b, err := json.Marshal(msg.payload)
	assertions.NoError(err)

	var got struct {
		Type      string `json:"type"`
		RequestId int    `json:"requestId"`
		Autoplay  bool   `json:"autoplay"`
		Media     struct {
			ContentId   string `json:"contentId"`
			ContentType string `json:"contentType"`
			StreamType  string `json:"streamType"`
			Metadata    struct {
				MetadataType int    `json:"metadataType"`
				Title        string `json:"title"`
			} `json:"metadata"`
		} `json:"media"`
	}
	assertions.NoError(json.Unmarshal(b, &got))

	assertions.Equal("LOAD", got.Type)
	assertions.Equal(msg.requestID, got.RequestId)
	assertions.True(got.Autoplay)
	assertions.Equal("http://host/bbb.mp4", got.Media.ContentId)
	assertions.Equal("video/mp4", got.Media.ContentType)
	assertions.Equal("BUFFERED", got.Media.StreamType)
	assertions.Equal(MetadataTypeMovie, got.Media.Metadata.MetadataType)
	assertions.Equal("Big Buck Bunny", got.Media.Metadata.Title)
}

func TestLoadMediaRequiresTransport(t *testing.T) {
	conn := &fakeSender{}
	err := LoadMedia(conn, "", NewMovieInfo("http://host/a.mp4", "video/mp4", "a"), true)
	require.ErrorIs(t, err, ErrAppNotRunning)
	require.Empty(t, conn.sent)
}

func TestLoadMediaWrapsSendError(t *testing.T) {
	sendErr := errors.New("broken pipe")
	err := LoadMedia(&fakeSender{err: sendErr}, "transport-1", MediaInfo{ContentId: "x"}, false)
	require.ErrorIs(t, err, sendErr)
}

func TestLaunchAndStopReceiverTargetReceiverNamespace(t *testing.T) {
	assertions := require.New(t)

	conn := &fakeSender{}
	assertions.NoError(LaunchReceiver(conn, DefaultMediaReceiverAppID))
	assertions.NoError(StopReceiver(conn, "session-1"))
	assertions.Len(conn.sent, 2)

	for _, msg := range conn.sent {
		assertions.Equal("receiver-0", msg.destinationID)
		assertions.Equal(ReceiverNamespace, msg.namespace)
	}

	launch, ok := conn.sent[0].payload.(*cast.LaunchRequest)
	assertions.True(ok)
	assertions.Equal("LAUNCH", launch.Type)
	assertions.Equal(DefaultMediaReceiverAppID, launch.AppId)

	stop, ok := conn.sent[1].payload.(*StopAppPayload)
	assertions.True(ok)
	assertions.Equal("STOP", stop.Type)
	assertions.Equal("session-1", stop.SessionId)
	assertions.NotEqual(conn.sent[0].requestID, conn.sent[1].requestID)
}

func TestStopReceiverWithoutSession(t *testing.T) {
	require.ErrorIs(t, StopReceiver(&fakeSender{}, ""), ErrAppNotRunning)
}
