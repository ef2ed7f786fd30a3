package castprotocol

import (
	"fmt"
	"sync/atomic"

	"github.com/vishen/go-chromecast/cast"
)

// Request ID counter for Chromecast messages
var requestIDCounter int32

func nextRequestID() int {
	return int(atomic.AddInt32(&requestIDCounter, 1))
}

// sender is the part of cast.Conn used to push raw payloads.
type sender interface {
	Send(requestID int, payload cast.Payload, sourceID, destinationID, namespace string) error
}

// LoadPayload is a LOAD command carrying media metadata.
// go-chromecast's own Load does not send a title, so we build the command ourselves.
type LoadPayload struct {
	Type        string    `json:"type"`
	RequestId   int       `json:"requestId"`
	Media       MediaInfo `json:"media"`
	CurrentTime int       `json:"currentTime"`
	Autoplay    bool      `json:"autoplay"`
}

// SetRequestId implements cast.Payload interface
func (p *LoadPayload) SetRequestId(id int) {
	p.RequestId = id
}

// StopAppPayload asks the receiver to stop a running application session.
type StopAppPayload struct {
	Type      string `json:"type"`
	RequestId int    `json:"requestId"`
	SessionId string `json:"sessionId"`
}

// SetRequestId implements cast.Payload interface
func (p *StopAppPayload) SetRequestId(id int) {
	p.RequestId = id
}

var (
	_ cast.Payload = (*LoadPayload)(nil)
	_ cast.Payload = (*StopAppPayload)(nil)
)

// LoadMedia sends a LOAD command to the media receiver identified by transportId.
func LoadMedia(conn sender, transportId string, info MediaInfo, autoplay bool) error {
	if transportId == "" {
		return ErrAppNotRunning
	}

	if info.StreamType == "" {
		info.StreamType = StreamTypeBuffered
	}

	payload := &LoadPayload{
		Type:     "LOAD",
		Media:    info,
		Autoplay: autoplay,
	}

	requestID := nextRequestID()
	payload.SetRequestId(requestID)

	if err := conn.Send(requestID, payload, defaultSenderID, transportId, MediaNamespace); err != nil {
		return fmt.Errorf("send load: %w", err)
	}

	return nil
}

// LaunchReceiver asks the device to launch appID.
func LaunchReceiver(conn sender, appID string) error {
	payload := &cast.LaunchRequest{
		PayloadHeader: cast.LaunchHeader,
		AppId:         appID,
	}

	requestID := nextRequestID()
	payload.SetRequestId(requestID)

	if err := conn.Send(requestID, payload, defaultSenderID, defaultReceiverID, ReceiverNamespace); err != nil {
		return fmt.Errorf("send launch: %w", err)
	}

	return nil
}

// StopReceiver asks the device to stop the application session sessionID.
func StopReceiver(conn sender, sessionID string) error {
	if sessionID == "" {
		return ErrAppNotRunning
	}

	payload := &StopAppPayload{
		Type:      "STOP",
		SessionId: sessionID,
	}

	requestID := nextRequestID()
	payload.SetRequestId(requestID)

	if err := conn.Send(requestID, payload, defaultSenderID, defaultReceiverID, ReceiverNamespace); err != nil {
		return fmt.Errorf("send stop: %w", err)
	}

	return nil
}
