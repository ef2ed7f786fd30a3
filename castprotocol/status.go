package castprotocol

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Status codes reported by the vendor binding. The values follow the
// Google Play services and Cast SDK status codes so logs stay comparable
// with the receiver side.
const (
	StatusSuccess               = 0
	StatusNetworkError          = 7
	StatusInternalError         = 8
	StatusInterrupted           = 14
	StatusTimeout               = 15
	StatusInvalidRequest        = 2001
	StatusApplicationNotRunning = 2005
	StatusFailed                = 2100
)

// Status is the single-shot result of a vendor call.
type Status struct {
	Code int
	Err  error
}

// IsSuccess reports whether the call succeeded.
func (s Status) IsSuccess() bool {
	return s.Code == StatusSuccess
}

func (s Status) String() string {
	if s.Err != nil {
		return fmt.Sprintf("status %d: %s", s.Code, s.Err)
	}
	return fmt.Sprintf("status %d", s.Code)
}

// Success is the zero-code status.
var Success = Status{Code: StatusSuccess}

// StatusFromError maps an error returned by go-chromecast to a Status.
func StatusFromError(err error) Status {
	switch {
	case err == nil:
		return Success
	case isTimeoutError(err):
		return Status{Code: StatusTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return Status{Code: StatusInterrupted, Err: err}
	case isNetError(err):
		return Status{Code: StatusNetworkError, Err: err}
	default:
		return Status{Code: StatusInternalError, Err: err}
	}
}

// isTimeoutError checks if an error is a timeout/deadline exceeded error.
// This typically happens when the TV needs to wake from sleep.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

func isNetError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
