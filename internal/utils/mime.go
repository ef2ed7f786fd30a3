package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/h2non/filetype"
	"github.com/hashicorp/go-retryablehttp"
)

// ErrUnknownMIME is returned when neither the stream head nor the server
// tell what the media is.
var ErrUnknownMIME = errors.New("unable to detect media type")

// filetype needs at most 261 bytes to match.
const sniffLen = 261

func newSniffClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 100 * time.Millisecond
	c.RetryWaitMax = time.Second
	c.Logger = nil
	c.HTTPClient.Timeout = 10 * time.Second
	return c
}

// DetectMIME fetches the head of the media at u and returns its mime type.
// The Content-Type header is used when the bytes are not recognized.
func DetectMIME(ctx context.Context, u string) (string, error) {
	if _, err := url.ParseRequestURI(u); err != nil {
		return "", fmt.Errorf("DetectMIME: failed to parse url: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("DetectMIME: failed to build request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", sniffLen-1))

	resp, err := newSniffClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("DetectMIME: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return "", fmt.Errorf("DetectMIME: unexpected status %s", resp.Status)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(resp.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("DetectMIME: failed to read stream head: %w", err)
	}

	kind, err := filetype.Match(head[:n])
	if err == nil && kind != filetype.Unknown {
		return kind.MIME.Value, nil
	}

	ct, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || ct == "" || ct == "application/octet-stream" {
		return "", ErrUnknownMIME
	}

	return ct, nil
}
