package devices

import (
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	setupHTTPClientTimeout         = 10 * time.Second
	setupHTTPDialTimeout           = 3 * time.Second
	setupHTTPKeepAlive             = 30 * time.Second
	setupHTTPResponseHeaderTimeout = 5 * time.Second
	setupHTTPIdleConnTimeout       = 90 * time.Second
)

var setupHTTPTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   setupHTTPDialTimeout,
		KeepAlive: setupHTTPKeepAlive,
	}).DialContext,
	ResponseHeaderTimeout: setupHTTPResponseHeaderTimeout,
	IdleConnTimeout:       setupHTTPIdleConnTimeout,
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   setupHTTPClientTimeout,
		Transport: setupHTTPTransport,
	}
}

func newRetryableHTTPClient(retryMax int) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = retryMax
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = time.Second
	retryClient.Logger = nil
	retryClient.HTTPClient = newHTTPClient()

	return retryClient.StandardClient()
}
