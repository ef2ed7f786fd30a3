package devices

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-viper/mapstructure/v2"
)

const (
	eurekaPort  = 8008
	eurekaPath  = "/setup/eureka_info?params=name,build_info,device_info"
	eurekaRetry = 2
)

type eurekaInfo struct {
	Name              string           `mapstructure:"name"`
	BuildVersion      string           `mapstructure:"build_version"`
	CastBuildRevision string           `mapstructure:"cast_build_revision"`
	SsdpUdn           string           `mapstructure:"ssdp_udn"`
	DeviceInfo        eurekaDeviceInfo `mapstructure:"device_info"`
}

type eurekaDeviceInfo struct {
	ModelName    string `mapstructure:"model_name"`
	Manufacturer string `mapstructure:"manufacturer"`
	SsdpUdn      string `mapstructure:"ssdp_udn"`
}

// fetchEurekaInfo reads the device setup endpoint.
func fetchEurekaInfo(ctx context.Context, client *http.Client, infoURL string) (*eurekaInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, infoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetchEurekaInfo request error: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetchEurekaInfo do error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetchEurekaInfo: unexpected status %d", resp.StatusCode)
	}

	// Fields vary between firmware releases, so decode loosely first.
	raw := make(map[string]any)
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("fetchEurekaInfo decode error: %w", err)
	}

	info := &eurekaInfo{}
	if err := mapstructure.Decode(raw, info); err != nil {
		return nil, fmt.Errorf("fetchEurekaInfo mapstructure error: %w", err)
	}

	return info, nil
}

// AddressRoute is a Route for a device known only by its cast address.
// The device record is read once from the device setup endpoint.
type AddressRoute struct {
	host    string
	port    int
	infoURL string
	client  *http.Client

	once   sync.Once
	device *CastDevice
	err    error
}

// NewAddressRoute builds a route for a "host" or "host:port" cast address.
func NewAddressRoute(addr string) (*AddressRoute, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		portStr = strconv.Itoa(defaultCastPort)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || host == "" {
		return nil, fmt.Errorf("%w: bad address %q", ErrMalformedRoute, addr)
	}

	return &AddressRoute{
		host:    host,
		port:    port,
		infoURL: "http://" + net.JoinHostPort(host, strconv.Itoa(eurekaPort)) + eurekaPath,
		client:  newRetryableHTTPClient(eurekaRetry),
	}, nil
}

// ID returns the cast address until the device reports its own id.
func (r *AddressRoute) ID() string {
	if d, err := r.CastDevice(); err == nil && d.ID != "" {
		return d.ID
	}
	return net.JoinHostPort(r.host, strconv.Itoa(r.port))
}

// CastDevice fetches the device record on first use.
func (r *AddressRoute) CastDevice() (*CastDevice, error) {
	r.once.Do(func() {
		r.device, r.err = r.load(context.Background())
	})
	if r.err != nil {
		return nil, r.err
	}
	d := *r.device
	return &d, nil
}

func (r *AddressRoute) load(ctx context.Context) (*CastDevice, error) {
	ip := net.ParseIP(r.host)
	if ip == nil {
		addrs, err := net.DefaultResolver.LookupIP(ctx, "ip4", r.host)
		if err != nil || len(addrs) == 0 {
			return nil, fmt.Errorf("%w: cannot resolve %q", ErrMalformedRoute, r.host)
		}
		ip = addrs[0]
	}

	info, err := fetchEurekaInfo(ctx, r.client, r.infoURL)
	if err != nil {
		return nil, err
	}

	id := info.SsdpUdn
	if id == "" {
		id = info.DeviceInfo.SsdpUdn
	}

	version := info.CastBuildRevision
	if version == "" {
		version = info.BuildVersion
	}

	return &CastDevice{
		ID:            id,
		DeviceVersion: version,
		FriendlyName:  info.Name,
		IPAddress:     ip,
		Port:          r.port,
		ModelName:     info.DeviceInfo.ModelName,
	}, nil
}
