package devices

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/hashicorp/mdns"
)

const (
	// CapabilityVideoOut is the bitmask for video output capability (bit 0)
	CapabilityVideoOut = 1

	googlecastService = "_googlecast._tcp"
	defaultCastPort   = 8009
)

var (
	ErrMalformedRoute = errors.New("route: malformed cast device record")
	ErrNotChromecast  = errors.New("route: not a _googlecast service")
)

// Route identifies a specific cast-capable device on the network.
type Route interface {
	ID() string
	CastDevice() (*CastDevice, error)
}

// CastDevice is the structured device record behind a Route.
type CastDevice struct {
	ID            string
	DeviceVersion string
	FriendlyName  string
	IPAddress     net.IP
	Port          int
	ModelName     string
	IsAudioOnly   bool
}

// Addr returns the host:port of the cast channel.
func (d *CastDevice) Addr() string {
	port := d.Port
	if port == 0 {
		port = defaultCastPort
	}
	return net.JoinHostPort(d.IPAddress.String(), strconv.Itoa(port))
}

// MDNSRoute is a Route captured from a _googlecast._tcp mDNS answer.
type MDNSRoute struct {
	name string
	addr net.IP
	port int
	txt  map[string]string
}

// RouteFromEntry captures a route from an mDNS service entry.
func RouteFromEntry(entry *mdns.ServiceEntry) (*MDNSRoute, error) {
	if entry == nil {
		return nil, ErrMalformedRoute
	}
	if !strings.Contains(entry.Name, "_googlecast") {
		return nil, ErrNotChromecast
	}

	return &MDNSRoute{
		name: entry.Name,
		addr: entry.AddrV4,
		port: entry.Port,
		txt:  parseTXT(entry.InfoFields),
	}, nil
}

func parseTXT(fields []string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

// ID returns the device id from the TXT record, or the service instance name.
func (r *MDNSRoute) ID() string {
	if id := r.txt["id"]; id != "" {
		return id
	}
	return r.name
}

// CastDevice extracts the device record from the TXT fields.
func (r *MDNSRoute) CastDevice() (*CastDevice, error) {
	if r.addr == nil {
		return nil, fmt.Errorf("%w: no IPv4 address for %q", ErrMalformedRoute, r.name)
	}

	friendlyName := r.txt["fn"]
	if friendlyName == "" {
		friendlyName = r.name
		if idx := strings.Index(friendlyName, "._googlecast"); idx > 0 {
			friendlyName = friendlyName[:idx]
		}
	}

	return &CastDevice{
		ID:            r.ID(),
		DeviceVersion: r.txt["ve"],
		FriendlyName:  friendlyName,
		IPAddress:     r.addr,
		Port:          r.port,
		ModelName:     r.txt["md"],
		IsAudioOnly:   isChromecastAudioOnly(r.txt["ca"]),
	}, nil
}

// isChromecastAudioOnly checks if a device is audio-only based on the "ca" capability field.
// The "ca" field in mDNS TXT records is a bitmask where bit 0 (value 1) indicates Video Out support.
// If bit 0 is NOT set, the device is considered audio-only (e.g. Chromecast Audio, Google Home speakers).
// Returns true if audio-only, false if it supports video or if parsing fails.
func isChromecastAudioOnly(caField string) bool {
	ca, err := strconv.Atoi(caField)
	if err != nil {
		return false
	}
	return (ca & CapabilityVideoOut) == 0
}
