package devices

import (
	"errors"
	"io"
	"log"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
)

// DefaultQueryTimeout is the mDNS query timeout per interface.
const DefaultQueryTimeout = 750 * time.Millisecond

var ErrNoDeviceAvailable = errors.New("LoadChromecastRoutes: no cast devices available")

// mdnsQuery is swapped in tests.
var mdnsQuery = mdns.Query

// isAlive is swapped in tests.
var isAlive = HostPortIsAlive

// LoadChromecastRoutes runs one mDNS query per active network interface and
// returns the reachable cast devices sorted by friendly name.
// Querying every interface handles systems with multiple adapters (VPN,
// Hyper-V, Docker, etc.) where the OS default interface may not be the one
// connected to the Chromecast network.
func LoadChromecastRoutes(timeout time.Duration) ([]*MDNSRoute, error) {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}

	entriesCh := make(chan *mdns.ServiceEntry, 256)
	found := make(map[string]*MDNSRoute)
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		for entry := range entriesCh {
			route, err := RouteFromEntry(entry)
			if err != nil {
				continue
			}
			d, err := route.CastDevice()
			if err != nil {
				continue
			}
			found[d.Addr()] = route
		}
	}()

	queryIface := func(iface *net.Interface) {
		params := mdns.DefaultParams(googlecastService)
		params.Entries = entriesCh
		params.Timeout = timeout
		params.DisableIPv6 = true
		params.WantUnicastResponse = true
		params.Logger = log.New(io.Discard, "", 0)
		params.Interface = iface
		_ = mdnsQuery(params)
	}

	interfaces := ActiveNetworkInterfaces()
	if len(interfaces) > 0 {
		var wg sync.WaitGroup
		for _, iface := range interfaces {
			wg.Add(1)
			go func(iface net.Interface) {
				defer wg.Done()
				queryIface(&iface)
			}(iface)
		}
		wg.Wait()
	} else {
		queryIface(nil)
	}

	close(entriesCh)
	<-doneCh

	routes := make([]*MDNSRoute, 0, len(found))
	for addr, route := range found {
		if !isAlive(addr) {
			continue
		}
		routes = append(routes, route)
	}

	if len(routes) == 0 {
		return nil, ErrNoDeviceAvailable
	}

	sort.Slice(routes, func(i, j int) bool {
		a, _ := routes[i].CastDevice()
		b, _ := routes[j].CastDevice()
		return strings.ToLower(a.FriendlyName) < strings.ToLower(b.FriendlyName)
	})

	return routes, nil
}

// ActiveNetworkInterfaces returns all network interfaces that are up,
// multicast-capable, not loopback, and have an IPv4 address.
func ActiveNetworkInterfaces() []net.Interface {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var active []net.Interface
	for _, iface := range interfaces {
		// Skip down, loopback, or non-multicast interfaces.
		if iface.Flags&net.FlagUp == 0 ||
			iface.Flags&net.FlagLoopback != 0 ||
			iface.Flags&net.FlagMulticast == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		if hasIPv4(addrs) {
			active = append(active, iface)
		}
	}

	return active
}

func hasIPv4(addrs []net.Addr) bool {
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok {
			if ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
				return true
			}
		}
	}
	return false
}

// HostPortIsAlive checks if a device at the given address is reachable via TCP connection.
// Returns true if the connection succeeds within 2 seconds.
func HostPortIsAlive(address string) bool {
	conn, err := net.DialTimeout("tcp", address, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
