package castprotocol

import (
	"errors"
	"net"

	"go2tv.app/go2cast/devices"
)

// ErrNoCastNetwork reports that no interface can reach cast devices.
var ErrNoCastNetwork = errors.New("no up, multicast-capable IPv4 interface")

// Platform reports whether casting is possible on this host at all.
type Platform interface {
	CastSupport() error
}

// NetworkPlatform requires at least one interface able to carry mDNS and the cast channel.
type NetworkPlatform struct {
	// Interfaces defaults to devices.ActiveNetworkInterfaces.
	Interfaces func() []net.Interface
}

// CastSupport implements Platform.
func (p NetworkPlatform) CastSupport() error {
	list := p.Interfaces
	if list == nil {
		list = devices.ActiveNetworkInterfaces
	}

	if len(list()) == 0 {
		return ErrNoCastNetwork
	}
	return nil
}
