package proxy

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// Endpoint is an IPv4 address and TCP port.
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

// ParseEndpoint validates host as an IPv4 literal and port as a TCP port.
func ParseEndpoint(host string, port int) (Endpoint, error) {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse endpoint host %q: %w", host, err)
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return Endpoint{}, fmt.Errorf("endpoint host %q is not an IPv4 address", host)
	}
	if port < 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("endpoint port %d out of range", port)
	}
	return Endpoint{Addr: addr, Port: uint16(port)}, nil
}

// Any returns the wildcard endpoint 0.0.0.0:port.
func Any(port uint16) Endpoint {
	return Endpoint{Addr: netip.IPv4Unspecified(), Port: port}
}

// Loopback returns 127.0.0.1:port.
func Loopback(port uint16) Endpoint {
	return Endpoint{Addr: netip.AddrFrom4([4]byte{127, 0, 0, 1}), Port: port}
}

func (e Endpoint) IsValid() bool {
	return e.Addr.Is4()
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Addr.String(), strconv.Itoa(int(e.Port)))
}
