//go:build !linux

package proxy

import (
	"context"
	"net"
)

// listenTCP4 uses the platform default backlog; only linux honours backlog.
func listenTCP4(ep Endpoint, _ int) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(context.Background(), "tcp4", ep.String())
}
