package proxy

import (
	"fmt"
	"net"
)

// DefaultBacklog is the pending-connection queue length of the listening socket.
const DefaultBacklog = 99

// BindError reports that the local endpoint could not be bound. It is the
// only fatal startup error of the forwarder.
type BindError struct {
	Endpoint Endpoint
	Err      error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Endpoint, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Listen binds a TCP/IPv4 socket to ep and starts listening on it.
// A backlog below 1 falls back to DefaultBacklog.
func Listen(ep Endpoint, backlog int) (net.Listener, error) {
	if !ep.IsValid() {
		return nil, &BindError{Endpoint: ep, Err: fmt.Errorf("not an IPv4 endpoint")}
	}
	if backlog < 1 {
		backlog = DefaultBacklog
	}
	ln, err := listenTCP4(ep, backlog)
	if err != nil {
		return nil, &BindError{Endpoint: ep, Err: err}
	}
	return ln, nil
}
