//go:build linux

package proxy

import (
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// listenTCP4 builds the socket by hand so the backlog is the one asked for
// instead of net.core.somaxconn.
func listenTCP4(ep Endpoint, backlog int) (net.Listener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("setsockopt", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: int(ep.Port), Addr: ep.Addr.As4()}); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("listen", err)
	}

	// FileListener dups the descriptor; ours is released on return.
	f := os.NewFile(uintptr(fd), "tcp4:"+ep.String())
	defer f.Close()
	return net.FileListener(f)
}
