//go:build linux

package tcp

import (
	"net"

	"golang.org/x/sys/unix"
)

// setNoDelay flips TCP_NODELAY on the raw descriptor.
func setNoDelay(tc *net.TCPConn, noDelay bool) error {
	raw, err := tc.SyscallConn()
	if err != nil {
		return tc.SetNoDelay(noDelay)
	}

	v := 0
	if noDelay {
		v = 1
	}

	var serr error
	if err := raw.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, v)
	}); err != nil {
		return err
	}
	return serr
}
