//go:build !linux

package tcp

import "net"

func setNoDelay(tc *net.TCPConn, noDelay bool) error {
	return tc.SetNoDelay(noDelay)
}
