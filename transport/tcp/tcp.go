// Package tcp adapts a stdlib TCP connection to [transport.Conn].
package tcp

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/FanDjango/gnutls-stream/transport"
	"github.com/pkg/errors"
)

type Addr struct {
	addr net.Addr
}

func (a Addr) Identifier() any { return a.addr }
func (a Addr) String() string {
	if a.addr == nil {
		return ""
	}
	return a.addr.String()
}

var _ transport.Addr = Addr{}

type Conn struct {
	tc *net.TCPConn
}

var _ transport.Conn = (*Conn)(nil)

// Wrap adapts an already-connected TCP connection.
func Wrap(tc *net.TCPConn) *Conn {
	return &Conn{tc: tc}
}

// Dial connects to addr ("host:port").
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}
	return &Conn{tc: conn.(*net.TCPConn)}, nil
}

func (c *Conn) Read(p []byte) (n int, err error) {
	n, err = c.tc.Read(p)
	return n, mapErr(err)
}

func (c *Conn) Write(p []byte) (n int, err error) {
	n, err = c.tc.Write(p)
	return n, mapErr(err)
}

func (c *Conn) Close() error { return c.tc.Close() }

func (c *Conn) LocalAddr() transport.Addr  { return Addr{addr: c.tc.LocalAddr()} }
func (c *Conn) RemoteAddr() transport.Addr { return Addr{addr: c.tc.RemoteAddr()} }

func (c *Conn) SetReadDeadLine(t time.Time)  { _ = c.tc.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadLine(t time.Time) { _ = c.tc.SetWriteDeadline(t) }

func (c *Conn) SetNoDelay(noDelay bool) error {
	return setNoDelay(c.tc, noDelay)
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, net.ErrClosed):
		return transport.ErrConnClosed
	case os.IsTimeout(err):
		return transport.ErrDeadLineExceeded
	}
	return err
}
