// Package transport abstracts the plaintext socket a TLS session runs over.
//
// The TLS layer borrows a connected [Conn]; it never closes it. Closing the
// socket stays the responsibility of whoever dialed it.
package transport

import (
	"errors"
	"time"
)

var (
	ErrConnClosed       = errors.New("connection is closed")
	ErrDeadLineExceeded = errors.New("deadline exceeded")
)

// Conn is a connected full-duplex byte stream.
type Conn interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error

	LocalAddr() Addr
	RemoteAddr() Addr

	SetReadDeadLine(t time.Time)
	SetWriteDeadLine(t time.Time)

	// SetNoDelay toggles Nagle's algorithm on the underlying socket.
	// The TLS handshake disables it and restores it afterwards.
	SetNoDelay(noDelay bool) error
}

type Addr interface {
	Identifier() any
	String() string
}
