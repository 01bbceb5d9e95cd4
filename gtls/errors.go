package gtls

import (
	"fmt"
	"strings"

	"github.com/FanDjango/gnutls-stream/engine"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidArgument is returned before any native primitive runs when a
	// caller passes an empty or out-of-range buffer.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotSupported is returned by seek-style operations; a TLS session is
	// a non-seekable duplex byte stream.
	ErrNotSupported = errors.New("operation not supported on a tls stream")

	// ErrSessionNotReady is returned for I/O on a session that never
	// completed its handshake or was already closed.
	ErrSessionNotReady = errors.New("tls session is not ready")
)

// ProtocolError is a negative result from a native primitive that is not in
// the retryable allow-list (or that outlived its retry budget). It carries
// the failing operation, the numeric code with its textual meaning, and the
// most recent buffered diagnostic log lines.
type ProtocolError struct {
	Op     string
	Code   engine.Code
	Recent []string
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("%s: %s (%d)", e.Op, e.Code, int(e.Code))
	if len(e.Recent) > 0 {
		msg += "\nrecent log:\n\t" + strings.Join(e.Recent, "\n\t")
	}
	return msg
}

// CertificateRejected means the caller-supplied validator declined the peer's
// certificate chain; the handshake is failed.
type CertificateRejected struct {
	Reason error
}

func (e *CertificateRejected) Error() string {
	return fmt.Sprintf("peer certificate rejected: %v", e.Reason)
}

func (e *CertificateRejected) Unwrap() error { return e.Reason }

// Cause supports github.com/pkg/errors chains.
func (e *CertificateRejected) Cause() error { return e.Reason }
