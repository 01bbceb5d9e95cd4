// Package engine defines the boundary to the native TLS engine.
//
// The engine owns the TLS protocol itself: handshaking, record protection,
// alerts and session data all happen behind [Engine]. This package only
// models the capability surface — opaque handles, primitive operations and
// the engine's error-code space — in the shape of the GnuTLS C API.
//
// Handles issued by an engine are owned resources: every InitSession must be
// paired with exactly one DeinitSession, every AllocCredentials with one
// FreeCredentials. A released handle must never be passed back in.
package engine

import (
	"time"

	"github.com/FanDjango/gnutls-stream/transport"
)

// SessionID identifies one native session object. The zero value is invalid.
type SessionID uint64

// CredentialsID identifies one native certificate-credentials object.
// The zero value is invalid.
type CredentialsID uint64

// InitFlags select the role and behavior of a new session.
type InitFlags uint

const (
	FlagClient InitFlags = 1 << iota
	FlagServer
	// FlagNoSignal suppresses SIGPIPE on broken transports.
	FlagNoSignal
	// FlagAutoReauth lets the engine transparently answer reauthentication
	// requests during record I/O.
	FlagAutoReauth
	FlagPostHandshakeAuth
)

// CloseHow selects which direction Bye shuts down.
type CloseHow uint

const (
	// CloseReadWrite requests a bidirectional shutdown (full close-notify
	// exchange).
	CloseReadWrite CloseHow = iota
	// CloseWrite only half-closes the write side.
	CloseWrite
)

// SessionFlags mirror negotiated per-session properties reported by the
// engine after (or during) the handshake.
type SessionFlags uint

const (
	SFlagSafeRenegotiation SessionFlags = 1 << iota
	SFlagExtendedMasterSecret
	SFlagEncryptThenMAC
	// SFlagSessionTicket is set when a session ticket is active, meaning
	// session data extracted now is usable for resumption.
	SFlagSessionTicket
	SFlagFalseStart
	SFlagEarlyData
)

// Version is the negotiated protocol version, in TLS wire encoding.
type Version uint16

const (
	VersionUnknown Version = 0
	VersionSSL30   Version = 0x0300
	VersionTLS10   Version = 0x0301
	VersionTLS11   Version = 0x0302
	VersionTLS12   Version = 0x0303
	VersionTLS13   Version = 0x0304
)

func (v Version) String() string {
	switch v {
	case VersionSSL30:
		return "SSL3.0"
	case VersionTLS10:
		return "TLS1.0"
	case VersionTLS11:
		return "TLS1.1"
	case VersionTLS12:
		return "TLS1.2"
	case VersionTLS13:
		return "TLS1.3"
	}
	return "unknown"
}

// Hook is invoked by the engine at each handshake message boundary, on the
// goroutine that called Handshake (or, for TLS 1.3 post-handshake messages,
// the goroutine inside a later RecordRecv). incoming tells the direction,
// post whether the message has already been processed. A hook must return
// CodeSuccess; it observes the handshake, it does not steer it.
type Hook func(msg HandshakeDescription, incoming, post bool) Code

// Engine is the native TLS engine capability.
//
// All methods are blocking and must be called from one goroutine per handle;
// the engine provides no internal synchronization for a session.
type Engine interface {
	// Version reports the loaded engine's version string, e.g. "3.8.4".
	Version() string

	GlobalInit() Code
	GlobalDeinit()

	AllocCredentials() (CredentialsID, Code)
	FreeCredentials(cred CredentialsID)
	// SetSystemTrust populates cred with the system trust store and reports
	// how many CAs were loaded.
	SetSystemTrust(cred CredentialsID) (int, Code)
	SetClientKeyPair(cred CredentialsID, certPEM, keyPEM []byte) Code

	InitSession(flags InitFlags) (SessionID, Code)
	DeinitSession(id SessionID)
	SetPriority(id SessionID, priority string) Code
	BindCredentials(id SessionID, cred CredentialsID) Code
	SetServerName(id SessionID, name string) Code
	SetALPN(id SessionID, protocol string) Code
	SetTransport(id SessionID, conn transport.Conn)
	SetHandshakeTimeout(id SessionID, timeout time.Duration)
	SetHook(id SessionID, hook Hook)

	// Handshake runs the full negotiation. It blocks until completion,
	// a fatal error or the handshake timeout, invoking the registered hook
	// at every message boundary. No transient codes escape it.
	Handshake(id SessionID) Code

	// Bye sends a close-notify alert.
	Bye(id SessionID, how CloseHow) Code

	// RecordSend submits up to len(p) bytes as one record. It returns the
	// byte count accepted, or a negative Code.
	RecordSend(id SessionID, p []byte) int
	// RecordRecv fills p from decrypted records. It returns the byte count
	// transferred, or a negative Code.
	RecordRecv(id SessionID, p []byte) int
	// RecordCheckPending reports buffered plaintext bytes available without
	// touching the transport.
	RecordCheckPending(id SessionID) uint
	// MaxRecordSize is the negotiated maximum record payload size.
	MaxRecordSize(id SessionID) uint

	// SessionData exports the session's resumption state. The caller owns
	// the returned blob.
	SessionData(id SessionID) ([]byte, Code)
	// SetSessionData imports resumption state. Must precede Handshake.
	SetSessionData(id SessionID, data []byte) Code
	IsResumed(id SessionID) bool
	SessionFlags(id SessionID) SessionFlags

	ProtocolVersion(id SessionID) Version
	// Description is a human-readable session summary,
	// e.g. "(TLS1.3)-(ECDHE-SECP256R1)-(AES-256-GCM)".
	Description(id SessionID) string
	CipherSuite(id SessionID) string
	ALPNProtocol(id SessionID) (string, Code)
	// PeerCertificates returns the peer's raw (DER) certificate chain,
	// leaf first.
	PeerCertificates(id SessionID) [][]byte
	// LastAlert reports the most recently received alert.
	LastAlert(id SessionID) Alert
}
