package gtls

import (
	"time"

	"github.com/FanDjango/gnutls-stream/engine"
	"github.com/FanDjango/gnutls-stream/transport"
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DefaultPriority is the cipher/protocol selection expression used when a
// config leaves Priority empty.
const DefaultPriority = "NORMAL:+VERS-TLS1.2:+VERS-TLS1.3:-ARCFOUR-128"

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPollTimeout      = 15 * time.Second
)

// Config are the per-session construction inputs.
type Config struct {
	// Hostname names the peer for certificate name checking and SNI.
	Hostname string

	// ALPN is the application protocol identifier to offer; empty offers
	// none.
	ALPN string

	// Priority is the engine's cipher/protocol selection expression. Empty
	// means DefaultPriority.
	Priority string

	HandshakeTimeout time.Duration
	// PollTimeout bounds total retry time of one record read/write call.
	PollTimeout time.Duration

	// Validate, when set, receives the peer's raw certificate chain (leaf
	// first) after the handshake. Returning an error fails the handshake.
	Validate func(chain [][]byte) error

	// Optional client certificate, installed on the shared credentials.
	ClientCertPEM []byte
	ClientKeyPEM  []byte

	// Resume names a prior session whose TLS session should be resumed.
	Resume *Session
}

func (cfg *Config) applyDefaults() {
	if cfg.Priority == "" {
		cfg.Priority = DefaultPriority
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
}

// Session is one TLS session bound to one socket. It is not safe for
// concurrent use; the socket is borrowed, never closed.
type Session struct {
	rt     *Runtime
	eng    engine.Engine
	clock  clock.Clock
	logger zerolog.Logger

	conn transport.Conn
	cfg  Config

	// handle is zeroed once released and never reused.
	handle engine.SessionID

	root    bool
	ready   bool
	resumed bool
	closed  bool

	protocolName string
	cipherSuite  string
	alpn         string
	version      engine.Version
	maxRecord    uint
}

// NewSession constructs a session against a connected socket and performs the
// TLS handshake. On error no session is returned and every acquired native
// resource has been released; the socket is left open either way.
func (r *Runtime) NewSession(conn transport.Conn, clk clock.Clock, cfg Config) (s *Session, err error) {
	if conn == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "conn must not be nil")
	}
	if cfg.Hostname == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "hostname must be set")
	}
	if clk == nil {
		clk = clock.New()
	}
	cfg.applyDefaults()

	root, err := r.ensureInitialized()
	if err != nil {
		return nil, err
	}

	sess := &Session{
		rt:     r,
		clock:  clk,
		logger: r.logger.With().Str("host", cfg.Hostname).Logger(),
		conn:   conn,
		cfg:    cfg,
		root:   root,
	}
	sess.eng = r.eng

	defer func() {
		if err != nil {
			_ = sess.Close()
		}
	}()

	if err := sess.configure(); err != nil {
		return nil, err
	}
	if err := sess.handshake(); err != nil {
		return nil, err
	}
	return sess, nil
}

// configure takes the session from Constructing to Configured.
func (s *Session) configure() error {
	id, rc := s.eng.InitSession(engine.FlagClient | engine.FlagNoSignal)
	if rc.Err() {
		return s.rt.protocolErr("session init", rc)
	}
	s.handle = id

	if rc := s.eng.SetPriority(id, s.cfg.Priority); rc.Err() {
		return s.rt.protocolErr("set priority", rc)
	}
	if rc := s.eng.SetServerName(id, s.cfg.Hostname); rc.Err() {
		return s.rt.protocolErr("set server name", rc)
	}
	if s.cfg.ALPN != "" {
		if rc := s.eng.SetALPN(id, s.cfg.ALPN); rc.Err() {
			return s.rt.protocolErr("set alpn", rc)
		}
	}

	if s.cfg.ClientCertPEM != nil {
		if err := s.rt.attachClientKeyPair(s.cfg.ClientCertPEM, s.cfg.ClientKeyPEM); err != nil {
			return errors.Wrap(err, "attaching client certificate")
		}
	}
	if rc := s.eng.BindCredentials(id, s.rt.sharedCredentials()); rc.Err() {
		return s.rt.protocolErr("bind credentials", rc)
	}

	s.eng.SetTransport(id, s.conn)
	s.eng.SetHandshakeTimeout(id, s.cfg.HandshakeTimeout)
	return nil
}

// handshake takes the session from Configured through Handshaking to Ready.
func (s *Session) handshake() error {
	s.eng.SetHook(s.handle, s.hook)

	if src := s.cfg.Resume; src != nil {
		datum := extractResumptionDatum(src)
		if len(datum) > 0 {
			if err := importResumptionDatum(s, datum); err != nil {
				return errors.Wrap(err, "importing resumption data")
			}
		} else {
			s.logger.Debug().Msg("prior session has no resumption data, full handshake")
		}
	}

	// The handshake wants minimal latency per record; restore Nagle before
	// handing the stream back, on every path.
	if err := s.conn.SetNoDelay(true); err != nil {
		s.logger.Warn().Err(err).Msg("disabling nagle failed")
	}
	rc := s.eng.Handshake(s.handle)
	if err := s.conn.SetNoDelay(false); err != nil {
		s.logger.Warn().Err(err).Msg("restoring nagle failed")
	}

	if rc.Err() {
		return s.rt.protocolErr("handshake", rc)
	}

	s.protocolName = s.eng.Description(s.handle)
	s.cipherSuite = s.eng.CipherSuite(s.handle)
	s.version = s.eng.ProtocolVersion(s.handle)
	s.maxRecord = s.eng.MaxRecordSize(s.handle)
	if alpn, rc := s.eng.ALPNProtocol(s.handle); !rc.Err() {
		s.alpn = alpn
	}
	// What the engine reports, not merely "we offered a ticket".
	s.resumed = s.eng.IsResumed(s.handle)

	s.logger.Info().
		Str("session", s.protocolName).
		Str("cipher", s.cipherSuite).
		Str("version", s.version.String()).
		Bool("resumed", s.resumed).
		Msg("handshake complete")

	if s.cfg.Validate != nil {
		if verr := s.cfg.Validate(s.eng.PeerCertificates(s.handle)); verr != nil {
			return errors.WithStack(&CertificateRejected{Reason: verr})
		}
	}

	s.ready = true
	return nil
}

// Close disposes the session: drains plaintext already pending in the
// engine, sends a best-effort close-notify, releases the native handle and,
// for the root session, triggers engine teardown once no derived session
// remains. It never fails; calling it again is a no-op. The borrowed socket
// stays open.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.handle != 0 {
		if s.ready {
			s.drainPending()
			if rc := s.eng.Bye(s.handle, engine.CloseReadWrite); rc.Err() {
				s.logger.Warn().Str("code", rc.String()).Msg("close notify failed")
			}
		}
		s.eng.DeinitSession(s.handle)
		s.handle = 0
	}
	s.ready = false

	s.rt.release(s.root)
	return nil
}

// drainPending reads out plaintext the engine already buffered, bounded by
// the amount pending at dispose time.
func (s *Session) drainPending() {
	pending := int(s.eng.RecordCheckPending(s.handle))
	if pending == 0 {
		return
	}

	buf := make([]byte, 1<<10)
	drained := 0
	for drained < pending {
		want := pending - drained
		if want > len(buf) {
			want = len(buf)
		}
		n := s.eng.RecordRecv(s.handle, buf[:want])
		if n <= 0 {
			break
		}
		drained += n
	}
	s.logger.Debug().Int("bytes", drained).Msg("drained pending plaintext before close")
}

// Ready reports whether the handshake completed and the session was not
// closed since; it gates Read and Write.
func (s *Session) Ready() bool { return s.ready }

// Resumed reports whether the engine actually resumed a prior session.
func (s *Session) Resumed() bool { return s.resumed }

// ProtocolName is the engine's session description, e.g.
// "(TLS1.3)-(ECDHE-SECP256R1)-(AES-256-GCM)".
func (s *Session) ProtocolName() string { return s.protocolName }

func (s *Session) CipherSuite() string { return s.cipherSuite }

// ALPNProtocol is the negotiated application protocol; empty if none.
func (s *Session) ALPNProtocol() string { return s.alpn }

func (s *Session) ProtocolVersion() engine.Version { return s.version }

// MaxRecordSize is the negotiated maximum record payload size.
func (s *Session) MaxRecordSize() uint { return s.maxRecord }

// Flush is a no-op; records are pushed as they are written.
func (s *Session) Flush() error { return nil }

// Seek signals that the stream is not seekable.
func (s *Session) Seek(offset int64, whence int) (int64, error) {
	return 0, errors.WithStack(ErrNotSupported)
}
