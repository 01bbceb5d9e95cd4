// Package gtls is a TLS 1.2/1.3 stream layer over an existing plaintext
// socket, backed by a native TLS engine.
//
// A [Runtime] holds the process-wide engine state: one-time global
// initialization, the shared certificate credentials and the cached
// resumption datum. Sessions are created from it against connected sockets;
// a later session can resume an earlier one's TLS session, which is how an
// FTP data connection reuses the control connection's session.
//
// The first session created from a runtime is the root session: global
// initialization happens on its construction, and global teardown happens
// once it and every session derived from it have been closed.
package gtls

import (
	"io"
	"sync"

	"github.com/FanDjango/gnutls-stream/engine"
	"github.com/FanDjango/gnutls-stream/logq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// RuntimeOptions configure logging and engine validation.
type RuntimeOptions struct {
	// MinVersion pins the native engine version ("3.7.7"); empty disables
	// the check.
	MinVersion string

	// LogSink receives diagnostic output. nil discards it; the recent-line
	// buffer attached to protocol errors works either way.
	LogSink io.Writer

	// Verbosity is a zerolog level name ("debug", "info", ...); empty means
	// "info".
	Verbosity string

	// LogQueueSize bounds the recent-line buffer dumped into protocol
	// errors. Zero means [logq.DefaultCapacity].
	LogQueueSize int
}

// Runtime is the process-wide TLS state, explicit rather than a package
// singleton so its lifecycle is testable and enforceable.
type Runtime struct {
	eng    engine.Engine
	logger zerolog.Logger
	recent *logq.Buffer

	minVersion string

	mu          sync.Mutex
	initialized bool
	credentials engine.CredentialsID
	resumeDatum []byte

	// Live-session accounting. Teardown runs when the root session has been
	// closed and no derived session remains, enforcing "deinit strictly
	// last" instead of documenting it.
	live       int
	rootClosed bool
}

// NewRuntime builds a runtime over eng. eng may be nil, in which case the
// engine is acquired via [engine.Load] on first session construction.
func NewRuntime(eng engine.Engine, opts RuntimeOptions) *Runtime {
	sink := opts.LogSink
	if sink == nil {
		sink = io.Discard
	}

	level := zerolog.InfoLevel
	if opts.Verbosity != "" {
		if parsed, err := zerolog.ParseLevel(opts.Verbosity); err == nil {
			level = parsed
		}
	}

	recent := logq.New(opts.LogQueueSize)
	logger := zerolog.New(zerolog.MultiLevelWriter(sink, recent)).
		Level(level).
		With().Timestamp().Logger()

	return &Runtime{
		eng:        eng,
		logger:     logger,
		recent:     recent,
		minVersion: opts.MinVersion,
	}
}

// EngineVersion validates the platform, loads the engine if necessary and
// returns its version string. Usable before any session is constructed.
func (r *Runtime) EngineVersion() (string, error) {
	if err := engine.ValidateEnvironment(); err != nil {
		return "", errors.Wrap(err, "validating environment")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadEngineLocked(); err != nil {
		return "", err
	}

	version := r.eng.Version()
	if err := engine.CheckVersion(version, r.minVersion); err != nil {
		return "", errors.Wrap(err, "checking engine version")
	}
	return version, nil
}

func (r *Runtime) loadEngineLocked() error {
	if r.eng != nil {
		return nil
	}

	eng, err := engine.Load()
	if err != nil {
		return errors.Wrap(err, "loading native engine")
	}
	r.eng = eng
	return nil
}

// ensureInitialized performs one-time global engine initialization and
// registers a live session. It reports whether the caller became the root
// session.
func (r *Runtime) ensureInitialized() (root bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		r.live++
		return false, nil
	}

	if err := engine.ValidateEnvironment(); err != nil {
		return false, errors.Wrap(err, "validating environment")
	}
	if err := r.loadEngineLocked(); err != nil {
		return false, err
	}
	if err := engine.CheckVersion(r.eng.Version(), r.minVersion); err != nil {
		return false, errors.Wrap(err, "checking engine version")
	}

	if rc := r.eng.GlobalInit(); rc.Err() {
		return false, r.protocolErr("global init", rc)
	}

	cred, rc := r.eng.AllocCredentials()
	if rc.Err() {
		r.eng.GlobalDeinit()
		return false, r.protocolErr("credentials allocation", rc)
	}

	// A missing trust store is survivable: handshakes proceed with zero
	// trusted CAs and certificate validation fails later instead.
	if n, rc := r.eng.SetSystemTrust(cred); rc.Err() {
		r.logger.Warn().
			Str("code", rc.String()).
			Msg("system trust store unavailable, continuing without trusted CAs")
	} else {
		r.logger.Debug().Int("cas", n).Msg("system trust store loaded")
	}

	r.credentials = cred
	r.initialized = true
	r.rootClosed = false
	r.live = 1
	r.logger.Debug().Str("engine", r.eng.Version()).Msg("tls engine initialized")
	return true, nil
}

// release drops one live session. Teardown runs only once the root is closed
// and it was the last session standing.
func (r *Runtime) release(root bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return
	}

	r.live--
	if root {
		r.rootClosed = true
	}

	if !r.rootClosed || r.live > 0 {
		return
	}

	r.eng.FreeCredentials(r.credentials)
	r.eng.GlobalDeinit()
	r.credentials = 0
	r.resumeDatum = nil
	r.initialized = false
	r.logger.Debug().Msg("tls engine deinitialized")
}

func (r *Runtime) sharedCredentials() engine.CredentialsID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.credentials
}

// attachClientKeyPair installs a client certificate on the shared
// credentials.
func (r *Runtime) attachClientKeyPair(certPEM, keyPEM []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rc := r.eng.SetClientKeyPair(r.credentials, certPEM, keyPEM); rc.Err() {
		return r.protocolErr("client key pair", rc)
	}
	return nil
}

// cacheResumeDatum stores freshly delivered session data, replacing whatever
// was cached before. Called from the handshake hook, possibly after the
// handshake call itself has returned (TLS 1.3 post-handshake tickets).
func (r *Runtime) cacheResumeDatum(datum []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resumeDatum = datum
}

// takeResumeDatum hands the cached datum to the caller, who becomes its sole
// owner.
func (r *Runtime) takeResumeDatum() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	datum := r.resumeDatum
	r.resumeDatum = nil
	return datum
}

func (r *Runtime) protocolErr(op string, code engine.Code) error {
	return errors.WithStack(&ProtocolError{Op: op, Code: code, Recent: r.recent.Lines()})
}
