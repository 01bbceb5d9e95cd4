package gtls

import (
	"bytes"
	"testing"

	"github.com/FanDjango/gnutls-stream/engine"
	"github.com/FanDjango/gnutls-stream/engine/enginetest"
	"github.com/FanDjango/gnutls-stream/transport/pipe"
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type SessionTestSuite struct {
	suite.Suite

	clock *clock.Mock
	eng   *enginetest.Engine
	rt    *Runtime
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}

func (s *SessionTestSuite) SetupTest() {
	s.clock = clock.NewMock()
	s.eng = enginetest.New()
	s.rt = NewRuntime(s.eng, RuntimeOptions{Verbosity: "debug"})
}

func (s *SessionTestSuite) newConn() *pipe.Pipe {
	conn, _ := pipe.New("client", "server", s.clock)
	return conn
}

func (s *SessionTestSuite) newSession(conn *pipe.Pipe, cfg Config) *Session {
	if cfg.Hostname == "" {
		cfg.Hostname = "ftp.example.com"
	}
	sess, err := s.rt.NewSession(conn, s.clock, cfg)
	s.Require().NoError(err)
	return sess
}

func (s *SessionTestSuite) state(sess *Session) *enginetest.Session {
	return s.eng.Session(sess.handle)
}

func (s *SessionTestSuite) TestConstructionArguments() {
	_, err := s.rt.NewSession(nil, s.clock, Config{Hostname: "h"})
	s.ErrorIs(err, ErrInvalidArgument)

	_, err = s.rt.NewSession(s.newConn(), s.clock, Config{})
	s.ErrorIs(err, ErrInvalidArgument)

	s.Zero(s.eng.GlobalInits)
}

func (s *SessionTestSuite) TestHandshakeAndMetadata() {
	conn := s.newConn()
	s.eng.Meta.ALPN = "ftp"

	sess := s.newSession(conn, Config{ALPN: "ftp"})
	defer sess.Close()

	s.True(sess.Ready())
	s.False(sess.Resumed())
	s.Equal("(TLS1.3)-(ECDHE-SECP256R1)-(AES-256-GCM)", sess.ProtocolName())
	s.Equal("TLS_AES_256_GCM_SHA384", sess.CipherSuite())
	s.Equal("ftp", sess.ALPNProtocol())
	s.Equal(engine.VersionTLS13, sess.ProtocolVersion())
	s.Equal(uint(1<<14), sess.MaxRecordSize())

	st := s.state(sess)
	s.Equal("ftp.example.com", st.ServerName)
	s.Equal(DefaultPriority, st.Priority)
	s.Equal(DefaultHandshakeTimeout, st.HandshakeTimeout)
}

func (s *SessionTestSuite) TestNagleToggledAroundHandshake() {
	conn := s.newConn()
	sess := s.newSession(conn, Config{})
	defer sess.Close()

	s.Equal([]bool{true, false}, conn.NoDelayLog())
}

func (s *SessionTestSuite) TestNagleRestoredOnHandshakeFailure() {
	s.eng.Defaults.HandshakeResult = engine.CodeUnsupportedVersion
	conn := s.newConn()

	_, err := s.rt.NewSession(conn, s.clock, Config{Hostname: "h"})
	s.Require().Error(err)

	protoErr := new(ProtocolError)
	s.Require().True(errors.As(err, &protoErr))
	s.Equal("handshake", protoErr.Op)
	s.Equal(engine.CodeUnsupportedVersion, protoErr.Code)

	s.Equal([]bool{true, false}, conn.NoDelayLog())
	// Construction failed, so the root reference was released again.
	s.Equal(1, s.eng.GlobalDeinits)
}

func (s *SessionTestSuite) TestHookLogsTransitions() {
	s.eng.Defaults.HandshakeEvents = []enginetest.HookEvent{
		{Msg: engine.HandshakeClientHello, Incoming: false, Post: false},
		{Msg: engine.HandshakeServerHello, Incoming: true, Post: true},
		{Msg: engine.HandshakeFinished, Incoming: false, Post: true},
	}

	sess := s.newSession(s.newConn(), Config{})
	defer sess.Close()

	log := joined(s.rt.recent.Lines())
	s.Contains(log, "about to process outgoing ClientHello")
	s.Contains(log, "processed incoming ServerHello")
	s.Contains(log, "processed outgoing Finished")
}

func (s *SessionTestSuite) TestResumptionFromPriorSession() {
	s.eng.Defaults.IssueTicket = true

	first := s.newSession(s.newConn(), Config{})
	s.False(first.Resumed())

	second := s.newSession(s.newConn(), Config{Resume: first})
	defer second.Close()
	defer first.Close()

	s.True(second.Resumed())
	s.Equal([]byte("ticket:ftp.example.com"), s.state(second).Imported)
}

func (s *SessionTestSuite) TestNeverResumedWithoutPriorSession() {
	s.eng.Defaults.IssueTicket = true

	sess := s.newSession(s.newConn(), Config{})
	defer sess.Close()

	s.False(sess.Resumed())
	s.Empty(s.state(sess).Imported)
}

func (s *SessionTestSuite) TestPostHandshakeTicketOverridesCache() {
	s.eng.Defaults.IssueTicket = true

	first := s.newSession(s.newConn(), Config{})

	// A TLS 1.3 ticket lands after the handshake call returned.
	s.eng.DeliverTicket(first.handle, []byte("fresh-ticket"))

	second := s.newSession(s.newConn(), Config{Resume: first})
	defer second.Close()
	defer first.Close()

	s.Equal([]byte("fresh-ticket"), s.state(second).Imported)
	// The cache was consumed by the transfer.
	s.Nil(s.rt.takeResumeDatum())
}

func (s *SessionTestSuite) TestNoResumptionDataFallsBackToFullHandshake() {
	first := s.newSession(s.newConn(), Config{}) // no ticket issued

	second := s.newSession(s.newConn(), Config{Resume: first})
	defer second.Close()
	defer first.Close()

	s.False(second.Resumed())
	s.Empty(s.state(second).Imported)
}

func (s *SessionTestSuite) TestRootLifecycleExactlyOnce() {
	root := s.newSession(s.newConn(), Config{})
	child1 := s.newSession(s.newConn(), Config{Resume: root})
	child2 := s.newSession(s.newConn(), Config{Resume: root})

	s.Require().NoError(child1.Close())
	s.Require().NoError(child2.Close())
	s.Equal(0, s.eng.GlobalDeinits)

	s.Require().NoError(root.Close())

	s.Equal(1, s.eng.GlobalInits)
	s.Equal(1, s.eng.GlobalDeinits)

	events := s.eng.Events
	s.Equal("global init", events[0])
	s.Equal("global deinit", events[len(events)-1])
	s.Equal("cred free", events[len(events)-2])
}

func (s *SessionTestSuite) TestRootCloseDeferredUntilChildrenClose() {
	root := s.newSession(s.newConn(), Config{})
	child := s.newSession(s.newConn(), Config{Resume: root})

	s.Require().NoError(root.Close())
	// The child is still live; teardown must wait.
	s.Equal(0, s.eng.GlobalDeinits)

	s.Require().NoError(child.Close())
	s.Equal(1, s.eng.GlobalDeinits)
}

func (s *SessionTestSuite) TestDoubleCloseIsNoOp() {
	sess := s.newSession(s.newConn(), Config{})
	st := s.state(sess)

	s.Require().NoError(sess.Close())
	s.Require().NoError(sess.Close())

	s.Equal(1, st.ByeCalls)
	s.Equal(1, s.eng.GlobalDeinits)

	deinits := 0
	for _, ev := range s.eng.Events {
		if ev == "session deinit" {
			deinits++
		}
	}
	s.Equal(1, deinits)
}

func (s *SessionTestSuite) TestCloseDrainsPendingPlaintext() {
	sess := s.newSession(s.newConn(), Config{})
	st := s.state(sess)
	st.Pending = bytes.Repeat([]byte("p"), 2500)

	s.Require().NoError(sess.Close())

	s.Empty(st.Pending)
	s.Equal(1, st.ByeCalls)
}

func (s *SessionTestSuite) TestCloseNotifyFailureIsLoggedNotRaised() {
	s.eng.Defaults.ByeCode = engine.CodePushError

	sess := s.newSession(s.newConn(), Config{})
	s.Require().NoError(sess.Close())

	s.Contains(joined(s.rt.recent.Lines()), "close notify failed")
}

func (s *SessionTestSuite) TestCertificateValidatorRejection() {
	reason := errors.New("name mismatch")

	_, err := s.rt.NewSession(s.newConn(), s.clock, Config{
		Hostname: "h",
		Validate: func(chain [][]byte) error {
			if len(chain) == 0 {
				return errors.New("empty chain")
			}
			return reason
		},
	})
	s.Require().Error(err)

	rejected := new(CertificateRejected)
	s.Require().True(errors.As(err, &rejected))
	s.ErrorIs(err, reason)

	// The failed construction released everything it acquired.
	s.Equal(1, s.eng.GlobalDeinits)
}

func (s *SessionTestSuite) TestCertificateValidatorAccepts() {
	var seen [][]byte

	sess, err := s.rt.NewSession(s.newConn(), s.clock, Config{
		Hostname: "h",
		Validate: func(chain [][]byte) error {
			seen = chain
			return nil
		},
	})
	s.Require().NoError(err)
	defer sess.Close()

	s.True(sess.Ready())
	s.NotEmpty(seen)
}

func (s *SessionTestSuite) TestSessionInitFailure() {
	s.eng.InitCode = engine.CodeMemoryError

	_, err := s.rt.NewSession(s.newConn(), s.clock, Config{Hostname: "h"})
	s.Require().Error(err)

	protoErr := new(ProtocolError)
	s.Require().True(errors.As(err, &protoErr))
	s.Equal("session init", protoErr.Op)
	s.Equal(1, s.eng.GlobalDeinits)
}

func (s *SessionTestSuite) TestTrustStoreFailureIsWarning() {
	s.eng.TrustCode = engine.CodeCertificateError

	sess := s.newSession(s.newConn(), Config{})
	defer sess.Close()

	s.True(sess.Ready())
	s.Contains(joined(s.rt.recent.Lines()), "system trust store unavailable")
}

func (s *SessionTestSuite) TestStreamSurface() {
	sess := s.newSession(s.newConn(), Config{})
	defer sess.Close()

	s.NoError(sess.Flush())

	_, err := sess.Seek(0, 0)
	s.ErrorIs(err, ErrNotSupported)
}
