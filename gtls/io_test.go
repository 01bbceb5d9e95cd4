package gtls

import (
	"bytes"
	"testing"
	"time"

	"github.com/FanDjango/gnutls-stream/engine"
	"github.com/FanDjango/gnutls-stream/engine/enginetest"
	"github.com/FanDjango/gnutls-stream/transport/pipe"
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type IOTestSuite struct {
	suite.Suite

	clock *clock.Mock
	eng   *enginetest.Engine
	rt    *Runtime
	conn  *pipe.Pipe
}

func TestIOTestSuite(t *testing.T) {
	suite.Run(t, new(IOTestSuite))
}

func (s *IOTestSuite) SetupTest() {
	s.clock = clock.NewMock()
	s.eng = enginetest.New()
	s.rt = NewRuntime(s.eng, RuntimeOptions{Verbosity: "debug"})
	s.conn, _ = pipe.New("client", "server", s.clock)
}

func (s *IOTestSuite) newSession(cfg Config) *Session {
	if cfg.Hostname == "" {
		cfg.Hostname = "ftp.example.com"
	}
	sess, err := s.rt.NewSession(s.conn, s.clock, cfg)
	s.Require().NoError(err)
	return sess
}

func (s *IOTestSuite) state(sess *Session) *enginetest.Session {
	return s.eng.Session(sess.handle)
}

func (s *IOTestSuite) TestInvalidArgument() {
	sess := s.newSession(Config{})
	st := s.state(sess)

	_, err := sess.Read(nil)
	s.ErrorIs(err, ErrInvalidArgument)

	_, err = sess.Read([]byte{})
	s.ErrorIs(err, ErrInvalidArgument)

	_, err = sess.Write(nil)
	s.ErrorIs(err, ErrInvalidArgument)

	// No native primitive ran.
	s.Zero(st.RecvCalls)
	s.Zero(st.SendCalls)
}

func (s *IOTestSuite) TestReadClampsToMaxRecordSize() {
	s.eng.Meta.MaxRecord = 16
	s.eng.Defaults.RecvData = bytes.Repeat([]byte("x"), 64)

	sess := s.newSession(Config{})

	buf := make([]byte, 64)
	n, err := sess.Read(buf)
	s.Require().NoError(err)
	s.Equal(16, n)
}

func (s *IOTestSuite) TestReadReturnsOnFirstSuccess() {
	s.eng.Defaults.RecvData = []byte("hello world")
	s.eng.Defaults.RecvResults = []int{-28, -52, 5}

	sess := s.newSession(Config{})

	buf := make([]byte, 64)
	n, err := sess.Read(buf)
	s.Require().NoError(err)
	s.Equal(5, n)
	s.Equal([]byte("hello"), buf[:n])
	s.Equal(3, s.state(sess).RecvCalls)
}

func (s *IOTestSuite) TestWriteIntegrityAcrossRetries() {
	payload := []byte("the quick brown fox jumps over the lazy dog")
	s.eng.Defaults.SendResults = []int{
		int(engine.CodeAgain),
		10,
		int(engine.CodeInterrupted),
		int(engine.CodeWarningAlertReceived),
		7,
		int(engine.CodeAgain),
		1 << 20, // accept the rest
	}

	sess := s.newSession(Config{})

	n, err := sess.Write(payload)
	s.Require().NoError(err)
	s.Equal(len(payload), n)

	var sent []byte
	for _, chunk := range s.state(sess).Sent {
		sent = append(sent, chunk...)
	}
	s.Equal(payload, sent)
}

func (s *IOTestSuite) TestWriteChunksToMaxRecordSize() {
	s.eng.Meta.MaxRecord = 8

	sess := s.newSession(Config{})

	payload := bytes.Repeat([]byte("ab"), 10) // 20 bytes
	n, err := sess.Write(payload)
	s.Require().NoError(err)
	s.Equal(len(payload), n)

	st := s.state(sess)
	s.Equal(3, st.SendCalls) // 8 + 8 + 4
	for _, chunk := range st.Sent {
		s.LessOrEqual(len(chunk), 8)
	}
}

func (s *IOTestSuite) TestWriteZeroResultTerminates() {
	s.eng.Defaults.SendResults = []int{5, 0}

	sess := s.newSession(Config{})

	n, err := sess.Write([]byte("0123456789"))
	s.Require().NoError(err)
	s.Equal(5, n)
}

func (s *IOTestSuite) TestWouldBlockRaisesOnlyAfterTimeout() {
	s.eng.Defaults.RecvResults = repeat(int(engine.CodeAgain), 64)
	s.eng.OnOp = func(op string) {
		if op == "record recv" {
			s.clock.Add(30 * time.Millisecond)
		}
	}

	sess := s.newSession(Config{PollTimeout: 100 * time.Millisecond})

	buf := make([]byte, 8)
	_, err := sess.Read(buf)
	s.Require().Error(err)

	protoErr := new(ProtocolError)
	s.Require().True(errors.As(err, &protoErr))
	s.Equal(engine.CodeAgain, protoErr.Code)
	s.Equal("record recv", protoErr.Op)

	// 30ms per attempt against a 100ms budget: the fourth attempt is the
	// first one past the deadline, and none before it raised.
	s.Equal(4, s.state(sess).RecvCalls)
}

func (s *IOTestSuite) TestWouldBlockRecoversWithinTimeout() {
	s.eng.Defaults.RecvData = []byte("late but fine")
	s.eng.Defaults.RecvResults = append(repeat(int(engine.CodeAgain), 5), 13)
	s.eng.OnOp = func(op string) {
		if op == "record recv" {
			s.clock.Add(30 * time.Millisecond)
		}
	}

	sess := s.newSession(Config{PollTimeout: time.Second})

	buf := make([]byte, 32)
	n, err := sess.Read(buf)
	s.Require().NoError(err)
	s.Equal([]byte("late but fine"), buf[:n])
}

func (s *IOTestSuite) TestAlertsAreRetriedUntilTimeout() {
	// Fatal and warning alerts follow the same repeat policy: both are
	// logged and retried until the poll timeout exhausts.
	s.eng.Defaults.RecvResults = repeat2(
		int(engine.CodeWarningAlertReceived),
		int(engine.CodeFatalAlertReceived),
		32,
	)
	s.eng.OnOp = func(op string) {
		if op == "record recv" {
			s.clock.Add(40 * time.Millisecond)
		}
	}

	sess := s.newSession(Config{PollTimeout: 200 * time.Millisecond})
	s.state(sess).LastAlert = engine.AlertHandshakeFailure

	buf := make([]byte, 8)
	_, err := sess.Read(buf)
	s.Require().Error(err)

	protoErr := new(ProtocolError)
	s.Require().True(errors.As(err, &protoErr))
	s.Equal(engine.CodeWarningAlertReceived, protoErr.Code)
	// 40ms per attempt against a 200ms budget: five attempts ran, so the
	// fatal alerts on attempts two and four were retried, not terminal.
	s.Equal(5, s.state(sess).RecvCalls)

	s.Contains(joined(s.rt.recent.Lines()), "handshake failure")
}

func (s *IOTestSuite) TestNonRetryableCodeRaisesImmediately() {
	s.eng.Defaults.RecvResults = []int{int(engine.CodePrematureTermination)}

	sess := s.newSession(Config{})

	buf := make([]byte, 8)
	_, err := sess.Read(buf)
	s.Require().Error(err)

	protoErr := new(ProtocolError)
	s.Require().True(errors.As(err, &protoErr))
	s.Equal(engine.CodePrematureTermination, protoErr.Code)
	s.Equal(1, s.state(sess).RecvCalls)
	s.Contains(protoErr.Error(), "peer terminated the connection prematurely")
}

func (s *IOTestSuite) TestProtocolErrorCarriesRecentLog() {
	s.eng.Defaults.SendResults = []int{int(engine.CodePushError)}

	sess := s.newSession(Config{})

	_, err := sess.Write([]byte("data"))
	s.Require().Error(err)

	protoErr := new(ProtocolError)
	s.Require().True(errors.As(err, &protoErr))
	s.NotEmpty(protoErr.Recent)
	s.Contains(joined(protoErr.Recent), "handshake complete")
}

func (s *IOTestSuite) TestIOAfterCloseNotReady() {
	sess := s.newSession(Config{})
	s.Require().NoError(sess.Close())

	_, err := sess.Read(make([]byte, 8))
	s.ErrorIs(err, ErrSessionNotReady)

	_, err = sess.Write([]byte("data"))
	s.ErrorIs(err, ErrSessionNotReady)
}

func repeat(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func repeat2(a, b, n int) []int {
	out := make([]int, 0, 2*n)
	for i := 0; i < n; i++ {
		out = append(out, a, b)
	}
	return out
}

func joined(lines []string) string {
	var buf bytes.Buffer
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.String()
}
