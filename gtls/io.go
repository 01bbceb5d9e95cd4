package gtls

import (
	"github.com/FanDjango/gnutls-stream/engine"
	"github.com/pkg/errors"
)

// Read fills p from decrypted records, blocking until data arrives, a
// non-retryable engine error occurs or the poll timeout elapses. At most
// min(len(p), negotiated max record size) bytes are returned per call, and a
// successful return may be shorter than requested; callers loop if they need
// an exact count.
func (s *Session) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, errors.Wrap(ErrInvalidArgument, "read length must be positive")
	}
	if !s.ready {
		return 0, errors.WithStack(ErrSessionNotReady)
	}

	n := len(p)
	if s.maxRecord > 0 && uint(n) > s.maxRecord {
		n = int(s.maxRecord)
	}

	return s.retryRecord("record recv", func() int {
		return s.eng.RecordRecv(s.handle, p[:n])
	})
}

// Write transmits all of p, blocking until done, a non-retryable engine
// error occurs or the poll timeout elapses. p is copied up front, so the
// caller's buffer need not stay stable across retries.
func (s *Session) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, errors.Wrap(ErrInvalidArgument, "write length must be positive")
	}
	if !s.ready {
		return 0, errors.WithStack(ErrSessionNotReady)
	}

	buf := make([]byte, len(p))
	copy(buf, p)

	for len(buf) > 0 {
		chunk := len(buf)
		if s.maxRecord > 0 && uint(chunk) > s.maxRecord {
			chunk = int(s.maxRecord)
		}

		sent, err := s.retryRecord("record send", func() int {
			return s.eng.RecordSend(s.handle, buf[:chunk])
		})
		if err != nil {
			return len(p) - len(buf), err
		}
		if sent == 0 {
			// Zero terminates the loop; it is not an error by itself.
			break
		}
		buf = buf[sent:]
	}

	return len(p) - len(buf), nil
}

// retryRecord drives one record primitive until it returns a non-negative
// count or a non-retryable code. The stopwatch starts once per logical call,
// not per retry; a retryable result past the poll timeout stops the loop and
// surfaces the last code.
//
// Warning and fatal alert receipt are both in the retry set: the repeat
// policy exhausts the timeout rather than closing on a fatal alert, which
// matters on FTP data connections where the peer's close-notify races the
// final data records.
func (s *Session) retryRecord(op string, fn func() int) (int, error) {
	start := s.clock.Now()

	for {
		res := fn()
		if res >= 0 {
			return res, nil
		}

		code := engine.Code(res)
		switch code {
		case engine.CodeWarningAlertReceived, engine.CodeFatalAlertReceived:
			s.logger.Info().
				Str("alert", s.eng.LastAlert(s.handle).String()).
				Str("op", op).
				Msg("alert received")
		}

		if !code.Retryable() {
			return 0, s.rt.protocolErr(op, code)
		}
		if s.clock.Now().Sub(start) >= s.cfg.PollTimeout {
			return 0, s.rt.protocolErr(op, code)
		}
	}
}
