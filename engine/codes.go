package engine

import "strconv"

// Code is a native engine result code. Zero is success, negative values are
// GnuTLS-style errors. Record primitives return non-negative byte counts or
// a negative Code.
type Code int

const (
	CodeSuccess Code = 0

	CodeUnexpectedPacketLength  Code = -9
	CodeInvalidSession          Code = -10
	CodeFatalAlertReceived      Code = -12
	CodeUnexpectedPacket        Code = -15
	CodeWarningAlertReceived    Code = -16
	CodeLargePacket             Code = -24
	CodeMemoryError             Code = -25
	CodeAgain                   Code = -28
	CodeExpired                 Code = -29
	CodeDBError                 Code = -30
	CodeCertificateKeyMismatch  Code = -40
	CodeInsufficientCredentials Code = -44
	CodeCertificateError        Code = -43
	CodeNoCertificateFound      Code = -49
	CodeInvalidRequest          Code = -50
	CodeInterrupted             Code = -52
	CodePushError               Code = -53
	CodePullError               Code = -54
	CodeDecryptionFailed        Code = -55
	CodeInternalError           Code = -59
	CodeNoTemporaryParams       Code = -84
	CodeUnsupportedVersion      Code = -87
	CodePrematureTermination    Code = -110
	CodeTimedOut                Code = -319
)

// Retryable reports whether a record primitive returning c should be retried.
// Alert receipt is retryable: the repeat policy exhausts the configured
// timeout instead of tearing the session down on the spot.
func (c Code) Retryable() bool {
	switch c {
	case CodeAgain, CodeInterrupted, CodeWarningAlertReceived, CodeFatalAlertReceived:
		return true
	}
	return false
}

// Err reports whether c is an error code.
func (c Code) Err() bool { return c < 0 }

var codeNames = map[Code]string{
	CodeSuccess:                 "success",
	CodeUnexpectedPacketLength:  "unexpected packet length",
	CodeInvalidSession:          "invalid session",
	CodeFatalAlertReceived:      "fatal alert received",
	CodeUnexpectedPacket:        "unexpected packet",
	CodeWarningAlertReceived:    "warning alert received",
	CodeLargePacket:             "packet too large",
	CodeMemoryError:             "memory error",
	CodeAgain:                   "resource temporarily unavailable, try again",
	CodeExpired:                 "session expired",
	CodeDBError:                 "session database error",
	CodeCertificateKeyMismatch:  "certificate and key do not match",
	CodeInsufficientCredentials: "insufficient credentials",
	CodeCertificateError:        "certificate error",
	CodeNoCertificateFound:      "no certificate found",
	CodeInvalidRequest:          "invalid request",
	CodeInterrupted:             "interrupted system call",
	CodePushError:               "error pushing to transport",
	CodePullError:               "error pulling from transport",
	CodeDecryptionFailed:        "decryption failed",
	CodeInternalError:           "internal error",
	CodeNoTemporaryParams:       "no temporary parameters",
	CodeUnsupportedVersion:      "unsupported protocol version",
	CodePrematureTermination:    "peer terminated the connection prematurely",
	CodeTimedOut:                "operation timed out",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown error (" + strconv.Itoa(int(c)) + ")"
}
