// Package enginetest provides a scriptable in-memory [engine.Engine].
//
// Tests steer it two ways: per-session scripts (result queues for the record
// primitives, hook events replayed during the handshake) and an OnOp callback
// fired before every primitive, which is where a mock clock gets advanced.
package enginetest

import (
	"sync"
	"time"

	"github.com/FanDjango/gnutls-stream/engine"
	"github.com/FanDjango/gnutls-stream/transport"
)

// HookEvent is one handshake message boundary replayed through the hook.
type HookEvent struct {
	Msg      engine.HandshakeDescription
	Incoming bool
	Post     bool
}

// Script drives one session's behavior.
type Script struct {
	// HandshakeEvents are replayed through the registered hook, in order,
	// before HandshakeResult is returned.
	HandshakeEvents []HookEvent
	HandshakeResult engine.Code

	// IssueTicket makes a successful handshake install a session ticket
	// (session data + the ticket flag), like a TLS 1.2 server would.
	IssueTicket bool

	// RecvResults is consumed one value per RecordRecv call. Negative values
	// are returned verbatim as codes; non-negative values serve up to that
	// many bytes from RecvData.
	RecvResults []int
	RecvData    []byte

	// SendResults works the same for RecordSend: negative values are codes,
	// non-negative values cap how many bytes that call accepts.
	SendResults []int

	ImportCode engine.Code
	ExportCode engine.Code
	ByeCode    engine.Code
}

// Metadata is what the fake reports once a session handshaked.
type Metadata struct {
	Description string
	CipherSuite string
	ALPN        string
	Version     engine.Version
	MaxRecord   uint
}

// Session is the fake's per-handle state. Tests inspect it freely.
type Session struct {
	ID     engine.SessionID
	Script Script
	Meta   Metadata

	Flags            engine.InitFlags
	Priority         string
	ServerName       string
	ALPN             string
	Credentials      engine.CredentialsID
	Conn             transport.Conn
	HandshakeTimeout time.Duration
	Hook             engine.Hook

	Handshaked bool
	Resumed    bool
	SFlags     engine.SessionFlags
	Datum      []byte // served by SessionData
	Imported   []byte
	Pending    []byte // served by RecordRecv when nothing is scripted
	Sent       [][]byte
	LastAlert  engine.Alert

	RecvCalls, SendCalls, ByeCalls int
	Deinited                       bool

	recvPos int
}

type Engine struct {
	mu sync.Mutex

	// VersionString defaults to "3.8.4".
	VersionString string

	// TrustCount and TrustCode steer SetSystemTrust.
	TrustCount int
	TrustCode  engine.Code

	AllocCredCode engine.Code
	InitCode      engine.Code

	// Defaults is copied into every new session.
	Defaults Script
	// Meta is copied into every new session.
	Meta Metadata

	// OnOp fires before each handshake/record primitive with the op name
	// ("handshake", "record recv", "record send", "bye").
	OnOp func(op string)

	// Events logs lifecycle calls in order: "global init", "cred alloc",
	// "session init", "session deinit", "cred free", "global deinit".
	Events []string

	GlobalInits   int
	GlobalDeinits int

	nextSession engine.SessionID
	nextCred    engine.CredentialsID
	sessions    map[engine.SessionID]*Session
	creds       map[engine.CredentialsID]bool
}

var _ engine.Engine = (*Engine)(nil)

func New() *Engine {
	return &Engine{
		VersionString: "3.8.4",
		TrustCount:    142,
		Meta: Metadata{
			Description: "(TLS1.3)-(ECDHE-SECP256R1)-(AES-256-GCM)",
			CipherSuite: "TLS_AES_256_GCM_SHA384",
			Version:     engine.VersionTLS13,
			MaxRecord:   1 << 14,
		},
		sessions: make(map[engine.SessionID]*Session),
		creds:    make(map[engine.CredentialsID]bool),
	}
}

// Session exposes the state behind a handle.
func (e *Engine) Session(id engine.SessionID) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[id]
}

func (e *Engine) op(name string) {
	if e.OnOp != nil {
		e.OnOp(name)
	}
}

func (e *Engine) logEvent(name string) { e.Events = append(e.Events, name) }

func (e *Engine) Version() string { return e.VersionString }

func (e *Engine) GlobalInit() engine.Code {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.GlobalInits++
	e.logEvent("global init")
	return engine.CodeSuccess
}

func (e *Engine) GlobalDeinit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.GlobalDeinits++
	e.logEvent("global deinit")
}

func (e *Engine) AllocCredentials() (engine.CredentialsID, engine.Code) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.AllocCredCode.Err() {
		return 0, e.AllocCredCode
	}
	e.nextCred++
	e.creds[e.nextCred] = true
	e.logEvent("cred alloc")
	return e.nextCred, engine.CodeSuccess
}

func (e *Engine) FreeCredentials(cred engine.CredentialsID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.creds, cred)
	e.logEvent("cred free")
}

func (e *Engine) SetSystemTrust(cred engine.CredentialsID) (int, engine.Code) {
	if e.TrustCode.Err() {
		return 0, e.TrustCode
	}
	return e.TrustCount, engine.CodeSuccess
}

func (e *Engine) SetClientKeyPair(cred engine.CredentialsID, certPEM, keyPEM []byte) engine.Code {
	return engine.CodeSuccess
}

func (e *Engine) InitSession(flags engine.InitFlags) (engine.SessionID, engine.Code) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.InitCode.Err() {
		return 0, e.InitCode
	}
	e.nextSession++
	s := &Session{
		ID:     e.nextSession,
		Flags:  flags,
		Script: e.Defaults,
		Meta:   e.Meta,
	}
	e.sessions[s.ID] = s
	e.logEvent("session init")
	return s.ID, engine.CodeSuccess
}

func (e *Engine) DeinitSession(id engine.SessionID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s := e.sessions[id]; s != nil {
		s.Deinited = true
	}
	e.logEvent("session deinit")
}

func (e *Engine) get(id engine.SessionID) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[id]
}

func (e *Engine) SetPriority(id engine.SessionID, priority string) engine.Code {
	if priority == "" {
		return engine.CodeInvalidRequest
	}
	e.get(id).Priority = priority
	return engine.CodeSuccess
}

func (e *Engine) BindCredentials(id engine.SessionID, cred engine.CredentialsID) engine.Code {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.creds[cred] {
		return engine.CodeInsufficientCredentials
	}
	e.sessions[id].Credentials = cred
	return engine.CodeSuccess
}

func (e *Engine) SetServerName(id engine.SessionID, name string) engine.Code {
	e.get(id).ServerName = name
	return engine.CodeSuccess
}

func (e *Engine) SetALPN(id engine.SessionID, protocol string) engine.Code {
	e.get(id).ALPN = protocol
	return engine.CodeSuccess
}

func (e *Engine) SetTransport(id engine.SessionID, conn transport.Conn) {
	e.get(id).Conn = conn
}

func (e *Engine) SetHandshakeTimeout(id engine.SessionID, timeout time.Duration) {
	e.get(id).HandshakeTimeout = timeout
}

func (e *Engine) SetHook(id engine.SessionID, hook engine.Hook) {
	e.get(id).Hook = hook
}

func (e *Engine) Handshake(id engine.SessionID) engine.Code {
	e.op("handshake")

	e.mu.Lock()
	s := e.sessions[id]
	hook := s.Hook
	events := s.Script.HandshakeEvents
	res := s.Script.HandshakeResult
	if !res.Err() && s.Script.IssueTicket {
		// Ticket state is visible to the hook, like the real engine's.
		s.SFlags |= engine.SFlagSessionTicket
		s.Datum = append([]byte("ticket:"), s.ServerName...)
	}
	e.mu.Unlock()

	// Replay outside the lock: the hook calls back into the engine.
	for _, ev := range events {
		if hook != nil {
			hook(ev.Msg, ev.Incoming, ev.Post)
		}
	}

	if res.Err() {
		return res
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s.Handshaked = true
	s.Resumed = len(s.Imported) > 0
	return engine.CodeSuccess
}

func (e *Engine) Bye(id engine.SessionID, how engine.CloseHow) engine.Code {
	e.op("bye")
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sessions[id]
	s.ByeCalls++
	return s.Script.ByeCode
}

func (e *Engine) RecordSend(id engine.SessionID, p []byte) int {
	e.op("record send")
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.sessions[id]
	s.SendCalls++

	n := len(p)
	if len(s.Script.SendResults) > 0 {
		r := s.Script.SendResults[0]
		s.Script.SendResults = s.Script.SendResults[1:]
		if r < 0 {
			return r
		}
		if r < n {
			n = r
		}
	}
	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, p[:n])
		s.Sent = append(s.Sent, chunk)
	}
	return n
}

func (e *Engine) RecordRecv(id engine.SessionID, p []byte) int {
	e.op("record recv")
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.sessions[id]
	s.RecvCalls++

	if len(s.Script.RecvResults) > 0 {
		r := s.Script.RecvResults[0]
		s.Script.RecvResults = s.Script.RecvResults[1:]
		if r < 0 {
			return r
		}
		return s.serve(p, r)
	}

	if len(s.Pending) > 0 {
		n := copy(p, s.Pending)
		s.Pending = s.Pending[n:]
		return n
	}

	return s.serve(p, len(p))
}

// serve copies up to limit bytes of the scripted plaintext into p.
func (s *Session) serve(p []byte, limit int) int {
	if limit > len(p) {
		limit = len(p)
	}
	rest := s.Script.RecvData[s.recvPos:]
	if limit > len(rest) {
		limit = len(rest)
	}
	copy(p, rest[:limit])
	s.recvPos += limit
	return limit
}

func (e *Engine) RecordCheckPending(id engine.SessionID) uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return uint(len(e.sessions[id].Pending))
}

func (e *Engine) MaxRecordSize(id engine.SessionID) uint {
	return e.get(id).Meta.MaxRecord
}

func (e *Engine) SessionData(id engine.SessionID) ([]byte, engine.Code) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sessions[id]
	if s.Script.ExportCode.Err() {
		return nil, s.Script.ExportCode
	}
	if len(s.Datum) == 0 {
		return nil, engine.CodeSuccess
	}
	out := make([]byte, len(s.Datum))
	copy(out, s.Datum)
	return out, engine.CodeSuccess
}

func (e *Engine) SetSessionData(id engine.SessionID, data []byte) engine.Code {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sessions[id]
	if s.Script.ImportCode.Err() {
		return s.Script.ImportCode
	}
	if s.Handshaked {
		return engine.CodeInvalidSession
	}
	s.Imported = make([]byte, len(data))
	copy(s.Imported, data)
	return engine.CodeSuccess
}

func (e *Engine) IsResumed(id engine.SessionID) bool { return e.get(id).Resumed }

func (e *Engine) SessionFlags(id engine.SessionID) engine.SessionFlags {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[id].SFlags
}

func (e *Engine) ProtocolVersion(id engine.SessionID) engine.Version {
	return e.get(id).Meta.Version
}

func (e *Engine) Description(id engine.SessionID) string {
	return e.get(id).Meta.Description
}

func (e *Engine) CipherSuite(id engine.SessionID) string {
	return e.get(id).Meta.CipherSuite
}

func (e *Engine) ALPNProtocol(id engine.SessionID) (string, engine.Code) {
	s := e.get(id)
	if s.Meta.ALPN == "" {
		return "", engine.CodeInvalidRequest
	}
	return s.Meta.ALPN, engine.CodeSuccess
}

func (e *Engine) PeerCertificates(id engine.SessionID) [][]byte {
	return [][]byte{[]byte("stub-peer-certificate")}
}

func (e *Engine) LastAlert(id engine.SessionID) engine.Alert {
	return e.get(id).LastAlert
}

// DeliverTicket simulates a TLS 1.3 post-handshake NewSessionTicket: it
// installs fresh session data, raises the ticket flag and fires the hook the
// way the engine would during a later record receive.
func (e *Engine) DeliverTicket(id engine.SessionID, datum []byte) {
	e.mu.Lock()
	s := e.sessions[id]
	s.Datum = append([]byte(nil), datum...)
	s.SFlags |= engine.SFlagSessionTicket
	hook := s.Hook
	e.mu.Unlock()

	if hook != nil {
		hook(engine.HandshakeNewSessionTicket, true, true)
	}
}
