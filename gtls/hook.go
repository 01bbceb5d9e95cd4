package gtls

import "github.com/FanDjango/gnutls-stream/engine"

// hook is registered with the engine and fires synchronously at every
// handshake message boundary, on the goroutine inside the Handshake call.
// For TLS 1.3 it can fire again after Handshake has returned, from inside a
// later record receive, when the peer delivers a post-handshake
// NewSessionTicket; the runtime's datum cache must therefore stay safe to
// overwrite at any point of the session's life.
func (s *Session) hook(msg engine.HandshakeDescription, incoming, post bool) engine.Code {
	s.logger.Debug().Msg("handshake " + describeTransition(msg, incoming, post))

	if incoming && post && msg == engine.HandshakeNewSessionTicket {
		s.captureTicket()
	}

	// The hook observes; it never alters protocol flow.
	return engine.CodeSuccess
}

// captureTicket extracts resumption data the moment a session ticket has
// been processed, so it survives even when it arrived after the handshake
// call returned.
func (s *Session) captureTicket() {
	if s.eng.SessionFlags(s.handle)&engine.SFlagSessionTicket == 0 {
		return
	}

	datum, rc := s.eng.SessionData(s.handle)
	if rc.Err() {
		s.logger.Warn().Str("code", rc.String()).Msg("session data extraction failed on ticket receipt")
		return
	}
	if len(datum) == 0 {
		return
	}

	s.rt.cacheResumeDatum(datum)
	s.logger.Debug().Int("bytes", len(datum)).Msg("cached resumption data from session ticket")
}

func describeTransition(msg engine.HandshakeDescription, incoming, post bool) string {
	dir := "outgoing"
	if incoming {
		dir = "incoming"
	}
	phase := "about to process"
	if post {
		phase = "processed"
	}
	return phase + " " + dir + " " + msg.String()
}
