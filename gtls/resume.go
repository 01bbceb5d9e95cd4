package gtls

// extractResumptionDatum pulls resumption state out of a prior session. The
// runtime's ticket cache wins (the freshest ticket, possibly delivered after
// that session's handshake returned); otherwise the datum is read from the
// session handle directly. The caller becomes the blob's sole owner.
func extractResumptionDatum(src *Session) []byte {
	if datum := src.rt.takeResumeDatum(); len(datum) > 0 {
		return datum
	}

	if src.handle == 0 {
		return nil
	}
	datum, rc := src.eng.SessionData(src.handle)
	if rc.Err() {
		src.logger.Debug().Str("code", rc.String()).Msg("session data extraction failed")
		return nil
	}
	return datum
}

// importResumptionDatum installs an extracted datum into a session that has
// not handshaked yet. The datum is wiped after the import: it must not be
// imported twice or touched again by the caller.
func importResumptionDatum(s *Session, datum []byte) error {
	if rc := s.eng.SetSessionData(s.handle, datum); rc.Err() {
		return s.rt.protocolErr("session data import", rc)
	}

	for i := range datum {
		datum[i] = 0
	}

	s.logger.Debug().Msg("imported resumption data from prior session")
	return nil
}
