package cryptnox

// Session holds the symmetric state of an open secure channel: the
// encryption and MAC keys derived during mutual authentication and the
// rolling IV that chains consecutive secure-messaging exchanges.
//
// A Session is exclusively owned by one SecureChannel. Commands depend on
// the IV rolled by the previous response, so it must never be driven by two
// callers at once.
type Session struct {
	kEnc [32]byte
	kMac [32]byte
	iv   [16]byte
	open bool
}

// Install populates the session after a successful mutual authentication.
func (s *Session) Install(kEnc, kMac [32]byte, iv []byte) {
	s.kEnc = kEnc
	s.kMac = kMac
	copy(s.iv[:], iv)
	s.open = true
}

// RollIV replaces the rolling IV with the MAC of the latest response.
func (s *Session) RollIV(newIV []byte) {
	copy(s.iv[:], newIV)
}

// Clear zeroizes all key material and closes the session. Safe to call on
// an already-cleared session.
func (s *Session) Clear() {
	zeroize(s.kEnc[:])
	zeroize(s.kMac[:])
	zeroize(s.iv[:])
	s.open = false
}

// IsOpen reports whether the session carries live key material.
func (s *Session) IsOpen() bool {
	return s.open
}
