package cryptnox

import (
	"crypto/rand"
	"fmt"
	"io"
)

// State identifies the position of a SecureChannel in the handshake state
// machine.
type State int

const (
	StateIdle State = iota
	StateSelected
	StateCertReceived
	StateOPCSent
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelected:
		return "selected"
	case StateCertReceived:
		return "certificate received"
	case StateOPCSent:
		return "open channel sent"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// opcInitialIV is the fixed IV for encrypting the MUTUALLY AUTHENTICATE
// payload, before the rolling IV exists.
var opcInitialIV = [16]byte{
	0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01,
	0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01,
}

// SecureChannel drives the Cryptnox secure channel protocol over a
// Transport: SELECT, certificate retrieval, ECDH key agreement, mutual
// authentication, and secure-messaging commands. It owns one Session for
// the lifetime of the channel.
//
// A SecureChannel is not safe for concurrent use; secure commands are
// strictly ordered by the rolling IV.
type SecureChannel struct {
	transport Transport
	sink      Sink
	random    io.Reader

	session Session
	state   State

	// FCI holds a best-effort decode of the response to the most recent
	// SELECT that returned 9000; it is kept even when a later handshake step
	// fails. It may be nil.
	FCI *FCI
}

// NewSecureChannel creates an idle channel over the given transport. Debug
// output is discarded unless a sink is set.
func NewSecureChannel(t Transport) *SecureChannel {
	return &SecureChannel{
		transport: t,
		sink:      DiscardSink{},
		random:    rand.Reader,
		state:     StateIdle,
	}
}

// SetSink routes debug output (APDU hex dumps, step markers) to s. Keys and
// plaintext PINs are never written to the sink. Commands and responses are
// dumped as they appear on the wire, so their MAC fields, which serve as the
// response decryption IV and the next rolling IV, do appear in the output.
func (c *SecureChannel) SetSink(s Sink) {
	if s == nil {
		s = DiscardSink{}
	}
	c.sink = s
}

// State returns the current handshake state.
func (c *SecureChannel) State() State {
	return c.state
}

// IsOpen reports whether the secure session is established.
func (c *SecureChannel) IsOpen() bool {
	return c.session.IsOpen()
}

// Connect checks for a card and establishes the secure channel. It is the
// entry point of the state machine: on any failure the session is cleared,
// the state returns to idle, and the error is returned.
func (c *SecureChannel) Connect() error {
	if !c.transport.IsCardPresent() {
		return c.fail(ErrNoCard)
	}
	return c.EstablishSecureChannel()
}

// EstablishSecureChannel runs the four-step handshake: SELECT, GET CARD
// CERTIFICATE, OPEN SECURE CHANNEL, MUTUALLY AUTHENTICATE. On success the
// session holds kEnc/kMac and the first rolling IV, and the channel is in
// StateAuthenticated.
func (c *SecureChannel) EstablishSecureChannel() error {
	c.session.Clear()
	c.state = StateIdle

	// SELECT the wallet application. A card that answers the reader but
	// rejects the AID is not a Cryptnox card.
	selResp, sw1, sw2, err := c.transmit("select", selectAPDU())
	if err != nil {
		return c.fail(err)
	}
	if !swOK(sw1, sw2) {
		return c.fail(fmt.Errorf("%w: SW=0x%02X%02X", ErrCardNotSupported, sw1, sw2))
	}
	c.FCI = parseFCI(selResp)
	c.state = StateSelected

	// Fetch the card's ephemeral key, bound to a fresh host nonce.
	nonce := make([]byte, hostNonceLength)
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return c.fail(fmt.Errorf("%w: %v", ErrRngFailure, err))
	}
	certResp, sw1, sw2, err := c.transmit("get card certificate", getCardCertificateAPDU(nonce))
	if err != nil {
		return c.fail(err)
	}
	if !swOK(sw1, sw2) {
		return c.fail(&SWError{Ins: insGetCardCertificate, SW: uint16(sw1)<<8 | uint16(sw2)})
	}
	cert, err := parseCardCertificate(certResp, nonce)
	if err != nil {
		return c.fail(err)
	}
	c.state = StateCertReceived

	// Host ephemeral keypair for this channel.
	hostKey, err := generateEphemeralKey(c.random)
	if err != nil {
		return c.fail(err)
	}

	// OPEN SECURE CHANNEL returns the 32-byte derivation salt.
	opcResp, sw1, sw2, err := c.transmit("open secure channel", openSecureChannelAPDU(hostKey.PublicKey().Bytes()))
	if err != nil {
		return c.fail(err)
	}
	if !swOK(sw1, sw2) {
		return c.fail(&SWError{Ins: insOpenSecureChannel, SW: uint16(sw1)<<8 | uint16(sw2)})
	}
	if len(opcResp) != openChannelSaltLength {
		return c.fail(&LengthError{Ins: insOpenSecureChannel, Expected: openChannelSaltLength, Actual: len(opcResp)})
	}
	c.state = StateOPCSent

	z, err := sharedSecret(hostKey, cert.EphemeralPub[:])
	if err != nil {
		return c.fail(err)
	}
	kEnc, kMac := deriveSessionKeys(z, opcResp)
	zeroize(z)

	err = c.mutuallyAuthenticate(kEnc, kMac)
	zeroize(kEnc[:])
	zeroize(kMac[:])
	if err != nil {
		return c.fail(err)
	}
	c.state = StateAuthenticated
	c.sink.Println("secure channel established")
	return nil
}

// mutuallyAuthenticate proves key possession to the card: 32 random bytes
// wrapped with the derived keys under the fixed initial IV. The first 16
// bytes of the response MAC become the rolling IV. On success the channel
// session is installed.
func (c *SecureChannel) mutuallyAuthenticate(kEnc, kMac [32]byte) error {
	challenge := make([]byte, 32)
	if _, err := io.ReadFull(c.random, challenge); err != nil {
		return fmt.Errorf("%w: %v", ErrRngFailure, err)
	}
	defer zeroize(challenge)

	// The mutual-auth APDU is the secure-messaging wrapper applied with
	// the initial IV instead of a rolling one.
	bootstrap := Session{}
	bootstrap.Install(kEnc, kMac, opcInitialIV[:])
	defer bootstrap.Clear()

	hdr := [4]byte{claCryptnox, insMutuallyAuthenticate, 0x00, 0x00}
	apdu, _, err := buildSecureAPDU(&bootstrap, hdr, challenge)
	if err != nil {
		return err
	}

	resp, sw1, sw2, err := c.transmit("mutually authenticate", apdu)
	if err != nil {
		return err
	}
	if !swOK(sw1, sw2) {
		return &SWError{Ins: insMutuallyAuthenticate, SW: uint16(sw1)<<8 | uint16(sw2)}
	}
	if len(resp) != mutualAuthResponseLength {
		return &LengthError{Ins: insMutuallyAuthenticate, Expected: mutualAuthResponseLength, Actual: len(resp)}
	}

	c.session.Install(kEnc, kMac, resp[:blockSize])
	return nil
}

// SendSecureCommand wraps data for the given 4-byte header, transmits it,
// and verifies and decrypts the response. The returned status word is the
// card's; a non-9000 status with a valid MAC is not an error at this layer
// and leaves the session open with the IV rolled. Cryptographic and
// transport failures clear the session before returning.
func (c *SecureChannel) SendSecureCommand(hdr [4]byte, data []byte) ([]byte, byte, byte, error) {
	if !c.session.IsOpen() {
		return nil, 0, 0, ErrSessionClosed
	}

	apdu, sentMAC, err := buildSecureAPDU(&c.session, hdr, data)
	if err != nil {
		// Nothing was transmitted; the session state is untouched.
		return nil, 0, 0, err
	}

	resp, sw1, sw2, err := c.transmit("secure command", apdu)
	if err != nil {
		return nil, 0, 0, c.fail(err)
	}

	body, err := openSecureResponse(&c.session, sentMAC, resp, hdr[1])
	if err != nil {
		return nil, 0, 0, c.fail(err)
	}
	return body, sw1, sw2, nil
}

// VerifyPIN sends the card PIN over the secure channel. A wrong PIN surfaces
// as *AppStatusError (typically 63CX with the retry counter in the low
// nibble) with the session still open.
func (c *SecureChannel) VerifyPIN(pin string) error {
	if len(pin) == 0 || len(pin) > 8 {
		return fmt.Errorf("PIN of %d bytes: %w", len(pin), ErrInvalidLength)
	}

	pinBytes := []byte(pin)
	defer zeroize(pinBytes)

	body, sw1, sw2, err := c.SendSecureCommand(verifyPINHeader, pinBytes)
	if err != nil {
		return err
	}
	if !swOK(sw1, sw2) {
		return &AppStatusError{SW1: sw1, SW2: sw2, Body: body}
	}
	return nil
}

// GetCardInfo retrieves and decodes the card information record over the
// secure channel.
func (c *SecureChannel) GetCardInfo() (*CardInfo, error) {
	body, sw1, sw2, err := c.SendSecureCommand(getCardInfoHeader, []byte{0x00})
	if err != nil {
		return nil, err
	}
	if !swOK(sw1, sw2) {
		return nil, &AppStatusError{SW1: sw1, SW2: sw2, Body: body}
	}
	return parseCardInfo(body), nil
}

// Disconnect zeroizes the session and resets the reader. Disconnecting an
// already-closed channel is a no-op.
func (c *SecureChannel) Disconnect() error {
	if c.state == StateIdle && !c.session.IsOpen() {
		return nil
	}
	c.session.Clear()
	c.state = StateIdle
	return c.transport.ResetReader()
}

// fail clears the session on a fatal error and returns the channel to idle.
func (c *SecureChannel) fail(err error) error {
	c.session.Clear()
	c.state = StateIdle
	return err
}

// transmit sends one APDU and splits the response, mapping transport
// failures to *TransportError. The exchange is dumped to the debug sink.
func (c *SecureChannel) transmit(op string, apdu []byte) ([]byte, byte, byte, error) {
	c.sink.PrintHex("> "+op, apdu)
	resp, sw1, sw2, err := c.transport.SendAPDU(apdu)
	if err != nil {
		return nil, 0, 0, &TransportError{Op: op, Err: err}
	}
	c.sink.PrintHex(fmt.Sprintf("< %s SW=%02X%02X", op, sw1, sw2), resp)
	return resp, sw1, sw2, nil
}
