package cryptnox

import (
	"bytes"
	"fmt"
)

// CardCertificate is the response to GET CARD CERTIFICATE: the card's
// ephemeral public key for this session, bound to the host nonce and signed
// by the card's permanent key.
//
// Layout (146 bytes):
//
//	[0]       format byte, always 'C'
//	[1..9]    host nonce, echoed
//	[9..74]   uncompressed ephemeral public key (0x04 || X || Y)
//	[74..146] DER ECDSA signature over bytes [0..74] (70-72 bytes)
//
// The signature is retained but not verified; validating it against the
// Cryptnox certificate chain is a hardening step outside this package's
// interoperability baseline.
type CardCertificate struct {
	FormatID     byte
	Nonce        [8]byte
	EphemeralPub [65]byte
	Signature    []byte
}

const certFormatID = 'C'

// parseCardCertificate validates the certificate format and the nonce echo
// and extracts the card's ephemeral public key.
func parseCardCertificate(resp, nonce []byte) (*CardCertificate, error) {
	if len(resp) != certificateLength {
		return nil, &LengthError{Ins: insGetCardCertificate, Expected: certificateLength, Actual: len(resp)}
	}
	if resp[0] != certFormatID {
		return nil, fmt.Errorf("%w: format byte 0x%02X", ErrInvalidCertificate, resp[0])
	}
	if !bytes.Equal(resp[1:9], nonce) {
		return nil, fmt.Errorf("%w: nonce echo mismatch", ErrInvalidCertificate)
	}
	if resp[9] != 0x04 {
		return nil, fmt.Errorf("%w: ephemeral key marker 0x%02X", ErrInvalidCertificate, resp[9])
	}

	cert := &CardCertificate{FormatID: resp[0]}
	copy(cert.Nonce[:], resp[1:9])
	copy(cert.EphemeralPub[:], resp[9:74])

	// The signature field is zero-padded to 72 bytes; trim to the DER
	// length when the encoding is well formed.
	sig := resp[74:]
	if sig[0] == 0x30 && int(sig[1])+2 <= len(sig) {
		sig = sig[:int(sig[1])+2]
	}
	cert.Signature = append([]byte(nil), sig...)
	return cert, nil
}
