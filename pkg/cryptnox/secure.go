package cryptnox

import (
	"crypto/hmac"
	"fmt"
)

// maxSecurePlaintext bounds the payload of a secure command. The transmitted
// Lc (ciphertext plus 16-byte MAC) is a single byte, so the padded
// ciphertext is capped at 224 bytes and the plaintext at one byte less.
const maxSecurePlaintext = 223

// cbcDecrypt is an indirection over the response decryption primitive so
// tests can observe that tampered responses never reach the decrypt path.
var cbcDecrypt = aesCBCDecrypt

// buildSecureAPDU wraps a plaintext command into the secure-messaging
// format:
//
//	CLA INS P1 P2 Lc MAC(16) C
//
// where C is the bit-padded AES-CBC encryption of data under the session
// rolling IV and MAC covers the header block (header and Lc zero-padded to
// 16 bytes) followed by C. The returned mac is the sent MAC, needed later as
// the decryption IV for the response.
func buildSecureAPDU(sess *Session, hdr [4]byte, data []byte) (apdu, mac []byte, err error) {
	if !sess.IsOpen() {
		return nil, nil, ErrSessionClosed
	}
	if len(data) > maxSecurePlaintext {
		return nil, nil, fmt.Errorf("secure command payload of %d bytes: %w", len(data), ErrInvalidLength)
	}

	padded := padISO9797M2(data)
	defer zeroize(padded)

	ciphertext, err := aesCBCEncrypt(sess.kEnc[:], sess.iv[:], padded)
	if err != nil {
		return nil, nil, err
	}

	lc := byte(len(ciphertext) + blockSize)

	// MAC input: header block (CLA INS P1 P2 Lc, zero-filled to 16) || C.
	macIn := make([]byte, blockSize+len(ciphertext))
	copy(macIn, hdr[:])
	macIn[4] = lc
	copy(macIn[blockSize:], ciphertext)
	defer zeroize(macIn)

	mac, err = aesCBCMAC(sess.kMac[:], macIn)
	if err != nil {
		return nil, nil, err
	}

	apdu = make([]byte, 0, 5+blockSize+len(ciphertext))
	apdu = append(apdu, hdr[:]...)
	apdu = append(apdu, lc)
	apdu = append(apdu, mac...)
	apdu = append(apdu, ciphertext...)
	return apdu, mac, nil
}

// openSecureResponse verifies and decrypts a secure-messaging response
// MAC'(16) || C'. The MAC is checked before any decryption; the ciphertext
// is decrypted with the *sent* MAC as IV, while the *received* MAC becomes
// the next rolling IV. A zero-length ciphertext is legal and yields an empty
// body.
func openSecureResponse(sess *Session, sentMAC, resp []byte, ins byte) ([]byte, error) {
	if len(resp) < blockSize {
		return nil, &LengthError{Ins: ins, Expected: blockSize, Actual: len(resp)}
	}
	respMAC := resp[:blockSize]
	ciphertext := resp[blockSize:]
	if len(ciphertext)%blockSize != 0 {
		return nil, &LengthError{Ins: ins, Expected: blockSize + (len(ciphertext)/blockSize+1)*blockSize, Actual: len(resp)}
	}

	// MAC input: length block (len(C') zero-padded to 16) || C'.
	macIn := make([]byte, blockSize+len(ciphertext))
	macIn[0] = byte(len(ciphertext))
	copy(macIn[blockSize:], ciphertext)
	defer zeroize(macIn)

	computed, err := aesCBCMAC(sess.kMac[:], macIn)
	if err != nil {
		return nil, err
	}
	if !hmac.Equal(computed, respMAC) {
		return nil, ErrMacMismatch
	}

	var body []byte
	if len(ciphertext) > 0 {
		plain, err := cbcDecrypt(sess.kEnc[:], sentMAC, ciphertext)
		if err != nil {
			return nil, err
		}
		body, err = unpadISO9797M2(plain)
		if err != nil {
			zeroize(plain)
			return nil, fmt.Errorf("secure response: %w", err)
		}
	}

	sess.RollIV(respMAC)
	return body, nil
}
