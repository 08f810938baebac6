package cryptnox

import (
	"bytes"
	"errors"
	"testing"
)

func testSession(t *testing.T) *Session {
	t.Helper()
	var kEnc, kMac [32]byte
	for i := range kEnc {
		kEnc[i] = byte(i)
		kMac[i] = byte(0xFF - i)
	}
	s := &Session{}
	s.Install(kEnc, kMac, bytes.Repeat([]byte{0x11}, 16))
	return s
}

func TestBuildSecureAPDULayout(t *testing.T) {
	// VERIFY PIN "1234": one padded block of ciphertext.
	s := testSession(t)
	iv := append([]byte(nil), s.iv[:]...)

	apdu, sentMAC, err := buildSecureAPDU(s, verifyPINHeader, []byte("1234"))
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if len(apdu) != 5+16+16 {
		t.Fatalf("APDU length %d, expected 37", len(apdu))
	}
	if !bytes.Equal(apdu[:4], []byte{0x80, 0x20, 0x00, 0x00}) {
		t.Errorf("header mismatch: % X", apdu[:4])
	}
	if apdu[4] != 0x20 {
		t.Errorf("Lc = 0x%02X, expected 0x20 (ciphertext+MAC)", apdu[4])
	}

	wantCipher, err := aesCBCEncrypt(s.kEnc[:], iv, padISO9797M2([]byte("1234")))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(apdu[21:], wantCipher) {
		t.Error("ciphertext mismatch")
	}

	macIn := make([]byte, 16+len(wantCipher))
	copy(macIn, []byte{0x80, 0x20, 0x00, 0x00, 0x20})
	copy(macIn[16:], wantCipher)
	wantMAC, err := aesCBCMAC(s.kMac[:], macIn)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(apdu[5:21], wantMAC) {
		t.Error("MAC mismatch")
	}
	if !bytes.Equal(sentMAC, wantMAC) {
		t.Error("returned MAC differs from transmitted MAC")
	}

	// Building does not touch the rolling IV.
	if !bytes.Equal(s.iv[:], iv) {
		t.Error("build mutated the rolling IV")
	}
}

func TestBuildSecureAPDURejectsClosedSession(t *testing.T) {
	var s Session
	if _, _, err := buildSecureAPDU(&s, verifyPINHeader, []byte("1234")); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestBuildSecureAPDURejectsOversizedPayload(t *testing.T) {
	s := testSession(t)
	if _, _, err := buildSecureAPDU(s, getCardInfoHeader, make([]byte, maxSecurePlaintext+1)); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength, got %v", err)
	}
	// The boundary payload still fits the one-byte Lc.
	if _, _, err := buildSecureAPDU(s, getCardInfoHeader, make([]byte, maxSecurePlaintext)); err != nil {
		t.Errorf("boundary payload rejected: %v", err)
	}
}

// cardReply mirrors what the card does with a response body: encrypt under
// the sent MAC, authenticate under the length block.
func cardReply(t *testing.T, s *Session, sentMAC, body []byte) []byte {
	t.Helper()
	var ciphertext []byte
	if len(body) > 0 {
		var err error
		ciphertext, err = aesCBCEncrypt(s.kEnc[:], sentMAC, padISO9797M2(body))
		if err != nil {
			t.Fatal(err)
		}
	}
	macIn := make([]byte, 16+len(ciphertext))
	macIn[0] = byte(len(ciphertext))
	copy(macIn[16:], ciphertext)
	mac, err := aesCBCMAC(s.kMac[:], macIn)
	if err != nil {
		t.Fatal(err)
	}
	return append(mac, ciphertext...)
}

func TestSecureWrapperRoundTrip(t *testing.T) {
	s := testSession(t)
	payload := []byte("get card info please")

	_, sentMAC, err := buildSecureAPDU(s, getCardInfoHeader, []byte{0x00})
	if err != nil {
		t.Fatal(err)
	}

	resp := cardReply(t, s, sentMAC, payload)
	body, err := openSecureResponse(s, sentMAC, resp, insGetCardInfo)
	if err != nil {
		t.Fatalf("open response: %v", err)
	}
	if !bytes.Equal(body, payload) {
		t.Errorf("body mismatch: got % X", body)
	}
	if !bytes.Equal(s.iv[:], resp[:16]) {
		t.Error("rolling IV not set to response MAC")
	}
}

func TestOpenSecureResponseEmptyBody(t *testing.T) {
	s := testSession(t)
	_, sentMAC, err := buildSecureAPDU(s, verifyPINHeader, []byte("1234"))
	if err != nil {
		t.Fatal(err)
	}

	resp := cardReply(t, s, sentMAC, nil)
	if len(resp) != 16 {
		t.Fatalf("expected MAC-only response, got %d bytes", len(resp))
	}
	body, err := openSecureResponse(s, sentMAC, resp, insVerifyPIN)
	if err != nil {
		t.Fatalf("open response: %v", err)
	}
	if len(body) != 0 {
		t.Errorf("expected empty body, got % X", body)
	}
	if !bytes.Equal(s.iv[:], resp[:16]) {
		t.Error("rolling IV not set to response MAC")
	}
}

func TestOpenSecureResponseMACBeforeDecrypt(t *testing.T) {
	s := testSession(t)
	_, sentMAC, err := buildSecureAPDU(s, getCardInfoHeader, []byte{0x00})
	if err != nil {
		t.Fatal(err)
	}
	resp := cardReply(t, s, sentMAC, []byte("secret record"))
	resp[20] ^= 0x01 // flip one ciphertext byte

	decryptCalled := false
	orig := cbcDecrypt
	cbcDecrypt = func(key, iv, data []byte) ([]byte, error) {
		decryptCalled = true
		return orig(key, iv, data)
	}
	defer func() { cbcDecrypt = orig }()

	ivBefore := s.iv
	_, err = openSecureResponse(s, sentMAC, resp, insGetCardInfo)
	if !errors.Is(err, ErrMacMismatch) {
		t.Fatalf("expected ErrMacMismatch, got %v", err)
	}
	if decryptCalled {
		t.Error("decrypt ran on a response with a bad MAC")
	}
	if s.iv != ivBefore {
		t.Error("rolling IV changed on MAC failure")
	}
}

func TestOpenSecureResponseLengthChecks(t *testing.T) {
	s := testSession(t)
	sentMAC := make([]byte, 16)

	var lenErr *LengthError
	if _, err := openSecureResponse(s, sentMAC, make([]byte, 10), insGetCardInfo); !errors.As(err, &lenErr) {
		t.Errorf("short response: expected LengthError, got %v", err)
	}
	if _, err := openSecureResponse(s, sentMAC, make([]byte, 16+20), insGetCardInfo); !errors.As(err, &lenErr) {
		t.Errorf("unaligned ciphertext: expected LengthError, got %v", err)
	}
}
