package cryptnox

// Wallet APDU instruction bytes.
const (
	claISO      = 0x00
	claCryptnox = 0x80

	insSelect               = 0xA4
	insGetCardCertificate   = 0xF8
	insOpenSecureChannel    = 0x10
	insMutuallyAuthenticate = 0x11
	insVerifyPIN            = 0x20
	insGetCardInfo          = 0xFA
)

// walletAID is the 7-byte Cryptnox wallet application identifier.
var walletAID = []byte{0xA0, 0x00, 0x00, 0x10, 0x00, 0x01, 0x12}

// Host nonce length and fixed response payload lengths (excluding SW1 SW2).
// The card never chains responses, so the response lengths are exact.
const (
	hostNonceLength          = 8
	certificateLength        = 146
	openChannelSaltLength    = 32
	mutualAuthResponseLength = 64
)

// Secure-messaging headers for the application commands.
var (
	verifyPINHeader   = [4]byte{claCryptnox, insVerifyPIN, 0x00, 0x00}
	getCardInfoHeader = [4]byte{claCryptnox, insGetCardInfo, 0x00, 0x00}
)

func selectAPDU() []byte {
	apdu := make([]byte, 0, 5+len(walletAID))
	apdu = append(apdu, claISO, insSelect, 0x04, 0x00, byte(len(walletAID)))
	return append(apdu, walletAID...)
}

func getCardCertificateAPDU(nonce []byte) []byte {
	apdu := make([]byte, 0, 5+len(nonce))
	apdu = append(apdu, claCryptnox, insGetCardCertificate, 0x00, 0x00, byte(len(nonce)))
	return append(apdu, nonce...)
}

// openSecureChannelAPDU carries the host ephemeral public key in uncompressed
// form (0x04 || X || Y, 65 bytes).
func openSecureChannelAPDU(hostPub []byte) []byte {
	apdu := make([]byte, 0, 5+len(hostPub))
	apdu = append(apdu, claCryptnox, insOpenSecureChannel, 0x00, 0x00, byte(len(hostPub)))
	return append(apdu, hostPub...)
}
