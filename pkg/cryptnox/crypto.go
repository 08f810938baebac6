package cryptnox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"
)

const blockSize = 16

// pairingData is the fixed common pairing secret for the "Basic" device
// class, mixed into session key derivation. Exactly 32 ASCII bytes.
const pairingData = "Cryptnox Basic CommonPairingData"

func aesCBCEncrypt(key, iv, data []byte) ([]byte, error) {
	if len(data)%blockSize != 0 {
		return nil, fmt.Errorf("CBC encrypt: %w", ErrInvalidLength)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

func aesCBCDecrypt(key, iv, data []byte) ([]byte, error) {
	if len(data)%blockSize != 0 {
		return nil, fmt.Errorf("CBC decrypt: %w", ErrInvalidLength)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// aesCBCMAC computes an ISO 9797-1 MAC algorithm 1 tag: CBC-encrypt the
// input under the MAC key with an all-zero IV and return the final block.
// The input must already be block aligned; the secure-messaging layer pads
// its MAC inputs with explicit zeros, not ISO padding.
func aesCBCMAC(key, data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("CBC-MAC: %w", ErrInvalidLength)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, make([]byte, blockSize)).CryptBlocks(out, data)
	mac := make([]byte, blockSize)
	copy(mac, out[len(out)-blockSize:])
	zeroize(out)
	return mac, nil
}

// padISO9797M2 applies ISO/IEC 9797-1 Method 2 bit padding: append 0x80 and
// zero-fill to the next block boundary. Input already on a boundary still
// gains a full padding block.
func padISO9797M2(data []byte) []byte {
	padLen := blockSize - (len(data) % blockSize)
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	out[len(data)] = 0x80
	return out
}

func unpadISO9797M2(data []byte) ([]byte, error) {
	idx := len(data) - 1
	for idx >= 0 && data[idx] == 0x00 {
		idx--
	}
	if idx < 0 || data[idx] != 0x80 {
		return nil, errors.New("bad padding")
	}
	return data[:idx], nil
}

// deriveSessionKeys computes the session keys from the ECDH shared secret
// and the card salt: SHA-512(z || pairing || salt), split in half.
func deriveSessionKeys(shared, salt []byte) (kEnc, kMac [32]byte) {
	md := sha512.New()
	md.Write(shared)
	md.Write([]byte(pairingData))
	md.Write(salt)
	digest := md.Sum(nil)
	copy(kEnc[:], digest[:32])
	copy(kMac[:], digest[32:64])
	zeroize(digest)
	return kEnc, kMac
}

// generateEphemeralKey produces a single-use P-256 keypair from the given
// random source.
func generateEphemeralKey(random io.Reader) (*ecdh.PrivateKey, error) {
	key, err := ecdh.P256().GenerateKey(random)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRngFailure, err)
	}
	return key, nil
}

// sharedSecret runs ECDH between the host ephemeral private key and the
// card's uncompressed public key (0x04 || X || Y) and returns the 32-byte X
// coordinate of the shared point.
func sharedSecret(priv *ecdh.PrivateKey, cardPub []byte) ([]byte, error) {
	pub, err := ecdh.P256().NewPublicKey(cardPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEcdhFailure, err)
	}
	z, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEcdhFailure, err)
	}
	return z, nil
}

func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
