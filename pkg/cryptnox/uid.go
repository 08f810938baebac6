package cryptnox

import "fmt"

// GetUID retrieves the card UID via the contactless GET DATA command
// (FF CA 00 00). Useful for identifying non-ISO-DEP tags that cannot run the
// wallet application. Tries the wildcard Le first, then the common 4-byte
// UID length.
func GetUID(t Transport) ([]byte, error) {
	for _, le := range []byte{0x00, 0x04} {
		apdu := []byte{0xFF, 0xCA, 0x00, 0x00, le}
		data, sw1, sw2, err := t.SendAPDU(apdu)
		if err == nil && swOK(sw1, sw2) && len(data) > 0 {
			return data, nil
		}
	}
	return nil, fmt.Errorf("UID not available via GET DATA")
}
