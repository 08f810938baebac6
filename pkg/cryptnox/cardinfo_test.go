package cryptnox

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseCardInfo(t *testing.T) {
	body := []byte{
		0x80, 0x04, 0xDE, 0xAD, 0xBE, 0xEF,
		0x81, 0x03, 0x01, 0x02, 0x02,
		0x82, 0x01, 0x03,
	}

	info := parseCardInfo(body)

	if diff := cmp.Diff([]byte{0xDE, 0xAD, 0xBE, 0xEF}, info.SerialNumber); diff != "" {
		t.Errorf("serial mismatch (-want +got):\n%s", diff)
	}
	if info.AppletVersion != "1.2.2" {
		t.Errorf("applet version = %q", info.AppletVersion)
	}
	if info.PINTries != 3 {
		t.Errorf("PIN tries = %d", info.PINTries)
	}
	if len(info.TLVs) != 3 {
		t.Errorf("decoded %d TLVs, want 3", len(info.TLVs))
	}
}

func TestParseCardInfoEmptyBody(t *testing.T) {
	info := parseCardInfo(nil)
	if info.TLVs != nil || len(info.Raw) != 0 {
		t.Errorf("unexpected decode of empty body: %+v", info)
	}
	if info.PINTries != -1 {
		t.Errorf("PIN tries = %d, want -1 (absent)", info.PINTries)
	}
}

func TestParseCardInfoNonTLVBodyKeptRaw(t *testing.T) {
	body := []byte{0x80, 0x05, 0x01} // length runs past the buffer
	info := parseCardInfo(body)
	if info.TLVs != nil {
		t.Error("truncated TLV decoded unexpectedly")
	}
	if diff := cmp.Diff(body, info.Raw); diff != "" {
		t.Errorf("raw body not preserved (-want +got):\n%s", diff)
	}
}
