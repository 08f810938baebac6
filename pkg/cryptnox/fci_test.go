package cryptnox

import (
	"bytes"
	"testing"
)

func TestParseFCI(t *testing.T) {
	data := []byte{0x6F, 0x15}
	data = append(data, 0x84, 0x07)
	data = append(data, walletAID...)
	data = append(data, 0xA5, 0x0A, 0x50, 0x08)
	data = append(data, []byte("Cryptnox")...)

	fci := parseFCI(data)
	if !bytes.Equal(fci.DFName, walletAID) {
		t.Errorf("DF name = % X", fci.DFName)
	}
	if fci.Label != "Cryptnox" {
		t.Errorf("label = %q", fci.Label)
	}
	if len(fci.TLVs) != 2 {
		t.Errorf("decoded %d template entries, want 2", len(fci.TLVs))
	}
}

func TestParseFCINonTLVKeptRaw(t *testing.T) {
	data := []byte{0x84, 0xFF, 0x00} // length runs past the buffer
	fci := parseFCI(data)
	if fci.TLVs != nil {
		t.Error("malformed FCI decoded unexpectedly")
	}
	if !bytes.Equal(fci.Raw, data) {
		t.Error("raw payload not preserved")
	}
}

func TestParseFCIEmpty(t *testing.T) {
	fci := parseFCI(nil)
	if fci.TLVs != nil || len(fci.Raw) != 0 || fci.Label != "" {
		t.Errorf("unexpected decode of empty FCI: %+v", fci)
	}
}
