package cryptnox

import (
	"encoding/hex"
	"log/slog"
	"strings"
)

// Transport abstracts the APDU channel to the card for real readers and test
// doubles. SendAPDU blocks until the card answers or the exchange fails; the
// returned response excludes the trailing SW1 SW2 bytes.
type Transport interface {
	SendAPDU(cmd []byte) (resp []byte, sw1, sw2 byte, err error)
	IsCardPresent() bool
	ResetReader() error
}

// Sink receives debug output. Implementations that discard everything are
// valid; the protocol engine never depends on observable output.
type Sink interface {
	Println(msg string)
	PrintHex(label string, data []byte)
}

// DiscardSink drops all debug output.
type DiscardSink struct{}

func (DiscardSink) Println(string)          {}
func (DiscardSink) PrintHex(string, []byte) {}

// SlogSink forwards debug output to the default slog logger at debug level.
type SlogSink struct{}

func (SlogSink) Println(msg string) {
	slog.Debug(msg)
}

func (SlogSink) PrintHex(label string, data []byte) {
	slog.Debug(label, "bytes", hexUpper(data), "len", len(data))
}

func hexUpper(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
