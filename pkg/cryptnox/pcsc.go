package cryptnox

import (
	"fmt"

	"github.com/ebfe/scard"
)

// PCSCTransport adapts a PC/SC reader to the Transport contract. The
// contactless readers this package targets (PN532 family and similar)
// present the card through the platform PC/SC stack.
type PCSCTransport struct {
	ctx    *scard.Context
	card   *scard.Card
	reader string
}

// NewPCSCTransport connects to the reader at the given index.
func NewPCSCTransport(readerIndex int) (*PCSCTransport, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("EstablishContext failed: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		ctx.Release()
		return nil, fmt.Errorf("no readers found: %v", err)
	}
	if readerIndex < 0 || readerIndex >= len(readers) {
		ctx.Release()
		return nil, fmt.Errorf("reader index out of range (0..%d)", len(readers)-1)
	}

	t := &PCSCTransport{ctx: ctx, reader: readers[readerIndex]}
	// A missing card here is not an error; IsCardPresent retries.
	t.card, _ = ctx.Connect(t.reader, scard.ShareShared, scard.ProtocolAny)
	return t, nil
}

// Reader returns the PC/SC name of the connected reader.
func (t *PCSCTransport) Reader() string { return t.reader }

// SendAPDU transmits one command APDU and splits the trailing status word
// off the response.
func (t *PCSCTransport) SendAPDU(cmd []byte) ([]byte, byte, byte, error) {
	if t.card == nil && !t.connect() {
		return nil, 0, 0, fmt.Errorf("no card connection")
	}
	resp, err := t.card.Transmit(cmd)
	if err != nil {
		return nil, 0, 0, err
	}
	if len(resp) < 2 {
		return nil, 0, 0, fmt.Errorf("short response: %d bytes", len(resp))
	}
	return resp[:len(resp)-2], resp[len(resp)-2], resp[len(resp)-1], nil
}

// IsCardPresent reports whether a card currently answers in the reader
// field, reconnecting if the previous connection went away.
func (t *PCSCTransport) IsCardPresent() bool {
	if t.card != nil {
		if _, err := t.card.Status(); err == nil {
			return true
		}
		_ = t.card.Disconnect(scard.LeaveCard)
		t.card = nil
	}
	return t.connect()
}

// ResetReader drops the card connection with a warm reset. Idempotent and
// safe to call without a card.
func (t *PCSCTransport) ResetReader() error {
	if t.card == nil {
		return nil
	}
	err := t.card.Disconnect(scard.ResetCard)
	t.card = nil
	return err
}

// Close releases the PC/SC context.
func (t *PCSCTransport) Close() {
	if t == nil {
		return
	}
	if t.card != nil {
		_ = t.card.Disconnect(scard.LeaveCard)
		t.card = nil
	}
	if t.ctx != nil {
		_ = t.ctx.Release()
		t.ctx = nil
	}
}

func (t *PCSCTransport) connect() bool {
	card, err := t.ctx.Connect(t.reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return false
	}
	t.card = card
	return true
}
