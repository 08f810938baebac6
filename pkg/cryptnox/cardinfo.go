package cryptnox

import (
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// CardInfo is the decoded GET CARD INFO record. The card encodes it as
// BER-TLV; known tags are lifted into fields and the full list is kept for
// callers that need more. A body that does not decode leaves only Raw set.
//
// Known tags:
//
//	80  serial number
//	81  applet version (major, minor, patch)
//	82  remaining PIN tries
type CardInfo struct {
	Raw           []byte
	SerialNumber  []byte
	AppletVersion string
	PINTries      int // -1 when absent
	TLVs          []bertlv.TLV
}

func parseCardInfo(body []byte) *CardInfo {
	info := &CardInfo{Raw: append([]byte(nil), body...), PINTries: -1}
	if len(body) == 0 {
		return info
	}

	packets, err := bertlv.Decode(body)
	if err != nil {
		return info
	}
	info.TLVs = packets

	for _, p := range packets {
		switch strings.ToUpper(p.Tag) {
		case "80":
			info.SerialNumber = p.Value
		case "81":
			if len(p.Value) == 3 {
				info.AppletVersion = fmt.Sprintf("%d.%d.%d", p.Value[0], p.Value[1], p.Value[2])
			}
		case "82":
			if len(p.Value) == 1 {
				info.PINTries = int(p.Value[0])
			}
		}
	}
	return info
}

// Describe renders the card information for human consumption.
func (ci *CardInfo) Describe() string {
	var sb strings.Builder
	sb.WriteString("Card info:\n")
	if ci.TLVs == nil {
		fmt.Fprintf(&sb, "  raw: %s\n", hexUpper(ci.Raw))
		return sb.String()
	}
	if len(ci.SerialNumber) > 0 {
		fmt.Fprintf(&sb, "  serial:         %s\n", hexUpper(ci.SerialNumber))
	}
	if ci.AppletVersion != "" {
		fmt.Fprintf(&sb, "  applet version: %s\n", ci.AppletVersion)
	}
	if ci.PINTries >= 0 {
		fmt.Fprintf(&sb, "  PIN tries left: %d\n", ci.PINTries)
	}
	return sb.String()
}
