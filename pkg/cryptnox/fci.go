package cryptnox

import (
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// FCI is a best-effort view of the File Control Information returned by the
// wallet SELECT. The secure channel does not depend on it; it is kept for
// diagnostics only, so a payload that does not decode as BER-TLV is retained
// raw.
type FCI struct {
	Raw    []byte
	DFName []byte // tag 84, usually the AID
	Label  string // tag 50 inside the proprietary template A5
	TLVs   []bertlv.TLV
}

// parseFCI never fails; decode problems leave only Raw populated.
func parseFCI(data []byte) *FCI {
	fci := &FCI{Raw: append([]byte(nil), data...)}
	if len(data) == 0 {
		return fci
	}

	packets, err := bertlv.Decode(data)
	if err != nil {
		return fci
	}
	if len(packets) > 0 && strings.EqualFold(packets[0].Tag, "6F") {
		packets = packets[0].TLVs
	}
	fci.TLVs = packets

	for _, p := range packets {
		switch strings.ToUpper(p.Tag) {
		case "84":
			fci.DFName = p.Value
		case "A5":
			for _, child := range p.TLVs {
				if strings.EqualFold(child.Tag, "50") {
					fci.Label = string(child.Value)
				}
			}
		}
	}
	return fci
}

// Describe renders the FCI for human consumption.
func (f *FCI) Describe() string {
	var sb strings.Builder
	sb.WriteString("SELECT FCI:\n")
	if f.TLVs == nil {
		fmt.Fprintf(&sb, "  raw: %s\n", hexUpper(f.Raw))
		return sb.String()
	}
	if len(f.DFName) > 0 {
		fmt.Fprintf(&sb, "  DF name: %s\n", hexUpper(f.DFName))
	}
	if f.Label != "" {
		fmt.Fprintf(&sb, "  label:   %s\n", f.Label)
	}
	for _, t := range f.TLVs {
		fmt.Fprintf(&sb, "  tag %s: %s\n", strings.ToUpper(t.Tag), hexUpper(t.Value))
	}
	return sb.String()
}
