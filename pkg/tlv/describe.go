package tlv

import (
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// Describe renders raw BER-TLV data as an indented tree for debug output.
// Undecodable input falls back to a plain hex dump.
func Describe(data []byte) string {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Sprintf("(not BER-TLV: %v) %X", err, data)
	}

	var sb strings.Builder
	describePackets(&sb, packets, 0)
	return sb.String()
}

func describePackets(sb *strings.Builder, packets []bertlv.TLV, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, p := range packets {
		if len(p.TLVs) > 0 {
			sb.WriteString(fmt.Sprintf("%s%s (constructed)\n", indent, strings.ToUpper(p.Tag)))
			describePackets(sb, p.TLVs, depth+1)
			continue
		}
		sb.WriteString(fmt.Sprintf("%s%s [%d] %X (%q)\n",
			indent, strings.ToUpper(p.Tag), len(p.Value), p.Value, MakeSafeASCII(p.Value)))
	}
}

// MakeSafeASCII maps non-printable bytes to '.' for display.
func MakeSafeASCII(data []byte) string {
	return strings.Map(func(r rune) rune {
		if r >= 32 && r <= 126 {
			return r
		}
		return '.'
	}, string(data))
}
