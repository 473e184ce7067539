package iso7816

import (
	"fmt"

	"github.com/qudamyker/eidreader/pkg/bits"
)

// Instruction byte (INS) per ISO/IEC 7816-4.
//
// Values with an upper nibble of '6' or '9' are reserved for status words
// and transport control (ISO 7816-3) and are invalid as instructions. For
// interindustry commands, bit 1 distinguishes the plain encoding from the
// BER-TLV variant (e.g. READ BINARY 0xB0 vs 0xB1).

// InsCode is a typed instruction byte.
type InsCode byte

// Instruction codes used by an eMRTD reader (ISO/IEC 7816-4).
const (
	INS_EXTERNAL_AUTHENTICATE InsCode = 0x82
	INS_GET_CHALLENGE         InsCode = 0x84
	INS_INTERNAL_AUTHENTICATE InsCode = 0x88
	INS_SELECT                InsCode = 0xA4
	INS_READ_BINARY           InsCode = 0xB0
	INS_READ_BINARY_BER       InsCode = 0xB1
	INS_GET_RESPONSE          InsCode = 0xC0
)

var insNames = map[InsCode]string{
	INS_EXTERNAL_AUTHENTICATE: "EXTERNAL AUTHENTICATE",
	INS_GET_CHALLENGE:         "GET CHALLENGE",
	INS_INTERNAL_AUTHENTICATE: "INTERNAL AUTHENTICATE",
	INS_SELECT:                "SELECT",
	INS_READ_BINARY:           "READ BINARY",
	INS_READ_BINARY_BER:       "READ BINARY (BER-TLV)",
	INS_GET_RESPONSE:          "GET RESPONSE",
}

// String returns the command name, or the raw value for codes this package
// has no name for.
func (i InsCode) String() string {
	if name, ok := insNames[i]; ok {
		return name
	}
	return fmt.Sprintf("INS(0x%02X)", byte(i))
}

// Instruction represents the parsed INS byte.
type Instruction struct {
	Raw      InsCode
	IsBERTLV bool
}

// NewInstruction creates an Instruction, rejecting the reserved 6X and 9X
// ranges.
func NewInstruction(ins InsCode) (Instruction, error) {
	highNibble := byte(ins) & 0xF0
	if highNibble == 0x60 || highNibble == 0x90 {
		return Instruction{}, fmt.Errorf("invalid INS 0x%02X: 6X and 9X are reserved", byte(ins))
	}

	return Instruction{
		Raw:      ins,
		IsBERTLV: bits.IsSet(byte(ins), 1),
	}, nil
}

// Verbose returns a readable description of the instruction.
func (i Instruction) Verbose() string {
	format := "Standard"
	if i.IsBERTLV {
		format = "BER-TLV"
	}
	return fmt.Sprintf("INS: 0x%02X | Command: %s | Format: %s", byte(i.Raw), i.Raw, format)
}
