package iso7816

import (
	"bytes"
	"fmt"
)

// APDU encoding according to ISO/IEC 7816-3 and 7816-4.
//
// A command consists of a mandatory 4-byte header (CLA, INS, P1, P2) and an
// optional body (Lc + data, Le). The four encoding cases:
//   - Case 1: header only.
//   - Case 2: header + Le (response expected).
//   - Case 3: header + Lc + data.
//   - Case 4: header + Lc + data + Le.
//
// Lc/Le are encoded on one byte (short, max 255/256) or on multiple bytes
// (extended, max 65535/65536). Extended mode is selected automatically when
// either length exceeds the short range.

// APDU limits per ISO 7816-3.
const (
	// MaxShortLc is the maximum data length (Nc) in short mode.
	MaxShortLc = 255

	// MaxShortLe is the maximum expected response length (Ne) in short
	// mode; 0x00 encodes 256.
	MaxShortLe = 256

	// MaxExtendedLc is the Lc limit in extended mode.
	MaxExtendedLc = 65535

	// MaxExtendedLe is the Ne limit in extended mode; 0x0000 encodes 65536.
	MaxExtendedLe = 65536
)

// CommandAPDU represents a command sent to the chip.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int // expected response length, 0 means none
}

// NewCommandAPDU creates a command from its parts.
func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{
		Class:       cla,
		Instruction: ins,
		P1:          p1,
		P2:          p2,
		Data:        data,
		Ne:          ne,
	}
}

// Header returns the 4-byte command header (CLA INS P1 P2).
// Secure messaging authenticates this header, so it is exposed separately
// from the full encoding.
func (c *CommandAPDU) Header() ([4]byte, error) {
	var hdr [4]byte

	cla, err := c.Class.Encode()
	if err != nil {
		return hdr, fmt.Errorf("failed to encode CLA: %w", err)
	}

	hdr[0] = cla
	hdr[1] = byte(c.Instruction.Raw)
	hdr[2] = c.P1
	hdr[3] = c.P2
	return hdr, nil
}

// Bytes encodes the command into its wire representation, selecting short
// or extended length encoding from Nc and Ne.
func (c *CommandAPDU) Bytes() ([]byte, error) {
	hdr, err := c.Header()
	if err != nil {
		return nil, err
	}

	nc := len(c.Data)
	ne := c.Ne

	if nc > MaxExtendedLc {
		return nil, fmt.Errorf("data field too long: %d bytes", nc)
	}
	if ne > MaxExtendedLe {
		return nil, fmt.Errorf("expected length too large: %d", ne)
	}

	buf := new(bytes.Buffer)
	buf.Write(hdr[:])

	extended := nc > MaxShortLc || ne > MaxShortLe

	// Lc field and data field.
	if nc > 0 {
		if !extended {
			buf.WriteByte(byte(nc))
		} else {
			buf.WriteByte(0x00)
			buf.WriteByte(byte(nc >> 8))
			buf.WriteByte(byte(nc))
		}
		buf.Write(c.Data)
	}

	// Le field.
	if ne > 0 {
		if !extended {
			if ne == MaxShortLe {
				buf.WriteByte(0x00)
			} else {
				buf.WriteByte(byte(ne))
			}
		} else {
			// Case 2 extended needs a leading 00 in place of the
			// absent Lc field.
			if nc == 0 {
				buf.WriteByte(0x00)
			}
			if ne == MaxExtendedLe {
				buf.WriteByte(0x00)
				buf.WriteByte(0x00)
			} else {
				buf.WriteByte(byte(ne >> 8))
				buf.WriteByte(byte(ne))
			}
		}
	}

	return buf.Bytes(), nil
}

// String returns a readable representation of the command metadata.
func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Instruction.Verbose(), c.P1, c.P2, len(c.Data), c.Ne)
}

// ResponseAPDU represents the reply from the chip.
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// ParseResponseAPDU splits raw response bytes into data and status word.
// The input must contain at least the 2-byte trailer.
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("response too short: %d bytes", len(raw))
	}

	body := len(raw) - 2
	return &ResponseAPDU{
		Data:   raw[:body],
		Status: NewStatusWord(raw[body], raw[body+1]),
	}, nil
}

// Bytes re-encodes the response into its wire representation.
func (r *ResponseAPDU) Bytes() []byte {
	out := make([]byte, 0, len(r.Data)+2)
	out = append(out, r.Data...)
	out = append(out, r.Status.SW1(), r.Status.SW2())
	return out
}

// String returns a readable representation of the response.
func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}
