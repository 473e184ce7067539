package lds

import (
	"fmt"

	"github.com/qudamyker/eidreader/pkg/mrz"
	"github.com/qudamyker/eidreader/pkg/tlv"
)

// td1MRZLength is the DG1 payload size for TD1 documents: three 30-char
// lines with no separators.
const td1MRZLength = 3 * mrz.LineLength

// DG1File carries the machine readable zone as stored on the chip. The
// chip copy is authoritative; comparing it against the optically scanned
// MRZ is how a read is accepted or rejected.
type DG1File struct {
	Raw  string // the 90 characters exactly as stored
	Info *mrz.Info
}

// ParseDG1 decodes a DG1 file (outer tag 61, MRZ in 5F1F) and parses the
// contained TD1 MRZ, including its check digits.
func ParseDG1(data []byte) (*DG1File, error) {
	body, err := tlv.GetValue(data, 0x61)
	if err != nil {
		return nil, fmt.Errorf("lds: DG1: %w", err)
	}
	raw, err := tlv.GetValue(body, 0x5F1F)
	if err != nil {
		return nil, fmt.Errorf("lds: DG1: %w", err)
	}
	if len(raw) != td1MRZLength {
		return nil, fmt.Errorf("lds: DG1 MRZ is %d characters, want %d (TD1)", len(raw), td1MRZLength)
	}

	text := string(raw)
	info, err := mrz.Parse(text[:30], text[30:60], text[60:])
	if err != nil {
		return nil, fmt.Errorf("lds: DG1: %w", err)
	}
	return &DG1File{Raw: text, Info: info}, nil
}
