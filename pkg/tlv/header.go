package tlv

import "fmt"

// Raw BER header decoding. eMRTD elementary files are read in chunks over
// secure messaging; the first short read retrieves only the outer tag and
// length so the reader can size the remaining READ BINARY loop. bertlv
// needs the complete encoding, so the header is decoded by hand here.

// HeaderPrefixLength is enough bytes to cover any tag and length form an
// LDS file uses (2-byte tag + 0x82 long-form length).
const HeaderPrefixLength = 6

// Header describes the outer tag-length envelope of a BER-TLV file.
type Header struct {
	TagLen   int // bytes occupied by the tag
	LenLen   int // bytes occupied by the length field
	ValueLen int // announced value length
}

// Total returns the complete file length: header plus value.
func (h Header) Total() int {
	return h.TagLen + h.LenLen + h.ValueLen
}

// DecodeHeader reads the outer tag and length from the start of data.
// data needs to hold at least the full header (HeaderPrefixLength bytes
// always suffice for LDS files).
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < 2 {
		return Header{}, fmt.Errorf("truncated TLV header: %d bytes", len(data))
	}

	// Tag: a low-nibble of 0x1F announces a subsequent tag byte; bit 8 of
	// each following byte announces one more.
	tagLen := 1
	if data[0]&0x1F == 0x1F {
		for {
			if tagLen >= len(data) {
				return Header{}, fmt.Errorf("truncated multi-byte tag")
			}
			tagLen++
			if data[tagLen-1]&0x80 == 0 {
				break
			}
		}
	}

	if tagLen >= len(data) {
		return Header{}, fmt.Errorf("missing length field")
	}

	first := data[tagLen]
	switch {
	case first < 0x80:
		return Header{TagLen: tagLen, LenLen: 1, ValueLen: int(first)}, nil
	case first == 0x81:
		if tagLen+1 >= len(data) {
			return Header{}, fmt.Errorf("truncated long-form length")
		}
		return Header{TagLen: tagLen, LenLen: 2, ValueLen: int(data[tagLen+1])}, nil
	case first == 0x82:
		if tagLen+2 >= len(data) {
			return Header{}, fmt.Errorf("truncated long-form length")
		}
		n := int(data[tagLen+1])<<8 | int(data[tagLen+2])
		return Header{TagLen: tagLen, LenLen: 3, ValueLen: n}, nil
	default:
		return Header{}, fmt.Errorf("unsupported length form 0x%02X", first)
	}
}
