/*
Package lds parses the eMRTD Logical Data Structure (ICAO 9303 Part 10):
the EF.COM directory, DG1 (machine readable zone), DG2 (encoded face) and
the EF.SOD security object. Files arrive as raw BER-TLV byte strings read
over the secure channel; this package never talks to the chip itself.

EF.SOD is parsed for its hash manifest only. Verifying the document signer
signature requires a CSCA trust store and is out of scope here.
*/
package lds

import "fmt"

// Elementary file identifiers under the eMRTD application.
const (
	FileEFCOM uint16 = 0x011E
	FileEFSOD uint16 = 0x011D
)

// AID of the eMRTD LDS application, selected before the BAC handshake.
var AID = []byte{0xA0, 0x00, 0x00, 0x02, 0x47, 0x10, 0x01}

// FileIDForDataGroup returns the file identifier of DG n (0x0101 for DG1
// through 0x0110 for DG16).
func FileIDForDataGroup(n int) (uint16, error) {
	if n < 1 || n > 16 {
		return 0, fmt.Errorf("lds: no data group %d", n)
	}
	return 0x0100 | uint16(n), nil
}

// dgByTag maps the outer BER tag of each data group file to its number,
// as listed in the EF.COM tag list.
var dgByTag = map[byte]int{
	0x61: 1, 0x75: 2, 0x63: 3, 0x76: 4,
	0x65: 5, 0x66: 6, 0x67: 7, 0x68: 8,
	0x69: 9, 0x6A: 10, 0x6B: 11, 0x6C: 12,
	0x6D: 13, 0x6E: 14, 0x6F: 15, 0x70: 16,
}

// DataGroupForTag resolves an EF.COM tag list entry to a data group number.
func DataGroupForTag(tag byte) (int, bool) {
	n, ok := dgByTag[tag]
	return n, ok
}
