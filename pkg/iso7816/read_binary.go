package iso7816

// READ BINARY command (INS 'B0') per ISO 7816-4.
//
// With bit 8 of P1 clear, P1-P2 encode a 15-bit offset into the currently
// selected elementary file. eMRTD files are read in bounded chunks: a short
// read of the BER-TLV header first to learn the file length, then the body.

// MaxReadBinaryOffset is the largest offset encodable in P1-P2 without
// using a short file identifier in P1.
const MaxReadBinaryOffset = 0x7FFF

// ReadBinary reads ne bytes at the given offset of the selected EF.
// Offsets beyond MaxReadBinaryOffset are truncated by the 15-bit encoding;
// callers chunk their reads well below that bound.
func ReadBinary(cla Class, offset int, ne int) *CommandAPDU {
	ins, _ := NewInstruction(INS_READ_BINARY)
	return NewCommandAPDU(cla, ins, byte(offset>>8)&0x7F, byte(offset), nil, ne)
}
