package iso7816

// Authentication commands used by the Basic Access Control handshake
// (ISO 7816-4, profiled by ICAO 9303 Part 11).

// ChallengeLength is the RND.IC length requested from the chip.
const ChallengeLength = 8

// MutualAuthLength is the length of the EXTERNAL AUTHENTICATE payload and
// of the expected response: E(32 bytes) followed by its MAC (8 bytes).
const MutualAuthLength = 40

// GetChallenge asks the chip for an 8-byte random challenge (RND.IC).
func GetChallenge(cla Class) *CommandAPDU {
	ins, _ := NewInstruction(INS_GET_CHALLENGE)
	return NewCommandAPDU(cla, ins, 0x00, 0x00, nil, ChallengeLength)
}

// ExternalAuthenticate sends the terminal's cryptogram E.IFD||M.IFD and
// expects the chip's E.IC||M.IC in return.
func ExternalAuthenticate(cla Class, cryptogram []byte) *CommandAPDU {
	ins, _ := NewInstruction(INS_EXTERNAL_AUTHENTICATE)
	return NewCommandAPDU(cla, ins, 0x00, 0x00, cryptogram, MutualAuthLength)
}
