package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex builds a byte slice from hex string fragments, ignoring spaces.
// It panics on malformed input and is meant for fixtures and constants,
// not for data read off the wire.
func Hex(parts ...string) []byte {
	joined := strings.ReplaceAll(strings.Join(parts, ""), " ", "")
	data, err := hex.DecodeString(joined)
	if err != nil {
		panic(fmt.Sprintf("invalid hex input '%s': %v", joined, err))
	}
	return data
}
