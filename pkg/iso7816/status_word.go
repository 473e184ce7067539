package iso7816

import (
	"fmt"

	"github.com/qudamyker/eidreader/pkg/bits"
)

// Status word (SW1-SW2) handling per ISO/IEC 7816-4.
//
// Most status words are static two-byte values (0x9000 = success), but a
// few ranges are dynamic and carry context:
//
//   - '61XX': process completed, XX bytes available via GET RESPONSE.
//   - '6CXX': wrong Le, XX is the correct value.
//   - '63CX': warning, low nibble of SW2 is a counter (e.g. retries left).

// StatusWord is the two-byte status trailer returned by the chip.
type StatusWord uint16

// NewStatusWord combines SW1 and SW2 into a StatusWord.
func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(uint16(sw1)<<8 | uint16(sw2))
}

// SW1 returns the high byte of the status word.
func (sw StatusWord) SW1() byte {
	return byte(sw >> 8)
}

// SW2 returns the low byte of the status word.
func (sw StatusWord) SW2() byte {
	return byte(sw)
}

// IsSuccess reports whether the command completed successfully (9000 or
// 61XX with data pending).
func (sw StatusWord) IsSuccess() bool {
	return sw == SW_NO_ERROR || sw.SW1() == 0x61
}

// IsWarning reports a 62XX/63XX warning status.
func (sw StatusWord) IsWarning() bool {
	sw1 := sw.SW1()
	return sw1 == 0x62 || sw1 == 0x63
}

// IsError reports an execution or checking error (64XX-6FXX).
func (sw StatusWord) IsError() bool {
	sw1 := sw.SW1()
	return sw1 >= 0x64 && sw1 <= 0x6F
}

// IsCounter reports whether SW2 carries a counter value (63CX).
func (sw StatusWord) IsCounter() bool {
	return sw.SW1() == 0x63 && bits.GetRange(sw.SW2(), 8, 5) == 0x0C
}

// Verbose returns a human-readable description, resolving dynamic ranges
// before falling back to the static code table.
func (sw StatusWord) Verbose() string {
	sw1 := sw.SW1()
	sw2 := sw.SW2()

	switch {
	case sw1 == 0x61:
		return fmt.Sprintf("Process completed, %d bytes available", sw2)
	case sw1 == 0x6C:
		return fmt.Sprintf("Wrong length, correct Le is %d", sw2)
	case sw.IsCounter():
		return fmt.Sprintf("Warning: state changed, counter = %d", bits.GetRange(sw2, 4, 1))
	}

	if desc, ok := swDescriptions[sw]; ok {
		return fmt.Sprintf("[%04X] %s", uint16(sw), desc)
	}
	return fmt.Sprintf("[%04X] %s", uint16(sw), sw.categoryDescription())
}

// categoryDescription is the SW1-based fallback for unlisted codes.
func (sw StatusWord) categoryDescription() string {
	switch sw.SW1() {
	case 0x62:
		return "Warning: NV memory unchanged"
	case 0x63:
		return "Warning: NV memory changed"
	case 0x64:
		return "Execution error: NV memory unchanged"
	case 0x65:
		return "Execution error: NV memory changed"
	case 0x66:
		return "Execution error: security issue"
	case 0x68:
		return "Checking error: function not supported"
	case 0x69:
		return "Checking error: command not allowed"
	case 0x6A:
		return "Checking error: wrong parameters"
	default:
		return "Unknown status"
	}
}

// Status word codes defined in ISO/IEC 7816-4, restricted to those an
// eMRTD exchange can produce.
const (
	SW_NO_ERROR StatusWord = 0x9000

	SW_WARN_EOF_REACHED      StatusWord = 0x6282
	SW_WARN_FILE_DEACTIVATED StatusWord = 0x6283
	SW_WARN_COUNTER_0        StatusWord = 0x63C0

	SW_ERR_MEMORY_FAILURE StatusWord = 0x6581
	SW_ERR_SECURITY_ISSUE StatusWord = 0x6600
	SW_ERR_WRONG_LENGTH   StatusWord = 0x6700

	SW_ERR_SECURE_MESSAGING_NOT_SUPP StatusWord = 0x6882
	SW_ERR_SM_DATA_OBJECTS_MISSING   StatusWord = 0x6987
	SW_ERR_SM_DATA_OBJECTS_INCORRECT StatusWord = 0x6988

	SW_ERR_SECURITY_STATUS_NOT_SAT StatusWord = 0x6982
	SW_ERR_AUTH_METHOD_BLOCKED     StatusWord = 0x6983
	SW_ERR_COND_OF_USE_NOT_SAT     StatusWord = 0x6985

	SW_ERR_INCORRECT_PARAMS_DATA StatusWord = 0x6A80
	SW_ERR_FUNC_NOT_SUPPORTED    StatusWord = 0x6A81
	SW_ERR_FILE_NOT_FOUND        StatusWord = 0x6A82
	SW_ERR_WRONG_P1P2_6A86       StatusWord = 0x6A86
	SW_ERR_WRONG_P1P2            StatusWord = 0x6B00
	SW_ERR_INS_INVALID           StatusWord = 0x6D00
	SW_ERR_CLA_NOT_SUPPORTED     StatusWord = 0x6E00
	SW_ERR_UNKNOWN               StatusWord = 0x6F00
)

var swDescriptions = map[StatusWord]string{
	SW_NO_ERROR:                      "No error",
	SW_WARN_EOF_REACHED:              "End of file reached before reading Le bytes",
	SW_WARN_FILE_DEACTIVATED:         "Selected file deactivated",
	SW_WARN_COUNTER_0:                "Counter reached 0",
	SW_ERR_MEMORY_FAILURE:            "Memory failure",
	SW_ERR_SECURITY_ISSUE:            "Security-related issue",
	SW_ERR_WRONG_LENGTH:              "Wrong length",
	SW_ERR_SECURE_MESSAGING_NOT_SUPP: "Secure messaging not supported",
	SW_ERR_SM_DATA_OBJECTS_MISSING:   "Expected secure messaging data objects missing",
	SW_ERR_SM_DATA_OBJECTS_INCORRECT: "Secure messaging data objects incorrect",
	SW_ERR_SECURITY_STATUS_NOT_SAT:   "Security status not satisfied",
	SW_ERR_AUTH_METHOD_BLOCKED:       "Authentication method blocked",
	SW_ERR_COND_OF_USE_NOT_SAT:       "Conditions of use not satisfied",
	SW_ERR_INCORRECT_PARAMS_DATA:     "Incorrect parameters in the data field",
	SW_ERR_FUNC_NOT_SUPPORTED:        "Function not supported",
	SW_ERR_FILE_NOT_FOUND:            "File not found",
	SW_ERR_WRONG_P1P2_6A86:           "Incorrect parameters P1-P2",
	SW_ERR_WRONG_P1P2:                "Wrong parameters P1-P2",
	SW_ERR_INS_INVALID:               "Instruction code not supported or invalid",
	SW_ERR_CLA_NOT_SUPPORTED:         "Class not supported",
	SW_ERR_UNKNOWN:                   "No precise diagnosis",
}
