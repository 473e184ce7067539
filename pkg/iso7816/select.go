package iso7816

import (
	"fmt"
)

// SELECT command (INS 'A4') per ISO 7816-4.
//
// P1 selects the targeting method (file identifier, DF name/AID, path);
// P2 combines the requested response content (bits 4-3) with the file
// occurrence (bits 2-1).

// SelectionMethod defines how the file is targeted (P1).
type SelectionMethod byte

const (
	SelectByFileID         SelectionMethod = 0x00
	SelectChildDF          SelectionMethod = 0x01
	SelectEFUnderCurrentDF SelectionMethod = 0x02
	SelectParentDF         SelectionMethod = 0x03
	SelectByDFName         SelectionMethod = 0x04 // select by AID
	SelectPathFromMF       SelectionMethod = 0x08
)

func (s SelectionMethod) String() string {
	switch s {
	case SelectByFileID:
		return "Select by File ID"
	case SelectChildDF:
		return "Select Child DF"
	case SelectEFUnderCurrentDF:
		return "Select EF under current DF"
	case SelectParentDF:
		return "Select Parent DF"
	case SelectByDFName:
		return "Select by DF Name (AID)"
	case SelectPathFromMF:
		return "Select Path from MF"
	default:
		return fmt.Sprintf("Unknown Method (0x%02X)", byte(s))
	}
}

// FileOccurrence selects which instance of the file to open (bits 2-1 of P2).
type FileOccurrence byte

const (
	FirstOrOnlyOccurrence FileOccurrence = 0b00
	LastOccurrence        FileOccurrence = 0b01
	NextOccurrence        FileOccurrence = 0b10
	PreviousOccurrence    FileOccurrence = 0b11
)

// SelectionControl selects what the chip should return (bits 4-3 of P2).
type SelectionControl byte

const (
	ReturnFCI    SelectionControl = 0b00_00
	ReturnFCP    SelectionControl = 0b01_00
	ReturnFMD    SelectionControl = 0b10_00
	ReturnNoData SelectionControl = 0b11_00
)

// NewSelectCommand creates a generic SELECT command.
func NewSelectCommand(
	cla Class,
	method SelectionMethod,
	occurrence FileOccurrence,
	ctrl SelectionControl,
	data []byte,
) *CommandAPDU {
	p2 := byte(ctrl) | byte(occurrence)

	ins, _ := NewInstruction(INS_SELECT)

	// T=0 compatibility: when sending data we must not also send Le; the
	// chip answers 61XX and the Client fetches the payload.
	ne := 0
	if len(data) == 0 && ctrl != ReturnNoData {
		ne = MaxShortLe
	}

	return NewCommandAPDU(cla, ins, byte(method), p2, data, ne)
}

// SelectApplication selects an application by its AID, the way the eMRTD
// LDS application is opened before the BAC handshake.
func SelectApplication(cla Class, aid []byte) *CommandAPDU {
	return NewSelectCommand(cla, SelectByDFName, FirstOrOnlyOccurrence, ReturnNoData, aid)
}

// SelectEF selects an elementary file by its two-byte file identifier
// under the currently selected application, requesting no response data.
// This is the form used for EF.COM, EF.SOD and the data groups.
func SelectEF(cla Class, fileID uint16) *CommandAPDU {
	fid := []byte{byte(fileID >> 8), byte(fileID)}
	return NewSelectCommand(cla, SelectEFUnderCurrentDF, FirstOrOnlyOccurrence, ReturnNoData, fid)
}
