package reader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/qudamyker/eidreader/pkg/mrz"
)

// ErrDataMismatch reports a chip whose DG1 disagrees with the optically
// scanned MRZ. The chip either belongs to a different document or the scan
// was misread; either way the result must not be trusted.
var ErrDataMismatch = errors.New("reader: chip data does not match scanned MRZ")

// VerifyConsistency compares the identity-critical DG1 fields against the
// scanned MRZ. Names are excluded: OCR of the visual zone is unreliable
// while the BAC-protected fields carry check digits on both sides.
func VerifyConsistency(chip, scanned *mrz.Info) error {
	var mismatched []string

	if chip.DocumentNumber != scanned.DocumentNumber {
		mismatched = append(mismatched, "document number")
	}
	if chip.BirthDate != scanned.BirthDate {
		mismatched = append(mismatched, "birth date")
	}
	if chip.ExpiryDate != scanned.ExpiryDate {
		mismatched = append(mismatched, "expiry date")
	}

	if len(mismatched) > 0 {
		return fmt.Errorf("%w: %s", ErrDataMismatch, strings.Join(mismatched, ", "))
	}
	return nil
}
