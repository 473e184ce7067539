/*
Package mrz parses and validates the Machine Readable Zone of TD1-format
identity documents (ICAO 9303 Part 5): three lines of thirty characters
from the restricted alphabet A-Z, 0-9 and the filler '<'.

Layout (1-indexed positions):

	Line 1: document code [1-2], issuing state [3-5], document number
	        [6-14], document number check digit [15], optional data [16-30].
	Line 2: birth date YYMMDD [1-6] + check digit [7], sex [8], expiry date
	        YYMMDD [9-14] + check digit [15], nationality [16-18], optional
	        data [19-29], composite check digit [30].
	Line 3: SURNAME<<GIVEN<NAMES, filler-padded.

Check digits use the weights 7, 3, 1 repeating over the field with the
character mapping 0-9 -> 0-9, A-Z -> 10-35, '<' -> 0; the digit is the
weighted sum mod 10. The composite digit covers the document number, birth
date and expiry date fields including their own check digits and the
optional data, so a corrupted character anywhere in the keyed fields is
always caught.

A parsed Info also exposes the exact character sequence Basic Access
Control derives its document keys from (MRZInformation).
*/
package mrz

import (
	"errors"
	"fmt"
	"strings"
)

// LineLength is the mandatory width of every TD1 MRZ line.
const LineLength = 30

// Parse errors.
var (
	// ErrInvalidLength reports a line that is not exactly 30 characters.
	ErrInvalidLength = errors.New("mrz: line must be exactly 30 characters")

	// ErrInvalidChar reports a character outside A-Z, 0-9 and '<'.
	ErrInvalidChar = errors.New("mrz: invalid character")

	// ErrCheckDigit is matched by every CheckDigitError via errors.Is.
	ErrCheckDigit = errors.New("mrz: check digit mismatch")
)

// Field identifies the MRZ field a check digit protects.
type Field int

const (
	FieldDocumentNumber Field = iota
	FieldBirthDate
	FieldExpiryDate
	FieldComposite
)

func (f Field) String() string {
	switch f {
	case FieldDocumentNumber:
		return "document number"
	case FieldBirthDate:
		return "birth date"
	case FieldExpiryDate:
		return "expiry date"
	case FieldComposite:
		return "composite"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// CheckDigitError reports a failed check digit for a specific field.
type CheckDigitError struct {
	Field    Field
	Expected byte // digit computed from the field content
	Actual   byte // digit found in the MRZ
}

func (e *CheckDigitError) Error() string {
	return fmt.Sprintf("mrz: %s check digit mismatch: computed %c, found %c",
		e.Field, e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrCheckDigit) match any check digit failure.
func (e *CheckDigitError) Is(target error) bool {
	return target == ErrCheckDigit
}

// Info is the parsed, validated content of a TD1 MRZ. It is treated as an
// immutable value once returned by Parse.
type Info struct {
	DocumentCode   string // e.g. "ID", "I<"
	IssuingState   string // three-letter code, e.g. "VNM"
	DocumentNumber string // trimmed of fillers, may exceed 9 characters
	OptionalData   string // line 1 optional data, trimmed
	BirthDate      string // YYMMDD
	Sex            string // "M", "F" or "" when unspecified
	ExpiryDate     string // YYMMDD
	Nationality    string // three-letter code
	OptionalData2  string // line 2 optional data, trimmed
	Surname        string
	GivenNames     string

	// Check digits as they appear in the MRZ, retained because BAC key
	// derivation consumes them verbatim.
	DocumentNumberCheck byte
	BirthDateCheck      byte
	ExpiryDateCheck     byte
	CompositeCheck      byte
}

// charValue maps an MRZ character to its check digit weight input.
func charValue(c byte) (int, error) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), nil
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10, nil
	case c == '<':
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidChar, c)
	}
}

// ComputeCheckDigit returns the ICAO 9303 check digit ('0'-'9') over s.
func ComputeCheckDigit(s string) (byte, error) {
	weights := [3]int{7, 3, 1}
	sum := 0
	for i := 0; i < len(s); i++ {
		v, err := charValue(s[i])
		if err != nil {
			return 0, err
		}
		sum += v * weights[i%3]
	}
	return byte(sum%10) + '0', nil
}

// Parse validates three TD1 lines and extracts their fields. All four
// check digits must verify; the first mismatch aborts the parse with a
// CheckDigitError naming the field.
func Parse(line1, line2, line3 string) (*Info, error) {
	for i, line := range []string{line1, line2, line3} {
		if len(line) != LineLength {
			return nil, fmt.Errorf("%w: line %d has %d", ErrInvalidLength, i+1, len(line))
		}
		for j := 0; j < len(line); j++ {
			if _, err := charValue(line[j]); err != nil {
				return nil, fmt.Errorf("line %d position %d: %w", i+1, j+1, err)
			}
		}
	}

	info := &Info{
		DocumentCode: trimFillers(line1[0:2]),
		IssuingState: trimFillers(line1[2:5]),
		BirthDate:    line2[0:6],
		ExpiryDate:   line2[8:14],
		Nationality:  trimFillers(line2[15:18]),
	}

	// Document number, handling the extended form where numbers longer
	// than nine characters continue into the optional data field.
	docField := line1[5:14]
	docCheck := line1[14]
	optional := line1[15:30]

	// The check digit covers the raw field characters. Trimming fillers
	// first would shift the 7/3/1 weight alignment for left-padded
	// numbers, so verification runs before any trimming.
	docRaw := docField
	if docCheck == '<' {
		// Extended: optional data holds the continuation followed by the
		// real check digit and a filler.
		end := strings.IndexByte(optional, '<')
		if end < 2 {
			return nil, fmt.Errorf("%w: malformed extended document number", ErrInvalidChar)
		}
		docRaw = docField + optional[:end-1]
		info.DocumentNumber = docRaw
		info.DocumentNumberCheck = optional[end-1]
		info.OptionalData = trimFillers(optional[end:])
	} else {
		info.DocumentNumber = trimFillers(docField)
		info.DocumentNumberCheck = docCheck
		info.OptionalData = trimFillers(optional)
	}

	if err := verifyCheckDigit(FieldDocumentNumber, docRaw, info.DocumentNumberCheck); err != nil {
		return nil, err
	}

	info.BirthDateCheck = line2[6]
	if err := verifyCheckDigit(FieldBirthDate, info.BirthDate, info.BirthDateCheck); err != nil {
		return nil, err
	}

	info.ExpiryDateCheck = line2[14]
	if err := verifyCheckDigit(FieldExpiryDate, info.ExpiryDate, info.ExpiryDateCheck); err != nil {
		return nil, err
	}

	info.OptionalData2 = trimFillers(line2[18:29])
	info.CompositeCheck = line2[29]
	composite := line1[5:30] + line2[0:7] + line2[8:15] + line2[18:29]
	if err := verifyCheckDigit(FieldComposite, composite, info.CompositeCheck); err != nil {
		return nil, err
	}

	switch line2[7] {
	case 'M':
		info.Sex = "M"
	case 'F':
		info.Sex = "F"
	case '<':
		info.Sex = ""
	default:
		return nil, fmt.Errorf("%w: sex %q", ErrInvalidChar, line2[7])
	}

	surname, given, ok := strings.Cut(line3, "<<")
	if !ok {
		surname, given = line3, ""
	}
	info.Surname = fillersToSpaces(surname)
	info.GivenNames = fillersToSpaces(given)

	return info, nil
}

func verifyCheckDigit(field Field, content string, actual byte) error {
	expected, err := ComputeCheckDigit(content)
	if err != nil {
		return err
	}
	if expected != actual {
		return &CheckDigitError{Field: field, Expected: expected, Actual: actual}
	}
	return nil
}

func trimFillers(s string) string {
	return strings.Trim(s, "<")
}

func fillersToSpaces(s string) string {
	return strings.TrimRight(strings.ReplaceAll(s, "<", " "), " ")
}
