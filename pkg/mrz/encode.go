package mrz

import (
	"fmt"
	"strings"
)

// Serialization back to the three TD1 lines. Chip verification reparses
// DG1 with this package, and the round-trip property (parse of an encode
// reproduces the Info) keeps both directions honest.

// MRZInformation returns the exact character sequence BAC key derivation
// hashes: document number, birth date and expiry date, each immediately
// followed by its check digit, using the verbatim MRZ characters including
// fillers.
func (i *Info) MRZInformation() string {
	return i.paddedDocumentNumber() + string(i.DocumentNumberCheck) +
		i.BirthDate + string(i.BirthDateCheck) +
		i.ExpiryDate + string(i.ExpiryDateCheck)
}

// paddedDocumentNumber restores the fixed-width form of the document
// number field. Numbers longer than nine characters are used as-is.
func (i *Info) paddedDocumentNumber() string {
	if len(i.DocumentNumber) >= 9 {
		return i.DocumentNumber
	}
	return i.DocumentNumber + strings.Repeat("<", 9-len(i.DocumentNumber))
}

// EncodeLines serializes the Info back into three 30-character TD1 lines,
// recomputing every check digit. Fields too long for their slots are
// rejected.
func (i *Info) EncodeLines() ([3]string, error) {
	var lines [3]string

	if len(i.DocumentCode) > 2 || len(i.IssuingState) > 3 || len(i.Nationality) > 3 {
		return lines, fmt.Errorf("mrz: document code or state code too long")
	}
	if len(i.BirthDate) != 6 || len(i.ExpiryDate) != 6 {
		return lines, fmt.Errorf("mrz: dates must be YYMMDD")
	}

	docCD, err := ComputeCheckDigit(i.paddedDocumentNumber())
	if err != nil {
		return lines, err
	}

	// Line 1: the extended document number form spills into the optional
	// data field, displacing any optional data.
	var line1 string
	if len(i.DocumentNumber) > 9 {
		overflow := i.DocumentNumber[9:] + string(docCD) + "<"
		if len(overflow) > 15 {
			return lines, fmt.Errorf("mrz: document number too long: %q", i.DocumentNumber)
		}
		line1 = pad(i.DocumentCode, 2) + pad(i.IssuingState, 3) +
			i.DocumentNumber[:9] + "<" + pad(overflow, 15)
	} else {
		if len(i.OptionalData) > 15 {
			return lines, fmt.Errorf("mrz: optional data too long: %q", i.OptionalData)
		}
		line1 = pad(i.DocumentCode, 2) + pad(i.IssuingState, 3) +
			i.paddedDocumentNumber() + string(docCD) + pad(i.OptionalData, 15)
	}

	birthCD, err := ComputeCheckDigit(i.BirthDate)
	if err != nil {
		return lines, err
	}
	expiryCD, err := ComputeCheckDigit(i.ExpiryDate)
	if err != nil {
		return lines, err
	}

	sex := i.Sex
	if sex == "" {
		sex = "<"
	}
	if len(i.OptionalData2) > 11 {
		return lines, fmt.Errorf("mrz: line 2 optional data too long: %q", i.OptionalData2)
	}

	line2Prefix := i.BirthDate + string(birthCD) + sex +
		i.ExpiryDate + string(expiryCD) + pad(i.Nationality, 3) + pad(i.OptionalData2, 11)

	composite := line1[5:30] + line2Prefix[0:7] + line2Prefix[8:15] + line2Prefix[18:29]
	compositeCD, err := ComputeCheckDigit(composite)
	if err != nil {
		return lines, err
	}
	line2 := line2Prefix + string(compositeCD)

	names := spacesToFillers(i.Surname) + "<<" + spacesToFillers(i.GivenNames)
	if len(names) > LineLength {
		names = names[:LineLength]
	}
	line3 := pad(names, LineLength)

	lines = [3]string{line1, line2, line3}
	return lines, nil
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat("<", width-len(s))
}

func spacesToFillers(s string) string {
	return strings.ReplaceAll(s, " ", "<")
}
