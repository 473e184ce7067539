package mrz

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// sampleInfo returns a valid TD1 document. The document number, birth date
// and expiry date are the ones from the ICAO 9303 Part 11 worked example,
// so their check digits are known constants (3, 1, 6).
func sampleInfo() *Info {
	return &Info{
		DocumentCode:   "ID",
		IssuingState:   "VNM",
		DocumentNumber: "L898902C",
		BirthDate:      "690806",
		Sex:            "M",
		ExpiryDate:     "940623",
		Nationality:    "VNM",
		Surname:        "NGUYEN",
		GivenNames:     "VAN A",
	}
}

func encodeLines(t *testing.T, info *Info) [3]string {
	t.Helper()
	lines, err := info.EncodeLines()
	if err != nil {
		t.Fatalf("EncodeLines failed: %v", err)
	}
	return lines
}

func TestComputeCheckDigit(t *testing.T) {
	tests := []struct {
		in   string
		want byte
	}{
		{"L898902C<", '3'},
		{"690806", '1'},
		{"940623", '6'},
		{"", '0'},
		{"<<<<<<", '0'},
	}

	for _, tt := range tests {
		got, err := ComputeCheckDigit(tt.in)
		if err != nil {
			t.Fatalf("ComputeCheckDigit(%q) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ComputeCheckDigit(%q) = %c, want %c", tt.in, got, tt.want)
		}
	}

	if _, err := ComputeCheckDigit("ab!"); !errors.Is(err, ErrInvalidChar) {
		t.Errorf("expected ErrInvalidChar for lowercase input, got %v", err)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		info *Info
	}{
		{"standard document", sampleInfo()},
		{
			"unspecified sex and optional data",
			&Info{
				DocumentCode:   "I",
				IssuingState:   "UTO",
				DocumentNumber: "D23145890",
				OptionalData:   "7349",
				BirthDate:      "340712",
				Sex:            "",
				ExpiryDate:     "260101",
				Nationality:    "UTO",
				OptionalData2:  "B1",
				Surname:        "ERIKSSON",
				GivenNames:     "ANNA MARIA",
			},
		},
		{
			"extended document number",
			&Info{
				DocumentCode:   "ID",
				IssuingState:   "VNM",
				DocumentNumber: "012345678901",
				BirthDate:      "900101",
				Sex:            "F",
				ExpiryDate:     "301231",
				Nationality:    "VNM",
				Surname:        "TRAN",
				GivenNames:     "THI B",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := encodeLines(t, tt.info)

			got, err := Parse(lines[0], lines[1], lines[2])
			if err != nil {
				t.Fatalf("Parse failed: %v\nlines:\n%s\n%s\n%s", err, lines[0], lines[1], lines[2])
			}

			// The parsed Info carries the check digits the encoder
			// computed; fill them into the expectation.
			want := *tt.info
			want.DocumentNumberCheck, _ = ComputeCheckDigit(want.paddedDocumentNumber())
			want.BirthDateCheck, _ = ComputeCheckDigit(want.BirthDate)
			want.ExpiryDateCheck, _ = ComputeCheckDigit(want.ExpiryDate)
			want.CompositeCheck = lines[1][29]

			if diff := cmp.Diff(&want, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_InvalidLength(t *testing.T) {
	lines := encodeLines(t, sampleInfo())

	_, err := Parse(lines[0][:29], lines[1], lines[2])
	if !errors.Is(err, ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength, got %v", err)
	}

	_, err = Parse(lines[0], lines[1]+"<", lines[2])
	if !errors.Is(err, ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength for 31-char line, got %v", err)
	}
}

func TestParse_InvalidCharacter(t *testing.T) {
	lines := encodeLines(t, sampleInfo())
	bad := strings.Replace(lines[2], "NGUYEN", "nguyen", 1)

	if _, err := Parse(lines[0], lines[1], bad); !errors.Is(err, ErrInvalidChar) {
		t.Errorf("expected ErrInvalidChar, got %v", err)
	}
}

// mutate returns the line with the byte at pos replaced by a digit whose
// check value differs from the original's modulo 10. The 7/3/1 weights are
// all coprime with 10, so such a change is visible to every check digit
// covering the position. A same-value swap like '<' for '0' would not be.
func mutate(t *testing.T, line string, pos int) string {
	t.Helper()
	v, err := charValue(line[pos])
	if err != nil {
		t.Fatalf("mutating invalid character %q: %v", line[pos], err)
	}
	replacement := byte('0' + (v+1)%10)
	return line[:pos] + string(replacement) + line[pos+1:]
}

func TestParse_CheckDigitMutations(t *testing.T) {
	lines := encodeLines(t, sampleInfo())

	tests := []struct {
		name  string
		line  int
		pos   int
		field Field
	}{
		{"document number first char", 0, 5, FieldDocumentNumber},
		{"document number last char", 0, 13, FieldDocumentNumber},
		{"birth date year", 1, 0, FieldBirthDate},
		{"birth date day", 1, 5, FieldBirthDate},
		{"expiry date year", 1, 8, FieldExpiryDate},
		{"expiry date day", 1, 13, FieldExpiryDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := [3]string{lines[0], lines[1], lines[2]}
			mutated[tt.line] = mutate(t, mutated[tt.line], tt.pos)

			_, err := Parse(mutated[0], mutated[1], mutated[2])
			if !errors.Is(err, ErrCheckDigit) {
				t.Fatalf("expected check digit error, got %v", err)
			}

			var cdErr *CheckDigitError
			if !errors.As(err, &cdErr) {
				t.Fatalf("error is not a *CheckDigitError: %v", err)
			}
			if cdErr.Field != tt.field {
				t.Errorf("failed field = %s, want %s", cdErr.Field, tt.field)
			}
		})
	}
}

func TestParse_CompositeMismatch(t *testing.T) {
	lines := encodeLines(t, sampleInfo())

	// Corrupting line 2 optional data leaves the three field check digits
	// intact but breaks the composite.
	mutated := mutate(t, lines[1], 20)

	_, err := Parse(lines[0], mutated, lines[2])
	var cdErr *CheckDigitError
	if !errors.As(err, &cdErr) {
		t.Fatalf("expected CheckDigitError, got %v", err)
	}
	if cdErr.Field != FieldComposite {
		t.Errorf("failed field = %s, want composite", cdErr.Field)
	}
}

func TestParse_LeftPaddedDocumentNumber(t *testing.T) {
	// Leading fillers shift every later character onto different 7/3/1
	// weights, so the digit over the raw field differs from the digit over
	// the trimmed value. The raw field is what the document carries.
	docField := "<12345678"
	docCD, err := ComputeCheckDigit(docField)
	if err != nil {
		t.Fatalf("ComputeCheckDigit failed: %v", err)
	}
	trimmedCD, err := ComputeCheckDigit("12345678")
	if err != nil {
		t.Fatalf("ComputeCheckDigit failed: %v", err)
	}
	if docCD == trimmedCD {
		t.Fatal("fixture does not discriminate raw from trimmed verification")
	}

	line1 := "IDVNM" + docField + string(docCD) + strings.Repeat("<", 15)
	line2Prefix := "6908061M9406236VNM" + strings.Repeat("<", 11)
	composite := line1[5:30] + line2Prefix[0:7] + line2Prefix[8:15] + line2Prefix[18:29]
	compositeCD, err := ComputeCheckDigit(composite)
	if err != nil {
		t.Fatalf("ComputeCheckDigit failed: %v", err)
	}
	line2 := line2Prefix + string(compositeCD)
	line3 := "NGUYEN<<VAN<A" + strings.Repeat("<", 17)

	parsed, err := Parse(line1, line2, line3)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.DocumentNumber != "12345678" {
		t.Errorf("document number = %q, want 12345678", parsed.DocumentNumber)
	}
	if parsed.DocumentNumberCheck != docCD {
		t.Errorf("check digit = %c, want %c", parsed.DocumentNumberCheck, docCD)
	}
}

func TestMRZInformation(t *testing.T) {
	info := sampleInfo()
	lines := encodeLines(t, info)

	parsed, err := Parse(lines[0], lines[1], lines[2])
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// The ICAO 9303 Part 11 Appendix D seed string.
	want := "L898902C<369080619406236"
	if got := parsed.MRZInformation(); got != want {
		t.Errorf("MRZInformation = %q, want %q", got, want)
	}
}

func TestParse_NamesSplitting(t *testing.T) {
	lines := encodeLines(t, sampleInfo())
	parsed, err := Parse(lines[0], lines[1], lines[2])
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.Surname != "NGUYEN" {
		t.Errorf("surname = %q, want NGUYEN", parsed.Surname)
	}
	if parsed.GivenNames != "VAN A" {
		t.Errorf("given names = %q, want %q", parsed.GivenNames, "VAN A")
	}
}
