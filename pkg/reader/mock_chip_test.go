package reader

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/qudamyker/eidreader/pkg/bac"
	"github.com/qudamyker/eidreader/pkg/lds"
	"github.com/qudamyker/eidreader/pkg/mrz"
	"github.com/qudamyker/eidreader/pkg/tlv"
)

// mockChip implements the chip side of the protocol: applet selection, the
// BAC handshake and secure messaging over an in-memory file system. It is
// built from the same primitives the reader uses, so the two sides either
// agree on every byte or the tests fail loudly.
type mockChip struct {
	keys  *bac.Keys         // document access keys
	files map[uint16][]byte // file contents by identifier
	rndIC []byte
	kIC   []byte

	// forgeRndIC, when set, is echoed in the response cryptogram instead
	// of the real challenge, as a relayed chip would.
	forgeRndIC []byte

	session   *bac.Keys
	ssc       uint64
	selected  uint16
	authCount int
}

func newMockChip(keys *bac.Keys, files map[uint16][]byte) *mockChip {
	return &mockChip{
		keys:  keys,
		files: files,
		rndIC: tlv.Hex("0102030405060708"),
		kIC:   tlv.Hex("101112131415161718191A1B1C1D1E1F"),
	}
}

func sw(sw1, sw2 byte) []byte {
	return []byte{sw1, sw2}
}

func (c *mockChip) Transceive(_ context.Context, raw []byte) ([]byte, error) {
	if len(raw) < 4 {
		return sw(0x67, 0x00), nil
	}

	switch {
	case raw[0] == 0x00 && raw[1] == 0xA4:
		if len(raw) > 5 && bytes.Equal(raw[5:5+int(raw[4])], lds.AID) {
			return sw(0x90, 0x00), nil
		}
		return sw(0x6A, 0x82), nil

	case raw[0] == 0x00 && raw[1] == 0x84:
		return append(append([]byte(nil), c.rndIC...), 0x90, 0x00), nil

	case raw[0] == 0x00 && raw[1] == 0x82:
		return c.externalAuthenticate(raw)

	case raw[0] == 0x0C:
		return c.secureCommand(raw)
	}

	return sw(0x6D, 0x00), nil
}

func (c *mockChip) externalAuthenticate(raw []byte) ([]byte, error) {
	c.authCount++
	if len(raw) < 5+40 {
		return sw(0x67, 0x00), nil
	}
	eIFD, mIFD := raw[5:37], raw[37:45]

	mac, err := bac.RetailMAC(c.keys.Mac, eIFD)
	if err != nil || !bytes.Equal(mac, mIFD) {
		return sw(0x69, 0x82), nil
	}
	plain, err := bac.DecryptCBC(c.keys.Enc, eIFD)
	if err != nil {
		return sw(0x69, 0x82), nil
	}
	rndIFD, rndIC, kIFD := plain[:8], plain[8:16], plain[16:32]
	if !bytes.Equal(rndIC, c.rndIC) {
		return sw(0x69, 0x82), nil
	}

	echoIC := c.rndIC
	if c.forgeRndIC != nil {
		echoIC = c.forgeRndIC
	}
	response := make([]byte, 0, 32)
	response = append(response, echoIC...)
	response = append(response, rndIFD...)
	response = append(response, c.kIC...)

	eIC, err := bac.EncryptCBC(c.keys.Enc, response)
	if err != nil {
		return sw(0x69, 0x82), nil
	}
	mIC, err := bac.RetailMAC(c.keys.Mac, eIC)
	if err != nil {
		return sw(0x69, 0x82), nil
	}

	seed := make([]byte, 16)
	for i := range seed {
		seed[i] = kIFD[i] ^ c.kIC[i]
	}
	c.session = bac.DeriveKeys(seed)

	var ssc [8]byte
	copy(ssc[:4], c.rndIC[4:8])
	copy(ssc[4:], rndIFD[4:8])
	c.ssc = binary.BigEndian.Uint64(ssc[:])
	c.selected = 0

	out := append(eIC, mIC...)
	return append(out, 0x90, 0x00), nil
}

// secureCommand unwraps a protected command, executes it against the file
// system and wraps the result.
func (c *mockChip) secureCommand(raw []byte) ([]byte, error) {
	if c.session == nil {
		return sw(0x69, 0x82), nil
	}
	c.ssc++

	body := raw[5 : 5+int(raw[4])]
	var do87raw, do87val, do97raw, cc []byte
	for i := 0; i < len(body); {
		tag, length := body[i], int(body[i+1])
		value := body[i+2 : i+2+length]
		full := body[i : i+2+length]
		switch tag {
		case 0x87:
			do87raw, do87val = full, value
		case 0x97:
			do97raw = full
		case 0x8E:
			cc = value
		}
		i += 2 + length
	}

	var sscBytes [8]byte
	binary.BigEndian.PutUint64(sscBytes[:], c.ssc)
	macIn := append([]byte(nil), sscBytes[:]...)
	macIn = append(macIn, bac.Pad(raw[:4])...)
	macIn = append(macIn, do87raw...)
	macIn = append(macIn, do97raw...)
	expected, err := bac.RetailMAC(c.session.Mac, macIn)
	if err != nil || !bytes.Equal(expected, cc) {
		return sw(0x69, 0x88), nil
	}

	var data []byte
	if do87val != nil {
		padded, err := bac.DecryptCBC(c.session.Enc, do87val[1:])
		if err != nil {
			return sw(0x69, 0x88), nil
		}
		if data, err = bac.Unpad(padded); err != nil {
			return sw(0x69, 0x88), nil
		}
	}

	respData, status := c.execute(raw[1], raw[2], raw[3], data, do97raw)
	return c.wrapResponse(respData, status), nil
}

func (c *mockChip) execute(ins, p1, p2 byte, data, do97raw []byte) ([]byte, uint16) {
	switch ins {
	case 0xA4: // SELECT EF
		if len(data) != 2 {
			return nil, 0x6A86
		}
		fid := uint16(data[0])<<8 | uint16(data[1])
		if _, ok := c.files[fid]; !ok {
			return nil, 0x6A82
		}
		c.selected = fid
		return nil, 0x9000

	case 0xB0: // READ BINARY
		file, ok := c.files[c.selected]
		if !ok {
			return nil, 0x6986
		}
		offset := int(p1&0x7F)<<8 | int(p2)
		if offset >= len(file) {
			return nil, 0x6B00
		}
		ne := 256
		if len(do97raw) == 3 && do97raw[2] != 0 {
			ne = int(do97raw[2])
		}
		end := offset + ne
		if end > len(file) {
			end = len(file)
		}
		return file[offset:end], 0x9000
	}
	return nil, 0x6D00
}

func (c *mockChip) wrapResponse(data []byte, status uint16) []byte {
	c.ssc++

	var do87 []byte
	if len(data) > 0 {
		ct, err := bac.EncryptCBC(c.session.Enc, bac.Pad(data))
		if err != nil {
			return sw(0x6F, 0x00)
		}
		do87 = append([]byte{0x87, byte(len(ct) + 1), 0x01}, ct...)
	}
	do99 := []byte{0x99, 0x02, byte(status >> 8), byte(status)}

	var sscBytes [8]byte
	binary.BigEndian.PutUint64(sscBytes[:], c.ssc)
	macIn := append([]byte(nil), sscBytes[:]...)
	macIn = append(macIn, do87...)
	macIn = append(macIn, do99...)
	cc, err := bac.RetailMAC(c.session.Mac, macIn)
	if err != nil {
		return sw(0x6F, 0x00)
	}

	out := append([]byte(nil), do87...)
	out = append(out, do99...)
	out = append(out, 0x8E, 0x08)
	out = append(out, cc...)
	return append(out, 0x90, 0x00)
}

// Fixture helpers shared by the end-to-end tests.

func buildTLV(tag string, value []byte) []byte {
	out := tlv.Hex(tag)
	switch {
	case len(value) < 0x80:
		out = append(out, byte(len(value)))
	case len(value) <= 0xFF:
		out = append(out, 0x81, byte(len(value)))
	default:
		out = append(out, 0x82, byte(len(value)>>8), byte(len(value)))
	}
	return append(out, value...)
}

func scannedInfo(t *testing.T) *mrz.Info {
	t.Helper()
	lines := encodedLines(t, testIdentity())
	info, err := mrz.Parse(lines[0], lines[1], lines[2])
	if err != nil {
		t.Fatalf("parsing fixture MRZ: %v", err)
	}
	return info
}

func testIdentity() *mrz.Info {
	return &mrz.Info{
		DocumentCode:   "I",
		IssuingState:   "VNM",
		DocumentNumber: "012345678",
		BirthDate:      "850317",
		Sex:            "M",
		ExpiryDate:     "330317",
		Nationality:    "VNM",
		Surname:        "NGUYEN",
		GivenNames:     "VAN A",
	}
}

func mrzParse(lines []string) (*mrz.Info, error) {
	return mrz.Parse(lines[0], lines[1], lines[2])
}

func encodedLines(t *testing.T, info *mrz.Info) []string {
	t.Helper()
	lines, err := info.EncodeLines()
	if err != nil {
		t.Fatalf("encoding fixture MRZ: %v", err)
	}
	return []string{lines[0], lines[1], lines[2]}
}

func buildDG1(t *testing.T, info *mrz.Info) []byte {
	t.Helper()
	lines := encodedLines(t, info)
	return buildTLV("61", buildTLV("5F1F", []byte(lines[0]+lines[1]+lines[2])))
}

func buildDG2(payload []byte) []byte {
	block := append(tlv.Hex("464143003031300000000000"), payload...)
	bioInfo := buildTLV("7F60", append(
		buildTLV("A1", tlv.Hex("870101880102")),
		buildTLV("5F2E", block)...,
	))
	group := buildTLV("7F61", append(buildTLV("02", []byte{0x01}), bioInfo...))
	return buildTLV("75", group)
}

func buildCOM(dgTags []byte) []byte {
	body := buildTLV("5F01", []byte("0107"))
	body = append(body, buildTLV("5F36", []byte("040000"))...)
	body = append(body, buildTLV("5C", dgTags)...)
	return buildTLV("60", body)
}

// defaultChip returns a chip keyed to the scanned MRZ carrying EF.COM, DG1,
// DG2 and an unparsable EF.SOD.
func defaultChip(t *testing.T) (*mockChip, *mrz.Info) {
	t.Helper()
	scanned := scannedInfo(t)

	jpeg := append(tlv.Hex("FFD8FFE000104A464946"), []byte("portrait")...)
	files := map[uint16][]byte{
		lds.FileEFCOM: buildCOM([]byte{0x61, 0x75}),
		0x0101:        buildDG1(t, scanned),
		0x0102:        buildDG2(jpeg),
		lds.FileEFSOD: buildTLV("77", []byte{0xDE, 0xAD, 0xBE, 0xEF}),
	}
	return newMockChip(bac.DeriveDocumentKeys(scanned), files), scanned
}
