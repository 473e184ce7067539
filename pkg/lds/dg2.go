package lds

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/qudamyker/eidreader/pkg/tlv"
)

// ErrNoFaceImage reports a DG2 whose biometric data block contains no
// recognizable image payload.
var ErrNoFaceImage = errors.New("lds: no face image found in DG2")

// ImageFormat identifies the container of the encoded face.
type ImageFormat string

const (
	ImageJPEG     ImageFormat = "jpeg"
	ImageJPEG2000 ImageFormat = "jp2"
)

// FaceImage is the face payload of DG2 with its CBEFF and ISO 19794-5
// framing removed.
type FaceImage struct {
	Format ImageFormat
	Data   []byte
}

// Image container signatures. The facial record header between the
// biometric data tag and the image has a version-dependent layout, so the
// image is located by its magic instead of by fixed offsets.
var (
	jpegMagic     = []byte{0xFF, 0xD8, 0xFF}
	jp2BoxMagic   = []byte{0x00, 0x00, 0x00, 0x0C, 0x6A, 0x50, 0x20, 0x20}
	jp2CodeStream = []byte{0xFF, 0x4F, 0xFF, 0x51}
)

// ParseDG2 walks the CBEFF structure of a DG2 file (75 -> 7F61 -> 7F60 ->
// 5F2E or 7F2E) and extracts the first face image.
func ParseDG2(data []byte) (*FaceImage, error) {
	body, err := tlv.GetValue(data, 0x75)
	if err != nil {
		return nil, fmt.Errorf("lds: DG2: %w", err)
	}
	group, err := tlv.GetValue(body, 0x7F61)
	if err != nil {
		return nil, fmt.Errorf("lds: DG2: %w", err)
	}
	info, err := tlv.GetValue(group, 0x7F60)
	if err != nil {
		return nil, fmt.Errorf("lds: DG2: %w", err)
	}

	block, err := tlv.GetValue(info, 0x5F2E)
	if err != nil {
		block, err = tlv.GetValue(info, 0x7F2E)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: missing biometric data block", ErrNoFaceImage)
	}

	return extractImage(block)
}

// extractImage locates the image inside a biometric data block by its
// container magic.
func extractImage(block []byte) (*FaceImage, error) {
	if i := bytes.Index(block, jpegMagic); i >= 0 {
		return &FaceImage{Format: ImageJPEG, Data: block[i:]}, nil
	}
	if i := bytes.Index(block, jp2BoxMagic); i >= 0 {
		return &FaceImage{Format: ImageJPEG2000, Data: block[i:]}, nil
	}
	if i := bytes.Index(block, jp2CodeStream); i >= 0 {
		return &FaceImage{Format: ImageJPEG2000, Data: block[i:]}, nil
	}
	return nil, ErrNoFaceImage
}
