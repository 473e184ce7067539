package lds

import (
	encasn1 "encoding/asn1"
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	casn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/qudamyker/eidreader/pkg/tlv"
)

// ErrMalformedSOD reports an EF.SOD whose CMS structure could not be
// walked. Callers treat this as a degraded read, not a failure: the data
// groups themselves remain usable.
var ErrMalformedSOD = errors.New("lds: malformed security object")

var (
	oidSignedData        = encasn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	oidLDSSecurityObject = encasn1.ObjectIdentifier{2, 23, 136, 1, 1, 1}

	// Some issuers label the encapsulated content id-data instead of
	// ldsSecurityObject.
	oidData = encasn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
)

var digestNames = map[string]string{
	"1.3.14.3.2.26":          "SHA-1",
	"2.16.840.1.101.3.4.2.4": "SHA-224",
	"2.16.840.1.101.3.4.2.1": "SHA-256",
	"2.16.840.1.101.3.4.2.2": "SHA-384",
	"2.16.840.1.101.3.4.2.3": "SHA-512",
}

// SecurityObject is the hash manifest from EF.SOD: the digest algorithm and
// the expected hash of each data group. The document signer signature over
// this manifest is NOT verified.
type SecurityObject struct {
	DigestAlgorithm string
	Hashes          map[int][]byte
}

// Hash returns the expected digest of data group n, or nil when the
// manifest has no entry for it.
func (s *SecurityObject) Hash(n int) []byte {
	if s == nil {
		return nil
	}
	return s.Hashes[n]
}

// ParseSecurityObject decodes an EF.SOD file: the application tag 77
// wraps a CMS SignedData whose encapsulated content is the
// LDSSecurityObject.
func ParseSecurityObject(data []byte) (*SecurityObject, error) {
	if len(data) == 0 || data[0] != 0x77 {
		return nil, fmt.Errorf("%w: unexpected outer tag", ErrMalformedSOD)
	}
	hdr, err := tlv.DecodeHeader(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSOD, err)
	}
	if hdr.Total() > len(data) {
		return nil, fmt.Errorf("%w: truncated (%d of %d bytes)", ErrMalformedSOD, len(data), hdr.Total())
	}
	content := cryptobyte.String(data[hdr.TagLen+hdr.LenLen : hdr.Total()])

	var contentInfo cryptobyte.String
	if !content.ReadASN1(&contentInfo, casn1.SEQUENCE) {
		return nil, fmt.Errorf("%w: no ContentInfo", ErrMalformedSOD)
	}
	var contentType encasn1.ObjectIdentifier
	if !contentInfo.ReadASN1ObjectIdentifier(&contentType) || !contentType.Equal(oidSignedData) {
		return nil, fmt.Errorf("%w: content type is not SignedData", ErrMalformedSOD)
	}

	var explicit, signedData cryptobyte.String
	if !contentInfo.ReadASN1(&explicit, casn1.Tag(0).Constructed().ContextSpecific()) ||
		!explicit.ReadASN1(&signedData, casn1.SEQUENCE) {
		return nil, fmt.Errorf("%w: no SignedData", ErrMalformedSOD)
	}

	// version, digestAlgorithms
	if !signedData.SkipASN1(casn1.INTEGER) || !signedData.SkipASN1(casn1.SET) {
		return nil, fmt.Errorf("%w: bad SignedData prologue", ErrMalformedSOD)
	}

	var encap cryptobyte.String
	if !signedData.ReadASN1(&encap, casn1.SEQUENCE) {
		return nil, fmt.Errorf("%w: no EncapsulatedContentInfo", ErrMalformedSOD)
	}
	var eContentType encasn1.ObjectIdentifier
	if !encap.ReadASN1ObjectIdentifier(&eContentType) {
		return nil, fmt.Errorf("%w: no eContentType", ErrMalformedSOD)
	}
	if !eContentType.Equal(oidLDSSecurityObject) && !eContentType.Equal(oidData) {
		return nil, fmt.Errorf("%w: unexpected eContentType %s", ErrMalformedSOD, eContentType)
	}

	var eWrap, eContent cryptobyte.String
	if !encap.ReadASN1(&eWrap, casn1.Tag(0).Constructed().ContextSpecific()) ||
		!eWrap.ReadASN1(&eContent, casn1.OCTET_STRING) {
		return nil, fmt.Errorf("%w: no eContent", ErrMalformedSOD)
	}

	return parseLDSSecurityObject(eContent)
}

// parseLDSSecurityObject decodes the manifest itself:
//
//	LDSSecurityObject ::= SEQUENCE {
//	  version             INTEGER,
//	  hashAlgorithm       AlgorithmIdentifier,
//	  dataGroupHashValues SEQUENCE OF DataGroupHash }
//	DataGroupHash ::= SEQUENCE {
//	  dataGroupNumber     INTEGER,
//	  dataGroupHashValue  OCTET STRING }
func parseLDSSecurityObject(der cryptobyte.String) (*SecurityObject, error) {
	var lso cryptobyte.String
	if !der.ReadASN1(&lso, casn1.SEQUENCE) {
		return nil, fmt.Errorf("%w: no LDSSecurityObject", ErrMalformedSOD)
	}
	if !lso.SkipASN1(casn1.INTEGER) {
		return nil, fmt.Errorf("%w: no version", ErrMalformedSOD)
	}

	var alg cryptobyte.String
	var algOID encasn1.ObjectIdentifier
	if !lso.ReadASN1(&alg, casn1.SEQUENCE) || !alg.ReadASN1ObjectIdentifier(&algOID) {
		return nil, fmt.Errorf("%w: no hash algorithm", ErrMalformedSOD)
	}
	name, ok := digestNames[algOID.String()]
	if !ok {
		name = algOID.String()
	}

	var entries cryptobyte.String
	if !lso.ReadASN1(&entries, casn1.SEQUENCE) {
		return nil, fmt.Errorf("%w: no hash values", ErrMalformedSOD)
	}

	hashes := make(map[int][]byte)
	for !entries.Empty() {
		var entry cryptobyte.String
		var dg int
		var value cryptobyte.String
		if !entries.ReadASN1(&entry, casn1.SEQUENCE) ||
			!entry.ReadASN1Integer(&dg) ||
			!entry.ReadASN1(&value, casn1.OCTET_STRING) {
			return nil, fmt.Errorf("%w: bad DataGroupHash entry", ErrMalformedSOD)
		}
		hashes[dg] = append([]byte(nil), value...)
	}

	return &SecurityObject{DigestAlgorithm: name, Hashes: hashes}, nil
}
