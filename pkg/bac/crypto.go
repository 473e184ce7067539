// Package bac implements Basic Access Control (ICAO 9303 Part 11): the
// derivation of document access keys from the machine readable zone, the
// GET CHALLENGE / EXTERNAL AUTHENTICATE mutual authentication handshake,
// and the derivation of the secure-messaging session keys it produces.
//
// The cryptographic profile is fixed by the standard: SHA-1 based key
// derivation, two-key 3DES in CBC mode with a zero IV, and ISO/IEC 9797-1
// MAC algorithm 3 (the DES "retail MAC") with padding method 2.
package bac

import (
	"crypto/cipher"
	"crypto/des"
	"crypto/sha1"
	"fmt"

	"github.com/qudamyker/eidreader/pkg/mrz"
)

// KeyLength is the length of every BAC-level key: two concatenated
// single-DES keys.
const KeyLength = 16

// BlockSize is the DES/3DES block size.
const BlockSize = 8

// MACLength is the retail MAC output length.
const MACLength = 8

// Key derivation counters (ICAO 9303 Part 11, 9.7.1).
const (
	counterEnc uint32 = 1
	counterMac uint32 = 2
)

// Keys is a pair of 16-byte 3DES keys: Enc for confidentiality, Mac for
// the retail MAC. The same structure carries the static document keys and
// the per-session keys; both are wiped when their owner finishes.
type Keys struct {
	Enc []byte
	Mac []byte
}

// Wipe zeroizes the key material. Safe to call more than once.
func (k *Keys) Wipe() {
	if k == nil {
		return
	}
	Wipe(k.Enc)
	Wipe(k.Mac)
}

// Wipe overwrites b with zeros. Key material is cleared explicitly on
// every exit path rather than left to the garbage collector.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// DeriveDocumentKeys derives the static BAC keys from a scanned MRZ:
// Kseed is the first 16 bytes of SHA-1 over the MRZ information string,
// and the key pair follows from deriveKeys. Identical MRZ input always
// yields identical keys.
func DeriveDocumentKeys(info *mrz.Info) *Keys {
	h := sha1.Sum([]byte(info.MRZInformation()))
	seed := h[:KeyLength]
	defer Wipe(h[:])
	return DeriveKeys(seed)
}

// DeriveKeys derives an Enc/Mac key pair from a 16-byte seed:
// K = SHA1(seed || counter)[0:16] with the DES parity bits adjusted,
// counter 1 for Enc and 2 for Mac. Used for both the document keys and
// the session keys (where the seed is K.IFD xor K.IC).
func DeriveKeys(seed []byte) *Keys {
	return &Keys{
		Enc: deriveKey(seed, counterEnc),
		Mac: deriveKey(seed, counterMac),
	}
}

func deriveKey(seed []byte, counter uint32) []byte {
	h := sha1.New()
	h.Write(seed)
	h.Write([]byte{byte(counter >> 24), byte(counter >> 16), byte(counter >> 8), byte(counter)})
	digest := h.Sum(nil)
	defer Wipe(digest)

	key := make([]byte, KeyLength)
	copy(key, digest[:KeyLength])
	AdjustParity(key)
	return key
}

// AdjustParity sets the least significant bit of every byte so the byte
// has odd parity, as DES key schedules expect.
func AdjustParity(key []byte) {
	for i, b := range key {
		parity := 0
		for v := b >> 1; v != 0; v >>= 1 {
			parity += int(v & 1)
		}
		if parity%2 == 0 {
			key[i] = b&0xFE | 0x01
		} else {
			key[i] = b & 0xFE
		}
	}
}

// tdes builds a two-key 3DES cipher (K1, K2, K1) from a 16-byte key.
func tdes(key []byte) (cipher.Block, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("bac: 3DES key must be %d bytes, got %d", KeyLength, len(key))
	}
	full := make([]byte, 24)
	copy(full, key)
	copy(full[16:], key[:8])
	defer Wipe(full)
	return des.NewTripleDESCipher(full)
}

// EncryptCBC encrypts data (already a multiple of the block size) with
// two-key 3DES in CBC mode and a zero IV.
func EncryptCBC(key, data []byte) ([]byte, error) {
	block, err := tdes(key)
	if err != nil {
		return nil, err
	}
	if len(data)%BlockSize != 0 {
		return nil, fmt.Errorf("bac: plaintext length %d not block-aligned", len(data))
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, make([]byte, BlockSize)).CryptBlocks(out, data)
	return out, nil
}

// DecryptCBC is the inverse of EncryptCBC.
func DecryptCBC(key, data []byte) ([]byte, error) {
	block, err := tdes(key)
	if err != nil {
		return nil, err
	}
	if len(data)%BlockSize != 0 {
		return nil, fmt.Errorf("bac: ciphertext length %d not block-aligned", len(data))
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, make([]byte, BlockSize)).CryptBlocks(out, data)
	return out, nil
}

// Pad appends ISO/IEC 9797-1 padding method 2: a mandatory 0x80 byte, then
// zeros up to the next block boundary.
func Pad(data []byte) []byte {
	out := make([]byte, 0, len(data)+BlockSize)
	out = append(out, data...)
	out = append(out, 0x80)
	for len(out)%BlockSize != 0 {
		out = append(out, 0x00)
	}
	return out
}

// Unpad strips padding method 2, failing if no 0x80 marker is found.
func Unpad(data []byte) ([]byte, error) {
	for i := len(data) - 1; i >= 0; i-- {
		switch data[i] {
		case 0x00:
			continue
		case 0x80:
			return data[:i], nil
		default:
			return nil, fmt.Errorf("bac: malformed padding byte 0x%02X", data[i])
		}
	}
	return nil, fmt.Errorf("bac: padding marker not found")
}

// RetailMAC computes ISO/IEC 9797-1 MAC algorithm 3 over msg: single-DES
// CBC with the first key half, with a final 3DES transform (decrypt under
// the second half, re-encrypt under the first). msg is padded with method
// 2 before MACing.
func RetailMAC(key, msg []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("bac: MAC key must be %d bytes, got %d", KeyLength, len(key))
	}
	k1, err := des.NewCipher(key[:8])
	if err != nil {
		return nil, err
	}
	k2, err := des.NewCipher(key[8:])
	if err != nil {
		return nil, err
	}

	padded := Pad(msg)
	mac := make([]byte, BlockSize)
	for i := 0; i < len(padded); i += BlockSize {
		for j := 0; j < BlockSize; j++ {
			mac[j] ^= padded[i+j]
		}
		k1.Encrypt(mac, mac)
	}
	k2.Decrypt(mac, mac)
	k1.Encrypt(mac, mac)
	return mac, nil
}
