/*
Package secure implements ISO 7816-4 secure messaging as profiled for
BAC-derived eMRTD sessions (ICAO 9303 Part 11): every command after mutual
authentication is encrypted and MACed under the session keys, bound to a
send sequence counter that both sides advance in lockstep.

Wire format of a protected command:

	CLA'=0x0C INS P1 P2 Lc [DO'87'] [DO'97'] DO'8E' Le=00

where DO'87' carries 0x01 || 3DES-CBC(KSenc, pad(data)), DO'97' the
expected length, and DO'8E' the retail MAC over SSC || padded header ||
preceding data objects. Responses carry DO'87' (body), DO'99' (status) and
DO'8E' (MAC over SSC || DO'87' || DO'99').

The MAC of a response is always verified before anything is decrypted. A
failed check poisons the channel: every later call fails, and the caller
must re-authenticate from scratch. The counter never wraps silently;
overflow is a fatal error.
*/
package secure

import (
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/pion/logging"
	"github.com/qudamyker/eidreader/pkg/bac"
	"github.com/qudamyker/eidreader/pkg/iso7816"
)

// Secure messaging errors.
var (
	// ErrIntegrityCheckFailed reports a response whose MAC did not verify
	// or whose mandatory data objects were missing. Fatal for the session.
	ErrIntegrityCheckFailed = errors.New("secure: response integrity check failed")

	// ErrCounterOverflow reports send sequence counter exhaustion. Fatal
	// for the session.
	ErrCounterOverflow = errors.New("secure: send sequence counter overflow")

	// ErrChannelClosed reports use of a closed or poisoned channel.
	ErrChannelClosed = errors.New("secure: channel closed")

	// ErrCommandRejected reports a command the chip refused at the secure
	// messaging layer (non-success outer status word).
	ErrCommandRejected = errors.New("secure: command rejected by chip")
)

// Secure messaging data object tags.
const (
	doCryptogram = 0x87 // padding-indicator || encrypted data
	doLe         = 0x97 // expected response length
	doStatus     = 0x99 // processing status of the protected command
	doMAC        = 0x8E // cryptographic checksum
)

// Channel is an authenticated secure-messaging channel. It owns the
// session keys it was created with and wipes them on Close. A Channel is
// single-goroutine by design: the underlying protocol is strictly
// sequential.
type Channel struct {
	keys     *bac.SessionKeys
	ssc      uint64
	poisoned bool
	closed   bool
	log      logging.LeveledLogger
}

// NewChannel creates a channel from freshly derived session keys. The
// channel takes ownership of the key material.
func NewChannel(keys *bac.SessionKeys, loggerFactory logging.LoggerFactory) *Channel {
	c := &Channel{keys: keys, ssc: keys.SSC}
	if loggerFactory != nil {
		c.log = loggerFactory.NewLogger("secure")
	}
	return c
}

// SSC returns the current counter value, for tests and diagnostics.
func (c *Channel) SSC() uint64 {
	return c.ssc
}

// Close wipes the session keys and renders the channel unusable.
// Idempotent.
func (c *Channel) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.keys.Wipe()
}

// poison marks the channel unusable after a fatal protocol violation and
// destroys its keys. Recovery requires a full re-authentication.
func (c *Channel) poison() {
	c.poisoned = true
	c.keys.Wipe()
}

func (c *Channel) usable() error {
	if c.closed || c.poisoned {
		return ErrChannelClosed
	}
	return nil
}

// step advances the send sequence counter, failing closed on overflow.
func (c *Channel) step() error {
	if c.ssc == math.MaxUint64 {
		c.poison()
		return ErrCounterOverflow
	}
	c.ssc++
	return nil
}

// Wrap protects a plain command for transmission. The input command is not
// modified.
func (c *Channel) Wrap(cmd *iso7816.CommandAPDU) (*iso7816.CommandAPDU, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	if err := c.step(); err != nil {
		return nil, err
	}

	header := [4]byte{0x0C, byte(cmd.Instruction.Raw), cmd.P1, cmd.P2}

	var dataObjects []byte

	if len(cmd.Data) > 0 {
		ct, err := bac.EncryptCBC(c.keys.Keys.Enc, bac.Pad(cmd.Data))
		if err != nil {
			return nil, err
		}
		value := append([]byte{0x01}, ct...)
		dataObjects = append(dataObjects, encodeDO(doCryptogram, value)...)
	}

	if cmd.Ne > 0 {
		le := byte(cmd.Ne)
		if cmd.Ne == iso7816.MaxShortLe {
			le = 0x00
		}
		dataObjects = append(dataObjects, doLe, 0x01, le)
	}

	mac, err := c.checksum(bac.Pad(header[:]), dataObjects)
	if err != nil {
		return nil, err
	}
	dataObjects = append(dataObjects, doMAC, bac.MACLength)
	dataObjects = append(dataObjects, mac...)

	return iso7816.NewCommandAPDU(
		iso7816.ProtectedClass(), cmd.Instruction, cmd.P1, cmd.P2, dataObjects, iso7816.MaxShortLe,
	), nil
}

// Unwrap authenticates and decrypts a protected response. The MAC is
// verified before any decryption; a failure destroys the channel.
func (c *Channel) Unwrap(resp *iso7816.ResponseAPDU) (*iso7816.ResponseAPDU, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	if err := c.step(); err != nil {
		return nil, err
	}

	objects, err := splitDataObjects(resp.Data)
	if err != nil {
		c.poison()
		return nil, fmt.Errorf("%w: %v", ErrIntegrityCheckFailed, err)
	}
	if objects.status == nil || objects.mac == nil {
		c.poison()
		return nil, fmt.Errorf("%w: mandatory data objects missing", ErrIntegrityCheckFailed)
	}

	expected, err := c.checksum(objects.cryptogramRaw, objects.statusRaw)
	if err != nil {
		c.poison()
		return nil, err
	}
	if subtle.ConstantTimeCompare(expected, objects.mac) != 1 {
		c.poison()
		if c.log != nil {
			c.log.Warn("response MAC mismatch, destroying session")
		}
		return nil, ErrIntegrityCheckFailed
	}

	var plain []byte
	if objects.cryptogram != nil {
		if len(objects.cryptogram) < 2 || objects.cryptogram[0] != 0x01 {
			c.poison()
			return nil, fmt.Errorf("%w: bad padding indicator", ErrIntegrityCheckFailed)
		}
		padded, err := bac.DecryptCBC(c.keys.Keys.Enc, objects.cryptogram[1:])
		if err != nil {
			c.poison()
			return nil, err
		}
		plain, err = bac.Unpad(padded)
		if err != nil {
			c.poison()
			return nil, fmt.Errorf("%w: %v", ErrIntegrityCheckFailed, err)
		}
	}

	return &iso7816.ResponseAPDU{
		Data:   plain,
		Status: iso7816.NewStatusWord(objects.status[0], objects.status[1]),
	}, nil
}

// Exchange wraps cmd, sends it through the client and unwraps the final
// response. The outer status word must indicate success; anything else
// means the secure messaging layer itself broke down.
func (c *Channel) Exchange(ctx context.Context, client *iso7816.Client, cmd *iso7816.CommandAPDU) (*iso7816.ResponseAPDU, error) {
	wrapped, err := c.Wrap(cmd)
	if err != nil {
		return nil, err
	}

	trace, err := client.Send(ctx, wrapped)
	if err != nil {
		return nil, err
	}
	if !trace.IsSuccess() {
		c.poison()
		return nil, fmt.Errorf("%w: %s", ErrCommandRejected, trace.Status().Verbose())
	}

	last := trace.Last().Response
	return c.Unwrap(last)
}

// checksum computes the retail MAC over SSC || parts..., with the final
// ISO padding applied by the MAC itself.
func (c *Channel) checksum(parts ...[]byte) ([]byte, error) {
	var ssc [8]byte
	binary.BigEndian.PutUint64(ssc[:], c.ssc)

	input := append([]byte(nil), ssc[:]...)
	for _, p := range parts {
		input = append(input, p...)
	}
	return bac.RetailMAC(c.keys.Keys.Mac, input)
}

// encodeDO builds a tag-length-value data object with BER short or
// two-byte long-form length.
func encodeDO(tag byte, value []byte) []byte {
	out := []byte{tag}
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

// responseObjects holds the parsed data objects of a protected response.
// The Raw variants keep the full TLV encoding for MAC recomputation.
type responseObjects struct {
	cryptogram    []byte
	cryptogramRaw []byte
	status        []byte
	statusRaw     []byte
	mac           []byte
}

// splitDataObjects walks the concatenated DOs of a response body.
func splitDataObjects(data []byte) (*responseObjects, error) {
	var objects responseObjects

	for offset := 0; offset < len(data); {
		if len(data)-offset < 2 {
			return nil, fmt.Errorf("truncated data object at offset %d", offset)
		}
		tag := data[offset]

		valueStart := offset + 2
		valueLen := int(data[offset+1])
		switch data[offset+1] {
		case 0x81:
			if len(data)-offset < 3 {
				return nil, fmt.Errorf("truncated long-form length")
			}
			valueLen = int(data[offset+2])
			valueStart = offset + 3
		case 0x82:
			if len(data)-offset < 4 {
				return nil, fmt.Errorf("truncated long-form length")
			}
			valueLen = int(data[offset+2])<<8 | int(data[offset+3])
			valueStart = offset + 4
		}

		if valueStart+valueLen > len(data) {
			return nil, fmt.Errorf("data object 0x%02X overruns response", tag)
		}
		value := data[valueStart : valueStart+valueLen]
		raw := data[offset : valueStart+valueLen]

		switch tag {
		case doCryptogram:
			objects.cryptogram = value
			objects.cryptogramRaw = raw
		case doStatus:
			if valueLen != 2 {
				return nil, fmt.Errorf("status object with length %d", valueLen)
			}
			objects.status = value
			objects.statusRaw = raw
		case doMAC:
			if valueLen != bac.MACLength {
				return nil, fmt.Errorf("MAC object with length %d", valueLen)
			}
			objects.mac = value
		default:
			return nil, fmt.Errorf("unexpected data object 0x%02X", tag)
		}

		offset = valueStart + valueLen
	}

	return &objects, nil
}
