package iso7816

import (
	"fmt"

	"github.com/qudamyker/eidreader/pkg/bits"
)

// Class byte (CLA) structure per ISO/IEC 7816-4.
//
// Bit 8: proprietary (1) or interindustry (0).
// Bit 7: first (0) or further (1) interindustry encoding.
// Bit 5: command chaining.
//
// First interindustry (00xx xxxx): bits 4-3 carry the secure-messaging
// indication, bits 2-1 the logical channel (0-3).
//
// Further interindustry (01xx xxxx): bit 6 carries a one-bit SM indication,
// bits 4-1 the logical channel minus 4 (channels 4-19).

// SecureMessaging is the SM indication carried by the class byte.
type SecureMessaging int

const (
	// SMNone indicates no secure messaging.
	SMNone SecureMessaging = 0
	// SMProprietary indicates a proprietary SM format.
	SMProprietary SecureMessaging = 1
	// SMHeaderNoProc indicates ISO secure messaging, header not processed.
	SMHeaderNoProc SecureMessaging = 2
	// SMHeaderAuth indicates ISO secure messaging with an authenticated
	// header. eMRTD secure messaging (CLA 0x0C) uses this mode.
	SMHeaderAuth SecureMessaging = 3
)

// Class represents the parsed CLA byte.
type Class struct {
	Raw             byte
	IsProprietary   bool
	IsChained       bool
	SecureMessaging SecureMessaging
	Channel         uint8
}

// NewClass decodes a raw CLA byte.
func NewClass(cla byte) (Class, error) {
	if cla == 0xFF {
		return Class{}, fmt.Errorf("invalid CLA value: 0xFF is reserved")
	}

	c := Class{Raw: cla}

	if bits.IsSet(cla, 8) {
		c.IsProprietary = true
		return c, nil
	}

	c.IsChained = bits.IsSet(cla, 5)

	if !bits.IsSet(cla, 7) {
		// First interindustry.
		c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
		c.Channel = bits.GetRange(cla, 2, 1)
	} else {
		// Further interindustry.
		if bits.IsSet(cla, 6) {
			c.SecureMessaging = SMHeaderNoProc
		}
		c.Channel = bits.GetRange(cla, 4, 1) + 4
	}

	return c, nil
}

// PlainClass is the unprotected first-interindustry class on channel 0
// (CLA 0x00), used for all commands before a secure session exists.
func PlainClass() Class {
	c, _ := NewClass(0x00)
	return c
}

// ProtectedClass is the secure-messaging class used for every command after
// authentication (CLA 0x0C: ISO SM, header authenticated, channel 0).
func ProtectedClass() Class {
	c, _ := NewClass(0x0C)
	return c
}

// Encode converts the Class back to its byte representation.
func (c *Class) Encode() (byte, error) {
	if c.IsProprietary {
		return c.Raw, nil
	}
	if c.Channel > 19 {
		return 0, fmt.Errorf("channel %d out of range (max 19)", c.Channel)
	}

	var res byte

	if c.Channel <= 3 {
		if c.IsChained {
			res = bits.Set(res, 5)
		}
		res |= byte(c.SecureMessaging) << 2
		res |= c.Channel
	} else {
		// Further interindustry supports only a one-bit SM indication.
		if c.SecureMessaging == SMProprietary || c.SecureMessaging == SMHeaderAuth {
			return 0, fmt.Errorf("SM indication %d not encodable on channels 4-19", c.SecureMessaging)
		}
		res = bits.Set(res, 7)
		if c.IsChained {
			res = bits.Set(res, 5)
		}
		if c.SecureMessaging != SMNone {
			res = bits.Set(res, 6)
		}
		res |= c.Channel - 4
	}

	return res, nil
}

// Verbose returns a readable description of the class configuration.
func (c Class) Verbose() string {
	if c.IsProprietary {
		return fmt.Sprintf("Class: Proprietary (0x%02X)", c.Raw)
	}

	sm := "None"
	switch c.SecureMessaging {
	case SMProprietary:
		sm = "Proprietary"
	case SMHeaderNoProc:
		sm = "ISO (header not processed)"
	case SMHeaderAuth:
		sm = "ISO (header authenticated)"
	}

	chaining := "last or only"
	if c.IsChained {
		chaining = "chained"
	}

	return fmt.Sprintf("CLA 0x%02X | SM: %s | Chaining: %s | Channel: %d",
		c.Raw, sm, chaining, c.Channel)
}
