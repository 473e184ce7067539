/*
Package transport carries APDUs to a physical contactless chip. It
provides the PC/SC implementation of the transceiver contract consumed by
pkg/iso7816, plus the error classification the retry logic depends on:
losing the RF field mid-read is an everyday event (the holder moves the
card), and such failures are transient, while protocol-level failures are
not.
*/
package transport

import (
	"context"
	"errors"
)

// Sentinel transport errors.
var (
	// ErrTagLost reports that the chip left the reader field.
	ErrTagLost = errors.New("transport: tag lost")

	// ErrTimeout reports that the chip did not answer in time.
	ErrTimeout = errors.New("transport: timeout")

	// ErrNoReader reports that no PC/SC reader is attached.
	ErrNoReader = errors.New("transport: no smart card reader found")
)

// IsTransient reports whether err is worth a retry with a fresh attempt:
// field loss, chip timeouts and expired deadlines. Everything else
// (authentication, integrity, parsing) is a hard failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTagLost) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}
