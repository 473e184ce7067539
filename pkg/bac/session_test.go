package bac

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/qudamyker/eidreader/pkg/iso7816"
	"github.com/qudamyker/eidreader/pkg/tlv"
)

// Appendix D handshake values.
var (
	refRndIC  = tlv.Hex("4608F91988702212")
	refRndIFD = tlv.Hex("781723860C06C226")
	refKIFD   = tlv.Hex("0B795240CB7049B01C19B33E32804F0B")

	refCmdCryptogram = tlv.Hex(
		"72C29C2371CC9BDB65B779B8E8D37B29ECC154AA56A8799FAE2F498F76ED92F2",
		"5F1448EEA8AD90A7",
	)
	refRespCryptogram = tlv.Hex(
		"46B9342A41396CD7386BF5803104D7CEDC122B9132139BAF2EEDC94EE178534F",
		"2F2D235D074D7449",
	)

	refKSenc = tlv.Hex("979EC13B1CBFE9DCD01AB0FED307EAE5")
	refKSmac = tlv.Hex("F1CB1F1FB5ADF208806B89DC579DC1F8")
)

const refSSC = uint64(0x887022120C06C226)

// bacCard answers GET CHALLENGE with a fixed RND.IC and EXTERNAL
// AUTHENTICATE with a canned cryptogram, recording what it received.
type bacCard struct {
	rndIC        []byte
	response     []byte
	receivedAuth []byte
}

func (c *bacCard) Transceive(_ context.Context, cmd []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(cmd, []byte{0x00, 0x84}):
		return append(append([]byte(nil), c.rndIC...), 0x90, 0x00), nil
	case bytes.HasPrefix(cmd, []byte{0x00, 0x82}):
		// Strip header, Lc and trailing Le.
		c.receivedAuth = append([]byte(nil), cmd[5:len(cmd)-1]...)
		return append(append([]byte(nil), c.response...), 0x90, 0x00), nil
	default:
		return []byte{0x6D, 0x00}, nil
	}
}

func newTestSession(card iso7816.Transceiver) *Session {
	return NewSession(SessionConfig{
		Client: iso7816.NewClient(card),
		Keys:   &Keys{Enc: append([]byte(nil), refEnc...), Mac: append([]byte(nil), refMac...)},
		Rand:   bytes.NewReader(append(append([]byte(nil), refRndIFD...), refKIFD...)),
	})
}

func TestAuthenticate_ReferenceVectors(t *testing.T) {
	card := &bacCard{rndIC: refRndIC, response: refRespCryptogram}
	session := newTestSession(card)

	keys, err := session.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	if session.State() != StateAuthenticated {
		t.Errorf("state = %s, want Authenticated", session.State())
	}
	if diff := cmp.Diff(refCmdCryptogram, card.receivedAuth); diff != "" {
		t.Errorf("EXTERNAL AUTHENTICATE payload mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(refKSenc, keys.Keys.Enc); diff != "" {
		t.Errorf("KSenc mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(refKSmac, keys.Keys.Mac); diff != "" {
		t.Errorf("KSmac mismatch (-want +got):\n%s", diff)
	}
	if keys.SSC != refSSC {
		t.Errorf("SSC = %016X, want %016X", keys.SSC, refSSC)
	}
}

func TestAuthenticate_MACVerificationFailure(t *testing.T) {
	tampered := append([]byte(nil), refRespCryptogram...)
	tampered[35] ^= 0x01 // flip a bit inside M.IC

	session := newTestSession(&bacCard{rndIC: refRndIC, response: tampered})

	_, err := session.Authenticate(context.Background())
	if !errors.Is(err, ErrMACVerificationFailed) {
		t.Fatalf("expected ErrMACVerificationFailed, got %v", err)
	}
	if session.State() != StateFailed {
		t.Errorf("state = %s, want Failed", session.State())
	}
}

func TestAuthenticate_NonceMismatch(t *testing.T) {
	// A chip that builds a correctly MACed cryptogram around the wrong
	// RND.IC, as a relay would.
	wrongRndIC := tlv.Hex("0000000000000000")
	kIC := tlv.Hex("0B4F80323EB3191CB04970CB4052790B")

	plain := append(append(append([]byte(nil), wrongRndIC...), refRndIFD...), kIC...)
	eIC, err := EncryptCBC(refEnc, plain)
	if err != nil {
		t.Fatalf("building forged cryptogram: %v", err)
	}
	mIC, err := RetailMAC(refMac, eIC)
	if err != nil {
		t.Fatalf("building forged MAC: %v", err)
	}

	session := newTestSession(&bacCard{rndIC: refRndIC, response: append(eIC, mIC...)})

	_, err = session.Authenticate(context.Background())
	if !errors.Is(err, ErrNonceMismatch) {
		t.Fatalf("expected ErrNonceMismatch, got %v", err)
	}
	if session.State() != StateFailed {
		t.Errorf("state = %s, want Failed", session.State())
	}
}

func TestAuthenticate_ChallengeRejected(t *testing.T) {
	// A card that refuses everything.
	card := iso7816.Transceiver(transceiverFunc(func(_ context.Context, _ []byte) ([]byte, error) {
		return []byte{0x69, 0x85}, nil
	}))
	session := NewSession(SessionConfig{
		Client: iso7816.NewClient(card),
		Keys:   DeriveKeys(refSeed),
	})

	_, err := session.Authenticate(context.Background())
	if !errors.Is(err, ErrChallengeRejected) {
		t.Fatalf("expected ErrChallengeRejected, got %v", err)
	}
}

func TestAuthenticate_SingleUse(t *testing.T) {
	card := &bacCard{rndIC: refRndIC, response: refRespCryptogram}
	session := newTestSession(card)

	if _, err := session.Authenticate(context.Background()); err != nil {
		t.Fatalf("first Authenticate failed: %v", err)
	}
	if _, err := session.Authenticate(context.Background()); !errors.Is(err, ErrSessionConsumed) {
		t.Errorf("expected ErrSessionConsumed on reuse, got %v", err)
	}
}

type transceiverFunc func(ctx context.Context, cmd []byte) ([]byte, error)

func (f transceiverFunc) Transceive(ctx context.Context, cmd []byte) ([]byte, error) {
	return f(ctx, cmd)
}
