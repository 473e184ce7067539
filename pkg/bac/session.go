package bac

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/pion/logging"
	"github.com/qudamyker/eidreader/pkg/iso7816"
)

// Authentication errors. Every one of them is terminal for the current
// attempt: the caller must start a fresh Session (with fresh nonces) to
// try again.
var (
	// ErrChallengeRejected reports a non-success status for GET CHALLENGE.
	ErrChallengeRejected = errors.New("bac: chip rejected GET CHALLENGE")

	// ErrAuthRejected reports a non-success status for EXTERNAL
	// AUTHENTICATE, typically meaning the MRZ-derived keys are wrong.
	ErrAuthRejected = errors.New("bac: chip rejected EXTERNAL AUTHENTICATE")

	// ErrMACVerificationFailed reports a bad MAC on the chip's cryptogram.
	// The cryptogram is never decrypted in that case.
	ErrMACVerificationFailed = errors.New("bac: response MAC verification failed")

	// ErrNonceMismatch reports that the decrypted chip cryptogram did not
	// echo our nonces, indicating a relayed or forged response.
	ErrNonceMismatch = errors.New("bac: nonce mismatch in chip response")

	// ErrSessionConsumed reports reuse of a Session; nonces are generated
	// once per Session and must never be replayed.
	ErrSessionConsumed = errors.New("bac: session already used, create a new one")
)

// State is the explicit authentication state. Transitions only move
// forward; any failure lands in StateFailed and stays there.
type State int

const (
	StateIdle State = iota
	StateChallengeReceived
	StateMutualAuthSent
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateChallengeReceived:
		return "ChallengeReceived"
	case StateMutualAuthSent:
		return "MutualAuthSent"
	case StateAuthenticated:
		return "Authenticated"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// SessionKeys is the outcome of a successful handshake: the secure
// messaging key pair and the initial send sequence counter.
type SessionKeys struct {
	Keys *Keys
	SSC  uint64
}

// Wipe destroys the session key material.
func (s *SessionKeys) Wipe() {
	if s == nil {
		return
	}
	s.Keys.Wipe()
	s.SSC = 0
}

// Session performs one BAC handshake. It is single-use: the ephemeral
// nonces RND.IFD and K.IFD are generated once, and a failed or completed
// Session cannot be restarted.
type Session struct {
	client *iso7816.Client
	keys   *Keys // document keys, owned by the caller
	state  State
	rand   io.Reader
	log    logging.LeveledLogger

	rndIC  []byte
	rndIFD []byte
	kIFD   []byte
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Client *iso7816.Client
	Keys   *Keys // document keys from DeriveDocumentKeys

	// Rand is the entropy source for RND.IFD and K.IFD. Defaults to
	// crypto/rand; tests inject fixed values.
	Rand io.Reader

	// LoggerFactory creates the session logger. If nil, logging is
	// disabled.
	LoggerFactory logging.LoggerFactory
}

// NewSession creates a Session in StateIdle.
func NewSession(config SessionConfig) *Session {
	s := &Session{
		client: config.Client,
		keys:   config.Keys,
		state:  StateIdle,
		rand:   config.Rand,
	}
	if s.rand == nil {
		s.rand = rand.Reader
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("bac")
	}
	return s
}

// State returns the current handshake state.
func (s *Session) State() State {
	return s.state
}

// Authenticate runs the full handshake: GET CHALLENGE, cryptogram
// exchange, mutual verification and session key derivation. On success
// the session is in StateAuthenticated and the returned keys are live;
// on any failure the session is in StateFailed and every intermediate
// secret has been wiped.
func (s *Session) Authenticate(ctx context.Context) (*SessionKeys, error) {
	if s.state != StateIdle {
		return nil, fmt.Errorf("%w (state %s)", ErrSessionConsumed, s.state)
	}
	defer s.cleanup()

	if err := s.getChallenge(ctx); err != nil {
		return nil, err
	}
	keys, err := s.mutualAuthenticate(ctx)
	if err != nil {
		return nil, err
	}

	s.state = StateAuthenticated
	if s.log != nil {
		s.log.Info("mutual authentication complete, session keys established")
	}
	return keys, nil
}

// getChallenge transitions Idle -> ChallengeReceived.
func (s *Session) getChallenge(ctx context.Context) error {
	trace, err := s.client.Send(ctx, iso7816.GetChallenge(iso7816.PlainClass()))
	if err != nil {
		s.state = StateFailed
		return fmt.Errorf("get challenge: %w", err)
	}
	if !trace.IsSuccess() {
		s.state = StateFailed
		return fmt.Errorf("%w: %s", ErrChallengeRejected, trace.Status().Verbose())
	}

	rndIC := trace.Data()
	if len(rndIC) != iso7816.ChallengeLength {
		s.state = StateFailed
		return fmt.Errorf("%w: challenge length %d", ErrChallengeRejected, len(rndIC))
	}

	s.rndIC = append([]byte(nil), rndIC...)
	s.state = StateChallengeReceived
	if s.log != nil {
		s.log.Debugf("received RND.IC (%d bytes)", len(rndIC))
	}
	return nil
}

// mutualAuthenticate transitions ChallengeReceived -> MutualAuthSent ->
// Authenticated, deriving the session keys from K.IFD xor K.IC.
func (s *Session) mutualAuthenticate(ctx context.Context) (*SessionKeys, error) {
	s.rndIFD = make([]byte, 8)
	s.kIFD = make([]byte, KeyLength)
	if _, err := io.ReadFull(s.rand, s.rndIFD); err != nil {
		s.state = StateFailed
		return nil, fmt.Errorf("generating RND.IFD: %w", err)
	}
	if _, err := io.ReadFull(s.rand, s.kIFD); err != nil {
		s.state = StateFailed
		return nil, fmt.Errorf("generating K.IFD: %w", err)
	}

	// S = RND.IFD || RND.IC || K.IFD, encrypted under the document key.
	plain := make([]byte, 0, 32)
	plain = append(plain, s.rndIFD...)
	plain = append(plain, s.rndIC...)
	plain = append(plain, s.kIFD...)
	defer Wipe(plain)

	eIFD, err := EncryptCBC(s.keys.Enc, plain)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}
	mIFD, err := RetailMAC(s.keys.Mac, eIFD)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}

	cryptogram := append(eIFD, mIFD...)
	trace, err := s.client.Send(ctx, iso7816.ExternalAuthenticate(iso7816.PlainClass(), cryptogram))
	s.state = StateMutualAuthSent
	if err != nil {
		s.state = StateFailed
		return nil, fmt.Errorf("external authenticate: %w", err)
	}
	if !trace.IsSuccess() {
		s.state = StateFailed
		return nil, fmt.Errorf("%w: %s", ErrAuthRejected, trace.Status().Verbose())
	}

	resp := trace.Data()
	if len(resp) != iso7816.MutualAuthLength {
		s.state = StateFailed
		return nil, fmt.Errorf("%w: response length %d", ErrAuthRejected, len(resp))
	}
	eIC, mIC := resp[:32], resp[32:]

	// Fail closed: verify the MAC before anything is decrypted.
	expectedMAC, err := RetailMAC(s.keys.Mac, eIC)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}
	if subtle.ConstantTimeCompare(expectedMAC, mIC) != 1 {
		s.state = StateFailed
		return nil, ErrMACVerificationFailed
	}

	decrypted, err := DecryptCBC(s.keys.Enc, eIC)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}
	defer Wipe(decrypted)

	// R = RND.IC || RND.IFD || K.IC; both echoed nonces must match ours.
	rndICEcho, rndIFDEcho, kIC := decrypted[:8], decrypted[8:16], decrypted[16:32]
	if subtle.ConstantTimeCompare(rndICEcho, s.rndIC) != 1 ||
		subtle.ConstantTimeCompare(rndIFDEcho, s.rndIFD) != 1 {
		s.state = StateFailed
		return nil, ErrNonceMismatch
	}

	seed := make([]byte, KeyLength)
	for i := range seed {
		seed[i] = s.kIFD[i] ^ kIC[i]
	}
	defer Wipe(seed)

	return &SessionKeys{
		Keys: DeriveKeys(seed),
		SSC:  initialSSC(s.rndIC, s.rndIFD),
	}, nil
}

// initialSSC builds the send sequence counter from the low halves of the
// two nonces: RND.IC[4:8] || RND.IFD[4:8].
func initialSSC(rndIC, rndIFD []byte) uint64 {
	var ssc [8]byte
	copy(ssc[:4], rndIC[4:8])
	copy(ssc[4:], rndIFD[4:8])
	return binary.BigEndian.Uint64(ssc[:])
}

// cleanup wipes the ephemeral handshake secrets. The document keys belong
// to the caller and the session keys to the secure channel; neither is
// touched here.
func (s *Session) cleanup() {
	Wipe(s.rndIFD)
	Wipe(s.kIFD)
	s.rndIFD = nil
	s.kIFD = nil
	s.rndIC = nil
}
