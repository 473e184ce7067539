package reader

import (
	"math"
	"math/rand"
	"time"
)

// RandomSource provides the random values for backoff jitter. Tests inject
// a deterministic source.
type RandomSource interface {
	// Float64 returns a random float64 in [0.0, 1.0).
	Float64() float64
}

type defaultRandomSource struct{}

func (defaultRandomSource) Float64() float64 {
	return rand.Float64()
}

// DefaultRandomSource is the production source backed by math/rand.
var DefaultRandomSource RandomSource = defaultRandomSource{}

// backoffJitter bounds the random stretch applied to every delay.
const backoffJitter = 0.25

// Backoff computes the pause between read attempts:
//
//	delay = base * 2^n * (1.0 + random(0,1) * 0.25)
//
// where n is the number of attempts already failed. Jitter keeps several
// readers polling the same document holder from retrying in lockstep.
type Backoff struct {
	base   time.Duration
	random RandomSource
}

// NewBackoff creates a calculator. A nil random falls back to
// DefaultRandomSource.
func NewBackoff(base time.Duration, random RandomSource) *Backoff {
	if random == nil {
		random = DefaultRandomSource
	}
	return &Backoff{base: base, random: random}
}

// Delay returns the pause before retrying after `failed` failed attempts.
func (b *Backoff) Delay(failed int) time.Duration {
	if failed < 0 {
		failed = 0
	}
	expFactor := math.Pow(2, float64(failed))
	jitterFactor := 1.0 + b.random.Float64()*backoffJitter
	return time.Duration(float64(b.base) * expFactor * jitterFactor)
}
