package reader

import (
	"testing"
	"time"
)

type fixedRandom struct {
	value float64
}

func (f fixedRandom) Float64() float64 {
	return f.value
}

func TestBackoffDelay(t *testing.T) {
	base := 100 * time.Millisecond

	tests := []struct {
		name   string
		random float64
		failed int
		want   time.Duration
	}{
		{"first retry, no jitter", 0, 0, 100 * time.Millisecond},
		{"second retry, no jitter", 0, 1, 200 * time.Millisecond},
		{"third retry, no jitter", 0, 2, 400 * time.Millisecond},
		{"full jitter", 1.0, 0, 125 * time.Millisecond},
		{"doubled with full jitter", 1.0, 1, 250 * time.Millisecond},
		{"negative clamps to zero", 0, -3, 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBackoff(base, fixedRandom{tt.random})
			if got := b.Delay(tt.failed); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.failed, got, tt.want)
			}
		})
	}
}

func TestBackoffDelay_DefaultRandomWithinBounds(t *testing.T) {
	base := 100 * time.Millisecond
	b := NewBackoff(base, nil)

	for failed := 0; failed < 4; failed++ {
		lower := NewBackoff(base, fixedRandom{0}).Delay(failed)
		upper := NewBackoff(base, fixedRandom{1.0}).Delay(failed)

		for i := 0; i < 50; i++ {
			d := b.Delay(failed)
			if d < lower || d > upper {
				t.Fatalf("Delay(%d) = %v outside [%v, %v]", failed, d, lower, upper)
			}
		}
	}
}
