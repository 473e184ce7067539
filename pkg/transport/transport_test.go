package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ebfe/scard"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"tag lost", ErrTagLost, true},
		{"wrapped tag lost", fmt.Errorf("attempt 2: %w", ErrTagLost), true},
		{"timeout", ErrTimeout, true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"cancellation", context.Canceled, false},
		{"no reader", ErrNoReader, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error // sentinel the result must match, nil for passthrough
	}{
		{"removed card", scard.ErrRemovedCard, ErrTagLost},
		{"no smartcard", scard.ErrNoSmartcard, ErrTagLost},
		{"reset card", scard.ErrResetCard, ErrTagLost},
		{"unresponsive card", scard.ErrUnresponsiveCard, ErrTagLost},
		{"pcsc timeout", scard.ErrTimeout, ErrTimeout},
		{"other pcsc error", scard.ErrInvalidParameter, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.in)
			if tt.want != nil {
				if !errors.Is(got, tt.want) {
					t.Errorf("mapError(%v) = %v, want %v", tt.in, got, tt.want)
				}
				return
			}
			if !errors.Is(got, tt.in) {
				t.Errorf("mapError(%v) = %v, want passthrough", tt.in, got)
			}
		})
	}

	if mapError(nil) != nil {
		t.Error("mapError(nil) must be nil")
	}
}
