package reader

import "fmt"

// Stage identifies where in the read flow an attempt currently is.
type Stage int

const (
	// StageChallenging: the applet is selected and the BAC challenge is
	// being requested.
	StageChallenging Stage = iota

	// StageAuthenticating: mutual authentication is in flight.
	StageAuthenticating

	// StageReading: files are being transferred over the secure channel.
	StageReading

	// StageDone: the read completed and the data passed the consistency
	// check.
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageChallenging:
		return "Challenging"
	case StageAuthenticating:
		return "Authenticating"
	case StageReading:
		return "Reading"
	case StageDone:
		return "Done"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Event is one progress notification. Fraction is meaningful during
// StageReading (0..1 of the planned files transferred) and is 1 for
// StageDone.
type Event struct {
	Stage    Stage
	Fraction float64
}

// emit delivers an event when a callback is configured. A retried attempt
// starts its stream over from StageChallenging.
func (r *runner) emit(stage Stage, fraction float64) {
	if r.onProgress != nil {
		r.onProgress(Event{Stage: stage, Fraction: fraction})
	}
}
