package playback

import "ravayatgo/pkg/session"

// State is the sequencer's externally visible mode.
type State int

const (
	Idle State = iota
	Playing
	Recording
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Recording:
		return "recording"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// terminal reports whether no session is advancing in this state.
func (s State) terminal() bool {
	return s == Idle || s == Finished
}

// StateSnapshot is what observers receive on every transition.
type StateSnapshot struct {
	State     State
	Page      int
	Token     session.Token
	Recording bool
}
