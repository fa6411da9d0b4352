// Package turn holds the conversational turn vocabulary shared by the turn
// controller and its event contract.
package turn

// State is the conversational turn state. Exactly one state is active at a
// time.
type State int

const (
	// Idle means no capture and no playback; waiting for the user.
	Idle State = iota
	// Listening means the recognition session is active and the utterance
	// is accumulating.
	Listening
	// Processing means an utterance was handed to the send function and the
	// reply is awaited.
	Processing
	// Speaking means the reply is being played back, including the echo
	// cool-down tail after playback drained.
	Speaking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Processing:
		return "processing"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// CapturesAudio reports whether the recognition session is active in s.
func (s State) CapturesAudio() bool { return s == Listening }

// PlaysAudio reports whether the playback queue owns the speaker in s.
func (s State) PlaysAudio() bool { return s == Speaking }
