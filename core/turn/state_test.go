package turn

import "testing"

func TestStateString(t *testing.T) {
	testCases := []struct {
		state    State
		expected string
	}{
		{state: Idle, expected: "idle"},
		{state: Listening, expected: "listening"},
		{state: Processing, expected: "processing"},
		{state: Speaking, expected: "speaking"},
		{state: State(42), expected: "unknown"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.expected, func(t *testing.T) {
			if got := testCase.state.String(); got != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, got)
			}
		})
	}
}

func TestCaptureAndPlaybackAreExclusive(t *testing.T) {
	for _, state := range []State{Idle, Listening, Processing, Speaking} {
		if state.CapturesAudio() && state.PlaysAudio() {
			t.Fatalf("expected state %s to never capture and play at once", state)
		}
	}
	if !Listening.CapturesAudio() {
		t.Fatalf("expected listening to capture audio")
	}
	if !Speaking.PlaysAudio() {
		t.Fatalf("expected speaking to play audio")
	}
}
