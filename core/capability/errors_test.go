package capability

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsMatchTheirSentinels(t *testing.T) {
	cause := errors.New("device busy")
	testCases := []struct {
		name     string
		err      error
		sentinel error
		visible  bool
	}{
		{name: "permission", err: NewPermissionError(Microphone, cause), sentinel: ErrPermissionDenied, visible: true},
		{name: "unsupported", err: NewUnsupportedError(Recognizer, nil), sentinel: ErrUnsupported, visible: true},
		{name: "transient", err: NewTransientDeviceError(Synthesizer, cause), sentinel: ErrTransient, visible: false},
		{name: "send", err: &SendFailure{Code: "TIMEOUT", Err: cause}, sentinel: ErrSendFailed, visible: false},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			wrapped := fmt.Errorf("while starting: %w", testCase.err)
			if !errors.Is(wrapped, testCase.sentinel) {
				t.Fatalf("expected %v to match %v", wrapped, testCase.sentinel)
			}
			if got := IsUserVisible(wrapped); got != testCase.visible {
				t.Fatalf("expected user visible %t, got %t", testCase.visible, got)
			}
		})
	}
}

func TestPermissionErrorKeepsCause(t *testing.T) {
	cause := errors.New("not-allowed")
	err := NewPermissionError(Microphone, cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected permission error to unwrap to its cause")
	}

	var permissionErr *PermissionError
	if !errors.As(fmt.Errorf("wrapped: %w", err), &permissionErr) {
		t.Fatalf("expected errors.As to find the permission error")
	}
	if permissionErr.Capability != Microphone {
		t.Fatalf("expected capability %q, got %q", Microphone, permissionErr.Capability)
	}
}

func TestSendFailureMessage(t *testing.T) {
	err := &SendFailure{Code: "RATE_LIMIT", UserMessage: "Too many requests."}
	if got, want := err.Error(), "send failed (RATE_LIMIT): Too many requests."; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
