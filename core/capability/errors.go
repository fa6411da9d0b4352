// Package capability defines the failure taxonomy of the voice capabilities
// (microphone, recognizer, synthesizer) and of the external send function.
//
// Only [PermissionError] and [UnsupportedError] are meant to reach the user.
// [TransientDeviceError] is recovered locally by restarting or skipping, and
// [SendFailure] is surfaced as reply content rather than as a voice fault.
package capability

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnsupported      = errors.New("capability unsupported")
	ErrTransient        = errors.New("transient device failure")
	ErrSendFailed       = errors.New("send failed")
)

// Capability names the resource an error refers to.
type Capability string

const (
	Microphone  Capability = "microphone"
	Recognizer  Capability = "speech recognizer"
	Synthesizer Capability = "speech synthesizer"
)

// PermissionError reports that access to a device was refused. The user can
// recover by granting access and retrying manually.
type PermissionError struct {
	Capability Capability
	Err        error
}

func NewPermissionError(capability Capability, err error) *PermissionError {
	return &PermissionError{Capability: capability, Err: err}
}

func (e *PermissionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Capability, ErrPermissionDenied)
	}
	return fmt.Sprintf("%s: %s: %v", e.Capability, ErrPermissionDenied, e.Err)
}

func (e *PermissionError) Unwrap() error        { return e.Err }
func (e *PermissionError) Is(target error) bool { return target == ErrPermissionDenied }

// UnsupportedError reports that the platform lacks a capability. It disables
// voice mode for the rest of the session.
type UnsupportedError struct {
	Capability Capability
	Err        error
}

func NewUnsupportedError(capability Capability, err error) *UnsupportedError {
	return &UnsupportedError{Capability: capability, Err: err}
}

func (e *UnsupportedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Capability, ErrUnsupported)
	}
	return fmt.Sprintf("%s: %s: %v", e.Capability, ErrUnsupported, e.Err)
}

func (e *UnsupportedError) Unwrap() error        { return e.Err }
func (e *UnsupportedError) Is(target error) bool { return target == ErrUnsupported }

// TransientDeviceError is a mid-session recognizer or synthesizer failure.
type TransientDeviceError struct {
	Capability Capability
	Err        error
}

func NewTransientDeviceError(capability Capability, err error) *TransientDeviceError {
	return &TransientDeviceError{Capability: capability, Err: err}
}

func (e *TransientDeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Capability, ErrTransient)
	}
	return fmt.Sprintf("%s: %s: %v", e.Capability, ErrTransient, e.Err)
}

func (e *TransientDeviceError) Unwrap() error        { return e.Err }
func (e *TransientDeviceError) Is(target error) bool { return target == ErrTransient }

// SendFailure is returned by send functions when the assistant could not be
// reached or answered with a failure. UserMessage, when set, is shown (and
// spoken) in place of a reply.
type SendFailure struct {
	Code        string
	UserMessage string
	ShowSocials bool
	Err         error
}

func (e *SendFailure) Error() string {
	switch {
	case e.Err != nil && e.Code != "":
		return fmt.Sprintf("%s (%s): %v", ErrSendFailed, e.Code, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", ErrSendFailed, e.Err)
	case e.Code != "":
		return fmt.Sprintf("%s (%s): %s", ErrSendFailed, e.Code, e.UserMessage)
	default:
		return fmt.Sprintf("%s: %s", ErrSendFailed, e.UserMessage)
	}
}

func (e *SendFailure) Unwrap() error        { return e.Err }
func (e *SendFailure) Is(target error) bool { return target == ErrSendFailed }

// IsUserVisible reports whether err belongs to the user-visible part of the
// taxonomy.
func IsUserVisible(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrUnsupported)
}
