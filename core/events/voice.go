package events

// KindVoiceFailed identifies a user-visible voice capability failure.
const KindVoiceFailed Kind = "voice.failed"

// VoiceFailed carries a permission or unsupported failure. Degraded is set
// when voice mode continues without the failed capability.
type VoiceFailed struct {
	Base
	Err      error
	Degraded bool
}

// NewVoiceFailed creates a voice failed event.
func NewVoiceFailed(err error, degraded bool, opts ...BaseOption) VoiceFailed {
	return VoiceFailed{Base: NewBase(KindVoiceFailed, opts...), Err: err, Degraded: degraded}
}
