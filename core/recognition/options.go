package recognition

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/speechtotext"
)

const DefaultRestartBackoff = 100 * time.Millisecond

type Options struct {
	UpdateCallback func(update speechtotext.Update)
	// FailureCallback receives terminal failures of the session, i.e.
	// permission or unsupported errors from starting or running the
	// recognizer. The session is already inactive when it is called.
	FailureCallback func(err error)
	// RestartPolicy is consulted before every automatic restart. The first
	// start of a session, held or not, does not consult it.
	RestartPolicy  func() bool
	RestartBackoff time.Duration

	EncodingInfo audio.EncodingInfo
	Language     string
	Clock        clockwork.Clock
}

type Option func(*Options)

func defaultOptions() Options {
	return Options{
		UpdateCallback:  func(speechtotext.Update) {},
		FailureCallback: func(error) {},
		RestartPolicy:   func() bool { return true },
		RestartBackoff:  DefaultRestartBackoff,
		EncodingInfo:    audio.GetDefaultEncodingInfo(),
		Clock:           clockwork.NewRealClock(),
	}
}

func WithUpdateCallback(callback func(update speechtotext.Update)) Option {
	return func(o *Options) {
		if callback != nil {
			o.UpdateCallback = callback
		}
	}
}

func WithFailureCallback(callback func(err error)) Option {
	return func(o *Options) {
		if callback != nil {
			o.FailureCallback = callback
		}
	}
}

func WithRestartPolicy(policy func() bool) Option {
	return func(o *Options) {
		if policy != nil {
			o.RestartPolicy = policy
		}
	}
}

func WithRestartBackoff(backoff time.Duration) Option {
	return func(o *Options) {
		if backoff >= 0 {
			o.RestartBackoff = backoff
		}
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) Option {
	return func(o *Options) {
		if !encodingInfo.IsZero() {
			o.EncodingInfo = encodingInfo
		}
	}
}

func WithLanguage(language string) Option {
	return func(o *Options) {
		o.Language = language
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(o *Options) {
		if clock != nil {
			o.Clock = clock
		}
	}
}
