package playback

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

type Options struct {
	MaxChunkLength  int
	InterChunkDelay time.Duration
	Rate            float64
	Clock           clockwork.Clock

	FirstChunkStartCallback func(jobID string)
	ChunkErrorCallback      func(jobID string, index int, err error)
	QueueDrainedCallback    func(jobID string)
}

type Option func(*Options)

func defaultOptions() Options {
	return Options{
		MaxChunkLength:          DefaultMaxChunkLength,
		Rate:                    texttospeech.DefaultRate,
		Clock:                   clockwork.NewRealClock(),
		FirstChunkStartCallback: func(string) {},
		ChunkErrorCallback:      func(string, int, error) {},
		QueueDrainedCallback:    func(string) {},
	}
}

func WithMaxChunkLength(length int) Option {
	return func(o *Options) {
		if length > 0 {
			o.MaxChunkLength = length
		}
	}
}

// WithInterChunkDelay inserts a pause between consecutive chunks.
func WithInterChunkDelay(delay time.Duration) Option {
	return func(o *Options) {
		if delay >= 0 {
			o.InterChunkDelay = delay
		}
	}
}

func WithRate(rate float64) Option {
	return func(o *Options) {
		if rate > 0 {
			o.Rate = rate
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(o *Options) {
		if clock != nil {
			o.Clock = clock
		}
	}
}

func WithFirstChunkStartCallback(callback func(jobID string)) Option {
	return func(o *Options) {
		if callback != nil {
			o.FirstChunkStartCallback = callback
		}
	}
}

func WithChunkErrorCallback(callback func(jobID string, index int, err error)) Option {
	return func(o *Options) {
		if callback != nil {
			o.ChunkErrorCallback = callback
		}
	}
}

func WithQueueDrainedCallback(callback func(jobID string)) Option {
	return func(o *Options) {
		if callback != nil {
			o.QueueDrainedCallback = callback
		}
	}
}
