package amplitude

import (
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultThreshold = 0.04
	DefaultHoldTime  = 400 * time.Millisecond
	DefaultInterval  = 20 * time.Millisecond
	DefaultSmoothing = 0.7
)

type Options struct {
	// Threshold is the smoothed level above which speech is assumed.
	Threshold float64
	// HoldTime is how long the level must stay below Threshold before the
	// monitor reports silence again.
	HoldTime time.Duration
	// Interval is the sampling cadence.
	Interval time.Duration
	// Smoothing is the weight of the previous level in the exponential
	// smoothing; higher values favour stability over responsiveness.
	Smoothing float64

	Clock clockwork.Clock
	// FrameCallback receives every captured frame after analysis. It runs
	// on the device callback path and must not block.
	FrameCallback func(frame []byte)
}

type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Threshold:     DefaultThreshold,
		HoldTime:      DefaultHoldTime,
		Interval:      DefaultInterval,
		Smoothing:     DefaultSmoothing,
		Clock:         clockwork.NewRealClock(),
		FrameCallback: func([]byte) {},
	}
}

func WithThreshold(threshold float64) Option {
	return func(o *Options) {
		if threshold > 0 && threshold < 1 {
			o.Threshold = threshold
		}
	}
}

func WithHoldTime(hold time.Duration) Option {
	return func(o *Options) {
		if hold >= 0 {
			o.HoldTime = hold
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(o *Options) {
		if interval > 0 {
			o.Interval = interval
		}
	}
}

// WithSmoothing sets the weight of the previous level. Values outside
// [0.5, 1) are ignored, since they would favour responsiveness.
func WithSmoothing(weight float64) Option {
	return func(o *Options) {
		if weight >= 0.5 && weight < 1 {
			o.Smoothing = weight
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

func WithFrameCallback(callback func(frame []byte)) Option {
	return func(o *Options) {
		if callback != nil {
			o.FrameCallback = callback
		}
	}
}
