package texttospeech

const DefaultRate = 1.0

type UtteranceOptions struct {
	// EndedCallback is called once when the utterance finished playing. A
	// non-nil error means the engine failed to render it. It is not called
	// for a cancelled utterance.
	EndedCallback func(err error)
	// Rate scales the speaking rate; 1 is the voice's natural rate.
	Rate float64
}

type UtteranceOption func(*UtteranceOptions)

// NewUtteranceOptions applies opts over the defaults. An unset callback is
// replaced by a no-op.
func NewUtteranceOptions(opts ...UtteranceOption) UtteranceOptions {
	options := UtteranceOptions{Rate: DefaultRate}
	for _, opt := range opts {
		opt(&options)
	}

	if options.EndedCallback == nil {
		options.EndedCallback = func(error) {}
	}
	return options
}

func WithEndedCallback(callback func(err error)) UtteranceOption {
	return func(o *UtteranceOptions) {
		o.EndedCallback = callback
	}
}

// WithRate sets the speaking rate. Rates outside (0, 4] are ignored.
func WithRate(rate float64) UtteranceOption {
	return func(o *UtteranceOptions) {
		if rate > 0 && rate <= 4 {
			o.Rate = rate
		}
	}
}
