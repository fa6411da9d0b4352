package speechtotext

import "github.com/koscakluka/ema-voice/core/audio"

// Update is one recognizer result: fragments that became final since the
// previous update, in order, and the current interim hypothesis. An empty
// Interim clears the previous one.
type Update struct {
	Final   []string
	Interim string
}

type RecognitionOptions struct {
	// UpdateCallback receives every recognizer update, in order.
	UpdateCallback func(update Update)
	// EndedCallback is called once when the recognizer stops on its own.
	// It is not called after an explicit Stop. A nil error means the stream
	// was closed cleanly by the remote side.
	EndedCallback func(err error)

	EncodingInfo audio.EncodingInfo
	Language     string
}

type RecognitionOption func(*RecognitionOptions)

// NewRecognitionOptions applies opts over the defaults. Unset callbacks are
// replaced by no-ops.
func NewRecognitionOptions(opts ...RecognitionOption) RecognitionOptions {
	options := RecognitionOptions{
		EncodingInfo: audio.GetDefaultEncodingInfo(),
		Language:     "en-US",
	}
	for _, opt := range opts {
		opt(&options)
	}

	if options.UpdateCallback == nil {
		options.UpdateCallback = func(Update) {}
	}
	if options.EndedCallback == nil {
		options.EndedCallback = func(error) {}
	}
	return options
}

func WithUpdateCallback(callback func(update Update)) RecognitionOption {
	return func(o *RecognitionOptions) {
		o.UpdateCallback = callback
	}
}

func WithEndedCallback(callback func(err error)) RecognitionOption {
	return func(o *RecognitionOptions) {
		o.EndedCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) RecognitionOption {
	return func(o *RecognitionOptions) {
		o.EncodingInfo = encodingInfo
	}
}

func WithLanguage(language string) RecognitionOption {
	return func(o *RecognitionOptions) {
		if language != "" {
			o.Language = language
		}
	}
}
