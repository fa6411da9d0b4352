package deepgram

import (
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
)

const defaultSpeakURL = "wss://api.deepgram.com/v1/speak"

// AudioOutput plays synthesized audio. Mark calls callback once everything
// sent before the mark has been played.
type AudioOutput interface {
	EncodingInfo() audio.EncodingInfo
	SendAudio(audio []byte) error
	ClearBuffer()
	Mark(mark string, callback func(string)) error
}

// Synthesizer speaks text through Deepgram's streaming speak endpoint and
// plays the result on an [AudioOutput]. One utterance plays at a time.
type Synthesizer struct {
	apiKey   string
	speakURL string
	voice    Voice
	dialer   *websocket.Dialer
	output   AudioOutput

	mu       sync.Mutex
	writeMu  sync.Mutex
	conn     *websocket.Conn
	connRate float64
	current  *utterance
	nextID   uint64
}

type SynthesizerOption func(*Synthesizer)

// NewSynthesizer creates a synthesizer playing on output. Unless overridden
// with WithAPIKey the key is read from DEEPGRAM_API_KEY.
func NewSynthesizer(output AudioOutput, opts ...SynthesizerOption) (*Synthesizer, error) {
	s := &Synthesizer{
		apiKey:   os.Getenv("DEEPGRAM_API_KEY"),
		speakURL: defaultSpeakURL,
		voice:    defaultVoice,
		dialer:   websocket.DefaultDialer,
		output:   output,
	}
	for _, opt := range opts {
		opt(s)
	}

	if !slices.Contains(GetAvailableVoices(), s.voice) {
		return nil, fmt.Errorf("invalid voice %q", s.voice)
	}

	return s, nil
}

func WithAPIKey(apiKey string) SynthesizerOption {
	return func(s *Synthesizer) {
		s.apiKey = apiKey
	}
}

func WithSpeakURL(speakURL string) SynthesizerOption {
	return func(s *Synthesizer) {
		if speakURL != "" {
			s.speakURL = speakURL
		}
	}
}

func WithVoice(voice Voice) SynthesizerOption {
	return func(s *Synthesizer) {
		s.voice = voice
	}
}

func WithDialer(dialer *websocket.Dialer) SynthesizerOption {
	return func(s *Synthesizer) {
		if dialer != nil {
			s.dialer = dialer
		}
	}
}
