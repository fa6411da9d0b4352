package deepgram

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	defaultListenURL         = "wss://api.deepgram.com/v1/listen"
	defaultModel             = "nova-3"
	defaultKeepAliveInterval = 5 * time.Second
)

// Recognizer streams audio to Deepgram's live transcription endpoint and
// reports results as speechtotext updates.
type Recognizer struct {
	apiKey            string
	listenURL         string
	model             string
	dialer            *websocket.Dialer
	clock             clockwork.Clock
	keepAliveInterval time.Duration

	connMu          sync.Mutex
	conn            *websocket.Conn
	lastAudioTs     time.Time
	cancelKeepAlive context.CancelFunc
}

type RecognizerOption func(*Recognizer)

// NewRecognizer creates a recognizer. Unless overridden with WithAPIKey the
// key is read from DEEPGRAM_API_KEY.
func NewRecognizer(opts ...RecognizerOption) *Recognizer {
	r := &Recognizer{
		apiKey:            os.Getenv("DEEPGRAM_API_KEY"),
		listenURL:         defaultListenURL,
		model:             defaultModel,
		dialer:            websocket.DefaultDialer,
		clock:             clockwork.NewRealClock(),
		keepAliveInterval: defaultKeepAliveInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func WithAPIKey(apiKey string) RecognizerOption {
	return func(r *Recognizer) {
		r.apiKey = apiKey
	}
}

// WithListenURL points the recognizer at a different endpoint, e.g. a
// self-hosted deployment.
func WithListenURL(listenURL string) RecognizerOption {
	return func(r *Recognizer) {
		if listenURL != "" {
			r.listenURL = listenURL
		}
	}
}

func WithModel(model string) RecognizerOption {
	return func(r *Recognizer) {
		if model != "" {
			r.model = model
		}
	}
}

func WithDialer(dialer *websocket.Dialer) RecognizerOption {
	return func(r *Recognizer) {
		if dialer != nil {
			r.dialer = dialer
		}
	}
}

func WithClock(clock clockwork.Clock) RecognizerOption {
	return func(r *Recognizer) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func WithKeepAliveInterval(interval time.Duration) RecognizerOption {
	return func(r *Recognizer) {
		if interval > 0 {
			r.keepAliveInterval = interval
		}
	}
}
