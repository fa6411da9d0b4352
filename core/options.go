package orchestration

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/koscakluka/ema-voice/core/amplitude"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/playback"
	"github.com/koscakluka/ema-voice/core/recognition"
	"github.com/koscakluka/ema-voice/core/turn"
)

type OrchestratorOption func(*Orchestrator)

// SendFunc hands a finished utterance to the assistant and returns its
// reply. It is called on its own goroutine, exactly once per utterance.
type SendFunc func(ctx context.Context, utterance string) (reply string, err error)

// Timings groups the controller's clock-driven intervals.
type Timings struct {
	// SilenceTimeout is how long the committed transcript must stay quiet,
	// with no interim text, before it is submitted.
	SilenceTimeout time.Duration
	// EchoCooldown is how long capture stays suspended after playback
	// drained, so the tail of the reply is not heard as user speech.
	EchoCooldown time.Duration
	// RestartBackoff is the wait before a recognizer that stopped on its own
	// is started again.
	RestartBackoff time.Duration
	// InterChunkDelay is the pause between consecutive reply chunks.
	InterChunkDelay time.Duration
}

const (
	DefaultSilenceTimeout = 1500 * time.Millisecond
	DefaultEchoCooldown   = 800 * time.Millisecond
)

func DefaultTimings() Timings {
	return Timings{
		SilenceTimeout: DefaultSilenceTimeout,
		EchoCooldown:   DefaultEchoCooldown,
		RestartBackoff: recognition.DefaultRestartBackoff,
	}
}

func WithSendFunc(send SendFunc) OrchestratorOption {
	return func(o *Orchestrator) { o.send = send }
}

func WithRecognizer(recognizer recognition.Recognizer) OrchestratorOption {
	return func(o *Orchestrator) { o.recognizer = recognizer }
}

func WithSynthesizer(synthesizer playback.Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) { o.synthesizer = synthesizer }
}

// WithAudioInput sets the microphone. The controller meters it and forwards
// its frames to recognizers that consume raw audio.
func WithAudioInput(device amplitude.Device, opts ...amplitude.Option) OrchestratorOption {
	return func(o *Orchestrator) {
		o.device = device
		o.monitorOptions = append(o.monitorOptions, opts...)
	}
}

func WithClock(clock clockwork.Clock) OrchestratorOption {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithTimings overrides the default timings. Zero fields keep their
// defaults, except InterChunkDelay whose default is zero.
func WithTimings(timings Timings) OrchestratorOption {
	return func(o *Orchestrator) {
		if timings.SilenceTimeout > 0 {
			o.timings.SilenceTimeout = timings.SilenceTimeout
		}
		if timings.EchoCooldown > 0 {
			o.timings.EchoCooldown = timings.EchoCooldown
		}
		if timings.RestartBackoff > 0 {
			o.timings.RestartBackoff = timings.RestartBackoff
		}
		if timings.InterChunkDelay >= 0 {
			o.timings.InterChunkDelay = timings.InterChunkDelay
		}
	}
}

// WithBargeIn controls whether user speech during playback interrupts the
// reply. It is enabled by default.
func WithBargeIn(enabled bool) OrchestratorOption {
	return func(o *Orchestrator) { o.bargeInEnabled = enabled }
}

// WithSpokenErrors makes the controller speak permission failures before
// going idle.
func WithSpokenErrors(enabled bool) OrchestratorOption {
	return func(o *Orchestrator) { o.spokenErrors = enabled }
}

func WithSpeechRate(rate float64) OrchestratorOption {
	return func(o *Orchestrator) {
		if rate > 0 {
			o.speechRate = rate
		}
	}
}

func WithMaxChunkLength(length int) OrchestratorOption {
	return func(o *Orchestrator) {
		if length > 0 {
			o.maxChunkLength = length
		}
	}
}

func WithLanguage(language string) OrchestratorOption {
	return func(o *Orchestrator) {
		if language != "" {
			o.language = language
		}
	}
}

type OrchestrateOptions struct {
	eventHandler func(events.Event)

	onStateChanged        func(state turn.State)
	onLevel               func(level float64, aboveThreshold bool)
	onInterimTranscript   func(transcript string)
	onTranscriptSegment   func(segment string)
	onCommittedTranscript func(transcript string)
	onUtteranceSubmitted  func(utterance string)
	onReply               func(reply string, err error)
	onPlaybackStarted     func()
	onPlaybackEnded       func()
	onPlaybackCancelled   func()
	onBargeIn             func()
	onVoiceError          func(err error, degraded bool)
}

type OrchestrateOption func(*OrchestrateOptions)

// WithEventHandler registers a handler for every typed event. Handlers run
// on a dispatcher goroutine in emission order and may call back into the
// orchestrator, except for Close.
func WithEventHandler(handler func(event events.Event)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.eventHandler = handler
	}
}

func WithStateChangedCallback(callback func(state turn.State)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onStateChanged = callback
	}
}

// WithLevelCallback registers a callback for the smoothed microphone level.
// It is called at the sampling cadence while the microphone is held.
func WithLevelCallback(callback func(level float64, aboveThreshold bool)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onLevel = callback
	}
}

// WithInterimTranscriptCallback registers a callback for the interim
// hypothesis. An empty transcript means the previous one was cleared.
func WithInterimTranscriptCallback(callback func(transcript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onInterimTranscript = callback
	}
}

func WithTranscriptSegmentCallback(callback func(segment string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onTranscriptSegment = callback
	}
}

// WithCommittedTranscriptCallback registers a callback for snapshots of the
// committed transcript of the current utterance.
func WithCommittedTranscriptCallback(callback func(transcript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onCommittedTranscript = callback
	}
}

func WithUtteranceSubmittedCallback(callback func(utterance string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onUtteranceSubmitted = callback
	}
}

// WithReplyCallback registers a callback for replies. When the send function
// failed, reply is the text shown to the user and err the failure.
func WithReplyCallback(callback func(reply string, err error)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onReply = callback
	}
}

func WithPlaybackStartedCallback(callback func()) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onPlaybackStarted = callback
	}
}

func WithPlaybackEndedCallback(callback func()) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onPlaybackEnded = callback
	}
}

func WithPlaybackCancelledCallback(callback func()) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onPlaybackCancelled = callback
	}
}

func WithBargeInCallback(callback func()) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onBargeIn = callback
	}
}

// WithVoiceErrorCallback registers a callback for user-visible voice
// failures. degraded is set when voice mode continues without the failed
// capability.
func WithVoiceErrorCallback(callback func(err error, degraded bool)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onVoiceError = callback
	}
}
