// Package orchestration implements the voice turn-taking controller.
//
// An [Orchestrator] decides, moment to moment, whether the user's speech is
// captured, the assistant's reply is awaited or the reply is played back,
// and keeps the reply from being captured as user speech. All state lives on
// a single event loop goroutine; component callbacks are posted to it.
package orchestration

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/koscakluka/ema-voice/core/amplitude"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/playback"
	"github.com/koscakluka/ema-voice/core/recognition"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/texttospeech"
	"github.com/koscakluka/ema-voice/core/turn"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrClosed         = errors.New("orchestrator closed")
	ErrBusy           = errors.New("an utterance is already being processed")
	ErrEmptyUtterance = errors.New("empty utterance")
)

// levelMonitor is the part of [amplitude.Monitor] the orchestrator uses.
type levelMonitor interface {
	Start(ctx context.Context) error
	Stop() error
	Samples(ctx context.Context) iter.Seq[amplitude.Sample]
}

type Orchestrator struct {
	send           SendFunc
	recognizer     recognition.Recognizer
	synthesizer    playback.Synthesizer
	device         amplitude.Device
	monitorOptions []amplitude.Option
	clock          clockwork.Clock
	timings        Timings
	language       string
	speechRate     float64
	maxChunkLength int
	bargeInEnabled bool
	spokenErrors   bool

	session *recognition.Session
	queue   *playback.Queue
	monitor levelMonitor

	loop         *taskQueue
	loopDone     chan struct{}
	dispatch     *taskQueue
	dispatchDone chan struct{}
	closeOnce    sync.Once
	closed       atomic.Bool

	baseContext context.Context
	cancelSends context.CancelFunc
	sends       sync.WaitGroup
	stopOnDone  chan struct{}

	// capturing mirrors state == Listening for the recognizer restart
	// policy, which is consulted off the loop.
	capturing atomic.Bool
	// captureGeneration changes after every session stop so that recognizer
	// callbacks queued before the stop are dropped.
	captureGeneration atomic.Uint64

	transitions metric.Int64Counter
	bargeIns    metric.Int64Counter
	chunkErrors metric.Int64Counter
	submissions metric.Int64Counter

	// Loop-owned state.
	emitter          eventEmitter
	state            turn.State
	voiceMode        bool
	speakingEnabled  bool
	voiceUnsupported error
	utterance        utterance
	pendingSend      string
	jobID            string
	cooling          bool
	idleAfterSpeech  bool
	silence          timer
	cooldown         timer
	microphone       microphone
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		clock:           clockwork.NewRealClock(),
		timings:         DefaultTimings(),
		language:        "en-US",
		speechRate:      texttospeech.DefaultRate,
		maxChunkLength:  playback.DefaultMaxChunkLength,
		bargeInEnabled:  true,
		speakingEnabled: true,
		loop:            newTaskQueue(),
		loopDone:        make(chan struct{}),
		dispatch:        newTaskQueue(),
		dispatchDone:    make(chan struct{}),
		emitter:         noopEventEmitter,
		utterance:       utterance{ID: uuid.NewString()},
	}

	for _, opt := range opts {
		opt(o)
	}

	o.baseContext, o.cancelSends = context.WithCancel(context.Background())
	o.initInstruments()

	encodingInfo := speechtotext.NewRecognitionOptions().EncodingInfo
	if o.device != nil {
		encodingInfo = o.device.EncodingInfo()
	}

	o.session = recognition.NewSession(o.recognizer,
		recognition.WithClock(o.clock),
		recognition.WithRestartBackoff(o.timings.RestartBackoff),
		recognition.WithEncodingInfo(encodingInfo),
		recognition.WithLanguage(o.language),
		recognition.WithRestartPolicy(o.capturing.Load),
		recognition.WithUpdateCallback(func(update speechtotext.Update) {
			generation := o.captureGeneration.Load()
			o.post(func() { o.onTranscriptUpdate(generation, update) })
		}),
		recognition.WithFailureCallback(func(err error) {
			generation := o.captureGeneration.Load()
			o.post(func() { o.onRecognizerFailure(generation, err) })
		}),
	)

	o.queue = playback.NewQueue(o.synthesizer,
		playback.WithClock(o.clock),
		playback.WithRate(o.speechRate),
		playback.WithMaxChunkLength(o.maxChunkLength),
		playback.WithInterChunkDelay(o.timings.InterChunkDelay),
		playback.WithFirstChunkStartCallback(func(jobID string) {
			o.post(func() { o.onPlaybackStarted(jobID) })
		}),
		playback.WithChunkErrorCallback(func(jobID string, index int, err error) {
			o.post(func() { o.onChunkFailed(jobID, index, err) })
		}),
		playback.WithQueueDrainedCallback(func(jobID string) {
			o.post(func() { o.onPlaybackDrained(jobID) })
		}),
	)

	if o.monitor == nil {
		monitorOptions := append([]amplitude.Option{
			amplitude.WithClock(o.clock),
			amplitude.WithFrameCallback(func(frame []byte) {
				if err := o.session.SendAudio(frame); err != nil {
					logger.Debug("failed to forward audio frame to recognizer", "error", err)
				}
			}),
		}, o.monitorOptions...)
		o.monitor = amplitude.NewMonitor(o.device, monitorOptions...)
	}

	go o.run()
	return o
}

func (o *Orchestrator) initInstruments() {
	var err error
	if o.transitions, err = meter.Int64Counter("turn.transitions",
		metric.WithDescription("Turn state transitions")); err != nil {
		logger.Warn("failed to create transitions counter", "error", err)
	}
	if o.bargeIns, err = meter.Int64Counter("turn.barge_ins",
		metric.WithDescription("Replies interrupted by the user")); err != nil {
		logger.Warn("failed to create barge-in counter", "error", err)
	}
	if o.chunkErrors, err = meter.Int64Counter("playback.chunk_errors",
		metric.WithDescription("Reply chunks the synthesizer failed to render")); err != nil {
		logger.Warn("failed to create chunk error counter", "error", err)
	}
	if o.submissions, err = meter.Int64Counter("turn.utterances_submitted",
		metric.WithDescription("Utterances handed to the send function")); err != nil {
		logger.Warn("failed to create submissions counter", "error", err)
	}
}

// Orchestrate registers observers. Cancelling ctx closes the orchestrator.
//
// Contract: call Orchestrate at most once per orchestrator instance; events
// emitted before it are not observed.
func (o *Orchestrator) Orchestrate(ctx context.Context, opts ...OrchestrateOption) {
	if o.closed.Load() {
		logger.WarnContext(ctx, "orchestrator already closed, skipping Orchestrate")
		return
	}

	options := OrchestrateOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	o.do(func() {
		o.emitter = newEventEmitter(options)
		if o.stopOnDone == nil {
			o.stopOnDone = withContextCancelHook(ctx, func() { go o.Close() })
		}
	})
}

// Close turns voice off, abandons sends in flight and stops the event loop.
// It must not be called from an observer.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.do(func() {
			o.goIdle(o.baseContext)
			if o.stopOnDone != nil {
				close(o.stopOnDone)
			}
		})
		o.closed.Store(true)
		o.cancelSends()

		o.loop.Close()
		<-o.loopDone
		o.sends.Wait()

		o.dispatch.Close()
		<-o.dispatchDone
	})
}

// EnableVoice turns voice mode on and starts listening when idle. It does not
// wait for the recognizer to connect: a recognizer that refuses to start is
// reported through the voice error callback. A missing or unsupported
// recognizer disables voice mode for the lifetime of the orchestrator and
// the error is returned again on every later call.
func (o *Orchestrator) EnableVoice(ctx context.Context) error {
	var err error
	if !o.do(func() { err = o.enableVoice(ctx) }) {
		return ErrClosed
	}
	return err
}

// DisableVoice turns voice mode off. It returns once capture, playback and
// both timers are stopped and the microphone is released. A send in flight
// is not cancelled; its reply is still reported.
func (o *Orchestrator) DisableVoice() {
	o.do(func() { o.goIdle(o.baseContext) })
}

// TapToTalk captures a single utterance without voice mode. Tapping while
// listening submits, tapping while a reply plays interrupts it.
func (o *Orchestrator) TapToTalk(ctx context.Context) error {
	var err error
	if !o.do(func() { err = o.tapToTalk(ctx) }) {
		return ErrClosed
	}
	return err
}

// Submit sends the committed and interim transcript without waiting for
// silence. It is a no-op unless listening.
func (o *Orchestrator) Submit() {
	o.do(func() { o.submitCurrent(o.baseContext) })
}

// SendText submits a typed utterance, stopping capture or playback first.
func (o *Orchestrator) SendText(text string) error {
	var err error
	if !o.do(func() { err = o.sendText(o.baseContext, text) }) {
		return ErrClosed
	}
	return err
}

// SetSpeaking enables or disables spoken replies. Disabling it stops a reply
// being played.
func (o *Orchestrator) SetSpeaking(enabled bool) {
	o.do(func() { o.setSpeaking(o.baseContext, enabled) })
}

func (o *Orchestrator) Snapshot() Snapshot {
	var snapshot Snapshot
	if !o.do(func() { snapshot = o.snapshot() }) {
		return Snapshot{State: turn.Idle}
	}
	return snapshot
}

func (o *Orchestrator) run() {
	defer close(o.loopDone)
	go func() {
		defer close(o.dispatchDone)
		for task := range o.dispatch.Tasks {
			task()
		}
	}()

	for task := range o.loop.Tasks {
		task()
	}
}

// post queues task on the event loop without waiting.
func (o *Orchestrator) post(task func()) bool {
	return o.loop.Add(task)
}

// do runs task on the event loop and waits for it. It must not be called
// from the loop itself.
func (o *Orchestrator) do(task func()) bool {
	done := make(chan struct{})
	if !o.loop.Add(func() {
		defer close(done)
		task()
	}) {
		return false
	}
	<-done
	return true
}

// emit hands event to the observers on the dispatcher goroutine.
func (o *Orchestrator) emit(event events.Event) {
	emitter := o.emitter
	o.dispatch.Add(func() { emitter(event) })
}

func (o *Orchestrator) stamp() events.BaseOption {
	return events.WithTimestamp(o.clock.Now())
}
