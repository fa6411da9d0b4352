package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-voice/core/capability"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/turn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultFailureMessage   = "Something went wrong. Please try again."
	permissionDeniedMessage = "Microphone access denied. Please allow microphone access to use voice mode."
)

var errNoSendFunc = errors.New("no send function configured")

func (o *Orchestrator) setState(ctx context.Context, to turn.State) {
	from := o.state
	if from == to {
		return
	}

	o.state = to
	o.capturing.Store(to == turn.Listening)
	if o.transitions != nil {
		o.transitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("turn.from", from.String()),
			attribute.String("turn.to", to.String()),
		))
	}
	logger.DebugContext(ctx, "turn state changed", "from", from.String(), "to", to.String())
	o.emit(events.NewTurnStateChanged(from, to, o.stamp()))
}

func (o *Orchestrator) enableVoice(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "enable voice")
	defer span.End()

	if o.voiceUnsupported != nil {
		return o.voiceUnsupported
	}

	o.voiceMode = true
	if o.state != turn.Idle {
		return nil
	}
	return o.startListening(ctx)
}

func (o *Orchestrator) tapToTalk(ctx context.Context) error {
	switch o.state {
	case turn.Idle:
		if o.voiceUnsupported != nil {
			return o.voiceUnsupported
		}
		ctx, span := tracer.Start(ctx, "tap to talk")
		defer span.End()
		return o.startListening(ctx)
	case turn.Listening:
		o.submitCurrent(ctx)
	case turn.Speaking:
		if o.isPlaying() {
			o.interruptPlayback(ctx)
		}
	}
	return nil
}

// startListening acquires the microphone and starts a fresh utterance. It
// is the only way into Listening. The recognizer comes up in the background;
// start failures arrive through onRecognizerFailure.
func (o *Orchestrator) startListening(ctx context.Context) error {
	o.acquireMicrophone(ctx)
	o.resetUtterance()

	// The session consults the restart policy off the loop as soon as it is
	// started.
	o.capturing.Store(true)
	if err := o.session.Start(ctx); err != nil {
		o.capturing.Store(false)
		return o.failRecognition(ctx, err)
	}
	o.setState(ctx, turn.Listening)
	return nil
}

func (o *Orchestrator) stopCapture(ctx context.Context) {
	if err := o.session.Stop(); err != nil {
		recordedErr := fmt.Errorf("failed to stop recognition: %w", err)
		span := trace.SpanFromContext(ctx)
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
		logger.WarnContext(ctx, "failed to stop recognition", "error", err)
	}
	o.captureGeneration.Add(1)
}

// goIdle tears everything down. It leaves a send in flight alone.
func (o *Orchestrator) goIdle(ctx context.Context) {
	o.voiceMode = false
	o.silence.stop()
	o.stopCapture(ctx)
	o.stopPlayback(ctx)
	o.releaseMicrophone(ctx)
	o.resetUtterance()
	o.setState(ctx, turn.Idle)
}

func (o *Orchestrator) resetUtterance() {
	previous := o.utterance
	o.utterance = utterance{ID: uuid.NewString()}

	if previous.Interim != "" {
		o.emit(events.NewUserTranscriptInterimUpdated("", o.stamp()))
	}
	if previous.Committed != "" {
		o.emit(events.NewUserTranscriptCommittedUpdated("", o.stamp()))
	}
}

func (o *Orchestrator) onTranscriptUpdate(generation uint64, update speechtotext.Update) {
	if generation != o.captureGeneration.Load() || o.state != turn.Listening {
		return
	}

	finalArrived := false
	for _, fragment := range update.Final {
		if isBlank(fragment) {
			continue
		}
		finalArrived = true
		o.utterance.Committed = joinFragments(o.utterance.Committed, fragment)
		o.emit(events.NewUserTranscriptSegment(fragment, o.stamp()))
	}
	if finalArrived {
		o.emit(events.NewUserTranscriptCommittedUpdated(o.utterance.Committed, o.stamp()))
	}

	interimChanged := update.Interim != o.utterance.Interim
	if interimChanged {
		o.utterance.Interim = update.Interim
		o.emit(events.NewUserTranscriptInterimUpdated(update.Interim, o.stamp()))
	}

	if !finalArrived && !interimChanged && update.Interim == "" {
		return
	}

	o.utterance.LastActivity = o.clock.Now()
	o.silence.stop()
	if o.utterance.Committed != "" && o.utterance.Interim == "" {
		o.silence.arm(o.clock, o.timings.SilenceTimeout, func(token uint64) {
			o.post(func() { o.onSilenceElapsed(token) })
		})
	}
}

func (o *Orchestrator) onSilenceElapsed(token uint64) {
	if !o.silence.fired(token) || o.state != turn.Listening {
		return
	}
	o.submit(o.baseContext, o.utterance.Committed)
}

func (o *Orchestrator) onRecognizerFailure(generation uint64, err error) {
	if generation != o.captureGeneration.Load() || o.state != turn.Listening {
		return
	}
	_ = o.failRecognition(o.baseContext, err)
}

// failRecognition handles a terminal recognizer error. Unsupported disables
// voice for good; both permission and unsupported errors end in Idle,
// permission errors possibly after speaking an explanation.
func (o *Orchestrator) failRecognition(ctx context.Context, err error) error {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.WarnContext(ctx, "recognition failed", "error", err)

	o.silence.stop()
	o.stopCapture(ctx)
	if errors.Is(err, capability.ErrUnsupported) {
		o.voiceUnsupported = err
	}
	o.emit(events.NewVoiceFailed(err, false, o.stamp()))

	if errors.Is(err, capability.ErrPermissionDenied) && o.spokenErrors && o.canSpeak() {
		o.voiceMode = false
		o.stopPlayback(ctx)
		if o.speak(ctx, permissionDeniedMessage) == nil {
			o.idleAfterSpeech = true
			return err
		}
	}

	o.goIdle(ctx)
	return err
}

func (o *Orchestrator) submitCurrent(ctx context.Context) {
	if o.state != turn.Listening {
		return
	}
	o.submit(ctx, o.utterance.text())
}

// submit ends capture and hands text to the send function. Blank text keeps
// listening.
func (o *Orchestrator) submit(ctx context.Context, text string) {
	if isBlank(text) {
		return
	}

	o.silence.stop()
	o.stopCapture(ctx)
	o.setState(ctx, turn.Processing)
	o.handoff(ctx, o.utterance.ID, text)
	o.resetUtterance()
}

func (o *Orchestrator) sendText(ctx context.Context, text string) error {
	if isBlank(text) {
		return ErrEmptyUtterance
	}

	switch o.state {
	case turn.Processing:
		return ErrBusy
	case turn.Listening:
		o.silence.stop()
		o.stopCapture(ctx)
	case turn.Speaking:
		o.stopPlayback(ctx)
	}

	o.setState(ctx, turn.Processing)
	o.handoff(ctx, o.utterance.ID, text)
	o.resetUtterance()
	return nil
}

// handoff calls the send function exactly once for the utterance on its own
// goroutine and posts the reply back.
func (o *Orchestrator) handoff(ctx context.Context, utteranceID, text string) {
	text = strings.TrimSpace(text)
	o.pendingSend = utteranceID
	if o.submissions != nil {
		o.submissions.Add(ctx, 1)
	}
	o.emit(events.NewUserUtteranceSubmitted(utteranceID, text, o.stamp()))

	send := o.send
	sendCtx, span := tracer.Start(o.baseContext, "send utterance", trace.WithAttributes(
		attribute.String("utterance.id", utteranceID),
	))

	o.sends.Add(1)
	go func() {
		defer o.sends.Done()
		defer span.End()

		var reply string
		err := panicSafeNamedWorker("send", func(ctx context.Context) error {
			if send == nil {
				return errNoSendFunc
			}
			var err error
			reply, err = send(ctx, text)
			return err
		})(sendCtx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		o.post(func() { o.onReply(utteranceID, reply, err) })
	}()
}

// onReply reports every reply. Only the reply to the utterance being
// processed moves the state machine.
func (o *Orchestrator) onReply(utteranceID, reply string, err error) {
	ctx := o.baseContext

	text := reply
	if err != nil {
		text = failureMessage(err)
		logger.WarnContext(ctx, "failed to send utterance", "utterance_id", utteranceID, "error", err)
	}
	o.emit(events.NewAssistantReplyReceived(utteranceID, text, err, o.stamp()))

	if utteranceID != o.pendingSend {
		return
	}
	o.pendingSend = ""
	if o.state != turn.Processing {
		return
	}

	if !o.voiceMode {
		o.goIdle(ctx)
		return
	}

	if o.canSpeak() && !isBlank(text) {
		if err := o.speak(ctx, text); err == nil {
			return
		}
	}
	_ = o.startListening(ctx)
}

func failureMessage(err error) string {
	var failure *capability.SendFailure
	if errors.As(err, &failure) && !isBlank(failure.UserMessage) {
		return failure.UserMessage
	}
	return defaultFailureMessage
}
