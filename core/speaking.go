package orchestration

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/turn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

func (o *Orchestrator) canSpeak() bool {
	return o.speakingEnabled && o.synthesizer != nil
}

// isPlaying reports whether a reply is being played that the user may
// interrupt. The echo cool-down tail and spoken errors do not count.
func (o *Orchestrator) isPlaying() bool {
	return o.jobID != "" && !o.idleAfterSpeech
}

func (o *Orchestrator) speak(ctx context.Context, text string) error {
	jobID, err := o.queue.Enqueue(ctx, text)
	if err != nil {
		logger.WarnContext(ctx, "failed to start speaking reply", "error", err)
		return err
	}

	o.cooldown.stop()
	o.cooling = false
	o.jobID = jobID
	o.setState(ctx, turn.Speaking)
	return nil
}

// stopPlayback cancels the reply being played and the echo cool-down.
func (o *Orchestrator) stopPlayback(ctx context.Context) {
	o.cooldown.stop()
	o.cooling = false
	o.idleAfterSpeech = false
	if o.jobID == "" {
		return
	}

	jobID := o.jobID
	o.jobID = ""
	if err := o.queue.Cancel(); err != nil {
		recordedErr := fmt.Errorf("failed to cancel playback: %w", err)
		span := trace.SpanFromContext(ctx)
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
		logger.WarnContext(ctx, "failed to cancel playback", "error", err)
	}
	o.emit(events.NewAssistantPlaybackCancelled(jobID, o.stamp()))
}

func (o *Orchestrator) interruptPlayback(ctx context.Context) {
	jobID := o.jobID
	if o.bargeIns != nil {
		o.bargeIns.Add(ctx, 1)
	}
	logger.DebugContext(ctx, "user interrupted playback", "job_id", jobID)
	o.emit(events.NewUserBargeIn(jobID, o.stamp()))

	o.stopPlayback(ctx)
	if !o.voiceMode {
		o.goIdle(ctx)
		return
	}
	_ = o.startListening(ctx)
}

func (o *Orchestrator) setSpeaking(ctx context.Context, enabled bool) {
	o.speakingEnabled = enabled
	if enabled || o.state != turn.Speaking || !o.isPlaying() {
		return
	}

	o.stopPlayback(ctx)
	if !o.voiceMode {
		o.goIdle(ctx)
		return
	}
	_ = o.startListening(ctx)
}

func (o *Orchestrator) onPlaybackStarted(jobID string) {
	if jobID != o.jobID {
		return
	}
	o.emit(events.NewAssistantPlaybackStarted(jobID, o.stamp()))
}

func (o *Orchestrator) onChunkFailed(jobID string, index int, err error) {
	if jobID != o.jobID {
		return
	}
	if o.chunkErrors != nil {
		o.chunkErrors.Add(o.baseContext, 1, metric.WithAttributes(attribute.Int("playback.chunk", index)))
	}
	o.emit(events.NewAssistantPlaybackChunkFailed(jobID, index, err, o.stamp()))
}

// onPlaybackDrained starts the echo cool-down. The recognizer is held until
// it ends, so even a disable and enable inside the window cannot capture the
// tail of the reply.
func (o *Orchestrator) onPlaybackDrained(jobID string) {
	if jobID != o.jobID || o.state != turn.Speaking {
		return
	}

	o.jobID = ""
	o.emit(events.NewAssistantPlaybackEnded(jobID, o.stamp()))

	if o.idleAfterSpeech {
		o.goIdle(o.baseContext)
		return
	}

	o.cooling = true
	o.session.HoldUntil(o.clock.Now().Add(o.timings.EchoCooldown))
	o.cooldown.arm(o.clock, o.timings.EchoCooldown, func(token uint64) {
		o.post(func() { o.onCooldownElapsed(token) })
	})
}

func (o *Orchestrator) onCooldownElapsed(token uint64) {
	if !o.cooldown.fired(token) || o.state != turn.Speaking || !o.cooling {
		return
	}

	o.cooling = false
	if !o.voiceMode {
		o.goIdle(o.baseContext)
		return
	}
	_ = o.startListening(o.baseContext)
}
