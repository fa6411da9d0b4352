package orchestration

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-voice/core/amplitude"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/turn"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type microphone struct {
	held bool
	// degraded and reported last until voice goes idle, so a refused
	// microphone is neither re-requested nor re-reported every turn.
	degraded    bool
	reported    bool
	generation  uint64
	stopSamples context.CancelFunc
	level       float64
}

func (o *Orchestrator) acquireMicrophone(ctx context.Context) {
	if o.microphone.held || o.microphone.degraded {
		return
	}

	if err := o.monitor.Start(ctx); err != nil {
		o.microphone.degraded = true
		logger.WarnContext(ctx, "microphone unavailable, continuing without level metering", "error", err)
		if !o.microphone.reported {
			o.microphone.reported = true
			o.emit(events.NewVoiceFailed(err, true, o.stamp()))
		}
		return
	}

	o.microphone.held = true
	o.microphone.generation++
	generation := o.microphone.generation
	samplesCtx, stopSamples := context.WithCancel(o.baseContext)
	o.microphone.stopSamples = stopSamples

	go func() {
		for sample := range o.monitor.Samples(samplesCtx) {
			if !o.post(func() { o.onSample(generation, sample) }) {
				return
			}
		}
	}()
}

func (o *Orchestrator) releaseMicrophone(ctx context.Context) {
	o.microphone.degraded = false
	o.microphone.reported = false
	if !o.microphone.held {
		return
	}

	o.microphone.held = false
	o.microphone.generation++
	o.microphone.level = 0
	o.microphone.stopSamples()
	if err := o.monitor.Stop(); err != nil {
		recordedErr := fmt.Errorf("failed to release microphone: %w", err)
		span := trace.SpanFromContext(ctx)
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
		logger.WarnContext(ctx, "failed to release microphone", "error", err)
	}
}

func (o *Orchestrator) onSample(generation uint64, sample amplitude.Sample) {
	if generation != o.microphone.generation || !o.microphone.held {
		return
	}

	o.microphone.level = sample.Level
	o.emit(events.NewUserLevelSampled(sample.Level, sample.AboveThreshold, o.stamp()))

	if sample.AboveThreshold && o.bargeInEnabled && o.isPlaying() && o.state == turn.Speaking {
		o.interruptPlayback(o.baseContext)
	}
}
