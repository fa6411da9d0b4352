// Package observability carries the demo binary's logging and Prometheus
// metrics. Both are fed from the controller's event stream.
package observability

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/koscakluka/ema-voice/core/events"
	"github.com/rs/zerolog"
)

// NewLogger returns a JSON logger writing to w at the named level. Unknown
// levels fall back to info.
func NewLogger(w io.Writer, level string) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || logLevel == zerolog.NoLevel {
		logLevel = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(logLevel).With().Timestamp().Logger()
}

// OpenLogFile opens path for appending. The terminal belongs to the UI, so
// the binary never logs to stdout.
func OpenLogFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// EventLogger logs every controller event. Level samples are only logged at
// trace level.
func EventLogger(logger zerolog.Logger) func(events.Event) {
	return func(event events.Event) {
		entry := logger.Debug()
		switch typedEvent := event.(type) {
		case events.UserLevelSampled:
			entry = logger.Trace().
				Float64("level", typedEvent.Level).
				Bool("above_threshold", typedEvent.AboveThreshold)
		case events.TurnStateChanged:
			entry = logger.Info().
				Str("from", typedEvent.From.String()).
				Str("to", typedEvent.To.String())
		case events.UserUtteranceSubmitted:
			entry = logger.Info().
				Str("utterance_id", typedEvent.UtteranceID).
				Int("length", len(typedEvent.Text))
		case events.AssistantReplyReceived:
			entry = logger.Info().Str("utterance_id", typedEvent.UtteranceID)
			if typedEvent.Err != nil {
				entry = logger.Warn().Str("utterance_id", typedEvent.UtteranceID).Err(typedEvent.Err)
			}
		case events.AssistantPlaybackChunkFailed:
			entry = logger.Warn().
				Str("job_id", typedEvent.JobID).
				Int("chunk", typedEvent.Index).
				Err(typedEvent.Err)
		case events.VoiceFailed:
			entry = logger.Error().Err(typedEvent.Err).Bool("degraded", typedEvent.Degraded)
		case events.UserBargeIn:
			entry = logger.Info().Str("job_id", typedEvent.JobID)
		}

		entry.
			Str("event", string(event.Kind())).
			Time("event_time", event.Timestamp().UTC().Truncate(time.Millisecond)).
			Msg("controller event")
	}
}
