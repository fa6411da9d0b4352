package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/turn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsObserveTurnState(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.Observe(events.NewTurnStateChanged(turn.Idle, turn.Listening))
	metrics.Observe(events.NewTurnStateChanged(turn.Listening, turn.Processing))

	if value := testutil.ToFloat64(metrics.transitions.WithLabelValues("idle", "listening")); value != 1 {
		t.Fatalf("expected one idle to listening transition, got %v", value)
	}
	if value := testutil.ToFloat64(metrics.state.WithLabelValues("processing")); value != 1 {
		t.Fatalf("expected processing to be current, got %v", value)
	}
	if value := testutil.ToFloat64(metrics.state.WithLabelValues("listening")); value != 0 {
		t.Fatalf("expected listening to be cleared, got %v", value)
	}
}

func TestMetricsObserveReplyLatency(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	start := time.Unix(100, 0)

	metrics.Observe(events.NewUserUtteranceSubmitted("u1", "hello", events.WithTimestamp(start)))
	metrics.Observe(events.NewAssistantReplyReceived("u1", "hi", nil, events.WithTimestamp(start.Add(2*time.Second))))
	metrics.Observe(events.NewAssistantReplyReceived("u2", "", errors.New("boom")))

	if value := testutil.ToFloat64(metrics.replies.WithLabelValues("ok")); value != 1 {
		t.Fatalf("expected one successful reply, got %v", value)
	}
	if value := testutil.ToFloat64(metrics.replies.WithLabelValues("error")); value != 1 {
		t.Fatalf("expected one failed reply, got %v", value)
	}
	if count := testutil.CollectAndCount(metrics.replyLatency); count != 1 {
		t.Fatalf("expected latency histogram to be collected, got %d", count)
	}
	if len(metrics.submitted) != 0 {
		t.Fatalf("expected pending submissions to be forgotten, got %d", len(metrics.submitted))
	}
}

func TestMetricsObservePlayback(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.Observe(events.NewUserBargeIn("job"))
	metrics.Observe(events.NewAssistantPlaybackCancelled("job"))
	metrics.Observe(events.NewAssistantPlaybackChunkFailed("job", 1, errors.New("boom")))
	metrics.Observe(events.NewVoiceFailed(errors.New("denied"), true))

	if value := testutil.ToFloat64(metrics.bargeIns); value != 1 {
		t.Fatalf("expected one barge-in, got %v", value)
	}
	if value := testutil.ToFloat64(metrics.playbacks.WithLabelValues("cancelled")); value != 1 {
		t.Fatalf("expected one cancelled playback, got %v", value)
	}
	if value := testutil.ToFloat64(metrics.chunkFailures); value != 1 {
		t.Fatalf("expected one chunk failure, got %v", value)
	}
	if value := testutil.ToFloat64(metrics.voiceFailures.WithLabelValues("true")); value != 1 {
		t.Fatalf("expected one degraded voice failure, got %v", value)
	}
}

func TestEventLoggerWritesStructuredEntries(t *testing.T) {
	var buffer bytes.Buffer
	log := EventLogger(NewLogger(&buffer, "info"))

	log(events.NewUserLevelSampled(0.5, true))
	log(events.NewTurnStateChanged(turn.Idle, turn.Listening))

	lines := strings.Split(strings.TrimSpace(buffer.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the state change at info level, got %q", buffer.String())
	}

	entry := map[string]any{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON log entry, got %v", err)
	}
	if entry["event"] != "turn_state.changed" || entry["to"] != "listening" {
		t.Fatalf("unexpected log entry %v", entry)
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	var buffer bytes.Buffer
	logger := NewLogger(&buffer, "chatty")

	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")

	if strings.Contains(buffer.String(), "hidden") || !strings.Contains(buffer.String(), "shown") {
		t.Fatalf("expected info level logger, got %q", buffer.String())
	}
}
