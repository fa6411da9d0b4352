package observability

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/turn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "emavoice"

// Metrics turns controller events into Prometheus series.
type Metrics struct {
	transitions   *prometheus.CounterVec
	state         *prometheus.GaugeVec
	level         prometheus.Gauge
	submissions   prometheus.Counter
	replies       *prometheus.CounterVec
	replyLatency  prometheus.Histogram
	bargeIns      prometheus.Counter
	playbacks     *prometheus.CounterVec
	chunkFailures prometheus.Counter
	voiceFailures *prometheus.CounterVec

	mu        sync.Mutex
	submitted map[string]time.Time
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_transitions_total",
			Help:      "Turn state transitions",
		}, []string{"from", "to"}),
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "turn_state",
			Help:      "1 for the current turn state, 0 otherwise",
		}, []string{"state"}),
		level: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "microphone_level",
			Help:      "Last smoothed microphone level",
		}),
		submissions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_submitted_total",
			Help:      "Utterances handed to the assistant",
		}),
		replies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Replies received from the assistant by result",
		}, []string{"result"}),
		replyLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_latency_seconds",
			Help:      "Time from submitting an utterance to receiving the reply",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16},
		}),
		bargeIns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barge_ins_total",
			Help:      "Replies interrupted by the user",
		}),
		playbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playbacks_total",
			Help:      "Reply playbacks by outcome",
		}, []string{"outcome"}),
		chunkFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_chunk_failures_total",
			Help:      "Reply chunks the synthesizer failed to render",
		}),
		voiceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_failures_total",
			Help:      "User-visible voice failures",
		}, []string{"degraded"}),
		submitted: map[string]time.Time{},
	}
}

func (m *Metrics) Observe(event events.Event) {
	switch typedEvent := event.(type) {
	case events.TurnStateChanged:
		m.transitions.WithLabelValues(typedEvent.From.String(), typedEvent.To.String()).Inc()
		for _, state := range []turn.State{turn.Idle, turn.Listening, turn.Processing, turn.Speaking} {
			value := 0.0
			if state == typedEvent.To {
				value = 1
			}
			m.state.WithLabelValues(state.String()).Set(value)
		}
	case events.UserLevelSampled:
		m.level.Set(typedEvent.Level)
	case events.UserUtteranceSubmitted:
		m.submissions.Inc()
		m.mu.Lock()
		m.submitted[typedEvent.UtteranceID] = typedEvent.Timestamp()
		m.mu.Unlock()
	case events.AssistantReplyReceived:
		result := "ok"
		if typedEvent.Err != nil {
			result = "error"
		}
		m.replies.WithLabelValues(result).Inc()

		m.mu.Lock()
		submittedAt, ok := m.submitted[typedEvent.UtteranceID]
		delete(m.submitted, typedEvent.UtteranceID)
		m.mu.Unlock()
		if ok {
			m.replyLatency.Observe(typedEvent.Timestamp().Sub(submittedAt).Seconds())
		}
	case events.UserBargeIn:
		m.bargeIns.Inc()
	case events.AssistantPlaybackEnded:
		m.playbacks.WithLabelValues("ended").Inc()
	case events.AssistantPlaybackCancelled:
		m.playbacks.WithLabelValues("cancelled").Inc()
	case events.AssistantPlaybackChunkFailed:
		m.chunkFailures.Inc()
	case events.VoiceFailed:
		degraded := "false"
		if typedEvent.Degraded {
			degraded = "true"
		}
		m.voiceFailures.WithLabelValues(degraded).Inc()
	}
}

// Serve exposes gatherer on addr under /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
