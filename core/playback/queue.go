// Package playback speaks replies chunk by chunk.
//
// A [Queue] holds at most one job. Chunks of a job are spoken strictly one
// after another: the next chunk starts only after the synthesizer reported
// the previous one as ended, successfully or not.
package playback

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/koscakluka/ema-voice/core/capability"
	"github.com/koscakluka/ema-voice/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrNothingToSay = errors.New("nothing to say")

// Synthesizer renders one utterance at a time. Speak returns once the
// utterance started and may block while connecting; a cancelled ctx
// abandons the utterance. The ended callback reports its completion. Cancel
// stops the current utterance without calling its ended callback.
type Synthesizer interface {
	Speak(ctx context.Context, text string, opts ...texttospeech.UtteranceOption) error
	Cancel() error
}

type Queue struct {
	synthesizer Synthesizer
	options     Options

	// emitMu is held while a callback is delivered, so Cancel can wait for
	// an in-flight delivery.
	emitMu sync.Mutex

	mu  sync.Mutex
	job *job
}

type job struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	span   trace.Span
	chunks []string

	next      int
	playing   int
	started   bool
	cancelled bool
	delay     clockwork.Timer
}

func NewQueue(synthesizer Synthesizer, opts ...Option) *Queue {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Queue{
		synthesizer: synthesizer,
		options:     options,
	}
}

// Enqueue splits text into chunks and starts speaking them in the
// background, cancelling the job in progress. It returns the new job's ID
// without waiting for the synthesizer. Callbacks must not call back into the
// queue synchronously.
func (q *Queue) Enqueue(ctx context.Context, text string) (string, error) {
	if q.synthesizer == nil {
		return "", capability.NewUnsupportedError(capability.Synthesizer, errors.New("no synthesizer configured"))
	}

	chunks := SplitIntoChunks(text, q.options.MaxChunkLength)
	if len(chunks) == 0 {
		return "", ErrNothingToSay
	}

	if err := q.Cancel(); err != nil {
		logger.WarnContext(ctx, "failed to cancel previous reply", "error", err)
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	jobCtx, span := tracer.Start(jobCtx, "speak reply", trace.WithAttributes(
		attribute.Int("playback.chunks", len(chunks)),
	))

	j := &job{
		id:      uuid.NewString(),
		ctx:     jobCtx,
		cancel:  cancel,
		span:    span,
		chunks:  chunks,
		playing: -1,
	}

	q.mu.Lock()
	q.job = j
	q.mu.Unlock()

	go q.speakNext(j)
	return j.id, nil
}

// Cancel stops the current job and discards its remaining chunks. No
// callback of the cancelled job is delivered after Cancel returns. Cancel
// without a job is a no-op.
func (q *Queue) Cancel() error {
	q.mu.Lock()
	j := q.job
	if j == nil {
		q.mu.Unlock()
		return nil
	}
	q.job = nil
	j.cancelled = true
	if j.delay != nil {
		j.delay.Stop()
	}
	q.mu.Unlock()
	j.cancel()

	q.emitMu.Lock()
	q.emitMu.Unlock()

	j.span.AddEvent("cancelled")
	j.span.End()

	if err := q.synthesizer.Cancel(); err != nil {
		return err
	}
	return nil
}

func (q *Queue) IsActive() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.job != nil
}

func (q *Queue) speakNext(j *job) {
	q.mu.Lock()
	if q.job != j {
		q.mu.Unlock()
		return
	}
	j.delay = nil

	if j.next >= len(j.chunks) {
		q.job = nil
		q.mu.Unlock()

		j.cancel()
		j.span.End()
		q.emit(j, func() { q.options.QueueDrainedCallback(j.id) }, true)
		return
	}

	index := j.next
	j.next++
	j.playing = index
	first := !j.started
	j.started = true
	q.mu.Unlock()

	if first {
		q.emit(j, func() { q.options.FirstChunkStartCallback(j.id) }, false)
	}

	err := q.synthesizer.Speak(j.ctx, j.chunks[index],
		texttospeech.WithRate(q.options.Rate),
		texttospeech.WithEndedCallback(func(err error) { q.chunkEnded(j, index, err) }),
	)
	if err != nil {
		q.chunkEnded(j, index, err)
	}
}

func (q *Queue) chunkEnded(j *job, index int, err error) {
	q.mu.Lock()
	if q.job != j || j.playing != index {
		q.mu.Unlock()
		return
	}
	j.playing = -1
	hasMore := j.next < len(j.chunks)
	if hasMore && q.options.InterChunkDelay > 0 {
		j.delay = q.options.Clock.AfterFunc(q.options.InterChunkDelay, func() { q.speakNext(j) })
	}
	q.mu.Unlock()

	if err != nil {
		logger.WarnContext(j.ctx, "failed to speak chunk, continuing", "chunk", index, "error", err)
		j.span.RecordError(err)
		j.span.SetStatus(codes.Error, err.Error())
		q.emit(j, func() { q.options.ChunkErrorCallback(j.id, index, err) }, false)
	}

	if !hasMore || q.options.InterChunkDelay <= 0 {
		q.speakNext(j)
	}
}

// emit delivers a callback unless the job was cancelled. Drained jobs are
// already detached from the queue, so only their cancellation flag counts.
func (q *Queue) emit(j *job, callback func(), drained bool) {
	q.emitMu.Lock()
	defer q.emitMu.Unlock()

	q.mu.Lock()
	deliver := !j.cancelled && (drained || q.job == j)
	q.mu.Unlock()

	if deliver {
		callback()
	}
}
