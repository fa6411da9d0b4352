package playback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/koscakluka/ema-voice/core/capability"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

func TestEnqueueWithoutSynthesizerIsUnsupported(t *testing.T) {
	queue := NewQueue(nil)

	if _, err := queue.Enqueue(context.Background(), "Hello."); !errors.Is(err, capability.ErrUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestEnqueueEmptyTextHasNothingToSay(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	queue := NewQueue(synthesizer)

	if _, err := queue.Enqueue(context.Background(), "  \n "); !errors.Is(err, ErrNothingToSay) {
		t.Fatalf("expected nothing to say, got %v", err)
	}
	if queue.IsActive() {
		t.Fatalf("expected queue to stay idle")
	}
}

func TestChunksPlaySequentially(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	recorder := &callbackRecorder{}
	queue := NewQueue(synthesizer, recorder.options(WithMaxChunkLength(10))...)

	jobID, err := queue.Enqueue(context.Background(), "One. Two. Three.")
	if err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	waitForSpoken(t, synthesizer, 1)

	if got := synthesizer.spokenTexts(); len(got) != 1 || got[0] != "One. Two." {
		t.Fatalf("expected only the first chunk to be spoken, got %q", got)
	}
	if got := recorder.firstStarts.Load(); got != 1 {
		t.Fatalf("expected first chunk start once, got %d", got)
	}

	synthesizer.endLatest(nil)
	if got := synthesizer.spokenTexts(); len(got) != 2 || got[1] != "Three." {
		t.Fatalf("expected the second chunk after the first ended, got %q", got)
	}
	if recorder.drainedJob() != "" {
		t.Fatalf("expected queue not drained with a chunk playing")
	}

	synthesizer.endLatest(nil)
	if got := recorder.drainedJob(); got != jobID {
		t.Fatalf("expected job %q drained, got %q", jobID, got)
	}
	if queue.IsActive() {
		t.Fatalf("expected queue to be idle after draining")
	}
	if got := recorder.firstStarts.Load(); got != 1 {
		t.Fatalf("expected first chunk start exactly once, got %d", got)
	}
}

func TestChunkErrorsDoNotStopPlayback(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	recorder := &callbackRecorder{}
	queue := NewQueue(synthesizer, recorder.options(WithMaxChunkLength(5))...)

	if _, err := queue.Enqueue(context.Background(), "One. Two. Six."); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	waitForSpoken(t, synthesizer, 1)

	synthesizer.endLatest(errors.New("engine glitch"))
	synthesizer.failNextSpeak(errors.New("engine unavailable"))
	synthesizer.endLatest(nil)

	if got := recorder.chunkErrors.Load(); got != 2 {
		t.Fatalf("expected two chunk errors, got %d", got)
	}
	if got := synthesizer.spokenTexts(); len(got) != 2 {
		t.Fatalf("expected two chunks spoken, got %q", got)
	}
	if recorder.drainedJob() == "" {
		t.Fatalf("expected queue drained after a failed final chunk")
	}
}

func TestFailedSpeakAdvances(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	recorder := &callbackRecorder{}
	queue := NewQueue(synthesizer, recorder.options(WithMaxChunkLength(5))...)

	synthesizer.failNextSpeak(errors.New("engine unavailable"))
	if _, err := queue.Enqueue(context.Background(), "One. Two."); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	waitForSpoken(t, synthesizer, 1)

	if got := recorder.chunkErrors.Load(); got != 1 {
		t.Fatalf("expected one chunk error, got %d", got)
	}
	if got := synthesizer.spokenTexts(); len(got) != 1 || got[0] != "Two." {
		t.Fatalf("expected second chunk to play after the failure, got %q", got)
	}
}

func TestCancelDiscardsRemainingChunks(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	recorder := &callbackRecorder{}
	queue := NewQueue(synthesizer, recorder.options(WithMaxChunkLength(5))...)

	if err := queue.Cancel(); err != nil {
		t.Fatalf("expected cancel on idle queue to succeed, got %v", err)
	}
	if got := synthesizer.cancels.Load(); got != 0 {
		t.Fatalf("expected idle cancel to leave the synthesizer alone, got %d cancels", got)
	}

	if _, err := queue.Enqueue(context.Background(), "One. Two."); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	waitForSpoken(t, synthesizer, 1)
	for range 3 {
		if err := queue.Cancel(); err != nil {
			t.Fatalf("expected cancel to succeed, got %v", err)
		}
	}
	synthesizer.endLatest(nil)

	if got := synthesizer.cancels.Load(); got != 1 {
		t.Fatalf("expected synthesizer cancelled once, got %d", got)
	}
	if got := synthesizer.spokenTexts(); len(got) != 1 {
		t.Fatalf("expected no further chunks after cancel, got %q", got)
	}
	if recorder.drainedJob() != "" {
		t.Fatalf("expected no drained callback after cancel")
	}
	if queue.IsActive() {
		t.Fatalf("expected queue to be idle after cancel")
	}
}

func TestEnqueueReplacesCurrentJob(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	recorder := &callbackRecorder{}
	queue := NewQueue(synthesizer, recorder.options()...)

	if _, err := queue.Enqueue(context.Background(), "First reply."); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	waitForSpoken(t, synthesizer, 1)
	staleEnd := synthesizer.latestEnd()

	secondID, err := queue.Enqueue(context.Background(), "Second reply.")
	if err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	waitForSpoken(t, synthesizer, 2)
	staleEnd(nil)

	if recorder.drainedJob() != "" {
		t.Fatalf("expected the stale chunk end to be ignored")
	}
	if got := synthesizer.cancels.Load(); got != 1 {
		t.Fatalf("expected the first job cancelled, got %d cancels", got)
	}

	synthesizer.endLatest(nil)
	if got := recorder.drainedJob(); got != secondID {
		t.Fatalf("expected second job drained, got %q", got)
	}
}

func TestInterChunkDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	synthesizer := &fakeSynthesizer{}
	queue := NewQueue(synthesizer,
		WithClock(clock),
		WithMaxChunkLength(5),
		WithInterChunkDelay(300*time.Millisecond),
	)

	if _, err := queue.Enqueue(context.Background(), "One. Two."); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	waitForSpoken(t, synthesizer, 1)
	synthesizer.endLatest(nil)

	clock.Advance(299 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	if got := synthesizer.spokenTexts(); len(got) != 1 {
		t.Fatalf("expected the second chunk to wait for the delay, got %q", got)
	}

	clock.Advance(time.Millisecond)
	waitUntil(t, func() bool { return len(synthesizer.spokenTexts()) == 2 })
}

func TestSpeechRateIsPassedToSynthesizer(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	queue := NewQueue(synthesizer, WithRate(1.25))

	if _, err := queue.Enqueue(context.Background(), "Hello."); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	waitForSpoken(t, synthesizer, 1)

	synthesizer.mu.Lock()
	defer synthesizer.mu.Unlock()
	if got := synthesizer.utterances[0].Rate; got != 1.25 {
		t.Fatalf("expected rate 1.25, got %f", got)
	}
}

func TestEnqueueAndCancelDoNotWaitForSynthesizer(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	release := synthesizer.blockSpeaks()
	recorder := &callbackRecorder{}
	queue := NewQueue(synthesizer, recorder.options()...)

	enqueued := make(chan error, 1)
	go func() {
		_, err := queue.Enqueue(context.Background(), "Hello there.")
		enqueued <- err
	}()
	select {
	case err := <-enqueued:
		if err != nil {
			t.Fatalf("expected enqueue to succeed, got %v", err)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected enqueue to return while the synthesizer connects")
	}
	waitUntil(t, func() bool { return synthesizer.pendingSpeaks.Load() == 1 })

	cancelled := make(chan error, 1)
	go func() { cancelled <- queue.Cancel() }()
	select {
	case err := <-cancelled:
		if err != nil {
			t.Fatalf("expected cancel to succeed, got %v", err)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected cancel to return while the synthesizer connects")
	}

	close(release)
	waitUntil(t, func() bool { return synthesizer.speakCtxErr() != nil })
	if !errors.Is(synthesizer.speakCtxErr(), context.Canceled) {
		t.Fatalf("expected the pending speak to see its context cancelled, got %v", synthesizer.speakCtxErr())
	}
	synthesizer.endLatest(nil)
	time.Sleep(10 * time.Millisecond)
	if recorder.drainedJob() != "" {
		t.Fatalf("expected no drained callback for the cancelled job")
	}
}

type fakeSynthesizer struct {
	mu         sync.Mutex
	spoken     []string
	utterances []texttospeech.UtteranceOptions
	speakErrs  []error
	gate       chan struct{}
	ctxErr     error

	pendingSpeaks atomic.Int32
	cancels       atomic.Int32
}

func (s *fakeSynthesizer) Speak(ctx context.Context, text string, opts ...texttospeech.UtteranceOption) error {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		s.pendingSpeaks.Add(1)
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxErr = ctx.Err()
	if len(s.speakErrs) > 0 {
		err := s.speakErrs[0]
		s.speakErrs = s.speakErrs[1:]
		return err
	}
	s.spoken = append(s.spoken, text)
	s.utterances = append(s.utterances, texttospeech.NewUtteranceOptions(opts...))
	return nil
}

func (s *fakeSynthesizer) Cancel() error {
	s.cancels.Add(1)
	return nil
}

func (s *fakeSynthesizer) blockSpeaks() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	return s.gate
}

func (s *fakeSynthesizer) speakCtxErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctxErr
}

func (s *fakeSynthesizer) failNextSpeak(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speakErrs = append(s.speakErrs, err)
}

func (s *fakeSynthesizer) spokenTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

func (s *fakeSynthesizer) latestEnd() func(error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.utterances[len(s.utterances)-1].EndedCallback
}

func (s *fakeSynthesizer) endLatest(err error) {
	s.latestEnd()(err)
}

type callbackRecorder struct {
	mu      sync.Mutex
	drained string

	firstStarts atomic.Int32
	chunkErrors atomic.Int32
}

func (r *callbackRecorder) options(opts ...Option) []Option {
	return append(opts,
		WithFirstChunkStartCallback(func(string) { r.firstStarts.Add(1) }),
		WithChunkErrorCallback(func(string, int, error) { r.chunkErrors.Add(1) }),
		WithQueueDrainedCallback(func(jobID string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.drained = jobID
		}),
	)
}

func (r *callbackRecorder) drainedJob() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drained
}

func waitForSpoken(t *testing.T, synthesizer *fakeSynthesizer, count int) {
	t.Helper()
	waitUntil(t, func() bool { return len(synthesizer.spokenTexts()) == count })
}

func waitUntil(t *testing.T, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
