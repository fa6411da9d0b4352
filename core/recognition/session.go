// Package recognition keeps a speech recognizer running for as long as its
// owner wants capture.
//
// A [Session] forwards recognizer updates, restarts the recognizer after it
// stops on its own (network blips, platform timeouts) and treats permission
// and capability failures as terminal.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/koscakluka/ema-voice/core/capability"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// Recognizer is a continuous speech-to-text engine. Start may block while
// the stream is established and should give up when ctx is cancelled;
// results and spontaneous termination are reported through the recognition
// options.
type Recognizer interface {
	Start(ctx context.Context, opts ...speechtotext.RecognitionOption) error
	Stop() error
}

// AudioConsumer is implemented by recognizers that are fed captured audio
// rather than reading a device themselves.
type AudioConsumer interface {
	SendAudio(frame []byte) error
}

type Session struct {
	recognizer Recognizer
	options    Options
	restarts   metric.Int64Counter

	// recognizerMu serializes calls into the recognizer.
	recognizerMu sync.Mutex
	// emitMu is held while an update is delivered, so Stop can wait for an
	// in-flight delivery.
	emitMu sync.Mutex

	mu         sync.Mutex
	active     bool
	running    bool
	generation uint64
	holdUntil  time.Time
	pending    clockwork.Timer
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewSession(recognizer Recognizer, opts ...Option) *Session {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	restarts, err := meter.Int64Counter("recognition.restarts",
		metric.WithDescription("Automatic recognizer restarts"))
	if err != nil {
		logger.Warn("failed to create restart counter", "error", err)
	}

	return &Session{
		recognizer: recognizer,
		options:    options,
		restarts:   restarts,
	}
}

// Start activates the session and starts the recognizer in the background,
// so it never waits for the stream to be established. Without a recognizer
// it returns a [capability.UnsupportedError]. Permission and unsupported
// errors from the recognizer deactivate the session and are reported through
// the failure callback; other start failures are retried. If a hold is in
// effect the recognizer is started only once it expires. Start on an active
// session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "start recognition session")
	defer span.End()

	if s.recognizer == nil {
		err := capability.NewUnsupportedError(capability.Recognizer, errors.New("no recognizer configured"))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = true
	s.generation++
	generation := s.generation
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if wait := s.holdUntil.Sub(s.options.Clock.Now()); wait > 0 {
		s.scheduleLocked(generation, wait, false)
	} else {
		go s.resume(generation, false)
	}
	s.mu.Unlock()
	return nil
}

// Stop deactivates the session and stops the recognizer. No update is
// delivered after Stop returns. A start still in progress is abandoned
// without waiting for it; the recognizer is stopped once it comes up. Stop
// on an inactive session is a no-op.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	running := s.running
	s.deactivateLocked()
	s.mu.Unlock()

	s.emitMu.Lock()
	s.emitMu.Unlock()

	if !running {
		return nil
	}

	s.recognizerMu.Lock()
	defer s.recognizerMu.Unlock()
	if err := s.recognizer.Stop(); err != nil {
		return fmt.Errorf("failed to stop recognizer: %w", err)
	}
	return nil
}

// HoldUntil defers any recognizer start, including automatic restarts and
// starts of later sessions, until t.
func (s *Session) HoldUntil(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.After(s.holdUntil) {
		s.holdUntil = t
	}
}

func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SendAudio forwards a captured frame to the recognizer while it runs.
// Frames arriving between restarts are dropped.
func (s *Session) SendAudio(frame []byte) error {
	consumer, ok := s.recognizer.(AudioConsumer)
	if !ok {
		return nil
	}

	s.mu.Lock()
	running := s.active && s.running
	s.mu.Unlock()
	if !running {
		return nil
	}

	return consumer.SendAudio(frame)
}

func (s *Session) startRecognizer(ctx context.Context, generation uint64) error {
	s.recognizerMu.Lock()
	defer s.recognizerMu.Unlock()

	if !s.isCurrent(generation) {
		return nil
	}

	err := s.recognizer.Start(ctx,
		speechtotext.WithUpdateCallback(func(update speechtotext.Update) { s.onUpdate(generation, update) }),
		speechtotext.WithEndedCallback(func(err error) { s.onEnded(generation, err) }),
		speechtotext.WithEncodingInfo(s.options.EncodingInfo),
		speechtotext.WithLanguage(s.options.Language),
	)

	s.mu.Lock()
	if s.generation != generation || !s.active {
		s.mu.Unlock()
		if err == nil {
			if stopErr := s.recognizer.Stop(); stopErr != nil {
				logger.WarnContext(ctx, "failed to stop recognizer started after the session ended", "error", stopErr)
			}
		}
		return nil
	}
	defer s.mu.Unlock()

	switch {
	case err == nil:
		s.running = true
		return nil
	case isTerminal(err):
		return err
	default:
		logger.WarnContext(ctx, "failed to start recognizer, retrying", "error", err)
		s.scheduleLocked(generation, s.options.RestartBackoff, true)
		return nil
	}
}

func (s *Session) onUpdate(generation uint64, update speechtotext.Update) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	if !s.isCurrent(generation) {
		return
	}
	s.options.UpdateCallback(update)
}

func (s *Session) onEnded(generation uint64, err error) {
	s.mu.Lock()
	if s.generation != generation || !s.active {
		s.mu.Unlock()
		return
	}
	s.running = false

	if isTerminal(err) {
		s.deactivateLocked()
		s.mu.Unlock()
		logger.Warn("recognizer failed permanently", "error", err)
		s.options.FailureCallback(err)
		return
	}

	if err != nil {
		logger.Warn("recognizer stopped, restarting", "error", err)
	} else {
		logger.Debug("recognizer ended, restarting")
	}
	s.scheduleLocked(generation, s.options.RestartBackoff, true)
	s.mu.Unlock()
}

func (s *Session) scheduleLocked(generation uint64, delay time.Duration, restart bool) {
	if s.pending != nil {
		s.pending.Stop()
	}
	if wait := s.holdUntil.Sub(s.options.Clock.Now()); wait > delay {
		delay = wait
	}
	s.pending = s.options.Clock.AfterFunc(delay, func() { s.resume(generation, restart) })
}

func (s *Session) resume(generation uint64, restart bool) {
	s.mu.Lock()
	if s.generation != generation || !s.active {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	if s.options.Clock.Now().Before(s.holdUntil) {
		s.scheduleLocked(generation, 0, restart)
		s.mu.Unlock()
		return
	}
	if restart && !s.options.RestartPolicy() {
		s.mu.Unlock()
		logger.Debug("recognizer start suppressed by restart policy")
		return
	}
	ctx := s.ctx
	s.mu.Unlock()

	if restart && s.restarts != nil {
		s.restarts.Add(ctx, 1)
	}

	if err := s.startRecognizer(ctx, generation); err != nil {
		if s.deactivate(generation) {
			logger.WarnContext(ctx, "recognizer failed to start", "error", err)
			s.options.FailureCallback(err)
		}
	}
}

func (s *Session) isCurrent(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && s.generation == generation
}

func (s *Session) deactivate(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation || !s.active {
		return false
	}
	s.deactivateLocked()
	return true
}

func (s *Session) deactivateLocked() {
	s.active = false
	s.running = false
	s.generation++
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func isTerminal(err error) bool {
	return errors.Is(err, capability.ErrPermissionDenied) || errors.Is(err, capability.ErrUnsupported)
}
