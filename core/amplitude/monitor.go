// Package amplitude meters microphone loudness.
//
// A [Monitor] owns the audio input [Device] while it runs: Start acquires it,
// Stop releases it, and no other component opens the device directly.
// Captured frames are analysed into a smoothed level and a coarse
// speech/silence flag with hysteresis, and forwarded to an optional frame
// callback so that a recognizer can consume the same capture.
package amplitude

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/capability"
	"go.opentelemetry.io/otel/codes"
)

// Device is an audio input. Open starts delivering linear16 frames to
// onFrame until Close is called.
type Device interface {
	EncodingInfo() audio.EncodingInfo
	Open(ctx context.Context, onFrame func(frame []byte)) error
	Close() error
}

// Sample is one metering result.
type Sample struct {
	Level          float64
	AboveThreshold bool
}

type Monitor struct {
	device   Device
	options  Options
	analyser *analyser

	// lifecycleMu serializes device acquisition and release.
	lifecycleMu sync.Mutex

	mu         sync.Mutex
	running    bool
	stop       chan struct{}
	done       chan struct{}
	tick       chan struct{}
	level      float64
	above      bool
	belowSince time.Time
	latest     Sample

	capturing atomic.Bool
}

func NewMonitor(device Device, opts ...Option) *Monitor {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Monitor{
		device:   device,
		options:  options,
		analyser: newAnalyser(),
		tick:     make(chan struct{}),
	}
}

// Start acquires the input device and starts sampling. A refused or missing
// device is reported as a [capability.PermissionError]. Calling Start on a
// running monitor is a no-op. If a Stop is still releasing the device, Start
// waits for it.
func (m *Monitor) Start(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "start amplitude monitor")
	defer span.End()

	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.IsRunning() {
		return nil
	}

	if m.device == nil {
		err := capability.NewPermissionError(capability.Microphone, errors.New("no audio input configured"))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if info := m.device.EncodingInfo(); info.Format != audio.EncodingLinear16 {
		err := capability.NewUnsupportedError(capability.Microphone, fmt.Errorf("unsupported input encoding %q", info.Format.Name()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	m.analyser.Reset()
	m.capturing.Store(true)
	if err := m.device.Open(ctx, m.onFrame); err != nil {
		m.capturing.Store(false)
		if !errors.Is(err, capability.ErrPermissionDenied) && !errors.Is(err, capability.ErrUnsupported) {
			err = capability.NewPermissionError(capability.Microphone, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "failed to acquire audio input", "error", err)
		return err
	}

	m.mu.Lock()
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.tick = make(chan struct{})
	m.level = 0
	m.above = false
	m.belowSince = time.Time{}
	m.latest = Sample{}
	stop, done := m.stop, m.done
	m.mu.Unlock()

	go m.run(stop, done)
	return nil
}

// Stop stops sampling and releases the input device. It is idempotent and
// safe to call on a monitor that never started.
func (m *Monitor) Stop() error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.capturing.Store(false)
	close(m.stop)
	close(m.tick)
	m.latest = Sample{}
	done := m.done
	m.mu.Unlock()

	<-done

	if err := m.device.Close(); err != nil {
		return fmt.Errorf("failed to release audio input: %w", err)
	}
	return nil
}

func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Samples returns a lazy sequence of samples. Each step waits for the next
// sampling tick; a slow consumer observes the most recent sample rather
// than a backlog. The sequence ends when ctx is done or the monitor stops,
// and can be ranged over again after a restart.
func (m *Monitor) Samples(ctx context.Context) iter.Seq[Sample] {
	return func(yield func(Sample) bool) {
		for {
			m.mu.Lock()
			if !m.running {
				m.mu.Unlock()
				return
			}
			tick := m.tick
			m.mu.Unlock()

			select {
			case <-ctx.Done():
				return
			case <-tick:
			}

			m.mu.Lock()
			running, sample := m.running, m.latest
			m.mu.Unlock()
			if !running || !yield(sample) {
				return
			}
		}
	}
}

func (m *Monitor) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := m.options.Clock.NewTicker(m.options.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.Chan():
			m.sample(now)
		}
	}
}

func (m *Monitor) sample(now time.Time) {
	rms := m.analyser.Level()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}

	m.level = m.level*m.options.Smoothing + rms*(1-m.options.Smoothing)
	switch {
	case m.level > m.options.Threshold:
		m.above = true
		m.belowSince = time.Time{}
	case m.above && m.belowSince.IsZero():
		m.belowSince = now
	case m.above && now.Sub(m.belowSince) >= m.options.HoldTime:
		m.above = false
		m.belowSince = time.Time{}
	}

	m.latest = Sample{Level: m.level, AboveThreshold: m.above}
	close(m.tick)
	m.tick = make(chan struct{})
}

func (m *Monitor) onFrame(frame []byte) {
	if !m.capturing.Load() {
		return
	}

	m.analyser.Write(frame)
	m.options.FrameCallback(frame)
}
