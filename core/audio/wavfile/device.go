// Package wavfile replays a WAV recording as if it were a microphone. It is
// used for demos without audio hardware and for end-to-end tests.
package wavfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/capability"
	"github.com/youpy/go-wav"
)

const DefaultFrameDuration = 20 * time.Millisecond

type Option func(*Device)

func WithClock(clock clockwork.Clock) Option {
	return func(d *Device) {
		if clock != nil {
			d.clock = clock
		}
	}
}

func WithFrameDuration(duration time.Duration) Option {
	return func(d *Device) {
		if duration > 0 {
			d.frameDuration = duration
		}
	}
}

// WithLoop restarts the recording when it ends instead of delivering
// silence.
func WithLoop(loop bool) Option {
	return func(d *Device) { d.loop = loop }
}

// Device delivers the recording in real time, one frame per frame
// duration. Once the recording ends it keeps delivering silence so that
// the stream does not look like a dead microphone.
type Device struct {
	clock         clockwork.Clock
	frameDuration time.Duration
	loop          bool

	samples    []float64
	sampleRate int

	mu       sync.Mutex
	position int
	cancel   context.CancelFunc
	done     chan struct{}
}

func Open(path string, opts ...Option) (*Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, capability.NewPermissionError(capability.Microphone,
			fmt.Errorf("failed to open recording: %w", err))
	}
	defer f.Close()

	return NewDevice(f, opts...)
}

func NewDevice(r io.Reader, opts ...Option) (*Device, error) {
	d := &Device{
		clock:         clockwork.NewRealClock(),
		frameDuration: DefaultFrameDuration,
	}
	for _, opt := range opts {
		opt(d)
	}

	var err error
	if d.samples, d.sampleRate, err = load(r); err != nil {
		return nil, capability.NewUnsupportedError(capability.Microphone, err)
	}
	return d, nil
}

// load reads the recording mixed down to mono.
func load(r io.Reader) ([]float64, int, error) {
	source, ok := r.(interface {
		io.Reader
		io.ReaderAt
	})
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read recording: %w", err)
		}
		source = bytes.NewReader(data)
	}

	reader := wav.NewReader(source)
	format, err := reader.Format()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read WAV format: %w", err)
	}
	channels := int(format.NumChannels)
	if channels < 1 || channels > 2 {
		return nil, 0, fmt.Errorf("unsupported WAV channel count %d", channels)
	}

	var samples []float64
	for {
		read, err := reader.ReadSamples()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, 0, fmt.Errorf("failed to read WAV samples: %w", err)
		}

		for _, sample := range read {
			value := reader.FloatValue(sample, 0)
			if channels == 2 {
				value = (value + reader.FloatValue(sample, 1)) / 2
			}
			samples = append(samples, value)
		}
	}

	return samples, int(format.SampleRate), nil
}

func (d *Device) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: d.sampleRate, Format: audio.EncodingLinear16}
}

// Duration is the length of the recording.
func (d *Device) Duration() time.Duration {
	if d.sampleRate == 0 {
		return 0
	}
	return time.Duration(len(d.samples)) * time.Second / time.Duration(d.sampleRate)
}

func (d *Device) Open(ctx context.Context, onFrame func(frame []byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return nil
	}

	playCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	d.done = make(chan struct{})

	ticker := d.clock.NewTicker(d.frameDuration)
	go func(done chan struct{}) {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-playCtx.Done():
				return
			case <-ticker.Chan():
				onFrame(d.nextFrame())
			}
		}
	}(d.done)
	return nil
}

func (d *Device) nextFrame() []byte {
	frameSamples := int(int64(d.sampleRate) * int64(d.frameDuration) / int64(time.Second))
	frame := make([]float64, frameSamples)

	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range frame {
		if d.position >= len(d.samples) {
			if !d.loop || len(d.samples) == 0 {
				break
			}
			d.position = 0
		}
		frame[i] = d.samples[d.position]
		d.position++
	}
	return audio.EncodeLinear16(frame)
}

// Close stops delivery. The next Open continues where the recording was
// left.
func (d *Device) Close() error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

// Rewind starts the recording over.
func (d *Device) Rewind() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.position = 0
}
