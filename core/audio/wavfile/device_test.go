package wavfile

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/capability"
	"github.com/youpy/go-wav"
)

func writeRecording(t *testing.T, sampleRate int, values []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recording.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create recording: %v", err)
	}
	defer f.Close()

	samples := make([]wav.Sample, len(values))
	for i, value := range values {
		samples[i] = wav.Sample{Values: [2]int{value, 0}}
	}
	writer := wav.NewWriter(f, uint32(len(samples)), 1, uint32(sampleRate), 16)
	if err := writer.WriteSamples(samples); err != nil {
		t.Fatalf("failed to write recording: %v", err)
	}
	return path
}

func TestOpenMissingFileIsPermissionError(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.wav"))
	if !errors.Is(err, capability.ErrPermissionDenied) {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestNewDeviceRejectsGarbage(t *testing.T) {
	_, err := NewDevice(bytes.NewReader([]byte("not a wav file")))
	if !errors.Is(err, capability.ErrUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestDeviceReportsRecordingFormat(t *testing.T) {
	path := writeRecording(t, 8000, make([]int, 8000))

	device, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open recording: %v", err)
	}

	info := device.EncodingInfo()
	if info.SampleRate != 8000 || info.Format != audio.EncodingLinear16 {
		t.Fatalf("unexpected encoding info %+v", info)
	}
	if device.Duration() != time.Second {
		t.Fatalf("expected 1s recording, got %v", device.Duration())
	}
}

func TestDeviceDeliversFramesThenSilence(t *testing.T) {
	values := make([]int, 240)
	for i := range values {
		values[i] = 16384
	}
	path := writeRecording(t, 8000, values)

	clock := clockwork.NewFakeClock()
	device, err := Open(path, WithClock(clock), WithFrameDuration(20*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to open recording: %v", err)
	}

	frames := make(chan []byte, 4)
	if err := device.Open(context.Background(), func(frame []byte) { frames <- frame }); err != nil {
		t.Fatalf("failed to open device: %v", err)
	}
	defer device.Close()

	// 20ms at 8kHz is 160 samples, so the second frame is partly silent.
	first := advanceForFrame(t, clock, 20*time.Millisecond, frames)
	if len(first) != 320 {
		t.Fatalf("expected 320 byte frame, got %d", len(first))
	}
	if samples := audio.DecodeLinear16(nil, first); samples[0] < 0.45 || samples[159] < 0.45 {
		t.Fatalf("expected recorded level in first frame, got %v and %v", samples[0], samples[159])
	}

	second := audio.DecodeLinear16(nil, advanceForFrame(t, clock, 20*time.Millisecond, frames))
	if second[79] < 0.45 || second[80] != 0 || second[159] != 0 {
		t.Fatalf("expected recording to end in silence at sample 80, got %v, %v, %v", second[79], second[80], second[159])
	}
}

func TestDeviceLoops(t *testing.T) {
	path := writeRecording(t, 8000, []int{16384, 16384, 16384, 16384})

	clock := clockwork.NewFakeClock()
	device, err := Open(path, WithClock(clock), WithFrameDuration(time.Millisecond), WithLoop(true))
	if err != nil {
		t.Fatalf("failed to open recording: %v", err)
	}

	frames := make(chan []byte, 1)
	if err := device.Open(context.Background(), func(frame []byte) { frames <- frame }); err != nil {
		t.Fatalf("failed to open device: %v", err)
	}
	defer device.Close()

	for i, sample := range audio.DecodeLinear16(nil, advanceForFrame(t, clock, time.Millisecond, frames)) {
		if sample == 0 {
			t.Fatalf("expected looped recording without gaps, sample %d is silent", i)
		}
	}
}

func TestDeviceCloseStopsDelivery(t *testing.T) {
	path := writeRecording(t, 8000, make([]int, 800))

	clock := clockwork.NewFakeClock()
	device, err := Open(path, WithClock(clock))
	if err != nil {
		t.Fatalf("failed to open recording: %v", err)
	}

	frames := make(chan []byte, 4)
	if err := device.Open(context.Background(), func(frame []byte) { frames <- frame }); err != nil {
		t.Fatalf("failed to open device: %v", err)
	}
	blockUntilTicker(t, clock)
	if err := device.Close(); err != nil {
		t.Fatalf("failed to close device: %v", err)
	}

	clock.Advance(DefaultFrameDuration)
	select {
	case <-frames:
		t.Fatalf("expected no frames after close")
	case <-time.After(20 * time.Millisecond):
	}
}

func advanceForFrame(t *testing.T, clock *clockwork.FakeClock, frameDuration time.Duration, frames <-chan []byte) []byte {
	t.Helper()
	blockUntilTicker(t, clock)
	clock.Advance(frameDuration)
	select {
	case frame := <-frames:
		return frame
	case <-time.After(time.Second):
		t.Fatalf("expected a frame")
		return nil
	}
}

func blockUntilTicker(t *testing.T, clock *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("expected ticker to be running: %v", err)
	}
}
