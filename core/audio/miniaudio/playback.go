package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-voice/core/audio"
)

// Playback is the default output device. It is started once with the client
// and plays silence while its buffer is empty.
type Playback struct {
	audioContext *malgo.AllocatedContext
	encodingInfo audio.EncodingInfo
	buffer       playbackBuffer

	mu     sync.Mutex
	device *malgo.Device
}

func (p *Playback) init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * audio.DefaultChannels

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(p.encodingInfo.SampleRate)
	config.Playback.Format = format
	config.Playback.Channels = audio.DefaultChannels
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = uint32(p.encodingInfo.SampleRate) / 10 // ~100ms of audio
	config.Periods = 4

	device, err := malgo.InitDevice(p.audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			need := int(frameCount) * bytesPerFrame
			if len(pOutput) < need {
				need = len(pOutput)
			}
			p.buffer.read(pOutput[:need])
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	p.device = device
	return nil
}

func (p *Playback) EncodingInfo() audio.EncodingInfo {
	return p.encodingInfo
}

func (p *Playback) SendAudio(audio []byte) error {
	p.mu.Lock()
	started := p.device != nil && p.device.IsStarted()
	p.mu.Unlock()
	if !started {
		return fmt.Errorf("playback device not started")
	}

	p.buffer.write(audio)
	return nil
}

// ClearBuffer drops queued audio and pending marks without calling them.
func (p *Playback) ClearBuffer() {
	p.buffer.clear()
}

// Mark calls callback once all audio sent so far has been played.
func (p *Playback) Mark(mark string, callback func(string)) error {
	p.buffer.mark(mark, callback)
	return nil
}

func (p *Playback) uninit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return nil
	}

	_ = p.device.Stop()
	p.device.Uninit()
	p.device = nil
	p.buffer.clear()
	return nil
}

type playbackMark struct {
	name     string
	position int
	callback func(string)
}

// playbackBuffer holds audio waiting for the device and the marks placed in
// it. Positions are byte offsets from the current read position.
type playbackBuffer struct {
	mu    sync.Mutex
	audio []byte
	marks []playbackMark
}

func (b *playbackBuffer) write(audio []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.audio = append(b.audio, audio...)
}

func (b *playbackBuffer) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.audio = nil
	b.marks = nil
}

func (b *playbackBuffer) mark(name string, callback func(string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.marks = append(b.marks, playbackMark{
		name:     name,
		position: len(b.audio),
		callback: callback,
	})
}

// read fills out with queued audio, padding with silence, and calls the
// marks that were passed on their own goroutine.
func (b *playbackBuffer) read(out []byte) {
	b.mu.Lock()
	n := copy(out, b.audio)
	b.audio = b.audio[n:]
	if len(b.audio) == 0 {
		b.audio = nil
	}
	clear(out[n:])

	passed := 0
	for i := range b.marks {
		if b.marks[i].position <= n {
			passed++
			continue
		}
		b.marks[i].position -= n
	}
	toCall := b.marks[:passed:passed]
	b.marks = b.marks[passed:]
	b.mu.Unlock()

	if len(toCall) == 0 {
		return
	}
	go func() {
		for _, mark := range toCall {
			mark.callback(mark.name)
		}
	}()
}
