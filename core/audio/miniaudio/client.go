// Package miniaudio provides a microphone and a speaker backed by miniaudio.
//
// [Capture] is an [amplitude.Device] and [Playback] satisfies the
// synthesizers' audio output. Both share the [Client]'s audio context.
package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/capability"
)

type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	capture      *Capture
	playback     *Playback

	closeOnce sync.Once
}

type ClientOption func(*clientOptions)

type clientOptions struct {
	sampleRate int
	onLog      func(message string)
}

func WithSampleRate(sampleRate int) ClientOption {
	return func(o *clientOptions) {
		if sampleRate > 0 {
			o.sampleRate = sampleRate
		}
	}
}

// WithLogCallback receives miniaudio's own diagnostics.
func WithLogCallback(onLog func(message string)) ClientOption {
	return func(o *clientOptions) { o.onLog = onLog }
}

func NewClient(opts ...ClientOption) (*Client, error) {
	options := clientOptions{
		sampleRate: audio.DefaultSampleRate,
		onLog:      func(string) {},
	}
	for _, opt := range opts {
		opt(&options)
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, options.onLog)
	if err != nil {
		return nil, capability.NewUnsupportedError(capability.Microphone,
			fmt.Errorf("failed to initialize audio context: %w", err))
	}

	encodingInfo := audio.EncodingInfo{SampleRate: options.sampleRate, Format: audio.EncodingLinear16}
	client := &Client{
		audioContext: audioCtx,
		capture:      &Capture{audioContext: audioCtx, encodingInfo: encodingInfo},
		playback:     &Playback{audioContext: audioCtx, encodingInfo: encodingInfo},
	}

	if err := client.playback.init(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback: %w", err)
	}

	return client, nil
}

// Capture returns the microphone. It is opened by whoever meters it.
func (c *Client) Capture() *Capture {
	return c.capture
}

func (c *Client) Playback() *Playback {
	return c.playback
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.capture.Close()
		_ = c.playback.uninit()
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
	})
}
