// Package portaudio provides a PortAudio microphone for platforms where
// miniaudio is not available.
package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/capability"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-voice/core/audio/portaudio"

var logger = otelslog.NewLogger(scopeName)

// Client is an [amplitude.Device] reading the default input device.
type Client struct {
	bufferSize int

	mu     sync.Mutex
	stream *portaudio.Stream
	done   chan struct{}
	cancel context.CancelFunc
}

// NewClient initializes PortAudio. bufferSize is the number of samples per
// delivered frame.
func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, capability.NewUnsupportedError(capability.Microphone,
			fmt.Errorf("failed to initialize PortAudio: %w", err))
	}
	if bufferSize <= 0 {
		bufferSize = audio.DefaultSampleRate / 50
	}

	return &Client{bufferSize: bufferSize}, nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}

func (c *Client) Open(ctx context.Context, onFrame func(frame []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return nil
	}

	in := make([]int16, c.bufferSize)
	stream, err := portaudio.OpenDefaultStream(audio.DefaultChannels, 0, audio.DefaultSampleRate, c.bufferSize, in)
	if err != nil {
		return capability.NewPermissionError(capability.Microphone,
			fmt.Errorf("failed to open PortAudio stream: %w", err))
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return capability.NewPermissionError(capability.Microphone,
			fmt.Errorf("failed to start PortAudio stream: %w", err))
	}

	readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.stream = stream
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.read(readCtx, stream, in, onFrame, c.done)
	return nil
}

func (c *Client) read(ctx context.Context, stream *portaudio.Stream, in []int16, onFrame func([]byte), done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := stream.Read(); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WarnContext(ctx, "failed to read from PortAudio stream", "error", err)
			continue
		}

		frame := make([]byte, 2*len(in))
		for i, sample := range in {
			binary.LittleEndian.PutUint16(frame[2*i:], uint16(sample))
		}
		onFrame(frame)
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	stream, cancel, done := c.stream, c.cancel, c.done
	c.stream, c.cancel, c.done = nil, nil, nil
	c.mu.Unlock()
	if stream == nil {
		return nil
	}

	cancel()
	err := stream.Stop()
	<-done
	if closeErr := stream.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to close PortAudio stream: %w", err)
	}
	return nil
}

// Terminate releases PortAudio. The client cannot be opened afterwards.
func (c *Client) Terminate() error {
	if err := c.Close(); err != nil {
		return err
	}
	return portaudio.Terminate()
}
