package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/capability"
)

// periodFrames is 30ms at 16kHz.
const periodFrames = 480

// Capture is the default input device. The device is initialized on Open
// and torn down on Close so that the microphone is only held while needed.
type Capture struct {
	audioContext *malgo.AllocatedContext
	encodingInfo audio.EncodingInfo

	mu     sync.Mutex
	device *malgo.Device
}

func (c *Capture) EncodingInfo() audio.EncodingInfo {
	return c.encodingInfo
}

// Open starts delivering frames to onFrame. Failing to initialize the device
// is reported as a permission error, which is how a denied microphone
// surfaces on every backend miniaudio supports.
func (c *Capture) Open(_ context.Context, onFrame func(frame []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		return nil
	}

	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * audio.DefaultChannels

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(c.encodingInfo.SampleRate)
	config.Capture.Format = format
	config.Capture.Channels = audio.DefaultChannels
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = periodFrames
	config.Periods = 3

	device, err := malgo.InitDevice(c.audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			frame := make([]byte, n)
			copy(frame, pInput[:n])
			onFrame(frame)
		},
	})
	if err != nil {
		return capability.NewPermissionError(capability.Microphone,
			fmt.Errorf("failed to initialize capture device: %w", err))
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return capability.NewPermissionError(capability.Microphone,
			fmt.Errorf("failed to start capture device: %w", err))
	}

	c.device = device
	return nil
}

func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return nil
	}

	device := c.device
	c.device = nil
	if err := device.Stop(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	device.Uninit()
	return nil
}
