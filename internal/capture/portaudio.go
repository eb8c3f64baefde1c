package capture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/eleven-am/voice-client/internal/shared"
	"github.com/gordonklaus/portaudio"
)

// PortAudioDevice captures the system default input device.
type PortAudioDevice struct {
	mu     sync.Mutex
	stream *portaudio.Stream
}

func NewPortAudioDevice() *PortAudioDevice {
	return &PortAudioDevice{}
}

func (d *PortAudioDevice) Open(frameSize int, process func(frame []float32)) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream != nil {
		return 0, errors.New("capture stream already open")
	}

	if err := portaudio.Initialize(); err != nil {
		return 0, fmt.Errorf("%w: initialize portaudio: %w", shared.ErrDeviceUnavailable, err)
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		_ = portaudio.Terminate()
		return 0, fmt.Errorf("%w: default input device: %w", shared.ErrDeviceUnavailable, err)
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = dev.DefaultSampleRate
	params.FramesPerBuffer = frameSize

	stream, err := portaudio.OpenStream(params, func(in []float32) {
		process(in)
	})
	if err != nil {
		_ = portaudio.Terminate()
		return 0, fmt.Errorf("%w: open input stream: %w", shared.ErrDeviceUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return 0, fmt.Errorf("%w: start input stream: %w", shared.ErrDeviceUnavailable, err)
	}

	d.stream = stream
	return int(dev.DefaultSampleRate), nil
}

func (d *PortAudioDevice) Close() error {
	d.mu.Lock()
	stream := d.stream
	d.stream = nil
	d.mu.Unlock()

	if stream == nil {
		return nil
	}

	var errs []error
	if err := stream.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := stream.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
