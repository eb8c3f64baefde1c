package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eleven-am/voice-client/internal/audio"
	"github.com/eleven-am/voice-client/internal/shared"
)

const DefaultFrameSize = 4096

// Device delivers mono float32 frames from a microphone. Open must not
// invoke process synchronously before it returns.
type Device interface {
	Open(frameSize int, process func(frame []float32)) (sampleRate int, err error)
	Close() error
}

// Sink receives one 16kHz PCM16 chunk per processed frame.
type Sink func(chunk []byte)

// microphone is held by at most one started pipeline in the process.
var microphone deviceLock

type deviceLock struct {
	mu   sync.Mutex
	held bool
}

func (l *deviceLock) acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false
	}
	l.held = true
	return true
}

func (l *deviceLock) release() {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
}

type Pipeline struct {
	device    Device
	sink      Sink
	frameSize int
	logger    *slog.Logger

	lifecycle sync.Mutex

	mu         sync.Mutex
	started    bool
	muted      bool
	sampleRate int
	volume     float64
}

func New(device Device, sink Sink, frameSize int, logger *slog.Logger) *Pipeline {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		device:    device,
		sink:      sink,
		frameSize: frameSize,
		logger:    logger.With("component", "capture"),
	}
}

// Start opens the microphone and begins emitting chunks. Calling Start
// on a running pipeline is a no-op.
func (p *Pipeline) Start() error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	running := p.started
	p.mu.Unlock()
	if running {
		return nil
	}

	if p.device == nil {
		return fmt.Errorf("%w: no capture device configured", shared.ErrDeviceUnavailable)
	}
	if !microphone.acquire() {
		return fmt.Errorf("%w: microphone is in use by another session", shared.ErrDeviceUnavailable)
	}

	rate, err := p.device.Open(p.frameSize, p.process)
	if err != nil {
		microphone.release()
		if !errors.Is(err, shared.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", shared.ErrDeviceUnavailable, err)
		}
		return err
	}

	p.mu.Lock()
	p.started = true
	p.sampleRate = rate
	p.mu.Unlock()

	p.logger.Info("capture started", "device_rate", rate, "frame_size", p.frameSize)
	return nil
}

// Stop releases the microphone and resets mute and metering state.
func (p *Pipeline) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.muted = false
	p.volume = 0
	p.mu.Unlock()

	if err := p.device.Close(); err != nil {
		p.logger.Warn("failed to close capture device", "error", err)
	}
	microphone.release()
	p.logger.Info("capture stopped")
}

func (p *Pipeline) Mute() {
	p.mu.Lock()
	p.muted = true
	p.mu.Unlock()
}

func (p *Pipeline) Unmute() {
	p.mu.Lock()
	p.muted = false
	p.mu.Unlock()
}

func (p *Pipeline) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// InputVolume is the RMS level of the most recent frame, kept current
// while muted.
func (p *Pipeline) InputVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Pipeline) process(frame []float32) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.volume = audio.Volume(frame)
	muted := p.muted
	rate := p.sampleRate
	p.mu.Unlock()

	if muted || p.sink == nil {
		return
	}

	chunk := audio.EncodePCM16(audio.Decimate(frame, rate, audio.TargetSampleRate))
	if len(chunk) == 0 {
		return
	}
	p.sink(chunk)
}
