package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eleven-am/voice-client/internal/audio"
	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 512

// PortAudioOutput renders a timeline to the default output device.
type PortAudioOutput struct {
	stream    *portaudio.Stream
	timeline  *timeline
	closeOnce sync.Once
	closeErr  error
}

func OpenPortAudio(sampleRate int) (*PortAudioOutput, error) {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultPlaybackRate
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	tl := newTimeline(sampleRate)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), framesPerBuffer, func(out []float32) {
		tl.render(out)
	})
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("open output stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("start output stream: %w", err)
	}

	return &PortAudioOutput{stream: stream, timeline: tl}, nil
}

// NewPortAudioOpener defers opening the device until audio arrives.
func NewPortAudioOpener(sampleRate int) Opener {
	return func() (Output, error) {
		out, err := OpenPortAudio(sampleRate)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

func (o *PortAudioOutput) Now() time.Duration {
	return o.timeline.now()
}

func (o *PortAudioOutput) Schedule(samples []float32, sampleRate int, at time.Duration) error {
	o.timeline.schedule(samples, sampleRate, at)
	return nil
}

func (o *PortAudioOutput) Close() error {
	o.closeOnce.Do(func() {
		var errs []error
		if err := o.stream.Stop(); err != nil {
			errs = append(errs, err)
		}
		if err := o.stream.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := portaudio.Terminate(); err != nil {
			errs = append(errs, err)
		}
		o.closeErr = errors.Join(errs...)
	})
	return o.closeErr
}
