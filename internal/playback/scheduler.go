package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/voice-client/internal/audio"
	"github.com/eleven-am/voice-client/internal/metrics"
	"github.com/eleven-am/voice-client/internal/shared"
)

// Output is an audio sink with its own monotonic clock. Schedule queues
// samples to start at the given position on that clock.
type Output interface {
	Now() time.Duration
	Schedule(samples []float32, sampleRate int, at time.Duration) error
	Close() error
}

type Opener func() (Output, error)

// Scheduler decodes inbound chunks and lays them end to end on the
// output clock. The output is opened on the first chunk.
type Scheduler struct {
	open    Opener
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	out       Output
	nextStart time.Duration
	volume    float64
	opus      map[int]*audio.OpusDecoder
}

func NewScheduler(open Opener, logger *slog.Logger, m *metrics.Metrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		open:    open,
		logger:  logger.With("component", "playback"),
		metrics: m,
		opus:    make(map[int]*audio.OpusDecoder),
	}
}

func (s *Scheduler) PlayAudio(data []byte, mimeType string) error {
	format := audio.ParseMIME(mimeType)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.out == nil {
		if s.open == nil {
			s.metrics.BufferDropped()
			return shared.ErrPlaybackUnavailable
		}
		out, err := s.open()
		if err != nil {
			s.metrics.BufferDropped()
			s.logger.Warn("dropping audio chunk, output unavailable", "error", err)
			return fmt.Errorf("%w: %w", shared.ErrPlaybackUnavailable, err)
		}
		s.out = out
		s.nextStart = 0
	}

	samples, err := s.decodeLocked(data, format)
	if err != nil {
		s.metrics.BufferDropped()
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	s.volume = audio.Volume(samples)

	start := s.out.Now()
	if s.nextStart > start {
		start = s.nextStart
	}
	if err := s.out.Schedule(samples, format.SampleRate, start); err != nil {
		s.metrics.BufferDropped()
		return fmt.Errorf("schedule buffer: %w", err)
	}

	d := audio.Duration(len(samples), format.SampleRate)
	s.nextStart = start + d
	s.metrics.BufferScheduled(d)
	return nil
}

func (s *Scheduler) decodeLocked(data []byte, format audio.Format) ([]float32, error) {
	if format.Encoding != audio.EncodingOpus {
		return audio.DecodePCM16(data), nil
	}

	dec, ok := s.opus[format.SampleRate]
	if !ok {
		var err error
		dec, err = audio.NewOpusDecoder(format.SampleRate)
		if err != nil {
			return nil, &shared.ProtocolError{Reason: "unsupported opus stream " + format.String(), Err: err}
		}
		s.opus[format.SampleRate] = dec
	}

	samples, err := dec.Decode(data)
	if err != nil {
		return nil, &shared.ProtocolError{Reason: "undecodable opus packet", Err: err}
	}
	return samples, nil
}

// IsPlaying reports whether scheduled audio remains ahead of the output clock.
func (s *Scheduler) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out != nil && s.nextStart > s.out.Now()
}

// OutputVolume is the RMS level of the most recently scheduled buffer.
func (s *Scheduler) OutputVolume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// Stop releases the output and forgets the cursor. The next PlayAudio
// opens a fresh output.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	out := s.out
	s.out = nil
	s.nextStart = 0
	s.volume = 0
	s.mu.Unlock()

	if out == nil {
		return
	}
	if err := out.Close(); err != nil {
		s.logger.Warn("failed to close audio output", "error", err)
	}
}
