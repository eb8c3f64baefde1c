package playback

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/eleven-am/voice-client/internal/audio"
	"github.com/eleven-am/voice-client/internal/metrics"
	"github.com/eleven-am/voice-client/internal/shared"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type scheduledBuffer struct {
	at       time.Duration
	samples  int
	rate     int
	duration time.Duration
}

type fakeOutput struct {
	mu       sync.Mutex
	now      time.Duration
	buffers  []scheduledBuffer
	closed   bool
	schedErr error
}

func (o *fakeOutput) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) Schedule(samples []float32, sampleRate int, at time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.schedErr != nil {
		return o.schedErr
	}
	o.buffers = append(o.buffers, scheduledBuffer{
		at:       at,
		samples:  len(samples),
		rate:     sampleRate,
		duration: audio.Duration(len(samples), sampleRate),
	})
	return nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return nil
}

func (o *fakeOutput) advance(d time.Duration) {
	o.mu.Lock()
	o.now += d
	o.mu.Unlock()
}

type fakeOpener struct {
	outputs []*fakeOutput
	err     error
}

func (f *fakeOpener) open() (Output, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := &fakeOutput{}
	f.outputs = append(f.outputs, out)
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pcmChunk returns n samples of PCM16 at the given amplitude.
func pcmChunk(n int, amplitude float32) []byte {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = amplitude
	}
	return audio.EncodePCM16(samples)
}

func TestScheduler_SingleChunk(t *testing.T) {
	opener := &fakeOpener{}
	s := NewScheduler(opener.open, testLogger(), nil)

	if s.IsPlaying() {
		t.Fatal("expected not playing before any audio")
	}

	if err := s.PlayAudio(pcmChunk(2400, 0.5), "audio/pcm;rate=24000"); err != nil {
		t.Fatalf("play: %v", err)
	}

	out := opener.outputs[0]
	if len(out.buffers) != 1 {
		t.Fatalf("expected 1 buffer, got %d", len(out.buffers))
	}
	if out.buffers[0].at != 0 {
		t.Errorf("expected start at 0, got %v", out.buffers[0].at)
	}
	if out.buffers[0].duration != 100*time.Millisecond {
		t.Errorf("expected 100ms buffer, got %v", out.buffers[0].duration)
	}
	if !s.IsPlaying() {
		t.Error("expected playing after scheduling")
	}

	out.advance(99 * time.Millisecond)
	if !s.IsPlaying() {
		t.Error("expected still playing before buffer ends")
	}

	out.advance(time.Millisecond)
	if s.IsPlaying() {
		t.Error("expected not playing once the clock reaches the end")
	}
}

func TestScheduler_BackToBack(t *testing.T) {
	opener := &fakeOpener{}
	s := NewScheduler(opener.open, testLogger(), nil)

	for i := 0; i < 2; i++ {
		if err := s.PlayAudio(pcmChunk(2400, 0.2), ""); err != nil {
			t.Fatalf("play %d: %v", i, err)
		}
	}

	bufs := opener.outputs[0].buffers
	if bufs[1].at != bufs[0].at+bufs[0].duration {
		t.Errorf("expected second buffer at %v, got %v", bufs[0].at+bufs[0].duration, bufs[1].at)
	}
}

func TestScheduler_BurstIsGapless(t *testing.T) {
	opener := &fakeOpener{}
	s := NewScheduler(opener.open, testLogger(), nil)

	for i := 0; i < 10; i++ {
		if err := s.PlayAudio(pcmChunk(2400, 0.1), "audio/pcm;rate=24000"); err != nil {
			t.Fatalf("play %d: %v", i, err)
		}
	}

	out := opener.outputs[0]
	if len(out.buffers) != 10 {
		t.Fatalf("expected 10 buffers, got %d", len(out.buffers))
	}
	for i := 1; i < len(out.buffers); i++ {
		prev := out.buffers[i-1]
		if out.buffers[i].at != prev.at+prev.duration {
			t.Errorf("buffer %d starts at %v, expected %v", i, out.buffers[i].at, prev.at+prev.duration)
		}
	}
	if last := out.buffers[9]; last.at != 900*time.Millisecond {
		t.Errorf("expected last buffer at 900ms, got %v", last.at)
	}
}

func TestScheduler_AfterIdleStartsAtClock(t *testing.T) {
	opener := &fakeOpener{}
	s := NewScheduler(opener.open, testLogger(), nil)

	if err := s.PlayAudio(pcmChunk(2400, 0.1), ""); err != nil {
		t.Fatalf("play: %v", err)
	}
	out := opener.outputs[0]
	out.advance(5 * time.Second)

	if err := s.PlayAudio(pcmChunk(2400, 0.1), ""); err != nil {
		t.Fatalf("play: %v", err)
	}
	if out.buffers[1].at != 5*time.Second {
		t.Errorf("expected buffer at current clock 5s, got %v", out.buffers[1].at)
	}
}

func TestScheduler_RateFromMIME(t *testing.T) {
	opener := &fakeOpener{}
	s := NewScheduler(opener.open, testLogger(), nil)

	if err := s.PlayAudio(pcmChunk(1600, 0.1), "audio/pcm;rate=16000"); err != nil {
		t.Fatalf("play: %v", err)
	}
	buf := opener.outputs[0].buffers[0]
	if buf.rate != 16000 {
		t.Errorf("expected 16000Hz, got %d", buf.rate)
	}
	if buf.duration != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %v", buf.duration)
	}
}

func TestScheduler_OutputUnavailableDropsChunk(t *testing.T) {
	opener := &fakeOpener{err: errors.New("no device")}
	m := metrics.New(prometheus.NewRegistry())
	s := NewScheduler(opener.open, testLogger(), m)

	err := s.PlayAudio(pcmChunk(2400, 0.1), "")
	if !errors.Is(err, shared.ErrPlaybackUnavailable) {
		t.Fatalf("expected ErrPlaybackUnavailable, got %v", err)
	}
	if s.IsPlaying() {
		t.Error("expected not playing")
	}
	if got := testutil.ToFloat64(m.PlaybackDropped); got != 1 {
		t.Errorf("expected 1 dropped buffer, got %f", got)
	}

	opener.err = nil
	if err := s.PlayAudio(pcmChunk(2400, 0.1), ""); err != nil {
		t.Fatalf("expected recovery once the device is available, got %v", err)
	}
	if len(opener.outputs) != 1 {
		t.Errorf("expected output opened on retry, got %d", len(opener.outputs))
	}
}

func TestScheduler_EmptyChunk(t *testing.T) {
	opener := &fakeOpener{}
	s := NewScheduler(opener.open, testLogger(), nil)

	if err := s.PlayAudio(nil, ""); err != nil {
		t.Fatalf("play: %v", err)
	}
	if n := len(opener.outputs[0].buffers); n != 0 {
		t.Errorf("expected nothing scheduled, got %d", n)
	}
	if s.IsPlaying() {
		t.Error("expected not playing")
	}
}

func TestScheduler_StopClosesAndResets(t *testing.T) {
	opener := &fakeOpener{}
	s := NewScheduler(opener.open, testLogger(), nil)

	for i := 0; i < 3; i++ {
		_ = s.PlayAudio(pcmChunk(2400, 0.3), "")
	}
	s.Stop()

	if !opener.outputs[0].closed {
		t.Error("expected output closed")
	}
	if s.IsPlaying() {
		t.Error("expected not playing after stop")
	}
	if s.OutputVolume() != 0 {
		t.Errorf("expected volume reset, got %f", s.OutputVolume())
	}

	s.Stop()

	if err := s.PlayAudio(pcmChunk(2400, 0.3), ""); err != nil {
		t.Fatalf("play after stop: %v", err)
	}
	if len(opener.outputs) != 2 {
		t.Fatalf("expected a fresh output, got %d", len(opener.outputs))
	}
	if at := opener.outputs[1].buffers[0].at; at != 0 {
		t.Errorf("expected cursor reset, got %v", at)
	}
}

func TestScheduler_OutputVolume(t *testing.T) {
	opener := &fakeOpener{}
	s := NewScheduler(opener.open, testLogger(), nil)

	_ = s.PlayAudio(pcmChunk(240, 0.5), "")
	if v := s.OutputVolume(); v < 0.49 || v > 0.51 {
		t.Errorf("expected ~0.5, got %f", v)
	}
}

func TestScheduler_UnsupportedOpusRate(t *testing.T) {
	opener := &fakeOpener{}
	s := NewScheduler(opener.open, testLogger(), nil)

	err := s.PlayAudio([]byte{0x01}, "audio/opus;rate=44100")
	var protoErr *shared.ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

func TestScheduler_ScheduleErrorLeavesCursor(t *testing.T) {
	opener := &fakeOpener{}
	s := NewScheduler(opener.open, testLogger(), nil)

	_ = s.PlayAudio(pcmChunk(2400, 0.1), "")
	out := opener.outputs[0]
	out.schedErr = errors.New("device gone")

	if err := s.PlayAudio(pcmChunk(2400, 0.1), ""); err == nil {
		t.Fatal("expected schedule error")
	}

	out.schedErr = nil
	_ = s.PlayAudio(pcmChunk(2400, 0.1), "")
	if at := out.buffers[1].at; at != 100*time.Millisecond {
		t.Errorf("expected cursor unchanged by failed schedule, got %v", at)
	}
}
