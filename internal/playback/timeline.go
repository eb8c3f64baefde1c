package playback

import (
	"math"
	"sync"
	"time"

	"github.com/eleven-am/voice-client/internal/audio"
)

type segment struct {
	start   int64
	samples []float32
}

// timeline mixes scheduled segments into a device callback. Its clock is
// the number of frames rendered so far.
type timeline struct {
	rate int

	mu       sync.Mutex
	position int64
	segments []segment
}

func newTimeline(rate int) *timeline {
	return &timeline{rate: rate}
}

func (t *timeline) now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Duration(t.position) * time.Second / time.Duration(t.rate)
}

func (t *timeline) frameAt(at time.Duration) int64 {
	return int64(math.Round(at.Seconds() * float64(t.rate)))
}

// schedule places samples on the device frames covering [at, at+duration).
// Segments scheduled back to back share a boundary frame index, so the
// resampled data is trimmed or padded to fit exactly.
func (t *timeline) schedule(samples []float32, sampleRate int, at time.Duration) {
	start := t.frameAt(at)
	end := t.frameAt(at + audio.Duration(len(samples), sampleRate))

	resampled := audio.Resample(samples, sampleRate, t.rate)
	if n := int(end - start); len(resampled) > n {
		resampled = resampled[:n]
	} else if len(resampled) > 0 {
		last := resampled[len(resampled)-1]
		for len(resampled) < n {
			resampled = append(resampled, last)
		}
	}

	t.mu.Lock()
	t.segments = append(t.segments, segment{start: start, samples: resampled})
	t.mu.Unlock()
}

func (t *timeline) render(out []float32) {
	for i := range out {
		out[i] = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	from := t.position
	to := from + int64(len(out))

	kept := t.segments[:0]
	for _, seg := range t.segments {
		end := seg.start + int64(len(seg.samples))
		if end <= from {
			continue
		}
		lo := max(seg.start, from)
		hi := min(end, to)
		for f := lo; f < hi; f++ {
			out[f-from] += seg.samples[f-seg.start]
		}
		kept = append(kept, seg)
	}
	t.segments = kept
	t.position = to

	for i, v := range out {
		if v > 1 {
			out[i] = 1
		} else if v < -1 {
			out[i] = -1
		}
	}
}

func (t *timeline) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.segments)
}
