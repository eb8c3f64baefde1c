package audio

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// 120ms at 48kHz, the longest frame an Opus packet may carry.
const maxOpusFrameSamples = 5760

type OpusDecoder struct {
	decoder    *opus.Decoder
	sampleRate int
}

func NewOpusDecoder(sampleRate int) (*OpusDecoder, error) {
	switch sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return nil, fmt.Errorf("opus: unsupported sample rate %d", sampleRate)
	}

	dec, err := opus.NewDecoder(sampleRate, 1)
	if err != nil {
		return nil, err
	}

	return &OpusDecoder{
		decoder:    dec,
		sampleRate: sampleRate,
	}, nil
}

func (d *OpusDecoder) Decode(packet []byte) ([]float32, error) {
	pcm := make([]float32, maxOpusFrameSamples)
	n, err := d.decoder.DecodeFloat32(packet, pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	return pcm[:n], nil
}

func (d *OpusDecoder) SampleRate() int {
	return d.sampleRate
}
