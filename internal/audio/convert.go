package audio

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	TargetSampleRate    = 16000
	DefaultPlaybackRate = 24000
)

// Decimate converts input from fromRate to toRate by averaging each output
// sample's proportional window [round(i*R), round((i+1)*R)) where R is
// fromRate/toRate. No low-pass filter is applied.
func Decimate(input []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return input
	}

	ratio := float64(fromRate) / float64(toRate)
	outputLen := int(math.Round(float64(len(input)) / ratio))
	output := make([]float32, outputLen)

	decimateCore(output, input, ratio)
	return output
}

func decimateCore(output, input []float32, ratio float64) {
	if len(input) == 0 {
		return
	}
	for i := range output {
		start := int(math.Round(float64(i) * ratio))
		end := int(math.Round(float64(i+1) * ratio))
		if end > len(input) {
			end = len(input)
		}
		if start >= len(input) {
			start = len(input) - 1
		}
		if end <= start {
			output[i] = input[start]
			continue
		}

		var sum float64
		for _, s := range input[start:end] {
			sum += float64(s)
		}
		output[i] = float32(sum / float64(end-start))
	}
}

// Resample converts between rates by linear interpolation.
func Resample(input []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return input
	}

	ratio := float64(toRate) / float64(fromRate)
	outputLen := int(math.Ceil(float64(len(input)) * ratio))
	output := make([]float32, outputLen)

	resampleCore(output, input, ratio)
	return output
}

func resampleCore(output, input []float32, ratio float64) {
	for i := 0; i < len(output); i++ {
		srcPos := float64(i) / ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		if srcIdx+1 < len(input) {
			output[i] = input[srcIdx]*(1-frac) + input[srcIdx+1]*frac
		} else if srcIdx < len(input) {
			output[i] = input[srcIdx]
		}
	}
}

func PCMBytesToInt16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

func Int16ToPCMBytes(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

// Int16ToFloat32 normalizes negatives by 32768 and non-negatives by 32767 so
// both extremes map to exactly -1 and 1.
func Int16ToFloat32(samples []int16) []float32 {
	result := make([]float32, len(samples))
	for i, s := range samples {
		if s < 0 {
			result[i] = float32(s) / 32768.0
		} else {
			result[i] = float32(s) / 32767.0
		}
	}
	return result
}

func Float32ToInt16(samples []float32) []int16 {
	result := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s)
		if v > 1.0 {
			v = 1.0
		} else if v < -1.0 {
			v = -1.0
		}
		if v < 0 {
			result[i] = int16(math.Round(v * 32768.0))
		} else {
			result[i] = int16(math.Round(v * 32767.0))
		}
	}
	return result
}

// EncodePCM16 packs float samples as little-endian signed 16-bit PCM.
func EncodePCM16(samples []float32) []byte {
	return Int16ToPCMBytes(Float32ToInt16(samples))
}

// DecodePCM16 unpacks little-endian signed 16-bit PCM. A trailing odd byte is ignored.
func DecodePCM16(pcm []byte) []float32 {
	return Int16ToFloat32(PCMBytesToInt16(pcm))
}

// Volume is the root-mean-square of samples, capped at 1.
func Volume(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms > 1 {
		return 1
	}
	return rms
}

// Duration returns how long n samples last at sampleRate.
func Duration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}
