package audio

import (
	"mime"
	"strconv"
	"strings"
)

type Encoding string

const (
	EncodingPCM16 Encoding = "pcm16"
	EncodingOpus  Encoding = "opus"
)

const opusSampleRate = 48000

type Format struct {
	Encoding   Encoding
	SampleRate int
}

// ParseMIME reads strings of the form "audio/pcm;rate=24000". Anything it
// cannot understand is treated as PCM16 at DefaultPlaybackRate.
func ParseMIME(mimeType string) Format {
	f := Format{Encoding: EncodingPCM16, SampleRate: DefaultPlaybackRate}

	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return f
	}

	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType, params = parseLoose(mimeType)
	}

	switch mediaType {
	case "audio/opus", "audio/ogg":
		f.Encoding = EncodingOpus
		f.SampleRate = opusSampleRate
	}

	if rate, err := strconv.Atoi(strings.TrimSpace(params["rate"])); err == nil && rate > 0 {
		f.SampleRate = rate
	}
	return f
}

func parseLoose(mimeType string) (string, map[string]string) {
	parts := strings.Split(mimeType, ";")
	params := make(map[string]string)
	for _, p := range parts[1:] {
		key, value, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		params[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return strings.ToLower(strings.TrimSpace(parts[0])), params
}

func (f Format) String() string {
	switch f.Encoding {
	case EncodingOpus:
		return "audio/opus;rate=" + strconv.Itoa(f.SampleRate)
	default:
		return "audio/pcm;rate=" + strconv.Itoa(f.SampleRate)
	}
}
