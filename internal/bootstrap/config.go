package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/eleven-am/voice-client/internal/audio"
	"github.com/eleven-am/voice-client/internal/capture"
	"github.com/eleven-am/voice-client/internal/transport"
	"github.com/joho/godotenv"
)

type Config struct {
	Endpoint  string
	SessionID string
	Token     string

	ReconnectDelays      []time.Duration
	MaxReconnectAttempts int

	CaptureFrameSize   int
	PlaybackSampleRate int

	ControlAddr  string
	LogLevel     string
	PollInterval time.Duration
}

func LoadConfig() *Config {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	return &Config{
		Endpoint:  getEnv("VOICE_ENDPOINT", ""),
		SessionID: getEnv("VOICE_SESSION_ID", ""),
		Token:     getEnv("VOICE_TOKEN", ""),

		ReconnectDelays:      parseDurations(getEnv("VOICE_RECONNECT_DELAYS", ""), transport.DefaultReconnectDelays),
		MaxReconnectAttempts: getEnvInt("VOICE_MAX_RECONNECTS", transport.DefaultMaxReconnectAttempts),

		CaptureFrameSize:   getEnvInt("CAPTURE_FRAME_SIZE", capture.DefaultFrameSize),
		PlaybackSampleRate: getEnvInt("PLAYBACK_SAMPLE_RATE", audio.DefaultPlaybackRate),

		ControlAddr:  getEnv("CONTROL_ADDR", "127.0.0.1:8089"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		PollInterval: getEnvDuration("POLL_INTERVAL", 100*time.Millisecond),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func parseDurations(envValue string, defaults []time.Duration) []time.Duration {
	if envValue == "" {
		return defaults
	}

	var delays []time.Duration
	for _, part := range strings.Split(envValue, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil || d <= 0 {
			return defaults
		}
		delays = append(delays, d)
	}

	if len(delays) == 0 {
		return defaults
	}
	return delays
}
