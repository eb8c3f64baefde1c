package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/eleven-am/voice-client/internal/capture"
	"github.com/eleven-am/voice-client/internal/metrics"
	"github.com/eleven-am/voice-client/internal/playback"
	"github.com/eleven-am/voice-client/internal/transport"
	"github.com/eleven-am/voice-client/internal/voicesession"
	"go.uber.org/fx"
)

// logListener writes session events to the structured log.
type logListener struct {
	logger *slog.Logger
}

func (l *logListener) OnStatus(status transport.Status) {
	l.logger.Info("session status", "status", status)
}

func (l *logListener) OnTranscript(role transport.Role, text string) {
	l.logger.Info("transcript", "role", role, "text", text)
}

func (l *logListener) OnMetadata(raw json.RawMessage) {
	l.logger.Debug("metadata", "metadata", string(raw))
}

func (l *logListener) OnError(err error) {
	l.logger.Error("session error", "error", err)
}

func ProvideListener(logger *slog.Logger) voicesession.Listener {
	return &logListener{logger: logger.With("component", "listener")}
}

func ProvideTransportConfig(cfg *Config, m *metrics.Metrics) (transport.Config, error) {
	if cfg.Endpoint == "" {
		return transport.Config{}, errors.New("VOICE_ENDPOINT is required")
	}
	return transport.Config{
		Endpoint:             cfg.Endpoint,
		SessionID:            cfg.SessionID,
		Token:                cfg.Token,
		ReconnectDelays:      cfg.ReconnectDelays,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		Metrics:              m,
	}, nil
}

type SessionParams struct {
	fx.In

	Config    *Config
	Transport transport.Config
	Device    capture.Device
	Opener    playback.Opener
	Listener  voicesession.Listener
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

func ProvideVoiceSession(p SessionParams) (*voicesession.Session, error) {
	return voicesession.New(voicesession.Config{
		Transport:        p.Transport,
		CaptureDevice:    p.Device,
		CaptureFrameSize: p.Config.CaptureFrameSize,
		PlaybackOpener:   p.Opener,
		Listener:         p.Listener,
		Metrics:          p.Metrics,
	}, p.Logger)
}

func StartVoiceSession(lc fx.Lifecycle, session *voicesession.Session, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := session.Start(context.Background()); err != nil {
					logger.Warn("initial connection failed, retrying in background", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			session.EndSession()
			return nil
		},
	})
}

// StartLevelPoller mirrors the session's meters into prometheus gauges at
// the configured poll interval.
func StartLevelPoller(lc fx.Lifecycle, session *voicesession.Session, m *metrics.Metrics, cfg *Config) {
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go pollLevels(session, m, cfg.PollInterval, done)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(done)
			return nil
		},
	})
}

func pollLevels(session *voicesession.Session, m *metrics.Metrics, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			snap := session.Snapshot()
			m.ObserveLevels(snap.InputVolume, snap.OutputVolume, snap.AgentSpeaking)
		}
	}
}

var VoiceModule = fx.Options(
	fx.Provide(
		ProvideListener,
		ProvideTransportConfig,
		ProvideVoiceSession,
	),
	fx.Invoke(StartVoiceSession, StartLevelPoller),
)
