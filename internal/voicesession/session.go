package voicesession

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/eleven-am/voice-client/internal/capture"
	"github.com/eleven-am/voice-client/internal/metrics"
	"github.com/eleven-am/voice-client/internal/playback"
	"github.com/eleven-am/voice-client/internal/shared"
	"github.com/eleven-am/voice-client/internal/transport"
)

type Config struct {
	Transport        transport.Config
	CaptureDevice    capture.Device
	CaptureFrameSize int
	PlaybackOpener   playback.Opener
	Listener         Listener
	Metrics          *metrics.Metrics
}

// Snapshot is the polled view of a session.
type Snapshot struct {
	SessionID         string           `json:"session_id"`
	Status            transport.Status `json:"status"`
	Error             string           `json:"error,omitempty"`
	Muted             bool             `json:"muted"`
	InputVolume       float64          `json:"input_volume"`
	OutputVolume      float64          `json:"output_volume"`
	AgentSpeaking     bool             `json:"agent_speaking"`
	ReconnectAttempts int              `json:"reconnect_attempts"`
}

// Session wires microphone capture into the transport and inbound audio
// into playback.
type Session struct {
	id        string
	transport *transport.Session
	capture   *capture.Pipeline
	playback  *playback.Scheduler
	listener  Listener
	log       *slog.Logger

	// lifecycle orders capture start/stop and mute changes against EndSession.
	lifecycle sync.Mutex
	ended     bool

	mu    sync.Mutex
	muted bool
}

func New(cfg Config, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("session_id", cfg.Transport.SessionID)

	listener := cfg.Listener
	if listener == nil {
		listener = NopListener{}
	}
	if cfg.Transport.Metrics == nil {
		cfg.Transport.Metrics = cfg.Metrics
	}

	s := &Session{
		id:       cfg.Transport.SessionID,
		listener: listener,
		log:      log,
	}

	tr, err := transport.New(cfg.Transport, s, log)
	if err != nil {
		return nil, err
	}
	s.transport = tr
	s.capture = capture.New(cfg.CaptureDevice, tr.SendAudio, cfg.CaptureFrameSize, log)
	s.playback = playback.NewScheduler(cfg.PlaybackOpener, log, cfg.Metrics)

	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

// Start connects the transport. Capture begins once the socket is open.
func (s *Session) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	s.ended = false
	s.lifecycle.Unlock()

	s.listener.OnStatus(transport.StatusConnecting)
	return s.transport.Connect(ctx)
}

// ToggleMute flips the microphone mute state and returns the new value.
func (s *Session) ToggleMute() bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	s.muted = !s.muted
	muted := s.muted
	s.mu.Unlock()

	s.applyMute(muted)
	s.log.Info("microphone mute toggled", "muted", muted)
	return muted
}

func (s *Session) applyMute(muted bool) {
	if muted {
		s.capture.Mute()
	} else {
		s.capture.Unmute()
	}
}

func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// EndSession tears down transport, capture and playback. Safe to repeat.
func (s *Session) EndSession() {
	s.lifecycle.Lock()
	s.ended = true
	s.lifecycle.Unlock()

	s.transport.Disconnect()
	s.capture.Stop()
	s.playback.Stop()
}

func (s *Session) Status() transport.Status {
	return s.transport.Status()
}

func (s *Session) Err() error {
	return s.transport.Err()
}

func (s *Session) InputVolume() float64 {
	return s.capture.InputVolume()
}

func (s *Session) OutputVolume() float64 {
	return s.playback.OutputVolume()
}

func (s *Session) AgentSpeaking() bool {
	return s.playback.IsPlaying()
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		SessionID:         s.id,
		Status:            s.transport.Status(),
		Muted:             s.Muted(),
		InputVolume:       s.capture.InputVolume(),
		OutputVolume:      s.playback.OutputVolume(),
		AgentSpeaking:     s.playback.IsPlaying(),
		ReconnectAttempts: s.transport.Attempts(),
	}
	if err := s.transport.Err(); err != nil {
		snap.Error = err.Error()
	}
	return snap
}

func (s *Session) OnConnected() {
	s.lifecycle.Lock()
	if s.ended {
		s.lifecycle.Unlock()
		return
	}
	// Mute must be in place before the device delivers its first frame.
	s.applyMute(s.Muted())
	err := s.capture.Start()
	s.lifecycle.Unlock()

	if err != nil {
		s.log.Error("failed to start microphone capture", "error", err)
		s.listener.OnError(err)
	}
	s.listener.OnStatus(transport.StatusConnected)
}

func (s *Session) OnDisconnected() {
	s.lifecycle.Lock()
	s.capture.Stop()
	s.lifecycle.Unlock()
	s.listener.OnStatus(transport.StatusDisconnected)
}

func (s *Session) OnAudio(data []byte, mimeType string) {
	if err := s.playback.PlayAudio(data, mimeType); err != nil {
		var protoErr *shared.ProtocolError
		if errors.As(err, &protoErr) {
			s.log.Debug("dropping undecodable audio", "error", err)
			return
		}
		s.log.Warn("failed to play audio chunk", "error", err)
	}
}

func (s *Session) OnTranscript(role transport.Role, text string) {
	s.listener.OnTranscript(role, text)
}

func (s *Session) OnMetadata(raw json.RawMessage) {
	s.listener.OnMetadata(raw)
}

func (s *Session) OnError(err error) {
	s.listener.OnError(err)
}
