package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors of one voice session. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	AudioChunksSent    prometheus.Counter
	AudioChunksDropped *prometheus.CounterVec
	MessagesReceived   *prometheus.CounterVec
	ProtocolErrors     prometheus.Counter
	ReconnectAttempts  prometheus.Counter
	Connections        prometheus.Counter
	Connected          prometheus.Gauge

	PlaybackBuffers  prometheus.Counter
	PlaybackDropped  prometheus.Counter
	PlaybackDuration prometheus.Counter

	InputLevel    prometheus.Gauge
	OutputLevel   prometheus.Gauge
	AgentSpeaking prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AudioChunksSent: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_audio_chunks_sent_total",
			Help: "Total number of microphone chunks queued on the socket",
		}),
		AudioChunksDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_audio_chunks_dropped_total",
			Help: "Total number of microphone chunks dropped before transmission",
		}, []string{"reason"}),
		MessagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_messages_received_total",
			Help: "Total number of inbound messages by type",
		}, []string{"type"}),
		ProtocolErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_protocol_errors_total",
			Help: "Total number of inbound frames that could not be decoded",
		}),
		ReconnectAttempts: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_reconnect_attempts_total",
			Help: "Total number of automatic reconnect attempts scheduled",
		}),
		Connections: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_connections_total",
			Help: "Total number of successfully opened sockets",
		}),
		Connected: f.NewGauge(prometheus.GaugeOpts{
			Name: "voice_connected",
			Help: "1 while the socket is open",
		}),
		PlaybackBuffers: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_playback_buffers_total",
			Help: "Total number of decoded buffers scheduled for playback",
		}),
		PlaybackDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_playback_dropped_total",
			Help: "Total number of inbound chunks dropped by the playback scheduler",
		}),
		PlaybackDuration: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_playback_scheduled_seconds_total",
			Help: "Total seconds of audio scheduled for playback",
		}),
		InputLevel: f.NewGauge(prometheus.GaugeOpts{
			Name: "voice_input_level",
			Help: "RMS level of the most recent microphone frame",
		}),
		OutputLevel: f.NewGauge(prometheus.GaugeOpts{
			Name: "voice_output_level",
			Help: "RMS level of the most recently scheduled playback buffer",
		}),
		AgentSpeaking: f.NewGauge(prometheus.GaugeOpts{
			Name: "voice_agent_speaking",
			Help: "1 while scheduled agent audio remains to be played",
		}),
	}
}

func (m *Metrics) AudioSent() {
	if m == nil {
		return
	}
	m.AudioChunksSent.Inc()
}

func (m *Metrics) AudioDropped(reason string) {
	if m == nil {
		return
	}
	m.AudioChunksDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) MessageReceived(kind string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) ProtocolError() {
	if m == nil {
		return
	}
	m.ProtocolErrors.Inc()
}

func (m *Metrics) ReconnectScheduled() {
	if m == nil {
		return
	}
	m.ReconnectAttempts.Inc()
}

func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.Connections.Inc()
		m.Connected.Set(1)
		return
	}
	m.Connected.Set(0)
}

func (m *Metrics) BufferScheduled(d time.Duration) {
	if m == nil {
		return
	}
	m.PlaybackBuffers.Inc()
	m.PlaybackDuration.Add(d.Seconds())
}

func (m *Metrics) BufferDropped() {
	if m == nil {
		return
	}
	m.PlaybackDropped.Inc()
}

func (m *Metrics) ObserveLevels(input, output float64, speaking bool) {
	if m == nil {
		return
	}
	m.InputLevel.Set(input)
	m.OutputLevel.Set(output)
	if speaking {
		m.AgentSpeaking.Set(1)
	} else {
		m.AgentSpeaking.Set(0)
	}
}
