package bootstrap

import (
	"github.com/eleven-am/voice-client/internal/capture"
	"github.com/eleven-am/voice-client/internal/metrics"
	"github.com/eleven-am/voice-client/internal/playback"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
)

func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func ProvideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func ProvideCaptureDevice() capture.Device {
	return capture.NewPortAudioDevice()
}

func ProvidePlaybackOpener(cfg *Config) playback.Opener {
	return playback.NewPortAudioOpener(cfg.PlaybackSampleRate)
}

var InfrastructureModule = fx.Options(
	fx.Provide(
		ProvideRegistry,
		ProvideMetrics,
		ProvideCaptureDevice,
		ProvidePlaybackOpener,
	),
)
