package bootstrap

import (
	"log/slog"
	"os"
	"strings"

	"github.com/eleven-am/voice-client/internal/control"
	"github.com/eleven-am/voice-client/internal/voicesession"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

const version = "1.0.0"

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
}

func ProvideControlHandler(session *voicesession.Session, registry *prometheus.Registry, logger *slog.Logger) *control.Handler {
	return control.NewHandler(session, registry, logger, version)
}

func RegisterRoutes(e *echo.Echo, h *control.Handler) {
	e.Use(h.CountRequests)
	h.RegisterRoutes(e)
}

var HandlersModule = fx.Options(
	fx.Provide(
		ProvideLogger,
		ProvideControlHandler,
	),
	fx.Invoke(RegisterRoutes),
)
