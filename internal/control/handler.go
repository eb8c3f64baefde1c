package control

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/eleven-am/voice-client/internal/shared"
	"github.com/eleven-am/voice-client/internal/transport"
	"github.com/eleven-am/voice-client/internal/voicesession"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionController is the part of a voice session the control API drives.
type SessionController interface {
	Snapshot() voicesession.Snapshot
	ToggleMute() bool
	EndSession()
}

type LivenessResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	TotalRequests uint64 `json:"total_requests"`
}

type MuteResponse struct {
	Muted bool `json:"muted"`
}

type Handler struct {
	session   SessionController
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	version   string
	startTime time.Time

	totalRequests uint64
}

func NewHandler(session SessionController, gatherer prometheus.Gatherer, logger *slog.Logger, version string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		session:   session,
		gatherer:  gatherer,
		logger:    logger.With("handler", "control"),
		version:   version,
		startTime: time.Now(),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Liveness)
	if h.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	g := e.Group("/v1/session")
	g.GET("", h.Get)
	g.POST("/mute", h.ToggleMute)
	g.POST("/end", h.End)
}

// CountRequests is middleware feeding the liveness request counter.
func (h *Handler) CountRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		atomic.AddUint64(&h.totalRequests, 1)
		return next(c)
	}
}

func (h *Handler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, LivenessResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		TotalRequests: atomic.LoadUint64(&h.totalRequests),
	})
}

func (h *Handler) Get(c echo.Context) error {
	if h.session == nil {
		return shared.ServiceUnavailable("no_session", "no voice session is configured")
	}
	return c.JSON(http.StatusOK, h.session.Snapshot())
}

func (h *Handler) ToggleMute(c echo.Context) error {
	if h.session == nil {
		return shared.ServiceUnavailable("no_session", "no voice session is configured")
	}
	if snap := h.session.Snapshot(); snap.Status == transport.StatusDisconnected {
		return shared.Conflict("session_not_connected", "the voice session is not connected")
	}

	muted := h.session.ToggleMute()
	h.logger.Info("mute toggled via control api", "muted", muted)
	return c.JSON(http.StatusOK, MuteResponse{Muted: muted})
}

func (h *Handler) End(c echo.Context) error {
	if h.session == nil {
		return shared.ServiceUnavailable("no_session", "no voice session is configured")
	}
	h.session.EndSession()
	h.logger.Info("session ended via control api")
	return c.JSON(http.StatusOK, h.session.Snapshot())
}
