package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/linebot/internal/healthcheck"
)

type HealthHandler struct {
	logger   *slog.Logger
	service  string
	checkers []healthcheck.Checker
}

func NewHealthHandler(log *slog.Logger, service string, checkers ...healthcheck.Checker) *HealthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HealthHandler{
		logger:   log.With(slog.String("handler", "health")),
		service:  service,
		checkers: checkers,
	}
}

func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.HEAD("/health", h.HealthHead)
	e.GET("/health/checks", h.Checks)
}

func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": h.service,
	})
}

func (h *HealthHandler) HealthHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// Checks reports collaborator readiness. A failing probe turns the response
// into 503; unconfigured collaborators only warn.
func (h *HealthHandler) Checks(c echo.Context) error {
	items, overall := healthcheck.Collect(c.Request().Context(), h.checkers...)
	status := http.StatusOK
	if overall == healthcheck.StatusError {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]any{
		"status":  overall,
		"service": h.service,
		"checks":  items,
	})
}
