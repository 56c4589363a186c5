package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/linebot/internal/dispatcher"
	"github.com/memohai/linebot/internal/line"
)

const webhookMaxBodyBytes int64 = 1 << 20 // 1 MiB

// WebhookDispatcher handles one verified-or-rejected webhook delivery.
type WebhookDispatcher interface {
	HandleWebhook(ctx context.Context, rawBody []byte, signature string) error
}

// WebhookHandler receives LINE Messaging API webhook deliveries.
type WebhookHandler struct {
	logger     *slog.Logger
	dispatcher WebhookDispatcher
}

func NewWebhookHandler(log *slog.Logger, d *dispatcher.Dispatcher) *WebhookHandler {
	return newWebhookHandler(log, d)
}

func newWebhookHandler(log *slog.Logger, d WebhookDispatcher) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		logger:     log.With(slog.String("handler", "line_webhook")),
		dispatcher: d,
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhook", h.Handle)
}

// Handle reads the raw body untouched, hands it to the dispatcher with the
// signature header and answers "OK" once the delivery is accepted.
func (h *WebhookHandler) Handle(c echo.Context) error {
	if h.dispatcher == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "webhook dispatcher not configured")
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, webhookMaxBodyBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
	}
	if int64(len(payload)) > webhookMaxBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("payload too large: max %d bytes", webhookMaxBodyBytes))
	}

	signature := c.Request().Header.Get(line.SignatureHeader)
	err = h.dispatcher.HandleWebhook(c.Request().Context(), payload, signature)
	switch {
	case err == nil:
		return c.String(http.StatusOK, "OK")
	case errors.Is(err, dispatcher.ErrBadRequest):
		h.logger.Warn("webhook without signature", slog.String("remote_ip", c.RealIP()))
		return echo.NewHTTPError(http.StatusBadRequest, "missing signature")
	case errors.Is(err, dispatcher.ErrInvalidSignature):
		h.logger.Warn("webhook signature mismatch", slog.String("remote_ip", c.RealIP()))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid signature")
	case errors.Is(err, dispatcher.ErrMalformedPayload):
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	default:
		h.logger.Error("webhook dispatch failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
