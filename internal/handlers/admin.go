package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/memohai/linebot/internal/ai"
	"github.com/memohai/linebot/internal/auth"
	"github.com/memohai/linebot/internal/collab"
	"github.com/memohai/linebot/internal/onedrive"
)

// DriveBrowser lists and creates OneDrive folders.
type DriveBrowser interface {
	List(ctx context.Context, folder string) ([]onedrive.Item, error)
	CreateFolder(ctx context.Context, name, parent string) (onedrive.Item, error)
}

// InvoiceDrafter writes invoice text with the AI model.
type InvoiceDrafter interface {
	DraftInvoice(ctx context.Context, sales ai.SalesData, contractor ai.Contractor) (string, error)
}

// AdminHandler serves the JWT-protected operator API.
type AdminHandler struct {
	logger    *slog.Logger
	drive     DriveBrowser
	drafter   InvoiceDrafter
	jwtSecret string
	tokenTTL  time.Duration
}

func NewAdminHandler(log *slog.Logger, drive *onedrive.Client, assistant *ai.Assistant, jwtSecret string, tokenTTL time.Duration) *AdminHandler {
	return newAdminHandler(log, drive, assistant, jwtSecret, tokenTTL)
}

func newAdminHandler(log *slog.Logger, drive DriveBrowser, drafter InvoiceDrafter, jwtSecret string, tokenTTL time.Duration) *AdminHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{
		logger:    log.With(slog.String("handler", "admin")),
		drive:     drive,
		drafter:   drafter,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

func (h *AdminHandler) Register(e *echo.Echo) {
	g := e.Group("/admin")
	g.GET("/files", h.ListFiles)
	g.POST("/folders", h.CreateFolder)
	g.POST("/commission", h.Commission)
	g.POST("/summary", h.Summary)
	g.POST("/invoice", h.Invoice)
	g.POST("/token/refresh", h.RefreshToken)
}

type ListFilesResponse struct {
	Folder string          `json:"folder"`
	Items  []onedrive.Item `json:"items"`
}

func (h *AdminHandler) ListFiles(c echo.Context) error {
	folder := strings.TrimSpace(c.QueryParam("folder"))
	items, err := h.drive.List(c.Request().Context(), folder)
	if err != nil {
		return h.collaboratorError("list files", err)
	}
	return c.JSON(http.StatusOK, ListFilesResponse{Folder: folder, Items: items})
}

type CreateFolderRequest struct {
	Name   string `json:"name"`
	Parent string `json:"parent"`
}

// CreateFolder creates a folder; an empty name gets a generated one.
func (h *AdminHandler) CreateFolder(c echo.Context) error {
	var req CreateFolderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "folder-" + uuid.NewString()[:8]
	}
	if strings.ContainsAny(name, `/\`) {
		return echo.NewHTTPError(http.StatusBadRequest, "folder name must not contain path separators")
	}
	item, err := h.drive.CreateFolder(c.Request().Context(), name, strings.TrimSpace(req.Parent))
	if err != nil {
		return h.collaboratorError("create folder", err)
	}
	return c.JSON(http.StatusCreated, item)
}

type CommissionRequest struct {
	SalesAmount    *float64 `json:"sales_amount"`
	CommissionRate *float64 `json:"commission_rate"`
}

func (h *AdminHandler) Commission(c echo.Context) error {
	var req CommissionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SalesAmount == nil || req.CommissionRate == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "sales_amount and commission_rate are required")
	}
	result := ai.CalculateCommission(*req.SalesAmount, *req.CommissionRate)
	h.logger.Info("commission calculated",
		slog.Float64("sales_amount", result.SalesAmount),
		slog.Float64("commission_rate", result.CommissionRate),
		slog.Float64("commission_amount", result.CommissionAmount),
	)
	return c.JSON(http.StatusOK, result)
}

type SummaryRequest struct {
	Receipts []*ai.ReceiptAnalysis `json:"receipts"`
}

func (h *AdminHandler) Summary(c echo.Context) error {
	var req SummaryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, ai.Summarize(req.Receipts))
}

type InvoiceRequest struct {
	Sales      ai.SalesData  `json:"sales"`
	Contractor ai.Contractor `json:"contractor"`
	// UseAI asks the model for a draft instead of the fixed template.
	UseAI bool `json:"use_ai"`
}

type InvoiceResponse struct {
	Content   string `json:"content"`
	Generated bool   `json:"generated"`
}

func (h *AdminHandler) Invoice(c echo.Context) error {
	var req InvoiceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !req.UseAI || h.drafter == nil {
		return c.JSON(http.StatusOK, InvoiceResponse{Content: ai.InvoiceContent(req.Sales, req.Contractor)})
	}
	content, err := h.drafter.DraftInvoice(c.Request().Context(), req.Sales, req.Contractor)
	if err != nil {
		return h.collaboratorError("draft invoice", err)
	}
	return c.JSON(http.StatusOK, InvoiceResponse{Content: content, Generated: true})
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (h *AdminHandler) RefreshToken(c echo.Context) error {
	token, expiresAt, err := auth.RefreshTokenFromContext(c, h.jwtSecret, h.tokenTTL)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt})
}

func (h *AdminHandler) collaboratorError(op string, err error) error {
	if errors.Is(err, collab.ErrNotConfigured) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, op+": collaborator not configured")
	}
	h.logger.Error(op+" failed", slog.Any("error", err))
	if collab.IsCollaborator(err) {
		return echo.NewHTTPError(http.StatusBadGateway, op+" failed")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, op+" failed")
}
