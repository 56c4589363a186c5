// Package ai reads receipts and drafts invoices with an OpenAI-compatible
// chat completion API.
package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/memohai/linebot/internal/collab"
	"github.com/memohai/linebot/internal/config"
)

const serviceName = "openai"

const receiptSystemPrompt = `You read Japanese and English shop receipts.
Reply with a single JSON object and nothing else, using this shape:
{"total_amount": number, "date": "YYYY-MM-DD" or null, "store_name": string or null,
 "items": [{"name": string, "price": number, "quantity": number}], "tax": number,
 "confidence": number between 0 and 1}
Use 0 for unknown numbers and null for unknown strings.`

// Assistant wraps the chat completion client.
type Assistant struct {
	client     openai.Client
	model      string
	configured bool
	logger     *slog.Logger
}

// NewAssistant creates an assistant. Without an API key every call returns
// collab.ErrNotConfigured.
func NewAssistant(log *slog.Logger, cfg config.OpenAIConfig, httpClient *http.Client) *Assistant {
	if log == nil {
		log = slog.Default()
	}
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = config.DefaultOpenAIModel
	}
	a := &Assistant{
		client:     openai.NewClient(opts...),
		model:      model,
		configured: cfg.Configured(),
		logger:     log.With(slog.String("service", "ai")),
	}
	if !a.configured {
		a.logger.Warn("openai api key is not configured; ai features disabled")
	}
	return a
}

// Configured reports whether an API key is present.
func (a *Assistant) Configured() bool {
	return a.configured
}

// AnalyzeImage extracts receipt fields from an image.
func (a *Assistant) AnalyzeImage(ctx context.Context, image []byte) (ReceiptAnalysis, error) {
	if !a.configured {
		return ReceiptAnalysis{}, collab.ErrNotConfigured
	}
	if len(image) == 0 {
		return ReceiptAnalysis{}, errors.New("empty image")
	}
	mime := mimetype.Detect(image).String()
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)

	content, err := a.complete(ctx, "analyze image", []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(receiptSystemPrompt),
		openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart("このレシートの内容を読み取ってください。"),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
		}),
	})
	if err != nil {
		return ReceiptAnalysis{}, err
	}

	analysis, err := parseReceipt(content)
	if err != nil {
		a.logger.Warn("receipt response was not valid json",
			slog.String("body_prefix", collab.Truncate(content, 200)),
			slog.Any("error", err),
		)
		return ReceiptAnalysis{Status: "failed"}, nil
	}
	a.logger.Info("receipt analyzed",
		slog.Float64("total_amount", analysis.ExtractedData.TotalAmount),
		slog.Int("items", len(analysis.ExtractedData.Items)),
		slog.Float64("confidence", analysis.Confidence),
	)
	return analysis, nil
}

// GenerateText returns the model's reply to prompt.
func (a *Assistant) GenerateText(ctx context.Context, prompt string) (string, error) {
	if !a.configured {
		return "", collab.ErrNotConfigured
	}
	return a.complete(ctx, "generate text", []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage(prompt),
	})
}

// DraftInvoice asks the model to write an invoice for the given sales.
func (a *Assistant) DraftInvoice(ctx context.Context, sales SalesData, contractor Contractor) (string, error) {
	return a.GenerateText(ctx, InvoicePrompt(sales, contractor))
}

// Cleanup logs shutdown; the client holds no resources of its own.
func (a *Assistant) Cleanup() {
	a.logger.Info("ai assistant cleaned up")
}

func (a *Assistant) complete(ctx context.Context, op string, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(a.model),
		Messages: messages,
	})
	if err != nil {
		cerr := &collab.Error{Service: serviceName, Op: op, Err: err}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			cerr.StatusCode = apiErr.StatusCode
		}
		return "", cerr
	}
	if len(resp.Choices) == 0 {
		return "", &collab.Error{Service: serviceName, Op: op, Err: errors.New("no choices in response")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// parseReceipt decodes the model's JSON answer, tolerating a markdown code fence.
func parseReceipt(content string) (ReceiptAnalysis, error) {
	content = stripCodeFence(content)
	var raw struct {
		ExtractedData
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return ReceiptAnalysis{}, fmt.Errorf("decode receipt: %w", err)
	}
	data := raw.ExtractedData
	if data.Items == nil {
		data.Items = []ReceiptItem{}
	}
	return ReceiptAnalysis{
		Status:        StatusSuccess,
		ExtractedData: data,
		Confidence:    raw.Confidence,
	}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
