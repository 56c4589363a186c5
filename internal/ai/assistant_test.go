package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/linebot/internal/collab"
	"github.com/memohai/linebot/internal/config"
)

func completionServer(t *testing.T, status int, content string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
			return
		}
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-4o",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestAssistant(srv *httptest.Server) *Assistant {
	return NewAssistant(nil, config.OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o", BaseURL: srv.URL + "/"}, srv.Client())
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestAnalyzeImageParsesFencedJSON(t *testing.T) {
	t.Parallel()

	var seen map[string]any
	reply := "```json\n{\"total_amount\": 1280, \"date\": \"2024-05-01\", \"store_name\": \"コンビニ\", \"items\": [{\"name\": \"お茶\", \"price\": 150, \"quantity\": 2}], \"tax\": 96, \"confidence\": 0.9}\n```"
	srv := completionServer(t, http.StatusOK, reply, &seen)

	got, err := newTestAssistant(srv).AnalyzeImage(context.Background(), pngHeader)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, got.Status)
	assert.Equal(t, 1280.0, got.ExtractedData.TotalAmount)
	assert.Equal(t, "2024-05-01", got.ExtractedData.Date)
	assert.Equal(t, "コンビニ", got.ExtractedData.StoreName)
	require.Len(t, got.ExtractedData.Items, 1)
	assert.Equal(t, "お茶", got.ExtractedData.Items[0].Name)
	assert.Equal(t, 96.0, got.ExtractedData.Tax)
	assert.Equal(t, 0.9, got.Confidence)

	assert.Equal(t, "gpt-4o", seen["model"])
	raw, _ := json.Marshal(seen["messages"])
	assert.Contains(t, string(raw), "data:image/png;base64,")
}

func TestAnalyzeImageNonJSONReplyIsFailedStatus(t *testing.T) {
	t.Parallel()

	srv := completionServer(t, http.StatusOK, "I cannot read this receipt.", nil)
	got, err := newTestAssistant(srv).AnalyzeImage(context.Background(), pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)
	assert.Nil(t, Summarize([]*ReceiptAnalysis{&got}).DateRange.Start)
}

func TestGenerateTextAPIError(t *testing.T) {
	t.Parallel()

	srv := completionServer(t, http.StatusBadRequest, "", nil)
	_, err := newTestAssistant(srv).GenerateText(context.Background(), "hello")
	require.Error(t, err)

	var cerr *collab.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "openai", cerr.Service)
	assert.Equal(t, http.StatusBadRequest, cerr.StatusCode)
}

func TestDraftInvoiceSendsPrompt(t *testing.T) {
	t.Parallel()

	var seen map[string]any
	srv := completionServer(t, http.StatusOK, "  請求書本文  ", &seen)
	got, err := newTestAssistant(srv).DraftInvoice(context.Background(),
		SalesData{Period: "2024-04", TotalSales: 1000000, CommissionRate: 0.3, CommissionAmount: 300000},
		Contractor{Name: "山田太郎"},
	)
	require.NoError(t, err)
	assert.Equal(t, "請求書本文", got)

	raw, _ := json.Marshal(seen["messages"])
	assert.Contains(t, string(raw), "山田太郎")
	assert.Contains(t, string(raw), "1,000,000円")
}

func TestUnconfiguredAssistant(t *testing.T) {
	t.Parallel()

	a := NewAssistant(nil, config.OpenAIConfig{}, nil)
	assert.False(t, a.Configured())

	_, err := a.AnalyzeImage(context.Background(), pngHeader)
	assert.ErrorIs(t, err, collab.ErrNotConfigured)
	_, err = a.GenerateText(context.Background(), "x")
	assert.ErrorIs(t, err, collab.ErrNotConfigured)
}

func TestInvoiceContent(t *testing.T) {
	t.Parallel()

	got := InvoiceContent(
		SalesData{Period: "2024年4月", TotalSales: 1234567, CommissionRate: 0.3, CommissionAmount: 370370.1},
		Contractor{},
	)
	assert.True(t, strings.HasPrefix(got, "請求書\n"))
	assert.Contains(t, got, "請求先: N/A\n")
	assert.Contains(t, got, "期間: 2024年4月\n")
	assert.Contains(t, got, "売上合計: ¥1,234,567\n")
	assert.Contains(t, got, "歩合率: 30%\n")
	assert.Contains(t, got, "請求金額: ¥370,370.10\n")
}

func TestFormatAmount(t *testing.T) {
	t.Parallel()

	cases := map[float64]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		-1234567: "-1,234,567",
		12.5:     "12.50",
		1000.25:  "1,000.25",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatAmount(in), "input %v", in)
	}
}

func TestStripCodeFence(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`  {"a":1} `))
}
