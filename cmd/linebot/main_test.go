package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/linebot/internal/ai"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommissionJSON(t *testing.T) {
	out, err := execute(t, "", "commission", "--sales", "100000", "--rate", "0.3", "--json")
	require.NoError(t, err)

	var got ai.Commission
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.InDelta(t, 30000, got.CommissionAmount, 1e-9)
	assert.InDelta(t, 70000, got.RemainingAmount, 1e-9)
}

func TestCommissionTable(t *testing.T) {
	out, err := execute(t, "", "commission", "--sales", "1234567", "--rate", "0.1")
	require.NoError(t, err)
	assert.Contains(t, out, "1,234,567")
	assert.Contains(t, out, "Commission")
}

func TestCommissionRequiresFlags(t *testing.T) {
	_, err := execute(t, "", "commission", "--sales", "100")
	require.Error(t, err)
}

const receiptsJSON = `[
  {"status":"success","extracted_data":{"total_amount":1000,"date":"2024-02-01","items":[{"name":"a","price":1000}]}},
  {"status":"success","extracted_data":{"total_amount":500,"date":"2024-01-15","items":[]}},
  {"status":"failed","extracted_data":{"total_amount":999}}
]`

func TestSummarizeStdin(t *testing.T) {
	out, err := execute(t, receiptsJSON, "summarize", "-", "--json")
	require.NoError(t, err)

	var got ai.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 3, got.TotalReceipts)
	assert.InDelta(t, 1500, got.TotalAmount, 1e-9)
	assert.InDelta(t, 500, got.AverageAmount, 1e-9)
	require.NotNil(t, got.DateRange.Start)
	assert.Equal(t, "2024-01-15", *got.DateRange.Start)
}

func TestSummarizeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.json")
	require.NoError(t, os.WriteFile(path, []byte(receiptsJSON), 0o600))

	out, err := execute(t, "", "summarize", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2024-02-01")
	assert.Contains(t, out, "1,500")
}

func TestSummarizeRejectsBadJSON(t *testing.T) {
	_, err := execute(t, "{", "summarize", "-")
	require.Error(t, err)
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "", "version", "--json")
	require.NoError(t, err)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "dev", info["version"])
}
