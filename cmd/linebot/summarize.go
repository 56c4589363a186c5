package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/memohai/linebot/internal/ai"
)

func newSummarizeCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "summarize <receipts.json|->",
		Short: "Summarize a JSON array of receipt analyses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			receipts, err := readReceipts(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			summary := ai.Summarize(receipts)
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			renderSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func readReceipts(stdin io.Reader, path string) ([]*ai.ReceiptAnalysis, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read receipts: %w", err)
	}
	var receipts []*ai.ReceiptAnalysis
	if err := json.Unmarshal(data, &receipts); err != nil {
		return nil, fmt.Errorf("decode receipts: %w", err)
	}
	return receipts, nil
}

func renderSummary(w io.Writer, s ai.Summary) {
	table := newTable(w, "Item", "Value")
	table.Append([]string{"Receipts", strconv.Itoa(s.TotalReceipts)})
	table.Append([]string{"Total", ai.FormatAmount(s.TotalAmount)})
	table.Append([]string{"Average", ai.FormatAmount(s.AverageAmount)})
	table.Append([]string{"Items", strconv.Itoa(s.TotalItems)})
	table.Append([]string{"From", lo.FromPtrOr(s.DateRange.Start, "-")})
	table.Append([]string{"To", lo.FromPtrOr(s.DateRange.End, "-")})
	table.Render()
}
