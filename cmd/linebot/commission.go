package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/memohai/linebot/internal/ai"
)

func newCommissionCmd() *cobra.Command {
	var (
		sales      float64
		rate       float64
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "commission",
		Short: "Calculate a sales commission",
		Example: `  linebot commission --sales 100000 --rate 0.3
  linebot commission --sales 100000 --rate 0.3 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("sales") || !cmd.Flags().Changed("rate") {
				return fmt.Errorf("--sales and --rate are required")
			}
			result := ai.CalculateCommission(sales, rate)
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			renderCommission(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().Float64Var(&sales, "sales", 0, "sales amount")
	cmd.Flags().Float64Var(&rate, "rate", 0, "commission rate, e.g. 0.3")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func renderCommission(w io.Writer, c ai.Commission) {
	table := newTable(w, "Item", "Value")
	table.Append([]string{"Sales", ai.FormatAmount(c.SalesAmount)})
	table.Append([]string{"Rate", fmt.Sprintf("%g%%", c.CommissionRate*100)})
	table.Append([]string{"Commission", ai.FormatAmount(c.CommissionAmount)})
	table.Append([]string{"Remaining", ai.FormatAmount(c.RemainingAmount)})
	table.Render()
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
