package ai

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

type SalesData struct {
	Period           string  `json:"period"`
	TotalSales       float64 `json:"total_sales"`
	CommissionRate   float64 `json:"commission_rate"`
	CommissionAmount float64 `json:"commission_amount"`
}

type Contractor struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Contact string `json:"contact"`
}

// InvoicePrompt builds the instruction used to draft an invoice with the model.
func InvoicePrompt(sales SalesData, contractor Contractor) string {
	var b strings.Builder
	b.WriteString("以下の情報に基づいて、業務委託者向けの請求書を日本語で作成してください。\n\n")
	b.WriteString("業務委託者情報:\n")
	fmt.Fprintf(&b, "- 名前: %s\n", orNA(contractor.Name))
	fmt.Fprintf(&b, "- 住所: %s\n", orNA(contractor.Address))
	fmt.Fprintf(&b, "- 連絡先: %s\n\n", orNA(contractor.Contact))
	b.WriteString("売上情報:\n")
	fmt.Fprintf(&b, "- 期間: %s\n", orNA(sales.Period))
	fmt.Fprintf(&b, "- 総売上: %s円\n", FormatAmount(sales.TotalSales))
	fmt.Fprintf(&b, "- 歩合率: %s%%\n", formatPercent(sales.CommissionRate))
	fmt.Fprintf(&b, "- 請求金額: %s円\n\n", FormatAmount(sales.CommissionAmount))
	b.WriteString("フォーマル且つ分かりやすい請求書を作成してください。\n")
	return b.String()
}

// InvoiceContent renders the fixed invoice template.
func InvoiceContent(sales SalesData, contractor Contractor) string {
	var b strings.Builder
	b.WriteString("請求書\n\n")
	fmt.Fprintf(&b, "請求先: %s\n", orNA(contractor.Name))
	fmt.Fprintf(&b, "期間: %s\n", orNA(sales.Period))
	fmt.Fprintf(&b, "売上合計: ¥%s\n", FormatAmount(sales.TotalSales))
	fmt.Fprintf(&b, "歩合率: %s%%\n", formatPercent(sales.CommissionRate))
	fmt.Fprintf(&b, "請求金額: ¥%s\n\n", FormatAmount(sales.CommissionAmount))
	b.WriteString("詳細は添付の売上明細をご参照ください。\n")
	return b.String()
}

// FormatAmount renders v with thousands separators. Whole numbers have no
// decimals; anything else is rounded to two places.
func FormatAmount(v float64) string {
	neg := v < 0
	v = math.Abs(v)
	var s string
	if v == math.Trunc(v) {
		s = strconv.FormatFloat(v, 'f', 0, 64)
	} else {
		s = strconv.FormatFloat(v, 'f', 2, 64)
	}
	intPart, frac, _ := strings.Cut(s, ".")
	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}
	out := grouped.String()
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

func formatPercent(rate float64) string {
	return strconv.FormatFloat(math.Round(rate*100*1e4)/1e4, 'f', -1, 64)
}

func orNA(s string) string {
	return lo.Ternary(strings.TrimSpace(s) == "", "N/A", s)
}
