package ai

import (
	"github.com/samber/lo"
)

// StatusSuccess marks a receipt analysis whose extracted data can be trusted.
const StatusSuccess = "success"

// ReceiptAnalysis is the result of reading one receipt image.
type ReceiptAnalysis struct {
	Status        string        `json:"status"`
	ExtractedData ExtractedData `json:"extracted_data"`
	Confidence    float64       `json:"confidence"`
}

type ExtractedData struct {
	TotalAmount float64       `json:"total_amount"`
	Date        string        `json:"date,omitempty"`
	StoreName   string        `json:"store_name,omitempty"`
	Items       []ReceiptItem `json:"items"`
	Tax         float64       `json:"tax"`
}

type ReceiptItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity,omitempty"`
}

// Commission splits a sales amount between the commission and the remainder.
type Commission struct {
	SalesAmount      float64 `json:"sales_amount"`
	CommissionRate   float64 `json:"commission_rate"`
	CommissionAmount float64 `json:"commission_amount"`
	RemainingAmount  float64 `json:"remaining_amount"`
}

// CalculateCommission applies rate to sales. Rates outside [0,1] are accepted as-is.
func CalculateCommission(sales, rate float64) Commission {
	commission := sales * rate
	return Commission{
		SalesAmount:      sales,
		CommissionRate:   rate,
		CommissionAmount: commission,
		RemainingAmount:  sales - commission,
	}
}

type DateRange struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

type Summary struct {
	TotalReceipts int       `json:"total_receipts"`
	TotalAmount   float64   `json:"total_amount"`
	TotalItems    int       `json:"total_items"`
	DateRange     DateRange `json:"date_range"`
	AverageAmount float64   `json:"average_amount"`
}

// Summarize aggregates receipt analyses. Only successful receipts contribute
// amounts, items and dates, but the average divides by every receipt given.
func Summarize(receipts []*ReceiptAnalysis) Summary {
	summary := Summary{TotalReceipts: len(receipts)}
	successful := lo.Filter(receipts, func(r *ReceiptAnalysis, _ int) bool {
		return r != nil && r.Status == StatusSuccess
	})
	for _, r := range successful {
		summary.TotalAmount += r.ExtractedData.TotalAmount
		summary.TotalItems += len(r.ExtractedData.Items)
	}

	dates := lo.FilterMap(successful, func(r *ReceiptAnalysis, _ int) (string, bool) {
		return r.ExtractedData.Date, r.ExtractedData.Date != ""
	})
	if len(dates) > 0 {
		start, end := lo.Min(dates), lo.Max(dates)
		summary.DateRange = DateRange{Start: &start, End: &end}
	}

	if len(receipts) > 0 {
		summary.AverageAmount = summary.TotalAmount / float64(len(receipts))
	}
	return summary
}
