// Package reports builds sales reporting views over invoices and
// payments: the daily summary and the sales register, both exportable.
package reports

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailySummary aggregates one day of sales activity.
type DailySummary struct {
	Day          time.Time       `json:"day"`
	InvoiceCount int             `json:"invoice_count"`
	Revenue      decimal.Decimal `json:"revenue"`
	Collected    decimal.Decimal `json:"collected"`
	Outstanding  decimal.Decimal `json:"outstanding"`
}

// RegisterRow is one invoice line in the sales register.
type RegisterRow struct {
	InvoiceID   int64           `json:"invoice_id"`
	Reference   string          `json:"reference"`
	ClientLabel string          `json:"client_label"`
	Status      string          `json:"status"`
	IssuedAt    time.Time       `json:"issued_at"`
	Total       decimal.Decimal `json:"total"`
	Paid        decimal.Decimal `json:"paid"`
	Balance     decimal.Decimal `json:"balance"`
}

// RegisterRequest bounds the register listing.
type RegisterRequest struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}
