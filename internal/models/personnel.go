package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PersonnelDetailLine reports headcount per staff category for one deliverable.
type PersonnelDetailLine struct {
	ID             string          `db:"id" json:"id"`
	DeliverableID  string          `db:"deliverable_id" json:"deliverableId"`
	CategoryID     string          `db:"category_id" json:"categoryId"`
	ReportedCount  int             `db:"reported_count" json:"reportedCount"`
	ValidatedCount int             `db:"validated_count" json:"validatedCount"`
	UnitRate       decimal.Decimal `db:"unit_rate" json:"unitRate"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}

// ComputeSubtotal sets Subtotal to validated count times unit rate.
func (l *PersonnelDetailLine) ComputeSubtotal() {
	l.Subtotal = l.UnitRate.Mul(decimal.NewFromInt(int64(l.ValidatedCount)))
}

// PersonnelDetail is the full ledger of a deliverable.
type PersonnelDetail struct {
	DeliverableID string                `json:"deliverableId"`
	Lines         []PersonnelDetailLine `json:"lines"`
	Total         decimal.Decimal       `json:"total"`
}

// SumSubtotals adds the subtotals of lines.
func SumSubtotals(lines []PersonnelDetailLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal)
	}
	return total
}
