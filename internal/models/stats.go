package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatusCounts groups deliverables by workflow state.
type StatusCounts struct {
	Pending  int `db:"pending" json:"pending"`
	InReview int `db:"in_review" json:"inReview"`
	Approved int `db:"approved" json:"approved"`
	Rejected int `db:"rejected" json:"rejected"`
}

// Total returns the number of deliverables counted.
func (c StatusCounts) Total() int {
	return c.Pending + c.InReview + c.Approved + c.Rejected
}

// ContractStats summarises deliverable progress and spending for a contract.
type ContractStats struct {
	ContractID             string              `json:"contractId"`
	Counts                 StatusCounts        `json:"counts"`
	Total                  int                 `json:"total"`
	ApprovedTotal          decimal.Decimal     `json:"approvedTotal"`
	PaidTotal              decimal.Decimal     `json:"paidTotal"`
	MaxAmount              decimal.NullDecimal `json:"maxAmount"`
	Remaining              decimal.NullDecimal `json:"remaining"`
	BudgetExceeded         bool                `json:"budgetExceeded"`
	ApprovedWithoutPayment int                 `json:"approvedWithoutPayment"`
	GeneratedAt            time.Time           `json:"generatedAt"`
}

// CompanyStats summarises deliverables across all contracts of a vendor company.
type CompanyStats struct {
	CompanyID     string          `json:"companyId"`
	Contracts     int             `json:"contracts"`
	Counts        StatusCounts    `json:"counts"`
	Total         int             `json:"total"`
	ApprovedTotal decimal.Decimal `json:"approvedTotal"`
	PaidTotal     decimal.Decimal `json:"paidTotal"`
	GeneratedAt   time.Time       `json:"generatedAt"`
}

// DeliverableRollup is the aggregate row of a stats query.
type DeliverableRollup struct {
	StatusCounts
	ApprovedTotal decimal.Decimal `db:"approved_total"`
}
