package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus tracks settlement of a payment record.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusPaid      PaymentStatus = "PAID"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// Payment is the record created when a deliverable is approved.
type Payment struct {
	ID            string          `db:"id" json:"id"`
	ContractID    string          `db:"contract_id" json:"contractId"`
	DeliverableID *string         `db:"deliverable_id" json:"deliverableId,omitempty"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Concept       string          `db:"concept" json:"concept"`
	Status        PaymentStatus   `db:"status" json:"status"`
	PaidAt        *time.Time      `db:"paid_at" json:"paidAt,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
}
