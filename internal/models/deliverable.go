package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/period"
)

// DeliverableStatus captures the review workflow state of a deliverable.
type DeliverableStatus string

const (
	DeliverableStatusPending  DeliverableStatus = "PENDING"
	DeliverableStatusInReview DeliverableStatus = "IN_REVIEW"
	DeliverableStatusApproved DeliverableStatus = "APPROVED"
	DeliverableStatusRejected DeliverableStatus = "REJECTED"
)

// Valid reports whether s is one of the known statuses.
func (s DeliverableStatus) Valid() bool {
	switch s {
	case DeliverableStatusPending, DeliverableStatusInReview, DeliverableStatusApproved, DeliverableStatusRejected:
		return true
	default:
		return false
	}
}

// VendorEditable reports whether the vendor may still change the deliverable content.
func (s DeliverableStatus) VendorEditable() bool {
	return s == DeliverableStatusPending || s == DeliverableStatusRejected
}

// Reviewable reports whether a reviewer may approve or reject the deliverable.
func (s DeliverableStatus) Reviewable() bool {
	return s == DeliverableStatusInReview
}

// CanTransition reports whether moving from s to next is a legal workflow step.
func (s DeliverableStatus) CanTransition(next DeliverableStatus) bool {
	switch s {
	case DeliverableStatusPending:
		return next == DeliverableStatusInReview
	case DeliverableStatusInReview:
		return next == DeliverableStatusApproved || next == DeliverableStatusRejected
	case DeliverableStatusRejected:
		return next == DeliverableStatusInReview
	case DeliverableStatusApproved:
		return false
	default:
		return false
	}
}

// Transition names used for metrics and audit actions.
const (
	TransitionSubmit  = "submit"
	TransitionApprove = "approve"
	TransitionReject  = "reject"
)

// Deliverable is one periodic reporting obligation of a contract.
type Deliverable struct {
	ID               string              `db:"id" json:"id"`
	ContractID       string              `db:"contract_id" json:"contractId"`
	PeriodNumber     int                 `db:"period_number" json:"periodNumber"`
	PeriodStart      time.Time           `db:"period_start" json:"periodStart"`
	PeriodEnd        time.Time           `db:"period_end" json:"periodEnd"`
	Periodicity      period.Periodicity  `db:"periodicity" json:"periodicity"`
	Status           DeliverableStatus   `db:"status" json:"status"`
	CalculatedAmount decimal.NullDecimal `db:"calculated_amount" json:"calculatedAmount"`
	ApprovedAmount   decimal.NullDecimal `db:"approved_amount" json:"approvedAmount"`
	SubmittedAt      *time.Time          `db:"submitted_at" json:"submittedAt,omitempty"`
	ReviewedAt       *time.Time          `db:"reviewed_at" json:"reviewedAt,omitempty"`
	ReviewedBy       *string             `db:"reviewed_by" json:"reviewedBy,omitempty"`
	RejectionNotes   *string             `db:"rejection_notes" json:"rejectionNotes,omitempty"`
	PaymentID        *string             `db:"payment_id" json:"paymentId,omitempty"`
	CreatedAt        time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time           `db:"updated_at" json:"updatedAt"`
}

// Period returns the calendar interval the deliverable covers.
func (d *Deliverable) Period() period.Period {
	return period.Period{Number: d.PeriodNumber, Start: d.PeriodStart, End: d.PeriodEnd}
}

// PeriodLabel renders the human name of the covered period.
func (d *Deliverable) PeriodLabel() string {
	return period.Label(d.Period(), d.Periodicity)
}

// DeliverableView decorates a deliverable with its rendered label for API responses.
type DeliverableView struct {
	Deliverable
	Label string `json:"label"`
}

// NewDeliverableView builds the API representation of d.
func NewDeliverableView(d Deliverable) DeliverableView {
	return DeliverableView{Deliverable: d, Label: d.PeriodLabel()}
}

// ReviewQueueFilter constrains the reviewer work queue.
type ReviewQueueFilter struct {
	CompanyID  string
	ContractID string
	Limit      int
	Offset     int
}

// ReviewQueueItem is an IN_REVIEW deliverable joined with its contract identity.
type ReviewQueueItem struct {
	Deliverable
	ContractCode string `db:"contract_code" json:"contractCode"`
	CompanyID    string `db:"company_id" json:"companyId"`
	Label        string `db:"-" json:"label"`
}
