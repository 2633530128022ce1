package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/period"
)

// ContractStatus mirrors the lifecycle owned by the contracts module.
type ContractStatus string

const (
	ContractStatusDraft     ContractStatus = "DRAFT"
	ContractStatusActive    ContractStatus = "ACTIVE"
	ContractStatusSuspended ContractStatus = "SUSPENDED"
	ContractStatusClosed    ContractStatus = "CLOSED"
	ContractStatusCancelled ContractStatus = "CANCELLED"
)

// Syncable reports whether deliverable periods may still be generated for the contract.
func (s ContractStatus) Syncable() bool {
	return s == ContractStatusDraft || s == ContractStatusActive
}

// Contract is the read-only view of a vendor contract.
type Contract struct {
	ID        string              `db:"id" json:"id"`
	CompanyID string              `db:"company_id" json:"companyId"`
	Code      string              `db:"code" json:"code"`
	StartDate *time.Time          `db:"start_date" json:"startDate,omitempty"`
	EndDate   *time.Time          `db:"end_date" json:"endDate,omitempty"`
	MaxAmount decimal.NullDecimal `db:"max_amount" json:"maxAmount"`
	Status    ContractStatus      `db:"status" json:"status"`
}

// DeliverableTypeConfig declares which deliverable a contract requires and how often.
type DeliverableTypeConfig struct {
	ContractID      string             `db:"contract_id" json:"contractId"`
	DeliverableType string             `db:"deliverable_type" json:"deliverableType"`
	Periodicity     period.Periodicity `db:"periodicity" json:"periodicity"`
	Required        bool               `db:"required" json:"required"`
	Description     *string            `db:"description" json:"description,omitempty"`
	Instructions    *string            `db:"instructions" json:"instructions,omitempty"`
	CreatedAt       time.Time          `db:"created_at" json:"createdAt"`
}

// StaffCategory is a billable personnel category of a contract.
type StaffCategory struct {
	ID         string          `db:"id" json:"id"`
	ContractID string          `db:"contract_id" json:"contractId"`
	Name       string          `db:"name" json:"name"`
	UnitRate   decimal.Decimal `db:"unit_rate" json:"unitRate"`
}
