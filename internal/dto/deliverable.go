package dto

import (
	"github.com/shopspring/decimal"
)

// SubmitDeliverableRequest moves a deliverable into review, optionally with the computed amount.
type SubmitDeliverableRequest struct {
	CalculatedAmount *decimal.Decimal `json:"calculatedAmount"`
}

// ApproveDeliverableRequest carries the reviewer-approved amount.
type ApproveDeliverableRequest struct {
	ApprovedAmount decimal.Decimal `json:"approvedAmount"`
}

// RejectDeliverableRequest carries the mandatory rejection notes.
type RejectDeliverableRequest struct {
	Notes string `json:"notes"`
}

// PersonnelLineInput is one category line of a personnel detail replacement.
// UnitRate defaults to the category's contracted rate when omitted.
type PersonnelLineInput struct {
	CategoryID     string           `json:"categoryId" validate:"required,uuid"`
	ReportedCount  int              `json:"reportedCount" validate:"gte=0"`
	ValidatedCount int              `json:"validatedCount" validate:"gte=0"`
	UnitRate       *decimal.Decimal `json:"unitRate"`
}

// ReplacePersonnelRequest fully replaces the personnel detail of a deliverable.
type ReplacePersonnelRequest struct {
	Lines []PersonnelLineInput `json:"lines" validate:"dive"`
}

// ReviewQueueQuery mirrors supported review queue filters.
type ReviewQueueQuery struct {
	CompanyID  string
	ContractID string
	Page       int
	PageSize   int
}

// ExportFormat enumerates supported export encodings.
type ExportFormat string

const (
	ExportFormatXLSX ExportFormat = "xlsx"
	ExportFormatPDF  ExportFormat = "pdf"
	ExportFormatCSV  ExportFormat = "csv"
)
