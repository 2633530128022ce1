package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/dto"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
	appErrors "github.com/julioctb/Dashboard-pletorica-sub001/pkg/errors"
	"github.com/julioctb/Dashboard-pletorica-sub001/pkg/export"
)

type deliverableLister interface {
	ListByContract(ctx context.Context, contractID string) ([]models.Deliverable, error)
}

// Renderer turns a dataset into a downloadable document.
type Renderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// ExportResult is a rendered report ready to be streamed to the client.
type ExportResult struct {
	FileName    string
	ContentType string
	Payload     []byte
}

var deliverableExportHeaders = []string{"Period #", "Label", "Start", "End", "Status", "Calculated", "Approved", "Submitted", "Payment"}

// ExportService renders the deliverable ledger of a contract as CSV, PDF or XLSX.
type ExportService struct {
	deliverables deliverableLister
	contracts    contractLookup
	renderers    map[dto.ExportFormat]Renderer
	logger       *zap.Logger
	now          func() time.Time
}

// NewExportService constructs an ExportService. Missing renderers fall back to the defaults in pkg/export.
func NewExportService(deliverables deliverableLister, contracts contractLookup, logger *zap.Logger, renderers map[dto.ExportFormat]Renderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	all := map[dto.ExportFormat]Renderer{
		dto.ExportFormatCSV:  export.NewCSVExporter(),
		dto.ExportFormatPDF:  export.NewPDFExporter(),
		dto.ExportFormatXLSX: export.NewXLSXExporter(),
	}
	for format, renderer := range renderers {
		if renderer != nil {
			all[format] = renderer
		}
	}
	return &ExportService{
		deliverables: deliverables,
		contracts:    contracts,
		renderers:    all,
		logger:       logger,
		now:          time.Now,
	}
}

// ExportContract renders every deliverable of a contract in the requested format.
func (s *ExportService) ExportContract(ctx context.Context, contractID string, format dto.ExportFormat, actor *models.JWTClaims) (*ExportResult, error) {
	format = dto.ExportFormat(strings.ToLower(string(format)))
	if format == "" {
		format = dto.ExportFormatXLSX
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	contract, err := loadScopedContract(ctx, s.contracts, contractID, actor)
	if err != nil {
		return nil, err
	}
	rows, err := s.deliverables.ListByContract(ctx, contractID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load deliverables")
	}

	payload, err := renderer.Render(buildDeliverableDataset(contract, rows))
	if err != nil {
		s.logger.Error("render export", zap.String("contract_id", contractID), zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &ExportResult{
		FileName:    fmt.Sprintf("deliverables_%s_%s.%s", sanitizeFilename(contract.Code), s.now().UTC().Format("20060102_150405"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Payload:     payload,
	}, nil
}

func buildDeliverableDataset(contract *models.Contract, rows []models.Deliverable) export.Dataset {
	approved := decimal.Zero
	data := make([]map[string]string, 0, len(rows))
	for i := range rows {
		d := &rows[i]
		if d.Status == models.DeliverableStatusApproved && d.ApprovedAmount.Valid {
			approved = approved.Add(d.ApprovedAmount.Decimal)
		}
		data = append(data, map[string]string{
			"Period #":   fmt.Sprintf("%d", d.PeriodNumber),
			"Label":      d.PeriodLabel(),
			"Start":      d.PeriodStart.Format("2006-01-02"),
			"End":        d.PeriodEnd.Format("2006-01-02"),
			"Status":     string(d.Status),
			"Calculated": formatAmount(d.CalculatedAmount),
			"Approved":   formatAmount(d.ApprovedAmount),
			"Submitted":  formatReportTime(d.SubmittedAt),
			"Payment":    deref(d.PaymentID),
		})
	}
	limit := "unlimited"
	if contract.MaxAmount.Valid {
		limit = contract.MaxAmount.Decimal.StringFixed(2)
	}
	return export.Dataset{
		Title: fmt.Sprintf("Deliverables %s", contract.Code),
		Summary: [][2]string{
			{"Contract", contract.Code},
			{"Deliverables", fmt.Sprintf("%d", len(rows))},
			{"Approved total", approved.StringFixed(2)},
			{"Maximum amount", limit},
		},
		Headers: deliverableExportHeaders,
		Rows:    data,
	}
}

func formatAmount(v decimal.NullDecimal) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.StringFixed(2)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatReportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
