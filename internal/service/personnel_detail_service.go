package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/dto"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
	appErrors "github.com/julioctb/Dashboard-pletorica-sub001/pkg/errors"
)

type personnelDetailStore interface {
	ListByDeliverable(ctx context.Context, deliverableID string) ([]models.PersonnelDetailLine, error)
	ReplaceTx(ctx context.Context, tx *sqlx.Tx, deliverableID string, lines []models.PersonnelDetailLine) error
}

type deliverableLocker interface {
	GetByID(ctx context.Context, id string) (*models.Deliverable, error)
	LockForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Deliverable, error)
}

type staffCategoryReader interface {
	GetByID(ctx context.Context, id string) (*models.Contract, error)
	ListStaffCategories(ctx context.Context, contractID string) ([]models.StaffCategory, error)
}

// PersonnelDetailService maintains the per-category personnel ledger of deliverables.
type PersonnelDetailService struct {
	details      personnelDetailStore
	deliverables deliverableLocker
	contracts    staffCategoryReader
	tx           txProvider
	audit        auditLogger
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewPersonnelDetailService constructs the service.
func NewPersonnelDetailService(
	details personnelDetailStore,
	deliverables deliverableLocker,
	contracts staffCategoryReader,
	tx txProvider,
	audit auditLogger,
	validate *validator.Validate,
	logger *zap.Logger,
) *PersonnelDetailService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersonnelDetailService{
		details:      details,
		deliverables: deliverables,
		contracts:    contracts,
		tx:           tx,
		audit:        audit,
		validator:    validate,
		logger:       logger,
	}
}

// Get returns the current personnel detail of a deliverable with its total.
func (s *PersonnelDetailService) Get(ctx context.Context, deliverableID string, actor *models.JWTClaims) (*models.PersonnelDetail, error) {
	if _, err := s.loadDeliverable(ctx, deliverableID, actor); err != nil {
		return nil, err
	}
	lines, err := s.details.ListByDeliverable(ctx, deliverableID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load personnel detail")
	}
	if lines == nil {
		lines = []models.PersonnelDetailLine{}
	}
	return &models.PersonnelDetail{DeliverableID: deliverableID, Lines: lines, Total: models.SumSubtotals(lines)}, nil
}

// Replace deletes the personnel detail of a vendor-editable deliverable and stores the new lines.
func (s *PersonnelDetailService) Replace(ctx context.Context, deliverableID string, req dto.ReplacePersonnelRequest, actor *models.JWTClaims) (*models.PersonnelDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid personnel detail payload")
	}
	deliverable, err := s.loadDeliverable(ctx, deliverableID, actor)
	if err != nil {
		return nil, err
	}
	if !deliverable.Status.VendorEditable() {
		return nil, appErrors.Clone(appErrors.ErrNotEditable, fmt.Sprintf("deliverable in status %s cannot be edited", deliverable.Status))
	}

	categories, err := s.contracts.ListStaffCategories(ctx, deliverable.ContractID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load staff categories")
	}
	lines, err := buildPersonnelLines(req.Lines, categories)
	if err != nil {
		return nil, err
	}

	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// re-check under the row lock so a concurrent submit cannot interleave
	locked, err := s.deliverables.LockForUpdateTx(ctx, tx, deliverableID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "deliverable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock deliverable")
	}
	if !locked.Status.VendorEditable() {
		err = appErrors.Clone(appErrors.ErrNotEditable, fmt.Sprintf("deliverable in status %s cannot be edited", locked.Status))
		return nil, err
	}
	if err = s.details.ReplaceTx(ctx, tx, deliverableID, lines); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace personnel detail")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit personnel detail")
	}

	detail := &models.PersonnelDetail{DeliverableID: deliverableID, Lines: lines, Total: models.SumSubtotals(lines)}
	s.emitAudit(ctx, actor, deliverableID, detail)
	return detail, nil
}

func (s *PersonnelDetailService) loadDeliverable(ctx context.Context, id string, actor *models.JWTClaims) (*models.Deliverable, error) {
	deliverable, err := s.deliverables.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "deliverable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load deliverable")
	}
	if _, err := loadScopedContract(ctx, s.contracts, deliverable.ContractID, actor); err != nil {
		return nil, err
	}
	return deliverable, nil
}

func (s *PersonnelDetailService) emitAudit(ctx context.Context, actor *models.JWTClaims, deliverableID string, detail *models.PersonnelDetail) {
	if s.audit == nil || actor == nil {
		return
	}
	payload, _ := json.Marshal(detail)
	entry := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionPersonnelReplace,
		Resource:   models.AuditResourceDeliverable,
		ResourceID: &deliverableID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "personnel-detail-service",
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

// buildPersonnelLines resolves unit rates from the contract categories and computes subtotals.
func buildPersonnelLines(inputs []dto.PersonnelLineInput, categories []models.StaffCategory) ([]models.PersonnelDetailLine, error) {
	byID := make(map[string]models.StaffCategory, len(categories))
	for _, category := range categories {
		byID[category.ID] = category
	}
	seen := make(map[string]struct{}, len(inputs))
	lines := make([]models.PersonnelDetailLine, 0, len(inputs))
	for _, input := range inputs {
		category, ok := byID[input.CategoryID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("category %s does not belong to the contract", input.CategoryID))
		}
		if _, dup := seen[input.CategoryID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("category %s is listed more than once", input.CategoryID))
		}
		seen[input.CategoryID] = struct{}{}

		rate := category.UnitRate
		if input.UnitRate != nil {
			if input.UnitRate.IsNegative() {
				return nil, appErrors.Clone(appErrors.ErrValidation, "unitRate must not be negative")
			}
			rate = *input.UnitRate
		}
		line := models.PersonnelDetailLine{
			CategoryID:     input.CategoryID,
			ReportedCount:  input.ReportedCount,
			ValidatedCount: input.ValidatedCount,
			UnitRate:       rate,
		}
		line.ComputeSubtotal()
		lines = append(lines, line)
	}
	return lines, nil
}
