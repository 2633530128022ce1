package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/dto"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/repository"
	"github.com/julioctb/Dashboard-pletorica-sub001/pkg/database"
	appErrors "github.com/julioctb/Dashboard-pletorica-sub001/pkg/errors"
)

type deliverableStore interface {
	ListByContract(ctx context.Context, contractID string) ([]models.Deliverable, error)
	GetByID(ctx context.Context, id string) (*models.Deliverable, error)
	Submit(ctx context.Context, params repository.SubmitParams) error
	ApproveTx(ctx context.Context, tx *sqlx.Tx, params repository.ReviewParams) error
	Reject(ctx context.Context, params repository.ReviewParams) error
}

type paymentCreator interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, payment *models.Payment) error
}

type contractLookup interface {
	GetByID(ctx context.Context, id string) (*models.Contract, error)
}

type periodSynchronizer interface {
	Synchronize(ctx context.Context, contractID string) (int, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type auditTrail interface {
	auditLogger
	ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error)
}

// DeliverableService drives deliverables through submission and review.
type DeliverableService struct {
	deliverables deliverableStore
	payments     paymentCreator
	contracts    contractLookup
	sync         periodSynchronizer
	tx           txProvider
	audit        auditTrail
	cache        *CacheService
	metrics      *MetricsService
	logger       *zap.Logger
	now          func() time.Time
}

// DeliverableServiceOption configures the service.
type DeliverableServiceOption func(*DeliverableService)

// WithDeliverableAudit records transitions in the audit trail.
func WithDeliverableAudit(audit auditTrail) DeliverableServiceOption {
	return func(s *DeliverableService) { s.audit = audit }
}

// WithDeliverableCache invalidates cached stats after transitions.
func WithDeliverableCache(cache *CacheService) DeliverableServiceOption {
	return func(s *DeliverableService) { s.cache = cache }
}

// WithDeliverableMetrics counts transitions.
func WithDeliverableMetrics(metrics *MetricsService) DeliverableServiceOption {
	return func(s *DeliverableService) { s.metrics = metrics }
}

// WithDeliverableClock overrides the time source.
func WithDeliverableClock(now func() time.Time) DeliverableServiceOption {
	return func(s *DeliverableService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewDeliverableService constructs the service.
func NewDeliverableService(
	deliverables deliverableStore,
	payments paymentCreator,
	contracts contractLookup,
	sync periodSynchronizer,
	tx txProvider,
	logger *zap.Logger,
	opts ...DeliverableServiceOption,
) *DeliverableService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &DeliverableService{
		deliverables: deliverables,
		payments:     payments,
		contracts:    contracts,
		sync:         sync,
		tx:           tx,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// List synchronises the contract periods and returns every deliverable of the contract.
// The second value is the number of periods created by this call.
func (s *DeliverableService) List(ctx context.Context, contractID string, actor *models.JWTClaims) ([]models.DeliverableView, int, error) {
	if _, err := s.loadContract(ctx, contractID, actor); err != nil {
		return nil, 0, err
	}
	created, err := s.sync.Synchronize(ctx, contractID)
	if err != nil {
		return nil, created, err
	}
	deliverables, err := s.deliverables.ListByContract(ctx, contractID)
	if err != nil {
		return nil, created, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list deliverables")
	}
	views := make([]models.DeliverableView, 0, len(deliverables))
	for _, d := range deliverables {
		views = append(views, models.NewDeliverableView(d))
	}
	return views, created, nil
}

// Get returns a deliverable the actor may see.
func (s *DeliverableService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.DeliverableView, error) {
	deliverable, _, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	view := models.NewDeliverableView(*deliverable)
	return &view, nil
}

// History returns the audit trail of a deliverable, newest first.
func (s *DeliverableService) History(ctx context.Context, id string, actor *models.JWTClaims) ([]models.AuditLog, error) {
	if _, _, err := s.load(ctx, id, actor); err != nil {
		return nil, err
	}
	if s.audit == nil {
		return []models.AuditLog{}, nil
	}
	logs, err := s.audit.ListByResource(ctx, models.AuditResourceDeliverable, id, 100)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load deliverable history")
	}
	return logs, nil
}

// Submit moves a PENDING or REJECTED deliverable into review.
func (s *DeliverableService) Submit(ctx context.Context, id string, req dto.SubmitDeliverableRequest, actor *models.JWTClaims) (*models.DeliverableView, error) {
	if req.CalculatedAmount != nil && req.CalculatedAmount.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "calculatedAmount must not be negative")
	}
	deliverable, contract, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if !deliverable.Status.CanTransition(models.DeliverableStatusInReview) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot submit a deliverable in status %s", deliverable.Status))
	}
	old := snapshotDeliverable(deliverable)

	now := s.now().UTC()
	if err := s.deliverables.Submit(ctx, repository.SubmitParams{
		ID:               id,
		SubmittedAt:      now,
		CalculatedAmount: req.CalculatedAmount,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "deliverable was modified concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit deliverable")
	}

	deliverable.Status = models.DeliverableStatusInReview
	deliverable.SubmittedAt = &now
	deliverable.RejectionNotes = nil
	deliverable.UpdatedAt = now
	if req.CalculatedAmount != nil {
		deliverable.CalculatedAmount = decimal.NewNullDecimal(*req.CalculatedAmount)
	}
	s.afterTransition(ctx, models.TransitionSubmit, models.AuditActionDeliverableSubmit, actor, contract, deliverable, old)
	view := models.NewDeliverableView(*deliverable)
	return &view, nil
}

// Approve accepts an in-review deliverable and creates its payment in the same transaction.
func (s *DeliverableService) Approve(ctx context.Context, id string, req dto.ApproveDeliverableRequest, actor *models.JWTClaims) (*models.DeliverableView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.IsVendor() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "vendors cannot review deliverables")
	}
	if !req.ApprovedAmount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "approvedAmount must be greater than zero")
	}
	deliverable, contract, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if !deliverable.Status.Reviewable() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot approve a deliverable in status %s", deliverable.Status))
	}
	if contract.MaxAmount.Valid && req.ApprovedAmount.GreaterThan(contract.MaxAmount.Decimal) {
		return nil, appErrors.Clone(appErrors.ErrAmountExceedsCap,
			fmt.Sprintf("approved amount %s exceeds contract maximum %s", req.ApprovedAmount.StringFixed(2), contract.MaxAmount.Decimal.StringFixed(2)))
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	old := snapshotDeliverable(deliverable)
	now := s.now().UTC()

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	deliverableID := deliverable.ID
	payment := &models.Payment{
		ContractID:    deliverable.ContractID,
		DeliverableID: &deliverableID,
		Amount:        req.ApprovedAmount,
		Concept:       fmt.Sprintf("Deliverable %d: %s", deliverable.PeriodNumber, deliverable.PeriodLabel()),
		Status:        models.PaymentStatusPending,
		CreatedAt:     now,
	}
	if err = s.payments.CreateTx(ctx, tx, payment); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "deliverable was already approved")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create payment")
	}
	if err = s.deliverables.ApproveTx(ctx, tx, repository.ReviewParams{
		ID:             deliverable.ID,
		ReviewerID:     actor.UserID,
		ReviewedAt:     now,
		ApprovedAmount: req.ApprovedAmount,
		PaymentID:      payment.ID,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "deliverable was reviewed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve deliverable")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit approval")
	}

	reviewer := actor.UserID
	deliverable.Status = models.DeliverableStatusApproved
	deliverable.ApprovedAmount = decimal.NewNullDecimal(req.ApprovedAmount)
	deliverable.PaymentID = &payment.ID
	deliverable.ReviewedBy = &reviewer
	deliverable.ReviewedAt = &now
	deliverable.UpdatedAt = now
	s.afterTransition(ctx, models.TransitionApprove, models.AuditActionDeliverableApprove, actor, contract, deliverable, old)
	view := models.NewDeliverableView(*deliverable)
	return &view, nil
}

// Reject returns an in-review deliverable to the vendor with mandatory notes.
func (s *DeliverableService) Reject(ctx context.Context, id string, req dto.RejectDeliverableRequest, actor *models.JWTClaims) (*models.DeliverableView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.IsVendor() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "vendors cannot review deliverables")
	}
	notes := strings.TrimSpace(req.Notes)
	if notes == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection notes are required")
	}
	deliverable, contract, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if !deliverable.Status.Reviewable() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot reject a deliverable in status %s", deliverable.Status))
	}
	old := snapshotDeliverable(deliverable)
	now := s.now().UTC()
	if err := s.deliverables.Reject(ctx, repository.ReviewParams{
		ID:         id,
		ReviewerID: actor.UserID,
		ReviewedAt: now,
		Notes:      notes,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "deliverable was reviewed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject deliverable")
	}

	reviewer := actor.UserID
	deliverable.Status = models.DeliverableStatusRejected
	deliverable.RejectionNotes = &notes
	deliverable.ReviewedBy = &reviewer
	deliverable.ReviewedAt = &now
	deliverable.UpdatedAt = now
	s.afterTransition(ctx, models.TransitionReject, models.AuditActionDeliverableReject, actor, contract, deliverable, old)
	view := models.NewDeliverableView(*deliverable)
	return &view, nil
}

func (s *DeliverableService) load(ctx context.Context, id string, actor *models.JWTClaims) (*models.Deliverable, *models.Contract, error) {
	deliverable, err := s.deliverables.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "deliverable not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load deliverable")
	}
	contract, err := s.loadContract(ctx, deliverable.ContractID, actor)
	if err != nil {
		return nil, nil, err
	}
	return deliverable, contract, nil
}

func (s *DeliverableService) loadContract(ctx context.Context, contractID string, actor *models.JWTClaims) (*models.Contract, error) {
	return loadScopedContract(ctx, s.contracts, contractID, actor)
}

// loadScopedContract loads a contract and enforces that vendors only reach their own company's contracts.
func loadScopedContract(ctx context.Context, contracts contractLookup, contractID string, actor *models.JWTClaims) (*models.Contract, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	contract, err := contracts.GetByID(ctx, contractID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "contract not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contract")
	}
	if actor.IsVendor() && (actor.CompanyID == "" || actor.CompanyID != contract.CompanyID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "contract belongs to another company")
	}
	return contract, nil
}

func (s *DeliverableService) afterTransition(ctx context.Context, transition, action string, actor *models.JWTClaims, contract *models.Contract, deliverable *models.Deliverable, old []byte) {
	s.metrics.RecordTransition(transition)
	s.cache.InvalidateContract(ctx, contract.ID, contract.CompanyID)
	s.logger.Info("deliverable transition",
		zap.String("transition", transition),
		zap.String("deliverable_id", deliverable.ID),
		zap.String("contract_id", contract.ID),
		zap.String("status", string(deliverable.Status)),
		zap.String("actor_id", actor.UserID))
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   models.AuditResourceDeliverable,
		ResourceID: &deliverable.ID,
		OldValues:  old,
		NewValues:  snapshotDeliverable(deliverable),
	})
}

func (s *DeliverableService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "deliverable-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func snapshotDeliverable(d *models.Deliverable) []byte {
	payload, err := json.Marshal(d)
	if err != nil {
		return nil
	}
	return payload
}
