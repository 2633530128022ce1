package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
	"github.com/julioctb/Dashboard-pletorica-sub001/pkg/database"
)

const deliverableColumns = `id, contract_id, period_number, period_start, period_end, periodicity, status,
       calculated_amount, approved_amount, submitted_at, reviewed_at, reviewed_by, rejection_notes,
       payment_id, created_at, updated_at`

const deliverableColumnsAliased = `d.id, d.contract_id, d.period_number, d.period_start, d.period_end, d.periodicity, d.status,
       d.calculated_amount, d.approved_amount, d.submitted_at, d.reviewed_at, d.reviewed_by, d.rejection_notes,
       d.payment_id, d.created_at, d.updated_at`

// DeliverableRepository persists deliverables and guards their status transitions.
type DeliverableRepository struct {
	db *sqlx.DB
}

// NewDeliverableRepository constructs the repository.
func NewDeliverableRepository(db *sqlx.DB) *DeliverableRepository {
	return &DeliverableRepository{db: db}
}

// ListByContract returns every deliverable of a contract ordered by period number.
func (r *DeliverableRepository) ListByContract(ctx context.Context, contractID string) ([]models.Deliverable, error) {
	query := `SELECT ` + deliverableColumns + ` FROM deliverables WHERE contract_id = $1 ORDER BY period_number ASC`
	var deliverables []models.Deliverable
	if err := r.db.SelectContext(ctx, &deliverables, query, contractID); err != nil {
		return nil, fmt.Errorf("list deliverables: %w", err)
	}
	return deliverables, nil
}

// GetByID fetches a deliverable by identifier.
func (r *DeliverableRepository) GetByID(ctx context.Context, id string) (*models.Deliverable, error) {
	query := `SELECT ` + deliverableColumns + ` FROM deliverables WHERE id = $1`
	var deliverable models.Deliverable
	if err := r.db.GetContext(ctx, &deliverable, query, id); err != nil {
		return nil, err
	}
	return &deliverable, nil
}

// Latest returns the deliverable with the highest period number, or nil when the contract has none.
func (r *DeliverableRepository) Latest(ctx context.Context, contractID string) (*models.Deliverable, error) {
	query := `SELECT ` + deliverableColumns + ` FROM deliverables WHERE contract_id = $1 ORDER BY period_number DESC LIMIT 1`
	var deliverable models.Deliverable
	if err := r.db.GetContext(ctx, &deliverable, query, contractID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest deliverable: %w", err)
	}
	return &deliverable, nil
}

// InsertPeriod creates a PENDING deliverable unless one already exists for the same period number.
// It reports whether a row was written.
func (r *DeliverableRepository) InsertPeriod(ctx context.Context, deliverable *models.Deliverable) (bool, error) {
	if deliverable.ID == "" {
		deliverable.ID = uuid.NewString()
	}
	deliverable.Status = models.DeliverableStatusPending
	now := time.Now().UTC()
	if deliverable.CreatedAt.IsZero() {
		deliverable.CreatedAt = now
	}
	deliverable.UpdatedAt = deliverable.CreatedAt

	const query = `INSERT INTO deliverables
	(id, contract_id, period_number, period_start, period_end, periodicity, status, created_at, updated_at)
	VALUES (:id, :contract_id, :period_number, :period_start, :period_end, :periodicity, :status, :created_at, :updated_at)
	ON CONFLICT (contract_id, period_number) DO NOTHING`
	result, err := r.db.NamedExecContext(ctx, query, deliverable)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert deliverable period %d: %w", deliverable.PeriodNumber, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check deliverable insert rows: %w", err)
	}
	return rows > 0, nil
}

// SubmitParams groups the columns written when a deliverable enters review.
type SubmitParams struct {
	ID               string
	SubmittedAt      time.Time
	CalculatedAmount *decimal.Decimal
}

// Submit moves a vendor-editable deliverable into review. It returns sql.ErrNoRows when the
// deliverable is no longer PENDING or REJECTED.
func (r *DeliverableRepository) Submit(ctx context.Context, params SubmitParams) error {
	setParts := []string{
		"status = :status",
		"submitted_at = :submitted_at",
		"rejection_notes = NULL",
		"updated_at = :submitted_at",
	}
	args := map[string]interface{}{
		"id":           params.ID,
		"status":       models.DeliverableStatusInReview,
		"submitted_at": params.SubmittedAt,
	}
	if params.CalculatedAmount != nil {
		setParts = append(setParts, "calculated_amount = :calculated_amount")
		args["calculated_amount"] = *params.CalculatedAmount
	}
	query := fmt.Sprintf("UPDATE deliverables SET %s WHERE id = :id AND status IN ('%s', '%s')",
		strings.Join(setParts, ", "),
		models.DeliverableStatusPending,
		models.DeliverableStatusRejected,
	)
	result, err := r.db.NamedExecContext(ctx, query, args)
	if err != nil {
		return fmt.Errorf("submit deliverable: %w", err)
	}
	return expectOneRow(result, "submit deliverable")
}

// ReviewParams groups the columns written by a reviewer decision.
type ReviewParams struct {
	ID             string
	ReviewerID     string
	ReviewedAt     time.Time
	ApprovedAmount decimal.Decimal
	PaymentID      string
	Notes          string
}

// ApproveTx marks an in-review deliverable as approved inside the caller's transaction.
// It returns sql.ErrNoRows when another reviewer already acted on the deliverable.
func (r *DeliverableRepository) ApproveTx(ctx context.Context, tx *sqlx.Tx, params ReviewParams) error {
	query := fmt.Sprintf(`UPDATE deliverables SET status = :status, approved_amount = :approved_amount,
	payment_id = :payment_id, reviewed_by = :reviewed_by, reviewed_at = :reviewed_at, updated_at = :reviewed_at
	WHERE id = :id AND status = '%s'`, models.DeliverableStatusInReview)
	result, err := tx.NamedExecContext(ctx, query, map[string]interface{}{
		"id":              params.ID,
		"status":          models.DeliverableStatusApproved,
		"approved_amount": params.ApprovedAmount,
		"payment_id":      params.PaymentID,
		"reviewed_by":     params.ReviewerID,
		"reviewed_at":     params.ReviewedAt,
	})
	if err != nil {
		return fmt.Errorf("approve deliverable: %w", err)
	}
	return expectOneRow(result, "approve deliverable")
}

// Reject records the rejection of an in-review deliverable.
// It returns sql.ErrNoRows when the deliverable is no longer IN_REVIEW.
func (r *DeliverableRepository) Reject(ctx context.Context, params ReviewParams) error {
	query := fmt.Sprintf(`UPDATE deliverables SET status = :status, rejection_notes = :rejection_notes,
	reviewed_by = :reviewed_by, reviewed_at = :reviewed_at, updated_at = :reviewed_at
	WHERE id = :id AND status = '%s'`, models.DeliverableStatusInReview)
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":              params.ID,
		"status":          models.DeliverableStatusRejected,
		"rejection_notes": params.Notes,
		"reviewed_by":     params.ReviewerID,
		"reviewed_at":     params.ReviewedAt,
	})
	if err != nil {
		return fmt.Errorf("reject deliverable: %w", err)
	}
	return expectOneRow(result, "reject deliverable")
}

// LockForUpdateTx reads a deliverable and holds its row lock until the transaction ends.
func (r *DeliverableRepository) LockForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Deliverable, error) {
	query := `SELECT ` + deliverableColumns + ` FROM deliverables WHERE id = $1 FOR UPDATE`
	var deliverable models.Deliverable
	if err := tx.GetContext(ctx, &deliverable, query, id); err != nil {
		return nil, err
	}
	return &deliverable, nil
}

// CountApprovedWithoutPayment counts approved deliverables lacking a payment reference.
// An empty contractID counts across all contracts.
func (r *DeliverableRepository) CountApprovedWithoutPayment(ctx context.Context, contractID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM deliverables WHERE status = '%s' AND payment_id IS NULL`, models.DeliverableStatusApproved)
	args := []interface{}{}
	if contractID != "" {
		query += " AND contract_id = $1"
		args = append(args, contractID)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count approved deliverables without payment: %w", err)
	}
	return count, nil
}

// ListReviewQueue returns IN_REVIEW deliverables, oldest submission first, with the total match count.
func (r *DeliverableRepository) ListReviewQueue(ctx context.Context, filter models.ReviewQueueFilter) ([]models.ReviewQueueItem, int, error) {
	args := make([]interface{}, 0, 2)
	conditions := []string{fmt.Sprintf("d.status = '%s'", models.DeliverableStatusInReview)}
	if filter.CompanyID != "" {
		args = append(args, filter.CompanyID)
		conditions = append(conditions, fmt.Sprintf("c.company_id = $%d", len(args)))
	}
	if filter.ContractID != "" {
		args = append(args, filter.ContractID)
		conditions = append(conditions, fmt.Sprintf("d.contract_id = $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")
	from := " FROM deliverables d JOIN contracts c ON c.id = d.contract_id"

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+from+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count review queue: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := "SELECT " + deliverableColumnsAliased + ", c.code AS contract_code, c.company_id" + from + where +
		fmt.Sprintf(" ORDER BY d.submitted_at ASC, d.id ASC LIMIT %d OFFSET %d", limit, offset)

	var items []models.ReviewQueueItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list review queue: %w", err)
	}
	return items, total, nil
}

func expectOneRow(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
