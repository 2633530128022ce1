package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
)

// PersonnelDetailRepository persists the per-category personnel ledger of deliverables.
type PersonnelDetailRepository struct {
	db *sqlx.DB
}

// NewPersonnelDetailRepository constructs the repository.
func NewPersonnelDetailRepository(db *sqlx.DB) *PersonnelDetailRepository {
	return &PersonnelDetailRepository{db: db}
}

// ListByDeliverable returns the current detail lines of a deliverable.
func (r *PersonnelDetailRepository) ListByDeliverable(ctx context.Context, deliverableID string) ([]models.PersonnelDetailLine, error) {
	const query = `SELECT id, deliverable_id, category_id, reported_count, validated_count, unit_rate, subtotal, created_at
	FROM deliverable_personnel_details WHERE deliverable_id = $1 ORDER BY created_at, id`
	var lines []models.PersonnelDetailLine
	if err := r.db.SelectContext(ctx, &lines, query, deliverableID); err != nil {
		return nil, fmt.Errorf("list personnel detail: %w", err)
	}
	return lines, nil
}

// ReplaceTx deletes every line of the deliverable and inserts the provided set.
func (r *PersonnelDetailRepository) ReplaceTx(ctx context.Context, tx *sqlx.Tx, deliverableID string, lines []models.PersonnelDetailLine) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM deliverable_personnel_details WHERE deliverable_id = $1", deliverableID); err != nil {
		return fmt.Errorf("clear personnel detail: %w", err)
	}
	const insertLine = `INSERT INTO deliverable_personnel_details
	(id, deliverable_id, category_id, reported_count, validated_count, unit_rate, subtotal, created_at)
	VALUES (:id, :deliverable_id, :category_id, :reported_count, :validated_count, :unit_rate, :subtotal, :created_at)`
	now := time.Now().UTC()
	for i := range lines {
		if lines[i].ID == "" {
			lines[i].ID = uuid.NewString()
		}
		lines[i].DeliverableID = deliverableID
		if lines[i].CreatedAt.IsZero() {
			lines[i].CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, insertLine, lines[i]); err != nil {
			return fmt.Errorf("insert personnel detail line: %w", err)
		}
	}
	return nil
}
