package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
)

const rollupSelect = `SELECT
	COUNT(*) FILTER (WHERE d.status = 'PENDING') AS pending,
	COUNT(*) FILTER (WHERE d.status = 'IN_REVIEW') AS in_review,
	COUNT(*) FILTER (WHERE d.status = 'APPROVED') AS approved,
	COUNT(*) FILTER (WHERE d.status = 'REJECTED') AS rejected,
	COALESCE(SUM(d.approved_amount) FILTER (WHERE d.status = 'APPROVED'), 0) AS approved_total`

// StatsRepository runs the read-only rollups behind deliverable dashboards.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository constructs the repository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// ContractRollup counts deliverables per status and sums approved amounts for one contract.
func (r *StatsRepository) ContractRollup(ctx context.Context, contractID string) (models.DeliverableRollup, error) {
	query := rollupSelect + ` FROM deliverables d WHERE d.contract_id = $1`
	var rollup models.DeliverableRollup
	if err := r.db.GetContext(ctx, &rollup, query, contractID); err != nil {
		return models.DeliverableRollup{}, fmt.Errorf("contract rollup: %w", err)
	}
	return rollup, nil
}

// CompanyRollup aggregates deliverables across every contract of a company.
func (r *StatsRepository) CompanyRollup(ctx context.Context, companyID string) (models.DeliverableRollup, error) {
	query := rollupSelect + ` FROM deliverables d JOIN contracts c ON c.id = d.contract_id WHERE c.company_id = $1`
	var rollup models.DeliverableRollup
	if err := r.db.GetContext(ctx, &rollup, query, companyID); err != nil {
		return models.DeliverableRollup{}, fmt.Errorf("company rollup: %w", err)
	}
	return rollup, nil
}

// ContractPaidTotal sums settled payments of a contract.
func (r *StatsRepository) ContractPaidTotal(ctx context.Context, contractID string) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE contract_id = $1 AND status = $2`
	var total decimal.Decimal
	if err := r.db.GetContext(ctx, &total, query, contractID, models.PaymentStatusPaid); err != nil {
		return decimal.Zero, fmt.Errorf("contract paid total: %w", err)
	}
	return total, nil
}

// CompanyPaidTotal sums settled payments across the contracts of a company.
func (r *StatsRepository) CompanyPaidTotal(ctx context.Context, companyID string) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(p.amount), 0) FROM payments p JOIN contracts c ON c.id = p.contract_id
	WHERE c.company_id = $1 AND p.status = $2`
	var total decimal.Decimal
	if err := r.db.GetContext(ctx, &total, query, companyID, models.PaymentStatusPaid); err != nil {
		return decimal.Zero, fmt.Errorf("company paid total: %w", err)
	}
	return total, nil
}

// CountCompanyContracts counts the contracts held by a company.
func (r *StatsRepository) CountCompanyContracts(ctx context.Context, companyID string) (int, error) {
	const query = `SELECT COUNT(*) FROM contracts WHERE company_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, companyID); err != nil {
		return 0, fmt.Errorf("count company contracts: %w", err)
	}
	return count, nil
}
