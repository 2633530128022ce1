package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
)

// ContractRepository reads the contract data deliverables depend on.
// Contracts, their deliverable types and staff categories are owned by the contracts module.
type ContractRepository struct {
	db *sqlx.DB
}

// NewContractRepository constructs the repository.
func NewContractRepository(db *sqlx.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

// GetByID fetches a contract by identifier.
func (r *ContractRepository) GetByID(ctx context.Context, id string) (*models.Contract, error) {
	const query = `SELECT id, company_id, code, start_date, end_date, max_amount, status FROM contracts WHERE id = $1`
	var contract models.Contract
	if err := r.db.GetContext(ctx, &contract, query, id); err != nil {
		return nil, err
	}
	return &contract, nil
}

// PrimaryDeliverableType returns the deliverable type configuration that governs period generation.
func (r *ContractRepository) PrimaryDeliverableType(ctx context.Context, contractID string) (*models.DeliverableTypeConfig, error) {
	const query = `SELECT contract_id, deliverable_type, periodicity, required, description, instructions, created_at
	FROM contract_deliverable_types WHERE contract_id = $1
	ORDER BY created_at ASC, deliverable_type ASC LIMIT 1`
	var config models.DeliverableTypeConfig
	if err := r.db.GetContext(ctx, &config, query, contractID); err != nil {
		return nil, err
	}
	return &config, nil
}

// ListSyncableIDs returns the ids of contracts whose deliverables may still be generated.
func (r *ContractRepository) ListSyncableIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT id FROM contracts WHERE status IN ($1, $2) ORDER BY id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, models.ContractStatusDraft, models.ContractStatusActive); err != nil {
		return nil, fmt.Errorf("list syncable contracts: %w", err)
	}
	return ids, nil
}

// ListStaffCategories returns the billable categories of a contract.
func (r *ContractRepository) ListStaffCategories(ctx context.Context, contractID string) ([]models.StaffCategory, error) {
	const query = `SELECT id, contract_id, name, unit_rate FROM contract_staff_categories WHERE contract_id = $1 ORDER BY name`
	var categories []models.StaffCategory
	if err := r.db.SelectContext(ctx, &categories, query, contractID); err != nil {
		return nil, fmt.Errorf("list staff categories: %w", err)
	}
	return categories, nil
}
