package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// contracts, contract_deliverable_types, contract_staff_categories and payments
// belong to the contracts module; only the deliverable tables and the payment
// uniqueness guard are owned here.
var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "pgcrypto";`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'deliverable_status') THEN
			CREATE TYPE deliverable_status AS ENUM ('PENDING', 'IN_REVIEW', 'APPROVED', 'REJECTED');
		END IF;
	END
	$$;`,
	`CREATE TABLE IF NOT EXISTS deliverables (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		contract_id UUID NOT NULL REFERENCES contracts(id),
		period_number INTEGER NOT NULL CHECK (period_number > 0),
		period_start DATE NOT NULL,
		period_end DATE NOT NULL,
		periodicity VARCHAR(16) NOT NULL,
		status deliverable_status NOT NULL DEFAULT 'PENDING',
		calculated_amount NUMERIC(18,2),
		approved_amount NUMERIC(18,2),
		submitted_at TIMESTAMPTZ,
		reviewed_at TIMESTAMPTZ,
		reviewed_by UUID,
		rejection_notes TEXT,
		payment_id UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT chk_deliverable_period CHECK (period_start <= period_end),
		CONSTRAINT chk_deliverable_approved_payment CHECK (status <> 'APPROVED' OR payment_id IS NOT NULL)
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_deliverables_contract_period ON deliverables (contract_id, period_number);`,
	`CREATE INDEX IF NOT EXISTS idx_deliverables_status ON deliverables (status);`,
	`CREATE INDEX IF NOT EXISTS idx_deliverables_review_queue ON deliverables (submitted_at) WHERE status = 'IN_REVIEW';`,
	`CREATE TABLE IF NOT EXISTS deliverable_personnel_details (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		deliverable_id UUID NOT NULL REFERENCES deliverables(id),
		category_id UUID NOT NULL REFERENCES contract_staff_categories(id),
		reported_count INTEGER NOT NULL CHECK (reported_count >= 0),
		validated_count INTEGER NOT NULL CHECK (validated_count >= 0),
		unit_rate NUMERIC(18,2) NOT NULL CHECK (unit_rate >= 0),
		subtotal NUMERIC(18,2) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_personnel_detail_category ON deliverable_personnel_details (deliverable_id, category_id);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_payments_deliverable ON payments (deliverable_id) WHERE deliverable_id IS NOT NULL;`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id UUID PRIMARY KEY,
		user_id UUID,
		action VARCHAR(64) NOT NULL,
		resource VARCHAR(64) NOT NULL,
		resource_id UUID,
		old_values JSONB,
		new_values JSONB,
		ip_address VARCHAR(64) NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
}

// Migrate applies the idempotent schema statements in order.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range migrationStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
