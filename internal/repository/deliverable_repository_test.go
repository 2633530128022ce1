package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/period"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var deliverableRowColumns = []string{
	"id", "contract_id", "period_number", "period_start", "period_end", "periodicity", "status",
	"calculated_amount", "approved_amount", "submitted_at", "reviewed_at", "reviewed_by", "rejection_notes",
	"payment_id", "created_at", "updated_at",
}

func addDeliverableRow(rows *sqlmock.Rows, id string, number int, status models.DeliverableStatus) *sqlmock.Rows {
	start := time.Date(2025, time.Month(number), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	now := time.Now()
	return rows.AddRow(id, "contract-1", number, start, end, "MONTHLY", string(status),
		nil, nil, nil, nil, nil, nil, nil, now, now)
}

func TestDeliverableRepositoryListByContract(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows(deliverableRowColumns)
	addDeliverableRow(rows, "d-1", 1, models.DeliverableStatusApproved)
	addDeliverableRow(rows, "d-2", 2, models.DeliverableStatusPending)
	mock.ExpectQuery(regexp.QuoteMeta("FROM deliverables WHERE contract_id = $1 ORDER BY period_number ASC")).
		WithArgs("contract-1").
		WillReturnRows(rows)

	list, err := NewDeliverableRepository(db).ListByContract(context.Background(), "contract-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, period.Monthly, list[0].Periodicity)
	assert.Equal(t, models.DeliverableStatusPending, list[1].Status)
	assert.False(t, list[1].CalculatedAmount.Valid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliverableRepositoryLatestWithoutRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY period_number DESC LIMIT 1")).
		WithArgs("contract-1").
		WillReturnRows(sqlmock.NewRows(deliverableRowColumns))

	latest, err := NewDeliverableRepository(db).Latest(context.Background(), "contract-1")
	require.NoError(t, err)
	assert.Nil(t, latest)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliverableRepositoryInsertPeriod(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDeliverableRepository(db)

	newRow := func(n int) *models.Deliverable {
		return &models.Deliverable{
			ContractID:   "contract-1",
			PeriodNumber: n,
			PeriodStart:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:    time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
			Periodicity:  period.Monthly,
		}
	}

	insert := regexp.QuoteMeta("INSERT INTO deliverables") + "(?s).*" + regexp.QuoteMeta("ON CONFLICT (contract_id, period_number) DO NOTHING")
	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insert).WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectExec(insert).WillReturnError(errors.New("connection reset"))

	first := newRow(1)
	created, err := repo.InsertPeriod(context.Background(), first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, models.DeliverableStatusPending, first.Status)

	created, err = repo.InsertPeriod(context.Background(), newRow(1))
	require.NoError(t, err)
	assert.False(t, created)

	created, err = repo.InsertPeriod(context.Background(), newRow(1))
	require.NoError(t, err)
	assert.False(t, created)

	_, err = repo.InsertPeriod(context.Background(), newRow(2))
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliverableRepositorySubmit(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDeliverableRepository(db)

	amount := decimal.NewFromInt(6500)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE deliverables SET status = ?, submitted_at = ?, rejection_notes = NULL") + ".*calculated_amount = \\?.*" + regexp.QuoteMeta("status IN ('PENDING', 'REJECTED')")).
		WithArgs(models.DeliverableStatusInReview, sqlmock.AnyArg(), sqlmock.AnyArg(), amount, "d-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Submit(context.Background(), SubmitParams{ID: "d-1", SubmittedAt: time.Now(), CalculatedAmount: &amount}))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE deliverables SET")).
		WithArgs(models.DeliverableStatusInReview, sqlmock.AnyArg(), sqlmock.AnyArg(), "d-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Submit(context.Background(), SubmitParams{ID: "d-1", SubmittedAt: time.Now()})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliverableRepositoryApproveTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDeliverableRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE deliverables SET status = ?, approved_amount = ?") + "(?s).*" + regexp.QuoteMeta("status = 'IN_REVIEW'")).
		WithArgs(models.DeliverableStatusApproved, decimal.NewFromInt(6500), "pay-1", "reviewer-1", sqlmock.AnyArg(), sqlmock.AnyArg(), "d-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, repo.ApproveTx(context.Background(), tx, ReviewParams{
		ID:             "d-1",
		ReviewerID:     "reviewer-1",
		ReviewedAt:     time.Now(),
		ApprovedAmount: decimal.NewFromInt(6500),
		PaymentID:      "pay-1",
	}))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliverableRepositoryRejectLostRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE deliverables SET status = ?, rejection_notes = ?")).
		WithArgs(models.DeliverableStatusRejected, "missing evidence", "reviewer-1", sqlmock.AnyArg(), sqlmock.AnyArg(), "d-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewDeliverableRepository(db).Reject(context.Background(), ReviewParams{
		ID:         "d-1",
		ReviewerID: "reviewer-1",
		ReviewedAt: time.Now(),
		Notes:      "missing evidence",
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliverableRepositoryLockForUpdateTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	rows := sqlmock.NewRows(deliverableRowColumns)
	addDeliverableRow(rows, "d-1", 1, models.DeliverableStatusRejected)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 FOR UPDATE")).WithArgs("d-1").WillReturnRows(rows)
	mock.ExpectRollback()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	deliverable, err := NewDeliverableRepository(db).LockForUpdateTx(context.Background(), tx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, models.DeliverableStatusRejected, deliverable.Status)
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliverableRepositoryCountApprovedWithoutPayment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDeliverableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("status = 'APPROVED' AND payment_id IS NULL AND contract_id = $1")).
		WithArgs("contract-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("status = 'APPROVED' AND payment_id IS NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountApprovedWithoutPayment(context.Background(), "contract-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = repo.CountApprovedWithoutPayment(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliverableRepositoryListReviewQueue(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM deliverables d JOIN contracts c")).
		WithArgs("company-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	columns := append(append([]string{}, deliverableRowColumns...), "contract_code", "company_id")
	now := time.Now()
	rows := sqlmock.NewRows(columns).AddRow(
		"d-1", "contract-1", 1, now, now, "BIWEEKLY", "IN_REVIEW",
		"6500.00", nil, now, nil, nil, nil, nil, now, now,
		"CT-001", "company-1",
	)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY d.submitted_at ASC, d.id ASC LIMIT 20 OFFSET 20")).
		WithArgs("company-1").
		WillReturnRows(rows)

	items, total, err := NewDeliverableRepository(db).ListReviewQueue(context.Background(), models.ReviewQueueFilter{
		CompanyID: "company-1",
		Limit:     20,
		Offset:    20,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "CT-001", items[0].ContractCode)
	assert.True(t, items[0].CalculatedAmount.Decimal.Equal(decimal.NewFromInt(6500)))
	require.NoError(t, mock.ExpectationsWereMet())
}
