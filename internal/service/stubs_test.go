package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/period"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/repository"
	appErrors "github.com/julioctb/Dashboard-pletorica-sub001/pkg/errors"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

func vendorClaims(companyID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "vendor-1", Role: models.RoleVendor, CompanyID: companyID}
}

func reviewerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "reviewer-1", Role: models.RoleReviewer}
}

// contractStub serves contracts, deliverable configuration and staff categories from memory.
type contractStub struct {
	contracts  map[string]*models.Contract
	configs    map[string]*models.DeliverableTypeConfig
	categories map[string][]models.StaffCategory
	err        error
}

func newContractStub(contracts ...*models.Contract) *contractStub {
	stub := &contractStub{
		contracts:  map[string]*models.Contract{},
		configs:    map[string]*models.DeliverableTypeConfig{},
		categories: map[string][]models.StaffCategory{},
	}
	for _, c := range contracts {
		stub.contracts[c.ID] = c
	}
	return stub
}

func (s *contractStub) withPeriodicity(contractID string, p period.Periodicity) *contractStub {
	s.configs[contractID] = &models.DeliverableTypeConfig{ContractID: contractID, DeliverableType: "PERSONNEL_REPORT", Periodicity: p, Required: true}
	return s
}

func (s *contractStub) GetByID(ctx context.Context, id string) (*models.Contract, error) {
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.contracts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	dup := *c
	return &dup, nil
}

func (s *contractStub) PrimaryDeliverableType(ctx context.Context, contractID string) (*models.DeliverableTypeConfig, error) {
	cfg, ok := s.configs[contractID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cfg, nil
}

func (s *contractStub) ListStaffCategories(ctx context.Context, contractID string) ([]models.StaffCategory, error) {
	return s.categories[contractID], nil
}

func (s *contractStub) ListSyncableIDs(ctx context.Context) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	ids := make([]string, 0, len(s.contracts))
	for id, c := range s.contracts {
		if c.Status.Syncable() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func newContract(id, companyID string, start, end time.Time) *models.Contract {
	return &models.Contract{
		ID:        id,
		CompanyID: companyID,
		Code:      "CT-" + id,
		StartDate: &start,
		EndDate:   &end,
		Status:    models.ContractStatusActive,
	}
}

// memDeliverables mimics the deliverables table including its UNIQUE(contract_id, period_number)
// constraint and the compare-and-set status updates.
type memDeliverables struct {
	mu          sync.Mutex
	rows        map[string]*models.Deliverable
	insertCalls int
	insertErrAt int
	insertErr   error
	latestErr   error
	approveErr  error
	orphaned    int
	queue       []models.ReviewQueueItem
	queueFilter models.ReviewQueueFilter
}

func newMemDeliverables() *memDeliverables {
	return &memDeliverables{rows: map[string]*models.Deliverable{}}
}

func (m *memDeliverables) put(d models.Deliverable) *models.Deliverable {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := d
	m.rows[row.ID] = &row
	return &row
}

func (m *memDeliverables) get(id string) models.Deliverable {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

func (m *memDeliverables) Latest(ctx context.Context, contractID string) (*models.Deliverable, error) {
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.Deliverable
	for _, row := range m.rows {
		if row.ContractID == contractID && (latest == nil || row.PeriodNumber > latest.PeriodNumber) {
			latest = row
		}
	}
	if latest == nil {
		return nil, nil
	}
	dup := *latest
	return &dup, nil
}

func (m *memDeliverables) InsertPeriod(ctx context.Context, d *models.Deliverable) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	if m.insertErrAt > 0 && d.PeriodNumber == m.insertErrAt {
		return false, m.insertErr
	}
	for _, row := range m.rows {
		if row.ContractID == d.ContractID && row.PeriodNumber == d.PeriodNumber {
			return false, nil
		}
	}
	if d.ID == "" {
		d.ID = fmt.Sprintf("%s-p%d", d.ContractID, d.PeriodNumber)
	}
	d.Status = models.DeliverableStatusPending
	row := *d
	m.rows[d.ID] = &row
	return true, nil
}

func (m *memDeliverables) ListByContract(ctx context.Context, contractID string) ([]models.Deliverable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Deliverable{}
	for _, row := range m.rows {
		if row.ContractID == contractID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodNumber < out[j].PeriodNumber })
	return out, nil
}

func (m *memDeliverables) GetByID(ctx context.Context, id string) (*models.Deliverable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	dup := *row
	return &dup, nil
}

func (m *memDeliverables) LockForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Deliverable, error) {
	return m.GetByID(ctx, id)
}

func (m *memDeliverables) Submit(ctx context.Context, params repository.SubmitParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[params.ID]
	if !ok || !row.Status.VendorEditable() {
		return sql.ErrNoRows
	}
	row.Status = models.DeliverableStatusInReview
	row.SubmittedAt = ptrTime(params.SubmittedAt)
	row.RejectionNotes = nil
	if params.CalculatedAmount != nil {
		row.CalculatedAmount = decimal.NewNullDecimal(*params.CalculatedAmount)
	}
	return nil
}

func (m *memDeliverables) ApproveTx(ctx context.Context, tx *sqlx.Tx, params repository.ReviewParams) error {
	if m.approveErr != nil {
		return m.approveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[params.ID]
	if !ok || row.Status != models.DeliverableStatusInReview {
		return sql.ErrNoRows
	}
	row.Status = models.DeliverableStatusApproved
	row.ApprovedAmount = decimal.NewNullDecimal(params.ApprovedAmount)
	row.PaymentID = &params.PaymentID
	row.ReviewedBy = &params.ReviewerID
	row.ReviewedAt = ptrTime(params.ReviewedAt)
	return nil
}

func (m *memDeliverables) Reject(ctx context.Context, params repository.ReviewParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[params.ID]
	if !ok || row.Status != models.DeliverableStatusInReview {
		return sql.ErrNoRows
	}
	notes := params.Notes
	row.Status = models.DeliverableStatusRejected
	row.RejectionNotes = &notes
	row.ReviewedBy = &params.ReviewerID
	row.ReviewedAt = ptrTime(params.ReviewedAt)
	return nil
}

func (m *memDeliverables) CountApprovedWithoutPayment(ctx context.Context, contractID string) (int, error) {
	return m.orphaned, nil
}

func (m *memDeliverables) ListReviewQueue(ctx context.Context, filter models.ReviewQueueFilter) ([]models.ReviewQueueItem, int, error) {
	m.queueFilter = filter
	return m.queue, len(m.queue), nil
}

type paymentStub struct {
	created []*models.Payment
	err     error
}

func (p *paymentStub) CreateTx(ctx context.Context, tx *sqlx.Tx, payment *models.Payment) error {
	if p.err != nil {
		return p.err
	}
	payment.ID = fmt.Sprintf("pay-%d", len(p.created)+1)
	p.created = append(p.created, payment)
	return nil
}

type auditStub struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditStub) ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []models.AuditLog{}
	for i := len(a.logs) - 1; i >= 0; i-- {
		log := a.logs[i]
		if log.Resource == resource && log.ResourceID != nil && *log.ResourceID == resourceID {
			out = append(out, *log)
		}
	}
	return out, nil
}

func (a *auditStub) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, log := range a.logs {
		out = append(out, log.Action)
	}
	return out
}

type lockerStub struct {
	err      error
	acquired []string
	released int
}

func (l *lockerStub) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired = append(l.acquired, key)
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}

// memCache is an in-memory CacheRepository storing values by reference.
type memCache struct {
	mu      sync.Mutex
	values  map[string]interface{}
	deleted []string
}

func newMemCache() *memCache {
	return &memCache{values: map[string]interface{}{}}
}

func (c *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw.([]byte), dest)
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = payload
	return nil
}

func (c *memCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.values, key)
		c.deleted = append(c.deleted, key)
	}
	return nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[key]
	return ok
}
