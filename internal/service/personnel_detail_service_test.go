package service

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/dto"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/period"
	appErrors "github.com/julioctb/Dashboard-pletorica-sub001/pkg/errors"
)

type personnelStoreStub struct {
	lines      map[string][]models.PersonnelDetailLine
	replaceErr error
}

func (p *personnelStoreStub) ListByDeliverable(ctx context.Context, deliverableID string) ([]models.PersonnelDetailLine, error) {
	return p.lines[deliverableID], nil
}

func (p *personnelStoreStub) ReplaceTx(ctx context.Context, tx *sqlx.Tx, deliverableID string, lines []models.PersonnelDetailLine) error {
	if p.replaceErr != nil {
		return p.replaceErr
	}
	p.lines[deliverableID] = lines
	return nil
}

type personnelFixture struct {
	svc          *PersonnelDetailService
	store        *personnelStoreStub
	deliverables *memDeliverables
	audit        *auditStub
	mock         sqlmock.Sqlmock
}

func newPersonnelFixture(t *testing.T, status models.DeliverableStatus) *personnelFixture {
	t.Helper()
	contracts := newContractStub(newContract("c1", "company-1", day(2025, 1, 1), day(2025, 3, 31)))
	contracts.categories["c1"] = []models.StaffCategory{
		{ID: "11111111-1111-1111-1111-111111111111", ContractID: "c1", Name: "Guard", UnitRate: amount(1000)},
		{ID: "22222222-2222-2222-2222-222222222222", ContractID: "c1", Name: "Cleaner", UnitRate: amount(500)},
	}
	f := &personnelFixture{
		store:        &personnelStoreStub{lines: map[string][]models.PersonnelDetailLine{}},
		deliverables: newMemDeliverables(),
		audit:        &auditStub{},
	}
	f.deliverables.put(models.Deliverable{
		ID: "d1", ContractID: "c1", PeriodNumber: 1,
		PeriodStart: day(2025, 1, 1), PeriodEnd: day(2025, 1, 31),
		Periodicity: period.Monthly, Status: status,
	})
	tx, mock := newTxProviderMock(t)
	f.mock = mock
	f.svc = NewPersonnelDetailService(f.store, f.deliverables, contracts, tx, f.audit, nil, nil)
	return f
}

func twoLineRequest() dto.ReplacePersonnelRequest {
	return dto.ReplacePersonnelRequest{Lines: []dto.PersonnelLineInput{
		{CategoryID: "11111111-1111-1111-1111-111111111111", ReportedCount: 5, ValidatedCount: 5},
		{CategoryID: "22222222-2222-2222-2222-222222222222", ReportedCount: 3, ValidatedCount: 3},
	}}
}

func TestPersonnelDetailReplaceComputesSubtotals(t *testing.T) {
	f := newPersonnelFixture(t, models.DeliverableStatusPending)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	detail, err := f.svc.Replace(context.Background(), "d1", twoLineRequest(), vendorClaims("company-1"))
	require.NoError(t, err)
	require.Len(t, detail.Lines, 2)
	assert.True(t, detail.Lines[0].Subtotal.Equal(amount(5000)))
	assert.True(t, detail.Lines[1].Subtotal.Equal(amount(1500)))
	assert.True(t, detail.Total.Equal(amount(6500)))
	assert.Equal(t, []string{models.AuditActionPersonnelReplace}, f.audit.actions())

	got, err := f.svc.Get(context.Background(), "d1", reviewerClaims())
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(amount(6500)))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPersonnelDetailReplaceOverridesRate(t *testing.T) {
	f := newPersonnelFixture(t, models.DeliverableStatusRejected)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	rate := amount(1200)
	req := dto.ReplacePersonnelRequest{Lines: []dto.PersonnelLineInput{
		{CategoryID: "11111111-1111-1111-1111-111111111111", ReportedCount: 4, ValidatedCount: 2, UnitRate: &rate},
	}}
	detail, err := f.svc.Replace(context.Background(), "d1", req, vendorClaims("company-1"))
	require.NoError(t, err)
	assert.True(t, detail.Total.Equal(amount(2400)))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPersonnelDetailReplaceEmptyClearsDetail(t *testing.T) {
	f := newPersonnelFixture(t, models.DeliverableStatusPending)
	f.store.lines["d1"] = []models.PersonnelDetailLine{{CategoryID: "x", Subtotal: amount(1)}}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	detail, err := f.svc.Replace(context.Background(), "d1", dto.ReplacePersonnelRequest{}, vendorClaims("company-1"))
	require.NoError(t, err)
	assert.Empty(t, detail.Lines)
	assert.True(t, detail.Total.IsZero())
	assert.Empty(t, f.store.lines["d1"])
}

func TestPersonnelDetailReplaceRejectsLockedStatuses(t *testing.T) {
	for _, status := range []models.DeliverableStatus{models.DeliverableStatusInReview, models.DeliverableStatusApproved} {
		f := newPersonnelFixture(t, status)
		_, err := f.svc.Replace(context.Background(), "d1", twoLineRequest(), vendorClaims("company-1"))
		assert.ErrorIs(t, err, appErrors.ErrNotEditable, string(status))
		assert.Empty(t, f.store.lines["d1"])
	}
}

func TestPersonnelDetailReplaceValidation(t *testing.T) {
	f := newPersonnelFixture(t, models.DeliverableStatusPending)

	unknown := dto.ReplacePersonnelRequest{Lines: []dto.PersonnelLineInput{
		{CategoryID: "33333333-3333-3333-3333-333333333333", ReportedCount: 1, ValidatedCount: 1},
	}}
	_, err := f.svc.Replace(context.Background(), "d1", unknown, vendorClaims("company-1"))
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	duplicate := twoLineRequest()
	duplicate.Lines[1].CategoryID = duplicate.Lines[0].CategoryID
	_, err = f.svc.Replace(context.Background(), "d1", duplicate, vendorClaims("company-1"))
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	negative := twoLineRequest()
	negative.Lines[0].ReportedCount = -1
	_, err = f.svc.Replace(context.Background(), "d1", negative, vendorClaims("company-1"))
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.Replace(context.Background(), "d1", twoLineRequest(), vendorClaims("company-9"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPersonnelDetailReplaceRollsBackOnFailure(t *testing.T) {
	f := newPersonnelFixture(t, models.DeliverableStatusPending)
	f.store.replaceErr = errors.New("disk full")
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Replace(context.Background(), "d1", twoLineRequest(), vendorClaims("company-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.audit.logs)
	require.NoError(t, f.mock.ExpectationsWereMet())
}
