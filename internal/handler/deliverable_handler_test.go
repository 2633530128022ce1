package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/dto"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/middleware"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
	appErrors "github.com/julioctb/Dashboard-pletorica-sub001/pkg/errors"
)

type deliverableServiceMock struct {
	views      []models.DeliverableView
	created    int
	view       *models.DeliverableView
	history    []models.AuditLog
	err        error
	lastID     string
	lastActor  *models.JWTClaims
	approveReq dto.ApproveDeliverableRequest
	submitReq  dto.SubmitDeliverableRequest
	rejectReq  dto.RejectDeliverableRequest
}

func (m *deliverableServiceMock) List(ctx context.Context, contractID string, actor *models.JWTClaims) ([]models.DeliverableView, int, error) {
	m.lastID, m.lastActor = contractID, actor
	return m.views, m.created, m.err
}

func (m *deliverableServiceMock) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.DeliverableView, error) {
	m.lastID, m.lastActor = id, actor
	return m.view, m.err
}

func (m *deliverableServiceMock) History(ctx context.Context, id string, actor *models.JWTClaims) ([]models.AuditLog, error) {
	m.lastID = id
	return m.history, m.err
}

func (m *deliverableServiceMock) Submit(ctx context.Context, id string, req dto.SubmitDeliverableRequest, actor *models.JWTClaims) (*models.DeliverableView, error) {
	m.lastID, m.submitReq = id, req
	return m.view, m.err
}

func (m *deliverableServiceMock) Approve(ctx context.Context, id string, req dto.ApproveDeliverableRequest, actor *models.JWTClaims) (*models.DeliverableView, error) {
	m.lastID, m.approveReq = id, req
	return m.view, m.err
}

func (m *deliverableServiceMock) Reject(ctx context.Context, id string, req dto.RejectDeliverableRequest, actor *models.JWTClaims) (*models.DeliverableView, error) {
	m.lastID, m.rejectReq = id, req
	return m.view, m.err
}

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func newTestContext(method, path string, body []byte, claims *models.JWTClaims, params ...gin.Param) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	c.Params = params
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

var reviewer = &models.JWTClaims{UserID: "rev-1", Role: models.RoleReviewer}

func TestDeliverableHandlerList(t *testing.T) {
	svc := &deliverableServiceMock{
		views:   []models.DeliverableView{{Deliverable: models.Deliverable{ID: "d1"}, Label: "January 2025"}},
		created: 1,
	}
	h := NewDeliverableHandler(svc)

	c, w := newTestContext(http.MethodGet, "/contracts/c1/deliverables", nil, reviewer, gin.Param{Key: "id", Value: "c1"})
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.EqualValues(t, 1, env.Meta["created"])
	assert.EqualValues(t, 1, env.Meta["total"])
	assert.Equal(t, "c1", svc.lastID)
	assert.Same(t, reviewer, svc.lastActor)
}

func TestDeliverableHandlerRequiresClaims(t *testing.T) {
	h := NewDeliverableHandler(&deliverableServiceMock{})

	c, w := newTestContext(http.MethodGet, "/deliverables/d1", nil, nil, gin.Param{Key: "id", Value: "d1"})
	h.Get(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeliverableHandlerMapsServiceErrors(t *testing.T) {
	svc := &deliverableServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "deliverable not found")}
	h := NewDeliverableHandler(svc)

	c, w := newTestContext(http.MethodGet, "/deliverables/d9", nil, reviewer, gin.Param{Key: "id", Value: "d9"})
	h.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrNotFound.Code, env.Error.Code)

	svc.err = errors.New("connection reset")
	c, w = newTestContext(http.MethodGet, "/deliverables/d9", nil, reviewer, gin.Param{Key: "id", Value: "d9"})
	h.Get(c)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Len(t, c.Errors, 1)
}

func TestDeliverableHandlerSubmit(t *testing.T) {
	svc := &deliverableServiceMock{view: &models.DeliverableView{Deliverable: models.Deliverable{ID: "d1", Status: models.DeliverableStatusInReview}}}
	h := NewDeliverableHandler(svc)

	c, w := newTestContext(http.MethodPost, "/deliverables/d1/submit", nil, reviewer, gin.Param{Key: "id", Value: "d1"})
	h.Submit(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, svc.submitReq.CalculatedAmount)

	c, w = newTestContext(http.MethodPost, "/deliverables/d1/submit", []byte(`{"calculatedAmount":"1250.50"}`), reviewer, gin.Param{Key: "id", Value: "d1"})
	h.Submit(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.submitReq.CalculatedAmount)
	assert.True(t, svc.submitReq.CalculatedAmount.Equal(decimal.RequireFromString("1250.50")))
}

func TestDeliverableHandlerApprove(t *testing.T) {
	svc := &deliverableServiceMock{view: &models.DeliverableView{Deliverable: models.Deliverable{ID: "d1", Status: models.DeliverableStatusApproved}}}
	h := NewDeliverableHandler(svc)

	c, w := newTestContext(http.MethodPost, "/deliverables/d1/approve", []byte(`{"approvedAmount":6500}`), reviewer, gin.Param{Key: "id", Value: "d1"})
	h.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.approveReq.ApprovedAmount.Equal(decimal.NewFromInt(6500)))

	c, w = newTestContext(http.MethodPost, "/deliverables/d1/approve", []byte(`{"approvedAmount":`), reviewer, gin.Param{Key: "id", Value: "d1"})
	h.Approve(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.err = appErrors.Clone(appErrors.ErrInvalidTransition, "deliverable is not in review")
	c, w = newTestContext(http.MethodPost, "/deliverables/d1/approve", []byte(`{"approvedAmount":1}`), reviewer, gin.Param{Key: "id", Value: "d1"})
	h.Approve(c)
	assert.Equal(t, appErrors.ErrInvalidTransition.Status, w.Code)
}

func TestDeliverableHandlerRejectAndHistory(t *testing.T) {
	svc := &deliverableServiceMock{
		view:    &models.DeliverableView{Deliverable: models.Deliverable{ID: "d1", Status: models.DeliverableStatusRejected}},
		history: []models.AuditLog{{Action: models.AuditActionDeliverableReject}},
	}
	h := NewDeliverableHandler(svc)

	c, w := newTestContext(http.MethodPost, "/deliverables/d1/reject", []byte(`{"notes":"missing timesheets"}`), reviewer, gin.Param{Key: "id", Value: "d1"})
	h.Reject(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "missing timesheets", svc.rejectReq.Notes)

	c, w = newTestContext(http.MethodGet, "/deliverables/d1/history", nil, reviewer, gin.Param{Key: "id", Value: "d1"})
	h.History(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), models.AuditActionDeliverableReject)
}
