package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/dto"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
	appErrors "github.com/julioctb/Dashboard-pletorica-sub001/pkg/errors"
	"github.com/julioctb/Dashboard-pletorica-sub001/pkg/response"
)

type deliverableService interface {
	List(ctx context.Context, contractID string, actor *models.JWTClaims) ([]models.DeliverableView, int, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.DeliverableView, error)
	History(ctx context.Context, id string, actor *models.JWTClaims) ([]models.AuditLog, error)
	Submit(ctx context.Context, id string, req dto.SubmitDeliverableRequest, actor *models.JWTClaims) (*models.DeliverableView, error)
	Approve(ctx context.Context, id string, req dto.ApproveDeliverableRequest, actor *models.JWTClaims) (*models.DeliverableView, error)
	Reject(ctx context.Context, id string, req dto.RejectDeliverableRequest, actor *models.JWTClaims) (*models.DeliverableView, error)
}

// DeliverableHandler exposes the deliverable lifecycle endpoints.
type DeliverableHandler struct {
	service deliverableService
}

// NewDeliverableHandler constructs the handler.
func NewDeliverableHandler(service deliverableService) *DeliverableHandler {
	return &DeliverableHandler{service: service}
}

// List godoc
// @Summary List contract deliverables
// @Description Generates any missing periods up to today before listing.
// @Tags Deliverables
// @Produce json
// @Param id path string true "Contract ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /contracts/{id}/deliverables [get]
func (h *DeliverableHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	items, created, err := h.service.List(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"created": created, "total": len(items)})
}

// Get godoc
// @Summary Get deliverable
// @Tags Deliverables
// @Produce json
// @Param id path string true "Deliverable ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /deliverables/{id} [get]
func (h *DeliverableHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	item, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// History godoc
// @Summary Deliverable audit trail
// @Tags Deliverables
// @Produce json
// @Param id path string true "Deliverable ID"
// @Success 200 {object} response.Envelope
// @Router /deliverables/{id}/history [get]
func (h *DeliverableHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	logs, err := h.service.History(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, logs)
}

// Submit godoc
// @Summary Submit deliverable for review
// @Tags Deliverables
// @Accept json
// @Produce json
// @Param id path string true "Deliverable ID"
// @Param payload body dto.SubmitDeliverableRequest false "Submission payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /deliverables/{id}/submit [post]
func (h *DeliverableHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitDeliverableRequest
	// the body is optional
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}
	item, err := h.service.Submit(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// Approve godoc
// @Summary Approve deliverable and create its payment
// @Tags Deliverables
// @Accept json
// @Produce json
// @Param id path string true "Deliverable ID"
// @Param payload body dto.ApproveDeliverableRequest true "Approval payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /deliverables/{id}/approve [post]
func (h *DeliverableHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ApproveDeliverableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid approval payload"))
		return
	}
	item, err := h.service.Approve(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// Reject godoc
// @Summary Reject deliverable
// @Tags Deliverables
// @Accept json
// @Produce json
// @Param id path string true "Deliverable ID"
// @Param payload body dto.RejectDeliverableRequest true "Rejection payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /deliverables/{id}/reject [post]
func (h *DeliverableHandler) Reject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RejectDeliverableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rejection payload"))
		return
	}
	item, err := h.service.Reject(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}
