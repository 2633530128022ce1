package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/dto"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
	appErrors "github.com/julioctb/Dashboard-pletorica-sub001/pkg/errors"
	"github.com/julioctb/Dashboard-pletorica-sub001/pkg/response"
)

type personnelService interface {
	Get(ctx context.Context, deliverableID string, actor *models.JWTClaims) (*models.PersonnelDetail, error)
	Replace(ctx context.Context, deliverableID string, req dto.ReplacePersonnelRequest, actor *models.JWTClaims) (*models.PersonnelDetail, error)
}

// PersonnelHandler serves the per-category personnel breakdown of a deliverable.
type PersonnelHandler struct {
	service personnelService
}

// NewPersonnelHandler constructs the handler.
func NewPersonnelHandler(service personnelService) *PersonnelHandler {
	return &PersonnelHandler{service: service}
}

// Get godoc
// @Summary Get personnel detail
// @Tags Deliverables
// @Produce json
// @Param id path string true "Deliverable ID"
// @Success 200 {object} response.Envelope
// @Router /deliverables/{id}/personnel [get]
func (h *PersonnelHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, detail)
}

// Replace godoc
// @Summary Replace personnel detail
// @Description Replaces every line and recomputes the calculated amount.
// @Tags Deliverables
// @Accept json
// @Produce json
// @Param id path string true "Deliverable ID"
// @Param payload body dto.ReplacePersonnelRequest true "Personnel lines"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /deliverables/{id}/personnel [put]
func (h *PersonnelHandler) Replace(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ReplacePersonnelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid personnel payload"))
		return
	}
	detail, err := h.service.Replace(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, detail)
}
