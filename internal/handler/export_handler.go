package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/dto"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/service"
	appErrors "github.com/julioctb/Dashboard-pletorica-sub001/pkg/errors"
	"github.com/julioctb/Dashboard-pletorica-sub001/pkg/response"
)

type exportService interface {
	ExportContract(ctx context.Context, contractID string, format dto.ExportFormat, actor *models.JWTClaims) (*service.ExportResult, error)
}

// ExportHandler streams deliverable listings as files.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// Contract godoc
// @Summary Export contract deliverables
// @Tags Deliverables
// @Produce application/octet-stream
// @Param id path string true "Contract ID"
// @Param format query string false "xlsx, pdf or csv" default(xlsx)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /contracts/{id}/deliverables/export [get]
func (h *ExportHandler) Contract(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.ExportContract(c.Request.Context(), c.Param("id"), dto.ExportFormat(c.Query("format")), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, result.FileName, result.ContentType, result.Payload)
}
