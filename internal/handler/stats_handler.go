package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/dto"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
	appErrors "github.com/julioctb/Dashboard-pletorica-sub001/pkg/errors"
	"github.com/julioctb/Dashboard-pletorica-sub001/pkg/response"
)

type statsService interface {
	ContractStats(ctx context.Context, contractID string, actor *models.JWTClaims) (*models.ContractStats, error)
	CompanyStats(ctx context.Context, companyID string, actor *models.JWTClaims) (*models.CompanyStats, error)
	ReviewQueue(ctx context.Context, query dto.ReviewQueueQuery, actor *models.JWTClaims) ([]models.ReviewQueueItem, *models.Pagination, error)
}

// StatsHandler exposes deliverable rollups and the review queue.
type StatsHandler struct {
	service statsService
}

// NewStatsHandler constructs the handler.
func NewStatsHandler(service statsService) *StatsHandler {
	return &StatsHandler{service: service}
}

// Contract godoc
// @Summary Contract deliverable statistics
// @Tags Stats
// @Produce json
// @Param id path string true "Contract ID"
// @Success 200 {object} response.Envelope
// @Router /contracts/{id}/deliverables/stats [get]
func (h *StatsHandler) Contract(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	stats, err := h.service.ContractStats(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}

// Company godoc
// @Summary Company deliverable statistics
// @Tags Stats
// @Produce json
// @Param id path string true "Company ID"
// @Success 200 {object} response.Envelope
// @Router /companies/{id}/deliverables/stats [get]
func (h *StatsHandler) Company(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	stats, err := h.service.CompanyStats(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}

// ReviewQueue godoc
// @Summary Deliverables awaiting review
// @Tags Stats
// @Produce json
// @Param companyId query string false "Company ID"
// @Param contractId query string false "Contract ID"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /deliverables/review-queue [get]
func (h *StatsHandler) ReviewQueue(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.ReviewQueueQuery{
		CompanyID:  strings.TrimSpace(c.Query("companyId")),
		ContractID: strings.TrimSpace(c.Query("contractId")),
	}
	var err error
	if query.Page, err = intQuery(c, "page"); err != nil {
		response.Error(c, err)
		return
	}
	if query.PageSize, err = intQuery(c, "pageSize"); err != nil {
		response.Error(c, err)
		return
	}
	items, page, err := h.service.ReviewQueue(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, page)
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, key+" must be a positive integer")
	}
	return value, nil
}
