package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/service"
	appErrors "github.com/julioctb/Dashboard-pletorica-sub001/pkg/errors"
	"github.com/julioctb/Dashboard-pletorica-sub001/pkg/response"
)

// AuthHandler exposes the identity carried by the bearer token.
type AuthHandler struct{}

// NewAuthHandler creates a new handler.
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// Me godoc
// @Summary Current user
// @Description Returns the identity resolved from the access token
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user := service.CurrentUser(claimsFromContext(c))
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.OK(c, user)
}
