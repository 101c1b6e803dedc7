package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/parlohq/parlo/internal/billing/domain"
)

type checkoutRequest struct {
	Plan   string `json:"plan"`
	Origin string `json:"origin"`
}

// HandleCreateCheckout starts a subscription purchase for the authenticated
// user. Entitlement state is untouched here; only confirmed webhook events
// change it.
func (s *Server) HandleCreateCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.checkout.CreateSession(c.Request.Context(), billingdomain.CreateSessionRequest{
		UserID: CurrentUserID(c),
		Plan:   req.Plan,
		Origin: req.Origin,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
