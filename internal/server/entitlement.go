package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	entitlementdomain "github.com/parlohq/parlo/internal/entitlement/domain"
	"github.com/parlohq/parlo/pkg/db/pagination"
)

type entitlementResponse struct {
	UserID         string     `json:"user_id"`
	Tier           string     `json:"tier"`
	Premium        bool       `json:"premium"`
	Provider       string     `json:"provider"`
	ProviderStatus string     `json:"provider_status,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// HandleGetEntitlement returns the caller's stored record plus the effective
// premium boolean computed at read time.
func (s *Server) HandleGetEntitlement(c *gin.Context) {
	userID := CurrentUserID(c)

	premium, err := s.entitlements.IsPremium(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	record, err := s.entitlements.Get(c.Request.Context(), userID)
	if errors.Is(err, entitlementdomain.ErrRecordNotFound) {
		c.JSON(http.StatusOK, entitlementResponse{
			UserID:   userID,
			Tier:     string(entitlementdomain.TierFree),
			Provider: string(entitlementdomain.ProviderNone),
		})
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, entitlementResponse{
		UserID:         record.UserID,
		Tier:           string(record.Tier),
		Premium:        premium,
		Provider:       string(record.Provider),
		ProviderStatus: record.ProviderStatus,
		ExpiresAt:      record.ExpiresAt,
	})
}

// HandleListEntitlementEvents pages through the caller's applied-event audit
// trail.
func (s *Server) HandleListEntitlementEvents(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.entitlements.ListEvents(c.Request.Context(), entitlementdomain.ListEventsRequest{
		UserID:    CurrentUserID(c),
		PageToken: page.PageToken,
		PageSize:  page.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
