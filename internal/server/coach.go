package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// FeedbackProvider is the AI-coaching collaborator. The text generation call
// lives outside this service; premium routes only consume the entitlement
// gate.
type FeedbackProvider interface {
	Feedback(ctx context.Context, userID, transcript string) (string, error)
}

type coachRequest struct {
	Transcript string `json:"transcript"`
}

// HandleCoachFeedback is the premium-gated coaching route. It requires a
// wired FeedbackProvider; without one the endpoint reports itself as
// unavailable rather than pretending to coach.
func (s *Server) HandleCoachFeedback(c *gin.Context) {
	if s.feedback == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{
			"type":    "service_unavailable",
			"message": "coaching is not available in this deployment",
		}})
		return
	}

	var req coachRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Transcript == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	feedback, err := s.feedback.Feedback(c.Request.Context(), CurrentUserID(c), req.Transcript)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"feedback": feedback})
}
