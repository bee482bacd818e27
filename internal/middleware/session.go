package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/tzavrishon/mivhan/internal/response"
	"github.com/tzavrishon/mivhan/internal/service"
)

// SessionValidator checks that a token's JTI is the learner's active session.
type SessionValidator interface {
	ValidateLearnerSession(ctx context.Context, learnerID int, jti string) error
}

// CheckSingleDeviceSession validates the JWT's JTI against the active session in Redis.
// If the JTI doesn't match, the learner has logged in elsewhere or logged out.
func CheckSingleDeviceSession(sessions SessionValidator, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		err := sessions.ValidateLearnerSession(c.Request.Context(), claims.UserID, claims.ID)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, service.ErrNoActiveSession), errors.Is(err, service.ErrSessionInvalidated):
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
		default:
			log.Error().Err(err).Int("learner_id", claims.UserID).Msg("Session check failed")
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
		}
	}
}
