package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/tzavrishon/mivhan/internal/middleware"
	"github.com/tzavrishon/mivhan/internal/model"
	"github.com/tzavrishon/mivhan/internal/response"
	"github.com/tzavrishon/mivhan/internal/service"
	"github.com/tzavrishon/mivhan/internal/validator"
)

// AuthHandler handles learner authentication endpoints.
type AuthHandler struct {
	authService    *service.AuthService
	learnerService *service.LearnerService
	log            zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, learnerService *service.LearnerService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		learnerService: learnerService,
		log:            log.With().Str("component", "auth_handler").Logger(),
	}
}

// LearnerLogin godoc
// POST /api/v1/auth/learner/login
// Validates email + password and returns a JWT. A new login replaces the
// learner's previous session.
func (h *AuthHandler) LearnerLogin(c *gin.Context) {
	var req model.LearnerLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, learner, err := h.learnerService.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
			return
		}
		h.log.Error().Err(err).Msg("Login failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":   token,
		"learner": learner,
	})
}

// GetLearnerProfile godoc
// GET /api/v1/auth/learner/me
// Returns the profile of the currently authenticated learner.
func (h *AuthHandler) GetLearnerProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	learner, err := h.learnerService.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"learner": learner})
}

// LearnerLogout godoc
// POST /api/v1/auth/learner/logout
// Ends the current session; the token stops working immediately.
func (h *AuthHandler) LearnerLogout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.authService.RevokeLearnerSession(c.Request.Context(), claims.UserID); err != nil {
		h.log.Error().Err(err).Int("learner_id", claims.UserID).Msg("Logout failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
