package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tzavrishon/mivhan/internal/middleware"
	"github.com/tzavrishon/mivhan/internal/model"
	"github.com/tzavrishon/mivhan/internal/response"
	"github.com/tzavrishon/mivhan/internal/service"
	"github.com/tzavrishon/mivhan/internal/validator"
)

// ExamOperations is the exam service as seen by the HTTP layer.
type ExamOperations interface {
	StartAttempt(ctx context.Context, learnerID int) (*model.StartExamResponse, error)
	CurrentSection(ctx context.Context, attemptID uuid.UUID, learnerID int) (*model.CurrentSectionResponse, error)
	SubmitAnswer(ctx context.Context, attemptID uuid.UUID, learnerID int, req model.SubmitAnswerRequest) (*model.SubmitAnswerResponse, error)
	ConfirmSection(ctx context.Context, attemptID uuid.UUID, learnerID int, sectionID uuid.UUID) error
	FinishAttempt(ctx context.Context, attemptID uuid.UUID, learnerID int) (*model.ExamResult, error)
	ListAttempts(ctx context.Context, learnerID, page, perPage int) ([]model.AttemptListItem, *response.Pagination, error)
}

// ExamHandler handles the learner exam endpoints.
type ExamHandler struct {
	exams ExamOperations
	log   zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(exams ExamOperations, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		exams: exams,
		log:   log.With().Str("component", "exam_handler").Logger(),
	}
}

// StartAttempt godoc
// POST /api/v1/exam/start
// Creates an attempt with its ordered sections and starts the first one.
func (h *ExamHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	res, err := h.exams.StartAttempt(c.Request.Context(), claims.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, res)
}

// CurrentSection godoc
// GET /api/v1/exam/:attempt_id/section/current
// Returns the section the learner is working on, with remaining time,
// questions (no answers) and the ids already answered.
func (h *ExamHandler) CurrentSection(c *gin.Context) {
	claims, attemptID, ok := h.attemptParams(c)
	if !ok {
		return
	}

	res, err := h.exams.CurrentSection(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// SubmitAnswer godoc
// POST /api/v1/exam/:attempt_id/answer
// Records one answer. The first answer to a question wins; a repeat yields
// ALREADY_ANSWERED.
func (h *ExamHandler) SubmitAnswer(c *gin.Context) {
	claims, attemptID, ok := h.attemptParams(c)
	if !ok {
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.exams.SubmitAnswer(c.Request.Context(), attemptID, claims.UserID, req)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// ConfirmSection godoc
// POST /api/v1/exam/:attempt_id/section/confirm-finish
// Locks the current section and starts the next. Idempotent.
func (h *ExamHandler) ConfirmSection(c *gin.Context) {
	claims, attemptID, ok := h.attemptParams(c)
	if !ok {
		return
	}

	var req model.ConfirmSectionRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}
	sectionID := uuid.Nil
	if req.SectionID != nil {
		sectionID = *req.SectionID
	}

	if err := h.exams.ConfirmSection(c.Request.Context(), attemptID, claims.UserID, sectionID); err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"confirmed": true})
}

// FinishAttempt godoc
// POST /api/v1/exam/:attempt_id/finish
// Locks remaining sections and returns the aggregate result. Repeat calls
// return the stored result.
func (h *ExamHandler) FinishAttempt(c *gin.Context) {
	claims, attemptID, ok := h.attemptParams(c)
	if !ok {
		return
	}

	res, err := h.exams.FinishAttempt(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// ListAttempts godoc
// GET /api/v1/exam/attempts
// Lists the learner's attempts, newest first.
func (h *ExamHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var q model.ListAttemptsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	items, pagination, err := h.exams.ListAttempts(c.Request.Context(), claims.UserID, q.Page, q.PerPage)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"attempts": items}, pagination)
}

// ─── Helpers ────────────────────────────────────────────────────────

func (h *ExamHandler) attemptParams(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}
	return claims, attemptID, true
}

func (h *ExamHandler) fail(c *gin.Context, err error) {
	status, code := examErrorCode(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Exam request failed")
	}
	response.Fail(c, status, code)
}

// examErrorCode maps service errors onto the response envelope.
func examErrorCode(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrAttemptNotFound):
		return http.StatusNotFound, response.ErrAttemptNotFound
	case errors.Is(err, service.ErrAttemptCompleted):
		return http.StatusConflict, response.ErrAttemptCompleted
	case errors.Is(err, service.ErrNoActiveSection):
		return http.StatusConflict, response.ErrNoActiveSection
	case errors.Is(err, service.ErrSectionExpired):
		return http.StatusConflict, response.ErrSectionExpired
	case errors.Is(err, service.ErrAlreadyAnswered):
		return http.StatusConflict, response.ErrAlreadyAnswered
	case errors.Is(err, service.ErrQuestionNotInSection):
		return http.StatusBadRequest, response.ErrQuestionNotInSection
	case errors.Is(err, service.ErrInvalidOption):
		return http.StatusBadRequest, response.ErrInvalidOption
	case errors.Is(err, service.ErrNoQuestions):
		return http.StatusServiceUnavailable, response.ErrNoQuestions
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}
