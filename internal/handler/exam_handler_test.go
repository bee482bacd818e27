package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tzavrishon/mivhan/internal/middleware"
	"github.com/tzavrishon/mivhan/internal/model"
	"github.com/tzavrishon/mivhan/internal/response"
	"github.com/tzavrishon/mivhan/internal/service"
	"github.com/tzavrishon/mivhan/internal/validator"
)

type fakeExams struct {
	err error

	submitted   *model.SubmitAnswerRequest
	confirmedID uuid.UUID
	learnerID   int
}

func (f *fakeExams) StartAttempt(_ context.Context, learnerID int) (*model.StartExamResponse, error) {
	f.learnerID = learnerID
	if f.err != nil {
		return nil, f.err
	}
	return &model.StartExamResponse{AttemptID: uuid.New()}, nil
}

func (f *fakeExams) CurrentSection(_ context.Context, _ uuid.UUID, learnerID int) (*model.CurrentSectionResponse, error) {
	f.learnerID = learnerID
	if f.err != nil {
		return nil, f.err
	}
	return &model.CurrentSectionResponse{SectionID: uuid.New(), RemainingSeconds: 42}, nil
}

func (f *fakeExams) SubmitAnswer(_ context.Context, _ uuid.UUID, _ int, req model.SubmitAnswerRequest) (*model.SubmitAnswerResponse, error) {
	f.submitted = &req
	if f.err != nil {
		return nil, f.err
	}
	return &model.SubmitAnswerResponse{Correct: true}, nil
}

func (f *fakeExams) ConfirmSection(_ context.Context, _ uuid.UUID, _ int, sectionID uuid.UUID) error {
	f.confirmedID = sectionID
	return f.err
}

func (f *fakeExams) FinishAttempt(_ context.Context, attemptID uuid.UUID, _ int) (*model.ExamResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.ExamResult{AttemptID: attemptID, TotalScore90: 72}, nil
}

func (f *fakeExams) ListAttempts(_ context.Context, _ int, page, perPage int) ([]model.AttemptListItem, *response.Pagination, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return []model.AttemptListItem{}, &response.Pagination{Page: page, PerPage: perPage}, nil
}

func newExamRouter(exams ExamOperations) *gin.Engine {
	gin.SetMode(gin.TestMode)
	validator.Setup()

	h := NewExamHandler(exams, zerolog.Nop())
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{TokenType: service.TokenTypeLearner, UserID: 7})
		c.Next()
	})
	g := r.Group("/api/v1/exam")
	g.POST("/start", h.StartAttempt)
	g.GET("/attempts", h.ListAttempts)
	g.GET("/:attempt_id/section/current", h.CurrentSection)
	g.POST("/:attempt_id/answer", h.SubmitAnswer)
	g.POST("/:attempt_id/section/confirm-finish", h.ConfirmSection)
	g.POST("/:attempt_id/finish", h.FinishAttempt)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var env response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, w.Body.String())
	}
	return env
}

func TestExamHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{service.ErrAlreadyAnswered, http.StatusConflict, response.ErrAlreadyAnswered},
		{service.ErrNoActiveSection, http.StatusConflict, response.ErrNoActiveSection},
		{service.ErrSectionExpired, http.StatusConflict, response.ErrSectionExpired},
		{service.ErrAttemptCompleted, http.StatusConflict, response.ErrAttemptCompleted},
		{service.ErrQuestionNotInSection, http.StatusBadRequest, response.ErrQuestionNotInSection},
		{service.ErrInvalidOption, http.StatusBadRequest, response.ErrInvalidOption},
		{service.ErrAttemptNotFound, http.StatusNotFound, response.ErrAttemptNotFound},
		{fmt.Errorf("wrapped: %w", service.ErrSectionExpired), http.StatusConflict, response.ErrSectionExpired},
		{errors.New("db down"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			r := newExamRouter(&fakeExams{err: tt.err})
			body := fmt.Sprintf(`{"question_id":%q,"selected_option_id":%q,"time_ms":1200}`, uuid.NewString(), uuid.NewString())
			w := do(r, http.MethodPost, "/api/v1/exam/"+uuid.NewString()+"/answer", body)

			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, w.Code)
			}
			env := decodeEnvelope(t, w)
			if env.Error == nil || env.Error.Code != tt.code {
				t.Fatalf("expected code %s, got %+v", tt.code, env.Error)
			}
		})
	}
}

func TestExamHandler_SubmitValidation(t *testing.T) {
	exams := &fakeExams{}
	r := newExamRouter(exams)

	w := do(r, http.MethodPost, "/api/v1/exam/"+uuid.NewString()+"/answer", `{"time_ms":-5}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	env := decodeEnvelope(t, w)
	if env.Error.Code != response.ErrValidation {
		t.Fatalf("expected validation error, got %s", env.Error.Code)
	}
	for _, field := range []string{"question_id", "selected_option_id", "time_ms"} {
		if _, ok := env.Error.Fields[field]; !ok {
			t.Errorf("expected field error for %s, got %v", field, env.Error.Fields)
		}
	}
	if exams.submitted != nil {
		t.Fatal("service must not be called for invalid input")
	}
}

func TestExamHandler_InvalidAttemptID(t *testing.T) {
	r := newExamRouter(&fakeExams{})
	w := do(r, http.MethodGet, "/api/v1/exam/not-a-uuid/section/current", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if env := decodeEnvelope(t, w); env.Error.Code != response.ErrInvalidID {
		t.Fatalf("expected INVALID_ID, got %s", env.Error.Code)
	}
}

func TestExamHandler_ConfirmSectionBody(t *testing.T) {
	exams := &fakeExams{}
	r := newExamRouter(exams)
	attempt := uuid.NewString()

	w := do(r, http.MethodPost, "/api/v1/exam/"+attempt+"/section/confirm-finish", "")
	if w.Code != http.StatusOK || exams.confirmedID != uuid.Nil {
		t.Fatalf("expected confirm without section id, got %d / %s", w.Code, exams.confirmedID)
	}

	sectionID := uuid.New()
	w = do(r, http.MethodPost, "/api/v1/exam/"+attempt+"/section/confirm-finish", `{"section_id":"`+sectionID.String()+`"}`)
	if w.Code != http.StatusOK || exams.confirmedID != sectionID {
		t.Fatalf("expected confirm of %s, got %d / %s", sectionID, w.Code, exams.confirmedID)
	}
}

func TestExamHandler_StartUsesClaims(t *testing.T) {
	exams := &fakeExams{}
	r := newExamRouter(exams)

	w := do(r, http.MethodPost, "/api/v1/exam/start", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if exams.learnerID != 7 {
		t.Fatalf("expected learner id from claims, got %d", exams.learnerID)
	}
}

func TestExamHandler_ListAttemptsPagination(t *testing.T) {
	r := newExamRouter(&fakeExams{})

	w := do(r, http.MethodGet, "/api/v1/exam/attempts?page=2&per_page=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	env := decodeEnvelope(t, w)
	if env.Pagination == nil || env.Pagination.Page != 2 || env.Pagination.PerPage != 5 {
		t.Fatalf("unexpected pagination: %+v", env.Pagination)
	}

	w = do(r, http.MethodGet, "/api/v1/exam/attempts?per_page=500", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for per_page over the limit, got %d", w.Code)
	}
}
