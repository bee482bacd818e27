// Package apiclient talks to the exam server's HTTP API and implements
// examflow.API on top of it.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tzavrishon/mivhan/internal/examflow"
	"github.com/tzavrishon/mivhan/internal/model"
	"github.com/tzavrishon/mivhan/internal/response"
)

// ErrUnauthorized means the stored token is missing, expired or was replaced
// by a login elsewhere.
var ErrUnauthorized = errors.New("not logged in or session replaced")

// Error is a non-2xx answer from the server.
type Error struct {
	Status int
	Body   response.ErrorBody
}

func (e *Error) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Body.Error())
}

// Unwrap maps server error codes onto the sentinels callers match on.
func (e *Error) Unwrap() error {
	switch e.Body.Code {
	case response.ErrAlreadyAnswered:
		return examflow.ErrAlreadyAnswered
	case response.ErrSectionExpired, response.ErrNoActiveSection, response.ErrAttemptCompleted:
		return examflow.ErrSectionUnavailable
	case response.ErrTokenRequired, response.ErrTokenInvalid, response.ErrTokenExpired,
		response.ErrSessionInvalidated:
		return ErrUnauthorized
	}
	return nil
}

var _ examflow.API = (*Client)(nil)

// Client is a learner session against one exam server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the request logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a client for baseURL. token may be empty before login.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the bearer token in use.
func (c *Client) Token() string { return c.token }

// ─── Auth ───────────────────────────────────────────────────────────

type loginResponse struct {
	Token   string        `json:"token"`
	Learner model.Learner `json:"learner"`
}

// Login authenticates and keeps the issued token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*model.Learner, error) {
	var out loginResponse
	req := model.LearnerLoginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/learner/login", req, &out, nil); err != nil {
		return nil, err
	}
	c.token = out.Token
	return &out.Learner, nil
}

// Me returns the logged-in learner.
func (c *Client) Me(ctx context.Context) (*model.Learner, error) {
	var out struct {
		Learner model.Learner `json:"learner"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/learner/me", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out.Learner, nil
}

// Logout ends the server-side session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/auth/learner/logout", nil, nil, nil)
}

// ─── Exam ───────────────────────────────────────────────────────────

// StartAttempt implements examflow.API.
func (c *Client) StartAttempt(ctx context.Context) (*examflow.Attempt, error) {
	var out model.StartExamResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/exam/start", nil, &out, nil); err != nil {
		return nil, err
	}
	a := &examflow.Attempt{ID: out.AttemptID, Sections: make([]examflow.SectionInfo, 0, len(out.Sections))}
	for _, s := range out.Sections {
		a.Sections = append(a.Sections, examflow.SectionInfo{
			ID:         s.SectionID,
			Kind:       examflow.SectionKind(s.Kind),
			OrderIndex: s.OrderIndex,
			Duration:   time.Duration(s.DurationSeconds) * time.Second,
			Locked:     s.Locked,
		})
	}
	return a, nil
}

// CurrentSection implements examflow.API.
func (c *Client) CurrentSection(ctx context.Context, attemptID uuid.UUID) (*examflow.SectionPayload, error) {
	var out model.CurrentSectionResponse
	if err := c.do(ctx, http.MethodGet, attemptPath(attemptID, "/section/current"), nil, &out, nil); err != nil {
		return nil, err
	}
	p := &examflow.SectionPayload{
		SectionID:   out.SectionID,
		Kind:        examflow.SectionKind(out.Kind),
		OrderIndex:  out.OrderIndex,
		Remaining:   time.Duration(out.RemainingSeconds) * time.Second,
		Expired:     out.Expired,
		AnsweredIDs: out.AnsweredQuestionIDs,
		Questions:   make([]examflow.Question, 0, len(out.Questions)),
	}
	for _, q := range out.Questions {
		eq := examflow.Question{ID: q.ID, Prompt: q.PromptText, ImageURL: deref(q.PromptImageURL)}
		for _, o := range q.Options {
			eq.Choices = append(eq.Choices, examflow.Choice{ID: o.ID, Text: o.Text, ImageURL: deref(o.ImageURL)})
		}
		p.Questions = append(p.Questions, eq)
	}
	return p, nil
}

// SubmitAnswer implements examflow.API.
func (c *Client) SubmitAnswer(ctx context.Context, attemptID uuid.UUID, req examflow.SubmitAnswerRequest) (*examflow.SubmitResult, error) {
	body := model.SubmitAnswerRequest{
		QuestionID:       req.QuestionID,
		SelectedOptionID: req.ChoiceID,
		TimeMs:           req.Elapsed.Milliseconds(),
	}
	var out model.SubmitAnswerResponse
	if err := c.do(ctx, http.MethodPost, attemptPath(attemptID, "/answer"), body, &out, nil); err != nil {
		return nil, err
	}
	return &examflow.SubmitResult{Correct: out.Correct, Explanation: deref(out.Explanation)}, nil
}

// ConfirmSection implements examflow.API.
func (c *Client) ConfirmSection(ctx context.Context, attemptID, sectionID uuid.UUID) error {
	body := model.ConfirmSectionRequest{SectionID: &sectionID}
	return c.do(ctx, http.MethodPost, attemptPath(attemptID, "/section/confirm-finish"), body, nil, nil)
}

// FinishAttempt implements examflow.API.
func (c *Client) FinishAttempt(ctx context.Context, attemptID uuid.UUID) (*examflow.Summary, error) {
	var out model.ExamResult
	if err := c.do(ctx, http.MethodPost, attemptPath(attemptID, "/finish"), nil, &out, nil); err != nil {
		return nil, err
	}
	return SummaryFromResult(out), nil
}

// ListAttempts returns one page of the learner's attempts on the server.
func (c *Client) ListAttempts(ctx context.Context, page, perPage int) ([]model.AttemptListItem, *response.Pagination, error) {
	var out struct {
		Attempts []model.AttemptListItem `json:"attempts"`
	}
	var pagination response.Pagination
	path := fmt.Sprintf("/api/v1/exam/attempts?page=%d&per_page=%d", page, perPage)
	if err := c.do(ctx, http.MethodGet, path, nil, &out, &pagination); err != nil {
		return nil, nil, err
	}
	return out.Attempts, &pagination, nil
}

// SummaryFromResult converts the server's result into the display model.
func SummaryFromResult(r model.ExamResult) *examflow.Summary {
	s := &examflow.Summary{
		TotalScore:     r.TotalScore90,
		CorrectAnswers: r.CorrectAnswers,
		TotalQuestions: r.TotalQuestions,
		TotalTime:      time.Duration(r.TotalTimeSeconds) * time.Second,
		Sections:       make([]examflow.SectionScore, 0, len(r.Sections)),
	}
	for _, sec := range r.Sections {
		s.Sections = append(s.Sections, examflow.SectionScore{
			Kind:       examflow.SectionKind(sec.Kind),
			OrderIndex: sec.OrderIndex,
			Correct:    sec.Correct,
			Answered:   sec.Answered,
			Total:      sec.Total,
			Accuracy:   sec.Accuracy,
			TimeSpent:  time.Duration(sec.TimeSpentSeconds) * time.Second,
		})
	}
	return s
}

// ─── Transport ──────────────────────────────────────────────────────

// do sends one request and decodes the envelope's data into out and its
// pagination into page. Either may be nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any, page *response.Pagination) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	reqID := uuid.NewString()
	req.Header.Set(response.HeaderRequestID, reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("method", method).Str("path", path).Msg("Request failed")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Str("request_id", reqID).
		Dur("took", time.Since(start)).
		Msg("Request done")

	var env response.Envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return &Error{Status: resp.StatusCode, Body: response.ErrorBody{Code: response.ErrInternal, Message: resp.Status}}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 || env.Error != nil {
		e := &Error{Status: resp.StatusCode}
		if env.Error != nil {
			e.Body = *env.Error
		}
		return e
	}

	if page != nil && env.Pagination != nil {
		*page = *env.Pagination
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

func attemptPath(attemptID uuid.UUID, suffix string) string {
	return "/api/v1/exam/" + attemptID.String() + suffix
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
