package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamAttempt is one run through all sections by one learner.
type ExamAttempt struct {
	ID           uuid.UUID  `json:"id"`
	LearnerID    int        `json:"learner_id"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	TotalScore90 *int       `json:"total_score_90,omitempty"`
}

// ExamSection is a timed group of questions of one kind within an attempt.
type ExamSection struct {
	ID              uuid.UUID   `json:"id"`
	AttemptID       uuid.UUID   `json:"attempt_id"`
	Kind            SectionKind `json:"kind"`
	OrderIndex      int         `json:"order_index"`
	DurationSeconds int         `json:"duration_seconds"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	EndedAt         *time.Time  `json:"ended_at,omitempty"`
	Locked          bool        `json:"locked"`
	ScoreSection    *int        `json:"score_section,omitempty"`
}

// Duration returns the section duration.
func (s *ExamSection) Duration() time.Duration {
	return time.Duration(s.DurationSeconds) * time.Second
}

// ExamAnswer is a recorded answer. There is at most one per question and
// section.
type ExamAnswer struct {
	ID               int64     `json:"id"`
	SectionID        uuid.UUID `json:"section_id"`
	QuestionID       uuid.UUID `json:"question_id"`
	SelectedOptionID uuid.UUID `json:"selected_option_id"`
	IsCorrect        bool      `json:"is_correct"`
	TimeMs           int64     `json:"time_ms"`
	OrderIndex       int       `json:"order_index"`
	AnsweredAt       time.Time `json:"answered_at"`
}

// ─── Requests ───────────────────────────────────────────────────────

// SubmitAnswerRequest is the payload for answering one question.
type SubmitAnswerRequest struct {
	QuestionID       uuid.UUID `json:"question_id" binding:"required"`
	SelectedOptionID uuid.UUID `json:"selected_option_id" binding:"required"`
	TimeMs           int64     `json:"time_ms" binding:"min=0,max=86400000"`
}

// ConfirmSectionRequest optionally names the section being confirmed.
type ConfirmSectionRequest struct {
	SectionID *uuid.UUID `json:"section_id"`
}

// ListAttemptsQuery holds the pagination parameters of the attempt list.
type ListAttemptsQuery struct {
	Page    int `form:"page" binding:"omitempty,min=1"`
	PerPage int `form:"per_page" binding:"omitempty,min=1,max=100"`
}

// ─── Responses ──────────────────────────────────────────────────────

// SectionSummary describes a section when an attempt starts.
type SectionSummary struct {
	SectionID       uuid.UUID   `json:"section_id"`
	Kind            SectionKind `json:"kind"`
	OrderIndex      int         `json:"order_index"`
	DurationSeconds int         `json:"duration_seconds"`
	Locked          bool        `json:"locked"`
}

// StartExamResponse is returned when an attempt is created.
type StartExamResponse struct {
	AttemptID uuid.UUID        `json:"attempt_id"`
	Sections  []SectionSummary `json:"sections"`
}

// ExamOption is a choice as shown to the learner, without correctness.
type ExamOption struct {
	ID       uuid.UUID `json:"id"`
	Text     string    `json:"text"`
	ImageURL *string   `json:"image_url,omitempty"`
}

// ExamQuestion is a question as shown to the learner.
type ExamQuestion struct {
	ID             uuid.UUID    `json:"id"`
	PromptText     string       `json:"prompt_text"`
	PromptImageURL *string      `json:"prompt_image_url,omitempty"`
	Options        []ExamOption `json:"options"`
}

// CurrentSectionResponse is the section the learner is working on.
type CurrentSectionResponse struct {
	SectionID           uuid.UUID      `json:"section_id"`
	Kind                SectionKind    `json:"kind"`
	OrderIndex          int            `json:"order_index"`
	RemainingSeconds    int64          `json:"remaining_seconds"`
	Expired             bool           `json:"expired"`
	Questions           []ExamQuestion `json:"questions"`
	AnsweredQuestionIDs []uuid.UUID    `json:"answered_question_ids"`
}

// SubmitAnswerResponse tells the learner how the answer was judged.
type SubmitAnswerResponse struct {
	Correct     bool    `json:"correct"`
	Explanation *string `json:"explanation,omitempty"`
}

// SectionScore is the per-section breakdown of a finished attempt.
type SectionScore struct {
	Kind             SectionKind `json:"kind"`
	OrderIndex       int         `json:"order_index"`
	Correct          int         `json:"correct"`
	Answered         int         `json:"answered"`
	Total            int         `json:"total"`
	Accuracy         float64     `json:"accuracy"`
	TimeSpentSeconds int64       `json:"time_spent_seconds"`
}

// ExamResult is the aggregate result of a finished attempt.
type ExamResult struct {
	AttemptID        uuid.UUID      `json:"attempt_id"`
	TotalScore90     int            `json:"total_score_90"`
	TotalQuestions   int            `json:"total_questions"`
	CorrectAnswers   int            `json:"correct_answers"`
	TotalTimeSeconds int64          `json:"total_time_seconds"`
	Sections         []SectionScore `json:"sections"`
}

// AttemptListItem is one row of the learner's attempt history.
type AttemptListItem struct {
	ID           uuid.UUID  `json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	TotalScore90 *int       `json:"total_score_90,omitempty"`
}
