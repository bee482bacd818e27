// Package examflow implements the learner-side state machine of a timed,
// sectioned exam attempt.
//
// The package is transport agnostic: everything that talks to the
// authoritative exam service goes through the API interface, and wall-clock
// time comes from a Clock. The pieces, leaves first:
//
//   - DeadlineTimer turns a fixed start instant and a duration into remaining
//     time, recomputed on every tick.
//   - AnswerLedger keeps one record per question of a section and guarantees
//     that each question is confirmed at most once.
//   - SectionRunner owns a single section: cursor, ledger, timer and the
//     in-flight submission guard.
//   - Controller owns the attempt: it loads sections in order, confirms them
//     with the server, and finishes the attempt.
//   - Present renders the server's final Summary for display.
package examflow

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SectionKind is the question family a section is made of.
type SectionKind string

const (
	KindVerbalAnalogy          SectionKind = "VERBAL_ANALOGY"
	KindShapeAnalogy           SectionKind = "SHAPE_ANALOGY"
	KindInstructionsDirections SectionKind = "INSTRUCTIONS_DIRECTIONS"
	KindQuantitative           SectionKind = "QUANTITATIVE"
)

// Label returns the human readable section name.
func (k SectionKind) Label() string {
	switch k {
	case KindVerbalAnalogy:
		return "Verbal analogies"
	case KindShapeAnalogy:
		return "Shape analogies"
	case KindInstructionsDirections:
		return "Instructions & directions"
	case KindQuantitative:
		return "Quantitative reasoning"
	default:
		return string(k)
	}
}

// SectionInfo is the summary of one section as returned when an attempt starts.
type SectionInfo struct {
	ID         uuid.UUID
	Kind       SectionKind
	OrderIndex int
	Duration   time.Duration
	Locked     bool
}

// Attempt is one run through all sections by one learner. The section order
// is fixed once the attempt exists.
type Attempt struct {
	ID       uuid.UUID
	Sections []SectionInfo
}

// Choice is one selectable answer of a question.
type Choice struct {
	ID       uuid.UUID
	Text     string
	ImageURL string
}

// Question is immutable once fetched. At most four choices.
type Question struct {
	ID       uuid.UUID
	Prompt   string
	ImageURL string
	Choices  []Choice
}

// SectionPayload is the server's answer to "get current section".
type SectionPayload struct {
	SectionID   uuid.UUID
	Kind        SectionKind
	OrderIndex  int
	Remaining   time.Duration
	Expired     bool
	Questions   []Question
	AnsweredIDs []uuid.UUID
}

// SubmitAnswerRequest is a single answer submission.
type SubmitAnswerRequest struct {
	QuestionID uuid.UUID
	ChoiceID   uuid.UUID
	Elapsed    time.Duration
}

// SubmitResult is what the server knows about a submitted answer.
type SubmitResult struct {
	Correct     bool
	Explanation string
}

// SectionScore is the server's per-section breakdown.
type SectionScore struct {
	Kind       SectionKind
	OrderIndex int
	Correct    int
	Answered   int
	Total      int
	Accuracy   float64
	TimeSpent  time.Duration
}

// Summary is the aggregate result returned by "finish attempt". It is opaque
// to the state machine: the client only displays it.
type Summary struct {
	TotalScore     int
	CorrectAnswers int
	TotalQuestions int
	TotalTime      time.Duration
	Sections       []SectionScore
}

// API is the authoritative exam service as seen by the controller.
//
// SubmitAnswer must return an error matching ErrAlreadyAnswered when the
// question was already recorded, and CurrentSection must return an error
// matching ErrSectionUnavailable when the server has no section to hand out
// (expired, locked, or the attempt has nothing left).
type API interface {
	StartAttempt(ctx context.Context) (*Attempt, error)
	CurrentSection(ctx context.Context, attemptID uuid.UUID) (*SectionPayload, error)
	SubmitAnswer(ctx context.Context, attemptID uuid.UUID, req SubmitAnswerRequest) (*SubmitResult, error)
	// ConfirmSection locks sectionID. Confirming a section that is already
	// locked succeeds without effect.
	ConfirmSection(ctx context.Context, attemptID, sectionID uuid.UUID) error
	FinishAttempt(ctx context.Context, attemptID uuid.UUID) (*Summary, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}
