package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExamEventType names what happened during an attempt.
type ExamEventType string

const (
	EventSectionStarted  ExamEventType = "section_started"
	EventAnswerRecorded  ExamEventType = "answer_recorded"
	EventSectionLocked   ExamEventType = "section_locked"
	EventAttemptFinished ExamEventType = "attempt_finished"
)

// ExamEvent is one entry of an attempt's audit trail. It is published to
// live subscribers and queued for persistence.
type ExamEvent struct {
	AttemptID  uuid.UUID       `json:"attempt_id"`
	SectionID  *uuid.UUID      `json:"section_id,omitempty"`
	QuestionID *uuid.UUID      `json:"question_id,omitempty"`
	Type       ExamEventType   `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
