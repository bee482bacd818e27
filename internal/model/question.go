package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SectionKind is the question family a section is made of.
type SectionKind string

const (
	SectionVerbalAnalogy          SectionKind = "VERBAL_ANALOGY"
	SectionShapeAnalogy           SectionKind = "SHAPE_ANALOGY"
	SectionInstructionsDirections SectionKind = "INSTRUCTIONS_DIRECTIONS"
	SectionQuantitative           SectionKind = "QUANTITATIVE"
)

// SectionOrder is the fixed order in which sections are taken.
var SectionOrder = []SectionKind{
	SectionVerbalAnalogy,
	SectionShapeAnalogy,
	SectionInstructionsDirections,
	SectionQuantitative,
}

// Valid reports whether k is one of the known section kinds.
func (k SectionKind) Valid() bool {
	for _, known := range SectionOrder {
		if k == known {
			return true
		}
	}
	return false
}

// MaxOptions is the number of choices a question may have.
const MaxOptions = 4

// Question is a bank question. Only questions flagged IsExamQuestion are
// drawn into exam sections.
type Question struct {
	ID             uuid.UUID        `json:"id"`
	Kind           SectionKind      `json:"kind"`
	PromptText     string           `json:"prompt_text"`
	PromptImageURL *string          `json:"prompt_image_url,omitempty"`
	Explanation    *string          `json:"explanation,omitempty"`
	IsExamQuestion bool             `json:"is_exam_question"`
	CreatedAt      time.Time        `json:"created_at"`
	Options        []QuestionOption `json:"options,omitempty"`
}

// QuestionOption is one choice of a question.
type QuestionOption struct {
	ID          uuid.UUID `json:"id"`
	QuestionID  uuid.UUID `json:"question_id"`
	OptionOrder int       `json:"option_order"`
	Text        string    `json:"text"`
	ImageURL    *string   `json:"image_url,omitempty"`
	IsCorrect   bool      `json:"-"`
}

// ImportQuestion is one question read from a seed file.
type ImportQuestion struct {
	Kind        SectionKind    `toml:"kind" binding:"required,section_kind"`
	Prompt      string         `toml:"prompt" binding:"required,max=2000"`
	ImageURL    string         `toml:"image_url" binding:"omitempty,max=500"`
	Explanation string         `toml:"explanation" binding:"max=2000"`
	Practice    bool           `toml:"practice"`
	Options     []ImportOption `toml:"option" binding:"min=2,max=4,dive"`
}

// ImportOption is one choice of an ImportQuestion.
type ImportOption struct {
	Text     string `toml:"text" binding:"required_without=ImageURL,max=500"`
	ImageURL string `toml:"image_url" binding:"omitempty,max=500"`
	Correct  bool   `toml:"correct"`
}

// ErrCorrectOptionCount is returned when an import question does not have
// exactly one correct option.
var ErrCorrectOptionCount = errors.New("question must have exactly one correct option")

// ToQuestion converts an import entry into a bank question. Empty optional
// strings become nil.
func (iq ImportQuestion) ToQuestion() (*Question, error) {
	correct := 0
	for _, o := range iq.Options {
		if o.Correct {
			correct++
		}
	}
	if correct != 1 {
		return nil, ErrCorrectOptionCount
	}

	q := &Question{
		Kind:           SectionKind(strings.ToUpper(strings.TrimSpace(string(iq.Kind)))),
		PromptText:     strings.TrimSpace(iq.Prompt),
		PromptImageURL: optional(iq.ImageURL),
		Explanation:    optional(iq.Explanation),
		IsExamQuestion: !iq.Practice,
		Options:        make([]QuestionOption, 0, len(iq.Options)),
	}
	for i, o := range iq.Options {
		q.Options = append(q.Options, QuestionOption{
			OptionOrder: i,
			Text:        strings.TrimSpace(o.Text),
			ImageURL:    optional(o.ImageURL),
			IsCorrect:   o.Correct,
		})
	}
	return q, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
