package examflow

import (
	"time"

	"github.com/google/uuid"
)

// QuestionStatus is the per-question marker shown in the question strip.
type QuestionStatus struct {
	ID      uuid.UUID
	Status  AnswerStatus
	Flagged bool
	Current bool
}

// SectionView is a read-only copy of the active section.
type SectionView struct {
	ID         uuid.UUID
	Kind       SectionKind
	OrderIndex int
	State      SectionState
	Remaining  time.Duration
	Cursor     int
	Question   Question
	Record     AnswerRecord
	Questions  []QuestionStatus
	Counts     LedgerCounts
	Submitting bool
}

// Snapshot is a consistent copy of the controller state for rendering.
type Snapshot struct {
	State        SessionState
	AttemptID    uuid.UUID
	SectionIndex int
	SectionCount int
	Section      *SectionView
	Summary      *Summary
	// Pending names the step Retry would repeat, empty when there is none.
	Pending string
	Err     error
	Busy    bool
}

// Snapshot copies the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:        c.state,
		AttemptID:    c.attempt.ID,
		SectionIndex: c.index,
		SectionCount: len(c.attempt.Sections),
		Pending:      c.pending.String(),
		Err:          c.lastErr,
		Busy:         c.busy,
	}
	if c.summary != nil {
		sum := *c.summary
		s.Summary = &sum
	}
	if c.runner == nil {
		return s
	}

	r := c.runner
	sec := r.Section()
	view := &SectionView{
		ID:         sec.ID,
		Kind:       sec.Kind,
		OrderIndex: sec.OrderIndex,
		State:      r.State(),
		Remaining:  r.Remaining(c.clock.Now()),
		Cursor:     r.Cursor(),
		Counts:     r.Ledger().Counts(),
		Submitting: r.Submitting(),
		Questions:  make([]QuestionStatus, 0, len(sec.Questions)),
	}
	if q, ok := r.Current(); ok {
		view.Question = q
		view.Record, _ = r.Ledger().Record(q.ID)
	}
	for i, rec := range r.Ledger().Records() {
		view.Questions = append(view.Questions, QuestionStatus{
			ID:      rec.QuestionID,
			Status:  rec.Status,
			Flagged: rec.Flagged,
			Current: i == view.Cursor,
		})
	}
	s.Section = view
	return s
}
