package examflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AnswerStatus is the lifecycle stage of an answer record.
type AnswerStatus int

const (
	// StatusEmpty: nothing selected yet.
	StatusEmpty AnswerStatus = iota
	// StatusPending: a choice is selected but the server has not accepted it.
	StatusPending
	// StatusConfirmed: the server accepted the answer. Terminal.
	StatusConfirmed
	// StatusUnanswered: synthesized when the section expired. Terminal.
	StatusUnanswered
)

func (s AnswerStatus) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusUnanswered:
		return "unanswered"
	default:
		return fmt.Sprintf("AnswerStatus(%d)", int(s))
	}
}

// AnswerRecord is the ledger entry for one question.
type AnswerRecord struct {
	QuestionID uuid.UUID
	SectionID  uuid.UUID
	// ChoiceID is uuid.Nil when nothing is selected.
	ChoiceID uuid.UUID
	// Correct is nil until the server confirms the answer, and stays nil when
	// the confirmation came without a verdict (already-answered, resumed).
	Correct *bool
	Elapsed time.Duration
	Flagged bool
	Status  AnswerStatus
}

// HasChoice reports whether a choice is selected.
func (r AnswerRecord) HasChoice() bool { return r.ChoiceID != uuid.Nil }

// AnswerLedger holds the answer records of one section. Records only move
// forward: empty -> pending -> confirmed, or to unanswered on expiry. Once
// the ledger is locked nothing in it changes.
type AnswerLedger struct {
	sectionID uuid.UUID
	order     []uuid.UUID
	records   map[uuid.UUID]*AnswerRecord
	// submitted is the submission guard: ids the server has confirmed.
	submitted map[uuid.UUID]struct{}
	locked    bool
}

// NewAnswerLedger creates an empty ledger for the given questions.
func NewAnswerLedger(sectionID uuid.UUID, questionIDs []uuid.UUID) *AnswerLedger {
	l := &AnswerLedger{
		sectionID: sectionID,
		order:     make([]uuid.UUID, 0, len(questionIDs)),
		records:   make(map[uuid.UUID]*AnswerRecord, len(questionIDs)),
		submitted: make(map[uuid.UUID]struct{}, len(questionIDs)),
	}
	for _, id := range questionIDs {
		if _, dup := l.records[id]; dup {
			continue
		}
		l.order = append(l.order, id)
		l.records[id] = &AnswerRecord{QuestionID: id, SectionID: sectionID}
	}
	return l
}

// Select records or replaces the pending choice for a question. It is refused
// (false) once the ledger is locked or the record is terminal.
func (l *AnswerLedger) Select(questionID, choiceID uuid.UUID) bool {
	if l.locked {
		return false
	}
	rec, ok := l.records[questionID]
	if !ok || rec.Status == StatusConfirmed || rec.Status == StatusUnanswered {
		return false
	}
	rec.ChoiceID = choiceID
	rec.Status = StatusPending
	return true
}

// Confirm promotes a record to confirmed after the server accepted it.
// Confirming an already confirmed question, or any question of a locked
// ledger, is a no-op and returns false. Confirming a question that is not
// part of the section panics.
func (l *AnswerLedger) Confirm(questionID uuid.UUID, correct *bool, elapsed time.Duration) bool {
	rec, ok := l.records[questionID]
	if !ok {
		panic(fmt.Sprintf("examflow: confirm for question %s which is not in section %s", questionID, l.sectionID))
	}
	if l.locked {
		return false
	}
	if _, done := l.submitted[questionID]; done {
		return false
	}
	if rec.Status == StatusUnanswered {
		return false
	}
	l.submitted[questionID] = struct{}{}
	if correct != nil {
		v := *correct
		rec.Correct = &v
	}
	rec.Elapsed = elapsed
	rec.Status = StatusConfirmed
	return true
}

// ToggleFlag flips the review flag of a question and returns the new value.
// ok is false when the ledger is locked or the question is unknown.
func (l *AnswerLedger) ToggleFlag(questionID uuid.UUID) (flagged, ok bool) {
	if l.locked {
		return false, false
	}
	rec, found := l.records[questionID]
	if !found {
		return false, false
	}
	rec.Flagged = !rec.Flagged
	return rec.Flagged, true
}

// MarkUnanswered turns an unconfirmed record into the synthetic unanswered
// record used when a section expires: no choice, zero elapsed time.
func (l *AnswerLedger) MarkUnanswered(questionID uuid.UUID) bool {
	if l.locked {
		return false
	}
	rec, ok := l.records[questionID]
	if !ok || rec.Status == StatusConfirmed || rec.Status == StatusUnanswered {
		return false
	}
	rec.ChoiceID = uuid.Nil
	rec.Correct = nil
	rec.Elapsed = 0
	rec.Status = StatusUnanswered
	return true
}

// Lock makes the ledger read-only.
func (l *AnswerLedger) Lock() { l.locked = true }

// Locked reports whether the ledger is read-only.
func (l *AnswerLedger) Locked() bool { return l.locked }

// IsConfirmed consults the submission guard.
func (l *AnswerLedger) IsConfirmed(questionID uuid.UUID) bool {
	_, ok := l.submitted[questionID]
	return ok
}

// Record returns a copy of the record for a question.
func (l *AnswerLedger) Record(questionID uuid.UUID) (AnswerRecord, bool) {
	rec, ok := l.records[questionID]
	if !ok {
		return AnswerRecord{}, false
	}
	return *rec, true
}

// Records returns copies of all records in question order.
func (l *AnswerLedger) Records() []AnswerRecord {
	out := make([]AnswerRecord, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.records[id])
	}
	return out
}

// LedgerCounts tallies records by status.
type LedgerCounts struct {
	Total      int
	Empty      int
	Pending    int
	Confirmed  int
	Unanswered int
}

// Counts tallies the records by status.
func (l *AnswerLedger) Counts() LedgerCounts {
	c := LedgerCounts{Total: len(l.order)}
	for _, id := range l.order {
		switch l.records[id].Status {
		case StatusEmpty:
			c.Empty++
		case StatusPending:
			c.Pending++
		case StatusConfirmed:
			c.Confirmed++
		case StatusUnanswered:
			c.Unanswered++
		}
	}
	return c
}
