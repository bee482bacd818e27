package examflow

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SectionState is the lifecycle of a section runner.
type SectionState int

const (
	SectionLoading SectionState = iota
	SectionActive
	SectionLocked
)

func (s SectionState) String() string {
	switch s {
	case SectionLoading:
		return "loading"
	case SectionActive:
		return "active"
	case SectionLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// CompletionReason tells why a section ended.
type CompletionReason int

const (
	// CompletedExhausted: every question was confirmed.
	CompletedExhausted CompletionReason = iota + 1
	// CompletedExpired: the deadline passed.
	CompletedExpired
)

func (r CompletionReason) String() string {
	switch r {
	case CompletedExhausted:
		return "exhausted"
	case CompletedExpired:
		return "expired"
	default:
		return "none"
	}
}

// Section is the runtime form of a loaded section. Deadline is absolute:
// load time plus the duration the server reported.
type Section struct {
	ID         uuid.UUID
	Kind       SectionKind
	OrderIndex int
	Duration   time.Duration
	Deadline   time.Time
	Questions  []Question
}

// SubmitOutcome describes what happened when a submission resolved.
type SubmitOutcome int

const (
	// OutcomeConfirmed: the server accepted the answer.
	OutcomeConfirmed SubmitOutcome = iota + 1
	// OutcomeAlreadyAnswered: the server already had it; confirmed locally.
	OutcomeAlreadyAnswered
	// OutcomeFailed: transient failure, the selection stays pending.
	OutcomeFailed
	// OutcomeStale: the section locked while the request was in flight; the
	// result was dropped.
	OutcomeStale
	// OutcomeExpired: the server closed the section before the local deadline;
	// the section locked as if it expired.
	OutcomeExpired
)

// SectionRunner drives one section: loading -> active -> locked.
type SectionRunner struct {
	section Section
	ledger  *AnswerLedger
	timer   *DeadlineTimer
	state   SectionState
	cursor  int

	inFlight   bool
	inFlightID uuid.UUID

	questionStarted map[uuid.UUID]time.Time
	index           map[uuid.UUID]int

	reason CompletionReason
}

// NewSectionRunner creates a runner in the loading state.
func NewSectionRunner(sec Section) *SectionRunner {
	ids := make([]uuid.UUID, len(sec.Questions))
	index := make(map[uuid.UUID]int, len(sec.Questions))
	for i, q := range sec.Questions {
		ids[i] = q.ID
		index[q.ID] = i
	}
	return &SectionRunner{
		section:         sec,
		ledger:          NewAnswerLedger(sec.ID, ids),
		state:           SectionLoading,
		questionStarted: make(map[uuid.UUID]time.Time, len(sec.Questions)),
		index:           index,
	}
}

// Start activates the section at now. answered lists questions the server
// already holds answers for (resume after reload); they are confirmed without
// a verdict. The cursor lands on the first question still open. A section
// with nothing left to answer completes immediately.
func (r *SectionRunner) Start(now time.Time, answered []uuid.UUID) {
	if r.state != SectionLoading {
		return
	}
	for _, id := range answered {
		if _, ok := r.index[id]; ok {
			r.ledger.Confirm(id, nil, 0)
		}
	}
	duration := r.section.Deadline.Sub(now)
	if r.section.Deadline.IsZero() {
		duration = r.section.Duration
	}
	r.timer = NewDeadlineTimer(now, duration)
	r.state = SectionActive

	next, ok := r.nextOpen(-1)
	if !ok {
		r.lock(CompletedExhausted)
		return
	}
	r.cursor = next
	r.questionStarted[r.section.Questions[next].ID] = now
}

// State returns the runner state.
func (r *SectionRunner) State() SectionState { return r.state }

// Section returns the section the runner owns.
func (r *SectionRunner) Section() Section { return r.section }

// Ledger exposes the section's ledger for reading.
func (r *SectionRunner) Ledger() *AnswerLedger { return r.ledger }

// Cursor returns the index of the current question.
func (r *SectionRunner) Cursor() int { return r.cursor }

// Submitting reports whether a submission is in flight.
func (r *SectionRunner) Submitting() bool { return r.inFlight }

// Done reports whether the section completed, and why.
func (r *SectionRunner) Done() (CompletionReason, bool) {
	return r.reason, r.reason != 0
}

// Remaining returns the time left in the section.
func (r *SectionRunner) Remaining(now time.Time) time.Duration {
	if r.timer == nil {
		return r.section.Duration
	}
	return r.timer.Remaining(now)
}

// Current returns the question under the cursor.
func (r *SectionRunner) Current() (Question, bool) {
	if len(r.section.Questions) == 0 {
		return Question{}, false
	}
	return r.section.Questions[r.cursor], true
}

// SelectChoice records choiceID for the current question. It does not submit.
func (r *SectionRunner) SelectChoice(choiceID uuid.UUID) error {
	if r.state != SectionActive {
		return ErrSectionLocked
	}
	q, ok := r.Current()
	if !ok {
		return ErrOutOfRange
	}
	found := false
	for _, c := range q.Choices {
		if c.ID == choiceID {
			found = true
			break
		}
	}
	if !found {
		return ErrUnknownChoice
	}
	if !r.ledger.Select(q.ID, choiceID) {
		return ErrAlreadyRecorded
	}
	return nil
}

// SelectIndex selects the i-th (zero based) choice of the current question.
func (r *SectionRunner) SelectIndex(i int) error {
	q, ok := r.Current()
	if !ok {
		return ErrOutOfRange
	}
	if i < 0 || i >= len(q.Choices) {
		return ErrUnknownChoice
	}
	return r.SelectChoice(q.Choices[i].ID)
}

// ToggleFlag flips the review flag of the current question.
func (r *SectionRunner) ToggleFlag() (bool, error) {
	if r.state != SectionActive {
		return false, ErrSectionLocked
	}
	q, ok := r.Current()
	if !ok {
		return false, ErrOutOfRange
	}
	flagged, _ := r.ledger.ToggleFlag(q.ID)
	return flagged, nil
}

// NavigateTo moves the cursor within the current section.
func (r *SectionRunner) NavigateTo(i int, now time.Time) error {
	if r.state != SectionActive {
		return ErrSectionLocked
	}
	if i < 0 || i >= len(r.section.Questions) {
		return ErrOutOfRange
	}
	r.cursor = i
	id := r.section.Questions[i].ID
	if _, seen := r.questionStarted[id]; !seen {
		r.questionStarted[id] = now
	}
	return nil
}

// BeginSubmit prepares the submission of the current question and marks it
// in flight. Only one submission may be outstanding; a second attempt is
// rejected with ErrSubmitInFlight, never queued. A question that is already
// confirmed yields ErrAlreadyRecorded, which callers treat as a no-op.
func (r *SectionRunner) BeginSubmit(now time.Time) (SubmitAnswerRequest, error) {
	if r.state != SectionActive {
		return SubmitAnswerRequest{}, ErrSectionLocked
	}
	if r.inFlight {
		return SubmitAnswerRequest{}, ErrSubmitInFlight
	}
	q, ok := r.Current()
	if !ok {
		return SubmitAnswerRequest{}, ErrOutOfRange
	}
	if r.ledger.IsConfirmed(q.ID) {
		return SubmitAnswerRequest{}, ErrAlreadyRecorded
	}
	rec, _ := r.ledger.Record(q.ID)
	if !rec.HasChoice() {
		return SubmitAnswerRequest{}, ErrNoSelection
	}
	started, ok := r.questionStarted[q.ID]
	if !ok {
		started = now
	}
	elapsed := now.Sub(started)
	if elapsed < 0 {
		elapsed = 0
	}
	r.inFlight = true
	r.inFlightID = q.ID
	return SubmitAnswerRequest{QuestionID: q.ID, ChoiceID: rec.ChoiceID, Elapsed: elapsed}, nil
}

// FinishSubmit applies the server's response to a submission started with
// BeginSubmit. An already-answered error counts as success and is confirmed
// with the locally known data. A section the server no longer accepts answers
// for expires the section here too. Any other error leaves the selection
// pending so the learner can resubmit. Once the section is locked the
// response is ignored.
func (r *SectionRunner) FinishSubmit(req SubmitAnswerRequest, res *SubmitResult, err error, now time.Time) SubmitOutcome {
	if r.inFlight && r.inFlightID == req.QuestionID {
		r.inFlight = false
		r.inFlightID = uuid.Nil
	}
	if r.state != SectionActive {
		return OutcomeStale
	}

	outcome := OutcomeConfirmed
	switch {
	case err == nil && res != nil:
		correct := res.Correct
		r.ledger.Confirm(req.QuestionID, &correct, req.Elapsed)
	case errors.Is(err, ErrAlreadyAnswered):
		r.ledger.Confirm(req.QuestionID, nil, req.Elapsed)
		outcome = OutcomeAlreadyAnswered
	case errors.Is(err, ErrSectionUnavailable):
		r.Expire()
		return OutcomeExpired
	default:
		return OutcomeFailed
	}

	r.advanceFrom(req.QuestionID, now)
	return outcome
}

// Tick feeds the clock to the deadline timer. On expiry every question
// without a confirmed answer becomes a synthetic unanswered record, any
// in-flight submission is abandoned, and the section locks.
func (r *SectionRunner) Tick(now time.Time) (remaining time.Duration, expired bool) {
	if r.state != SectionActive {
		return 0, false
	}
	remaining, expired = r.timer.Tick(now)
	if expired {
		r.Expire()
	}
	return remaining, expired
}

// Expire ends the section immediately as if its deadline passed.
func (r *SectionRunner) Expire() {
	if r.state != SectionActive {
		return
	}
	for _, q := range r.section.Questions {
		if !r.ledger.IsConfirmed(q.ID) {
			r.ledger.MarkUnanswered(q.ID)
		}
	}
	r.inFlight = false
	r.inFlightID = uuid.Nil
	r.lock(CompletedExpired)
}

// pause freezes the section deadline.
func (r *SectionRunner) pause(now time.Time) {
	if r.state == SectionActive {
		r.timer.Pause(now)
	}
}

// resume continues after pause, pushing the deadline forward.
func (r *SectionRunner) resume(now time.Time) {
	if r.state == SectionActive {
		r.timer.Resume(now)
	}
}

// advanceFrom moves the cursor after questionID was confirmed. The cursor
// only moves when it still points at that question; the section completes
// once nothing is left open.
func (r *SectionRunner) advanceFrom(questionID uuid.UUID, now time.Time) {
	pos, ok := r.index[questionID]
	if !ok {
		return
	}
	next, open := r.nextOpen(pos)
	if !open {
		r.lock(CompletedExhausted)
		return
	}
	if r.cursor == pos {
		_ = r.NavigateTo(next, now)
	}
}

// nextOpen finds the first unconfirmed question after pos, wrapping around.
func (r *SectionRunner) nextOpen(pos int) (int, bool) {
	n := len(r.section.Questions)
	for step := 1; step <= n; step++ {
		i := (pos + step) % n
		if i < 0 {
			i += n
		}
		if !r.ledger.IsConfirmed(r.section.Questions[i].ID) {
			return i, true
		}
	}
	return 0, false
}

func (r *SectionRunner) lock(reason CompletionReason) {
	r.ledger.Lock()
	r.state = SectionLocked
	r.reason = reason
}
