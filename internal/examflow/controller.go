package examflow

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionState is the lifecycle of an attempt on the client.
type SessionState int

const (
	StateStart SessionState = iota
	StateInProgress
	StateFinished
	StateAborted
)

func (s SessionState) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateInProgress:
		return "in_progress"
	case StateFinished:
		return "finished"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

type step int

const (
	stepNone step = iota
	stepStart
	stepLoad
	stepConfirm
	stepFinish
)

func (s step) String() string {
	switch s {
	case stepStart:
		return "start attempt"
	case stepLoad:
		return "load section"
	case stepConfirm:
		return "confirm section"
	case stepFinish:
		return "finish attempt"
	default:
		return ""
	}
}

// SectionResult is the locked ledger of a section the server confirmed.
type SectionResult struct {
	SectionID  uuid.UUID
	Kind       SectionKind
	OrderIndex int
	Reason     CompletionReason
	Records    []AnswerRecord
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithLogger sets the controller logger.
func WithLogger(log zerolog.Logger) Option {
	return func(ctl *Controller) { ctl.log = log.With().Str("component", "exam_controller").Logger() }
}

// WithTickInterval sets how often Run ticks the section timer.
func WithTickInterval(d time.Duration) Option {
	return func(ctl *Controller) {
		if d > 0 {
			ctl.tick = d
		}
	}
}

// WithKeymap replaces the default key bindings.
func WithKeymap(k Keymap) Option {
	return func(ctl *Controller) { ctl.keymap = k }
}

// Controller runs one exam attempt: start -> in progress -> finished.
//
// It is the only component that calls the API. State changes are serialized
// by a mutex that is never held across a network call; while a section
// transition (confirm, load, finish) is running the controller is busy and
// a second transition is not started.
type Controller struct {
	api    API
	clock  Clock
	log    zerolog.Logger
	tick   time.Duration
	keymap Keymap

	mu          sync.Mutex
	state       SessionState
	attempt     Attempt
	index       int
	runner      *SectionRunner
	completed   map[uuid.UUID]bool
	results     []SectionResult
	summary     *Summary
	pending     step
	pendingFrom int
	busy        bool
	lastErr     error

	updates chan struct{}
}

// NewController creates a controller in the start state. No network call is
// made until Start or Resume.
func NewController(api API, opts ...Option) *Controller {
	c := &Controller{
		api:       api,
		clock:     SystemClock,
		log:       zerolog.Nop(),
		tick:      time.Second,
		keymap:    DefaultKeymap,
		completed: make(map[uuid.UUID]bool),
		updates:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Updates delivers a signal whenever the snapshot may have changed. Signals
// are coalesced.
func (c *Controller) Updates() <-chan struct{} { return c.updates }

func (c *Controller) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// Start creates the attempt on the server and loads its first section.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateStart {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.mu.Unlock()

	return c.drive(ctx, c.startAttempt)
}

func (c *Controller) startAttempt(ctx context.Context) error {
	attempt, err := c.api.StartAttempt(ctx)
	if err != nil {
		return c.fail(stepStart, "start attempt", err)
	}
	c.begin(*attempt)
	c.log.Info().Str("attempt_id", attempt.ID.String()).Int("sections", len(attempt.Sections)).Msg("Attempt started")
	return c.loadFrom(ctx, 0)
}

// Resume continues an attempt created earlier, for example before the
// process restarted. The server decides which section is current.
func (c *Controller) Resume(ctx context.Context, attempt Attempt) error {
	c.mu.Lock()
	if c.state != StateStart {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.mu.Unlock()

	return c.drive(ctx, func(ctx context.Context) error {
		c.begin(attempt)
		c.log.Info().Str("attempt_id", attempt.ID.String()).Msg("Attempt resumed")
		return c.loadFrom(ctx, 0)
	})
}

func (c *Controller) begin(attempt Attempt) {
	sections := append([]SectionInfo(nil), attempt.Sections...)
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].OrderIndex < sections[j].OrderIndex })
	attempt.Sections = sections

	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempt = attempt
	c.state = StateInProgress
	c.pending = stepNone
	c.lastErr = nil
	for _, s := range sections {
		if s.Locked {
			c.completed[s.ID] = true
		}
	}
}

// Abort abandons the attempt. No call is made to the server and no further
// calls follow; the server keeps whatever it last confirmed.
func (c *Controller) Abort() {
	c.mu.Lock()
	if c.state != StateFinished {
		c.state = StateAborted
	}
	c.mu.Unlock()
	c.notify()
}

// SelectChoice selects a choice of the current question.
func (c *Controller) SelectChoice(choiceID uuid.UUID) error {
	return c.withRunner(func(r *SectionRunner) error { return r.SelectChoice(choiceID) })
}

// SelectIndex selects the i-th (zero based) choice of the current question.
func (c *Controller) SelectIndex(i int) error {
	return c.withRunner(func(r *SectionRunner) error { return r.SelectIndex(i) })
}

// ToggleFlag flips the review flag of the current question.
func (c *Controller) ToggleFlag() (bool, error) {
	var flagged bool
	err := c.withRunner(func(r *SectionRunner) error {
		var err error
		flagged, err = r.ToggleFlag()
		return err
	})
	return flagged, err
}

// NavigateTo moves to question i of the current section. There is no way
// back into an earlier section.
func (c *Controller) NavigateTo(i int) error {
	return c.withRunner(func(r *SectionRunner) error { return r.NavigateTo(i, c.clock.Now()) })
}

func (c *Controller) withRunner(fn func(r *SectionRunner) error) error {
	c.mu.Lock()
	if err := c.activeLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	err := fn(c.runner)
	c.mu.Unlock()
	c.notify()
	return err
}

func (c *Controller) activeLocked() error {
	switch c.state {
	case StateStart:
		return ErrNotStarted
	case StateFinished:
		return ErrFinished
	case StateAborted:
		return ErrAborted
	}
	if c.runner == nil {
		return ErrTransitioning
	}
	return nil
}

// Submit sends the selected answer of the current question. A second call
// while one is in flight fails with ErrSubmitInFlight; a question that is
// already confirmed is a no-op. On success the cursor advances, and after
// the last open question the section is confirmed and the next one loaded.
func (c *Controller) Submit(ctx context.Context) (SubmitOutcome, error) {
	c.mu.Lock()
	if err := c.activeLocked(); err != nil {
		c.mu.Unlock()
		return 0, err
	}
	runner := c.runner
	attemptID := c.attempt.ID
	req, err := runner.BeginSubmit(c.clock.Now())
	c.mu.Unlock()
	if errors.Is(err, ErrAlreadyRecorded) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	c.notify()

	res, apiErr := c.api.SubmitAnswer(ctx, attemptID, req)

	c.mu.Lock()
	outcome := runner.FinishSubmit(req, res, apiErr, c.clock.Now())
	aborted := c.state == StateAborted
	if outcome == OutcomeFailed {
		c.lastErr = &RetryableError{Op: "submit answer", Err: apiErr}
	} else if outcome != OutcomeStale {
		c.lastErr = nil
	}
	lastErr := c.lastErr
	c.mu.Unlock()
	c.notify()

	switch {
	case aborted:
		return outcome, ErrAborted
	case outcome == OutcomeFailed:
		c.log.Warn().Err(apiErr).Str("question_id", req.QuestionID.String()).Msg("Submit failed")
		return outcome, lastErr
	case outcome == OutcomeStale:
		c.log.Debug().Str("question_id", req.QuestionID.String()).Msg("Dropped response for locked section")
		return outcome, nil
	}

	if err := c.drive(ctx, nil); err != nil && !errors.Is(err, ErrTransitioning) {
		return outcome, err
	}
	return outcome, nil
}

// Enter is the Enter key: it submits the current question, or moves past it
// when it is already confirmed.
func (c *Controller) Enter(ctx context.Context) error {
	c.mu.Lock()
	if err := c.activeLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	r := c.runner
	if q, ok := r.Current(); ok && r.Ledger().IsConfirmed(q.ID) {
		next, open := r.nextOpen(r.Cursor())
		var err error
		if open {
			err = r.NavigateTo(next, c.clock.Now())
		}
		c.mu.Unlock()
		c.notify()
		return err
	}
	c.mu.Unlock()

	_, err := c.Submit(ctx)
	return err
}

// HandleKey applies a key press. Keys typed while a text field has focus are
// ignored.
func (c *Controller) HandleKey(ctx context.Context, key string, inTextField bool) error {
	b := c.keymap.Resolve(key, inTextField)
	switch b.Action {
	case ActionSelect:
		return c.SelectIndex(b.Choice)
	case ActionSubmit:
		return c.Enter(ctx)
	case ActionToggleFlag:
		_, err := c.ToggleFlag()
		return err
	default:
		return nil
	}
}

// Tick recomputes the section deadline. When it has passed, the section is
// locked and the controller moves on.
func (c *Controller) Tick(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInProgress || c.runner == nil {
		c.mu.Unlock()
		return nil
	}
	_, expired := c.runner.Tick(c.clock.Now())
	sectionID := c.runner.Section().ID
	c.mu.Unlock()
	c.notify()

	if !expired {
		return nil
	}
	c.log.Info().Str("section_id", sectionID.String()).Msg("Section time expired")
	if err := c.drive(ctx, nil); err != nil && !errors.Is(err, ErrTransitioning) {
		return err
	}
	return nil
}

// Run ticks the section timer until ctx is done or the attempt ends.
func (c *Controller) Run(ctx context.Context) error {
	t := time.NewTicker(c.tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := c.Tick(ctx); err != nil {
				c.log.Warn().Err(err).Msg("Tick failed")
			}
			c.mu.Lock()
			state := c.state
			c.mu.Unlock()
			if state == StateFinished || state == StateAborted {
				return nil
			}
		}
	}
}

// Retry repeats the step that failed last: creating the attempt, confirming
// a section, loading a section, or finishing the attempt. Retries are only
// ever user initiated.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	p, from := c.pending, c.pendingFrom
	state := c.state
	c.mu.Unlock()

	if state == StateAborted {
		return ErrAborted
	}
	switch p {
	case stepStart:
		if state != StateStart {
			return ErrNothingToRetry
		}
		return c.drive(ctx, c.startAttempt)
	case stepConfirm:
		return c.drive(ctx, c.afterSection)
	case stepLoad:
		return c.drive(ctx, func(ctx context.Context) error { return c.loadFrom(ctx, from) })
	case stepFinish:
		return c.drive(ctx, c.finish)
	default:
		return ErrNothingToRetry
	}
}

// DismissError clears the last reported failure.
func (c *Controller) DismissError() {
	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
	c.notify()
}

// drive runs fn as the single active transition, then keeps advancing while
// the current section is done but not yet confirmed. Concurrent callers get
// ErrTransitioning; a completion they caused is picked up by the running
// driver before it lets go.
func (c *Controller) drive(ctx context.Context, fn func(context.Context) error) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrTransitioning
	}
	c.busy = true
	c.mu.Unlock()
	c.notify()

	var err error
	if fn != nil {
		err = fn(ctx)
	}
	for {
		c.mu.Lock()
		if err != nil || !c.needsAdvanceLocked() {
			c.busy = false
			c.mu.Unlock()
			c.notify()
			return err
		}
		c.mu.Unlock()
		err = c.afterSection(ctx)
	}
}

func (c *Controller) needsAdvanceLocked() bool {
	if c.state != StateInProgress || c.runner == nil || c.pending != stepNone {
		return false
	}
	if _, done := c.runner.Done(); !done {
		return false
	}
	return !c.completed[c.runner.Section().ID]
}

// afterSection confirms the finished section with the server and moves on
// to the next section or finishes the attempt.
func (c *Controller) afterSection(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateAborted {
		c.mu.Unlock()
		return ErrAborted
	}
	r, idx, attemptID := c.runner, c.index, c.attempt.ID
	sec := r.Section()
	confirmed := c.completed[sec.ID]
	c.pending = stepConfirm
	c.mu.Unlock()

	if !confirmed {
		if err := c.api.ConfirmSection(ctx, attemptID, sec.ID); err != nil {
			return c.fail(stepConfirm, "confirm section", err)
		}
		reason, _ := r.Done()
		c.mu.Lock()
		c.completed[sec.ID] = true
		c.results = append(c.results, SectionResult{
			SectionID:  sec.ID,
			Kind:       sec.Kind,
			OrderIndex: sec.OrderIndex,
			Reason:     reason,
			Records:    r.Ledger().Records(),
		})
		c.mu.Unlock()
		c.log.Info().Str("section_id", sec.ID.String()).Str("reason", reason.String()).Msg("Section confirmed")
	}
	return c.loadFrom(ctx, idx+1)
}

// loadFrom loads the next section the server hands out, starting at position
// from. A section the server refuses to hand out is treated as completed and
// skipped. When nothing is left the attempt is finished.
func (c *Controller) loadFrom(ctx context.Context, from int) error {
	for i := from; ; i++ {
		c.mu.Lock()
		if c.state == StateAborted {
			c.mu.Unlock()
			return ErrAborted
		}
		sections, attemptID := c.attempt.Sections, c.attempt.ID
		if i >= len(sections) {
			c.mu.Unlock()
			return c.finish(ctx)
		}
		if c.completed[sections[i].ID] {
			c.mu.Unlock()
			continue
		}
		c.pending, c.pendingFrom = stepLoad, i
		c.mu.Unlock()

		payload, err := c.api.CurrentSection(ctx, attemptID)
		if err != nil {
			if !errors.Is(err, ErrSectionUnavailable) {
				return c.fail(stepLoad, "load section", err)
			}
			c.log.Warn().Err(err).Int("index", i).Msg("Section unavailable, skipping")
			c.skip(sections[i].ID)
			continue
		}

		pos := -1
		for j, s := range sections {
			if s.ID == payload.SectionID {
				pos = j
				break
			}
		}
		c.mu.Lock()
		stale := pos < i || c.completed[payload.SectionID]
		c.mu.Unlock()
		if stale {
			c.log.Warn().Str("section_id", payload.SectionID.String()).Int("index", i).Msg("Server returned a finished section, skipping")
			c.skip(sections[i].ID)
			continue
		}
		for j := i; j < pos; j++ {
			c.skip(sections[j].ID)
		}

		now := c.clock.Now()
		info := sections[pos]
		runner := NewSectionRunner(Section{
			ID:         payload.SectionID,
			Kind:       payload.Kind,
			OrderIndex: payload.OrderIndex,
			Duration:   info.Duration,
			Deadline:   now.Add(payload.Remaining),
			Questions:  payload.Questions,
		})

		c.mu.Lock()
		if c.state == StateAborted {
			c.mu.Unlock()
			return ErrAborted
		}
		runner.Start(now, payload.AnsweredIDs)
		if payload.Expired {
			runner.Expire()
		}
		c.runner = runner
		c.index = pos
		c.pending = stepNone
		c.lastErr = nil
		c.mu.Unlock()
		c.notify()

		c.log.Debug().
			Str("section_id", payload.SectionID.String()).
			Int("index", pos).
			Int("questions", len(payload.Questions)).
			Dur("remaining", payload.Remaining).
			Msg("Section loaded")
		return nil
	}
}

func (c *Controller) skip(sectionID uuid.UUID) {
	c.mu.Lock()
	c.completed[sectionID] = true
	c.mu.Unlock()
}

// finish calls the finish endpoint once and stores the summary.
func (c *Controller) finish(ctx context.Context) error {
	c.mu.Lock()
	if c.summary != nil {
		c.mu.Unlock()
		return nil
	}
	if c.state == StateAborted {
		c.mu.Unlock()
		return ErrAborted
	}
	attemptID := c.attempt.ID
	c.pending = stepFinish
	c.mu.Unlock()

	summary, err := c.api.FinishAttempt(ctx, attemptID)
	if err != nil {
		return c.fail(stepFinish, "finish attempt", err)
	}

	c.mu.Lock()
	if c.state != StateAborted {
		c.state = StateFinished
	}
	c.summary = summary
	c.pending = stepNone
	c.lastErr = nil
	c.mu.Unlock()
	c.notify()

	c.log.Info().Str("attempt_id", attemptID.String()).Int("score", summary.TotalScore).Msg("Attempt finished")
	return nil
}

func (c *Controller) fail(s step, op string, err error) error {
	rerr := &RetryableError{Op: op, Err: err}
	c.mu.Lock()
	c.pending = s
	c.lastErr = rerr
	c.mu.Unlock()
	c.notify()
	c.log.Warn().Err(err).Str("op", op).Msg("Exam step failed")
	return rerr
}

// State returns the attempt state.
func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempt returns the attempt being run. The zero value before Start.
func (c *Controller) Attempt() Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// Summary returns the final result once the attempt is finished.
func (c *Controller) Summary() (Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.summary == nil {
		return Summary{}, false
	}
	return *c.summary, true
}

// Results returns the ledgers of the sections confirmed so far.
func (c *Controller) Results() []SectionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SectionResult(nil), c.results...)
}
