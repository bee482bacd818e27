package examflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func makeQuestions(n int) []Question {
	qs := make([]Question, n)
	for i := range qs {
		qs[i] = Question{ID: uuid.New(), Prompt: "question"}
		for j := 0; j < 4; j++ {
			qs[i].Choices = append(qs[i].Choices, Choice{ID: uuid.New(), Text: string(rune('A' + j))})
		}
	}
	return qs
}

func startedRunner(n int, d time.Duration) *SectionRunner {
	r := NewSectionRunner(Section{
		ID:        uuid.New(),
		Kind:      KindVerbalAnalogy,
		Duration:  d,
		Deadline:  t0.Add(d),
		Questions: makeQuestions(n),
	})
	r.Start(t0, nil)
	return r
}

// fakeSection is one server-side section of fakeAPI.
type fakeSection struct {
	info      SectionInfo
	questions []Question
	correct   map[uuid.UUID]uuid.UUID
	answered  map[uuid.UUID]bool
	locked    bool
}

// fakeAPI is an in-memory exam service. Section order and locking follow the
// real server: the current section is the first unlocked one.
type fakeAPI struct {
	mu       sync.Mutex
	attempt  uuid.UUID
	sections []*fakeSection
	summary  Summary

	startCalls   int
	loadCalls    int
	submitCalls  int
	confirmCalls map[uuid.UUID]int
	finishCalls  int

	// Injected failures, consumed in order.
	startErrs   []error
	loadErrs    []error
	submitErrs  []error
	confirmErrs []error
	finishErrs  []error

	// When set, SubmitAnswer blocks on it before answering.
	submitGate chan struct{}
	submitSeen chan struct{}
}

func newFakeAPI(sizes ...int) *fakeAPI {
	api := &fakeAPI{
		attempt:      uuid.New(),
		confirmCalls: make(map[uuid.UUID]int),
		summary:      Summary{TotalScore: 72, CorrectAnswers: 8, TotalQuestions: 10},
	}
	kinds := []SectionKind{KindVerbalAnalogy, KindShapeAnalogy, KindInstructionsDirections, KindQuantitative}
	for i, n := range sizes {
		s := &fakeSection{
			info: SectionInfo{
				ID:         uuid.New(),
				Kind:       kinds[i%len(kinds)],
				OrderIndex: i,
				Duration:   60 * time.Second,
			},
			questions: makeQuestions(n),
			correct:   make(map[uuid.UUID]uuid.UUID),
			answered:  make(map[uuid.UUID]bool),
		}
		for _, q := range s.questions {
			s.correct[q.ID] = q.Choices[0].ID
		}
		api.sections = append(api.sections, s)
	}
	return api
}

func (f *fakeAPI) current() *fakeSection {
	for _, s := range f.sections {
		if !s.locked {
			return s
		}
	}
	return nil
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakeAPI) StartAttempt(context.Context) (*Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if err := pop(&f.startErrs); err != nil {
		return nil, err
	}
	a := &Attempt{ID: f.attempt}
	for _, s := range f.sections {
		a.Sections = append(a.Sections, s.info)
	}
	return a, nil
}

func (f *fakeAPI) CurrentSection(_ context.Context, _ uuid.UUID) (*SectionPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadCalls++
	if err := pop(&f.loadErrs); err != nil {
		return nil, err
	}
	s := f.current()
	if s == nil {
		return nil, ErrSectionUnavailable
	}
	p := &SectionPayload{
		SectionID:  s.info.ID,
		Kind:       s.info.Kind,
		OrderIndex: s.info.OrderIndex,
		Remaining:  s.info.Duration,
		Questions:  s.questions,
	}
	for _, q := range s.questions {
		if s.answered[q.ID] {
			p.AnsweredIDs = append(p.AnsweredIDs, q.ID)
		}
	}
	return p, nil
}

func (f *fakeAPI) SubmitAnswer(_ context.Context, _ uuid.UUID, req SubmitAnswerRequest) (*SubmitResult, error) {
	f.mu.Lock()
	gate, seen := f.submitGate, f.submitSeen
	f.submitCalls++
	f.mu.Unlock()
	if seen != nil {
		seen <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := pop(&f.submitErrs); err != nil {
		return nil, err
	}
	s := f.current()
	if s == nil {
		return nil, ErrSectionUnavailable
	}
	if s.answered[req.QuestionID] {
		return nil, ErrAlreadyAnswered
	}
	s.answered[req.QuestionID] = true
	return &SubmitResult{Correct: s.correct[req.QuestionID] == req.ChoiceID}, nil
}

func (f *fakeAPI) ConfirmSection(_ context.Context, _ uuid.UUID, sectionID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := pop(&f.confirmErrs); err != nil {
		return err
	}
	f.confirmCalls[sectionID]++
	if s := f.current(); s != nil && s.info.ID == sectionID {
		s.locked = true
	}
	return nil
}

func (f *fakeAPI) FinishAttempt(_ context.Context, _ uuid.UUID) (*Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := pop(&f.finishErrs); err != nil {
		return nil, err
	}
	f.finishCalls++
	for _, s := range f.sections {
		s.locked = true
	}
	sum := f.summary
	return &sum, nil
}

func (f *fakeAPI) confirms(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmCalls[id]
}

func (f *fakeAPI) submits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}
