package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tzavrishon/mivhan/internal/examflow"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// stubAPI hands out one section with three questions.
type stubAPI struct {
	attempt   uuid.UUID
	section   uuid.UUID
	questions []examflow.Question
	remaining time.Duration

	mu        sync.Mutex
	startErrs []error
}

func newStubAPI(remaining time.Duration) *stubAPI {
	api := &stubAPI{attempt: uuid.New(), section: uuid.New(), remaining: remaining}
	for i := 0; i < 3; i++ {
		q := examflow.Question{ID: uuid.New(), Prompt: "prompt"}
		for j := 0; j < 4; j++ {
			q.Choices = append(q.Choices, examflow.Choice{ID: uuid.New(), Text: "choice"})
		}
		api.questions = append(api.questions, q)
	}
	return api
}

func (s *stubAPI) StartAttempt(context.Context) (*examflow.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.startErrs) > 0 {
		err := s.startErrs[0]
		s.startErrs = s.startErrs[1:]
		return nil, err
	}
	return &examflow.Attempt{ID: s.attempt, Sections: []examflow.SectionInfo{{
		ID: s.section, Kind: examflow.KindVerbalAnalogy, Duration: s.remaining,
	}}}, nil
}

func (s *stubAPI) CurrentSection(context.Context, uuid.UUID) (*examflow.SectionPayload, error) {
	return &examflow.SectionPayload{
		SectionID: s.section,
		Kind:      examflow.KindVerbalAnalogy,
		Remaining: s.remaining,
		Questions: s.questions,
	}, nil
}

func (s *stubAPI) SubmitAnswer(context.Context, uuid.UUID, examflow.SubmitAnswerRequest) (*examflow.SubmitResult, error) {
	return &examflow.SubmitResult{Correct: true}, nil
}

func (s *stubAPI) ConfirmSection(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (s *stubAPI) FinishAttempt(context.Context, uuid.UUID) (*examflow.Summary, error) {
	return &examflow.Summary{TotalScore: 90}, nil
}

func startedModel(t *testing.T, remaining time.Duration) (*Model, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	ctl := examflow.NewController(newStubAPI(remaining), examflow.WithClock(clock))
	if err := ctl.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	m := NewModel(Options{Controller: ctl, Keymap: examflow.DefaultKeymap, Log: zerolog.Nop()})
	t.Cleanup(m.cancel)
	m.screen = screenExam
	m.refresh(clock.Now())
	return m, clock
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestModel_SelectAndFlagAreImmediate(t *testing.T) {
	m, _ := startedModel(t, 10*time.Minute)

	m.Update(runes("2"))
	sec := m.Snapshot().Section
	if sec.Record.ChoiceID != sec.Question.Choices[1].ID {
		t.Fatalf("expected choice 2 selected, got %s", sec.Record.ChoiceID)
	}

	m.Update(runes("f"))
	if !m.Snapshot().Section.Record.Flagged {
		t.Fatal("expected the question to be flagged")
	}
}

func TestModel_GotoFieldDisablesExamKeys(t *testing.T) {
	m, _ := startedModel(t, 10*time.Minute)

	m.Update(runes("g"))
	if !m.gotoOpen {
		t.Fatal("expected the go-to field to open")
	}
	m.Update(runes("3"))
	if m.Snapshot().Section.Record.HasChoice() {
		t.Fatal("digit typed into the go-to field must not select a choice")
	}
	if m.gotoIn.Value() != "3" {
		t.Fatalf("field value = %q", m.gotoIn.Value())
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.gotoOpen {
		t.Fatal("enter should close the field")
	}
	if got := m.Snapshot().Section.Cursor; got != 2 {
		t.Fatalf("expected cursor 2, got %d", got)
	}

	m.Update(runes("g"))
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.gotoOpen {
		t.Fatal("esc should close the field")
	}
}

func TestModel_ArrowNavigation(t *testing.T) {
	m, _ := startedModel(t, 10*time.Minute)

	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	if got := m.Snapshot().Section.Cursor; got != 1 {
		t.Fatalf("expected cursor 1, got %d", got)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	if got := m.Snapshot().Section.Cursor; got != 0 {
		t.Fatalf("expected cursor 0, got %d", got)
	}
	if m.notice == "" {
		t.Fatal("moving before the first question should leave a notice")
	}
}

func TestModel_TimeWarningNotice(t *testing.T) {
	m, clock := startedModel(t, 10*time.Minute+2*time.Second)

	clock.Advance(time.Second)
	m.refresh(clock.Now())
	if m.notice != "" {
		t.Fatalf("unexpected notice %q", m.notice)
	}

	clock.Advance(2 * time.Second)
	m.refresh(clock.Now())
	if m.notice != "10 minutes left in this section" {
		t.Fatalf("notice = %q", m.notice)
	}
}

func TestModel_QuitAsksFirst(t *testing.T) {
	t.Run("confirm", func(t *testing.T) {
		m, _ := startedModel(t, 10*time.Minute)

		if _, cmd := m.Update(runes("q")); cmd != nil {
			t.Fatal("q must not quit before the learner confirms")
		}
		if !m.quitOpen || m.ctl.State() != examflow.StateInProgress {
			t.Fatalf("expected the prompt open and the attempt running, got open=%v state=%s", m.quitOpen, m.ctl.State())
		}
		if !strings.Contains(m.View(), "Leave the exam?") {
			t.Fatal("expected the prompt in the view")
		}

		_, cmd := m.Update(runes("y"))
		if cmd == nil {
			t.Fatal("expected a quit command")
		}
		if m.ctl.State() != examflow.StateAborted {
			t.Fatalf("expected aborted, got %s", m.ctl.State())
		}
	})

	t.Run("cancel", func(t *testing.T) {
		m, _ := startedModel(t, 10*time.Minute)

		m.Update(runes("q"))
		m.Update(runes("2"))
		if m.Snapshot().Section.Record.HasChoice() {
			t.Fatal("exam keys must be off while the prompt is open")
		}
		m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		if m.quitOpen {
			t.Fatal("esc should close the prompt")
		}
		m.Update(runes("q"))
		if _, cmd := m.Update(runes("n")); cmd != nil || m.quitOpen {
			t.Fatal("n should close the prompt without quitting")
		}
		if m.ctl.State() != examflow.StateInProgress {
			t.Fatalf("expected the attempt to keep running, got %s", m.ctl.State())
		}
		m.Update(runes("2"))
		if !m.Snapshot().Section.Record.HasChoice() {
			t.Fatal("exam keys should work again after the prompt closes")
		}
	})

	t.Run("ctrl+c twice", func(t *testing.T) {
		m, _ := startedModel(t, 10*time.Minute)

		if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC}); cmd != nil {
			t.Fatal("first ctrl+c should only open the prompt")
		}
		if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC}); cmd == nil {
			t.Fatal("second ctrl+c should quit")
		}
	})
}

func TestModel_RetryAfterFailedStart(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	api := newStubAPI(10 * time.Minute)
	api.startErrs = []error{errors.New("connection refused")}
	ctl := examflow.NewController(api, examflow.WithClock(clock))
	m := NewModel(Options{Controller: ctl, Keymap: examflow.DefaultKeymap, Log: zerolog.Nop()})
	t.Cleanup(m.cancel)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected the start command")
	}
	m.Update(cmd())
	if m.snap.Err == nil || !strings.Contains(m.View(), "r to retry") {
		t.Fatalf("expected a retryable notice, got err=%v", m.snap.Err)
	}

	_, cmd = m.Update(runes("r"))
	if cmd == nil {
		t.Fatal("expected the retry command")
	}
	m.Update(cmd())
	if m.snap.State != examflow.StateInProgress || m.snap.Section == nil {
		t.Fatalf("expected the first section after retry, got %+v", m.snap)
	}
}

func TestParseGoto(t *testing.T) {
	tests := map[string]struct {
		want int
		ok   bool
	}{
		"1":   {0, true},
		" 12": {11, true},
		"0":   {0, false},
		"":    {0, false},
		"x":   {0, false},
	}
	for in, tt := range tests {
		got, ok := parseGoto(in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseGoto(%q) = %d, %v; want %d, %v", in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCountdownStyle(t *testing.T) {
	tests := []struct {
		remaining time.Duration
		want      lipgloss.TerminalColor
	}{
		{20 * time.Minute, clockStyle.GetForeground()},
		{300 * time.Second, lipgloss.Color("#FFA940")},
		{61 * time.Second, lipgloss.Color("#FFA940")},
		{60 * time.Second, lipgloss.Color("#FF4D4F")},
		{0, lipgloss.Color("#FF4D4F")},
	}
	for _, tt := range tests {
		if got := countdownStyle(tt.remaining).GetForeground(); got != tt.want {
			t.Errorf("countdownStyle(%s) = %v, want %v", tt.remaining, got, tt.want)
		}
	}
}

func TestRenderStripWraps(t *testing.T) {
	qs := make([]examflow.QuestionStatus, 12)
	qs[0].Current = true
	qs[3].Flagged = true

	out := renderStrip(qs, 16)
	rows := strings.Split(out, "\n")
	if len(rows) < 2 {
		t.Fatalf("expected the strip to wrap, got %q", out)
	}
	for _, r := range rows {
		if w := lipgloss.Width(r); w > 16 {
			t.Errorf("row %q is %d wide", r, w)
		}
	}
	if !strings.Contains(out, "[1]") || !strings.Contains(out, "4⚑") {
		t.Errorf("markers missing from %q", out)
	}
}
