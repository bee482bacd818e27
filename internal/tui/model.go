// Package tui provides the Bubble Tea exam interface.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tzavrishon/mivhan/internal/clientstore"
	"github.com/tzavrishon/mivhan/internal/examflow"
)

const (
	frameInterval = 200 * time.Millisecond
	noticeTTL     = 5 * time.Second
)

type screen int

const (
	screenStart screen = iota
	screenExam
	screenSummary
)

type (
	frameMsg  time.Time
	updateMsg struct{}
	opDoneMsg struct {
		op  string
		err error
	}
)

// Options configures a Model.
type Options struct {
	Controller *examflow.Controller
	// Store records the attempt and its summary. May be nil.
	Store     *clientstore.Store
	ServerURL string
	// Resume continues this attempt instead of showing the start screen.
	Resume *examflow.Attempt
	Keymap examflow.Keymap
	Log    zerolog.Logger
}

// Model implements the Bubble Tea exam UI.
type Model struct {
	ctl       *examflow.Controller
	store     *clientstore.Store
	serverURL string
	resume    *examflow.Attempt
	keymap    examflow.Keymap
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	screen   screen
	snap     examflow.Snapshot
	width    int
	height   int
	gotoOpen bool
	gotoIn   textinput.Model
	// quitOpen is the "leave the exam?" prompt on the exam screen.
	quitOpen bool

	notice      string
	noticeUntil time.Time

	warnSection   uuid.UUID
	lastRemaining time.Duration

	recorded bool
	saved    bool
}

// NewModel constructs an exam TUI model.
func NewModel(opts Options) *Model {
	ctx, cancel := context.WithCancel(context.Background())
	in := textinput.New()
	in.Prompt = "Go to question: "
	in.CharLimit = 3
	in.Width = 4
	in.Validate = func(s string) error {
		if _, err := strconv.Atoi(s); s != "" && err != nil {
			return errors.New("digits only")
		}
		return nil
	}

	m := &Model{
		ctl:       opts.Controller,
		store:     opts.Store,
		serverURL: opts.ServerURL,
		resume:    opts.Resume,
		keymap:    opts.Keymap,
		log:       opts.Log,
		ctx:       ctx,
		cancel:    cancel,
		gotoIn:    in,
	}
	if m.resume != nil {
		// A resumed attempt is already on record.
		m.recorded = true
	}
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{frame(), m.waitForUpdate()}
	if m.resume != nil {
		cmds = append(cmds, m.begin())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case frameMsg:
		m.refresh(time.Time(msg))
		return m, frame()
	case updateMsg:
		m.refresh(time.Now())
		return m, m.waitForUpdate()
	case opDoneMsg:
		m.handleOpDone(msg)
		m.refresh(time.Now())
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	default:
		return m, nil
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" && (m.screen != screenExam || m.quitOpen) {
		return m, m.quit()
	}
	if m.quitOpen {
		return m.handleQuitKey(key)
	}
	if m.gotoOpen {
		return m.handleGotoKey(msg)
	}

	switch m.screen {
	case screenStart:
		switch key {
		case "enter":
			return m, m.begin()
		case "q", "esc":
			return m, m.quit()
		}
		return m, nil
	case screenSummary:
		switch key {
		case "q", "enter", "esc":
			return m, m.quit()
		}
		return m, nil
	}

	switch key {
	case "q", "ctrl+c":
		m.quitOpen = true
		return m, nil
	case "g":
		m.gotoOpen = true
		m.gotoIn.SetValue("")
		return m, m.gotoIn.Focus()
	case "r":
		return m, m.run("retry", m.ctl.Retry)
	case "esc":
		m.ctl.DismissError()
		m.notice = ""
		return m, nil
	case "left", "right":
		if m.snap.Section == nil {
			return m, nil
		}
		step := 1
		if key == "left" {
			step = -1
		}
		m.report(m.ctl.NavigateTo(m.snap.Section.Cursor + step))
		m.refresh(time.Now())
		return m, nil
	}

	switch m.keymap.Resolve(key, false).Action {
	case examflow.ActionSubmit:
		return m, m.run("submit", func(ctx context.Context) error {
			return m.ctl.HandleKey(ctx, key, false)
		})
	case examflow.ActionSelect, examflow.ActionToggleFlag:
		m.report(m.ctl.HandleKey(m.ctx, key, false))
		m.refresh(time.Now())
	}
	return m, nil
}

// handleQuitKey answers the leave prompt. Exam bindings are off while it is
// open.
func (m *Model) handleQuitKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "y", "Y":
		m.quitOpen = false
		return m, m.quit()
	case "n", "N", "esc":
		m.quitOpen = false
	}
	return m, nil
}

// handleGotoKey routes keys to the go-to field. Exam bindings are off while
// it has focus.
func (m *Model) handleGotoKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closeGoto()
		return m, nil
	case "enter":
		n, ok := parseGoto(m.gotoIn.Value())
		m.closeGoto()
		if !ok {
			m.setNotice("Enter a question number")
			return m, nil
		}
		m.report(m.ctl.NavigateTo(n))
		m.refresh(time.Now())
		return m, nil
	}
	var cmd tea.Cmd
	m.gotoIn, cmd = m.gotoIn.Update(msg)
	return m, cmd
}

func (m *Model) closeGoto() {
	m.gotoOpen = false
	m.gotoIn.Blur()
	m.gotoIn.SetValue("")
}

// parseGoto turns the one based number typed by the learner into a cursor
// position.
func parseGoto(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}

// begin starts or resumes the attempt and the section timer.
func (m *Model) begin() tea.Cmd {
	if m.screen != screenStart {
		return nil
	}
	m.screen = screenExam
	go func() {
		if err := m.ctl.Run(m.ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.log.Warn().Err(err).Msg("Timer loop stopped")
		}
	}()

	if m.resume != nil {
		attempt := *m.resume
		return m.run("resume", func(ctx context.Context) error {
			return m.ctl.Resume(ctx, attempt)
		})
	}
	return m.run("start", m.ctl.Start)
}

// run executes a controller call that may hit the network off the UI loop.
func (m *Model) run(op string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m *Model) handleOpDone(msg opDoneMsg) {
	switch {
	case msg.err == nil:
		return
	case errors.Is(msg.err, examflow.ErrTransitioning),
		errors.Is(msg.err, examflow.ErrAborted),
		errors.Is(msg.err, context.Canceled):
		return
	case errors.Is(msg.err, examflow.ErrNothingToRetry):
		m.setNotice("Nothing to retry")
	case examflow.IsRetryable(msg.err):
		// Shown from the snapshot with the retry hint.
	default:
		m.log.Warn().Err(msg.err).Str("op", msg.op).Msg("Exam action failed")
		m.setNotice(fmt.Sprintf("%s failed: %v", msg.op, msg.err))
	}
}

// report turns local rule violations into a short notice.
func (m *Model) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, examflow.ErrOutOfRange):
		m.setNotice("No such question in this section")
	case errors.Is(err, examflow.ErrSectionLocked):
		m.setNotice("This section is closed")
	case errors.Is(err, examflow.ErrUnknownChoice):
		m.setNotice("That choice does not exist for this question")
	case errors.Is(err, examflow.ErrSubmitInFlight), errors.Is(err, examflow.ErrTransitioning):
		m.setNotice("Please wait…")
	case errors.Is(err, examflow.ErrAlreadyRecorded):
		m.setNotice("This question is already answered")
	default:
		m.setNotice(err.Error())
	}
}

func (m *Model) setNotice(s string) {
	m.notice = s
	m.noticeUntil = time.Now().Add(noticeTTL)
}

// refresh takes a new snapshot and reacts to what changed.
func (m *Model) refresh(now time.Time) {
	m.snap = m.ctl.Snapshot()
	if m.notice != "" && now.After(m.noticeUntil) {
		m.notice = ""
	}
	if !m.recorded && m.snap.AttemptID != uuid.Nil {
		m.recordAttempt()
	}

	if sec := m.snap.Section; sec != nil && m.snap.State == examflow.StateInProgress {
		if sec.ID != m.warnSection {
			m.warnSection = sec.ID
			m.lastRemaining = sec.Remaining
		}
		if th, ok := examflow.CrossedWarning(m.lastRemaining, sec.Remaining); ok {
			m.setNotice(warningText(th))
		}
		m.lastRemaining = sec.Remaining
	}

	if m.snap.State == examflow.StateFinished && m.snap.Summary != nil {
		m.saveSummary(*m.snap.Summary)
		m.screen = screenSummary
	}
}

func warningText(th time.Duration) string {
	mins := int(th / time.Minute)
	if mins == 1 {
		return "1 minute left in this section"
	}
	return fmt.Sprintf("%d minutes left in this section", mins)
}

func (m *Model) recordAttempt() {
	if m.recorded || m.store == nil {
		return
	}
	a := m.ctl.Attempt()
	if a.ID == uuid.Nil {
		return
	}
	// One try per attempt; a failed write only costs resume support.
	m.recorded = true
	if err := m.store.RecordAttempt(context.Background(), m.serverURL, a, time.Now()); err != nil {
		m.log.Warn().Err(err).Msg("Failed to record attempt locally")
	}
}

func (m *Model) saveSummary(sum examflow.Summary) {
	if m.saved || m.store == nil {
		return
	}
	m.saved = true
	if err := m.store.SaveSummary(context.Background(), m.snap.AttemptID, sum, time.Now()); err != nil {
		m.log.Warn().Err(err).Msg("Failed to save summary locally")
	}
}

func (m *Model) quit() tea.Cmd {
	if m.screen == screenExam {
		m.ctl.Abort()
	}
	m.cancel()
	return tea.Quit
}

func (m *Model) waitForUpdate() tea.Cmd {
	ch := m.ctl.Updates()
	return func() tea.Msg {
		<-ch
		return updateMsg{}
	}
}

func frame() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

// Snapshot returns the state last rendered.
func (m *Model) Snapshot() examflow.Snapshot { return m.snap }
