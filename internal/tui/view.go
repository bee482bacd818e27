package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/tzavrishon/mivhan/internal/examflow"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F0F0F0"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	clockStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F0F0F0"))
	clockWarn     = clockStyle.Foreground(lipgloss.Color("#FFA940"))
	clockCritical = clockStyle.Foreground(lipgloss.Color("#FF4D4F"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	correctStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	wrongStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#1F1F1F")).Background(lipgloss.Color("#FFA940")).Padding(0, 1)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Background(lipgloss.Color("#A8071A")).Padding(0, 1)

	stripStyles = map[examflow.AnswerStatus]lipgloss.Style{
		examflow.StatusEmpty:      lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C")),
		examflow.StatusPending:    lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")),
		examflow.StatusConfirmed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A")),
		examflow.StatusUnanswered: lipgloss.NewStyle().Foreground(lipgloss.Color("#595959")).Strikethrough(true),
	}
)

// Countdown colour thresholds.
const (
	criticalRemaining = 60 * time.Second
	warnRemaining     = 300 * time.Second
)

// View implements tea.Model.
func (m *Model) View() string {
	var body string
	switch m.screen {
	case screenStart:
		body = m.viewStart()
	case screenSummary:
		body = m.viewSummary()
	default:
		body = m.viewExam()
	}
	if m.width == 0 || m.height == 0 {
		return body
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Top, body)
}

func (m *Model) contentWidth() int {
	if m.width == 0 {
		return 80
	}
	w := int(float64(m.width) * 0.8)
	if w < 20 {
		w = 20
	}
	return w
}

func (m *Model) viewStart() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Timed reasoning exam"))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.NewStyle().Width(m.contentWidth()).Render(
		"The exam has several timed sections, taken in order. When a section's time runs out " +
			"or every question is answered, it closes for good and the next one starts. " +
			"Each answer is final once it is sent."))
	b.WriteString("\n\n")
	b.WriteString(m.helpLine())
	b.WriteString("\n\n")
	b.WriteString(selectedStyle.Render("Press Enter to start, q to quit."))
	return b.String()
}

func (m *Model) viewExam() string {
	snap := m.snap
	var b strings.Builder

	sec := snap.Section
	if sec == nil {
		b.WriteString(mutedStyle.Render("Loading section…"))
		b.WriteString("\n")
		b.WriteString(m.statusLines())
		return b.String()
	}

	header := fmt.Sprintf("Section %d/%d · %s", snap.SectionIndex+1, snap.SectionCount, sec.Kind.Label())
	b.WriteString(titleStyle.Render(header))
	b.WriteString("   ")
	b.WriteString(countdownStyle(sec.Remaining).Render(examflow.FormatClock(sec.Remaining)))
	b.WriteString("\n\n")

	b.WriteString(renderStrip(sec.Questions, m.contentWidth()))
	b.WriteString("\n\n")

	if sec.State == examflow.SectionLocked {
		b.WriteString(mutedStyle.Render("Section closed. Moving on…"))
		b.WriteString("\n")
	} else {
		b.WriteString(m.renderQuestion(sec))
	}

	b.WriteString("\n")
	c := sec.Counts
	b.WriteString(footerStyle.Render(fmt.Sprintf("Answered %d/%d", c.Confirmed, c.Total)))
	if sec.Submitting {
		b.WriteString(footerStyle.Render("  · sending…"))
	}
	b.WriteString("\n")
	b.WriteString(m.statusLines())
	return b.String()
}

func (m *Model) renderQuestion(sec *examflow.SectionView) string {
	width := m.contentWidth()
	q, rec := sec.Question, sec.Record

	var b strings.Builder
	label := fmt.Sprintf("Question %d", sec.Cursor+1)
	if rec.Flagged {
		label += " ⚑"
	}
	b.WriteString(mutedStyle.Render(label))
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Width(width).Render(q.Prompt))
	b.WriteString("\n")
	if q.ImageURL != "" {
		b.WriteString(mutedStyle.Render("[image] " + q.ImageURL))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for i, ch := range q.Choices {
		text := ch.Text
		if text == "" && ch.ImageURL != "" {
			text = "[image] " + ch.ImageURL
		}
		line := fmt.Sprintf("%d) %s", i+1, runewidth.Truncate(text, width-4, "…"))
		style := lipgloss.NewStyle()
		if ch.ID == rec.ChoiceID {
			style = selectedStyle
			if rec.Status == examflow.StatusConfirmed && rec.Correct != nil {
				if *rec.Correct {
					style = correctStyle
				} else {
					style = wrongStyle
				}
			}
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	switch rec.Status {
	case examflow.StatusConfirmed:
		b.WriteString(mutedStyle.Render("Answer recorded. Enter moves to the next open question."))
	case examflow.StatusPending:
		b.WriteString(mutedStyle.Render("Press Enter to send your answer."))
	default:
		b.WriteString(mutedStyle.Render("Choose 1-4."))
	}
	b.WriteString("\n")
	return b.String()
}

func (m *Model) statusLines() string {
	var lines []string
	if m.quitOpen {
		lines = append(lines, errorStyle.Render("Leave the exam? The timer keeps running on the server. y/n"))
	}
	if m.gotoOpen {
		lines = append(lines, m.gotoIn.View())
	}
	if err := m.snap.Err; err != nil {
		msg := err.Error()
		if m.snap.Pending != "" {
			msg += " · r to retry"
		}
		lines = append(lines, errorStyle.Render(msg+" · esc to dismiss"))
	}
	if m.notice != "" {
		lines = append(lines, noticeStyle.Render(m.notice))
	}
	lines = append(lines, m.helpLine())
	return strings.Join(lines, "\n")
}

func (m *Model) helpLine() string {
	flag := m.keymap.Flag
	if flag == "" {
		flag = examflow.DefaultKeymap.Flag
	}
	return footerStyle.Render(fmt.Sprintf("1-4 choose · enter send · %s flag · ←/→ move · g go to · r retry · q quit", flag))
}

func (m *Model) viewSummary() string {
	sum := m.snap.Summary
	if sum == nil {
		return mutedStyle.Render("Finishing…")
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Exam complete"))
	b.WriteString("\n\n")
	if err := examflow.Present(*sum).Render(&b); err != nil {
		b.WriteString(err.Error())
	}
	b.WriteString("\n")
	b.WriteString(footerStyle.Render("Press q to exit."))
	return b.String()
}

// countdownStyle picks the clock colour for the remaining time.
func countdownStyle(remaining time.Duration) lipgloss.Style {
	switch {
	case remaining <= criticalRemaining:
		return clockCritical
	case remaining <= warnRemaining:
		return clockWarn
	default:
		return clockStyle
	}
}

// stripCell is the plain label of one question marker, before styling.
func stripCell(i int, q examflow.QuestionStatus) string {
	label := fmt.Sprintf("%d", i+1)
	if q.Flagged {
		label += "⚑"
	}
	if q.Current {
		return "[" + label + "]"
	}
	return " " + label + " "
}

// renderStrip lays the question markers out in rows no wider than width.
func renderStrip(qs []examflow.QuestionStatus, width int) string {
	var rows []string
	var row strings.Builder
	used := 0
	for i, q := range qs {
		cell := stripCell(i, q)
		w := runewidth.StringWidth(cell)
		if used > 0 && used+w > width {
			rows = append(rows, row.String())
			row.Reset()
			used = 0
		}
		style := stripStyles[q.Status]
		if q.Current {
			style = style.Bold(true).Underline(true)
		}
		row.WriteString(style.Render(cell))
		used += w
	}
	if used > 0 {
		rows = append(rows, row.String())
	}
	return strings.Join(rows, "\n")
}
