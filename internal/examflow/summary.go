package examflow

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// MaxScore is the top of the score scale the server reports on.
const MaxScore = 90

// SummaryRow is one display line of the per-section breakdown.
type SummaryRow struct {
	Section  string
	Correct  string
	Answered string
	Accuracy string
	Time     string
}

// SummaryView is a Summary formatted for display.
type SummaryView struct {
	Score     string
	Correct   string
	TotalTime string
	Rows      []SummaryRow
}

// Present formats the server's aggregate result. It does not compute
// anything the server did not send.
func Present(s Summary) SummaryView {
	v := SummaryView{
		Score:     fmt.Sprintf("%d / %d", s.TotalScore, MaxScore),
		Correct:   fmt.Sprintf("%d / %d", s.CorrectAnswers, s.TotalQuestions),
		TotalTime: FormatClock(s.TotalTime),
		Rows:      make([]SummaryRow, 0, len(s.Sections)),
	}
	for _, sec := range s.Sections {
		v.Rows = append(v.Rows, SummaryRow{
			Section:  sec.Kind.Label(),
			Correct:  fmt.Sprintf("%d / %d", sec.Correct, sec.Total),
			Answered: fmt.Sprintf("%d / %d", sec.Answered, sec.Total),
			Accuracy: fmt.Sprintf("%.0f%%", sec.Accuracy),
			Time:     FormatClock(sec.TimeSpent),
		})
	}
	return v
}

// Render writes the view as an aligned plain-text table.
func (v SummaryView) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Score\t%s\n", v.Score)
	fmt.Fprintf(tw, "Correct\t%s\n", v.Correct)
	fmt.Fprintf(tw, "Time\t%s\n", v.TotalTime)
	if len(v.Rows) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "SECTION\tCORRECT\tANSWERED\tACCURACY\tTIME")
		for _, r := range v.Rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Section, r.Correct, r.Answered, r.Accuracy, r.Time)
		}
	}
	return tw.Flush()
}

// FormatClock formats d as m:ss, or h:mm:ss from one hour up. Fractions of a
// second round up so a countdown shows 0:00 only at expiry.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	h, m, s := secs/3600, (secs/60)%60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
