package examflow

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestPresent(t *testing.T) {
	v := Present(Summary{
		TotalScore:     68,
		CorrectAnswers: 30,
		TotalQuestions: 40,
		TotalTime:      31*time.Minute + 5*time.Second,
		Sections: []SectionScore{
			{Kind: KindVerbalAnalogy, Correct: 8, Answered: 9, Total: 10, Accuracy: 80, TimeSpent: 7*time.Minute + 30*time.Second},
			{Kind: KindQuantitative, Correct: 7, Answered: 10, Total: 10, Accuracy: 70, TimeSpent: 10 * time.Minute},
		},
	})

	if v.Score != "68 / 90" || v.Correct != "30 / 40" || v.TotalTime != "31:05" {
		t.Fatalf("unexpected header: %+v", v)
	}
	if len(v.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(v.Rows))
	}
	row := v.Rows[0]
	if row.Section != "Verbal analogies" || row.Correct != "8 / 10" || row.Answered != "9 / 10" || row.Accuracy != "80%" || row.Time != "7:30" {
		t.Fatalf("unexpected row: %+v", row)
	}
}

func TestSummaryView_Render(t *testing.T) {
	var buf bytes.Buffer
	v := Present(Summary{TotalScore: 90, CorrectAnswers: 2, TotalQuestions: 2, Sections: []SectionScore{{Kind: KindShapeAnalogy, Correct: 2, Total: 2, Answered: 2, Accuracy: 100}}})
	if err := v.Render(&buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Score", "90 / 90", "SECTION", "Shape analogies", "100%"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatClock(t *testing.T) {
	tests := map[time.Duration]string{
		0:                      "0:00",
		-time.Second:           "0:00",
		500 * time.Millisecond: "0:01",
		59 * time.Second:       "0:59",
		10 * time.Minute:       "10:00",

		62*time.Minute + 3*time.Second: "1:02:03",
	}
	for d, want := range tests {
		if got := FormatClock(d); got != want {
			t.Errorf("FormatClock(%v) = %q, want %q", d, got, want)
		}
	}
}
