package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tzavrishon/mivhan/internal/model"
	"github.com/tzavrishon/mivhan/internal/repository"
)

func TestScore90(t *testing.T) {
	tests := []struct {
		name           string
		correct, total int
		want           int
	}{
		{"no questions", 0, 0, 0},
		{"all correct", 40, 40, 90},
		{"none correct", 0, 40, 0},
		{"half", 20, 40, 45},
		{"rounds half up", 1, 4, 23},
		{"rounds down", 1, 3, 30},
		{"unanswered count against", 8, 12, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score90(tt.correct, tt.total); got != tt.want {
				t.Errorf("Score90(%d, %d) = %d, want %d", tt.correct, tt.total, got, tt.want)
			}
		})
	}
}

func TestRemainingTime(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if got := remainingTime(start, 10*time.Minute, start.Add(4*time.Minute)); got != 6*time.Minute {
		t.Errorf("expected 6m left, got %v", got)
	}
	if got := remainingTime(start, 10*time.Minute, start.Add(10*time.Minute)); got != 0 {
		t.Errorf("expected 0 at the deadline, got %v", got)
	}
	if got := remainingTime(start, 10*time.Minute, start.Add(time.Hour)); got != 0 {
		t.Errorf("expected clamp to 0, got %v", got)
	}
}

func TestBuildResult(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	at := func(min, sec int) *time.Time {
		v := created.Add(time.Duration(min)*time.Minute + time.Duration(sec)*time.Second)
		return &v
	}
	stats := []repository.SectionStats{
		{Kind: model.SectionVerbalAnalogy, OrderIndex: 0, StartedAt: at(0, 0), EndedAt: at(7, 30), Total: 10, Answered: 8, Correct: 6},
		{Kind: model.SectionShapeAnalogy, OrderIndex: 1, StartedAt: at(7, 30), EndedAt: at(17, 30), Total: 10, Answered: 0, Correct: 0},
		{Kind: model.SectionInstructionsDirections, OrderIndex: 2, Total: 10},
	}
	id := uuid.New()

	res := BuildResult(id, stats, created, *at(20, 0))

	if res.AttemptID != id {
		t.Fatalf("attempt id not set")
	}
	if res.TotalQuestions != 30 || res.CorrectAnswers != 6 {
		t.Fatalf("expected 6/30, got %d/%d", res.CorrectAnswers, res.TotalQuestions)
	}
	if res.TotalScore90 != 18 {
		t.Fatalf("expected score 18, got %d", res.TotalScore90)
	}
	if res.TotalTimeSeconds != 1200 {
		t.Fatalf("expected 1200s total, got %d", res.TotalTimeSeconds)
	}

	first := res.Sections[0]
	if first.Accuracy != 75 || first.TimeSpentSeconds != 450 {
		t.Errorf("unexpected first section: %+v", first)
	}
	if res.Sections[1].Accuracy != 0 || res.Sections[1].TimeSpentSeconds != 600 {
		t.Errorf("unexpected second section: %+v", res.Sections[1])
	}
	if res.Sections[2].TimeSpentSeconds != 0 {
		t.Errorf("never started section should have no time, got %d", res.Sections[2].TimeSpentSeconds)
	}
}

func TestBuildResult_AccuracyRounding(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	res := BuildResult(uuid.New(), []repository.SectionStats{
		{Kind: model.SectionQuantitative, Total: 5, Answered: 3, Correct: 2},
	}, created, created)

	if got := res.Sections[0].Accuracy; got != 66.7 {
		t.Fatalf("expected 66.7, got %v", got)
	}
}
