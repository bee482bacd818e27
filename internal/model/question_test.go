package model

import (
	"errors"
	"testing"
)

func TestImportQuestion_ToQuestion(t *testing.T) {
	iq := ImportQuestion{
		Kind:        "verbal_analogy",
		Prompt:      "  Hot is to cold as up is to  ",
		Explanation: "",
		Options: []ImportOption{
			{Text: "left"},
			{Text: "down", Correct: true},
			{ImageURL: "/media/arrow.png"},
		},
	}

	q, err := iq.ToQuestion()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Kind != SectionVerbalAnalogy {
		t.Errorf("kind = %q", q.Kind)
	}
	if q.PromptText != "Hot is to cold as up is to" {
		t.Errorf("prompt = %q", q.PromptText)
	}
	if q.Explanation != nil || q.PromptImageURL != nil {
		t.Error("empty optional strings must become nil")
	}
	if !q.IsExamQuestion {
		t.Error("non-practice question must be an exam question")
	}
	if len(q.Options) != 3 || !q.Options[1].IsCorrect || q.Options[2].OptionOrder != 2 {
		t.Fatalf("unexpected options %+v", q.Options)
	}
	if q.Options[2].ImageURL == nil || *q.Options[2].ImageURL != "/media/arrow.png" {
		t.Errorf("option image = %v", q.Options[2].ImageURL)
	}
}

func TestImportQuestion_CorrectOptionCount(t *testing.T) {
	for _, opts := range [][]ImportOption{
		{{Text: "a"}, {Text: "b"}},
		{{Text: "a", Correct: true}, {Text: "b", Correct: true}},
	} {
		_, err := ImportQuestion{Kind: SectionQuantitative, Prompt: "2+2", Options: opts}.ToQuestion()
		if !errors.Is(err, ErrCorrectOptionCount) {
			t.Errorf("expected ErrCorrectOptionCount, got %v", err)
		}
	}
}

func TestSectionKind_Valid(t *testing.T) {
	for _, k := range SectionOrder {
		if !k.Valid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if SectionKind("verbal_analogy").Valid() {
		t.Error("kinds are case sensitive")
	}
}
