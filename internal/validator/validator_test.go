package validator

import (
	"testing"

	"github.com/tzavrishon/mivhan/internal/model"
)

func TestStruct_ImportQuestion(t *testing.T) {
	Setup()

	valid := model.ImportQuestion{
		Kind:   model.SectionVerbalAnalogy,
		Prompt: "bird : nest :: bee : ?",
		Options: []model.ImportOption{
			{Text: "hive", Correct: true},
			{Text: "flower"},
		},
	}
	if fields := Struct(&valid); fields != nil {
		t.Fatalf("expected valid question, got %v", fields)
	}

	invalid := valid
	invalid.Kind = "ESSAY"
	invalid.Options = valid.Options[:1]
	fields := Struct(&invalid)
	if fields == nil {
		t.Fatal("expected validation errors")
	}
	if _, ok := fields["kind"]; !ok {
		t.Fatalf("expected kind error keyed by toml name, got %v", fields)
	}
	if _, ok := fields["option"]; !ok {
		t.Fatalf("expected option count error, got %v", fields)
	}
}

func TestTranslateErrors_NonValidationError(t *testing.T) {
	fields := TranslateErrors(errTest("boom"))
	if fields["detail"] != "boom" {
		t.Fatalf("expected detail entry, got %v", fields)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
