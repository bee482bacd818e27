package worker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tzavrishon/mivhan/internal/model"
)

func TestDecodeEvent(t *testing.T) {
	attemptID := uuid.New()
	sectionID := uuid.New()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	raw, _ := json.Marshal(model.ExamEvent{
		AttemptID: attemptID,
		SectionID: &sectionID,
		Type:      model.EventSectionLocked,
		Payload:   json.RawMessage(`{"score":4}`),
		CreatedAt: at,
	})

	ev, err := decodeEvent(string(raw))
	if err != nil {
		t.Fatalf("decodeEvent: %v", err)
	}
	if ev.AttemptID != attemptID || ev.SectionID == nil || *ev.SectionID != sectionID {
		t.Fatalf("ids not preserved: %+v", ev)
	}
	if !ev.CreatedAt.Equal(at) {
		t.Fatalf("expected created_at %v, got %v", at, ev.CreatedAt)
	}

	if _, err := decodeEvent("{not json"); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestDecodeEvent_DefaultsCreatedAt(t *testing.T) {
	ev, err := decodeEvent(`{"attempt_id":"` + uuid.NewString() + `","type":"attempt_finished"}`)
	if err != nil {
		t.Fatalf("decodeEvent: %v", err)
	}
	if ev.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be filled in")
	}
}

func TestColumnsOf(t *testing.T) {
	qid := uuid.New()
	batch := []*model.ExamEvent{
		{AttemptID: uuid.New(), Type: model.EventSectionStarted},
		{AttemptID: uuid.New(), QuestionID: &qid, Type: model.EventAnswerRecorded, Payload: json.RawMessage(`{"correct":true}`)},
	}

	cols := columnsOf(batch)
	if len(cols.attemptIDs) != 2 || len(cols.types) != 2 || len(cols.createdAt) != 2 {
		t.Fatalf("expected 2 rows per column, got %+v", cols)
	}
	if cols.payloads[0] != nil {
		t.Errorf("expected nil payload for empty event, got %q", cols.payloads[0])
	}
	if string(cols.payloads[1]) != `{"correct":true}` {
		t.Errorf("unexpected payload %q", cols.payloads[1])
	}
	if cols.questionIDs[0] != nil || cols.questionIDs[1] == nil || *cols.questionIDs[1] != qid {
		t.Errorf("question ids not aligned: %v", cols.questionIDs)
	}
	if cols.types[1] != string(model.EventAnswerRecorded) {
		t.Errorf("unexpected type %q", cols.types[1])
	}
}
