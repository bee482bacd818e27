package main

import (
	"strings"
	"testing"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"login", "logout", "start", "resume", "history", "summary"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered (err=%v)", name, err)
		}
	}
}

func TestSummaryRejectsBadID(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"summary", "not-a-uuid"})
	root.SilenceErrors = true
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "invalid attempt id") {
		t.Fatalf("err = %v, want invalid attempt id", err)
	}
}

func TestScoreText(t *testing.T) {
	if got := scoreText(nil); got != "unfinished" {
		t.Errorf("nil score = %q", got)
	}
	s := 72
	if got := scoreText(&s); got != "72 / 90" {
		t.Errorf("score = %q, want 72 / 90", got)
	}
}
