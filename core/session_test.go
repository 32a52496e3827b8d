package core

import "testing"

func TestSessionContext_CloneIsolation(t *testing.T) {
	s := NewSessionContext("s1")
	s.Context.Set(FieldSubject, "math")
	s.Context.Extensions = map[string]string{"platform": "roblox"}
	s.CompletedTasks = append(s.CompletedTasks, "curriculum:abc")

	clone := s.Clone()
	if clone == s {
		t.Error("Clone should be a different pointer")
	}

	clone.Context.Set(FieldSubject, "science")
	clone.Context.Extensions["platform"] = "minecraft"
	clone.CompletedTasks[0] = "changed"

	if s.Context.Subject != "math" {
		t.Errorf("original subject mutated: %q", s.Context.Subject)
	}
	if s.Context.Extensions["platform"] != "roblox" {
		t.Error("original extensions mutated through clone")
	}
	if s.CompletedTasks[0] != "curriculum:abc" {
		t.Error("completed tasks slice should be copied")
	}
}

func TestSessionContext_AddTurnEvictsOldest(t *testing.T) {
	s := NewSessionContext("s2")
	for i := 0; i < 7; i++ {
		s.AddTurn(Turn{Role: "user", Text: string(rune('a' + i))}, 5)
	}
	if len(s.History) != 5 {
		t.Fatalf("expected 5 retained turns, got %d", len(s.History))
	}
	if s.History[0].Text != "c" {
		t.Errorf("expected oldest retained turn 'c', got %q", s.History[0].Text)
	}
	if s.History[4].ID == "" || s.History[4].Timestamp.IsZero() {
		t.Error("AddTurn should fill ID and timestamp")
	}
}

func TestSessionContext_DefaultHistoryCap(t *testing.T) {
	s := NewSessionContext("s3")
	for i := 0; i < DefaultHistoryCap+10; i++ {
		s.AddTurn(Turn{Role: "assistant", Text: "x"}, 0)
	}
	if len(s.History) != DefaultHistoryCap {
		t.Fatalf("expected %d turns, got %d", DefaultHistoryCap, len(s.History))
	}
	if s.UserTurns() != 0 {
		t.Errorf("expected no user turns, got %d", s.UserTurns())
	}
}
