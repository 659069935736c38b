package tool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestNoteTool(t *testing.T) *SessionNoteTool {
	t.Helper()
	return NewSessionNoteTool(filepath.Join(t.TempDir(), ".agent_memory.json"), testLogger())
}

func exec(t *testing.T, nt *SessionNoteTool, params string) string {
	t.Helper()
	result, err := nt.Execute(context.Background(), json.RawMessage(params))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	return result.Content
}

func TestNotes_RecordAndList(t *testing.T) {
	nt := newTestNoteTool(t)

	content := exec(t, nt, `{"action":"record","content":"attacker IP is known-bad"}`)
	if !strings.Contains(content, "1 total") {
		t.Errorf("unexpected content: %s", content)
	}
	exec(t, nt, `{"action":"record","content":"port 443 targeted"}`)

	listed := exec(t, nt, `{"action":"list"}`)
	var notes []SessionNote
	if err := json.Unmarshal([]byte(listed), &notes); err != nil {
		t.Fatalf("list output is not JSON: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(notes))
	}
	if notes[0].Content != "attacker IP is known-bad" {
		t.Errorf("wrong first note: %q", notes[0].Content)
	}
	if notes[0].Timestamp.IsZero() {
		t.Error("expected timestamp on recorded note")
	}
}

func TestNotes_ListEmpty(t *testing.T) {
	nt := newTestNoteTool(t)
	if got := exec(t, nt, `{"action":"list"}`); got != "No notes recorded." {
		t.Errorf("unexpected content: %s", got)
	}
}

func TestNotes_Clear(t *testing.T) {
	nt := newTestNoteTool(t)
	exec(t, nt, `{"action":"record","content":"scratch"}`)
	exec(t, nt, `{"action":"clear"}`)

	if got := exec(t, nt, `{"action":"list"}`); got != "No notes recorded." {
		t.Errorf("expected empty after clear, got: %s", got)
	}
	if _, err := os.Stat(nt.memoryFile); !os.IsNotExist(err) {
		t.Error("expected memory file removed after clear")
	}
}

func TestNotes_RecordRequiresContent(t *testing.T) {
	nt := newTestNoteTool(t)
	result, err := nt.Execute(context.Background(), json.RawMessage(`{"action":"record"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestNotes_UnknownAction(t *testing.T) {
	nt := newTestNoteTool(t)
	result, err := nt.Execute(context.Background(), json.RawMessage(`{"action":"zap"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "unknown action") {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestNotes_CorruptFileResets(t *testing.T) {
	nt := newTestNoteTool(t)
	if err := os.WriteFile(nt.memoryFile, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	content := exec(t, nt, `{"action":"record","content":"fresh start"}`)
	if !strings.Contains(content, "1 total") {
		t.Errorf("unexpected content: %s", content)
	}
}
