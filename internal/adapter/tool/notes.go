package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sentinel-agent/internal/domain"
)

// SessionNote is a single recorded note.
type SessionNote struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
}

// SessionNoteTool lets the agent persist short working notes across steps.
// Notes are stored as a JSON array in a single memory file. Each agent gets
// its own file so concurrent sub-agents never clobber each other's notes.
type SessionNoteTool struct {
	mu         sync.Mutex
	memoryFile string
	logger     *slog.Logger
}

// NewSessionNoteTool creates a note tool backed by the given memory file.
// The file is created lazily on first record.
func NewSessionNoteTool(memoryFile string, logger *slog.Logger) *SessionNoteTool {
	return &SessionNoteTool{memoryFile: memoryFile, logger: logger}
}

// IsolatedNoteFile returns the memory file path for a sub-agent's private
// note store inside the shared workspace.
func IsolatedNoteFile(workspaceDir, agentName string) string {
	return filepath.Join(workspaceDir, fmt.Sprintf(".agent_memory_%s.json", agentName))
}

func (t *SessionNoteTool) Name() string { return "record_note" }

func (t *SessionNoteTool) Description() string {
	return "Record, list, or clear session notes. Use notes to remember key findings across steps."
}

func (t *SessionNoteTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"action": {
					"type": "string",
					"enum": ["record", "list", "clear"],
					"description": "The note action to perform"
				},
				"content": {
					"type": "string",
					"description": "Note content (for record action)"
				}
			},
			"required": ["action"]
		}`),
	}
}

type noteParams struct {
	Action  string `json:"action"`
	Content string `json:"content,omitempty"`
}

func (t *SessionNoteTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.record_note", t.logger, params,
		Dispatch(func(p noteParams) string { return p.Action }, ActionMap[noteParams]{
			"record": t.handleRecord,
			"list":   t.handleList,
			"clear":  t.handleClear,
		}),
	)
}

func (t *SessionNoteTool) handleRecord(_ context.Context, p noteParams) (any, error) {
	if err := RequireField("content", p.Content); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	notes, err := t.load()
	if err != nil {
		return nil, err
	}
	notes = append(notes, SessionNote{Timestamp: time.Now().UTC(), Content: p.Content})
	if err := t.save(notes); err != nil {
		return nil, err
	}

	t.logger.Debug("note recorded", "file", t.memoryFile, "count", len(notes))
	return TextResult(fmt.Sprintf("Note recorded (%d total)", len(notes))), nil
}

func (t *SessionNoteTool) handleList(_ context.Context, _ noteParams) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	notes, err := t.load()
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return TextResult("No notes recorded."), nil
	}
	return notes, nil
}

func (t *SessionNoteTool) handleClear(_ context.Context, _ noteParams) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.Remove(t.memoryFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("clear notes: %w", err)
	}
	return TextResult("All notes cleared."), nil
}

// load reads the memory file. A missing file means no notes yet.
func (t *SessionNoteTool) load() ([]SessionNote, error) {
	data, err := os.ReadFile(t.memoryFile)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read notes: %w", err)
	}
	var notes []SessionNote
	if err := json.Unmarshal(data, &notes); err != nil {
		// A corrupt memory file should not brick the tool; start fresh.
		t.logger.Warn("corrupt note file, resetting", "file", t.memoryFile, "error", err)
		return nil, nil
	}
	return notes, nil
}

func (t *SessionNoteTool) save(notes []SessionNote) error {
	data, err := json.MarshalIndent(notes, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal notes: %w", err)
	}
	if dir := filepath.Dir(t.memoryFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create workspace dir: %w", err)
		}
	}
	if err := os.WriteFile(t.memoryFile, data, 0o644); err != nil {
		return fmt.Errorf("write notes: %w", err)
	}
	return nil
}
