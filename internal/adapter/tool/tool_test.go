package tool

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"sentinel-agent/internal/domain"
)

// stubTool is a minimal tool for tests.
type stubTool struct {
	name   string
	schema json.RawMessage
	result *domain.ToolResult
	err    error
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        s.name,
		Description: "stub",
		Parameters:  s.schema,
	}
}
func (s *stubTool) Execute(_ context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func namedStubs(names ...string) []domain.Tool {
	out := make([]domain.Tool, 0, len(names))
	for _, n := range names {
		out = append(out, &stubTool{name: n, result: &domain.ToolResult{Content: "ok"}})
	}
	return out
}
