package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"sentinel-agent/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedProvider returns canned responses in order, then fails.
type scriptedProvider struct {
	responses []*domain.ChatResponse
	errs      []error
	calls     int
	requests  []domain.ChatRequest
}

func (p *scriptedProvider) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	p.requests = append(p.requests, req)
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return nil, fmt.Errorf("no scripted response for call %d", i)
}

func (p *scriptedProvider) Name() string { return "scripted" }

func assistantText(content string) *domain.ChatResponse {
	return &domain.ChatResponse{
		Message: domain.Message{Role: domain.RoleAssistant, Content: content, Timestamp: time.Now()},
		Usage:   domain.Usage{TotalTokens: 10},
	}
}

func assistantToolCall(id, name, args string) *domain.ChatResponse {
	return &domain.ChatResponse{
		Message: domain.Message{
			Role:      domain.RoleAssistant,
			Timestamp: time.Now(),
			ToolCalls: []domain.ToolCall{{ID: id, Name: name, Arguments: json.RawMessage(args)}},
		},
	}
}

// recordingTool records invocations.
type recordingTool struct {
	name   string
	result *domain.ToolResult
	err    error
	calls  []json.RawMessage
}

func (t *recordingTool) Name() string        { return t.name }
func (t *recordingTool) Description() string { return "test tool" }
func (t *recordingTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Parameters: json.RawMessage(`{"type":"object"}`)}
}
func (t *recordingTool) Execute(_ context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	t.calls = append(t.calls, params)
	if t.err != nil {
		return nil, t.err
	}
	return t.result, nil
}

// mapExecutor is a minimal ToolExecutor.
type mapExecutor struct {
	tools map[string]domain.Tool
}

func (e *mapExecutor) Get(name string) (domain.Tool, error) {
	t, ok := e.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

func (e *mapExecutor) Schemas() []domain.ToolSchema {
	var out []domain.ToolSchema
	for _, t := range e.tools {
		out = append(out, t.Schema())
	}
	return out
}

func newTestAgent(provider domain.LLMProvider, tools map[string]domain.Tool, maxSteps int) *Agent {
	if tools == nil {
		tools = map[string]domain.Tool{}
	}
	return NewAgent(AgentConfig{
		Provider:     provider,
		Tools:        &mapExecutor{tools: tools},
		SystemPrompt: "You are a test agent.",
		MaxSteps:     maxSteps,
		Logger:       testLogger(),
	})
}

func TestRun_FinalResponseWithoutTools(t *testing.T) {
	p := &scriptedProvider{responses: []*domain.ChatResponse{assistantText("done")}}
	a := newTestAgent(p, nil, 5)
	a.AddUserMessage("hello")

	got, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "done" {
		t.Errorf("got %q, want %q", got, "done")
	}
	if p.calls != 1 {
		t.Errorf("expected 1 LLM call, got %d", p.calls)
	}

	// System prompt seeds the conversation.
	msgs := a.Messages()
	if msgs[0].Role != domain.RoleSystem || msgs[0].Content != "You are a test agent." {
		t.Errorf("unexpected first message: %+v", msgs[0])
	}
}

func TestRun_ExecutesToolCallsThenFinishes(t *testing.T) {
	tool := &recordingTool{name: "lookup", result: &domain.ToolResult{Content: "8 open ports"}}
	p := &scriptedProvider{responses: []*domain.ChatResponse{
		assistantToolCall("call_1", "lookup", `{"ip":"203.0.113.7"}`),
		assistantText("analysis complete"),
	}}
	a := newTestAgent(p, map[string]domain.Tool{"lookup": tool}, 5)
	a.AddUserMessage("scan it")

	got, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "analysis complete" {
		t.Errorf("got %q", got)
	}
	if len(tool.calls) != 1 || string(tool.calls[0]) != `{"ip":"203.0.113.7"}` {
		t.Errorf("tool calls: %v", tool.calls)
	}

	// The second request must include the tool result message.
	second := p.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != domain.RoleTool || last.Content != "8 open ports" {
		t.Errorf("unexpected tool message: %+v", last)
	}
	if last.ToolCalls[0].ID != "call_1" {
		t.Errorf("tool message missing call ID: %+v", last)
	}
}

func TestRun_UnknownToolSurfacesToModel(t *testing.T) {
	p := &scriptedProvider{responses: []*domain.ChatResponse{
		assistantToolCall("call_1", "ghost", `{}`),
		assistantText("recovered"),
	}}
	a := newTestAgent(p, nil, 5)
	a.AddUserMessage("go")

	got, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("loop must survive unknown tools: %v", err)
	}
	if got != "recovered" {
		t.Errorf("got %q", got)
	}

	second := p.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != domain.RoleTool {
		t.Fatalf("expected tool message, got %+v", last)
	}
	if !strings.Contains(last.Content, "tool not found") {
		t.Errorf("expected not-found error in tool message, got %q", last.Content)
	}
}

func TestRun_MaxStepsExhausted(t *testing.T) {
	// The model requests a tool every step and never finishes.
	var responses []*domain.ChatResponse
	for i := 0; i < 3; i++ {
		responses = append(responses, assistantToolCall(fmt.Sprintf("c%d", i), "loop", `{}`))
	}
	tool := &recordingTool{name: "loop", result: &domain.ToolResult{Content: "again"}}
	p := &scriptedProvider{responses: responses}
	a := newTestAgent(p, map[string]domain.Tool{"loop": tool}, 3)
	a.AddUserMessage("never stop")

	_, err := a.Run(context.Background())
	if !errors.Is(err, domain.ErrMaxSteps) {
		t.Fatalf("expected ErrMaxSteps, got %v", err)
	}
	if p.calls != 3 {
		t.Errorf("expected 3 LLM calls, got %d", p.calls)
	}
}

func TestRun_ProviderErrorPropagates(t *testing.T) {
	p := &scriptedProvider{errs: []error{fmt.Errorf("bad request")}}
	a := newTestAgent(p, nil, 5)
	a.AddUserMessage("go")

	_, err := a.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 1 {
		t.Errorf("permanent errors must not be retried, got %d calls", p.calls)
	}
}

func TestRun_RetriesTransientProviderError(t *testing.T) {
	p := &scriptedProvider{
		errs:      []error{fmt.Errorf("upstream: %w", domain.ErrProviderError), nil},
		responses: []*domain.ChatResponse{nil, assistantText("ok after retry")},
	}
	a := newTestAgent(p, nil, 5)
	a.AddUserMessage("go")

	got, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok after retry" {
		t.Errorf("got %q", got)
	}
	if p.calls != 2 {
		t.Errorf("expected 2 calls, got %d", p.calls)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &scriptedProvider{responses: []*domain.ChatResponse{assistantText("never")}}
	a := newTestAgent(p, nil, 5)
	a.AddUserMessage("go")

	_, err := a.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewAgent_RunIDUnique(t *testing.T) {
	a := newTestAgent(&scriptedProvider{}, nil, 1)
	b := newTestAgent(&scriptedProvider{}, nil, 1)
	if a.RunID() == "" || a.RunID() == b.RunID() {
		t.Errorf("run IDs must be unique and non-empty: %q vs %q", a.RunID(), b.RunID())
	}
}
