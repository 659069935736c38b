package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"sentinel-agent/internal/adapter/agentdef"
	"sentinel-agent/internal/domain"
	"sentinel-agent/internal/infra/logger"
	"sentinel-agent/internal/infra/tracer"
	"sentinel-agent/internal/usecase"
)

// defaultSubAgentSteps is the step budget for sub-agents whose definition
// does not set max_steps.
const defaultSubAgentSteps = 10

// CallAgentTool delegates a task to a named sub-agent. The sub-agent runs
// with its own conversation, a filtered toolset, and an isolated note store,
// sharing only the workspace directory with its parent.
type CallAgentTool struct {
	registry     *agentdef.Registry
	provider     domain.LLMProvider
	allTools     []domain.Tool
	workspaceDir string
	callDepth    int
	maxDepth     int
	logger       *slog.Logger

	// runSubAgent can be overridden in tests to avoid a real LLM round-trip.
	runSubAgent func(ctx context.Context, def *domain.AgentDefinition, task string, tools []domain.Tool) (string, error)
}

// NewCallAgentTool creates the delegation tool. callDepth is the depth of
// the owning agent (0 for the primary agent); delegation is refused once
// callDepth reaches maxDepth.
func NewCallAgentTool(
	registry *agentdef.Registry,
	provider domain.LLMProvider,
	allTools []domain.Tool,
	workspaceDir string,
	callDepth, maxDepth int,
	logger *slog.Logger,
) *CallAgentTool {
	t := &CallAgentTool{
		registry:     registry,
		provider:     provider,
		allTools:     allTools,
		workspaceDir: workspaceDir,
		callDepth:    callDepth,
		maxDepth:     maxDepth,
		logger:       logger,
	}
	t.runSubAgent = t.run
	return t
}

func (t *CallAgentTool) Name() string { return "call_agent" }

func (t *CallAgentTool) Description() string {
	agents := t.registry.Names()
	list := "none"
	if len(agents) > 0 {
		list = strings.Join(agents, ", ")
	}
	return "Invoke a specialized sub-agent to handle a specific task. Available agents: " + list
}

// Schema computes the agent_name enum from the registry each time, so
// definitions discovered after construction are still offered to the LLM.
func (t *CallAgentTool) Schema() domain.ToolSchema {
	agents := t.registry.Names()
	enum, _ := json.Marshal(agents)
	if agents == nil {
		enum = []byte("[]")
	}
	list := "none"
	if len(agents) > 0 {
		list = strings.Join(agents, ", ")
	}

	params := fmt.Sprintf(`{
		"type": "object",
		"properties": {
			"agent_name": {
				"type": "string",
				"description": "Name of the agent to invoke. Available: %s",
				"enum": %s
			},
			"task": {
				"type": "string",
				"description": "The task description to send to the sub-agent. Be specific and clear."
			}
		},
		"required": ["agent_name", "task"]
	}`, list, enum)

	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(params),
	}
}

type callAgentParams struct {
	AgentName string `json:"agent_name"`
	Task      string `json:"task"`
}

func (t *CallAgentTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.call_agent", t.logger, params,
		func(ctx context.Context, span trace.Span, p callAgentParams) (any, error) {
			if err := ValidateAll(
				RequireField("agent_name", p.AgentName),
				RequireField("task", p.Task),
			); err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.StringAttr("agent.name", p.AgentName))

			if t.callDepth >= t.maxDepth {
				return ErrResult("Sub-agent cannot call other agents (max depth: %d)", t.maxDepth)
			}

			def := t.registry.Get(p.AgentName)
			if def == nil {
				available := strings.Join(t.registry.Names(), ", ")
				return ErrResult("Agent '%s' not found. Available agents: %s", p.AgentName, available)
			}

			tools := t.filterTools(def)

			t.logger.Info("invoking sub-agent", "agent", p.AgentName, "tools", len(tools))
			result, err := t.runSubAgent(ctx, def, p.Task, tools)
			if err != nil {
				return nil, fmt.Errorf("failed to execute sub-agent '%s': %w", p.AgentName, err)
			}

			return TextResult(fmt.Sprintf("Sub-agent '%s' completed task.\n\nResult:\n%s", p.AgentName, result)), nil
		},
	)
}

// filterTools selects the toolset a sub-agent is allowed to see.
//
// Unrestricted definitions get every tool except call_agent and the parent's
// record_note. Restricted definitions get exactly the named tools, with
// call_agent always excluded even if named. In both cases the parent's
// record_note is replaced with an isolated note tool writing to the
// sub-agent's own memory file, granted when the definition is unrestricted
// or names record_note explicitly.
func (t *CallAgentTool) filterTools(def *domain.AgentDefinition) []domain.Tool {
	var base []domain.Tool
	if len(def.Tools) == 0 {
		for _, tl := range t.allTools {
			if tl.Name() == "call_agent" || tl.Name() == "record_note" {
				continue
			}
			base = append(base, tl)
		}
	} else {
		allowed := make(map[string]bool, len(def.Tools))
		for _, name := range def.Tools {
			allowed[name] = true
		}
		for _, tl := range t.allTools {
			if !allowed[tl.Name()] {
				continue
			}
			if tl.Name() == "call_agent" || tl.Name() == "record_note" {
				continue
			}
			base = append(base, tl)
		}
	}

	grantNotes := len(def.Tools) == 0
	if !grantNotes {
		for _, name := range def.Tools {
			if name == "record_note" {
				grantNotes = true
				break
			}
		}
	}
	if grantNotes {
		noteLogger := logger.ForAgent(t.logger, def.Name)
		base = append(base, NewSessionNoteTool(IsolatedNoteFile(t.workspaceDir, def.Name), noteLogger))
	}

	return base
}

// run executes the sub-agent loop with its own conversation and logger.
func (t *CallAgentTool) run(ctx context.Context, def *domain.AgentDefinition, task string, tools []domain.Tool) (string, error) {
	registry, err := FromTools(t.logger, tools)
	if err != nil {
		return "", err
	}

	prompt := strings.ReplaceAll(def.Prompt, "{{task}}", task)

	maxSteps := def.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultSubAgentSteps
	}

	sub := usecase.NewAgent(usecase.AgentConfig{
		Provider:     t.provider,
		Tools:        registry,
		SystemPrompt: prompt,
		MaxSteps:     maxSteps,
		Logger:       logger.ForAgent(t.logger, def.Name),
	})

	sub.AddUserMessage(task)
	return sub.Run(ctx)
}
