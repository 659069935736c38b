package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"sentinel-agent/internal/domain"
	"sentinel-agent/internal/infra/tracer"
)

// Recovery loop constants.
const (
	maxLLMRetries  = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 10 * time.Second
)

// AgentConfig holds injected dependencies for the agent.
type AgentConfig struct {
	Provider     domain.LLMProvider
	Tools        domain.ToolExecutor
	SystemPrompt string
	MaxSteps     int
	Logger       *slog.Logger

	Model       string
	MaxTokens   int
	Temperature float64
}

// Agent orchestrates a bounded receive-think-act loop: it sends the
// conversation to the LLM, executes any requested tool calls, appends the
// results, and repeats until the model answers without tools or the step
// budget runs out.
type Agent struct {
	cfg      AgentConfig
	runID    string
	messages []domain.Message
}

// NewAgent creates an agent seeded with the system prompt.
func NewAgent(cfg AgentConfig) *Agent {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 10
	}
	a := &Agent{
		cfg:   cfg,
		runID: ulid.Make().String(),
	}
	if cfg.SystemPrompt != "" {
		a.messages = append(a.messages, domain.Message{
			Role:      domain.RoleSystem,
			Content:   cfg.SystemPrompt,
			Timestamp: time.Now(),
		})
	}
	a.cfg.Logger = cfg.Logger.With("run_id", a.runID)
	return a
}

// RunID returns the unique identifier for this agent run.
func (a *Agent) RunID() string { return a.runID }

// AddUserMessage appends a user turn to the conversation.
func (a *Agent) AddUserMessage(content string) {
	a.messages = append(a.messages, domain.Message{
		Role:      domain.RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// Messages returns a copy of the conversation so far.
func (a *Agent) Messages() []domain.Message {
	out := make([]domain.Message, len(a.messages))
	copy(out, a.messages)
	return out
}

// Run drives the loop to completion and returns the final assistant text.
// When the step budget is exhausted, it returns the last assistant content
// alongside a DomainError wrapping ErrMaxSteps.
func (a *Agent) Run(ctx context.Context) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "agent.run",
		trace.WithAttributes(tracer.StringAttr("run.id", a.runID)),
	)
	defer span.End()

	var lastContent string

	for step := 0; step < a.cfg.MaxSteps; step++ {
		if ctx.Err() != nil {
			tracer.RecordError(span, ctx.Err())
			return lastContent, ctx.Err()
		}
		span.AddEvent("agent.step", trace.WithAttributes(tracer.IntAttr("step", step)))

		req := domain.ChatRequest{
			Model:       a.cfg.Model,
			Messages:    a.messages,
			Tools:       a.cfg.Tools.Schemas(),
			MaxTokens:   a.cfg.MaxTokens,
			Temperature: a.cfg.Temperature,
		}

		resp, err := a.chatWithRetry(ctx, req)
		if err != nil {
			tracer.RecordError(span, err)
			return lastContent, domain.WrapOp("Agent.Run", err)
		}

		msg := resp.Message
		a.messages = append(a.messages, msg)
		if msg.Content != "" {
			lastContent = msg.Content
		}

		a.cfg.Logger.Debug("llm response",
			"step", step,
			"tool_calls", len(msg.ToolCalls),
			"tokens", resp.Usage.TotalTokens,
		)

		// No tool calls = final response.
		if len(msg.ToolCalls) == 0 {
			tracer.SetOK(span)
			return msg.Content, nil
		}

		// Execute tool calls sequentially, preserving request order.
		for _, call := range msg.ToolCalls {
			a.messages = append(a.messages, a.executeTool(ctx, call))
		}
	}

	tracer.RecordError(span, domain.ErrMaxSteps)
	return lastContent, domain.NewDomainError("Agent.Run", domain.ErrMaxSteps,
		fmt.Sprintf("%d steps", a.cfg.MaxSteps))
}

// executeTool runs a single tool call and returns the result as a Message.
// Tool failures are surfaced to the model as tool-role content, never as
// loop-terminating errors.
func (a *Agent) executeTool(ctx context.Context, call domain.ToolCall) domain.Message {
	ctx, span := tracer.StartSpan(ctx, "agent.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	toolMsg := func(content string) domain.Message {
		return domain.Message{
			Role:      domain.RoleTool,
			Name:      call.Name,
			Content:   content,
			ToolCalls: []domain.ToolCall{{ID: call.ID, Name: call.Name}},
			Timestamp: time.Now(),
		}
	}

	tool, err := a.cfg.Tools.Get(call.Name)
	if err != nil {
		tracer.RecordError(span, err)
		a.cfg.Logger.Warn("unknown tool requested", "tool", call.Name)
		return toolMsg(err.Error())
	}

	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		tracer.RecordError(span, err)
		a.cfg.Logger.Warn("tool execution failed", "tool", call.Name, "error", err)
		return toolMsg(err.Error())
	}

	if result.IsError {
		tracer.RecordError(span, fmt.Errorf("%s", result.Content))
	} else {
		tracer.SetOK(span)
	}
	return toolMsg(result.Content)
}

// chatWithRetry calls the LLM, retrying transient provider failures with
// exponential backoff.
func (a *Agent) chatWithRetry(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt < maxLLMRetries; attempt++ {
		llmCtx, llmSpan := tracer.StartSpan(ctx, "agent.llm_call")
		resp, err := a.cfg.Provider.Chat(llmCtx, req)
		llmSpan.End()

		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == maxLLMRetries-1 {
			break
		}

		delay := retryBackoff(attempt)
		a.cfg.Logger.Warn("llm call failed, retrying",
			"attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func isRetryable(err error) bool {
	return errors.Is(err, domain.ErrProviderError) ||
		errors.Is(err, domain.ErrRateLimit) ||
		errors.Is(err, domain.ErrTimeout)
}

// retryBackoff computes exponential backoff with jitter.
func retryBackoff(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	// Add 0-25% jitter.
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}
