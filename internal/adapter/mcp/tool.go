package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"sentinel-agent/internal/domain"
	"sentinel-agent/internal/infra/tracer"
)

// callTimeout is the default per-call timeout for provider tool execution.
const callTimeout = 30 * time.Second

// providerTool wraps a single remote tool behind the domain.Tool interface.
// Adapters differ only in how the owning Conn acquired its channel; invocation
// semantics are identical across transports.
type providerTool struct {
	conn   *Conn
	remote mcp.Tool
	logger *slog.Logger
}

func newProviderTool(conn *Conn, t mcp.Tool, logger *slog.Logger) *providerTool {
	return &providerTool{conn: conn, remote: t, logger: logger}
}

func (t *providerTool) Name() string { return t.remote.Name }

func (t *providerTool) Description() string {
	return t.remote.Description
}

func (t *providerTool) Schema() domain.ToolSchema {
	params := json.RawMessage(`{"type": "object"}`)
	if t.remote.InputSchema.Properties != nil || t.remote.InputSchema.Required != nil {
		if data, err := json.Marshal(t.remote.InputSchema); err == nil {
			params = data
		}
	}
	return domain.ToolSchema{
		Name:        t.remote.Name,
		Description: t.remote.Description,
		Parameters:  params,
	}
}

// Execute forwards arguments to the provider session and folds the returned
// content fragments into one string. Invocation failures are reported as
// error results, never propagated.
func (t *providerTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, "mcp.call_tool")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("mcp.server", t.conn.Name()),
		tracer.StringAttr("mcp.tool", t.remote.Name),
	)

	var args map[string]any
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &args); err != nil {
			tracer.RecordError(span, err)
			return &domain.ToolResult{
				Content: fmt.Sprintf("invalid arguments: %v", err),
				IsError: true,
			}, nil
		}
	}

	t.conn.mu.Lock()
	client := t.conn.client
	limiter := t.conn.limiter
	t.conn.mu.Unlock()

	if client == nil {
		err := fmt.Errorf("provider %q is disconnected", t.conn.Name())
		tracer.RecordError(span, err)
		return &domain.ToolResult{Content: err.Error(), IsError: true}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if limiter != nil {
		if err := limiter.Wait(callCtx); err != nil {
			tracer.RecordError(span, err)
			return &domain.ToolResult{
				Content:     fmt.Sprintf("rate limit wait: %v", err),
				IsError:     true,
				IsRetryable: true,
			}, nil
		}
	}

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = t.remote.Name
	callReq.Params.Arguments = args

	result, err := client.CallTool(callCtx, callReq)
	if err != nil {
		tracer.RecordError(span, err)
		return &domain.ToolResult{
			Content:     fmt.Sprintf("provider tool error: %v", err),
			IsError:     true,
			IsRetryable: true,
		}, nil
	}

	content := extractContent(result)
	if result.IsError {
		tracer.RecordError(span, fmt.Errorf("%s", content))
	} else {
		tracer.SetOK(span)
	}
	return &domain.ToolResult{
		Content: content,
		IsError: result.IsError,
	}, nil
}

// extractContent converts a CallToolResult's fragments to one string: text
// fragments contribute their text, anything else is stringified as JSON.
func extractContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}
