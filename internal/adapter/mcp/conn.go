package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/time/rate"

	"sentinel-agent/internal/domain"
)

// mcpClient abstracts the MCP client interface for testability.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// closeStack owns every transport-layer handle acquired while a connection is
// being set up. Handles are released in reverse acquisition order, the same
// discipline as a deferred stack.
type closeStack struct {
	closers []func() error
}

func (s *closeStack) push(name string, fn func() error) {
	s.closers = append(s.closers, func() error {
		if err := fn(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	})
}

// unwind releases all handles, last-acquired first, and returns the joined
// errors. It empties the stack so a second unwind is a no-op.
func (s *closeStack) unwind() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Conn represents one external tool provider. A Conn is either fully
// connected (session present, tool catalog populated) or fully torn down; no
// partial state is observable outside Connect itself.
type Conn struct {
	name      string
	transport string
	logger    *slog.Logger

	mu        sync.Mutex
	client    mcpClient
	resources closeStack
	tools     []domain.Tool
	limiter   *rate.Limiter

	// dial overrides transport establishment in tests.
	dial func(ctx context.Context, cfg ServerConfig) (mcpClient, error)
}

// Name returns the provider name this connection was configured under.
func (c *Conn) Name() string { return c.name }

// Connected reports whether the session is live.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil
}

// Tools returns the wrapped tool catalog published by this provider.
func (c *Conn) Tools() []domain.Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tools
}

// connect establishes the transport channel, performs the session-initialize
// handshake, and retrieves the provider's tool catalog. Any failure unwinds
// every already-acquired handle before returning; a failed connect leaves the
// Conn fully torn down.
func (c *Conn) connect(ctx context.Context, cfg ServerConfig) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	defer func() {
		if err != nil {
			if cerr := c.resources.unwind(); cerr != nil {
				c.logger.Warn("cleanup after failed connect", "server", c.name, "error", cerr)
			}
			c.client = nil
			c.tools = nil
		}
	}()

	dial := c.dial
	if dial == nil {
		dial = c.openTransport
	}
	client, err := dial(ctx, cfg)
	if err != nil {
		return err
	}
	c.client = client

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "sentinel-agent",
		Version: "1.0.0",
	}
	if ic, ok := c.client.(interface {
		Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	}); ok {
		if _, err = ic.Initialize(ctx, initReq); err != nil {
			return domain.WrapOp("initialize", err)
		}
	}

	if cfg.CallsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(cfg.CallsPerMinute)/60.0), cfg.CallsPerMinute)
	}

	list, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return domain.WrapOp("list tools", err)
	}

	for _, t := range list.Tools {
		c.tools = append(c.tools, newProviderTool(c, t, c.logger))
	}

	c.logger.Info("provider connected",
		"server", c.name, "transport", c.transport, "tools", len(c.tools))
	return nil
}

// openTransport launches or dials the provider per its transport type. Every
// handle acquired along the way is registered on the resource stack, so a
// failure at any later step of connect releases it.
func (c *Conn) openTransport(ctx context.Context, cfg ServerConfig) (mcpClient, error) {
	switch cfg.Transport {
	case TransportStdio:
		client, err := mcpclient.NewStdioMCPClient(cfg.Command, envSlice(cfg.Env), cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("start stdio client: %w", err)
		}
		c.resources.push("stdio client", client.Close)
		return client, nil

	case TransportSSE:
		client, err := mcpclient.NewSSEMCPClient(cfg.URL, transport.WithHeaders(cfg.Headers))
		if err != nil {
			return nil, fmt.Errorf("create sse client: %w", err)
		}
		c.resources.push("sse client", client.Close)
		if err := client.Start(ctx); err != nil {
			return nil, fmt.Errorf("start sse client: %w", err)
		}
		return client, nil

	case TransportStreamableHTTP, "streamable-http":
		t, err := transport.NewStreamableHTTP(cfg.URL, transport.WithHTTPHeaders(cfg.Headers))
		if err != nil {
			return nil, fmt.Errorf("create http transport: %w", err)
		}
		c.resources.push("http transport", t.Close)
		client := mcpclient.NewClient(t)
		c.resources.push("http client", client.Close)
		if err := client.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
		return client, nil

	case TransportWebSocket, "ws":
		// The client library carries no websocket transport; fail with a
		// clear capability error instead of crashing or half-connecting.
		return nil, domain.NewDomainError("Conn.openTransport", domain.ErrTransportUnavailable,
			fmt.Sprintf("websocket transport not supported for server %q", c.name))

	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}

// Disconnect releases the connection's resource stack. It is idempotent and
// swallows context.Canceled, a benign race when concurrency contexts are torn
// down during process shutdown; genuinely unexpected errors are returned.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil && len(c.resources.closers) == 0 {
		return nil
	}

	err := c.resources.unwind()
	c.client = nil
	c.tools = nil
	c.limiter = nil

	if err != nil && !errors.Is(err, context.Canceled) {
		return domain.WrapOp("disconnect "+c.name, err)
	}
	return nil
}

// envSlice converts a map of env vars to KEY=VALUE slices.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, k+"="+v)
	}
	return result
}
