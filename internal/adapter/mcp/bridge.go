package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"sentinel-agent/internal/domain"
)

// Bridge holds the live set of provider connections. It is constructed once
// at process start and threaded through explicitly; LoadAll populates it and
// CloseAll drains it, and those are the only mutators.
type Bridge struct {
	logger *slog.Logger

	mu    sync.Mutex
	conns []*Conn

	// dial overrides transport establishment in tests.
	dial func(ctx context.Context, cfg ServerConfig) (mcpClient, error)
}

// NewBridge creates an empty bridge.
func NewBridge(logger *slog.Logger) *Bridge {
	return &Bridge{logger: logger}
}

// Connect establishes a session with a single provider and, on success,
// registers the connection. A failed connect registers nothing and leaves no
// dangling transport handles.
func (b *Bridge) Connect(ctx context.Context, cfg ServerConfig) (*Conn, error) {
	conn := &Conn{
		name:      cfg.Name,
		transport: cfg.Transport,
		logger:    b.logger,
		dial:      b.dial,
	}
	if err := conn.connect(ctx, cfg); err != nil {
		return nil, fmt.Errorf("provider %q (%s): %w", cfg.Name, cfg.Transport, err)
	}

	b.mu.Lock()
	b.conns = append(b.conns, conn)
	b.mu.Unlock()
	return conn, nil
}

// LoadAll reads the provider configuration at path and connects every enabled
// provider in document order. Per-provider failures are logged and skipped;
// they never abort the batch. The union of all connected providers' tools is
// returned in connection order. A missing config file or an empty mapping
// yields an empty tool list.
func (b *Bridge) LoadAll(ctx context.Context, path string) ([]domain.Tool, error) {
	servers, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		b.logger.Info("no tool providers configured", "path", path)
		return nil, nil
	}

	var tools []domain.Tool
	for _, sc := range servers {
		if sc.Disabled {
			b.logger.Info("skipping disabled provider", "server", sc.Name)
			continue
		}
		if err := sc.validate(); err != nil {
			b.logger.Warn("skipping misconfigured provider", "error", err)
			continue
		}

		conn, err := b.Connect(ctx, sc)
		if err != nil {
			b.logger.Warn("provider connection failed", "server", sc.Name, "error", err)
			continue
		}
		tools = append(tools, conn.Tools()...)
	}

	b.logger.Info("provider tools loaded", "count", len(tools))
	return tools, nil
}

// Conns returns a snapshot of the registered connections.
func (b *Bridge) Conns() []*Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Conn, len(b.conns))
	copy(out, b.conns)
	return out
}

// CloseAll disconnects every registered connection, collecting (not raising)
// individual errors, then clears the set regardless. Collected errors are
// reported as a single warning after the sweep. Calling CloseAll again is a
// no-op. Teardown runs to completion even when ctx is already cancelled, so
// an interrupt still drains every connection.
func (b *Bridge) CloseAll(_ context.Context) {
	b.mu.Lock()
	conns := b.conns
	b.conns = nil
	b.mu.Unlock()

	var errs []string
	for _, conn := range conns {
		if err := conn.Disconnect(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", conn.Name(), err))
		}
	}

	if len(errs) > 0 {
		b.logger.Warn("some providers had errors during cleanup",
			"errors", strings.Join(errs, "; "))
	}
}
