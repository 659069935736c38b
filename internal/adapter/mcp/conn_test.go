package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel-agent/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClient implements mcpClient for tests.
type fakeClient struct {
	tools      []mcp.Tool
	listErr    error
	callErr    error
	callResult *mcp.CallToolResult
	lastCall   mcp.CallToolRequest
	closed     bool
}

func (f *fakeClient) ListTools(_ context.Context, _ mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeClient) CallTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.lastCall = req
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.callResult, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func newFakeConn(t *testing.T, client *fakeClient, cfg ServerConfig) *Conn {
	t.Helper()
	conn := &Conn{
		name:      cfg.Name,
		transport: cfg.Transport,
		logger:    testLogger(),
	}
	conn.dial = func(_ context.Context, _ ServerConfig) (mcpClient, error) {
		conn.resources.push("fake client", client.Close)
		return client, nil
	}
	require.NoError(t, conn.connect(context.Background(), cfg))
	return conn
}

func TestCloseStack_UnwindReverseOrder(t *testing.T) {
	var order []string
	var s closeStack
	s.push("first", func() error { order = append(order, "first"); return nil })
	s.push("second", func() error { order = append(order, "second"); return nil })
	s.push("third", func() error { order = append(order, "third"); return nil })

	require.NoError(t, s.unwind())
	assert.Equal(t, []string{"third", "second", "first"}, order)

	// Second unwind is a no-op.
	order = nil
	require.NoError(t, s.unwind())
	assert.Empty(t, order)
}

func TestCloseStack_CollectsErrors(t *testing.T) {
	var s closeStack
	s.push("ok", func() error { return nil })
	s.push("bad", func() error { return fmt.Errorf("release failed") })

	err := s.unwind()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Contains(t, err.Error(), "release failed")
}

func TestConn_ConnectAndTools(t *testing.T) {
	client := &fakeClient{tools: []mcp.Tool{
		{Name: "query_ip_reputation", Description: "IP reputation lookup"},
		{Name: "get_asset_profile", Description: "Asset profile lookup"},
	}}
	conn := newFakeConn(t, client, ServerConfig{Name: "intel", Transport: TransportStdio, Command: "/bin/intel"})

	assert.True(t, conn.Connected())
	tools := conn.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, "query_ip_reputation", tools[0].Name())
	assert.Equal(t, "get_asset_profile", tools[1].Name())
}

func TestConn_ConnectFailureUnwinds(t *testing.T) {
	client := &fakeClient{listErr: fmt.Errorf("catalog unavailable")}
	conn := &Conn{name: "flaky", logger: testLogger()}
	conn.dial = func(_ context.Context, _ ServerConfig) (mcpClient, error) {
		conn.resources.push("fake client", client.Close)
		return client, nil
	}

	err := conn.connect(context.Background(), ServerConfig{Name: "flaky"})
	require.Error(t, err)
	assert.True(t, client.closed, "transport handle must be released on failed connect")
	assert.False(t, conn.Connected())
	assert.Empty(t, conn.Tools())
}

func TestConn_DialFailure(t *testing.T) {
	conn := &Conn{name: "down", logger: testLogger()}
	conn.dial = func(_ context.Context, _ ServerConfig) (mcpClient, error) {
		return nil, fmt.Errorf("connection refused")
	}

	err := conn.connect(context.Background(), ServerConfig{Name: "down"})
	require.Error(t, err)
	assert.False(t, conn.Connected())
}

func TestConn_DisconnectIdempotent(t *testing.T) {
	client := &fakeClient{tools: []mcp.Tool{{Name: "x"}}}
	conn := newFakeConn(t, client, ServerConfig{Name: "once", Transport: TransportStdio, Command: "/bin/x"})

	require.NoError(t, conn.Disconnect())
	assert.True(t, client.closed)
	assert.False(t, conn.Connected())

	// Second disconnect observes a drained stack.
	require.NoError(t, conn.Disconnect())
}

func TestConn_DisconnectSwallowsCanceled(t *testing.T) {
	conn := &Conn{name: "raced", logger: testLogger()}
	conn.client = &fakeClient{}
	conn.resources.push("session", func() error {
		return fmt.Errorf("shutdown race: %w", context.Canceled)
	})

	assert.NoError(t, conn.Disconnect())
}

func TestConn_RateLimiterConfigured(t *testing.T) {
	client := &fakeClient{}
	conn := newFakeConn(t, client, ServerConfig{
		Name: "slow", Transport: TransportStdio, Command: "/bin/x", CallsPerMinute: 60,
	})
	require.NotNil(t, conn.limiter)
	assert.Equal(t, 60, conn.limiter.Burst())

	require.NoError(t, conn.Disconnect())
	assert.Nil(t, conn.limiter, "limiter must not outlive the session")
}

func TestOpenTransport_WebSocketUnavailable(t *testing.T) {
	conn := &Conn{name: "wsprov", logger: testLogger()}
	_, err := conn.openTransport(context.Background(),
		ServerConfig{Name: "wsprov", Transport: TransportWebSocket, URL: "wss://x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransportUnavailable))
}
