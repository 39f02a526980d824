package mcpsession

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	clientName    = "mclippy"
	clientVersion = "0.1.0"
)

// Transport is the minimal surface of one streaming MCP connection the
// session layer needs. The production implementation rides mcp-go's SSE
// client; tests substitute a fake with call counters.
type Transport interface {
	// Initialize performs the MCP handshake on the open stream.
	Initialize(ctx context.Context) error
	// ListTools returns the tool names advertised by the endpoint. It
	// doubles as the health/keep-alive probe.
	ListTools(ctx context.Context) ([]string, error)
	// CallTool invokes a named remote tool with a parameter map.
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	// Close tears the stream down. Safe to call more than once.
	Close() error
}

// Dialer opens a new Transport against an endpoint URL. Injected so the
// session layer can be exercised without a live endpoint.
type Dialer func(ctx context.Context, endpoint string) (Transport, error)

// DialSSE opens an SSE-backed MCP transport. The explicit keep-alive
// headers match what the remote broker expects from long-lived streams.
func DialSSE(ctx context.Context, endpoint string) (Transport, error) {
	c, err := client.NewSSEMCPClient(endpoint, transport.WithHeaders(map[string]string{
		"Accept":        "text/event-stream",
		"Cache-Control": "no-cache",
		"Connection":    "keep-alive",
	}))
	if err != nil {
		return nil, fmt.Errorf("create SSE client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("start SSE stream: %w", err)
	}
	return &sseTransport{client: c}, nil
}

type sseTransport struct {
	client *client.Client
}

func (t *sseTransport) Initialize(ctx context.Context) error {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}
	if _, err := t.client.Initialize(ctx, req); err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}
	return nil
}

func (t *sseTransport) ListTools(ctx context.Context) ([]string, error) {
	result, err := t.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	return names, nil
}

func (t *sseTransport) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return t.client.CallTool(ctx, req)
}

func (t *sseTransport) Close() error {
	return t.client.Close()
}
