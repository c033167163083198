package toolexec

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// ServerConfig describes one MCP server the tool executor can dial,
// mirroring config.MCPServerConfig without importing the config package.
type ServerConfig struct {
	Name      string
	Transport string // stdio | http
	Command   string
	Args      []string
	Env       map[string]string
	URL       string
}

// ClientPool lazily connects to configured MCP servers and keeps one
// live client per server name, reconnecting the next time a dead
// connection is requested.
type ClientPool struct {
	servers map[string]ServerConfig

	mu      sync.Mutex
	clients map[string]*client.Client
}

// NewClientPool builds a pool from the configured MCP servers, keyed by
// name.
func NewClientPool(servers []ServerConfig) *ClientPool {
	byName := make(map[string]ServerConfig, len(servers))
	for _, s := range servers {
		byName[s.Name] = s
	}
	return &ClientPool{servers: byName, clients: make(map[string]*client.Client)}
}

// Get returns a connected client for serverName, establishing and
// initializing the connection on first use.
func (p *ClientPool) Get(ctx context.Context, serverName string) (*client.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[serverName]; ok {
		return c, nil
	}

	cfg, ok := p.servers[serverName]
	if !ok {
		return nil, fmt.Errorf("toolexec: unknown MCP server %q", serverName)
	}

	c, err := p.connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p.clients[serverName] = c
	return c, nil
}

func (p *ClientPool) connect(ctx context.Context, cfg ServerConfig) (*client.Client, error) {
	var (
		c   *client.Client
		err error
	)

	switch cfg.Transport {
	case "http", "sse", "streamable-http":
		c, err = client.NewStreamableHttpClient(cfg.URL)
	default:
		c, err = client.NewStdioMCPClient(cfg.Command, envSlice(cfg.Env), cfg.Args...)
	}
	if err != nil {
		return nil, fmt.Errorf("toolexec: create MCP client for %q: %w", cfg.Name, err)
	}

	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("toolexec: start MCP client for %q: %w", cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "agentcored", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"

	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("toolexec: initialize MCP client for %q: %w", cfg.Name, err)
	}

	return c, nil
}

// Close shuts down every connected client.
func (p *ClientPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		c.Close()
	}
	p.clients = make(map[string]*client.Client)
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
