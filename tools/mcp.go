package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/BaSui01/evoflow/types"
)

// MCPServerConfig 一个子进程（stdio）MCP 服务器的启动配置。
// 节点声明的工具名对应 Name；服务器暴露的全部工具并入 ToolSet。
type MCPServerConfig struct {
	Name    string            `yaml:"name" json:"name"`
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// EnvList renders Env as KEY=VALUE pairs in stable order.
func (c MCPServerConfig) EnvList() []string {
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+c.Env[k])
	}
	return out
}

// MCPClient 会话级外部工具客户端
type MCPClient interface {
	ListTools(ctx context.Context) ([]types.ToolSchema, error)
	CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
	Close() error
}

// ClientFactory 为一个服务器配置创建已初始化的客户端
type ClientFactory func(ctx context.Context, cfg MCPServerConfig) (MCPClient, error)

// NewStdioClientFactory returns a factory spawning stdio MCP servers through mcp-go.
func NewStdioClientFactory(clientName, clientVersion string) ClientFactory {
	return func(ctx context.Context, cfg MCPServerConfig) (MCPClient, error) {
		if cfg.Command == "" {
			return nil, fmt.Errorf("mcp server %s: command is required", cfg.Name)
		}

		c, err := client.NewStdioMCPClient(cfg.Command, cfg.EnvList(), cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("start mcp server %s: %w", cfg.Name, err)
		}

		initReq := mcp.InitializeRequest{}
		initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
		initReq.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
		if _, err := c.Initialize(ctx, initReq); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("initialize mcp server %s: %w", cfg.Name, err)
		}
		return &stdioClient{name: cfg.Name, c: c}, nil
	}
}

type stdioClient struct {
	name string
	c    *client.Client
}

func (s *stdioClient) ListTools(ctx context.Context) ([]types.ToolSchema, error) {
	res, err := s.c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools on %s: %w", s.name, err)
	}
	out := make([]types.ToolSchema, 0, len(res.Tools))
	for _, t := range res.Tools {
		params := t.RawInputSchema
		if len(params) == 0 {
			params, err = json.Marshal(t.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("encode schema of %s: %w", t.Name, err)
			}
		}
		out = append(out, types.ToolSchema{Name: t.Name, Description: t.Description, Parameters: params})
	}
	return out, nil
}

func (s *stdioClient) CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	arguments := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return nil, fmt.Errorf("tool %s: arguments must be a JSON object: %w", name, err)
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = arguments
	res, err := s.c.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", name, s.name, err)
	}

	text := contentText(res.Content)
	if res.IsError {
		return nil, fmt.Errorf("tool %s: %s", name, text)
	}
	return json.Marshal(text)
}

func (s *stdioClient) Close() error {
	return s.c.Close()
}

func contentText(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, item := range content {
		switch c := item.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// mcpTool 绑定到某个缓存客户端的远程工具
type mcpTool struct {
	schema types.ToolSchema
	client MCPClient
}

func (t *mcpTool) Name() string             { return t.schema.Name }
func (t *mcpTool) Schema() types.ToolSchema { return t.schema }

func (t *mcpTool) Call(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	return t.client.CallTool(ctx, t.schema.Name, args)
}
