package tools

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ResolveResult 部分成功的解析结果；失败的名称只上报，不抛错
type ResolveResult struct {
	Tools  *ToolSet
	Failed []string
}

// Resolver 将节点声明的工具名解析为可调用的工具句柄
type Resolver struct {
	code          *CodeRegistry
	servers       map[string]MCPServerConfig
	clients       *ClientRegistry
	factory       ClientFactory
	createTimeout time.Duration
	logger        *zap.Logger
}

// ResolverConfig 解析器依赖
type ResolverConfig struct {
	Code    *CodeRegistry
	Servers []MCPServerConfig
	Clients *ClientRegistry
	Factory ClientFactory
	// CreateTimeout 单个客户端创建 + 工具列表获取的超时，0 表示不限制
	CreateTimeout time.Duration
}

// NewResolver creates a resolver.
func NewResolver(cfg ResolverConfig, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Code == nil {
		cfg.Code = NewCodeRegistry()
	}
	if cfg.Clients == nil {
		cfg.Clients = NewClientRegistry(logger)
	}
	servers := make(map[string]MCPServerConfig, len(cfg.Servers))
	for _, s := range cfg.Servers {
		servers[s.Name] = s
	}
	return &Resolver{
		code:          cfg.Code,
		servers:       servers,
		clients:       cfg.Clients,
		factory:       cfg.Factory,
		createTimeout: cfg.CreateTimeout,
		logger:        logger.With(zap.String("component", "tool_resolver")),
	}
}

// Known reports whether name has a code tool or an MCP server configuration.
func (r *Resolver) Known(name string) bool {
	if r.code.Has(name) {
		return true
	}
	_, ok := r.servers[name]
	return ok
}

// Clients returns the shared client cache.
func (r *Resolver) Clients() *ClientRegistry {
	return r.clients
}

type mcpOutcome struct {
	tools *ToolSet
	err   error
}

// Resolve 代码工具同步解析；MCP 工具并行创建，相互独立失败。
// 结果按请求顺序合并，保证 ToolSet 顺序稳定。
func (r *Resolver) Resolve(ctx context.Context, names []string, workflowID string) ResolveResult {
	result := ResolveResult{Tools: NewToolSet()}
	outcomes := make([]*mcpOutcome, len(names))

	var g errgroup.Group
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		if _, ok := r.code.Get(name); ok {
			continue
		}
		server, ok := r.servers[name]
		if !ok || r.factory == nil {
			continue
		}

		i := i
		outcomes[i] = &mcpOutcome{}
		g.Go(func() error {
			tools, err := r.resolveMCP(ctx, workflowID, server)
			outcomes[i].tools, outcomes[i].err = tools, err
			return nil
		})
	}
	_ = g.Wait()

	seen = make(map[string]bool, len(names))
	for i, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		if t, ok := r.code.Get(name); ok {
			result.Tools.Add(t)
			continue
		}
		outcome := outcomes[i]
		if outcome == nil {
			r.logger.Warn("tool unavailable: no configuration",
				zap.String("workflow_id", workflowID),
				zap.String("tool", name))
			result.Failed = append(result.Failed, name)
			continue
		}
		if outcome.err != nil {
			r.logger.Warn("tool unavailable",
				zap.String("workflow_id", workflowID),
				zap.String("tool", name),
				zap.Error(outcome.err))
			result.Failed = append(result.Failed, name)
			continue
		}
		if collisions := result.Tools.Merge(outcome.tools); len(collisions) > 0 {
			r.logger.Warn("duplicate tool names ignored",
				zap.String("server", name),
				zap.Strings("tools", collisions))
		}
	}
	return result
}

func (r *Resolver) resolveMCP(ctx context.Context, workflowID string, server MCPServerConfig) (*ToolSet, error) {
	if r.createTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.createTimeout)
		defer cancel()
	}

	c, owned, err := r.clients.acquire(ctx, workflowID, server.Name, func(ctx context.Context) (MCPClient, error) {
		return r.factory(ctx, server)
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	schemas, err := c.ListTools(ctx)
	if err != nil {
		// 丢弃缓存条目，下次重新创建；只关闭本次独占创建的客户端
		if r.clients.Detach(workflowID, server.Name, c) && owned {
			r.clients.closeClient(clientKey{workflowID: workflowID, toolName: server.Name}, c)
		}
		return nil, fmt.Errorf("list tools: %w", err)
	}

	set := NewToolSet()
	for _, schema := range schemas {
		set.Add(&mcpTool{schema: schema, client: c})
	}
	return set, nil
}
