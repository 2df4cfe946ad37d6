// MockMCPClient 与 MockClientFactory 的外部工具客户端测试模拟实现。
//
// 工厂记录创建次数，可注入创建失败、列表失败和创建延迟。
package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/evoflow/tools"
	"github.com/BaSui01/evoflow/types"
)

// MockMCPClient 是 tools.MCPClient 的模拟实现
type MockMCPClient struct {
	mu sync.Mutex

	Server  string
	schemas []types.ToolSchema
	listErr error
	callFn  func(name string, args json.RawMessage) (json.RawMessage, error)

	calls  []string
	closed atomic.Bool
}

// NewMockMCPClient 创建暴露给定工具名的客户端
func NewMockMCPClient(server string, toolNames ...string) *MockMCPClient {
	c := &MockMCPClient{Server: server}
	for _, name := range toolNames {
		c.schemas = append(c.schemas, types.ToolSchema{
			Name:        name,
			Description: "Mock MCP tool: " + name,
			Parameters:  json.RawMessage(`{"type":"object"}`),
		})
	}
	return c
}

// WithListError 使 ListTools 返回错误
func (c *MockMCPClient) WithListError(err error) *MockMCPClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listErr = err
	return c
}

// WithCallFunc 设置工具调用行为
func (c *MockMCPClient) WithCallFunc(fn func(name string, args json.RawMessage) (json.RawMessage, error)) *MockMCPClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callFn = fn
	return c
}

func (c *MockMCPClient) ListTools(ctx context.Context) ([]types.ToolSchema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	return append([]types.ToolSchema(nil), c.schemas...), nil
}

func (c *MockMCPClient) CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	c.mu.Lock()
	c.calls = append(c.calls, name)
	fn := c.callFn
	c.mu.Unlock()

	if c.closed.Load() {
		return nil, fmt.Errorf("client %s is closed", c.Server)
	}
	if fn != nil {
		return fn(name, args)
	}
	return json.Marshal(fmt.Sprintf("%s ok", name))
}

func (c *MockMCPClient) Close() error {
	c.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (c *MockMCPClient) Closed() bool {
	return c.closed.Load()
}

// Calls returns the tool names called so far.
func (c *MockMCPClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// MockClientFactory 计数的客户端工厂
type MockClientFactory struct {
	mu sync.Mutex

	tools    map[string][]string
	failures map[string]error
	listErrs map[string]error
	delay    time.Duration

	created []*MockMCPClient
	count   atomic.Int64
}

// NewMockClientFactory 创建工厂；tools 为 server -> 暴露的工具名
func NewMockClientFactory(tools map[string][]string) *MockClientFactory {
	return &MockClientFactory{
		tools:    tools,
		failures: make(map[string]error),
		listErrs: make(map[string]error),
	}
}

// FailOn 使指定服务器创建失败
func (f *MockClientFactory) FailOn(server string, err error) *MockClientFactory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[server] = err
	return f
}

// FailListOn 使指定服务器的工具列表失败
func (f *MockClientFactory) FailListOn(server string, err error) *MockClientFactory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErrs[server] = err
	return f
}

// WithDelay 模拟子进程启动耗时
func (f *MockClientFactory) WithDelay(d time.Duration) *MockClientFactory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
	return f
}

// Factory returns the tools.ClientFactory bound to this mock.
func (f *MockClientFactory) Factory() tools.ClientFactory {
	return func(ctx context.Context, cfg tools.MCPServerConfig) (tools.MCPClient, error) {
		f.mu.Lock()
		delay := f.delay
		failure := f.failures[cfg.Name]
		listErr := f.listErrs[cfg.Name]
		names := f.tools[cfg.Name]
		f.mu.Unlock()

		f.count.Add(1)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if failure != nil {
			return nil, failure
		}

		c := NewMockMCPClient(cfg.Name, names...)
		if listErr != nil {
			c.WithListError(listErr)
		}
		f.mu.Lock()
		f.created = append(f.created, c)
		f.mu.Unlock()
		return c, nil
	}
}

// Count returns how many times the factory was invoked.
func (f *MockClientFactory) Count() int {
	return int(f.count.Load())
}

// Created returns the clients created successfully.
func (f *MockClientFactory) Created() []*MockMCPClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockMCPClient(nil), f.created...)
}
