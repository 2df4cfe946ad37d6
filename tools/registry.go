package tools

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CacheRecorder 接收客户端缓存命中/未命中事件
type CacheRecorder interface {
	RecordToolClientLookup(hit bool)
}

type clientKey struct {
	workflowID string
	toolName   string
}

func (k clientKey) String() string {
	return k.workflowID + "\x00" + k.toolName
}

// ClientRegistry 按 (workflowID, toolName) 缓存外部工具客户端。
// 进程内构造一次并注入 Resolver；条目只在 Clear/ClearFor/Evict/Detach 时移除。
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[clientKey]MCPClient
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64

	recorder CacheRecorder
	logger   *zap.Logger
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry(logger *zap.Logger) *ClientRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClientRegistry{
		clients: make(map[clientKey]MCPClient),
		logger:  logger.With(zap.String("component", "tool_client_registry")),
	}
}

// SetRecorder installs a cache metrics recorder.
func (r *ClientRegistry) SetRecorder(rec CacheRecorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorder = rec
}

// GetOrCreate 原子地获取或创建客户端。并发的首次访问共享同一次创建；
// 创建失败不会写入缓存，下次调用会重新尝试。
func (r *ClientRegistry) GetOrCreate(ctx context.Context, workflowID, toolName string,
	create func(ctx context.Context) (MCPClient, error)) (MCPClient, error) {
	c, _, err := r.acquire(ctx, workflowID, toolName, create)
	return c, err
}

// acquire 同 GetOrCreate；owned 表示客户端由本次调用创建且未与其他调用共享
func (r *ClientRegistry) acquire(ctx context.Context, workflowID, toolName string,
	create func(ctx context.Context) (MCPClient, error)) (c MCPClient, owned bool, err error) {
	key := clientKey{workflowID: workflowID, toolName: toolName}

	if c, ok := r.lookup(key); ok {
		r.record(true)
		return c, false, nil
	}

	created := false
	v, err, shared := r.group.Do(key.String(), func() (interface{}, error) {
		// 等待期间可能已有其他调用完成创建
		if c, ok := r.lookup(key); ok {
			return c, nil
		}
		c, err := create(ctx)
		if err != nil {
			return nil, err
		}
		created = true
		r.mu.Lock()
		r.clients[key] = c
		r.mu.Unlock()
		r.logger.Debug("tool client created",
			zap.String("workflow_id", workflowID),
			zap.String("tool", toolName))
		return c, nil
	})
	r.record(false)
	if err != nil {
		return nil, false, err
	}
	return v.(MCPClient), created && !shared, nil
}

func (r *ClientRegistry) lookup(key clientKey) (MCPClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[key]
	return c, ok
}

func (r *ClientRegistry) record(hit bool) {
	if hit {
		r.hits.Add(1)
	} else {
		r.misses.Add(1)
	}
	r.mu.RLock()
	rec := r.recorder
	r.mu.RUnlock()
	if rec != nil {
		rec.RecordToolClientLookup(hit)
	}
}

// Evict removes and closes a single cached client.
func (r *ClientRegistry) Evict(workflowID, toolName string) {
	key := clientKey{workflowID: workflowID, toolName: toolName}
	r.mu.Lock()
	c, ok := r.clients[key]
	delete(r.clients, key)
	r.mu.Unlock()
	if ok {
		r.closeClient(key, c)
	}
}

// Detach 仅当缓存条目仍是 c 时移除，不关闭客户端；其他调用方可能仍在使用它
func (r *ClientRegistry) Detach(workflowID, toolName string, c MCPClient) bool {
	key := clientKey{workflowID: workflowID, toolName: toolName}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.clients[key]; ok && cur == c {
		delete(r.clients, key)
		return true
	}
	return false
}

// ClearFor closes and removes every client cached for the workflow.
func (r *ClientRegistry) ClearFor(workflowID string) int {
	r.mu.Lock()
	removed := make(map[clientKey]MCPClient)
	for key, c := range r.clients {
		if key.workflowID == workflowID {
			removed[key] = c
			delete(r.clients, key)
		}
	}
	r.mu.Unlock()

	for key, c := range removed {
		r.closeClient(key, c)
	}
	return len(removed)
}

// Clear closes and removes every cached client.
func (r *ClientRegistry) Clear() int {
	r.mu.Lock()
	removed := r.clients
	r.clients = make(map[clientKey]MCPClient)
	r.mu.Unlock()

	for key, c := range removed {
		r.closeClient(key, c)
	}
	return len(removed)
}

func (r *ClientRegistry) closeClient(key clientKey, c MCPClient) {
	if err := c.Close(); err != nil {
		r.logger.Warn("failed to close tool client",
			zap.String("workflow_id", key.workflowID),
			zap.String("tool", key.toolName),
			zap.Error(err))
	}
}

// Len returns the number of cached clients.
func (r *ClientRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Stats returns lookup hit and miss counts.
func (r *ClientRegistry) Stats() (hits, misses int64) {
	return r.hits.Load(), r.misses.Load()
}
