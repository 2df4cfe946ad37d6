package evaluation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/evoflow/internal/cache"
)

// ResultCache 按 (工作流结构哈希, 用例 ID) 缓存成功的用例结果
type ResultCache interface {
	Get(ctx context.Context, workflowHash, caseID string) (*CaseResult, bool)
	Put(ctx context.Context, workflowHash, caseID string, result CaseResult)
}

// RedisResultCache 基于 internal/cache.Manager 的结果缓存
type RedisResultCache struct {
	manager *cache.Manager
	ttl     time.Duration
	logger  *zap.Logger
}

// NewRedisResultCache creates a cache; ttl 0 uses the manager default.
func NewRedisResultCache(manager *cache.Manager, ttl time.Duration, logger *zap.Logger) *RedisResultCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisResultCache{
		manager: manager,
		ttl:     ttl,
		logger:  logger.With(zap.String("component", "result_cache")),
	}
}

func resultKey(workflowHash, caseID string) string {
	return "eval:" + workflowHash + ":" + caseID
}

func (c *RedisResultCache) Get(ctx context.Context, workflowHash, caseID string) (*CaseResult, bool) {
	var r CaseResult
	if err := c.manager.GetJSON(ctx, resultKey(workflowHash, caseID), &r); err != nil {
		if !cache.IsCacheMiss(err) {
			c.logger.Warn("result cache read failed", zap.Error(err))
		}
		return nil, false
	}
	r.Cached = true
	return &r, true
}

// Put 失败结果永不缓存
func (c *RedisResultCache) Put(ctx context.Context, workflowHash, caseID string, result CaseResult) {
	if result.Failed {
		return
	}
	result.Cached = false
	if err := c.manager.SetJSON(ctx, resultKey(workflowHash, caseID), result, c.ttl); err != nil {
		c.logger.Warn("result cache write failed", zap.Error(err))
	}
}

// Invalidate drops every cached case of a workflow structure.
func (c *RedisResultCache) Invalidate(ctx context.Context, workflowHash string) (int, error) {
	return c.manager.DeletePrefix(ctx, "eval:"+workflowHash+":")
}
