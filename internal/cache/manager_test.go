package cache

import (
	"context"
	"crypto/tls"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	mr := miniredis.RunT(t)
	manager, err := NewManager(Config{
		Addr:       mr.Addr(),
		KeyPrefix:  "test:",
		DefaultTTL: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return mr, manager
}

func TestManager_SetAndGetUsesPrefix(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", 0))
	value, err := manager.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	assert.True(t, mr.Exists("test:k"))
	assert.Equal(t, time.Minute, mr.TTL("test:k"))
}

func TestManager_MissAndStats(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	_, err := manager.Get(ctx, "missing")
	assert.True(t, IsCacheMiss(err))

	require.NoError(t, manager.Set(ctx, "k", "v", 0))
	_, err = manager.Get(ctx, "k")
	require.NoError(t, err)

	stats := manager.GetStats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-9)
}

func TestManager_JSON(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	type payload struct {
		Score float64 `json:"score"`
	}
	require.NoError(t, manager.SetJSON(ctx, "j", payload{Score: 0.75}, time.Hour))

	var got payload
	require.NoError(t, manager.GetJSON(ctx, "j", &got))
	assert.Equal(t, 0.75, got.Score)
}

func TestManager_DeleteAndDeletePrefix(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	for _, k := range []string{"wf:a:1", "wf:a:2", "wf:b:1"} {
		require.NoError(t, manager.Set(ctx, k, "x", 0))
	}
	n, err := manager.DeletePrefix(ctx, "wf:a:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, mr.Exists("test:wf:b:1"))

	require.NoError(t, manager.Delete(ctx, "wf:b:1"))
	assert.False(t, mr.Exists("test:wf:b:1"))
}

func TestManager_Closed(t *testing.T) {
	_, manager := setupTestRedis(t)
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	_, err := manager.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, manager.Ping(context.Background()), ErrClosed)
}

func TestNewManager_ConnectionFailure(t *testing.T) {
	_, err := NewManager(Config{Addr: "127.0.0.1:1"}, nil)
	assert.Error(t, err)
}

func TestRedisOptions_TLS(t *testing.T) {
	cfg := DefaultConfig()
	assert.Nil(t, redisOptions(cfg).TLSConfig)

	cfg.TLS = true
	opts := redisOptions(cfg)
	require.NotNil(t, opts.TLSConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), opts.TLSConfig.MinVersion)
	assert.Equal(t, cfg.PoolSize, opts.PoolSize)
}
