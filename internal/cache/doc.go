/*
包 cache 提供基于 Redis 的缓存管理能力，供评估结果缓存使用。

# 核心类型

  - Manager：缓存管理器，持有 go-redis 客户端，提供 Get/Set/Delete、
    GetJSON/SetJSON 便捷序列化与按前缀失效 DeletePrefix。
  - Config：地址、密码、键前缀、默认 TTL、连接池与健康检查间隔。
  - Stats：本进程观察到的命中/未命中计数。

# 错误语义

ErrCacheMiss 表示未命中，ErrClosed 表示管理器已关闭。
*/
package cache
