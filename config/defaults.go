// =============================================================================
// 📦 EvoFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/evoflow/evaluation"
	"github.com/BaSui01/evoflow/evolution"
	"github.com/BaSui01/evoflow/internal/cache"
	"github.com/BaSui01/evoflow/internal/database"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Evolution:   evolution.DefaultConfig(),
		Fitness:     DefaultFitnessConfig(),
		Concurrency: DefaultConcurrencyConfig(),
		Budget:      BudgetConfig{},
		Pipeline:    DefaultPipelineConfig(),
		Tools:       ToolsConfig{CreateTimeout: 30 * time.Second},
		Database:    DefaultDatabaseConfig(),
		Redis:       DefaultRedisConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
		Observer:    DefaultObserverConfig(),
		Server:      DefaultServerConfig(),
	}
}

// DefaultFitnessConfig 返回默认适应度配置，权重之和为 1.0
func DefaultFitnessConfig() FitnessConfig {
	return FitnessConfig{
		FitnessConfig: evaluation.DefaultFitnessConfig(),
		Scorer:        "exact",
	}
}

// DefaultConcurrencyConfig 返回默认并发配置
func DefaultConcurrencyConfig() ConcurrencyConfig {
	return ConcurrencyConfig{
		MaxConcurrentWorkflows:  4,
		MaxConcurrentAIRequests: 8,
		MaxConcurrentCases:      4,
	}
}

// DefaultPipelineConfig 返回默认管道限制
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxSteps:    20,
		MaxRounds:   10,
		MaxHops:     evaluation.DefaultMaxHops,
		NodeTimeout: 2 * time.Minute,
	}
}

// DefaultDatabaseConfig 默认关闭，使用内存追踪器
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Config: database.DefaultConfig(),
	}
}

// DefaultRedisConfig 默认关闭结果缓存
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Config:    cache.DefaultConfig(),
		ResultTTL: 24 * time.Hour,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "evoflow",
		SampleRate:   0.1,
		Insecure:     true,
	}
}

// DefaultObserverConfig 返回默认事件缓冲配置
func DefaultObserverConfig() ObserverConfig {
	return ObserverConfig{
		Capacity:     1000,
		DisposeAfter: 5 * time.Minute,
	}
}

// DefaultServerConfig 端点默认关闭
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ShutdownTimeout: 15 * time.Second,
	}
}
