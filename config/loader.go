// =============================================================================
// 📦 EvoFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("evoflow.yaml").
//	    WithEnvPrefix("EVOFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/evoflow/evaluation"
	"github.com/BaSui01/evoflow/evolution"
	"github.com/BaSui01/evoflow/internal/cache"
	"github.com/BaSui01/evoflow/internal/database"
	"github.com/BaSui01/evoflow/tools"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 EvoFlow 的完整配置结构
type Config struct {
	// Evolution 演化循环配置
	Evolution evolution.Config `yaml:"evolution" env:"EVOLUTION"`

	// Fitness 适应度权重与评分器
	Fitness FitnessConfig `yaml:"fitness" env:"FITNESS"`

	// Concurrency 并发准入控制
	Concurrency ConcurrencyConfig `yaml:"concurrency" env:"CONCURRENCY"`

	// Budget 成本预算
	Budget BudgetConfig `yaml:"budget" env:"BUDGET"`

	// Pipeline 节点执行限制
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// Tools 外部工具服务器
	Tools ToolsConfig `yaml:"tools" env:"TOOLS"`

	// Database 追踪存储
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis 评估结果缓存
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Observer 事件缓冲
	Observer ObserverConfig `yaml:"observer" env:"OBSERVER"`

	// Server 事件流与指标端点
	Server ServerConfig `yaml:"server" env:"SERVER"`
}

// FitnessConfig 适应度配置，权重不做归一化
type FitnessConfig struct {
	evaluation.FitnessConfig `yaml:",inline"`

	// Scorer 默认评分器: exact, contains, json, similarity
	Scorer string `yaml:"scorer" env:"SCORER"`
}

// ConcurrencyConfig 并发限制
type ConcurrencyConfig struct {
	// 同时评估的基因组数
	MaxConcurrentWorkflows int `yaml:"max_concurrent_workflows" env:"MAX_CONCURRENT_WORKFLOWS"`
	// 同时进行的模型调用数
	MaxConcurrentAIRequests int `yaml:"max_concurrent_ai_requests" env:"MAX_CONCURRENT_AI_REQUESTS"`
	// 单个基因组内并发的用例数，0 表示不限制
	MaxConcurrentCases int `yaml:"max_concurrent_cases" env:"MAX_CONCURRENT_CASES"`
	// 模型请求速率，0 表示不限速
	ModelRequestsPerSecond float64 `yaml:"model_requests_per_second" env:"MODEL_REQUESTS_PER_SECOND"`
	ModelBurst             int     `yaml:"model_burst" env:"MODEL_BURST"`
}

// BudgetConfig 成本预算
type BudgetConfig struct {
	// 单次运行的模型花费上限（美元），0 表示不限制
	MaxCostUSDPerRun float64 `yaml:"max_cost_usd_per_run" env:"MAX_COST_USD_PER_RUN"`
}

// PipelineConfig 节点管道限制
type PipelineConfig struct {
	MaxSteps  int `yaml:"max_steps" env:"MAX_STEPS"`
	MaxRounds int `yaml:"max_rounds" env:"MAX_ROUNDS"`
	// 单个用例内的最大节点跳数
	MaxHops int `yaml:"max_hops" env:"MAX_HOPS"`
	// 用例未声明超时时使用
	NodeTimeout time.Duration `yaml:"node_timeout" env:"NODE_TIMEOUT"`
}

// ToolsConfig 工具配置；MCP 服务器只能从 YAML 配置
type ToolsConfig struct {
	MCPServers []tools.MCPServerConfig `yaml:"mcp_servers"`
	// 客户端创建 + 工具列表获取的超时
	CreateTimeout time.Duration `yaml:"create_timeout" env:"CREATE_TIMEOUT"`
}

// DatabaseConfig 追踪数据库配置
type DatabaseConfig struct {
	database.Config `yaml:",inline"`

	// Enabled 为 false 时使用内存追踪器
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// AutoMigrate 启动时用 GORM 自动建表；生产环境建议使用 migrate 子命令
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// RedisConfig 评估缓存配置
type RedisConfig struct {
	cache.Config `yaml:",inline"`

	// 是否启用评估结果缓存
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 结果过期时间，0 使用 DefaultTTL
	ResultTTL time.Duration `yaml:"result_ttl" env:"RESULT_TTL"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// Insecure 为 false 时通过 TLS 连接 OTLP 端点
	Insecure bool `yaml:"insecure" env:"INSECURE"`
	// 部署环境，写入 deployment.environment 资源属性
	Environment string `yaml:"environment" env:"ENVIRONMENT"`
	// 附加资源属性，只能从 YAML 配置
	ResourceAttributes map[string]string `yaml:"resource_attributes"`
}

// ObserverConfig 事件缓冲配置
type ObserverConfig struct {
	// 每个运行保留的事件数
	Capacity int `yaml:"capacity" env:"CAPACITY"`
	// 运行结束后保留事件的时间
	DisposeAfter time.Duration `yaml:"dispose_after" env:"DISPOSE_AFTER"`
}

// ServerConfig 端点配置，地址为空表示不启动
type ServerConfig struct {
	StreamAddr  string `yaml:"stream_addr" env:"STREAM_ADDR"`
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 同时设置时两个端点都以 HTTPS 提供服务
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "EVOFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段；内嵌结构体沿用当前前缀
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if fieldType.Anonymous && field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, prefix); err != nil {
				return err
			}
			continue
		}

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体（time.Duration 除外），递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// EngineConfig 返回填入并发与预算限制后的演化配置
func (c *Config) EngineConfig() evolution.Config {
	ec := c.Evolution
	ec.MaxConcurrentWorkflows = c.Concurrency.MaxConcurrentWorkflows
	ec.MaxCostUSDPerRun = c.Budget.MaxCostUSDPerRun
	return ec
}

// EvaluatorConfig 返回评估器配置
func (c *Config) EvaluatorConfig() evaluation.Config {
	return evaluation.Config{
		Fitness:            c.Fitness.FitnessConfig,
		MaxConcurrentCases: c.Concurrency.MaxConcurrentCases,
		DefaultTimeout:     c.Pipeline.NodeTimeout,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if err := c.EngineConfig().Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	f := c.Fitness
	if f.ScoreWeight < 0 || f.TimeWeight < 0 || f.CostWeight < 0 {
		errs = append(errs, "fitness weights must not be negative")
	}
	if f.TimeBaseline < 0 || f.TimeThreshold < 0 || f.CostBaseline < 0 || f.CostThreshold < 0 {
		errs = append(errs, "fitness baselines and thresholds must not be negative")
	}
	if f.PassThreshold < 0 || f.PassThreshold > 1 {
		errs = append(errs, "fitness.pass_threshold must be in [0, 1]")
	}
	if f.Scorer != "" {
		if _, err := evaluation.NewScorer(f.Scorer); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if c.Concurrency.MaxConcurrentAIRequests <= 0 {
		errs = append(errs, "concurrency.max_concurrent_ai_requests must be positive")
	}
	if c.Concurrency.MaxConcurrentCases < 0 {
		errs = append(errs, "concurrency.max_concurrent_cases must not be negative")
	}
	if c.Concurrency.ModelRequestsPerSecond < 0 {
		errs = append(errs, "concurrency.model_requests_per_second must not be negative")
	}
	if c.Pipeline.MaxSteps <= 0 || c.Pipeline.MaxRounds <= 0 || c.Pipeline.MaxHops <= 0 {
		errs = append(errs, "pipeline limits must be positive")
	}

	seen := make(map[string]bool, len(c.Tools.MCPServers))
	for _, s := range c.Tools.MCPServers {
		switch {
		case s.Name == "":
			errs = append(errs, "tools.mcp_servers: name is required")
		case s.Command == "":
			errs = append(errs, fmt.Sprintf("tools.mcp_servers[%s]: command is required", s.Name))
		case seen[s.Name]:
			errs = append(errs, fmt.Sprintf("tools.mcp_servers[%s]: duplicate name", s.Name))
		}
		seen[s.Name] = true
	}

	if c.Database.Enabled {
		if _, err := database.Dialector(c.Database.Driver, c.Database.DSN); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required when the result cache is enabled")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "server.tls_cert_file and server.tls_key_file must be set together")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be in [0, 1]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
