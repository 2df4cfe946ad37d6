// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/evoflow/evolution"
	"github.com/BaSui01/evoflow/tools"
	"github.com/BaSui01/evoflow/tracker"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, tracker.ModeGP, cfg.Evolution.Mode)
	assert.Equal(t, evolution.SeedRandom, cfg.Evolution.InitialPopulationMethod)
	assert.InDelta(t, 1.0, cfg.Fitness.ScoreWeight+cfg.Fitness.TimeWeight+cfg.Fitness.CostWeight, 1e-9)
	assert.Equal(t, "exact", cfg.Fitness.Scorer)
	assert.Equal(t, 4, cfg.Concurrency.MaxConcurrentWorkflows)
	assert.Equal(t, 8, cfg.Concurrency.MaxConcurrentAIRequests)
	assert.Zero(t, cfg.Budget.MaxCostUSDPerRun)

	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 1000, cfg.Observer.Capacity)
	assert.Equal(t, 5*time.Minute, cfg.Observer.DisposeAfter)

	require.NoError(t, cfg.Validate())
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, DefaultConfig().Evolution, cfg.Evolution)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "evoflow.yaml")

	yamlContent := `
evolution:
  mode: cultural
  goal: "answer arithmetic questions"
  generation_amount: 7
  population_size: 12
  min_population_size: 3
  initial_population_method: base
  base_workflow_path: base.yaml
  stall_threshold: 10m
  features:
    add_tools: false
    remove_nodes: true

fitness:
  score_weight: 0.6
  time_weight: 0.2
  cost_weight: 0.2
  time_baseline: 2s
  scorer: contains

concurrency:
  max_concurrent_workflows: 3
  max_concurrent_ai_requests: 5

budget:
  max_cost_usd_per_run: 2.5

tools:
  mcp_servers:
    - name: browser
      command: npx
      args: ["@playwright/mcp"]
      env:
        HEADLESS: "1"

database:
  enabled: true
  driver: postgres
  dsn: "host=db user=evo dbname=evo"
  pool:
    max_open_conns: 7

redis:
  enabled: true
  addr: "redis.example.com:6379"
  result_ttl: 1h

log:
  level: "debug"
  format: "json"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, tracker.ModeCultural, cfg.Evolution.Mode)
	assert.Equal(t, "answer arithmetic questions", cfg.Evolution.Goal)
	assert.Equal(t, 7, cfg.Evolution.GenerationAmount)
	assert.Equal(t, 12, cfg.Evolution.PopulationSize)
	assert.Equal(t, evolution.SeedBase, cfg.Evolution.InitialPopulationMethod)
	assert.Equal(t, 10*time.Minute, cfg.Evolution.StallThreshold)
	assert.False(t, cfg.Evolution.Features.AddTools)
	assert.True(t, cfg.Evolution.Features.RemoveNodes)

	assert.Equal(t, 0.6, cfg.Fitness.ScoreWeight)
	assert.Equal(t, 2*time.Second, cfg.Fitness.TimeBaseline)
	assert.Equal(t, "contains", cfg.Fitness.Scorer)
	// 未出现在 YAML 中的字段保留默认值
	assert.Equal(t, DefaultFitnessConfig().CostThreshold, cfg.Fitness.CostThreshold)

	require.Len(t, cfg.Tools.MCPServers, 1)
	assert.Equal(t, tools.MCPServerConfig{
		Name:    "browser",
		Command: "npx",
		Args:    []string{"@playwright/mcp"},
		Env:     map[string]string{"HEADLESS": "1"},
	}, cfg.Tools.MCPServers[0])

	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 7, cfg.Database.Pool.MaxOpenConns)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Hour, cfg.Redis.ResultTTL)
	assert.Equal(t, "debug", cfg.Log.Level)

	ec := cfg.EngineConfig()
	assert.Equal(t, 3, ec.MaxConcurrentWorkflows)
	assert.Equal(t, 2.5, ec.MaxCostUSDPerRun)
	require.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("EVOFLOW_EVOLUTION_POPULATION_SIZE", "16")
	t.Setenv("EVOFLOW_EVOLUTION_CROSSOVER_RATE", "0.75")
	t.Setenv("EVOFLOW_EVOLUTION_FEATURES_EDIT_NODES", "false")
	t.Setenv("EVOFLOW_EVOLUTION_STALL_THRESHOLD", "90s")
	t.Setenv("EVOFLOW_FITNESS_SCORE_WEIGHT", "0.9")
	t.Setenv("EVOFLOW_FITNESS_SCORER", "similarity")
	t.Setenv("EVOFLOW_CONCURRENCY_MAX_CONCURRENT_WORKFLOWS", "6")
	t.Setenv("EVOFLOW_BUDGET_MAX_COST_USD_PER_RUN", "1.25")
	t.Setenv("EVOFLOW_DATABASE_DSN", "file::memory:")
	t.Setenv("EVOFLOW_DATABASE_POOL_MAX_IDLE_CONNS", "3")
	t.Setenv("EVOFLOW_REDIS_ADDR", "env-redis:6379")
	t.Setenv("EVOFLOW_LOG_OUTPUT_PATHS", "stdout, /tmp/evoflow.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Evolution.PopulationSize)
	assert.Equal(t, 0.75, cfg.Evolution.CrossoverRate)
	assert.False(t, cfg.Evolution.Features.EditNodes)
	assert.Equal(t, 90*time.Second, cfg.Evolution.StallThreshold)
	assert.Equal(t, 0.9, cfg.Fitness.ScoreWeight)
	assert.Equal(t, "similarity", cfg.Fitness.Scorer)
	assert.Equal(t, 6, cfg.Concurrency.MaxConcurrentWorkflows)
	assert.Equal(t, 1.25, cfg.Budget.MaxCostUSDPerRun)
	assert.Equal(t, "file::memory:", cfg.Database.DSN)
	assert.Equal(t, 3, cfg.Database.Pool.MaxIdleConns)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"stdout", "/tmp/evoflow.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "evoflow.yaml")
	yamlContent := `
evolution:
  population_size: 10
  goal: "yaml goal"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))
	t.Setenv("EVOFLOW_EVOLUTION_POPULATION_SIZE", "20")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Evolution.PopulationSize)
	assert.Equal(t, "yaml goal", cfg.Evolution.Goal)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_EVOLUTION_GOAL", "custom prefix")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, "custom prefix", cfg.Evolution.Goal)
}

func TestLoader_ConcurrencyNotReadFromEvolutionSection(t *testing.T) {
	t.Setenv("EVOFLOW_EVOLUTION_MAX_CONCURRENT_WORKFLOWS", "99")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConcurrencyConfig().MaxConcurrentWorkflows, cfg.EngineConfig().MaxConcurrentWorkflows)
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("EVOFLOW_FITNESS_COST_WEIGHT", "-1")

	_, err := NewLoader().
		WithValidator(func(c *Config) error { return c.Validate() }).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fitness weights must not be negative")
}

func TestLoader_BadEnvValue(t *testing.T) {
	t.Setenv("EVOFLOW_EVOLUTION_POPULATION_SIZE", "many")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EVOFLOW_EVOLUTION_POPULATION_SIZE")
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/evoflow.yaml").
		Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Pipeline, cfg.Pipeline)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	invalidYAML := `
evolution:
  population_size: [invalid
  this is not valid yaml
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{
			name:   "weights need not sum to one",
			modify: func(c *Config) { c.Fitness.ScoreWeight, c.Fitness.TimeWeight, c.Fitness.CostWeight = 3, 0, 0 },
		},
		{
			name:    "negative weight",
			modify:  func(c *Config) { c.Fitness.TimeWeight = -0.1 },
			wantErr: "fitness weights must not be negative",
		},
		{
			name:    "unknown scorer",
			modify:  func(c *Config) { c.Fitness.Scorer = "bleu" },
			wantErr: "unknown scorer",
		},
		{
			name:    "tls cert without key",
			modify:  func(c *Config) { c.Server.TLSCertFile = "server.crt" },
			wantErr: "must be set together",
		},
		{
			name: "tls cert and key",
			modify: func(c *Config) {
				c.Server.TLSCertFile, c.Server.TLSKeyFile = "server.crt", "server.key"
			},
		},
		{
			name:    "zero concurrent workflows",
			modify:  func(c *Config) { c.Concurrency.MaxConcurrentWorkflows = 0 },
			wantErr: "max_concurrent_workflows",
		},
		{
			name:    "zero concurrent ai requests",
			modify:  func(c *Config) { c.Concurrency.MaxConcurrentAIRequests = 0 },
			wantErr: "max_concurrent_ai_requests",
		},
		{
			name:    "negative budget",
			modify:  func(c *Config) { c.Budget.MaxCostUSDPerRun = -1 },
			wantErr: "max_cost_usd_per_run",
		},
		{
			name:    "pipeline limits",
			modify:  func(c *Config) { c.Pipeline.MaxHops = 0 },
			wantErr: "pipeline limits must be positive",
		},
		{
			name: "duplicate mcp server",
			modify: func(c *Config) {
				c.Tools.MCPServers = []tools.MCPServerConfig{
					{Name: "fs", Command: "mcp-fs"},
					{Name: "fs", Command: "mcp-fs"},
				}
			},
			wantErr: "duplicate name",
		},
		{
			name:    "mcp server without command",
			modify:  func(c *Config) { c.Tools.MCPServers = []tools.MCPServerConfig{{Name: "fs"}} },
			wantErr: "command is required",
		},
		{
			name: "unsupported database driver",
			modify: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Driver = "oracle"
			},
			wantErr: "unsupported database driver",
		},
		{
			name:   "disabled database is not checked",
			modify: func(c *Config) { c.Database.Driver = "oracle" },
		},
		{
			name: "cache without address",
			modify: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Addr = ""
			},
			wantErr: "redis.addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_EvaluatorConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Concurrency.MaxConcurrentCases = 2
	cfg.Pipeline.NodeTimeout = 45 * time.Second

	ec := cfg.EvaluatorConfig()
	assert.Equal(t, cfg.Fitness.FitnessConfig, ec.Fitness)
	assert.Equal(t, 2, ec.MaxConcurrentCases)
	assert.Equal(t, 45*time.Second, ec.DefaultTimeout)
}

// --- MustLoad 测试 ---

func TestMustLoad_Success(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "evoflow.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("evolution:\n  population_size: 9\n"), 0644))

	var cfg *Config
	assert.NotPanics(t, func() { cfg = MustLoad(configPath) })
	assert.Equal(t, 9, cfg.Evolution.PopulationSize)
}

func TestMustLoad_Panics(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("evolution: [\n"), 0644))

	assert.Panics(t, func() { MustLoad(configPath) })
}
