package evolution

import (
	"fmt"
	"time"

	"github.com/BaSui01/evoflow/tracker"
)

// 初始种群生成方式
const (
	SeedRandom = "random"
	SeedBase   = "base"
	SeedFile   = "file"
)

// Features 由反馈驱动的结构编辑开关，各自独立
type Features struct {
	AddTools         bool `yaml:"add_tools" json:"add_tools" env:"ADD_TOOLS"`
	RemoveNodes      bool `yaml:"remove_nodes" json:"remove_nodes" env:"REMOVE_NODES"`
	EditNodes        bool `yaml:"edit_nodes" json:"edit_nodes" env:"EDIT_NODES"`
	SelfImproveNodes bool `yaml:"self_improve_nodes" json:"self_improve_nodes" env:"SELF_IMPROVE_NODES"`
}

// Config 演化引擎配置
type Config struct {
	// RunID 预先指定的运行 ID，空时每次 Run 自动生成；重复使用同一 ID 会被追踪存储拒绝
	RunID string       `yaml:"run_id" json:"run_id,omitempty" env:"RUN_ID"`
	Mode  tracker.Mode `yaml:"mode" json:"mode" env:"MODE"`
	Goal  string       `yaml:"goal" json:"goal" env:"GOAL"`

	GenerationAmount  int `yaml:"generation_amount" json:"generation_amount" env:"GENERATION_AMOUNT"`
	PopulationSize    int `yaml:"population_size" json:"population_size" env:"POPULATION_SIZE"`
	MinPopulationSize int `yaml:"min_population_size" json:"min_population_size" env:"MIN_POPULATION_SIZE"`
	// SurvivorCount 每代进入父代池的基因组数，0 表示种群规模的一半
	SurvivorCount int `yaml:"survivor_count" json:"survivor_count" env:"SURVIVOR_COUNT"`
	EliteCount    int `yaml:"elite_count" json:"elite_count" env:"ELITE_COUNT"`

	InitialPopulationMethod string `yaml:"initial_population_method" json:"initial_population_method" env:"INITIAL_POPULATION_METHOD"`
	BaseWorkflowPath        string `yaml:"base_workflow_path" json:"base_workflow_path" env:"BASE_WORKFLOW_PATH"`
	PreparedWorkflowsPath   string `yaml:"prepared_workflows_path" json:"prepared_workflows_path" env:"PREPARED_WORKFLOWS_PATH"`

	NewNodeProbability float64  `yaml:"new_node_probability" json:"new_node_probability" env:"NEW_NODE_PROBABILITY"`
	CrossoverRate      float64  `yaml:"crossover_rate" json:"crossover_rate" env:"CROSSOVER_RATE"`
	Features           Features `yaml:"features" json:"features" env:"FEATURES"`

	MaxRetriesForWorkflowRepair int     `yaml:"max_retries_for_workflow_repair" json:"max_retries_for_workflow_repair" env:"MAX_RETRIES_FOR_WORKFLOW_REPAIR"`
	MaxDiscardRatio             float64 `yaml:"max_discard_ratio" json:"max_discard_ratio" env:"MAX_DISCARD_RATIO"`
	AllowCycles                 bool    `yaml:"allow_cycles" json:"allow_cycles" env:"ALLOW_CYCLES"`

	Selection      string `yaml:"selection" json:"selection" env:"SELECTION"`
	TournamentSize int    `yaml:"tournament_size" json:"tournament_size" env:"TOURNAMENT_SIZE"`

	// 以下两项由 config 的 concurrency / budget 段填入
	MaxConcurrentWorkflows int     `yaml:"-" json:"max_concurrent_workflows" env:"-"`
	MaxCostUSDPerRun       float64 `yaml:"-" json:"max_cost_usd_per_run" env:"-"`
	// StallThreshold 无新完成代的最长时间，0 表示关闭
	StallThreshold time.Duration `yaml:"stall_threshold" json:"stall_threshold" env:"STALL_THRESHOLD"`

	// Seed 随机种子，0 表示按时间
	Seed int64 `yaml:"seed" json:"seed" env:"SEED"`
}

// DefaultConfig 返回默认演化配置
func DefaultConfig() Config {
	return Config{
		Mode:                        tracker.ModeGP,
		GenerationAmount:            5,
		PopulationSize:              8,
		MinPopulationSize:           2,
		EliteCount:                  1,
		InitialPopulationMethod:     SeedRandom,
		NewNodeProbability:          0.2,
		CrossoverRate:               0.3,
		Features:                    Features{AddTools: true, RemoveNodes: true, EditNodes: true, SelfImproveNodes: true},
		MaxRetriesForWorkflowRepair: 3,
		MaxDiscardRatio:             0.5,
		Selection:                   "tournament",
		TournamentSize:              3,
		MaxConcurrentWorkflows:      4,
		StallThreshold:              30 * time.Minute,
	}
}

// survivors returns the parent pool size for the next generation.
func (c Config) survivors() int {
	n := c.SurvivorCount
	if n <= 0 {
		n = c.PopulationSize / 2
	}
	if n < c.MinPopulationSize {
		n = c.MinPopulationSize
	}
	if n > c.PopulationSize {
		n = c.PopulationSize
	}
	return n
}

// Validate 检查配置；适应度权重等由评估器负责
func (c Config) Validate() error {
	switch {
	case c.Mode != tracker.ModeGP && c.Mode != tracker.ModeCultural:
		return fmt.Errorf("evolution.mode must be %q or %q, got %q", tracker.ModeGP, tracker.ModeCultural, c.Mode)
	case c.GenerationAmount <= 0:
		return fmt.Errorf("evolution.generation_amount must be positive")
	case c.PopulationSize <= 0:
		return fmt.Errorf("evolution.population_size must be positive")
	case c.MinPopulationSize < 1 || c.MinPopulationSize > c.PopulationSize:
		return fmt.Errorf("evolution.min_population_size must be in [1, population_size]")
	case c.EliteCount < 0 || c.EliteCount > c.PopulationSize:
		return fmt.Errorf("evolution.elite_count must be in [0, population_size]")
	case c.NewNodeProbability < 0 || c.NewNodeProbability > 1:
		return fmt.Errorf("evolution.new_node_probability must be in [0, 1]")
	case c.CrossoverRate < 0 || c.CrossoverRate > 1:
		return fmt.Errorf("evolution.crossover_rate must be in [0, 1]")
	case c.MaxRetriesForWorkflowRepair < 0:
		return fmt.Errorf("evolution.max_retries_for_workflow_repair must not be negative")
	case c.MaxDiscardRatio < 0 || c.MaxDiscardRatio > 1:
		return fmt.Errorf("evolution.max_discard_ratio must be in [0, 1]")
	case c.MaxConcurrentWorkflows <= 0:
		return fmt.Errorf("evolution.max_concurrent_workflows must be positive")
	case c.MaxCostUSDPerRun < 0:
		return fmt.Errorf("evolution.max_cost_usd_per_run must not be negative")
	case c.StallThreshold < 0:
		return fmt.Errorf("evolution.stall_threshold must not be negative")
	}
	switch c.InitialPopulationMethod {
	case SeedRandom:
	case SeedBase:
		if c.BaseWorkflowPath == "" {
			return fmt.Errorf("evolution.base_workflow_path is required for seeding method %q", SeedBase)
		}
	case SeedFile:
		if c.PreparedWorkflowsPath == "" {
			return fmt.Errorf("evolution.prepared_workflows_path is required for seeding method %q", SeedFile)
		}
	default:
		return fmt.Errorf("evolution.initial_population_method %q is not supported", c.InitialPopulationMethod)
	}
	return nil
}
