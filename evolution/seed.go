package evolution

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/BaSui01/evoflow/types"
	"github.com/BaSui01/evoflow/workflow"
)

// Seeder 生成第 0 代的工作流
type Seeder interface {
	Seed(ctx context.Context, rng *rand.Rand, n int) ([]*workflow.Config, error)
}

// RandomSeeder 从基因池随机生成工作流
type RandomSeeder struct {
	Pool GenePool
}

func (s RandomSeeder) Seed(ctx context.Context, rng *rand.Rand, n int) ([]*workflow.Config, error) {
	out := make([]*workflow.Config, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s.Pool.RandomWorkflow(rng))
	}
	return out, nil
}

// BaseWorkflowSeeder 以同一个基础工作流的副本填满初始种群
type BaseWorkflowSeeder struct {
	Base *workflow.Config
}

func (s BaseWorkflowSeeder) Seed(ctx context.Context, rng *rand.Rand, n int) ([]*workflow.Config, error) {
	if s.Base == nil {
		return nil, types.NewWorkflowConfigurationError("base workflow is not set", nil)
	}
	out := make([]*workflow.Config, 0, n)
	for i := 0; i < n; i++ {
		c := s.Base.Clone()
		c.ID = ""
		out = append(out, c)
	}
	return out, nil
}

// FileSeeder 从预先准备的文件读取工作流，数量不足时循环使用
type FileSeeder struct {
	Path string
}

func (s FileSeeder) Seed(ctx context.Context, rng *rand.Rand, n int) ([]*workflow.Config, error) {
	prepared, err := workflow.LoadAll(s.Path)
	if err != nil {
		return nil, err
	}
	if len(prepared) == 0 {
		return nil, types.NewWorkflowConfigurationError(fmt.Sprintf("%s contains no workflows", s.Path), nil)
	}
	out := make([]*workflow.Config, 0, n)
	for i := 0; i < n; i++ {
		c := prepared[i%len(prepared)].Clone()
		c.ID = ""
		out = append(out, c)
	}
	return out, nil
}

// NewSeeder 按 initial_population_method 选择 Seeder
func NewSeeder(cfg Config, pool GenePool) (Seeder, error) {
	switch cfg.InitialPopulationMethod {
	case SeedRandom, "":
		return RandomSeeder{Pool: pool}, nil
	case SeedBase:
		base, err := workflow.LoadFile(cfg.BaseWorkflowPath)
		if err != nil {
			return nil, err
		}
		return BaseWorkflowSeeder{Base: base}, nil
	case SeedFile:
		return FileSeeder{Path: cfg.PreparedWorkflowsPath}, nil
	default:
		return nil, types.NewError(types.KindWorkflowConfiguration, types.ErrUnsupportedSeeding,
			fmt.Sprintf("initial population method %q is not supported", cfg.InitialPopulationMethod)).
			WithDebug("method", cfg.InitialPopulationMethod)
	}
}
