package evaluation

import (
	"time"

	"github.com/BaSui01/evoflow/genome"
)

// FitnessConfig 适应度权重与基线/阈值。权重不做归一化。
type FitnessConfig struct {
	ScoreWeight float64 `yaml:"score_weight" json:"score_weight" env:"SCORE_WEIGHT"`
	TimeWeight  float64 `yaml:"time_weight" json:"time_weight" env:"TIME_WEIGHT"`
	CostWeight  float64 `yaml:"cost_weight" json:"cost_weight" env:"COST_WEIGHT"`

	TimeBaseline  time.Duration `yaml:"time_baseline" json:"time_baseline" env:"TIME_BASELINE"`
	TimeThreshold time.Duration `yaml:"time_threshold" json:"time_threshold" env:"TIME_THRESHOLD"`
	CostBaseline  float64       `yaml:"cost_baseline" json:"cost_baseline" env:"COST_BASELINE"`
	CostThreshold float64       `yaml:"cost_threshold" json:"cost_threshold" env:"COST_THRESHOLD"`

	// PassThreshold 判定用例通过的最低分数
	PassThreshold float64 `yaml:"pass_threshold" json:"pass_threshold" env:"PASS_THRESHOLD"`
}

// DefaultFitnessConfig 默认权重之和为 1.0
func DefaultFitnessConfig() FitnessConfig {
	return FitnessConfig{
		ScoreWeight:   0.8,
		TimeWeight:    0.1,
		CostWeight:    0.1,
		TimeBaseline:  5 * time.Second,
		TimeThreshold: 60 * time.Second,
		CostBaseline:  0.001,
		CostThreshold: 0.05,
		PassThreshold: 0.5,
	}
}

// linearFactor 不超过 baseline 为 1，不低于 threshold 为 0，中间线性插值
func linearFactor(v, baseline, threshold float64) float64 {
	if v <= baseline {
		return 1
	}
	if threshold <= baseline || v >= threshold {
		return 0
	}
	return (threshold - v) / (threshold - baseline)
}

// TimeFactor maps a duration to [0,1] relative to baseline and threshold.
func TimeFactor(d time.Duration, cfg FitnessConfig) float64 {
	return linearFactor(d.Seconds(), cfg.TimeBaseline.Seconds(), cfg.TimeThreshold.Seconds())
}

// CostFactor maps a USD cost to [0,1] relative to baseline and threshold.
func CostFactor(usd float64, cfg FitnessConfig) float64 {
	return linearFactor(usd, cfg.CostBaseline, cfg.CostThreshold)
}

// Aggregate 计算 score = wScore·correctness + wTime·timeFactor + wCost·costFactor，
// 三项均为各用例的平均值；失败用例按哨兵值 0 计入。
func Aggregate(results []CaseResult, cfg FitnessConfig) genome.Fitness {
	if len(results) == 0 {
		return genome.Fitness{}
	}
	var correctness, timeFactor, costFactor float64
	for _, r := range results {
		if r.Failed {
			continue
		}
		correctness += r.Score
		timeFactor += r.TimeFactor
		costFactor += r.CostFactor
	}
	n := float64(len(results))
	correctness /= n
	timeFactor /= n
	costFactor /= n

	return genome.Fitness{
		Score:    cfg.ScoreWeight*correctness + cfg.TimeWeight*timeFactor + cfg.CostWeight*costFactor,
		Accuracy: correctness,
	}
}
