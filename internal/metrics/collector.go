// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，同时实现演化、评估与工具缓存的记录接口
type Collector struct {
	// 演化指标
	generationsTotal   prometheus.Counter
	generationDuration prometheus.Histogram
	bestFitness        prometheus.Gauge
	meanFitness        prometheus.Gauge
	genomesTotal       *prometheus.CounterVec
	modelCost          prometheus.Counter
	providerCost       prometheus.Counter

	// 评估指标
	casesTotal       *prometheus.CounterVec
	caseDuration     prometheus.Histogram
	pipelineDuration *prometheus.HistogramVec

	// 工具客户端缓存指标
	toolClientLookups *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen prometheus.Gauge
	dbConnectionsIdle prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到 reg；reg 为 nil 时使用默认注册表
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 演化指标
	c.generationsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Total number of completed generations",
		},
	)

	c.generationDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall-clock duration of one generation",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	c.bestFitness = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_fitness",
			Help:      "Best fitness score of the latest generation",
		},
	)

	c.meanFitness = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mean_fitness",
			Help:      "Mean fitness score of the latest generation",
		},
	)

	c.genomesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "genomes_total",
			Help:      "Genomes handled by the engine, by outcome",
		},
		[]string{"outcome"},
	)

	c.modelCost = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_cost_usd_total",
			Help:      "Total model spend in USD",
		},
	)

	c.providerCost = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_cost_usd_total",
			Help:      "Model spend reported per provider call, including failed and interrupted genomes",
		},
	)

	// 评估指标
	c.casesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "case_results_total",
			Help:      "Evaluation case results, by status",
		},
		[]string{"status"},
	)

	c.caseDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "case_duration_seconds",
			Help:      "Evaluation case duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	c.pipelineDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Node pipeline duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"status"},
	)

	// 工具客户端缓存指标
	c.toolClientLookups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_client_lookups_total",
			Help:      "Tool client cache lookups, by result",
		},
		[]string{"result"},
	)

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open tracker database connections",
		},
	)

	c.dbConnectionsIdle = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle tracker database connections",
		},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordGeneration 记录一代完成
func (c *Collector) RecordGeneration(generation int, best, mean float64, d time.Duration) {
	c.generationsTotal.Inc()
	c.generationDuration.Observe(d.Seconds())
	c.bestFitness.Set(best)
	c.meanFitness.Set(mean)
	c.logger.Debug("generation recorded",
		zap.Int("generation", generation),
		zap.Float64("best", best),
		zap.Float64("mean", mean))
}

// RecordGenome 按结果记录一个基因组
func (c *Collector) RecordGenome(outcome string) {
	c.genomesTotal.WithLabelValues(outcome).Inc()
}

// RecordCost 累计模型花费
func (c *Collector) RecordCost(usd float64) {
	if usd > 0 {
		c.modelCost.Add(usd)
	}
}

// RecordProviderCost 累计单次模型调用的花费，挂在 LimitedProvider 上
func (c *Collector) RecordProviderCost(usd float64) {
	if usd > 0 {
		c.providerCost.Add(usd)
	}
}

// RecordCase 记录一个评估用例
func (c *Collector) RecordCase(failed bool, d time.Duration) {
	c.casesTotal.WithLabelValues(status(failed)).Inc()
	c.caseDuration.Observe(d.Seconds())
}

// RecordPipeline 记录一次节点管道执行
func (c *Collector) RecordPipeline(nodeID string, d time.Duration, failed bool) {
	c.pipelineDuration.WithLabelValues(status(failed)).Observe(d.Seconds())
}

// RecordToolClientLookup 记录工具客户端缓存查找
func (c *Collector) RecordToolClientLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.toolClientLookups.WithLabelValues(result).Inc()
}

// RecordDBStats 记录追踪数据库连接池状态
func (c *Collector) RecordDBStats(stats sql.DBStats) {
	c.dbConnectionsOpen.Set(float64(stats.OpenConnections))
	c.dbConnectionsIdle.Set(float64(stats.Idle))
}

func status(failed bool) string {
	if failed {
		return "failed"
	}
	return "ok"
}
