package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/evoflow/api/handlers"
	"github.com/BaSui01/evoflow/config"
	"github.com/BaSui01/evoflow/evaluation"
	"github.com/BaSui01/evoflow/evolution"
	"github.com/BaSui01/evoflow/internal/cache"
	"github.com/BaSui01/evoflow/internal/database"
	"github.com/BaSui01/evoflow/internal/metrics"
	"github.com/BaSui01/evoflow/internal/server"
	"github.com/BaSui01/evoflow/internal/telemetry"
	"github.com/BaSui01/evoflow/observer"
	"github.com/BaSui01/evoflow/pipeline"
	"github.com/BaSui01/evoflow/tools"
	"github.com/BaSui01/evoflow/tracker"
)

// dbStatsInterval 连接池指标的采样间隔
const dbStatsInterval = 15 * time.Second

// =============================================================================
// 🧩 组件装配
// =============================================================================

// app 一次 evoflow run 所需的全部协作方
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	registry  *prometheus.Registry
	collector *metrics.Collector
	otel      *telemetry.Providers

	pool    *database.PoolManager
	cache   *cache.Manager
	tracker tracker.Tracker

	resolver  *tools.Resolver
	provider  *pipeline.LimitedProvider
	evaluator *evaluation.Evaluator
	hub       *observer.Hub
	health    *handlers.HealthHandler

	servers []*server.Manager
	stop    chan struct{}
}

// newApp 按配置装配各组件。provider 为 nil 时使用 EchoProvider 演练。
func newApp(ctx context.Context, cfg *config.Config, provider pipeline.ModelProvider, logger *zap.Logger) (_ *app, err error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		health:   handlers.NewHealthHandler(logger),
		stop:     make(chan struct{}),
	}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.collector = metrics.NewCollector("evoflow", a.registry, logger)

	a.otel, err = telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		a.otel = nil
		err = nil
	}

	if err = a.initTracker(ctx); err != nil {
		return nil, err
	}
	if err = a.initCache(); err != nil {
		return nil, err
	}

	clients := tools.NewClientRegistry(logger)
	clients.SetRecorder(a.collector)
	a.resolver = tools.NewResolver(tools.ResolverConfig{
		Servers:       cfg.Tools.MCPServers,
		Clients:       clients,
		Factory:       tools.NewStdioClientFactory("evoflow", Version),
		CreateTimeout: cfg.Tools.CreateTimeout,
	}, logger)

	if provider == nil {
		provider = pipeline.EchoProvider{}
	}
	a.provider = pipeline.NewLimitedProvider(provider,
		cfg.Concurrency.MaxConcurrentAIRequests,
		cfg.Concurrency.ModelRequestsPerSecond,
		cfg.Concurrency.ModelBurst).
		WithCostReporter(a.collector.RecordProviderCost)

	runner := evaluation.NewRunner(evaluation.RunnerConfig{
		Provider: a.provider,
		Tools:    a.resolver,
		MaxHops:  cfg.Pipeline.MaxHops,
		Pipeline: pipeline.Options{MaxSteps: cfg.Pipeline.MaxSteps, MaxRounds: cfg.Pipeline.MaxRounds},
		Recorder: a.collector,
	}, logger)

	scorer, err := evaluation.NewScorer(cfg.Fitness.Scorer)
	if err != nil {
		return nil, err
	}
	a.evaluator = evaluation.NewEvaluator(runner, scorer, cfg.EvaluatorConfig(), logger)
	a.evaluator.SetRecorder(a.collector)
	if a.cache != nil {
		a.evaluator.SetCache(evaluation.NewRedisResultCache(a.cache, cfg.Redis.ResultTTL, logger))
	}

	a.hub = observer.NewHub(cfg.Observer.Capacity, cfg.Observer.DisposeAfter, logger)
	a.health.SetRunCounter(a.hub.Len)
	return a, nil
}

func (a *app) initTracker(ctx context.Context) error {
	if !a.cfg.Database.Enabled {
		a.tracker = tracker.NewMemoryTracker()
		a.logger.Info("database disabled, run records are kept in memory")
		return nil
	}

	pool, err := database.Open(a.cfg.Database.Config, a.logger)
	if err != nil {
		return err
	}
	a.pool = pool

	gt := tracker.NewGormTracker(pool, a.logger)
	if a.cfg.Database.AutoMigrate {
		if err := gt.AutoMigrate(ctx); err != nil {
			return fmt.Errorf("auto-migrate tracker tables: %w", err)
		}
	}
	a.tracker = gt
	a.health.RegisterCheck(handlers.NewCheck("tracker_db", pool.Ping))

	go a.sampleDBStats()
	return nil
}

func (a *app) initCache() error {
	if !a.cfg.Redis.Enabled {
		return nil
	}
	m, err := cache.NewManager(a.cfg.Redis.Config, a.logger)
	if err != nil {
		return err
	}
	a.cache = m
	a.health.RegisterCheck(handlers.NewCheck("result_cache", m.Ping))
	return nil
}

func (a *app) sampleDBStats() {
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()

	a.collector.RecordDBStats(a.pool.Stats())
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			a.collector.RecordDBStats(a.pool.Stats())
		}
	}
}

// engine 构造演化引擎；基因池的工具来自配置的 MCP 服务器
func (a *app) engine(cases []evaluation.Case) (*evolution.Engine, error) {
	names := make([]string, 0, len(a.cfg.Tools.MCPServers))
	for _, s := range a.cfg.Tools.MCPServers {
		names = append(names, s.Name)
	}
	pool := evolution.DefaultGenePool(names)

	// 淘汰的工作流立即关闭其工具客户端子进程
	release := func(id string) {
		if n := a.resolver.Clients().ClearFor(id); n > 0 {
			a.logger.Debug("released tool clients", zap.String("workflow_id", id), zap.Int("count", n))
		}
	}

	return evolution.NewEngine(a.cfg.EngineConfig(), cases, evolution.Deps{
		Evaluator:       a.evaluator,
		Tracker:         a.tracker,
		Pool:            &pool,
		KnownTool:       a.resolver.Known,
		Hub:             a.hub,
		Recorder:        a.collector,
		ReleaseWorkflow: release,
	}, a.logger)
}

// =============================================================================
// 🌐 HTTP 端点
// =============================================================================

// streamHandler 事件流、运行查询与健康检查路由
func (a *app) streamHandler() http.Handler {
	mux := handlers.NewRouter(handlers.RouterConfig{
		Runs:      handlers.NewRunHandler(a.tracker, a.logger),
		Stream:    handlers.NewStreamHandler(a.hub, handlers.DefaultStreamConfig(), a.logger),
		Health:    a.health,
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	})
	return Chain(mux,
		Recovery(a.logger),
		RequestID(),
		OTelTracing(),
		RequestLogger(a.logger),
		NoStore(),
	)
}

// metricsHandler Prometheus 抓取端点
func (a *app) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	return mux
}

// startServers 启动地址非空的端点
func (a *app) startServers(streamAddr, metricsAddr string) error {
	start := func(addr string, h http.Handler, name string) error {
		if addr == "" {
			return nil
		}
		cfg := server.DefaultConfig()
		cfg.Addr = addr
		if a.cfg.Server.ShutdownTimeout > 0 {
			cfg.ShutdownTimeout = a.cfg.Server.ShutdownTimeout
		}
		cfg.TLSCertFile = a.cfg.Server.TLSCertFile
		cfg.TLSKeyFile = a.cfg.Server.TLSKeyFile
		m := server.NewManager(h, cfg, a.logger.With(zap.String("endpoint", name)))
		if err := m.Start(); err != nil {
			return err
		}
		a.servers = append(a.servers, m)
		go func() {
			for err := range m.Errors() {
				a.logger.Error("endpoint failed", zap.String("endpoint", name), zap.Error(err))
			}
		}()
		return nil
	}

	if err := start(streamAddr, a.streamHandler(), "stream"); err != nil {
		return err
	}
	return start(metricsAddr, a.metricsHandler(), "metrics")
}

// close 逆序释放资源，汇总错误
func (a *app) close(ctx context.Context) error {
	var errs []error
	for _, s := range a.servers {
		if err := s.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	select {
	case <-a.stop:
	default:
		close(a.stop)
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.resolver != nil {
		if n := a.resolver.Clients().Clear(); n > 0 {
			a.logger.Debug("closed tool clients", zap.Int("count", n))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
