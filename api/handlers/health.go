package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthCheck 就绪依赖检查（追踪数据库、结果缓存等）
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc 把一个 ping 函数适配为 HealthCheck
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewCheck 创建命名检查
func NewCheck(name string, fn func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

func (c *CheckFunc) Name() string { return c.name }

func (c *CheckFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status     string                 `json:"status"` // healthy, unhealthy
	Timestamp  time.Time              `json:"timestamp"`
	Uptime     string                 `json:"uptime,omitempty"`
	ActiveRuns *int                   `json:"active_runs,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // pass, fail
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HealthHandler 存活与就绪探针
type HealthHandler struct {
	logger       *zap.Logger
	started      time.Time
	checkTimeout time.Duration

	mu       sync.RWMutex
	checks   []HealthCheck
	runCount func() int
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:       logger.With(zap.String("component", "health_handler")),
		started:      time.Now(),
		checkTimeout: 5 * time.Second,
	}
}

// RegisterCheck 注册就绪检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// SetRunCounter 设置活跃运行数来源（通常是 observer.Hub.Len）
func (h *HealthHandler) SetRunCounter(fn func() int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runCount = fn
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 存活探针，只说明进程在运行
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.liveness())
}

// HandleHealthz Kubernetes 风格的存活探针
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.liveness())
}

func (h *HealthHandler) liveness() HealthStatus {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	}
	h.mu.RLock()
	if h.runCount != nil {
		n := h.runCount()
		status.ActiveRuns = &n
	}
	h.mu.RUnlock()
	return status
}

// HandleReady 就绪探针。所有检查并发执行，任一失败返回 503。
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	g, ctx := errgroup.WithContext(r.Context())
	for i, check := range checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, h.checkTimeout)
			defer cancel()

			start := time.Now()
			err := check.Check(cctx)
			latency := time.Since(start)

			results[i] = CheckResult{Status: "pass", Latency: latency.String()}
			if err != nil {
				results[i].Status = "fail"
				results[i].Message = err.Error()
				h.logger.Warn("readiness check failed",
					zap.String("check", check.Name()),
					zap.Duration("latency", latency),
					zap.Error(err))
			}
			// 不返回错误，避免取消其余检查
			return nil
		})
	}
	_ = g.Wait()

	status := h.liveness()
	status.Checks = make(map[string]CheckResult, len(checks))
	healthy := true
	for i, check := range checks {
		status.Checks[check.Name()] = results[i]
		if results[i].Status != "pass" {
			healthy = false
		}
	}

	if !healthy {
		status.Status = "unhealthy"
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// HandleVersion 返回构建信息
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}
