package handlers

import (
	"net/http"
)

// RouterConfig 路由依赖；为 nil 的 Handler 不注册对应路由
type RouterConfig struct {
	Runs      *RunHandler
	Stream    *StreamHandler
	Health    *HealthHandler
	Version   string
	BuildTime string
	GitCommit string
}

// NewRouter 使用 Go 1.22 的方法与路径模式注册所有接口
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()
	if cfg.Runs != nil {
		mux.HandleFunc("GET /runs/{runID}", cfg.Runs.HandleGetRun)
		mux.HandleFunc("GET /runs/{runID}/invocations", cfg.Runs.HandleListInvocations)
	}
	if cfg.Stream != nil {
		mux.HandleFunc("GET /runs/{runID}/events", cfg.Stream.HandleSnapshot)
		mux.HandleFunc("GET /runs/{runID}/stream", cfg.Stream.HandleStream)
	}
	if cfg.Health != nil {
		mux.HandleFunc("GET /health", cfg.Health.HandleHealth)
		mux.HandleFunc("GET /healthz", cfg.Health.HandleHealthz)
		mux.HandleFunc("GET /ready", cfg.Health.HandleReady)
		mux.HandleFunc("GET /version", cfg.Health.HandleVersion(cfg.Version, cfg.BuildTime, cfg.GitCommit))
	}
	return mux
}
