package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/evoflow/config"
	"github.com/BaSui01/evoflow/evaluation"
	"github.com/BaSui01/evoflow/evolution"
	"github.com/BaSui01/evoflow/tracker"
)

// =============================================================================
// 🧬 run 命令
// =============================================================================

const defaultShutdownTimeout = 15 * time.Second

type runOptions struct {
	casesPath   string
	runID       string
	streamAddr  string
	metricsAddr string
	outputPath  string
}

func runCmd(configPath *string) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one evolution over the given evaluation cases",
		Long: `Seed a population of workflows, evolve it for the configured number of
generations and print the run summary as JSON.

SIGINT or SIGTERM cancels the run, which is then recorded as interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if opts.streamAddr != "" {
				cfg.Server.StreamAddr = opts.streamAddr
			}
			if opts.metricsAddr != "" {
				cfg.Server.MetricsAddr = opts.metricsAddr
			}
			if opts.runID != "" {
				cfg.Evolution.RunID = opts.runID
			}

			logger := initLogger(cfg.Log)
			defer logger.Sync()

			out := cmd.OutOrStdout()
			if opts.outputPath != "" {
				f, err := os.Create(opts.outputPath)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			summary, err := executeRun(cmd.Context(), cfg, opts.casesPath, logger)
			if summary != nil {
				if werr := writeSummary(out, summary); werr != nil {
					logger.Error("failed to write summary", zap.Error(werr))
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&opts.casesPath, "cases", "", "Path to evaluation cases (YAML)")
	cmd.Flags().StringVar(&opts.runID, "run-id", "", "Use this run ID instead of a generated one")
	cmd.Flags().StringVar(&opts.streamAddr, "stream-addr", "", "Serve run queries and the live event stream on this address")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Write the run summary to this file instead of stdout")
	_ = cmd.MarkFlagRequired("cases")
	return cmd
}

// executeRun 装配组件、启动端点并执行一次演化。收到信号时调用 Engine.Cancel，
// 运行以 interrupted 结束。
func executeRun(ctx context.Context, cfg *config.Config, casesPath string, logger *zap.Logger) (*evolution.RunSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cases, err := evaluation.LoadCases(casesPath)
	if err != nil {
		return nil, err
	}

	a, err := newApp(ctx, cfg, nil, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		timeout := cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.close(shutdownCtx); err != nil {
			logger.Warn("shutdown finished with errors", zap.Error(err))
		}
	}()

	engine, err := a.engine(cases)
	if err != nil {
		return nil, err
	}
	if err := a.startServers(cfg.Server.StreamAddr, cfg.Server.MetricsAddr); err != nil {
		return nil, err
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCtx.Done():
			if ctx.Err() == nil {
				logger.Info("shutdown signal received, cancelling run")
				engine.Cancel("shutdown signal")
			}
		case <-done:
		}
	}()

	logger.Info("starting evolution run",
		zap.String("version", Version),
		zap.String("goal", cfg.Evolution.Goal),
		zap.Int("cases", len(cases)),
		zap.String("stream_addr", cfg.Server.StreamAddr),
	)

	summary, err := engine.Run(ctx)
	if summary != nil {
		fields := []zap.Field{
			zap.String("run_id", summary.RunID),
			zap.String("status", string(summary.Status)),
			zap.Int("generations", summary.Generations),
			zap.Float64("total_cost_usd", summary.TotalCostUSD),
		}
		if summary.Status == tracker.RunStatusCompleted {
			logger.Info("evolution run finished", fields...)
		} else {
			logger.Warn("evolution run ended early", append(fields, zap.String("reason", summary.StopReason))...)
		}
	}
	return summary, err
}

// writeSummary 以缩进 JSON 输出运行摘要
func writeSummary(w io.Writer, summary *evolution.RunSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
