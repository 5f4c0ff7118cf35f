package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BaSui01/finflow/agent/artifacts"
	"github.com/BaSui01/finflow/config"
	"github.com/BaSui01/finflow/internal/history"
	"github.com/BaSui01/finflow/internal/metrics"
	"github.com/BaSui01/finflow/internal/report"
	"github.com/BaSui01/finflow/internal/server"
	"github.com/BaSui01/finflow/internal/telemetry"
	"github.com/BaSui01/finflow/llm/providers/gemini"
	"github.com/BaSui01/finflow/workflow"
)

// modelKeyEnv 按优先级列出模型 API Key 的候选环境变量
var modelKeyEnv = []string{
	"GEMINI_API_KEY",
	"GOOGLE_API_KEY",
	"GOOGLE_GEMINI_API_KEY",
	"GOOGLE_AI_API_KEY",
}

const searchKeyEnv = "SERPER_API_KEY"

// resolveCredentials fills API keys the config left empty from the
// environment.
func resolveCredentials(cfg *config.Config, lookup func(string) (string, bool)) {
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = firstEnv(lookup, modelKeyEnv...)
	}
	if cfg.Search.APIKey == "" {
		cfg.Search.APIKey = firstEnv(lookup, searchKeyEnv)
	}
}

func firstEnv(lookup func(string) (string, bool), names ...string) string {
	for _, name := range names {
		if v, ok := lookup(name); ok && v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// 🚀 kickoff 命令
// =============================================================================

func runKickoff(args []string) {
	fs := flag.NewFlagSet("kickoff", flag.ExitOnError)
	configPath := configFlag(fs)
	question := fs.String("question", report.DefaultQuestion, "Question to report on")
	presentTime := fs.String("present-time", "", "Reference time (2006-01-02 15:04:05), defaults to now")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	exitOnError(err)

	ok, err := kickoff(cfg, *question, *presentTime)
	exitOnError(err)
	if !ok {
		os.Exit(1)
	}
}

// kickoff runs the report flow once. It reports false when the flow ran but
// did not succeed.
func kickoff(cfg *config.Config, question, presentTime string) (bool, error) {
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting FinFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	if cfg.Model.APIKey == "" {
		return false, fmt.Errorf("no model API key: set one of %v", modelKeyEnv)
	}
	if cfg.Search.APIKey == "" {
		logger.Warn("no search API key, search tools will fail", zap.String("env", searchKeyEnv))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry
	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	} else {
		defer otelProviders.ShutdownTimeout(5 * time.Second)
	}

	var collector *metrics.Collector
	var backendOpts []gemini.Option
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector = metrics.NewCollector(cfg.Metrics.Namespace, reg, logger)
		backendOpts = append(backendOpts, gemini.WithRequestObserver(collector.RecordBackendRequest))

		if cfg.Metrics.Addr != "" {
			srv := server.NewMetricsManager(cfg.Metrics.Addr, collector.Handler(), logger)
			if err := srv.Start(); err != nil {
				return false, err
			}
			defer srv.Shutdown(context.Background())
		}
	}

	store, location, err := openArtifactStore(ctx, cfg.Artifacts, logger)
	if err != nil {
		return false, err
	}
	defer store.Close()

	hist, err := history.Open(ctx, cfg.History, logger)
	if err != nil {
		logger.Warn("run history unavailable", zap.String("driver", cfg.History.Driver), zap.Error(err))
		hist = nil
	} else {
		defer hist.Close()
	}

	runner, err := report.NewRunner(report.Deps{
		Config:  cfg,
		Backend: gemini.New(cfg.Model, logger, backendOpts...),
		Store:   store,
		Metrics: collector,
		History: hist,
		Logger:  logger,
	})
	if err != nil {
		return false, err
	}

	res, runErr := runner.Run(ctx, question, presentTime)
	if res == nil {
		return false, runErr
	}
	printRunSummary(os.Stdout, runner.Flow(), res, location)
	if runErr != nil {
		logger.Error("report flow did not succeed", zap.Error(runErr))
	}
	return res.Flow.Status == workflow.FlowSucceeded, nil
}

// openArtifactStore opens the configured bucket and describes where
// artifacts end up.
func openArtifactStore(ctx context.Context, cfg config.ArtifactsConfig, logger *zap.Logger) (*artifacts.BlobStore, string, error) {
	if cfg.URL != "" {
		store, err := artifacts.OpenBlobStore(ctx, cfg.URL, logger)
		return store, cfg.URL, err
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, "", fmt.Errorf("resolve artifact dir: %w", err)
	}
	store, err := artifacts.OpenDirStore(dir, logger)
	return store, dir, err
}

// printRunSummary writes per-step status and attempts in plan order,
// followed by the final report locator.
func printRunSummary(w io.Writer, flow *workflow.Flow, res *report.Result, location string) {
	fr := res.Flow
	fmt.Fprintf(w, "Run %s: %s (%s)\n", fr.RunID, fr.Status, fr.Duration().Round(time.Millisecond))
	for _, id := range flow.Plan() {
		o := fr.Step(id)
		if o == nil {
			fmt.Fprintf(w, "  %-26s %-10s\n", id, workflow.StepPending)
			continue
		}
		fmt.Fprintf(w, "  %-26s %-10s attempts=%d", id, o.Status, o.Attempts)
		if o.Error != "" {
			fmt.Fprintf(w, " error=%q", o.Error)
		}
		fmt.Fprintln(w)
	}
	if res.State.FinalReport != "" {
		fmt.Fprintf(w, "Final report: %s (in %s)\n", res.State.FinalReport, location)
	} else {
		fmt.Fprintln(w, "Final report: not produced")
	}
}
