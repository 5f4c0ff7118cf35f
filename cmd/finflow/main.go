// =============================================================================
// FinFlow 主入口
// =============================================================================
// 财报生成多智能体流程的命令行入口
//
// 使用方法:
//
//	finflow kickoff                               # 运行报告流程
//	finflow kickoff --config finflow.yaml         # 指定配置文件
//	finflow kickoff --question "nvidia earnings"  # 指定问题
//	finflow plot                                  # 导出流程图
//	finflow history                               # 查看最近运行
//	finflow check-model                           # 探测模型 API
//	finflow version                               # 显示版本信息
// =============================================================================

package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/finflow/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "kickoff":
		runKickoff(os.Args[2:])
	case "plot":
		runPlot(os.Args[2:])
	case "history":
		runHistory(os.Args[2:])
	case "check-model":
		runCheckModel(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig 加载并验证配置，随后从环境变量探测凭据
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader().WithEnvPrefix("FINFLOW")
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	resolveCredentials(cfg, os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// exitOnError 打印错误并以非零状态退出
func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", "", "Path to config file (YAML)")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("FinFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`FinFlow - financial report multi-agent flow

Usage:
  finflow <command> [options]

Commands:
  kickoff      Run the report flow once
  plot         Export the flow graph (HTML + JSON/YAML definition)
  history      List recent runs
  check-model  Send one minimal request to the model API
  version      Show version information
  help         Show this help message

Options for 'kickoff':
  --config <path>         Path to configuration file (YAML)
  --question <text>       Question to report on (default: "current price of tesla stock")
  --present-time <time>   Reference time, "2006-01-02 15:04:05" (default: now)

Options for 'plot':
  --out <path>            HTML output (default: ReportFlowPlot.html)
  --definition <path>     Also write the flow definition (.json or .yaml)

Options for 'history':
  --config <path>         Path to configuration file (YAML)
  --limit <n>             Number of runs to list (default: history.limit)

Environment:
  GEMINI_API_KEY, GOOGLE_API_KEY, GOOGLE_GEMINI_API_KEY, GOOGLE_AI_API_KEY
                          Model API key, first non-empty wins
  SERPER_API_KEY          Search API key
  FINFLOW_*               Overrides for any config field

Examples:
  finflow kickoff
  finflow kickoff --question "apple quarterly results" --config finflow.yaml
  finflow plot --definition report_flow.yaml
  finflow history --limit 5
  finflow check-model`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	var opts []zap.Option
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
