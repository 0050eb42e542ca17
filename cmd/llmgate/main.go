// =============================================================================
// LLMGate 主入口
// =============================================================================
// 网关服务入口，包含 HTTP 服务、健康检查、Prometheus 指标与离线计数工具
//
// 使用方法:
//
//	llmgate serve                          # 启动服务
//	llmgate serve --config config.yaml     # 指定配置文件
//	llmgate count --model gpt-4o --text hi # 本地计数
//	llmgate resolve qwen2-7b               # 查看模型对应的分词器
//	llmgate health --addr http://localhost:8080
//	llmgate version
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/llmgate/config"
	"github.com/BaSui01/llmgate/internal/telemetry"
	"github.com/BaSui01/llmgate/internal/tlsutil"
	"github.com/BaSui01/llmgate/llm/tokenizer"
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "llmgate",
		Short:         "LLM gateway with model-aware token counting",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newServeCmd(),
		newCountCmd(),
		newResolveCmd(),
		newHealthCmd(),
		newVersionCmd(),
	)
	return root
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func newServeCmd() *cobra.Command {
	var (
		configPath  string
		settingsDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the LLMGate server",
		Example: `  llmgate serve
  llmgate serve --config /etc/llmgate/config.yaml
  APP_PROFILE=prod llmgate serve --settings-dir ./settings`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, settingsDir)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	cmd.Flags().StringVar(&settingsDir, "settings-dir", "", "directory with base.yaml and {profile}.yaml")
	return cmd
}

func loadConfig(configPath, settingsDir string) (*config.Config, error) {
	loader := config.NewLoader()
	if settingsDir != "" {
		loader = loader.WithSettingsDir(settingsDir)
	}
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting LLMGate",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	srv := NewServer(cfg, logger, otelProviders)
	if err := srv.Start(); err != nil {
		logger.Error("Failed to start server", zap.Error(err))
		srv.Shutdown()
		return err
	}

	srv.WaitForShutdown(ctx)
	logger.Info("LLMGate stopped")
	return nil
}

// =============================================================================
// 🔢 count / resolve 命令
// =============================================================================

func newCountCmd() *cobra.Command {
	var (
		model string
		text  string
		dir   string
	)

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count tokens of a text for a model",
		Example: `  llmgate count --model gpt-4o --text "hello world"
  cat prompt.txt | llmgate count --model qwen2-7b --dir ./tokenizers`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("text") {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}

			counter := tokenizer.NewCounter(
				tokenizer.WithRegistry(tokenizer.NewRegistry(tokenizer.WithDefaultDir(dir))),
			)
			n, err := counter.Count(cmd.Context(), model, text)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "model id")
	cmd.Flags().StringVarP(&text, "text", "t", "", "text to count (reads stdin when omitted)")
	cmd.Flags().StringVar(&dir, "dir", "", "tokenizer artifact directory (TOKENIZER_DIR wins)")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve MODEL",
		Short: "Show which tokenizer family a model resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			family := tokenizer.ResolveModelFamily(args[0])
			fmt.Fprintln(cmd.OutOrStdout(), family.String())
			if family.Kind == tokenizer.FamilyUnknown {
				return fmt.Errorf("no tokenizer configured for model: %s", args[0])
			}
			return nil
		},
	}
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func newHealthCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthCheck(cmd.Context(), cmd.OutOrStdout(), addr, timeout)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "server address")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func runHealthCheck(ctx context.Context, out io.Writer, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(addr, "/")+"/health", nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := tlsutil.SecureHTTPClient(timeout).Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	fmt.Fprintln(out, "OK")
	return nil
}

// =============================================================================
// 📋 版本
// =============================================================================

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "LLMGate %s\n", Version)
			fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		},
	}
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// exitCode maps command errors for scripts wrapping the CLI.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case tokenizer.IsClientError(err):
		return 2
	case errors.Is(err, context.DeadlineExceeded):
		return 3
	default:
		return 1
	}
}
