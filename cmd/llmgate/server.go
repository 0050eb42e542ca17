package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/llmgate/api/handlers"
	"github.com/BaSui01/llmgate/config"
	"github.com/BaSui01/llmgate/internal/cache"
	"github.com/BaSui01/llmgate/internal/database"
	"github.com/BaSui01/llmgate/internal/metrics"
	"github.com/BaSui01/llmgate/internal/server"
	"github.com/BaSui01/llmgate/internal/telemetry"
	"github.com/BaSui01/llmgate/internal/usage"
	"github.com/BaSui01/llmgate/llm/tokenizer"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 LLMGate 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 分词核心
	registry *tokenizer.Registry
	counter  handlers.TokenCounter

	// 可选依赖，未配置时为 nil
	cacheManager *cache.Manager
	dbPool       *database.PoolManager
	usageStore   *usage.Store

	// Handlers
	healthHandler *handlers.HealthHandler
	tokenHandler  *handlers.TokenHandler
	usageHandler  *handlers.UsageHandler

	// 指标
	promRegistry     *prometheus.Registry
	metricsCollector *metrics.Collector

	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		otel:   otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 指标收集器（独立 registry，避免重复注册）
	s.promRegistry = prometheus.NewRegistry()
	s.promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metricsCollector = metrics.NewCollectorWithRegistry("llmgate", s.promRegistry, s.logger)

	// 2. 分词核心
	s.initTokenizer()

	// 3. Redis 计数缓存
	s.initCache()

	// 4. 用量账本
	s.initUsage()

	// 5. Handlers
	s.initHandlers()

	// 6. HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 7. Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.String("metrics_addr", s.metricsManager.Addr()),
		zap.Bool("count_cache", s.cacheManager != nil),
		zap.Bool("usage_ledger", s.usageStore != nil),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initTokenizer() {
	var observer tokenizer.Observer = s.metricsCollector
	if otelMetrics, err := telemetry.NewTokenMetrics(nil); err != nil {
		s.logger.Warn("otel tokenizer metrics disabled", zap.Error(err))
	} else {
		observer = tokenizer.Observers(s.metricsCollector, otelMetrics)
	}

	s.registry = tokenizer.NewRegistry(
		tokenizer.WithDefaultDir(s.cfg.Tokenizer.Dir),
		tokenizer.WithRegistryLogger(s.logger),
		tokenizer.WithRegistryObserver(observer),
	)
	s.counter = tokenizer.NewCounter(
		tokenizer.WithRegistry(s.registry),
		tokenizer.WithObserver(observer),
		tokenizer.WithLogger(s.logger),
		tokenizer.WithTracer(otel.Tracer("llmgate/tokenizer")),
	)

	// 预加载失败只记录日志，首个请求会再次尝试
	var g errgroup.Group
	g.SetLimit(4)
	for _, id := range s.cfg.Tokenizer.Preload {
		g.Go(func() error {
			if _, err := s.registry.GetOrLoad(id); err != nil {
				s.logger.Warn("tokenizer preload failed", zap.String("tokenizer_id", id), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("Tokenizer registry initialized",
		zap.String("artifact_dir", s.registry.ArtifactDir()),
		zap.Strings("loaded", s.registry.Loaded()),
	)
}

func (s *Server) initCache() {
	if !s.cfg.Tokenizer.CacheEnabled {
		return
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Addr = s.cfg.Redis.Addr
	cacheCfg.Password = s.cfg.Redis.Password
	cacheCfg.DB = s.cfg.Redis.DB
	cacheCfg.DefaultTTL = s.cfg.Tokenizer.CountCacheTTL
	cacheCfg.TLS = s.cfg.Redis.TLS
	if s.cfg.Redis.PoolSize > 0 {
		cacheCfg.PoolSize = s.cfg.Redis.PoolSize
	}
	if s.cfg.Redis.MinIdleConns > 0 {
		cacheCfg.MinIdleConns = s.cfg.Redis.MinIdleConns
	}

	mgr, err := cache.NewManager(cacheCfg, s.logger)
	if err != nil {
		s.logger.Warn("Redis not available, count cache disabled", zap.Error(err))
		return
	}

	base, ok := s.counter.(*tokenizer.Counter)
	if !ok {
		_ = mgr.Close()
		return
	}
	s.cacheManager = mgr
	s.counter = tokenizer.NewCachedCounter(base, mgr, s.cfg.Tokenizer.CountCacheTTL, s.logger)
	s.logger.Info("Count cache enabled", zap.Duration("ttl", s.cfg.Tokenizer.CountCacheTTL))
}

func (s *Server) initUsage() {
	db, err := database.Open(s.cfg.Database, s.logger)
	if err != nil {
		if errors.Is(err, database.ErrNotConfigured) {
			s.logger.Info("Database not configured, usage ledger disabled")
		} else {
			s.logger.Warn("Database not available, usage ledger disabled", zap.Error(err))
		}
		return
	}

	pool, err := database.NewPoolManager(db, database.PoolConfigFrom(s.cfg.Database), s.logger,
		database.WithStatsRecorder(s.metricsCollector))
	if err != nil {
		s.logger.Warn("Database pool setup failed, usage ledger disabled", zap.Error(err))
		return
	}

	store, err := usage.NewStore(pool.DB(), s.logger, usage.WithQueryRecorder(s.metricsCollector))
	if err == nil {
		err = store.Migrate(context.Background())
	}
	if err != nil {
		s.logger.Error("Usage ledger migrate failed", zap.Error(err))
		_ = pool.Close()
		return
	}

	s.dbPool = pool
	s.usageStore = store
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewTokenizerDirCheck(s.registry.ArtifactDir))
	if s.cacheManager != nil {
		s.healthHandler.RegisterCheck(handlers.NewFuncCheck("redis", s.cacheManager.Ping))
	}
	if s.dbPool != nil {
		s.healthHandler.RegisterCheck(handlers.NewFuncCheck("database", s.dbPool.Ping))
	}

	// 避免把 nil *usage.Store 装进接口
	var recorder handlers.UsageRecorder
	if s.usageStore != nil {
		recorder = s.usageStore
		s.usageHandler = handlers.NewUsageHandler(s.usageStore, s.logger)
	}
	s.tokenHandler = handlers.NewTokenHandler(s.counter, recorder, s.logger)
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册全部业务路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.healthHandler.HandleRoot)
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /api/v1/tokens/count", s.tokenHandler.HandleCount)
	mux.HandleFunc("GET /api/v1/tokens/resolve", s.tokenHandler.HandleResolve)
	mux.HandleFunc("GET /api/v1/tokenizers", s.tokenHandler.HandleTokenizers)
	if s.usageHandler != nil {
		mux.HandleFunc("GET /api/v1/usage", s.usageHandler.HandleSummary)
	}
	return mux
}

// handler 构建中间件链
func (s *Server) handler(ctx context.Context) http.Handler {
	sc := s.cfg.Server
	skipAuthPaths := []string{"/", "/health", "/healthz", "/ready", "/readyz", "/version"}

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(sc.CORSAllowedOrigins),
		BodyLimit(sc.MaxBodyBytes),
	}

	switch {
	case sc.JWT.Enabled():
		chain = append(chain, JWTAuth(sc.JWT, skipAuthPaths, s.logger))
		if sc.RateLimitRPS > 0 {
			chain = append(chain, TenantRateLimiter(ctx, float64(sc.RateLimitRPS), sc.RateLimitBurst, s.logger))
		}
	default:
		if sc.RateLimitRPS > 0 {
			chain = append(chain, RateLimiter(ctx, float64(sc.RateLimitRPS), sc.RateLimitBurst, s.logger))
		}
		if len(sc.APIKeys) > 0 {
			chain = append(chain, APIKeyAuth(sc.APIKeys, skipAuthPaths, sc.AllowQueryAPIKey, s.logger))
		}
	}

	return Chain(s.routes(), chain...)
}

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	serverConfig := server.Config{
		Name:            "api",
		Addr:            s.cfg.Server.Address(),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(s.handler(rateLimiterCtx), serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	// 端口为 0 时记录实际绑定的地址
	s.logger.Info("HTTP server started", zap.String("addr", s.httpManager.Addr()))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{Registry: s.promRegistry}))

	serverConfig := server.Config{
		Name:            "metrics",
		Addr:            s.cfg.Server.MetricsAddress(),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.String("addr", s.metricsManager.Addr()))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号或 ctx 结束，然后优雅关闭
func (s *Server) WaitForShutdown(ctx context.Context) {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown(ctx)
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务，可重复调用
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")
	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	if s.cacheManager != nil {
		if err := s.cacheManager.Close(); err != nil {
			s.logger.Error("Cache shutdown error", zap.Error(err))
		}
	}

	if s.dbPool != nil {
		if err := s.dbPool.Close(); err != nil {
			s.logger.Error("Database shutdown error", zap.Error(err))
		}
	}

	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
