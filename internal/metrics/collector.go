// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/llmgate/llm/tokenizer"
)

var _ tokenizer.Observer = (*Collector)(nil)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，同时实现 tokenizer.Observer
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// Tokenizer 指标
	tokenizerCountTotal    *prometheus.CounterVec
	tokenizerTokensTotal   *prometheus.CounterVec
	tokenizerCountDuration *prometheus.HistogramVec
	artifactLoadsTotal     *prometheus.CounterVec
	artifactLoadDuration   *prometheus.HistogramVec
	registryLookupsTotal   *prometheus.CounterVec

	// 缓存指标
	countCacheLookups *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，注册到默认 registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry 创建指标收集器，注册到 reg
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// Tokenizer 指标
	c.tokenizerCountTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokenizer_count_total",
			Help:      "Total number of token count operations",
		},
		[]string{"family", "status"},
	)

	c.tokenizerTokensTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokenizer_tokens_total",
			Help:      "Total number of tokens counted",
		},
		[]string{"family"},
	)

	c.tokenizerCountDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tokenizer_count_duration_seconds",
			Help:      "Token count duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"family"},
	)

	c.artifactLoadsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokenizer_artifact_loads_total",
			Help:      "Total number of tokenizer artifact loads from disk",
		},
		[]string{"tokenizer", "status"},
	)

	c.artifactLoadDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tokenizer_artifact_load_duration_seconds",
			Help:      "Tokenizer artifact load duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tokenizer"},
	)

	c.registryLookupsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokenizer_registry_lookups_total",
			Help:      "Total number of tokenizer registry lookups",
		},
		[]string{"result"},
	)

	// 缓存指标
	c.countCacheLookups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "count_cache_lookups_total",
			Help:      "Total number of token count cache lookups",
		},
		[]string{"result"},
	)

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🔢 Tokenizer 指标记录（tokenizer.Observer）
// =============================================================================

// ObserveCount 记录一次计数
func (c *Collector) ObserveCount(family string, tokens int, duration time.Duration, err error) {
	c.tokenizerCountTotal.WithLabelValues(family, outcome(err)).Inc()
	c.tokenizerCountDuration.WithLabelValues(family).Observe(duration.Seconds())
	if err == nil {
		c.tokenizerTokensTotal.WithLabelValues(family).Add(float64(tokens))
	}
}

// ObserveArtifactLoad 记录一次工件磁盘加载
func (c *Collector) ObserveArtifactLoad(tokenizerID string, duration time.Duration, err error) {
	c.artifactLoadsTotal.WithLabelValues(tokenizerID, outcome(err)).Inc()
	c.artifactLoadDuration.WithLabelValues(tokenizerID).Observe(duration.Seconds())
	if err != nil {
		c.logger.Debug("artifact load failed", zap.String("tokenizer", tokenizerID), zap.Error(err))
	}
}

// ObserveRegistryLookup 记录注册表查找结果
func (c *Collector) ObserveRegistryLookup(hit bool) {
	c.registryLookupsTotal.WithLabelValues(hitLabel(hit)).Inc()
}

// ObserveCountCache 记录计数缓存查找结果
func (c *Collector) ObserveCountCache(hit bool) {
	c.countCacheLookups.WithLabelValues(hitLabel(hit)).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func hitLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
