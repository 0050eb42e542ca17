package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/llmgate/llm/tokenizer"
)

const instrumentationName = "github.com/BaSui01/llmgate/llm/tokenizer"

var _ tokenizer.Observer = (*TokenMetrics)(nil)

// =============================================================================
// 📊 OTel 分词指标
// =============================================================================

// TokenMetrics 把分词核心的事件写入 OTel meter，与 Prometheus collector 并行上报。
// 它满足 tokenizer.Observer。
type TokenMetrics struct {
	counts        metric.Int64Counter
	tokens        metric.Int64Counter
	countDuration metric.Float64Histogram
	loads         metric.Int64Counter
	loadDuration  metric.Float64Histogram
	lookups       metric.Int64Counter
	cacheLookups  metric.Int64Counter
}

// NewTokenMetrics creates the instruments on mp, or on the global provider when mp is nil.
func NewTokenMetrics(mp metric.MeterProvider) (*TokenMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	var (
		m   TokenMetrics
		err error
	)
	if m.counts, err = meter.Int64Counter("llmgate.tokenizer.counts",
		metric.WithDescription("Token count operations"),
		metric.WithUnit("{count}")); err != nil {
		return nil, fmt.Errorf("create counts instrument: %w", err)
	}
	if m.tokens, err = meter.Int64Counter("llmgate.tokenizer.tokens",
		metric.WithDescription("Tokens counted"),
		metric.WithUnit("{token}")); err != nil {
		return nil, fmt.Errorf("create tokens instrument: %w", err)
	}
	if m.countDuration, err = meter.Float64Histogram("llmgate.tokenizer.count.duration",
		metric.WithDescription("Token count latency"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create count duration instrument: %w", err)
	}
	if m.loads, err = meter.Int64Counter("llmgate.tokenizer.artifact.loads",
		metric.WithDescription("Tokenizer artifact loads"),
		metric.WithUnit("{load}")); err != nil {
		return nil, fmt.Errorf("create loads instrument: %w", err)
	}
	if m.loadDuration, err = meter.Float64Histogram("llmgate.tokenizer.artifact.load.duration",
		metric.WithDescription("Tokenizer artifact load latency"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create load duration instrument: %w", err)
	}
	if m.lookups, err = meter.Int64Counter("llmgate.tokenizer.registry.lookups",
		metric.WithDescription("Registry lookups by result"),
		metric.WithUnit("{lookup}")); err != nil {
		return nil, fmt.Errorf("create lookups instrument: %w", err)
	}
	if m.cacheLookups, err = meter.Int64Counter("llmgate.count_cache.lookups",
		metric.WithDescription("Count cache lookups by result"),
		metric.WithUnit("{lookup}")); err != nil {
		return nil, fmt.Errorf("create cache lookups instrument: %w", err)
	}
	return &m, nil
}

// ObserveCount records one count call.
func (m *TokenMetrics) ObserveCount(family string, tokens int, duration time.Duration, err error) {
	ctx := context.Background()
	famAttr := attribute.String("family", family)
	m.counts.Add(ctx, 1, metric.WithAttributes(famAttr, attribute.String("status", status(err))))
	m.countDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(famAttr))
	if err == nil {
		m.tokens.Add(ctx, int64(tokens), metric.WithAttributes(famAttr))
	}
}

// ObserveArtifactLoad records one artifact load from disk.
func (m *TokenMetrics) ObserveArtifactLoad(tokenizerID string, duration time.Duration, err error) {
	ctx := context.Background()
	idAttr := attribute.String("tokenizer", tokenizerID)
	m.loads.Add(ctx, 1, metric.WithAttributes(idAttr, attribute.String("status", status(err))))
	m.loadDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(idAttr))
}

// ObserveRegistryLookup records a registry hit or miss.
func (m *TokenMetrics) ObserveRegistryLookup(hit bool) {
	m.lookups.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result(hit))))
}

// ObserveCountCache records a count cache hit or miss.
func (m *TokenMetrics) ObserveCountCache(hit bool) {
	m.cacheLookups.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result(hit))))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func result(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
