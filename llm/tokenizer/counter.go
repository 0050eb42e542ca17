package tokenizer

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Message 是一个轻量级消息结构，避免 tokenizer 包依赖上层消息类型。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	// 每条消息的开销: <|start|>role\n content<|end|>\n
	messageOverhead = 4
	// 对话结尾的开销
	conversationOverhead = 3
)

// =============================================================================
// 🔢 Token 计数器
// =============================================================================

// Counter 是核心的公共入口：先按模型名分类，再分派到 BPE 或 trained tokenizer。
// Counter 无内部可变状态（共享的只有 Registry），可被任意 goroutine 并发调用。
type Counter struct {
	registry *Registry
	bpe      *BPEProvider
	observer Observer
	tracer   trace.Tracer
	logger   *zap.Logger
}

// CounterOption configures a Counter.
type CounterOption func(*Counter)

// WithRegistry sets the artifact registry.
func WithRegistry(r *Registry) CounterOption {
	return func(c *Counter) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithBPEProvider sets the managed BPE provider.
func WithBPEProvider(p *BPEProvider) CounterOption {
	return func(c *Counter) {
		if p != nil {
			c.bpe = p
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) CounterOption {
	return func(c *Counter) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) CounterOption {
	return func(c *Counter) {
		if logger != nil {
			c.logger = logger.With(zap.String("component", "token_counter"))
		}
	}
}

// WithTracer sets the tracer used for count spans.
func WithTracer(t trace.Tracer) CounterOption {
	return func(c *Counter) {
		if t != nil {
			c.tracer = t
		}
	}
}

// NewCounter 创建计数器。未指定 Registry 时使用进程级默认注册表。
func NewCounter(opts ...CounterOption) *Counter {
	c := &Counter{
		observer: nopObserver{},
		tracer:   otel.Tracer("llmgate/tokenizer"),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = DefaultRegistry()
	}
	if c.bpe == nil {
		c.bpe = NewBPEProvider()
	}
	return c
}

// Registry returns the registry the counter loads trained tokenizers from.
func (c *Counter) Registry() *Registry {
	return c.registry
}

// CountTextTokens 返回 model 处理 text 所消耗的 token 数。
func (c *Counter) CountTextTokens(model, text string) (int, error) {
	return c.Count(context.Background(), model, text)
}

// Count 与 CountTextTokens 相同，ctx 只用于挂载 trace span，不会中断计数。
func (c *Counter) Count(ctx context.Context, model, text string) (int, error) {
	start := time.Now()
	family := ResolveModelFamily(model)

	_, span := c.tracer.Start(ctx, "tokenizer.count",
		trace.WithAttributes(
			attribute.String("llm.model", model),
			attribute.String("tokenizer.family", family.String()),
		),
	)
	defer span.End()

	n, err := c.dispatch(family, model, text)
	c.observer.ObserveCount(family.Kind.String(), n, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("token count failed",
			zap.String("model", model),
			zap.String("family", family.String()),
			zap.Error(err),
		)
		return 0, err
	}

	span.SetAttributes(attribute.Int("tokenizer.tokens", n))
	return n, nil
}

func (c *Counter) dispatch(family ModelFamily, model, text string) (int, error) {
	switch family.Kind {
	case FamilyManagedBPE:
		// 使用原始模型名，编码器自行做归一化
		return c.bpe.Count(model, text)

	case FamilyTrainedTokenizer:
		art, err := c.registry.GetOrLoad(family.TokenizerID)
		if err != nil {
			return 0, err
		}
		ids, err := art.Encode(text, true)
		if err != nil {
			return 0, err
		}
		return len(ids), nil

	default:
		return 0, unsupportedModel(model)
	}
}

// CountMessages 返回消息列表的总 token 数，包括每条消息的角色标记与分隔符开销。
func (c *Counter) CountMessages(ctx context.Context, model string, messages []Message) (int, error) {
	return countMessages(ctx, c.Count, model, messages)
}

func countMessages(ctx context.Context, count func(context.Context, string, string) (int, error), model string, messages []Message) (int, error) {
	if ResolveModelFamily(model).Kind == FamilyUnknown {
		return 0, unsupportedModel(model)
	}

	total := 0
	for _, msg := range messages {
		content, err := count(ctx, model, msg.Content)
		if err != nil {
			return 0, err
		}
		role, err := count(ctx, model, msg.Role)
		if err != nil {
			return 0, err
		}
		total += content + role + messageOverhead
	}
	total += conversationOverhead
	return total, nil
}

var defaultCounter = sync.OnceValue(func() *Counter {
	return NewCounter()
})

// DefaultCounter returns the process-wide counter backed by DefaultRegistry.
func DefaultCounter() *Counter {
	return defaultCounter()
}

// CountTextTokens counts text for model with the process-wide counter.
func CountTextTokens(model, text string) (int, error) {
	return DefaultCounter().CountTextTokens(model, text)
}
