package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/llmgate/internal/usage"
	"github.com/BaSui01/llmgate/llm/tokenizer"
	"github.com/BaSui01/llmgate/types"
)

// TokenCounter 是 handler 依赖的计数能力，*tokenizer.Counter 与 *tokenizer.CachedCounter 都满足
type TokenCounter interface {
	Count(ctx context.Context, model, text string) (int, error)
	CountMessages(ctx context.Context, model string, messages []tokenizer.Message) (int, error)
	Registry() *tokenizer.Registry
}

// UsageRecorder 持久化成功的计数，*usage.Store 满足
type UsageRecorder interface {
	Record(ctx context.Context, rec *usage.Record) error
}

// =============================================================================
// 🔢 Token 计数 Handler
// =============================================================================

// CountRequest POST /api/v1/tokens/count 的请求体，text 与 messages 二选一
type CountRequest struct {
	Model    string              `json:"model"`
	Text     *string             `json:"text,omitempty"`
	Messages []tokenizer.Message `json:"messages,omitempty"`
}

// CountResponse 计数结果
type CountResponse struct {
	Model       string `json:"model"`
	Family      string `json:"family"`
	TokenizerID string `json:"tokenizer_id,omitempty"`
	Tokens      int    `json:"tokens"`
}

// ResolveResponse 模型分类结果
type ResolveResponse struct {
	Model       string `json:"model"`
	Family      string `json:"family"`
	TokenizerID string `json:"tokenizer_id,omitempty"`
	Supported   bool   `json:"supported"`
}

// TokenizersResponse 分词器清单
type TokenizersResponse struct {
	ArtifactDir string            `json:"artifact_dir"`
	Prefixes    map[string]string `json:"prefixes"`
	Loaded      []string          `json:"loaded"`
}

// TokenHandler 处理计数与模型分类请求
type TokenHandler struct {
	counter TokenCounter
	usage   UsageRecorder
	logger  *zap.Logger
}

// NewTokenHandler 创建 TokenHandler；recorder 为 nil 时不记录用量
func NewTokenHandler(counter TokenCounter, recorder UsageRecorder, logger *zap.Logger) *TokenHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenHandler{
		counter: counter,
		usage:   recorder,
		logger:  logger.With(zap.String("handler", "tokens")),
	}
}

// HandleCount 处理 POST /api/v1/tokens/count
func (h *TokenHandler) HandleCount(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req CountRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	switch {
	case req.Text == nil && req.Messages == nil:
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "either text or messages is required", h.logger)
		return
	case req.Text != nil && req.Messages != nil:
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "text and messages are mutually exclusive", h.logger)
		return
	}

	var (
		n   int
		err error
	)
	if req.Text != nil {
		n, err = h.counter.Count(r.Context(), req.Model, *req.Text)
	} else {
		n, err = h.counter.CountMessages(r.Context(), req.Model, req.Messages)
	}
	if err != nil {
		WriteError(w, r, TokenizerAPIError(err), h.logger)
		return
	}

	family := tokenizer.ResolveModelFamily(req.Model)
	h.recordUsage(r, req.Model, family, n)

	WriteSuccess(w, r, CountResponse{
		Model:       req.Model,
		Family:      family.Kind.String(),
		TokenizerID: family.TokenizerID,
		Tokens:      n,
	})
}

func (h *TokenHandler) recordUsage(r *http.Request, model string, family tokenizer.ModelFamily, tokens int) {
	if h.usage == nil {
		return
	}
	tenant, _ := types.TenantID(r.Context())
	rec := usage.NewRecord(requestID(r), tenant, model, family, tokens)
	if err := h.usage.Record(r.Context(), rec); err != nil {
		// 用量记录失败不影响计数结果
		user, _ := types.UserID(r.Context())
		h.logger.Warn("usage record dropped",
			zap.String("model", model),
			zap.String("tenant_id", tenant),
			zap.String("user_id", user),
			zap.Error(err),
		)
	}
}

// HandleResolve 处理 GET /api/v1/tokens/resolve?model=
func (h *TokenHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	model := strings.TrimSpace(r.URL.Query().Get("model"))
	if model == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "model query parameter is required", h.logger)
		return
	}

	family := tokenizer.ResolveModelFamily(model)
	WriteSuccess(w, r, ResolveResponse{
		Model:       model,
		Family:      family.Kind.String(),
		TokenizerID: family.TokenizerID,
		Supported:   family.Kind != tokenizer.FamilyUnknown,
	})
}

// HandleTokenizers 处理 GET /api/v1/tokenizers
func (h *TokenHandler) HandleTokenizers(w http.ResponseWriter, r *http.Request) {
	reg := h.counter.Registry()
	WriteSuccess(w, r, TokenizersResponse{
		ArtifactDir: reg.ArtifactDir(),
		Prefixes:    tokenizer.FamilyPrefixes(),
		Loaded:      reg.Loaded(),
	})
}
