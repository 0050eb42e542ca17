package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/llmgate/internal/usage"
	"github.com/BaSui01/llmgate/types"
)

// UsageSummarizer 按模型聚合用量，*usage.Store 满足
type UsageSummarizer interface {
	Summary(ctx context.Context, since time.Time) ([]usage.ModelUsage, error)
}

// UsageResponse GET /api/v1/usage 的响应
type UsageResponse struct {
	Since  time.Time          `json:"since"`
	Models []usage.ModelUsage `json:"models"`
}

// UsageHandler 用量查询处理器
type UsageHandler struct {
	store  UsageSummarizer
	logger *zap.Logger
	now    func() time.Time
}

// NewUsageHandler 创建 UsageHandler
func NewUsageHandler(store UsageSummarizer, logger *zap.Logger) *UsageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UsageHandler{
		store:  store,
		logger: logger.With(zap.String("handler", "usage")),
		now:    time.Now,
	}
}

// defaultUsageWindow 未指定 since 时的查询窗口
const defaultUsageWindow = 24 * time.Hour

// HandleSummary 处理 GET /api/v1/usage?since=
// since 可以是 RFC3339 时间，也可以是相对时长（如 1h、72h）。
func (h *UsageHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	since, err := h.parseSince(r.URL.Query().Get("since"))
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "since must be an RFC3339 time or a duration").
			WithCause(err).
			WithHTTPStatus(http.StatusBadRequest), h.logger)
		return
	}

	rows, err := h.store.Summary(r.Context(), since)
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrInternalError, "failed to summarize usage").
			WithCause(err).
			WithRetryable(true), h.logger)
		return
	}

	WriteSuccess(w, r, UsageResponse{Since: since, Models: rows})
}

func (h *UsageHandler) parseSince(raw string) (time.Time, error) {
	if raw == "" {
		return h.now().Add(-defaultUsageWindow).UTC(), nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		if d < 0 {
			d = -d
		}
		return h.now().Add(-d).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
