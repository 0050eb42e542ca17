package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/llmgate/internal/usage"
	"github.com/BaSui01/llmgate/llm/tokenizer"
	"github.com/BaSui01/llmgate/types"
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

type fakeCounter struct {
	tokens   int
	err      error
	registry *tokenizer.Registry

	mu       sync.Mutex
	texts    []string
	messages [][]tokenizer.Message
}

func (f *fakeCounter) Count(_ context.Context, _ string, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.tokens, f.err
}

func (f *fakeCounter) CountMessages(_ context.Context, _ string, messages []tokenizer.Message) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, messages)
	return f.tokens, f.err
}

func (f *fakeCounter) Registry() *tokenizer.Registry {
	if f.registry == nil {
		f.registry = tokenizer.NewRegistry(tokenizer.WithArtifactDir(func() string { return "testdata-none" }))
	}
	return f.registry
}

type fakeUsage struct {
	mu      sync.Mutex
	records []*usage.Record
	err     error
}

func (f *fakeUsage) Record(_ context.Context, rec *usage.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/tokens/count", bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	ctx := types.WithRequestID(r.Context(), "req-1")
	ctx = types.WithTenantID(ctx, "tenant-a")
	w := httptest.NewRecorder()
	h(w, r.WithContext(ctx))
	return w
}

type countEnvelope struct {
	Success bool          `json:"success"`
	Data    CountResponse `json:"data"`
	Error   *ErrorInfo    `json:"error"`
}

func decodeCount(t *testing.T, w *httptest.ResponseRecorder) countEnvelope {
	t.Helper()
	var env countEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	return env
}

// =============================================================================
// 🧪 HandleCount 测试
// =============================================================================

func TestTokenHandler_CountText_ManagedBPE(t *testing.T) {
	rec := &fakeUsage{}
	h := NewTokenHandler(tokenizer.NewCounter(), rec, zap.NewNop())

	w := postJSON(t, h.HandleCount, `{"model":"gpt-4","text":"hello world"}`)
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeCount(t, w)
	assert.True(t, env.Success)
	assert.Equal(t, CountResponse{Model: "gpt-4", Family: "managed_bpe", Tokens: 2}, env.Data)

	require.Len(t, rec.records, 1)
	assert.Equal(t, "req-1", rec.records[0].RequestID)
	assert.Equal(t, "tenant-a", rec.records[0].TenantID)
	assert.Equal(t, int64(2), rec.records[0].Tokens)
}

func TestTokenHandler_CountText_Trained(t *testing.T) {
	fc := &fakeCounter{tokens: 9}
	h := NewTokenHandler(fc, nil, zap.NewNop())

	w := postJSON(t, h.HandleCount, `{"model":"Qwen2.5-7B","text":"你好"}`)
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeCount(t, w)
	assert.Equal(t, CountResponse{Model: "Qwen2.5-7B", Family: "trained", TokenizerID: "qwen2", Tokens: 9}, env.Data)
	assert.Equal(t, []string{"你好"}, fc.texts)
}

func TestTokenHandler_CountEmptyText(t *testing.T) {
	fc := &fakeCounter{}
	h := NewTokenHandler(fc, nil, zap.NewNop())

	w := postJSON(t, h.HandleCount, `{"model":"gpt-4o","text":""}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decodeCount(t, w).Data.Tokens)
	assert.Equal(t, []string{""}, fc.texts)
}

func TestTokenHandler_CountMessages(t *testing.T) {
	fc := &fakeCounter{tokens: 18}
	h := NewTokenHandler(fc, nil, zap.NewNop())

	w := postJSON(t, h.HandleCount, `{"model":"gpt-4","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 18, decodeCount(t, w).Data.Tokens)
	require.Len(t, fc.messages, 1)
	assert.Equal(t, []tokenizer.Message{{Role: "user", Content: "hi"}}, fc.messages[0])
	assert.Empty(t, fc.texts)
}

func TestTokenHandler_CountErrors(t *testing.T) {
	tests := []struct {
		name       string
		counter    TokenCounter
		body       string
		wantStatus int
		wantCode   types.ErrorCode
		wantMsg    string
	}{
		{
			name:       "unsupported model",
			counter:    tokenizer.NewCounter(),
			body:       `{"model":"claude-3-opus","text":"hi"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrUnsupportedModel,
			wantMsg:    "no tokenizer configured for model: claude-3-opus",
		},
		{
			name:       "missing text and messages",
			counter:    &fakeCounter{},
			body:       `{"model":"gpt-4"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrInvalidRequest,
		},
		{
			name:       "both text and messages",
			counter:    &fakeCounter{},
			body:       `{"model":"gpt-4","text":"a","messages":[]}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrInvalidRequest,
		},
		{
			name:       "unknown field",
			counter:    &fakeCounter{},
			body:       `{"model":"gpt-4","text":"a","extra":1}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrInvalidRequest,
		},
		{
			name:       "artifact failure",
			counter:    &fakeCounter{err: &tokenizer.Error{Kind: tokenizer.ErrArtifactRead, Path: "/t/yi.tokenizer.json", Cause: errors.New("boom")}},
			body:       `{"model":"yi-34b","text":"a"}`,
			wantStatus: http.StatusInternalServerError,
			wantCode:   types.ErrTokenizerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeUsage{}
			h := NewTokenHandler(tt.counter, rec, zap.NewNop())

			w := postJSON(t, h.HandleCount, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)

			env := decodeCount(t, w)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, string(tt.wantCode), env.Error.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, env.Error.Message)
			}
			assert.Empty(t, rec.records)
		})
	}
}

func TestTokenHandler_CountWrongContentType(t *testing.T) {
	h := NewTokenHandler(&fakeCounter{}, nil, zap.NewNop())

	r := httptest.NewRequest(http.MethodPost, "/api/v1/tokens/count", bytes.NewBufferString(`{}`))
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	h.HandleCount(w, r)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestTokenHandler_UsageFailureDoesNotFailCount(t *testing.T) {
	h := NewTokenHandler(&fakeCounter{tokens: 3}, &fakeUsage{err: errors.New("db down")}, zap.NewNop())

	w := postJSON(t, h.HandleCount, `{"model":"gpt-4","text":"abc"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, decodeCount(t, w).Data.Tokens)
}

// =============================================================================
// 🧪 HandleResolve / HandleTokenizers 测试
// =============================================================================

func TestTokenHandler_HandleResolve(t *testing.T) {
	h := NewTokenHandler(&fakeCounter{}, nil, zap.NewNop())

	tests := []struct {
		model string
		want  ResolveResponse
	}{
		{"gpt-4o", ResolveResponse{Model: "gpt-4o", Family: "managed_bpe", Supported: true}},
		{"mistral-7b-instruct", ResolveResponse{Model: "mistral-7b-instruct", Family: "trained", TokenizerID: "mistral", Supported: true}},
		{"Llama-2-13b", ResolveResponse{Model: "Llama-2-13b", Family: "trained", TokenizerID: "llama2", Supported: true}},
		{"claude-3", ResolveResponse{Model: "claude-3", Family: "unknown"}},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.HandleResolve(w, httptest.NewRequest(http.MethodGet, "/api/v1/tokens/resolve?model="+tt.model, nil))
			require.Equal(t, http.StatusOK, w.Code)

			var env struct {
				Data ResolveResponse `json:"data"`
			}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
			assert.Equal(t, tt.want, env.Data)
		})
	}

	w := httptest.NewRecorder()
	h.HandleResolve(w, httptest.NewRequest(http.MethodGet, "/api/v1/tokens/resolve", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTokenHandler_HandleTokenizers(t *testing.T) {
	h := NewTokenHandler(&fakeCounter{}, nil, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleTokenizers(w, httptest.NewRequest(http.MethodGet, "/api/v1/tokenizers", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var env struct {
		Data TokenizersResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	assert.Equal(t, "testdata-none", env.Data.ArtifactDir)
	assert.Equal(t, "qwen2", env.Data.Prefixes["qwen"])
	assert.Equal(t, "llama2", env.Data.Prefixes["llama-2"])
	assert.Empty(t, env.Data.Loaded)
}
