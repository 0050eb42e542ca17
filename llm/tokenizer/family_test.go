package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveModelFamily_ManagedBPE(t *testing.T) {
	models := []string{
		"gpt-5",
		"gpt-realtime",
		"gpt-4o-mini",
		"chatgpt-4o-latest",
		"o1",
		"o3-deep-research",
		"openai",
		"o",
		"llama-3-8b",
		"meta-llama-3-70b-instruct",
		"GPT-4",
	}
	for _, model := range models {
		assert.Equal(t, ManagedBPE(), ResolveModelFamily(model), model)
	}
}

func TestResolveModelFamily_TrainedTokenizer(t *testing.T) {
	cases := []struct {
		model string
		want  string
	}{
		{"mistral-7b-instruct", "mistral"},
		{"yi-34b-chat", "yi"},
		{"llama-2-7b", "llama2"},
		{"qwen3-1.5b", "qwen3"},
		{"qwen2-7b-instruct", "qwen2"},
		{"QWEN2-7B", "qwen2"},
		{"Mistral-Large", "mistral"},
	}
	for _, tc := range cases {
		assert.Equal(t, TrainedTokenizer(tc.want), ResolveModelFamily(tc.model), tc.model)
	}
}

func TestResolveModelFamily_LongestPrefixWins(t *testing.T) {
	assert.Equal(t, TrainedTokenizer("qwen2"), ResolveModelFamily("qwen-foo"))
	assert.Equal(t, TrainedTokenizer("qwen2"), ResolveModelFamily("qwen2-foo"))
	assert.Equal(t, TrainedTokenizer("qwen3"), ResolveModelFamily("qwen3-foo"))
}

func TestResolveModelFamily_ExactPrefix(t *testing.T) {
	assert.Equal(t, TrainedTokenizer("qwen2"), ResolveModelFamily("qwen2"))
	assert.Equal(t, TrainedTokenizer("qwen2"), ResolveModelFamily("qwen"))
}

func TestResolveModelFamily_Unknown(t *testing.T) {
	for _, model := range []string{"unknown_model", "some_new_model", "", "wrong_model", "claude-3"} {
		assert.Equal(t, Unknown(), ResolveModelFamily(model), model)
	}
}

func TestModelFamily_String(t *testing.T) {
	assert.Equal(t, "managed_bpe", ManagedBPE().String())
	assert.Equal(t, "trained:qwen2", TrainedTokenizer("qwen2").String())
	assert.Equal(t, "unknown", Unknown().String())
}

func TestModelFamily_StructuralEquality(t *testing.T) {
	assert.True(t, TrainedTokenizer("yi") == TrainedTokenizer("yi"))
	assert.False(t, TrainedTokenizer("yi") == TrainedTokenizer("qwen2"))
	assert.False(t, ManagedBPE() == Unknown())
}

func TestFamilyPrefixes_Copy(t *testing.T) {
	table := FamilyPrefixes()
	assert.Len(t, table, 6)
	assert.Equal(t, "llama2", table["llama-2"])
	assert.NotContains(t, table, "llama-3")
	assert.NotContains(t, table, "meta-llama-3")

	table["mistral"] = "changed"
	assert.Equal(t, TrainedTokenizer("mistral"), ResolveModelFamily("mistral-7b"))
}

func TestASCIILower(t *testing.T) {
	assert.Equal(t, "qwen2-7b", asciiLower("QWEN2-7B"))
	assert.Equal(t, "already-lower", asciiLower("already-lower"))
	// 非 ASCII 字符保持不变
	assert.Equal(t, "qwen-Ä", asciiLower("QWEN-Ä"))
}
