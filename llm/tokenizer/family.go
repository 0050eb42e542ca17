package tokenizer

import (
	"strings"
)

// FamilyKind 标识模型所属的分词路径。
type FamilyKind int

const (
	// FamilyUnknown 没有可用的分词器。
	FamilyUnknown FamilyKind = iota
	// FamilyManagedBPE 使用 tiktoken 内置 BPE 表，按原始模型名查找编码。
	FamilyManagedBPE
	// FamilyTrainedTokenizer 使用磁盘上的 tokenizer.json 工件。
	FamilyTrainedTokenizer
)

// String returns the label form of the kind.
func (k FamilyKind) String() string {
	switch k {
	case FamilyManagedBPE:
		return "managed_bpe"
	case FamilyTrainedTokenizer:
		return "trained"
	default:
		return "unknown"
	}
}

// ModelFamily 是模型名的分类结果。
// TokenizerID 仅在 Kind 为 FamilyTrainedTokenizer 时有值，结构体可直接用 == 比较。
type ModelFamily struct {
	Kind        FamilyKind
	TokenizerID string
}

// ManagedBPE returns the managed byte-pair family.
func ManagedBPE() ModelFamily {
	return ModelFamily{Kind: FamilyManagedBPE}
}

// TrainedTokenizer returns the trained-tokenizer family for tokenizerID.
func TrainedTokenizer(tokenizerID string) ModelFamily {
	return ModelFamily{Kind: FamilyTrainedTokenizer, TokenizerID: tokenizerID}
}

// Unknown returns the unsupported family.
func Unknown() ModelFamily {
	return ModelFamily{Kind: FamilyUnknown}
}

// String renders the family as "managed_bpe", "trained:<id>" or "unknown".
func (f ModelFamily) String() string {
	if f.Kind == FamilyTrainedTokenizer {
		return "trained:" + f.TokenizerID
	}
	return f.Kind.String()
}

// familyPrefixes 小写模型名前缀 → tokenizer id。
// llama-3 / meta-llama-3 不能出现在这里，它们走 managed BPE。
var familyPrefixes = map[string]string{
	"mistral": "mistral",
	"yi":      "yi",
	"qwen3":   "qwen3",
	"qwen2":   "qwen2",
	"qwen":    "qwen2",
	"llama-2": "llama2",
}

// FamilyPrefixes returns a copy of the prefix table used for trained tokenizers.
func FamilyPrefixes() map[string]string {
	out := make(map[string]string, len(familyPrefixes))
	for k, v := range familyPrefixes {
		out[k] = v
	}
	return out
}

// ResolveModelFamily 将任意模型名归类到分词路径。
// 纯函数，大小写不敏感，不做任何 I/O。
//
// 任意以 "o" 开头的模型都视为 managed BPE（o1、o3、o4 ...），
// 如果以后有以 o 开头的 trained 家族，需要先收紧这条规则。
func ResolveModelFamily(model string) ModelFamily {
	m := asciiLower(model)

	if strings.HasPrefix(m, "gpt-") ||
		strings.HasPrefix(m, "o") ||
		strings.HasPrefix(m, "llama-3") ||
		strings.HasPrefix(m, "meta-llama-3") ||
		strings.Contains(m, "gpt-4") {
		return ManagedBPE()
	}

	// 最长前缀匹配，结果与 map 迭代顺序无关。
	best := ""
	for prefix := range familyPrefixes {
		if len(prefix) > len(best) && strings.HasPrefix(m, prefix) {
			best = prefix
		}
	}
	if best != "" {
		return TrainedTokenizer(familyPrefixes[best])
	}

	return Unknown()
}

// asciiLower lowercases ASCII letters only, leaving other bytes untouched.
func asciiLower(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= 'A' && c <= 'Z' {
			b := []byte(s)
			for j := i; j < len(b); j++ {
				if b[j] >= 'A' && b[j] <= 'Z' {
					b[j] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return s
}
