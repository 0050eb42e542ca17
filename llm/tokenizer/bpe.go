package tokenizer

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const (
	encodingO200K  = "o200k_base"
	encodingCL100K = "cl100k_base"
)

// allSpecial 允许文本中出现的所有特殊 token 按特殊 token 编码。
var allSpecial = []string{"all"}

// supplementalEncodings 覆盖 tiktoken-go 映射表里还没有的新模型，按小写前缀匹配，最长优先。
var supplementalEncodings = map[string]string{
	"gpt-5":      encodingO200K,
	"gpt-4.1":    encodingO200K,
	"gpt-4.5":    encodingO200K,
	"gpt-4o":     encodingO200K,
	"chatgpt-4o": encodingO200K,
	"o1":         encodingO200K,
	"o3":         encodingO200K,
	"o4":         encodingO200K,
	"gpt-4":      encodingCL100K,
	"gpt-3.5":    encodingCL100K,
}

var (
	installOfflineLoader sync.Once
	errNoEncoding        = errors.New("no BPE encoding mapped for model")
)

// BPEProvider 按模型名提供 tiktoken 编码器。
// BPE 表来自 tiktoken-go-loader 的离线数据，运行时不访问网络。
// 编码器只按编码名缓存，模型名由调用方控制，不能作为缓存键。
type BPEProvider struct {
	byEncoding sync.Map // encoding name -> *tiktoken.Tiktoken
	mu         sync.Mutex
}

// NewBPEProvider creates a provider backed by the offline BPE tables.
func NewBPEProvider() *BPEProvider {
	installOfflineLoader.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	return &BPEProvider{}
}

// EncodingName 返回 model 对应的编码名。model 使用调用方传入的原始形式，
// 先查 tiktoken-go 自己的映射表（精确、最长前缀），再查补充前缀表。
func EncodingName(model string) (string, bool) {
	if name, ok := tiktoken.MODEL_TO_ENCODING[model]; ok {
		return name, true
	}
	if name, ok := longestPrefix(tiktoken.MODEL_PREFIX_TO_ENCODING, model); ok {
		return name, true
	}
	return longestPrefix(supplementalEncodings, asciiLower(model))
}

// Encoder 返回 model 对应的编码器，同一编码的所有模型共享一个实例。
func (p *BPEProvider) Encoder(model string) (*tiktoken.Tiktoken, error) {
	name, ok := EncodingName(model)
	if !ok {
		return nil, unknownManagedModel(model, errNoEncoding)
	}
	enc, err := p.encoding(name)
	if err != nil {
		return nil, unknownManagedModel(model, err)
	}
	return enc, nil
}

// Count encodes text for model with special tokens allowed and returns the length.
func (p *BPEProvider) Count(model, text string) (int, error) {
	enc, err := p.Encoder(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, allSpecial, nil)), nil
}

func (p *BPEProvider) encoding(name string) (*tiktoken.Tiktoken, error) {
	if v, ok := p.byEncoding.Load(name); ok {
		return v.(*tiktoken.Tiktoken), nil
	}

	// 构建编码器要编译正则并解析整张表，串行化避免重复开销
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.byEncoding.Load(name); ok {
		return v.(*tiktoken.Tiktoken), nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("init tiktoken encoding %s: %w", name, err)
	}
	p.byEncoding.Store(name, enc)
	return enc, nil
}

func longestPrefix(table map[string]string, model string) (string, bool) {
	best := ""
	for prefix := range table {
		if len(prefix) > len(best) && strings.HasPrefix(model, prefix) {
			best = prefix
		}
	}
	if best == "" {
		return "", false
	}
	return table[best], true
}
