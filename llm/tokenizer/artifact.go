package tokenizer

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/daulet/tokenizers"
)

// ArtifactSuffix 是 tokenizer 工件文件名的固定后缀：{tokenizer_id}.tokenizer.json
const ArtifactSuffix = ".tokenizer.json"

// Encoder 是反序列化后的 trained tokenizer。
// *tokenizers.Tokenizer 满足该接口；测试可以注入替身。
type Encoder interface {
	Encode(text string, addSpecialTokens bool) ([]uint32, []string)
	Close() error
}

// ParseFunc turns the raw bytes of a tokenizer.json file into an Encoder.
type ParseFunc func(data []byte) (Encoder, error)

// ParseTokenizerJSON delegates to the HuggingFace tokenizers bindings.
func ParseTokenizerJSON(data []byte) (Encoder, error) {
	tk, err := tokenizers.FromBytes(data)
	if err != nil {
		return nil, err
	}
	return tk, nil
}

var (
	errNULByte     = errors.New("text contains NUL byte")
	errInvalidUTF8 = errors.New("text is not valid UTF-8")
)

// Artifact 是加载完成的 tokenizer 工件，加载后不可变，可被任意 goroutine 共享。
type Artifact struct {
	id   string
	path string
	enc  Encoder
}

// ID returns the tokenizer id the artifact was loaded under.
func (a *Artifact) ID() string { return a.id }

// Path returns the file the artifact was read from.
func (a *Artifact) Path() string { return a.path }

// Encode 编码文本并返回 token id 序列。
// 底层绑定通过 C 字符串传参，含 NUL 或非法 UTF-8 的输入会被静默截断，这里提前拒绝。
func (a *Artifact) Encode(text string, addSpecialTokens bool) ([]uint32, error) {
	if strings.IndexByte(text, 0) >= 0 {
		return nil, tokenizationFailed(errNULByte)
	}
	if !utf8.ValidString(text) {
		return nil, tokenizationFailed(errInvalidUTF8)
	}
	ids, _ := a.enc.Encode(text, addSpecialTokens)
	return ids, nil
}

// ArtifactPath returns dir/{tokenizerID}.tokenizer.json.
func ArtifactPath(dir, tokenizerID string) string {
	return filepath.Join(dir, tokenizerID+ArtifactSuffix)
}

// LoadTokenizerFromPath 直接从文件加载工件，绕过目录约定与缓存。
func LoadTokenizerFromPath(path string) (*Artifact, error) {
	return loadArtifact(path, tokenizerIDFromPath(path), ParseTokenizerJSON)
}

func loadArtifact(path, tokenizerID string, parse ParseFunc) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, artifactReadFailed(path, err)
	}
	enc, err := parse(data)
	if err != nil {
		return nil, artifactParseFailed(tokenizerID, err)
	}
	return &Artifact{id: tokenizerID, path: path, enc: enc}, nil
}

func tokenizerIDFromPath(path string) string {
	base := filepath.Base(path)
	if id, ok := strings.CutSuffix(base, ArtifactSuffix); ok {
		return id
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
