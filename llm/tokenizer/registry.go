package tokenizer

import (
	"errors"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// EnvTokenizerDir 覆盖工件目录，每次缓存未命中时读取。
	EnvTokenizerDir = "TOKENIZER_DIR"
	// DefaultArtifactDir 是未配置时的工件目录。
	DefaultArtifactDir = "./tokenizers"
)

var errInvalidTokenizerID = errors.New("invalid tokenizer id")

// ArtifactDirFromEnv returns $TOKENIZER_DIR, else fallback, else ./tokenizers.
func ArtifactDirFromEnv(fallback string) string {
	if dir := os.Getenv(EnvTokenizerDir); dir != "" {
		return dir
	}
	if fallback != "" {
		return fallback
	}
	return DefaultArtifactDir
}

// =============================================================================
// 📦 Tokenizer 工件注册表
// =============================================================================

// Registry 按 tokenizer id 缓存已加载的工件，只插入不淘汰。
//
// 并发未命中同一个 id 时通过 singleflight 合并为一次磁盘加载；
// 工件一旦发布就不会被替换。失败不缓存，下次调用重试。
type Registry struct {
	artifacts sync.Map // tokenizer id -> *Artifact
	group     singleflight.Group

	dir      func() string
	parse    ParseFunc
	logger   *zap.Logger
	observer Observer
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithArtifactDir sets the function that yields the artifact directory on each miss.
func WithArtifactDir(dir func() string) RegistryOption {
	return func(r *Registry) {
		if dir != nil {
			r.dir = dir
		}
	}
}

// WithDefaultDir keeps the TOKENIZER_DIR override but falls back to dir instead of
// ./tokenizers.
func WithDefaultDir(dir string) RegistryOption {
	return func(r *Registry) {
		r.dir = func() string { return ArtifactDirFromEnv(dir) }
	}
}

// WithParser replaces the tokenizer.json parser.
func WithParser(parse ParseFunc) RegistryOption {
	return func(r *Registry) {
		if parse != nil {
			r.parse = parse
		}
	}
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger.With(zap.String("component", "tokenizer_registry"))
		}
	}
}

// WithRegistryObserver sets the metrics observer.
func WithRegistryObserver(o Observer) RegistryOption {
	return func(r *Registry) {
		if o != nil {
			r.observer = o
		}
	}
}

// NewRegistry 创建注册表。
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		dir:      func() string { return ArtifactDirFromEnv("") },
		parse:    ParseTokenizerJSON,
		logger:   zap.NewNop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrLoad 返回 tokenizerID 对应的共享工件，未命中时从 {dir}/{id}.tokenizer.json 加载。
func (r *Registry) GetOrLoad(tokenizerID string) (*Artifact, error) {
	if v, ok := r.artifacts.Load(tokenizerID); ok {
		r.observer.ObserveRegistryLookup(true)
		return v.(*Artifact), nil
	}
	r.observer.ObserveRegistryLookup(false)

	if !validTokenizerID(tokenizerID) {
		return nil, &Error{Kind: ErrArtifactRead, TokenizerID: tokenizerID, Cause: errInvalidTokenizerID}
	}

	v, err, _ := r.group.Do(tokenizerID, func() (any, error) {
		// 等待期间其他调用可能已经发布
		if v, ok := r.artifacts.Load(tokenizerID); ok {
			return v, nil
		}

		path := ArtifactPath(r.dir(), tokenizerID)
		start := time.Now()
		art, err := loadArtifact(path, tokenizerID, r.parse)
		r.observer.ObserveArtifactLoad(tokenizerID, time.Since(start), err)
		if err != nil {
			r.logger.Warn("tokenizer load failed",
				zap.String("tokenizer_id", tokenizerID),
				zap.String("path", path),
				zap.Error(err),
			)
			return nil, err
		}

		// singleflight 保证同一 id 只有这里写入
		r.artifacts.Store(tokenizerID, art)
		r.logger.Info("tokenizer loaded",
			zap.String("tokenizer_id", tokenizerID),
			zap.String("path", path),
			zap.Duration("duration", time.Since(start)),
		)
		return art, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Artifact), nil
}

// Loaded returns the sorted ids of all published artifacts.
func (r *Registry) Loaded() []string {
	ids := make([]string, 0)
	r.artifacts.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

// Len returns the number of published artifacts.
func (r *Registry) Len() int {
	n := 0
	r.artifacts.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// ArtifactDir returns the directory the next miss would read from.
func (r *Registry) ArtifactDir() string {
	return r.dir()
}

func validTokenizerID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return NewRegistry()
})

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

// GetOrLoadTokenizer loads tokenizerID through the process-wide registry.
func GetOrLoadTokenizer(tokenizerID string) (*Artifact, error) {
	return DefaultRegistry().GetOrLoad(tokenizerID)
}
