package tokenizer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

// wordEncoder 按空白切分，每个词一个 token。
type wordEncoder struct {
	closed atomic.Bool
}

func (e *wordEncoder) Encode(text string, _ bool) ([]uint32, []string) {
	words := strings.Fields(text)
	ids := make([]uint32, len(words))
	for i := range words {
		ids[i] = uint32(i)
	}
	return ids, words
}

func (e *wordEncoder) Close() error {
	e.closed.Store(true)
	return nil
}

// countingParser 记录解析次数，可选地延迟以放大并发窗口。
type countingParser struct {
	calls atomic.Int32
	delay time.Duration
	fail  error
}

func (p *countingParser) Parse(data []byte) (Encoder, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.fail != nil {
		return nil, p.fail
	}
	if len(data) == 0 {
		return nil, errors.New("empty tokenizer file")
	}
	return &wordEncoder{}, nil
}

// writeArtifact writes a placeholder {id}.tokenizer.json into dir.
func writeArtifact(t *testing.T, dir, id string) string {
	t.Helper()
	path := filepath.Join(dir, id+ArtifactSuffix)
	require.NoError(t, os.WriteFile(path, []byte(`{"model":{}}`), 0o644))
	return path
}

func newTestRegistry(dir string, parser *countingParser) *Registry {
	return NewRegistry(
		WithArtifactDir(func() string { return dir }),
		WithParser(parser.Parse),
	)
}

// recordingObserver 记录观测到的事件。
type recordingObserver struct {
	mu          sync.Mutex
	counts      []string
	countErrs   int
	loads       []string
	hits        int
	misses      int
	cacheHits   int
	cacheMisses int
}

func (o *recordingObserver) ObserveCount(family string, _ int, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts = append(o.counts, family)
	if err != nil {
		o.countErrs++
	}
}

func (o *recordingObserver) ObserveArtifactLoad(id string, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loads = append(o.loads, id)
}

func (o *recordingObserver) ObserveRegistryLookup(hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.hits++
	} else {
		o.misses++
	}
}

func (o *recordingObserver) ObserveCountCache(hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.cacheHits++
	} else {
		o.cacheMisses++
	}
}

// memStore 是内存版 CountStore。
type memStore struct {
	mu      sync.Mutex
	data    map[string]string
	gets    int
	sets    int
	failGet bool
	failSet bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.failGet {
		return "", errors.New("store unavailable")
	}
	v, ok := s.data[key]
	if !ok {
		return "", errors.New("miss")
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	if s.failSet {
		return errors.New("store unavailable")
	}
	s.data[key] = value
	return nil
}
