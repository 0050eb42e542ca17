package metrics

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollectorWithRegistry("llmgate", reg, zap.NewNop()), reg
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordHTTPRequest("POST", "/api/v1/tokens/count", 200, 100*time.Millisecond, 1024, 2048)
	c.RecordHTTPRequest("POST", "/api/v1/tokens/count", 201, 50*time.Millisecond, 512, 1024)
	c.RecordHTTPRequest("POST", "/api/v1/tokens/count", 400, 5*time.Millisecond, 10, 64)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/tokens/count", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/tokens/count", "4xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.httpRequestDuration))
}

func TestCollector_ObserveCount(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ObserveCount("managed_bpe", 12, time.Millisecond, nil)
	c.ObserveCount("managed_bpe", 8, time.Millisecond, nil)
	c.ObserveCount("trained", 0, time.Millisecond, errors.New("read failed"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.tokenizerCountTotal.WithLabelValues("managed_bpe", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tokenizerCountTotal.WithLabelValues("trained", "error")))
	assert.Equal(t, 20.0, testutil.ToFloat64(c.tokenizerTokensTotal.WithLabelValues("managed_bpe")))
	// 失败的计数不产生 trained 的 token 序列
	assert.Equal(t, 1, testutil.CollectAndCount(c.tokenizerTokensTotal))
}

func TestCollector_ObserveArtifactLoad(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ObserveArtifactLoad("mistral", 20*time.Millisecond, nil)
	c.ObserveArtifactLoad("yi", time.Millisecond, errors.New("no such file"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.artifactLoadsTotal.WithLabelValues("mistral", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.artifactLoadsTotal.WithLabelValues("yi", "error")))
}

func TestCollector_LookupResults(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ObserveRegistryLookup(true)
	c.ObserveRegistryLookup(true)
	c.ObserveRegistryLookup(false)
	c.ObserveCountCache(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.registryLookupsTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.registryLookupsTotal.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.countCacheLookups.WithLabelValues("miss")))
}

func TestCollector_Database(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordDBConnections("postgres", 10, 5)
	c.RecordDBQuery("postgres", "insert", 20*time.Millisecond)

	assert.Equal(t, 10.0, testutil.ToFloat64(c.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.dbConnectionsIdle.WithLabelValues("postgres")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.dbQueryDuration))
}

func TestCollector_ExposedNames(t *testing.T) {
	c, reg := newTestCollector(t)
	c.ObserveCount("trained", 3, time.Millisecond, nil)

	expected := `
# HELP llmgate_tokenizer_count_total Total number of token count operations
# TYPE llmgate_tokenizer_count_total counter
llmgate_tokenizer_count_total{family="trained",status="success"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "llmgate_tokenizer_count_total"))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c, _ := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordHTTPRequest("GET", "/health", 200, time.Millisecond, 0, 10)
			c.ObserveCount("managed_bpe", 1, time.Millisecond, nil)
			c.ObserveRegistryLookup(true)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(c.tokenizerCountTotal.WithLabelValues("managed_bpe", "success")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
}

func TestNewCollector_DefaultRegistry(t *testing.T) {
	// 默认 registry 是全局的，namespace 必须唯一
	c := NewCollector("llmgate_default_registry_test", nil)
	assert.NotNil(t, c)
}
