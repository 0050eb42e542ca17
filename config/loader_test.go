// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "./tokenizers", cfg.Tokenizer.Dir)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "config.yaml", `
server:
  host: "127.0.0.1"
  http_port: 8888
  read_timeout: 60s
  api_keys: ["k1", "k2"]

tokenizer:
  dir: "/srv/tokenizers"
  cache_enabled: true
  count_cache_ttl: 1h
  preload: ["mistral", "qwen2"]

redis:
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

log:
  level: "debug"
  format: "console"
`)

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)

	assert.Equal(t, "/srv/tokenizers", cfg.Tokenizer.Dir)
	assert.True(t, cfg.Tokenizer.CacheEnabled)
	assert.Equal(t, time.Hour, cfg.Tokenizer.CountCacheTTL)
	assert.Equal(t, []string{"mistral", "qwen2"}, cfg.Tokenizer.Preload)

	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, 1, cfg.Redis.DB)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	// 未出现在文件中的字段保持默认值
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("LLMGATE_SERVER_HTTP_PORT", "7777")
	t.Setenv("LLMGATE_SERVER_API_KEYS", "a, b")
	t.Setenv("LLMGATE_TOKENIZER_DIR", "/env/tokenizers")
	t.Setenv("LLMGATE_TOKENIZER_COUNT_CACHE_TTL", "30s")
	t.Setenv("LLMGATE_TOKENIZER_CACHE_ENABLED", "true")
	t.Setenv("LLMGATE_TELEMETRY_SAMPLE_RATE", "0.5")
	t.Setenv("LLMGATE_LOG_LEVEL", "warn")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, []string{"a", "b"}, cfg.Server.APIKeys)
	assert.Equal(t, "/env/tokenizers", cfg.Tokenizer.Dir)
	assert.Equal(t, 30*time.Second, cfg.Tokenizer.CountCacheTTL)
	assert.True(t, cfg.Tokenizer.CacheEnabled)
	assert.InDelta(t, 0.5, cfg.Telemetry.SampleRate, 1e-9)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "config.yaml", `
server:
  http_port: 8888
tokenizer:
  dir: "/yaml/tokenizers"
log:
  level: "debug"
`)
	t.Setenv("LLMGATE_SERVER_HTTP_PORT", "9999")
	t.Setenv("LLMGATE_TOKENIZER_DIR", "/env/tokenizers")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "/env/tokenizers", cfg.Tokenizer.Dir)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("LLMGATE_SERVER_HTTP_PORT", "not-a-port")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLMGATE_SERVER_HTTP_PORT")
}

func TestLoader_WithValidator(t *testing.T) {
	validator := func(cfg *Config) error {
		if cfg.Server.HTTPPort < 1024 {
			return assert.AnError
		}
		return nil
	}
	t.Setenv("LLMGATE_SERVER_HTTP_PORT", "80")

	_, err := NewLoader().WithValidator(validator).Load()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/non/existent/path/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "invalid.yaml", `
server:
  http_port: [invalid
  this is not valid yaml
`)

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

// --- settings 目录分层 ---

func TestLoader_SettingsDir_ProfileLayering(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
server:
  host: "localhost"
  http_port: 8000
tokenizer:
  dir: "/base/tokenizers"
`)
	writeFile(t, dir, "prod.yaml", `
server:
  http_port: 80
`)
	writeFile(t, dir, "dev.yaml", `
server:
  http_port: 3000
`)

	t.Setenv(EnvAppProfile, "prod")
	cfg, err := NewLoader().WithSettingsDir(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.Server.HTTPPort)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "/base/tokenizers", cfg.Tokenizer.Dir)

	t.Setenv(EnvAppProfile, "")
	cfg, err = NewLoader().WithSettingsDir(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.HTTPPort)
}

func TestLoader_SettingsDir_ConfigFileAndEnvWin(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "server:\n  http_port: 8000\n  metrics_port: 8001\n")
	configPath := writeFile(t, t.TempDir(), "override.yaml", "server:\n  http_port: 8100\n")

	t.Setenv(EnvAppProfile, "test")
	t.Setenv("LLMGATE_SERVER_METRICS_PORT", "8200")

	cfg, err := NewLoader().WithSettingsDir(dir).WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, 8100, cfg.Server.HTTPPort)
	assert.Equal(t, 8200, cfg.Server.MetricsPort)
}

func TestLoader_SettingsDir_UnknownProfile(t *testing.T) {
	t.Setenv(EnvAppProfile, "staging")

	_, err := NewLoader().WithSettingsDir(t.TempDir()).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staging")
}

func TestParseProfile(t *testing.T) {
	tests := []struct {
		in      string
		want    EnvProfile
		wantErr bool
	}{
		{"", ProfileDev, false},
		{"dev", ProfileDev, false},
		{"TEST", ProfileTest, false},
		{" prod ", ProfileProd, false},
		{"qa", "", true},
	}
	for _, tt := range tests {
		got, err := ParseProfile(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid default config", func(c *Config) {}, false},
		{"ephemeral port", func(c *Config) { c.Server.HTTPPort = 0; c.Server.MetricsPort = 0 }, false},
		{"negative HTTP port", func(c *Config) { c.Server.HTTPPort = -1 }, true},
		{"HTTP port too large", func(c *Config) { c.Server.HTTPPort = 70000 }, true},
		{"metrics port clash", func(c *Config) { c.Server.MetricsPort = c.Server.HTTPPort }, true},
		{"negative cache ttl", func(c *Config) { c.Tokenizer.CountCacheTTL = -time.Second }, true},
		{"unknown database driver", func(c *Config) { c.Database.Driver = "oracle" }, true},
		{"sqlite driver", func(c *Config) { c.Database.Driver = "sqlite" }, false},
		{"unknown exporter", func(c *Config) { c.Telemetry.Exporter = "zipkin" }, true},
		{"sample rate too high", func(c *Config) { c.Telemetry.SampleRate = 1.5 }, true},
		{"negative rate limit", func(c *Config) { c.Server.RateLimitRPS = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{Host: "localhost", HTTPPort: 8080, MetricsPort: 9091}

	assert.Equal(t, "localhost:8080", cfg.Address())
	assert.Equal(t, "http://localhost:8080", cfg.HTTPAddress())
	assert.Equal(t, "localhost:9091", cfg.MetricsAddress())

	v6 := ServerConfig{Host: "::1", HTTPPort: 80}
	assert.Equal(t, "[::1]:80", v6.Address())
}

func TestJWTConfig_Enabled(t *testing.T) {
	assert.False(t, JWTConfig{}.Enabled())
	assert.True(t, JWTConfig{Secret: "s"}.Enabled())
	assert.True(t, JWTConfig{PublicKey: "pem"}.Enabled())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "postgres DSN",
			config: DatabaseConfig{
				Driver: "postgres", Host: "localhost", Port: 5432,
				User: "user", Password: "pass", Name: "dbname", SSLMode: "disable",
			},
			expected: "host=localhost port=5432 user=user password=pass dbname=dbname sslmode=disable",
		},
		{
			name: "mysql DSN",
			config: DatabaseConfig{
				Driver: "mysql", Host: "localhost", Port: 3306,
				User: "user", Password: "pass", Name: "dbname",
			},
			expected: "user:pass@tcp(localhost:3306)/dbname?parseTime=true",
		},
		{
			name:     "sqlite DSN",
			config:   DatabaseConfig{Driver: "sqlite", Name: "/path/to/db.sqlite"},
			expected: "/path/to/db.sqlite",
		},
		{
			name:     "unknown driver",
			config:   DatabaseConfig{Driver: "unknown"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

// --- MustLoad 测试 ---

func TestMustLoad_Success(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "config.yaml", "server:\n  http_port: 8080\n")

	assert.NotPanics(t, func() {
		cfg := MustLoad(configPath)
		assert.Equal(t, 8080, cfg.Server.HTTPPort)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "invalid.yaml", "invalid: [yaml")

	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}

func TestLoadFromEnv_Function(t *testing.T) {
	t.Setenv("LLMGATE_TOKENIZER_DIR", "/only/env")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/only/env", cfg.Tokenizer.Dir)
}
