package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ModeSearch, cfg.Crawl.Mode)
	assert.Equal(t, 8, cfg.Crawl.Workers)
	assert.Equal(t, 5, cfg.Crawl.RetryBudget)
	assert.Equal(t, 1*time.Second, cfg.Crawl.PageDelay)
	assert.Equal(t, 10*time.Second, cfg.Crawl.TransientDelay)
	assert.Equal(t, 10*time.Second, cfg.Crawl.RateLimitPadding)
	assert.Equal(t, 60*time.Second, cfg.Crawl.RateLimitFallback)
	assert.Equal(t, 5*time.Second, cfg.Crawl.LanePollInterval)
	assert.Equal(t, 200, cfg.Crawl.TimelinePageSize)
	assert.Equal(t, 100, cfg.Crawl.SearchPageSize)

	assert.Equal(t, 30*time.Second, cfg.Platform.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.Proxy.CheckTimeout)
	assert.Equal(t, "./data/", cfg.Output.BaseDirectory)

	assert.Equal(t, 50, cfg.Logging.MaxSize)
	assert.Equal(t, 10, cfg.Logging.MaxBackups)

	assert.NoError(t, cfg.Validate())
}

func TestProgressPath(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "search.json", cfg.ProgressPath())

	cfg.Crawl.Mode = ModeTimeline
	assert.Equal(t, "users.json", cfg.ProgressPath())

	cfg.Progress.File = "/var/lib/twtracker/progress.json"
	assert.Equal(t, "/var/lib/twtracker/progress.json", cfg.ProgressPath())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TWTRACKER_MODE", "timeline")
	t.Setenv("TWTRACKER_WORKERS", "3")
	t.Setenv("TWTRACKER_TRANSIENT_DELAY", "2s")
	t.Setenv("TWTRACKER_OUTPUT_DIR", "/tmp/test-data")
	t.Setenv("TWTRACKER_PROXY_PRECHECK", "false")
	t.Setenv("TWTRACKER_REDIS_ADDR", "localhost:6379")
	t.Setenv("TWTRACKER_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, ModeTimeline, cfg.Crawl.Mode)
	assert.Equal(t, 3, cfg.Crawl.Workers)
	assert.Equal(t, 2*time.Second, cfg.Crawl.TransientDelay)
	assert.Equal(t, "/tmp/test-data", cfg.Output.BaseDirectory)
	assert.False(t, cfg.Proxy.Precheck)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvInvalidValues(t *testing.T) {
	t.Setenv("TWTRACKER_WORKERS", "many")
	t.Setenv("TWTRACKER_TRANSIENT_DELAY", "ten seconds")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TWTRACKER_WORKERS")
	assert.Contains(t, err.Error(), "TWTRACKER_TRANSIENT_DELAY")
	assert.Equal(t, 8, cfg.Crawl.Workers)
}

func TestLoadFromFile(t *testing.T) {
	t.Run("valid yaml file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		content := `
crawl:
  mode: timeline
  workers: 4
  retry_budget: 3
  transient_delay: 500ms
  lane_poll_interval: 1m30s
platform:
  base_url: http://localhost:8080
proxy:
  file: proxies.json
  check_timeout: 2s
redis:
  addr: redis:6379
  db: 2
logging:
  level: warn
  file: /var/log/twtracker.log
  max_size: 20
`
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

		cfg := DefaultConfig()
		require.NoError(t, cfg.LoadFromFile(configPath))

		assert.Equal(t, ModeTimeline, cfg.Crawl.Mode)
		assert.Equal(t, 4, cfg.Crawl.Workers)
		assert.Equal(t, 3, cfg.Crawl.RetryBudget)
		assert.Equal(t, 500*time.Millisecond, cfg.Crawl.TransientDelay)
		assert.Equal(t, 90*time.Second, cfg.Crawl.LanePollInterval)
		assert.Equal(t, "http://localhost:8080", cfg.Platform.BaseURL)
		assert.Equal(t, "proxies.json", cfg.Proxy.File)
		assert.Equal(t, 2*time.Second, cfg.Proxy.CheckTimeout)
		assert.Equal(t, "redis:6379", cfg.Redis.Addr)
		assert.Equal(t, 2, cfg.Redis.DB)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, 20, cfg.Logging.MaxSize)
		// untouched keys keep their defaults
		assert.Equal(t, 10, cfg.Logging.MaxBackups)
		assert.Equal(t, 1*time.Second, cfg.Crawl.PageDelay)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "invalid.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("crawl:\n  mode: [broken\n"), 0644))

		err := DefaultConfig().LoadFromFile(configPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("non-existent file", func(t *testing.T) {
		err := DefaultConfig().LoadFromFile("/non/existent/path/config.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})
}

func TestFindConfigFile(t *testing.T) {
	tempDir := t.TempDir()
	chdir(t, tempDir)

	cfg := DefaultConfig()
	assert.Empty(t, cfg.findConfigFile())

	require.NoError(t, os.WriteFile(filepath.Join(tempDir, ".twtracker.yaml"), []byte("crawl: {}\n"), 0644))
	assert.Equal(t, ".twtracker.yaml", cfg.findConfigFile())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown mode", func(c *Config) { c.Crawl.Mode = "stream" }, true},
		{"zero workers", func(c *Config) { c.Crawl.Workers = 0 }, true},
		{"zero retry budget", func(c *Config) { c.Crawl.RetryBudget = 0 }, true},
		{"timeline page over platform max", func(c *Config) { c.Crawl.TimelinePageSize = 201 }, true},
		{"search page over platform max", func(c *Config) { c.Crawl.SearchPageSize = 101 }, true},
		{"missing output", func(c *Config) { c.Output.BaseDirectory = "" }, true},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"zero page delay allowed", func(c *Config) { c.Crawl.PageDelay = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()

	cfg.MergeCommandLineFlags(map[string]interface{}{
		"mode":         ModeTimeline,
		"credentials":  "keys.json",
		"proxies":      "proxies.json",
		"no-precheck":  true,
		"output":       "/flag/output",
		"progress":     "users.json",
		"workers":      2,
		"metrics-addr": ":9090",
		"log-level":    "error",
	})

	assert.Equal(t, ModeTimeline, cfg.Crawl.Mode)
	assert.Equal(t, "keys.json", cfg.Crawl.CredentialsFile)
	assert.Equal(t, "proxies.json", cfg.Proxy.File)
	assert.False(t, cfg.Proxy.Precheck)
	assert.Equal(t, "/flag/output", cfg.Output.BaseDirectory)
	assert.Equal(t, "users.json", cfg.Progress.File)
	assert.Equal(t, 2, cfg.Crawl.Workers)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Equal(t, "error", cfg.Logging.Level)

	// empty and zero values are ignored
	cfg.MergeCommandLineFlags(map[string]interface{}{"output": "", "workers": 0})
	assert.Equal(t, "/flag/output", cfg.Output.BaseDirectory)
	assert.Equal(t, 2, cfg.Crawl.Workers)
}

func TestSaveAndLoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Crawl.Workers = 6
	cfg.Redis.Addr = "cache:6379"
	require.NoError(t, cfg.Save(configPath))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(configPath))
	assert.Equal(t, 6, loaded.Crawl.Workers)
	assert.Equal(t, "cache:6379", loaded.Redis.Addr)
	assert.Equal(t, cfg.Crawl.TransientDelay, loaded.Crawl.TransientDelay)
}

func TestLoad(t *testing.T) {
	t.Run("precedence order", func(t *testing.T) {
		chdir(t, t.TempDir())

		configPath := filepath.Join(t.TempDir(), "config.yaml")
		content := `
crawl:
  workers: 4
  retry_budget: 7
output:
  base_directory: /file/output
`
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
		t.Setenv("TWTRACKER_OUTPUT_DIR", "/env/output")
		t.Setenv("TWTRACKER_WORKERS", "5")

		cfg, err := Load(configPath, map[string]interface{}{"workers": 2})
		require.NoError(t, err)

		assert.Equal(t, 2, cfg.Crawl.Workers)                    // flag
		assert.Equal(t, "/env/output", cfg.Output.BaseDirectory) // env
		assert.Equal(t, 7, cfg.Crawl.RetryBudget)                // file
	})

	t.Run("loads .env file", func(t *testing.T) {
		dir := t.TempDir()
		chdir(t, dir)
		t.Setenv("TWTRACKER_METRICS_ADDR", "")
		os.Unsetenv("TWTRACKER_METRICS_ADDR")

		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TWTRACKER_METRICS_ADDR=:9100\n"), 0644))

		cfg, err := Load("", nil)
		require.NoError(t, err)
		assert.Equal(t, ":9100", cfg.Metrics.Addr)
	})

	t.Run("validation failure", func(t *testing.T) {
		chdir(t, t.TempDir())

		cfg, err := Load("", map[string]interface{}{"mode": "firehose"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration validation failed")
		assert.Nil(t, cfg)
	})
}

func TestDurationParsing(t *testing.T) {
	var cfg Config
	content := `
crawl:
  page_delay: 250ms
  rate_limit_fallback: 2m
platform:
  request_timeout: 45s
`
	require.NoError(t, yaml.Unmarshal([]byte(content), &cfg))

	assert.Equal(t, 250*time.Millisecond, cfg.Crawl.PageDelay)
	assert.Equal(t, 2*time.Minute, cfg.Crawl.RateLimitFallback)
	assert.Equal(t, 45*time.Second, cfg.Platform.RequestTimeout)
}

func BenchmarkValidate(b *testing.B) {
	cfg := DefaultConfig()
	for i := 0; i < b.N; i++ {
		_ = cfg.Validate()
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+): it changes the working
// directory for the duration of the test and restores it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(abs))
	t.Setenv("PWD", abs)
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
