package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "PARLA_") || name == "DEEPSEEK_API_KEY" || name == "OPENAI_API_KEY" {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
	t.Setenv("PARLA_HOME", t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Provider() != ProviderOffline {
		t.Errorf("provider = %q, want offline without a key", cfg.Provider())
	}
	if cfg.Gateway.BaseURL != DeepSeekBaseURL || cfg.Gateway.Model != DeepSeekModel {
		t.Errorf("endpoint = %s %s", cfg.Gateway.BaseURL, cfg.Gateway.Model)
	}
	if cfg.Gateway.SchemaMode != "json_object" {
		t.Errorf("schema mode = %q, want json_object for deepseek", cfg.Gateway.SchemaMode)
	}
	if cfg.Gateway.MaxRetries != 2 {
		t.Errorf("max retries = %d, want 2", cfg.Gateway.MaxRetries)
	}
	if cfg.TypingDelay != 20*time.Millisecond {
		t.Errorf("typing delay = %v", cfg.TypingDelay)
	}
	if want := filepath.Join(cfg.Home, "progress.json"); cfg.Progress.Path != want {
		t.Errorf("progress path = %q, want %q", cfg.Progress.Path, want)
	}
	if got := cfg.TargetLanguageName(); got != "Dutch" {
		t.Errorf("target language = %q, want Dutch", got)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "parla.yaml")
	body := `lessons_dir: /data/lessons
entitled: true
gateway:
  timeout: 5s
  reply_temperature: 0.3
progress:
  backend: sqlite
messages:
  retry: "Nog een keer!"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PARLA_LESSONS_DIR", "/env/lessons")
	t.Setenv("PARLA_GATEWAY_MAX_RETRIES", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LessonsDir != "/env/lessons" {
		t.Errorf("lessons dir = %q, env should win over file", cfg.LessonsDir)
	}
	if !cfg.Entitled {
		t.Error("entitled not read from file")
	}
	if cfg.Gateway.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", cfg.Gateway.Timeout)
	}
	if cfg.Gateway.ReplyTemperature != 0.3 {
		t.Errorf("reply temperature = %v", cfg.Gateway.ReplyTemperature)
	}
	if cfg.Gateway.MaxRetries != 5 {
		t.Errorf("max retries = %d, want 5", cfg.Gateway.MaxRetries)
	}
	if want := filepath.Join(cfg.Home, "progress.db"); cfg.Progress.Path != want {
		t.Errorf("progress path = %q, want %q", cfg.Progress.Path, want)
	}
	if cfg.Messages.Retry != "Nog een keer!" {
		t.Errorf("retry message = %q", cfg.Messages.Retry)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("", func(c *Config) {
		c.Progress.Backend = "sqlite"
		c.Gateway.Provider = ProviderOffline
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(cfg.Home, "progress.db"); cfg.Progress.Path != want {
		t.Errorf("progress path = %q, want %q derived after overrides", cfg.Progress.Path, want)
	}
	if cfg.Provider() != ProviderOffline {
		t.Errorf("provider = %q", cfg.Provider())
	}
}

func TestLoadUnknownField(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("lesons_dir: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit file")
	}
}

func TestProviderKeys(t *testing.T) {
	t.Run("deepseek", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DEEPSEEK_API_KEY", "sk-ds")
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Gateway.APIKey != "sk-ds" || cfg.Provider() != ProviderOpenAI {
			t.Errorf("key=%q provider=%q", cfg.Gateway.APIKey, cfg.Provider())
		}
		if cfg.Gateway.BaseURL != DeepSeekBaseURL {
			t.Errorf("base url = %q", cfg.Gateway.BaseURL)
		}
	})
	t.Run("openai", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "sk-oa")
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Gateway.BaseURL != OpenAIBaseURL || cfg.Gateway.Model != OpenAIModel {
			t.Errorf("endpoint = %s %s", cfg.Gateway.BaseURL, cfg.Gateway.Model)
		}
		if cfg.Gateway.SchemaMode != "json_schema" {
			t.Errorf("schema mode = %q, want json_schema", cfg.Gateway.SchemaMode)
		}
	})
	t.Run("explicit wins", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PARLA_GATEWAY_API_KEY", "sk-parla")
		t.Setenv("DEEPSEEK_API_KEY", "sk-ds")
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Gateway.APIKey != "sk-parla" {
			t.Errorf("key = %q, want sk-parla", cfg.Gateway.APIKey)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"language", func(c *Config) { c.Language = "dutch" }, "native-target"},
		{"gate", func(c *Config) { c.Gate = "number %" }, "gate"},
		{"provider", func(c *Config) { c.Gateway.Provider = "claude" }, "gateway.provider"},
		{"missing key", func(c *Config) { c.Gateway.Provider = ProviderOpenAI }, "API key"},
		{"temperature", func(c *Config) { c.Gateway.ReplyTemperature = 3 }, "reply_temperature"},
		{"backend", func(c *Config) { c.Progress.Backend = "redis" }, "progress.backend"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"exporter", func(c *Config) { c.Trace.Exporter = "zipkin" }, "trace.exporter"},
		{"typing delay", func(c *Config) { c.TypingDelay = -time.Millisecond }, "typing_delay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			cfg.Resolve()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}
