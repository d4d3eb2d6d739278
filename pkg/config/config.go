// Package config resolves parla settings: built-in defaults, then an
// optional YAML file, then PARLA_* environment variables. Command-line flags
// are applied last by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/parla/pkg/scenario"
	"github.com/ormasoftchile/parla/pkg/unlock"
)

// Gateway providers.
const (
	ProviderAuto    = "auto"
	ProviderOpenAI  = "openai"
	ProviderOffline = "offline"
)

// Endpoints used when no base URL is configured.
const (
	DeepSeekBaseURL = "https://api.deepseek.com"
	DeepSeekModel   = "deepseek-chat"
	OpenAIBaseURL   = "https://api.openai.com/v1/"
	OpenAIModel     = "gpt-4o-mini"
)

// Config is the resolved configuration.
type Config struct {
	Home        string            `yaml:"-"            env:"HOME"`
	LessonsDir  string            `yaml:"lessons_dir"  env:"LESSONS_DIR"`
	Language    string            `yaml:"language"     env:"LANGUAGE"` // native-target, e.g. "en-nl"
	Entitled    bool              `yaml:"entitled"     env:"ENTITLED"`
	Gate        string            `yaml:"gate"         env:"GATE"`
	TypingDelay time.Duration     `yaml:"typing_delay" env:"TYPING_DELAY"`
	Gateway     GatewayConfig     `yaml:"gateway"      envPrefix:"GATEWAY_"`
	Progress    ProgressConfig    `yaml:"progress"     envPrefix:"PROGRESS_"`
	Log         LogConfig         `yaml:"log"          envPrefix:"LOG_"`
	Trace       TraceConfig       `yaml:"trace"        envPrefix:"TRACE_"`
	Messages    scenario.Messages `yaml:"messages"`
}

// GatewayConfig configures the text-generation service.
type GatewayConfig struct {
	Provider            string        `yaml:"provider"             env:"PROVIDER"`
	BaseURL             string        `yaml:"base_url"             env:"BASE_URL"`
	Model               string        `yaml:"model"                env:"MODEL"`
	APIKey              string        `yaml:"-"                    env:"API_KEY"`
	SchemaMode          string        `yaml:"schema_mode"          env:"SCHEMA_MODE"`
	Timeout             time.Duration `yaml:"timeout"              env:"TIMEOUT"`
	MaxRetries          int           `yaml:"max_retries"          env:"MAX_RETRIES"`
	MaxTokens           int64         `yaml:"max_tokens"           env:"MAX_TOKENS"`
	EvaluateTemperature float64       `yaml:"evaluate_temperature" env:"EVALUATE_TEMPERATURE"`
	ExtractTemperature  float64       `yaml:"extract_temperature"  env:"EXTRACT_TEMPERATURE"`
	ReplyTemperature    float64       `yaml:"reply_temperature"    env:"REPLY_TEMPERATURE"`
	HideRawResponses    bool          `yaml:"hide_raw_responses"   env:"HIDE_RAW_RESPONSES"`
	ErrorHint           string        `yaml:"error_hint"           env:"ERROR_HINT"`
}

// ProgressConfig selects the progress backend.
type ProgressConfig struct {
	Backend string `yaml:"backend" env:"BACKEND"` // json, sqlite, memory
	Path    string `yaml:"path"    env:"PATH"`
}

// LogConfig configures the file logger.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	File   string `yaml:"file"   env:"FILE"`
}

// TraceConfig configures tracing.
type TraceConfig struct {
	Exporter string `yaml:"exporter" env:"EXPORTER"` // off, stdout, otlp
	File     string `yaml:"file"     env:"FILE"`
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	Insecure bool   `yaml:"insecure" env:"INSECURE"`
}

// providerKeys are the vendor variables accepted without the PARLA_ prefix.
type providerKeys struct {
	DeepSeek string `env:"DEEPSEEK_API_KEY"`
	OpenAI   string `env:"OPENAI_API_KEY"`
}

// Default returns the built-in configuration rooted at home.
func Default(home string) *Config {
	return &Config{
		Home:        home,
		LessonsDir:  "lessons",
		Language:    "en-nl",
		Gate:        unlock.DefaultGate,
		TypingDelay: 20 * time.Millisecond,
		Gateway: GatewayConfig{
			Provider:            ProviderAuto,
			Timeout:             60 * time.Second,
			MaxRetries:          2,
			MaxTokens:           150,
			EvaluateTemperature: 0.7,
			ExtractTemperature:  0.1,
			ReplyTemperature:    0.7,
			ErrorHint:           "Use your own API key to avoid connection issues!",
		},
		Progress: ProgressConfig{Backend: "json"},
		Log:      LogConfig{Level: "info", Format: "json"},
		Trace:    TraceConfig{Exporter: "off"},
		Messages: scenario.DefaultMessages(),
	}
}

// DefaultHome returns $PARLA_HOME or ~/.parla.
func DefaultHome() string {
	if h := os.Getenv("PARLA_HOME"); h != "" {
		return h
	}
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".parla")
	}
	return ".parla"
}

// Load resolves defaults, the config file and the environment, then applies
// overrides (command-line flags) before deriving paths. An empty file means
// <home>/config.yaml when it exists.
func Load(file string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default(DefaultHome())

	explicit := file != ""
	if !explicit {
		file = filepath.Join(cfg.Home, "config.yaml")
	}
	data, err := os.ReadFile(file)
	switch {
	case err == nil:
		if err := decodeFile(data, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", file, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "PARLA_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	var keys providerKeys
	if err := env.Parse(&keys); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyKeys(keys)
	for _, o := range overrides {
		o(cfg)
	}
	cfg.Resolve()
	return cfg, nil
}

func decodeFile(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// applyKeys picks the API key and, for a bare OPENAI_API_KEY, switches the
// endpoint defaults from DeepSeek to OpenAI.
func (c *Config) applyKeys(k providerKeys) {
	if c.Gateway.APIKey != "" {
		return
	}
	switch {
	case k.DeepSeek != "":
		c.Gateway.APIKey = k.DeepSeek
	case k.OpenAI != "":
		c.Gateway.APIKey = k.OpenAI
		if c.Gateway.BaseURL == "" {
			c.Gateway.BaseURL = OpenAIBaseURL
		}
		if c.Gateway.Model == "" {
			c.Gateway.Model = OpenAIModel
		}
	}
}

// Resolve fills derived fields left empty. It is idempotent.
func (c *Config) Resolve() {
	if c.Gateway.BaseURL == "" {
		c.Gateway.BaseURL = DeepSeekBaseURL
	}
	if c.Gateway.Model == "" {
		if c.Gateway.BaseURL == OpenAIBaseURL {
			c.Gateway.Model = OpenAIModel
		} else {
			c.Gateway.Model = DeepSeekModel
		}
	}
	if c.Gateway.SchemaMode == "" {
		if strings.Contains(c.Gateway.BaseURL, "deepseek") {
			c.Gateway.SchemaMode = "json_object"
		} else {
			c.Gateway.SchemaMode = "json_schema"
		}
	}
	if c.Progress.Path == "" {
		name := "progress.json"
		if c.Progress.Backend == "sqlite" {
			name = "progress.db"
		}
		c.Progress.Path = filepath.Join(c.Home, name)
	}
	if c.Log.File == "" {
		c.Log.File = filepath.Join(c.Home, "parla.log")
	}
	if c.Trace.File == "" {
		c.Trace.File = filepath.Join(c.Home, "traces.json")
	}
}

// Provider returns the effective gateway provider.
func (c *Config) Provider() string {
	if c.Gateway.Provider != ProviderAuto {
		return c.Gateway.Provider
	}
	if c.Gateway.APIKey != "" {
		return ProviderOpenAI
	}
	return ProviderOffline
}

// Languages parses the native and target language tags.
func (c *Config) Languages() (native, target language.Tag, err error) {
	a, b, ok := strings.Cut(c.Language, "-")
	if !ok {
		return language.Und, language.Und, fmt.Errorf("language %q: want native-target, e.g. en-nl", c.Language)
	}
	if native, err = language.Parse(a); err != nil {
		return language.Und, language.Und, fmt.Errorf("native language %q: %w", a, err)
	}
	if target, err = language.Parse(b); err != nil {
		return language.Und, language.Und, fmt.Errorf("target language %q: %w", b, err)
	}
	return native, target, nil
}

// TargetLanguageName returns the English name of the target language,
// e.g. "Dutch".
func (c *Config) TargetLanguageName() string {
	_, target, err := c.Languages()
	if err != nil {
		return "the target language"
	}
	return display.English.Tags().Name(target)
}

// Validate returns the first configuration problem.
func (c *Config) Validate() error {
	if c.LessonsDir == "" {
		return errors.New("lessons_dir is required")
	}
	if _, _, err := c.Languages(); err != nil {
		return err
	}
	if _, err := unlock.NewPolicy(c.Gate, c.Entitled); err != nil {
		return err
	}
	if c.TypingDelay < 0 {
		return errors.New("typing_delay must not be negative")
	}
	if !slices.Contains([]string{ProviderAuto, ProviderOpenAI, ProviderOffline}, c.Gateway.Provider) {
		return fmt.Errorf("gateway.provider %q: want auto, openai or offline", c.Gateway.Provider)
	}
	if c.Gateway.Provider == ProviderOpenAI && c.Gateway.APIKey == "" {
		return errors.New("gateway.provider openai needs an API key (PARLA_GATEWAY_API_KEY, DEEPSEEK_API_KEY or OPENAI_API_KEY)")
	}
	if !slices.Contains([]string{"json_schema", "json_object"}, c.Gateway.SchemaMode) {
		return fmt.Errorf("gateway.schema_mode %q: want json_schema or json_object", c.Gateway.SchemaMode)
	}
	for name, t := range map[string]float64{
		"evaluate_temperature": c.Gateway.EvaluateTemperature,
		"extract_temperature":  c.Gateway.ExtractTemperature,
		"reply_temperature":    c.Gateway.ReplyTemperature,
	} {
		if t < 0 || t > 2 {
			return fmt.Errorf("gateway.%s %.2f out of range [0,2]", name, t)
		}
	}
	if c.Gateway.MaxRetries < 0 {
		return errors.New("gateway.max_retries must not be negative")
	}
	if !slices.Contains([]string{"json", "sqlite", "memory"}, c.Progress.Backend) {
		return fmt.Errorf("progress.backend %q: want json, sqlite or memory", c.Progress.Backend)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("log.level %q: want debug, info, warn or error", c.Log.Level)
	}
	if !slices.Contains([]string{"json", "console"}, c.Log.Format) {
		return fmt.Errorf("log.format %q: want json or console", c.Log.Format)
	}
	if !slices.Contains([]string{"off", "stdout", "otlp"}, c.Trace.Exporter) {
		return fmt.Errorf("trace.exporter %q: want off, stdout or otlp", c.Trace.Exporter)
	}
	return nil
}
