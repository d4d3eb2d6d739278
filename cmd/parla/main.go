package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/parla/pkg/bootstrap"
	"github.com/ormasoftchile/parla/pkg/config"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	loadDotEnv(".env")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadDotEnv reads KEY=VALUE lines from path and sets variables that are
// not already set. Comments (#) and blanks are skipped.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

var rootCmd = &cobra.Command{
	Use:           "parla",
	Short:         "Interactive language lessons with a conversational coach",
	Long:          "parla plays lesson documents in the terminal: vocabulary and grammar slides, plus goal-driven conversations evaluated by a language model.",
	SilenceUsage:  true,
	RunE:          runPlay,
}

// Global flags; each overrides the config file and environment when set.
var (
	flagConfig      string
	flagLessons     string
	flagBackend     string
	flagOffline     bool
	flagEntitled    bool
	flagTypingDelay time.Duration
	flagLogLevel    string
	flagTrace       string
)

// loadConfig resolves the configuration for cmd, applying changed flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	return config.Load(flagConfig, func(c *config.Config) {
		if flags.Changed("lessons") {
			c.LessonsDir = flagLessons
		}
		if flags.Changed("progress") {
			c.Progress.Backend = flagBackend
		}
		if flagOffline {
			c.Gateway.Provider = config.ProviderOffline
		}
		if flags.Changed("entitled") {
			c.Entitled = flagEntitled
		}
		if flags.Changed("typing-delay") {
			c.TypingDelay = flagTypingDelay
		}
		if flags.Changed("log-level") {
			c.Log.Level = flagLogLevel
		}
		if flags.Changed("trace") {
			c.Trace.Exporter = flagTrace
		}
	})
}

// buildRuntime loads the configuration and wires the engine.
func buildRuntime(cmd *cobra.Command) (*bootstrap.Runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return bootstrap.Build(cmd.Context(), cfg, bootstrap.Options{Version: version})
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default $PARLA_HOME/config.yaml)")
	pf.StringVar(&flagLessons, "lessons", "", "Directory of lesson documents")
	pf.StringVar(&flagBackend, "progress", "", "Progress backend: json, sqlite or memory")
	pf.BoolVar(&flagOffline, "offline", false, "Use the offline coach even when an API key is set")
	pf.BoolVar(&flagEntitled, "entitled", false, "Unlock premium lessons")
	pf.DurationVar(&flagTypingDelay, "typing-delay", 0, "Per-character reveal delay for coach messages (0 disables)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&flagTrace, "trace", "", "Trace exporter: off, stdout or otlp")

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(lessonsCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)

	schemaCmd.AddCommand(schemaExportCmd)
	progressCmd.AddCommand(progressShowCmd)
	progressCmd.AddCommand(progressResetCmd)
	progressResetCmd.Flags().BoolVar(&resetYes, "yes", false, "Confirm deleting all progress")
}
