// Package bootstrap wires a resolved configuration into a running engine:
// logger, tracer, lesson store, progress store, unlock checker and gateway.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"

	"github.com/ormasoftchile/parla/pkg/config"
	"github.com/ormasoftchile/parla/pkg/engine"
	"github.com/ormasoftchile/parla/pkg/gateway"
	"github.com/ormasoftchile/parla/pkg/lesson"
	"github.com/ormasoftchile/parla/pkg/logging"
	"github.com/ormasoftchile/parla/pkg/progress"
	"github.com/ormasoftchile/parla/pkg/telemetry"
	"github.com/ormasoftchile/parla/pkg/unlock"
)

// Runtime is everything a front end needs. Close releases it.
type Runtime struct {
	Config   *config.Config
	Log      *logging.Logger
	Tracer   trace.Tracer
	Lessons  *lesson.Store
	Progress progress.Store
	Unlock   *unlock.Checker
	Gateway  gateway.Gateway
	Engine   *engine.Engine

	shutdown telemetry.Shutdown
}

// Options tweak the build for a particular front end.
type Options struct {
	Version string
	// Log overrides the configured file logger, e.g. for tests.
	Log *logging.Logger
}

// Build validates cfg and constructs the runtime.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	rt := &Runtime{Config: cfg, Log: opts.Log}

	if rt.Log == nil {
		log, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
		if err != nil {
			return nil, err
		}
		rt.Log = log
	}

	tracer, shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Exporter: cfg.Trace.Exporter,
		File:     cfg.Trace.File,
		Endpoint: cfg.Trace.Endpoint,
		Insecure: cfg.Trace.Insecure,
		Version:  opts.Version,
	})
	if err != nil {
		return nil, err
	}
	rt.Tracer, rt.shutdown = tracer, shutdown

	rt.Lessons, err = lesson.LoadDir(ctx, cfg.LessonsDir, rt.Log)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}

	rt.Progress, err = openProgress(cfg.Progress, rt.Log)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}

	policy, err := unlock.NewPolicy(cfg.Gate, cfg.Entitled)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	order := make([]string, 0, len(rt.Lessons.Lessons()))
	for _, l := range rt.Lessons.Lessons() {
		order = append(order, l.ID)
	}
	rt.Unlock = unlock.NewChecker(policy, order, rt.Progress)

	rt.Gateway, err = newGateway(cfg, rt.Log, rt.Tracer)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}

	rt.Engine, err = engine.New(engine.Deps{
		Lessons:          rt.Lessons,
		Progress:         rt.Progress,
		Gateway:          rt.Gateway,
		Unlock:           rt.Unlock,
		Log:              rt.Log,
		Tracer:           rt.Tracer,
		Messages:         cfg.Messages,
		HideRawResponses: cfg.Gateway.HideRawResponses,
	})
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}

	rt.Log.Info("parla started",
		"lessons", len(rt.Lessons.Lessons()),
		"broken", len(rt.Lessons.Broken()),
		"provider", cfg.Provider(),
		"model", cfg.Gateway.Model,
		"progress", cfg.Progress.Backend,
	)
	return rt, nil
}

// OpenProgress opens only the progress store, for maintenance commands.
func OpenProgress(cfg *config.Config) (progress.Store, error) {
	return openProgress(cfg.Progress, logging.Nop())
}

// openProgress opens the configured store. A corrupt JSON document is moved
// aside to <path>.corrupt and replaced by an empty one.
func openProgress(cfg config.ProgressConfig, log *logging.Logger) (progress.Store, error) {
	if cfg.Backend != progress.BackendMemory {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create progress dir: %w", err)
		}
	}
	store, err := progress.Open(cfg.Backend, cfg.Path)
	if !errors.Is(err, progress.ErrCorrupt) {
		return store, err
	}
	aside := cfg.Path + ".corrupt"
	if rerr := os.Rename(cfg.Path, aside); rerr != nil {
		return nil, errors.Join(err, rerr)
	}
	log.Warn("discarding corrupt progress", "path", cfg.Path, "moved_to", aside, "error", err)
	return progress.Open(cfg.Backend, cfg.Path)
}

func newGateway(cfg *config.Config, log *logging.Logger, tracer trace.Tracer) (gateway.Gateway, error) {
	if cfg.Provider() == config.ProviderOffline {
		log.Warn("no API key configured, using the offline gateway")
		return gateway.NewOffline(), nil
	}
	g := cfg.Gateway
	return gateway.NewOpenAI(gateway.OpenAIConfig{
		APIKey:              g.APIKey,
		BaseURL:             g.BaseURL,
		Model:               g.Model,
		SchemaMode:          g.SchemaMode,
		Timeout:             g.Timeout,
		MaxRetries:          g.MaxRetries,
		Language:            cfg.TargetLanguageName(),
		EvaluateTemperature: g.EvaluateTemperature,
		ExtractTemperature:  g.ExtractTemperature,
		ReplyTemperature:    g.ReplyTemperature,
		MaxTokens:           g.MaxTokens,
		ErrorHint:           g.ErrorHint,
	}, log, tracer)
}

// Close flushes traces and logs and closes the progress store.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Progress != nil {
		errs = append(errs, rt.Progress.Close())
	}
	if rt.shutdown != nil {
		errs = append(errs, rt.shutdown(ctx))
	}
	rt.Log.Sync()
	return errors.Join(errs...)
}
