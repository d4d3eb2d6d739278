// Package engine orchestrates scenario sessions: it gates entry on the unlock
// policy, drives the scenario state machine, calls the gateway off the UI
// loop and keeps the progress store in sync.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ormasoftchile/parla/pkg/gateway"
	"github.com/ormasoftchile/parla/pkg/lesson"
	"github.com/ormasoftchile/parla/pkg/logging"
	"github.com/ormasoftchile/parla/pkg/progress"
	"github.com/ormasoftchile/parla/pkg/scenario"
	"github.com/ormasoftchile/parla/pkg/unlock"
	"github.com/ormasoftchile/parla/pkg/vars"
)

var (
	// ErrBusy is returned when a turn is already being evaluated.
	ErrBusy = errors.New("a reply is already being evaluated")
	// ErrLocked is returned when the lesson is not unlocked.
	ErrLocked = errors.New("lesson is locked")
)

// Unlocker reports whether a lesson may be entered.
type Unlocker interface {
	IsUnlocked(lessonID string) bool
}

// Deps are the collaborators an Engine needs.
type Deps struct {
	Lessons  *lesson.Store
	Progress progress.Store
	Gateway  gateway.Gateway
	Unlock   Unlocker
	// Vars is the global variable context. When nil it is loaded from
	// Progress.
	Vars   *vars.Context
	Log    *logging.Logger
	Tracer trace.Tracer

	Messages         scenario.Messages
	HideRawResponses bool
}

// Engine creates sessions over shared collaborators. It keeps at most one
// live session per scenario.
type Engine struct {
	d Deps

	mu   sync.Mutex
	live map[sessionKey]*Session
}

type sessionKey struct{ lesson, scenario string }

// New validates deps and returns an Engine.
func New(d Deps) (*Engine, error) {
	if d.Lessons == nil || d.Progress == nil || d.Gateway == nil {
		return nil, errors.New("engine: lessons, progress and gateway are required")
	}
	if d.Unlock == nil {
		d.Unlock = allUnlocked{}
	}
	if d.Log == nil {
		d.Log = logging.Nop()
	}
	if d.Tracer == nil {
		d.Tracer = noop.NewTracerProvider().Tracer("parla/engine")
	}
	if d.Vars == nil {
		globals, err := d.Progress.GlobalVariables()
		if err != nil {
			d.Log.Warn("loading global variables failed", "error", err)
		}
		d.Vars = vars.NewContext(globals)
	}
	return &Engine{d: d, live: map[sessionKey]*Session{}}, nil
}

type allUnlocked struct{}

func (allUnlocked) IsUnlocked(string) bool { return true }

// Lessons returns the content store.
func (e *Engine) Lessons() *lesson.Store { return e.d.Lessons }

// Progress returns the progress store.
func (e *Engine) Progress() progress.Store { return e.d.Progress }

// Vars returns the global variable context.
func (e *Engine) Vars() *vars.Context { return e.d.Vars }

// IsUnlocked consults the unlock policy.
func (e *Engine) IsUnlocked(lessonID string) bool { return e.d.Unlock.IsUnlocked(lessonID) }

// LockReason explains the lock state of a lesson. Unlockers that cannot
// tell premium from progression report Progression for locked lessons.
func (e *Engine) LockReason(lessonID string) unlock.Reason {
	if r, ok := e.d.Unlock.(interface{ Reason(string) unlock.Reason }); ok {
		return r.Reason(lessonID)
	}
	if e.d.Unlock.IsUnlocked(lessonID) {
		return unlock.Unlocked
	}
	return unlock.Progression
}

// Check asks the gateway to correct a free-text answer. Failures come back
// as a visible message, never as an error.
func (e *Engine) Check(ctx context.Context, question, answer string) string {
	ctx, span := e.d.Tracer.Start(ctx, "engine.check")
	defer span.End()

	r := e.d.Gateway.OpenReply(ctx, []gateway.Message{gateway.CorrectionMessage(question, answer)}, nil)
	if r.Err != nil {
		e.d.Log.Warn("free-text check failed", "error", r.Err)
		return e.messages().ErrorPrefix + r.Text
	}
	return r.Text
}

func (e *Engine) messages() scenario.Messages {
	m := e.d.Messages
	if m.ErrorPrefix == "" {
		m.ErrorPrefix = scenario.DefaultMessages().ErrorPrefix
	}
	return m
}

// persist applies transition effects to the store. Failures are logged and
// swallowed; in-memory state stays authoritative.
func (e *Engine) persist(log *logging.Logger, lessonID string, m *scenario.Machine, fx scenario.Effects) {
	if len(fx.Globals) > 0 {
		if err := e.d.Progress.MergeGlobalVariables(fx.Globals); err != nil {
			log.Error("persist global variables failed", "error", err)
		}
	}
	if m.Scenario().ConceptCheck() {
		return
	}
	id := m.Scenario().ID
	switch {
	case fx.ClearProgress:
		if err := e.d.Progress.ClearScenarioProgress(lessonID, id); err != nil {
			log.Error("clear scenario progress failed", "error", err)
		}
	case fx.SaveProgress:
		e.saveProgress(log, lessonID, m)
	}
}

func (e *Engine) saveProgress(log *logging.Logger, lessonID string, m *scenario.Machine) {
	if m.Scenario().ConceptCheck() {
		return
	}
	if err := e.d.Progress.PutScenarioProgress(lessonID, m.Scenario().ID, m.Progress()); err != nil {
		log.Error("persist scenario progress failed", "error", err)
	}
}

func (e *Engine) concepts(sc *lesson.Scenario) []gateway.Concept {
	var out []gateway.Concept
	for _, id := range sc.Concepts {
		text, ok := e.d.Lessons.ConceptText(id)
		if !ok {
			e.d.Log.Warn("unknown concept id", "scenario", sc.ID, "concept", id)
			text = id
		}
		out = append(out, gateway.Concept{ID: id, Text: text})
	}
	return out
}

func lockedErr(lessonID string) error {
	return fmt.Errorf("lesson %q: %w", lessonID, ErrLocked)
}
