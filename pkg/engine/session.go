package engine

import (
	"context"
	"errors"
	"maps"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ormasoftchile/parla/pkg/gateway"
	"github.com/ormasoftchile/parla/pkg/lesson"
	"github.com/ormasoftchile/parla/pkg/logging"
	"github.com/ormasoftchile/parla/pkg/progress"
	"github.com/ormasoftchile/parla/pkg/scenario"
)

// Snapshot is the render state of a session. Front ends draw it and keep no
// business state of their own.
type Snapshot struct {
	SessionID    string            `json:"session_id"`
	LessonID     string            `json:"lesson_id"`
	ScenarioID   string            `json:"scenario_id"`
	Setting      string            `json:"setting,omitempty"`
	State        scenario.State    `json:"state"`
	Transcript   []gateway.Message `json:"transcript"`
	GoalIndex    int               `json:"goal_index"`
	GoalCount    int               `json:"goal_count"`
	GoalTitle    string            `json:"goal_title,omitempty"`
	ConceptCheck bool              `json:"concept_check,omitempty"`
	InputEnabled bool              `json:"input_enabled"`
	NextUnlocked bool              `json:"next_unlocked"`
	Variables    map[string]string `json:"variables"`
}

// Session is one open scenario. Methods other than Turn.Run must be called
// from a single goroutine (the UI loop).
type Session struct {
	id       string
	eng      *Engine
	lessonID string
	m        *scenario.Machine
	log      *logging.Logger
	// left is set when Leave ran while a turn was still unresolved.
	left bool
}

// Open starts or resumes a scenario. It fails with ErrLocked when the lesson
// is not unlocked and with lesson.ErrNotFound for unknown ids. While a
// session of the same scenario is live, including one left with a turn
// still unresolved, Open returns that session.
func (e *Engine) Open(lessonID, scenarioID string) (*Session, error) {
	if !e.d.Unlock.IsUnlocked(lessonID) {
		return nil, lockedErr(lessonID)
	}
	sc, err := e.d.Lessons.Scenario(lessonID, scenarioID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	key := sessionKey{lessonID, scenarioID}
	if s, ok := e.live[key]; ok {
		s.left = false
		s.log.Info("scenario reopened", "goal", s.m.GoalIndex(), "state", s.m.State().String())
		return s, nil
	}

	s := &Session{
		id:       uuid.NewString(),
		eng:      e,
		lessonID: lessonID,
	}
	s.log = e.d.Log.With("session", s.id, "lesson", lessonID, "scenario", scenarioID)
	s.m = scenario.New(sc, e.d.Vars, scenario.Options{
		Messages:         e.d.Messages,
		Concepts:         e.concepts(sc),
		HideRawResponses: e.d.HideRawResponses,
	})

	var saved *progress.ScenarioProgress
	if !sc.ConceptCheck() {
		saved, err = e.d.Progress.ScenarioProgress(lessonID, scenarioID)
		if err != nil && !errors.Is(err, progress.ErrNotFound) {
			s.log.Warn("loading scenario progress failed", "error", err)
		}
	}
	fx, err := s.m.Start(saved)
	if err != nil {
		s.log.Warn("discarding invalid scenario progress", "error", err)
		fx, _ = s.m.Start(nil)
		fx.ClearProgress = true
	}
	e.persist(s.log, lessonID, s.m, fx)
	e.live[key] = s
	s.log.Info("scenario opened", "goal", s.m.GoalIndex(), "goals", s.m.GoalCount(), "resumed", saved != nil)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Snapshot returns the current render state.
func (s *Session) Snapshot() Snapshot {
	sc := s.m.Scenario()
	state := s.m.State()
	variables := s.eng.d.Vars.Snapshot()
	maps.Copy(variables, s.m.Extracted().NonNull())
	return Snapshot{
		SessionID:    s.id,
		LessonID:     s.lessonID,
		ScenarioID:   sc.ID,
		Setting:      sc.Setting,
		State:        state,
		Transcript:   s.m.Transcript(),
		GoalIndex:    s.m.GoalIndex(),
		GoalCount:    s.m.GoalCount(),
		GoalTitle:    s.m.GoalTitle(),
		ConceptCheck: sc.ConceptCheck(),
		InputEnabled: state.AcceptsInput(),
		NextUnlocked: state == scenario.AllGoalsComplete,
		Variables:    variables,
	}
}

// Turn is a learner turn awaiting the gateway. Run may execute on any
// goroutine; it does not touch session state.
type Turn struct {
	inner     *scenario.Turn
	gw        gateway.Gateway
	tracer    trace.Tracer
	sessionID string
}

// Outcome is a finished turn, ready for Complete.
type Outcome = scenario.Outcome

// Begin records the learner's message and disables input. It returns
// ErrBusy while a previous turn is unresolved and scenario.ErrInvalidState
// once the scenario is complete.
func (s *Session) Begin(text string) (*Turn, error) {
	if s.m.State() == scenario.Evaluating {
		return nil, ErrBusy
	}
	t, err := s.m.Submit(text)
	if err != nil {
		return nil, err
	}
	s.log.Debug("turn started", "goal", t.GoalIndex)
	return &Turn{inner: t, gw: s.eng.d.Gateway, tracer: s.eng.d.Tracer, sessionID: s.id}, nil
}

// Run performs the gateway round trip.
func (t *Turn) Run(ctx context.Context) Outcome {
	ctx, span := t.tracer.Start(ctx, "engine.turn", trace.WithAttributes(
		attribute.String("session", t.sessionID),
		attribute.Int("goal", t.inner.GoalIndex),
	))
	defer span.End()
	return t.inner.Run(ctx, t.gw)
}

// Complete applies a turn outcome and persists the result. Outcomes from
// turns made stale by Restart are dropped.
func (s *Session) Complete(o Outcome) Snapshot {
	fx, err := s.m.Resolve(o)
	s.eng.persist(s.log, s.lessonID, s.m, fx)
	if s.left {
		s.eng.saveProgress(s.log, s.lessonID, s.m)
		s.eng.release(s)
	}
	if err != nil {
		s.log.Debug("turn outcome ignored", "error", err)
		return s.Snapshot()
	}
	s.log.Info("turn resolved", "state", s.m.State().String(), "goal", s.m.GoalIndex())
	return s.Snapshot()
}

// Submit runs a whole turn synchronously, for headless front ends.
func (s *Session) Submit(ctx context.Context, text string) (Snapshot, error) {
	t, err := s.Begin(text)
	if err != nil {
		return s.Snapshot(), err
	}
	return s.Complete(t.Run(ctx)), nil
}

// Restart resets the scenario to its first goal.
func (s *Session) Restart() Snapshot {
	fx := s.m.Restart()
	s.eng.persist(s.log, s.lessonID, s.m, fx)
	s.log.Info("scenario restarted")
	return s.Snapshot()
}

// Leave persists progress as it stands, even mid-goal. A session left with
// a turn in flight stays live until Complete resolves that turn.
func (s *Session) Leave() Snapshot {
	s.eng.saveProgress(s.log, s.lessonID, s.m)
	if s.m.State() == scenario.Evaluating {
		s.left = true
	} else {
		s.eng.release(s)
	}
	s.log.Info("scenario left", "state", s.m.State().String(), "goal", s.m.GoalIndex())
	return s.Snapshot()
}

func (e *Engine) release(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := sessionKey{s.lessonID, s.m.Scenario().ID}
	if e.live[key] == s {
		delete(e.live, key)
	}
}

// Scenario returns the scenario definition.
func (s *Session) Scenario() *lesson.Scenario { return s.m.Scenario() }
