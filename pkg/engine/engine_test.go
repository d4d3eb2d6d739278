package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/ormasoftchile/parla/pkg/gateway"
	"github.com/ormasoftchile/parla/pkg/lesson"
	"github.com/ormasoftchile/parla/pkg/progress"
	"github.com/ormasoftchile/parla/pkg/scenario"
	"github.com/ormasoftchile/parla/pkg/unlock"
	"github.com/ormasoftchile/parla/pkg/vars"
)

func testLessons() *lesson.Store {
	return lesson.NewStore([]*lesson.Lesson{
		{
			ID: "L01", Title: "Café", Order: 1,
			Slides: []lesson.Slide{
				{Type: lesson.SlideVocabulary, ItemID: "V1", Words: map[string]string{"koffie": "coffee", "thee": "tea"}},
				{Type: lesson.SlideExpression, ItemID: "E1", Phrase: "Mag ik **een** koffie?"},
				{Type: lesson.SlideScenario, Scenario: &lesson.Scenario{
					ID: "cafe",
					Goals: []lesson.Goal{
						{Title: "Introduce yourself", Prompt: "Hallo! Hoe heet je?", Extract: map[string]string{"user_name": "the user's name"}},
						{Title: "Order a drink", Prompt: "Dag {user_name}! Wat wil je drinken?"},
						{Title: "Say goodbye", Prompt: "Tot ziens!"},
					},
				}},
				{Type: lesson.SlideScenario, Scenario: &lesson.Scenario{ID: "market", Concepts: []string{"V1", "E1"}}},
				{Type: lesson.SlideFreeTextCheck, Question: "Hoe heet je?"},
			},
		},
		{ID: "L02", Title: "Markt", Order: 2, Slides: []lesson.Slide{{Type: lesson.SlideTip, Body: "tip"}}},
	})
}

type lockAll struct{}

func (lockAll) IsUnlocked(string) bool { return false }

// failingStore rejects every write.
type failingStore struct {
	*progress.MemoryStore
}

var errDisk = errors.New("disk full")

func (failingStore) PutScenarioProgress(string, string, *progress.ScenarioProgress) error {
	return errDisk
}
func (failingStore) MergeGlobalVariables(map[string]string) error { return errDisk }
func (failingStore) ClearScenarioProgress(string, string) error  { return errDisk }
func (failingStore) PutSlidePosition(string, int) error          { return errDisk }
func (failingStore) MarkLessonCompleted(string) error            { return errDisk }

func newEngine(t *testing.T, store progress.Store, gw gateway.Gateway) *Engine {
	t.Helper()
	e, err := New(Deps{Lessons: testLessons(), Progress: store, Gateway: gw})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("expected error for missing deps")
	}
}

func TestOpen_Guards(t *testing.T) {
	e, _ := New(Deps{Lessons: testLessons(), Progress: progress.NewMemoryStore(), Gateway: gateway.AlwaysAchieved(), Unlock: lockAll{}})
	if _, err := e.Open("L01", "cafe"); !errors.Is(err, ErrLocked) {
		t.Errorf("locked err = %v, want ErrLocked", err)
	}
	if _, err := e.OpenLesson("L01"); !errors.Is(err, ErrLocked) {
		t.Errorf("locked lesson err = %v, want ErrLocked", err)
	}

	e = newEngine(t, progress.NewMemoryStore(), gateway.AlwaysAchieved())
	if _, err := e.Open("L01", "nope"); !errors.Is(err, lesson.ErrNotFound) {
		t.Errorf("unknown scenario err = %v, want lesson.ErrNotFound", err)
	}
}

func TestSession_FullRunPersists(t *testing.T) {
	store := progress.NewMemoryStore()
	gw := &gateway.Scripted{
		Extractions: []vars.Optional{{"user_name": vars.String("Ana")}},
		Evaluations: []gateway.Evaluation{{Verdict: gateway.Achieved}},
	}
	e := newEngine(t, store, gw)
	s, err := e.Open("L01", "cafe")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	snap, err := s.Submit(ctx, "Ik ben Ana")
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != scenario.GoalAdvanced || snap.GoalIndex != 1 || !snap.InputEnabled {
		t.Errorf("after goal 0: %+v", snap)
	}
	if got := snap.Transcript[len(snap.Transcript)-1].Text; got != "Dag Ana! Wat wil je drinken?" {
		t.Errorf("prompt = %q", got)
	}
	if snap.Variables["user_name"] != "Ana" {
		t.Errorf("variables = %v", snap.Variables)
	}
	p, err := store.ScenarioProgress("L01", "cafe")
	if err != nil || p.CurrentGoalIndex != 1 {
		t.Fatalf("stored progress = %+v, %v", p, err)
	}

	s.Submit(ctx, "Koffie")
	snap, _ = s.Submit(ctx, "Doei")
	if snap.State != scenario.AllGoalsComplete || !snap.NextUnlocked || snap.InputEnabled {
		t.Errorf("final snapshot = %+v", snap)
	}
	p, _ = store.ScenarioProgress("L01", "cafe")
	if p.CurrentGoalIndex != 3 || len(p.CompletedGoals) != 3 {
		t.Errorf("stored progress = %+v", p)
	}
	if _, err := s.Submit(ctx, "meer"); !errors.Is(err, scenario.ErrInvalidState) {
		t.Errorf("submit after completion err = %v", err)
	}
}

func TestSession_ExtractionPersistedWhenNotAchieved(t *testing.T) {
	store := progress.NewMemoryStore()
	gw := &gateway.Scripted{
		Extractions: []vars.Optional{{"user_name": vars.String("Ana")}},
		Evaluations: []gateway.Evaluation{{Verdict: gateway.NotAchieved}},
	}
	e := newEngine(t, store, gw)
	s, _ := e.Open("L01", "cafe")

	snap, err := s.Submit(context.Background(), "Ana")
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != scenario.Retry || snap.GoalIndex != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
	globals, _ := store.GlobalVariables()
	if globals["user_name"] != "Ana" {
		t.Errorf("stored globals = %v", globals)
	}
	p, _ := store.ScenarioProgress("L01", "cafe")
	if v := p.ExtractedInfo["user_name"]; v == nil || *v != "Ana" {
		t.Errorf("stored extracted = %v", p.ExtractedInfo)
	}
	if v, _ := e.Vars().Get("user_name"); v != "Ana" {
		t.Errorf("context user_name = %q", v)
	}
}

func TestSession_ResumeAtGoalOne(t *testing.T) {
	store := progress.NewMemoryStore()
	store.MergeGlobalVariables(map[string]string{"user_name": "Bram"})
	store.PutScenarioProgress("L01", "cafe", &progress.ScenarioProgress{CompletedGoals: []int{0}, CurrentGoalIndex: 1})

	e := newEngine(t, store, gateway.AlwaysAchieved())
	s, err := e.Open("L01", "cafe")
	if err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	if len(snap.Transcript) != 1 || snap.Transcript[0].Text != "Dag Bram! Wat wil je drinken?" {
		t.Errorf("transcript = %+v", snap.Transcript)
	}
	if snap.GoalTitle != "Order a drink" {
		t.Errorf("goal title = %q", snap.GoalTitle)
	}
}

func TestSession_DiscardsCorruptProgress(t *testing.T) {
	store := progress.NewMemoryStore()
	store.PutScenarioProgress("L01", "cafe", &progress.ScenarioProgress{CompletedGoals: []int{0}, CurrentGoalIndex: 7})
	e := newEngine(t, store, gateway.AlwaysAchieved())
	s, err := e.Open("L01", "cafe")
	if err != nil {
		t.Fatal(err)
	}
	if snap := s.Snapshot(); snap.GoalIndex != 0 || snap.State != scenario.AwaitingUserInput {
		t.Errorf("snapshot = %+v", snap)
	}
	if _, err := store.ScenarioProgress("L01", "cafe"); !errors.Is(err, progress.ErrNotFound) {
		t.Errorf("invalid stored progress err = %v, want ErrNotFound after discard", err)
	}
}

func TestOpen_ReusesLiveSession(t *testing.T) {
	e := newEngine(t, progress.NewMemoryStore(), gateway.AlwaysAchieved())
	s1, _ := e.Open("L01", "cafe")
	s2, err := e.Open("L01", "cafe")
	if err != nil {
		t.Fatal(err)
	}
	if s1 != s2 {
		t.Error("second Open of a live scenario must return the same session")
	}

	s1.Leave()
	s3, _ := e.Open("L01", "cafe")
	if s3 == s1 {
		t.Error("Open after an idle Leave must start a new session")
	}
}

func TestSession_LeftTurnSurvivesReopen(t *testing.T) {
	store := progress.NewMemoryStore()
	gw := &gateway.Scripted{
		Extractions: []vars.Optional{{"user_name": vars.String("Ana")}},
		Evaluations: []gateway.Evaluation{{Verdict: gateway.Achieved}},
	}
	e := newEngine(t, store, gw)
	ctx := context.Background()

	s1, _ := e.Open("L01", "cafe")
	turn, err := s1.Begin("Ik heet Ana")
	if err != nil {
		t.Fatal(err)
	}
	s1.Leave()

	s2, err := e.Open("L01", "cafe")
	if err != nil {
		t.Fatal(err)
	}
	if s2 != s1 {
		t.Fatal("reopening with a turn in flight must return the live session")
	}
	if _, err := s2.Begin("nog een keer"); !errors.Is(err, ErrBusy) {
		t.Errorf("Begin on reopened session err = %v, want ErrBusy", err)
	}

	s1.Complete(turn.Run(ctx))
	snap := s2.Leave()
	if snap.GoalIndex != 1 {
		t.Errorf("goal index = %d, want 1", snap.GoalIndex)
	}
	got, err := store.ScenarioProgress("L01", "cafe")
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentGoalIndex != 1 {
		t.Errorf("stored current = %d, want 1", got.CurrentGoalIndex)
	}
}

func TestSession_CompleteAfterLeaveReleases(t *testing.T) {
	store := progress.NewMemoryStore()
	e := newEngine(t, store, gateway.AlwaysAchieved())

	s1, _ := e.Open("L01", "cafe")
	turn, _ := s1.Begin("Ik heet Ana")
	s1.Leave()
	s1.Complete(turn.Run(context.Background()))

	got, err := store.ScenarioProgress("L01", "cafe")
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentGoalIndex != 1 {
		t.Errorf("stored current = %d, want 1", got.CurrentGoalIndex)
	}
	s2, _ := e.Open("L01", "cafe")
	if s2 == s1 {
		t.Error("a left session must be released once its turn completes")
	}
	if s2.Snapshot().GoalIndex != 1 {
		t.Errorf("resumed goal = %d, want 1", s2.Snapshot().GoalIndex)
	}
}

func TestSession_SingleFlight(t *testing.T) {
	gw := gateway.AlwaysAchieved()
	e := newEngine(t, progress.NewMemoryStore(), gw)
	s, _ := e.Open("L01", "cafe")

	turn, err := s.Begin("Ik ben Ana")
	if err != nil {
		t.Fatal(err)
	}
	if s.Snapshot().InputEnabled {
		t.Error("input must be disabled while evaluating")
	}
	if _, err := s.Begin("nog een keer"); !errors.Is(err, ErrBusy) {
		t.Errorf("second Begin err = %v, want ErrBusy", err)
	}

	done := make(chan Outcome)
	go func() { done <- turn.Run(context.Background()) }()
	snap := s.Complete(<-done)
	if !snap.InputEnabled || snap.GoalIndex != 1 {
		t.Errorf("after complete: %+v", snap)
	}
	if ev, _, _ := gw.Calls(); ev != 1 {
		t.Errorf("evaluate calls = %d, want 1", ev)
	}
}

func TestSession_RestartDropsInFlightTurn(t *testing.T) {
	store := progress.NewMemoryStore()
	e := newEngine(t, store, gateway.AlwaysAchieved())
	s, _ := e.Open("L01", "cafe")

	turn, _ := s.Begin("Ik ben Ana")
	snap := s.Restart()
	if !snap.InputEnabled || snap.GoalIndex != 0 {
		t.Errorf("after restart: %+v", snap)
	}
	snap = s.Complete(turn.Run(context.Background()))
	if snap.GoalIndex != 0 {
		t.Errorf("stale outcome applied: goal %d", snap.GoalIndex)
	}
	if _, err := store.ScenarioProgress("L01", "cafe"); !errors.Is(err, progress.ErrNotFound) {
		t.Errorf("stored progress after restart err = %v, want ErrNotFound", err)
	}
}

func TestSession_RestartMergesLocals(t *testing.T) {
	store := progress.NewMemoryStore()
	store.PutScenarioProgress("L01", "cafe", &progress.ScenarioProgress{
		CompletedGoals:   []int{0},
		CurrentGoalIndex: 1,
		ExtractedInfo:    vars.Optional{"user_name": vars.String("Ana")},
	})
	e := newEngine(t, store, gateway.AlwaysAchieved())
	s, _ := e.Open("L01", "cafe")
	s.Restart()
	globals, _ := store.GlobalVariables()
	if globals["user_name"] != "Ana" {
		t.Errorf("globals = %v, want user_name merged", globals)
	}
}

func TestSession_LeavePersistsMidGoal(t *testing.T) {
	store := progress.NewMemoryStore()
	e := newEngine(t, store, &gateway.Scripted{Evaluations: []gateway.Evaluation{{Verdict: gateway.NotAchieved}}})
	s, _ := e.Open("L01", "cafe")
	s.Submit(context.Background(), "hmm")
	s.Leave()
	p, err := store.ScenarioProgress("L01", "cafe")
	if err != nil {
		t.Fatalf("progress not persisted on leave: %v", err)
	}
	if p.CurrentGoalIndex != 0 {
		t.Errorf("current goal = %d", p.CurrentGoalIndex)
	}
}

func TestSession_PersistenceErrorsSwallowed(t *testing.T) {
	store := failingStore{progress.NewMemoryStore()}
	gw := &gateway.Scripted{
		Extractions: []vars.Optional{{"user_name": vars.String("Ana")}},
		Evaluations: []gateway.Evaluation{{Verdict: gateway.Achieved}},
	}
	e := newEngine(t, store, gw)
	s, _ := e.Open("L01", "cafe")
	snap, err := s.Submit(context.Background(), "Ik ben Ana")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if snap.GoalIndex != 1 || snap.Variables["user_name"] != "Ana" {
		t.Errorf("in-memory state must stay authoritative: %+v", snap)
	}
	s.Restart()
	s.Leave()
}

func TestSession_ConceptCheck(t *testing.T) {
	gw := &gateway.Scripted{Replies: []gateway.Reply{{Covered: []string{"V1", "E1"}, Text: "Prima!"}}}
	e := newEngine(t, progress.NewMemoryStore(), gw)
	s, err := e.Open("L01", "market")
	if err != nil {
		t.Fatal(err)
	}
	snap, _ := s.Submit(context.Background(), "Mag ik een thee?")
	if !snap.ConceptCheck || snap.State != scenario.AllGoalsComplete {
		t.Errorf("snapshot = %+v", snap)
	}
	concepts := gw.ReplyCalls[0].Concepts
	if len(concepts) != 2 || concepts[0].Text != "koffie, thee" || concepts[1].Text != "Mag ik een koffie?" {
		t.Errorf("concepts = %+v", concepts)
	}
}

func TestEngine_Check(t *testing.T) {
	gw := &gateway.Scripted{Replies: []gateway.Reply{{Text: "Perfect!"}, {Text: "timeout", Err: errors.New("timeout")}}}
	e := newEngine(t, progress.NewMemoryStore(), gw)
	ctx := context.Background()
	if got := e.Check(ctx, "Hoe heet je?", "Ik heet Ana"); got != "Perfect!" {
		t.Errorf("Check = %q", got)
	}
	if got := e.Check(ctx, "Hoe heet je?", "Ana"); got != "Error: timeout" {
		t.Errorf("Check on failure = %q", got)
	}
	if gw.ReplyCalls[0].Concepts != nil {
		t.Error("a correction sends no concepts")
	}
}

func TestCursor_PositionsAndCompletion(t *testing.T) {
	store := progress.NewMemoryStore()
	lessons := testLessons()
	policy, _ := unlock.NewPolicy("", false)
	checker := unlock.NewChecker(policy, []string{"L01", "L02"}, store)
	e, err := New(Deps{Lessons: lessons, Progress: store, Gateway: gateway.NewOffline(), Unlock: checker})
	if err != nil {
		t.Fatal(err)
	}
	if e.IsUnlocked("L02") {
		t.Fatal("L02 should start locked")
	}

	store.PutSlidePosition("L01", 2)
	c, err := e.OpenLesson("L01")
	if err != nil {
		t.Fatal(err)
	}
	if c.Index() != 2 || c.Slide().Scenario.ID != "cafe" {
		t.Errorf("cursor at %d", c.Index())
	}
	if !c.Move(10) || !c.Last() {
		t.Errorf("Move(10) should clamp to the last slide, at %d", c.Index())
	}
	if c.Move(1) {
		t.Error("moving past the end must be a no-op")
	}
	if pos, _ := store.SlidePosition("L01"); pos != 4 {
		t.Errorf("stored position = %d, want 4", pos)
	}
	c.Finish()
	if !e.IsUnlocked("L02") {
		t.Error("finishing L01 must unlock L02")
	}
}

func TestEngine_LockReason(t *testing.T) {
	store := progress.NewMemoryStore()
	policy, _ := unlock.NewPolicy("number == 2", false)
	checker := unlock.NewChecker(policy, []string{"L01", "L02"}, store)
	e, err := New(Deps{Lessons: testLessons(), Progress: store, Gateway: gateway.NewOffline(), Unlock: checker})
	if err != nil {
		t.Fatal(err)
	}
	if got := e.LockReason("L02"); got != unlock.Premium {
		t.Errorf("LockReason(L02) = %v, want premium", got)
	}

	plain := newEngine(t, store, gateway.NewOffline())
	plain.d.Unlock = lockAll{}
	if got := plain.LockReason("L01"); got != unlock.Progression {
		t.Errorf("LockReason with a plain unlocker = %v, want progression", got)
	}
}
