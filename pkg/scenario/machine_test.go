package scenario

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/ormasoftchile/parla/pkg/gateway"
	"github.com/ormasoftchile/parla/pkg/lesson"
	"github.com/ormasoftchile/parla/pkg/progress"
	"github.com/ormasoftchile/parla/pkg/vars"
)

func cafe() *lesson.Scenario {
	return &lesson.Scenario{
		ID:      "order-coffee",
		Setting: "A small café in Utrecht.",
		Goals: []lesson.Goal{
			{Title: "Introduce yourself", Prompt: "Hallo! Hoe heet je?", Extract: map[string]string{"user_name": "the user's name"}},
			{Title: "Order a drink", Prompt: "Leuk je te ontmoeten, {user_name}! Wat wil je drinken?"},
			{Title: "Say goodbye", Prompt: "Alsjeblieft. Tot ziens!"},
		},
	}
}

// turn submits text and resolves it against gw.
func turn(t *testing.T, m *Machine, gw gateway.Gateway, text string) Effects {
	t.Helper()
	tr, err := m.Submit(text)
	if err != nil {
		t.Fatalf("Submit(%q): %v", text, err)
	}
	if m.State() != Evaluating {
		t.Fatalf("state after submit = %s, want evaluating", m.State())
	}
	fx, err := m.Resolve(tr.Run(context.Background(), gw))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return fx
}

func checkSequential(t *testing.T, m *Machine) {
	t.Helper()
	if err := m.Progress().Check(m.GoalCount()); err != nil {
		t.Fatalf("sequential invariant broken in %s: %v", m.State(), err)
	}
}

func lastAssistant(m *Machine) string {
	tr := m.Transcript()
	for i := len(tr) - 1; i >= 0; i-- {
		if tr[i].Role == gateway.RoleAssistant {
			return tr[i].Text
		}
	}
	return ""
}

func TestStart_Fresh(t *testing.T) {
	m := New(cafe(), vars.NewContext(nil), Options{})
	if m.State() != NotStarted {
		t.Fatalf("initial state = %s", m.State())
	}
	if _, err := m.Start(nil); err != nil {
		t.Fatal(err)
	}
	if m.State() != AwaitingUserInput {
		t.Errorf("state = %s, want awaiting_user_input", m.State())
	}
	tr := m.Transcript()
	if len(tr) != 1 || tr[0].Text != "Hallo! Hoe heet je?" || tr[0].Role != gateway.RoleAssistant {
		t.Errorf("transcript = %+v", tr)
	}
	checkSequential(t, m)
}

func TestAllAchieved_ThreeGoals(t *testing.T) {
	gw := gateway.AlwaysAchieved()
	m := New(cafe(), vars.NewContext(nil), Options{})
	m.Start(nil)

	var states []State
	for _, text := range []string{"Ik ben Ana", "Een koffie, graag", "Dag!"} {
		fx := turn(t, m, gw, text)
		if !fx.SaveProgress {
			t.Error("an advance must ask for progress to be saved")
		}
		states = append(states, m.State())
		checkSequential(t, m)
	}

	want := []State{GoalAdvanced, GoalAdvanced, AllGoalsComplete}
	if !slices.Equal(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}
	if got := m.CompletedGoals(); !slices.Equal(got, []int{0, 1, 2}) {
		t.Errorf("completed = %v, want [0 1 2]", got)
	}
	if lastAssistant(m) != DefaultMessages().Completion {
		t.Errorf("last message = %q, want completion message", lastAssistant(m))
	}
	if m.State().AcceptsInput() {
		t.Error("input must be disabled after completion")
	}
	if _, err := m.Submit("nog iets"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Submit after completion err = %v, want ErrInvalidState", err)
	}
}

func TestNotAchieved_Retry(t *testing.T) {
	gw := &gateway.Scripted{Evaluations: []gateway.Evaluation{{Verdict: gateway.NotAchieved}}}
	m := New(cafe(), vars.NewContext(nil), Options{})
	m.Start(nil)

	turn(t, m, gw, "wrong answer")
	if m.State() != Retry {
		t.Errorf("state = %s, want retry", m.State())
	}
	if m.GoalIndex() != 0 {
		t.Errorf("goal index = %d, want 0", m.GoalIndex())
	}
	if lastAssistant(m) != "Not quite right. Try again!" {
		t.Errorf("last message = %q", lastAssistant(m))
	}
	if !m.State().AcceptsInput() {
		t.Error("input must be re-enabled after retry")
	}
	checkSequential(t, m)
}

func TestNotAchieved_DetailSurfaced(t *testing.T) {
	gw := &gateway.Scripted{Evaluations: []gateway.Evaluation{{Verdict: gateway.NotAchieved, Detail: "connection refused"}}}
	m := New(cafe(), vars.NewContext(nil), Options{})
	m.Start(nil)
	turn(t, m, gw, "hoi")
	if got := lastAssistant(m); got != "Error: connection refused" {
		t.Errorf("last message = %q", got)
	}
}

func TestUnrecognized(t *testing.T) {
	raw := gateway.Evaluation{Verdict: gateway.Unrecognized, Raw: "I am not sure what you mean."}
	tests := []struct {
		name string
		hide bool
		want string
	}{
		{"surfaced", false, "Error: I am not sure what you mean."},
		{"hidden", true, "Not quite right. Try again!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(cafe(), vars.NewContext(nil), Options{HideRawResponses: tt.hide})
			m.Start(nil)
			turn(t, m, &gateway.Scripted{Evaluations: []gateway.Evaluation{raw}}, "hoi")
			if m.State() != Retry || m.GoalIndex() != 0 {
				t.Errorf("state = %s goal = %d, want retry at 0", m.State(), m.GoalIndex())
			}
			if got := lastAssistant(m); got != tt.want {
				t.Errorf("last message = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtraction_PersistedOnFailure(t *testing.T) {
	global := vars.NewContext(nil)
	gw := &gateway.Scripted{
		Extractions: []vars.Optional{{"user_name": vars.String("Ana")}},
		Evaluations: []gateway.Evaluation{{Verdict: gateway.NotAchieved}},
	}
	m := New(cafe(), global, Options{})
	m.Start(nil)

	fx := turn(t, m, gw, "Ik heet Ana")

	if v := m.Extracted()["user_name"]; v == nil || *v != "Ana" {
		t.Errorf("local user_name = %v, want Ana", v)
	}
	if v, _ := global.Get("user_name"); v != "Ana" {
		t.Errorf("global user_name = %q, want Ana", v)
	}
	if fx.Globals["user_name"] != "Ana" || !fx.SaveProgress {
		t.Errorf("effects = %+v, want globals and progress saved", fx)
	}
	if m.Progress().ExtractedInfo["user_name"] == nil {
		t.Error("progress record must carry the extracted value")
	}
	if m.State() != Retry {
		t.Errorf("state = %s, want retry", m.State())
	}
	if len(gw.ExtractCalls) != 1 || gw.ExtractCalls[0].Text != "Ik heet Ana" {
		t.Errorf("extract calls = %+v", gw.ExtractCalls)
	}
}

func TestExtraction_RendersNextPrompt(t *testing.T) {
	gw := &gateway.Scripted{
		Extractions: []vars.Optional{{"user_name": vars.String("Ana")}},
		Evaluations: []gateway.Evaluation{{Verdict: gateway.Achieved}},
	}
	m := New(cafe(), vars.NewContext(nil), Options{})
	m.Start(nil)
	turn(t, m, gw, "Ik ben Ana")
	if got := lastAssistant(m); got != "Leuk je te ontmoeten, Ana! Wat wil je drinken?" {
		t.Errorf("next prompt = %q", got)
	}
	// Only the first goal declares an extraction.
	turn(t, m, gw, "Koffie")
	if _, extract, _ := gw.Calls(); extract != 1 {
		t.Errorf("extract calls = %d, want 1", extract)
	}
}

func TestRender_MissingVariableShowsTemplate(t *testing.T) {
	gw := &gateway.Scripted{
		Extractions: []vars.Optional{{"user_name": nil}},
		Evaluations: []gateway.Evaluation{{Verdict: gateway.Achieved}},
	}
	m := New(cafe(), vars.NewContext(nil), Options{})
	m.Start(nil)
	turn(t, m, gw, "hallo")
	if got := lastAssistant(m); got != "Leuk je te ontmoeten, {user_name}! Wat wil je drinken?" {
		t.Errorf("prompt = %q, want literal template", got)
	}
}

func TestRestart(t *testing.T) {
	global := vars.NewContext(nil)
	gw := &gateway.Scripted{
		Extractions: []vars.Optional{{"user_name": vars.String("Ana")}},
		Evaluations: []gateway.Evaluation{{Verdict: gateway.Achieved}},
	}
	m := New(cafe(), global, Options{})
	m.Start(&progress.ScenarioProgress{
		CompletedGoals:   []int{0},
		CurrentGoalIndex: 1,
		ExtractedInfo:    vars.Optional{"city": vars.String("Gouda")},
	})
	turn(t, m, gw, "Een thee")

	fx := m.Restart()
	if m.GoalIndex() != 0 || len(m.CompletedGoals()) != 0 {
		t.Errorf("after restart goal = %d completed = %v", m.GoalIndex(), m.CompletedGoals())
	}
	if len(m.Extracted()) != 0 {
		t.Errorf("local values not cleared: %v", m.Extracted())
	}
	if v, _ := global.Get("city"); v != "Gouda" {
		t.Errorf("global city = %q, want Gouda merged on restart", v)
	}
	if fx.Globals["city"] != "Gouda" || !fx.ClearProgress {
		t.Errorf("effects = %+v", fx)
	}
	tr := m.Transcript()
	if len(tr) != 1 || tr[0].Text != "Hallo! Hoe heet je?" {
		t.Errorf("transcript after restart = %+v", tr)
	}
	if m.State() != AwaitingUserInput {
		t.Errorf("state = %s", m.State())
	}
	checkSequential(t, m)
}

func TestRestart_StalesInFlightTurn(t *testing.T) {
	m := New(cafe(), vars.NewContext(nil), Options{})
	m.Start(nil)
	old, _ := m.Submit("Ik ben Ana")
	m.Restart()
	next, err := m.Submit("Ik ben Bram")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Resolve(old.Run(context.Background(), gateway.AlwaysAchieved())); !errors.Is(err, ErrStaleTurn) {
		t.Errorf("stale resolve err = %v, want ErrStaleTurn", err)
	}
	if _, err := m.Resolve(next.Run(context.Background(), gateway.AlwaysAchieved())); err != nil {
		t.Errorf("current resolve: %v", err)
	}
	if m.GoalIndex() != 1 {
		t.Errorf("goal index = %d, want 1", m.GoalIndex())
	}
}

func TestRestart_StaleTurnKeepsExtraction(t *testing.T) {
	global := vars.NewContext(nil)
	m := New(cafe(), global, Options{})
	m.Start(nil)
	old, _ := m.Submit("Ik ben Ana")
	m.Restart()

	gw := &gateway.Scripted{
		Evaluations: []gateway.Evaluation{{Verdict: gateway.Achieved}},
		Extractions: []vars.Optional{{"user_name": vars.String("Ana")}},
	}
	fx, err := m.Resolve(old.Run(context.Background(), gw))
	if !errors.Is(err, ErrStaleTurn) {
		t.Fatalf("err = %v, want ErrStaleTurn", err)
	}
	if got, _ := global.Get("user_name"); got != "Ana" {
		t.Errorf("global user_name = %q, want Ana", got)
	}
	if fx.Globals["user_name"] != "Ana" {
		t.Errorf("effects globals = %v, want user_name=Ana", fx.Globals)
	}
	if m.GoalIndex() != 0 || m.State() != AwaitingUserInput {
		t.Errorf("goal = %d state = %s, want 0 awaiting_user_input", m.GoalIndex(), m.State())
	}
	if _, ok := m.Extracted()["user_name"]; ok {
		t.Error("stale extraction must not reach the restarted scenario's local values")
	}
}

func TestResume_AtGoalOne(t *testing.T) {
	m := New(cafe(), vars.NewContext(map[string]string{"user_name": "Ana"}), Options{})
	_, err := m.Start(&progress.ScenarioProgress{CompletedGoals: []int{0}, CurrentGoalIndex: 1})
	if err != nil {
		t.Fatal(err)
	}
	tr := m.Transcript()
	if len(tr) != 1 {
		t.Fatalf("transcript = %+v, want one entry", tr)
	}
	if tr[0].Text != "Leuk je te ontmoeten, Ana! Wat wil je drinken?" {
		t.Errorf("first entry = %q, want goal 1 prompt", tr[0].Text)
	}
	if m.GoalTitle() != "Order a drink" {
		t.Errorf("goal title = %q", m.GoalTitle())
	}
}

func TestResume_Complete(t *testing.T) {
	m := New(cafe(), nil, Options{})
	m.Start(&progress.ScenarioProgress{CompletedGoals: []int{0, 1, 2}, CurrentGoalIndex: 3})
	if m.State() != AllGoalsComplete || len(m.Transcript()) != 0 {
		t.Errorf("state = %s transcript = %v", m.State(), m.Transcript())
	}
}

func TestStart_RejectsCorruptProgress(t *testing.T) {
	m := New(cafe(), nil, Options{})
	if _, err := m.Start(&progress.ScenarioProgress{CompletedGoals: []int{0}, CurrentGoalIndex: 2}); err == nil {
		t.Fatal("expected error")
	}
	if m.State() != NotStarted {
		t.Errorf("state = %s, want not_started", m.State())
	}
}

func TestStart_FlushesResidualLocals(t *testing.T) {
	global := vars.NewContext(nil)
	m := New(cafe(), global, Options{})
	m.Start(&progress.ScenarioProgress{ExtractedInfo: vars.Optional{"user_name": vars.String("Ana")}})
	fx, _ := m.Start(nil)
	if v, _ := global.Get("user_name"); v != "Ana" {
		t.Errorf("global user_name = %q, want Ana", v)
	}
	if fx.Globals["user_name"] != "Ana" {
		t.Errorf("effects = %+v", fx)
	}
	if len(m.Extracted()) != 0 {
		t.Error("locals must be cleared")
	}
}

func TestSubmit_Guards(t *testing.T) {
	m := New(cafe(), nil, Options{})
	if _, err := m.Submit("hoi"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("submit before start err = %v", err)
	}
	m.Start(nil)
	if _, err := m.Submit("   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank submit err = %v", err)
	}
	m.Submit("hoi")
	if _, err := m.Submit("nog een"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("submit while evaluating err = %v, want ErrInvalidState", err)
	}
	if n := len(m.Transcript()); n != 2 {
		t.Errorf("transcript len = %d, want 2 (prompt + first message)", n)
	}
	if _, err := (&Machine{sc: cafe(), state: AwaitingUserInput}).Resolve(Outcome{}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("resolve without turn err = %v", err)
	}
}

func TestEmptyPrompt_UsesAdvancedMessage(t *testing.T) {
	sc := cafe()
	sc.Goals[1].Prompt = ""
	m := New(sc, nil, Options{Messages: Messages{Advanced: "Ga door!"}})
	m.Start(nil)
	turn(t, m, gateway.AlwaysAchieved(), "Ik ben Ana")
	if got := lastAssistant(m); got != "Ga door!" {
		t.Errorf("message = %q, want Ga door!", got)
	}
	if m.opts.Messages.Retry != DefaultMessages().Retry {
		t.Error("unset messages must fall back to defaults")
	}
}

func TestConceptCheck(t *testing.T) {
	sc := &lesson.Scenario{ID: "market", Concepts: []string{"V1", "E1"}}
	concepts := []gateway.Concept{{ID: "V1", Text: "koffie"}, {ID: "E1", Text: "Mag ik"}}
	gw := &gateway.Scripted{Replies: []gateway.Reply{
		{Text: "Hallo!"},
		{Covered: []string{"V1", "X9"}, Text: "Koffie, prima."},
		{Covered: []string{"E1"}, Text: "Natuurlijk."},
	}}
	m := New(sc, nil, Options{Concepts: concepts})
	m.Start(nil)
	if len(m.Transcript()) != 0 || m.State() != AwaitingUserInput {
		t.Fatalf("start: state %s transcript %v", m.State(), m.Transcript())
	}

	turn(t, m, gw, "hoi")
	if m.State() != Retry || m.GoalIndex() != 0 {
		t.Errorf("after chatter: %s %d", m.State(), m.GoalIndex())
	}
	turn(t, m, gw, "koffie")
	if m.State() != GoalAdvanced || m.GoalIndex() != 1 {
		t.Errorf("after V1: %s %d", m.State(), m.GoalIndex())
	}
	if pending := gw.ReplyCalls[1].Concepts; len(pending) != 2 {
		t.Errorf("pending concepts = %v", pending)
	}
	turn(t, m, gw, "Mag ik koffie?")
	if m.State() != AllGoalsComplete || m.GoalCount() != 2 {
		t.Errorf("final: %s count %d", m.State(), m.GoalCount())
	}
	if pending := gw.ReplyCalls[2].Concepts; len(pending) != 1 || pending[0].ID != "E1" {
		t.Errorf("pending concepts = %v, want only E1", pending)
	}
	if !strings.Contains(lastAssistant(m), "Perfect!") {
		t.Errorf("last = %q", lastAssistant(m))
	}
}
