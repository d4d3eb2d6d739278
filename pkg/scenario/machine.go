package scenario

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ormasoftchile/parla/pkg/gateway"
	"github.com/ormasoftchile/parla/pkg/lesson"
	"github.com/ormasoftchile/parla/pkg/progress"
	"github.com/ormasoftchile/parla/pkg/template"
	"github.com/ormasoftchile/parla/pkg/vars"
)

// Options tune a Machine.
type Options struct {
	Messages Messages
	// Concepts resolves the scenario's concept ids for concept-check
	// scenarios. Ids missing here are sent with the id as text.
	Concepts []gateway.Concept
	// HideRawResponses replaces unrecognised service output with the retry
	// message instead of showing it to the learner.
	HideRawResponses bool
}

// Effects tells the caller what to persist after a transition.
type Effects struct {
	// Globals are the values just merged into the global context.
	Globals map[string]string
	// SaveProgress asks for Progress() to be written.
	SaveProgress bool
	// ClearProgress asks for the stored progress to be removed.
	ClearProgress bool
}

// Machine tracks one scenario instance. It is not safe for concurrent use;
// the orchestrator drives it from a single goroutine.
type Machine struct {
	sc     *lesson.Scenario
	global *vars.Context
	opts   Options

	state      State
	epoch      int
	current    int
	completed  []int
	extracted  vars.Optional
	covered    []string
	transcript []gateway.Message
}

// New returns a machine in NotStarted.
func New(sc *lesson.Scenario, global *vars.Context, opts Options) *Machine {
	opts.Messages = opts.Messages.withDefaults()
	if global == nil {
		global = vars.NewContext(nil)
	}
	if sc.ConceptCheck() && len(opts.Concepts) == 0 {
		for _, id := range sc.Concepts {
			opts.Concepts = append(opts.Concepts, gateway.Concept{ID: id, Text: id})
		}
	}
	return &Machine{sc: sc, global: global, opts: opts, extracted: vars.Optional{}}
}

// Start (re)initialises the machine. With saved progress the counters and
// extracted values are restored; otherwise residual local values from a
// previous run are merged into the global context before being cleared.
// The current goal's prompt becomes the first transcript entry. Invalid
// saved progress is rejected and leaves the machine unchanged.
func (m *Machine) Start(saved *progress.ScenarioProgress) (Effects, error) {
	var fx Effects
	if saved != nil && !m.sc.ConceptCheck() {
		if err := saved.Check(len(m.sc.Goals)); err != nil {
			return fx, fmt.Errorf("saved progress for %s: %w", m.sc.ID, err)
		}
	}

	m.epoch++
	m.transcript = nil
	m.covered = nil
	if saved != nil && !m.sc.ConceptCheck() {
		m.current = saved.CurrentGoalIndex
		m.completed = slices.Clone(saved.CompletedGoals)
		m.extracted = saved.ExtractedInfo.Clone()
		if m.extracted == nil {
			m.extracted = vars.Optional{}
		}
	} else {
		fx.Globals = m.flushLocal()
		m.current = 0
		m.completed = nil
		m.extracted = vars.Optional{}
	}

	if m.complete() {
		m.state = AllGoalsComplete
		return fx, nil
	}
	m.state = AwaitingUserInput
	m.promptCurrent()
	return fx, nil
}

// Restart merges pending local values into the global context, zeroes the
// counters, clears the transcript and asks for stored progress to be
// removed, then shows the first prompt again. It is allowed in every state;
// a turn in flight becomes stale.
func (m *Machine) Restart() Effects {
	fx := Effects{Globals: m.flushLocal(), ClearProgress: true}
	m.epoch++
	m.current = 0
	m.completed = nil
	m.extracted = vars.Optional{}
	m.covered = nil
	m.transcript = nil
	if m.complete() {
		m.state = AllGoalsComplete
		return fx
	}
	m.state = AwaitingUserInput
	m.promptCurrent()
	return fx
}

// flushLocal merges local non-null values into the global context and
// returns them.
func (m *Machine) flushLocal() map[string]string {
	values := m.extracted.NonNull()
	if len(values) == 0 {
		return nil
	}
	m.global.Merge(m.extracted)
	return values
}

// Submit records a learner message and enters Evaluating. The returned Turn
// performs the gateway calls; feed its Outcome to Resolve.
func (m *Machine) Submit(text string) (*Turn, error) {
	if !m.state.AcceptsInput() {
		return nil, fmt.Errorf("submit in %s: %w", m.state, ErrInvalidState)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	m.transcript = append(m.transcript, gateway.Message{Role: gateway.RoleUser, Text: text})
	m.state = Evaluating

	t := &Turn{
		epoch:      m.epoch,
		Text:       text,
		Transcript: slices.Clone(m.transcript),
	}
	if m.sc.ConceptCheck() {
		t.concept = true
		t.Concepts = m.pendingConcepts()
		return t, nil
	}
	g := m.sc.Goals[m.current]
	t.GoalIndex = m.current
	t.GoalTitle = g.Title
	if len(g.Extract) > 0 {
		t.Extract = maps.Clone(g.Extract)
	}
	return t, nil
}

// Resolve applies a turn outcome. Extracted values are merged locally and
// globally first, so they survive a negative verdict. A turn made stale by
// Restart still contributes its extracted values to the global context.
func (m *Machine) Resolve(o Outcome) (Effects, error) {
	var fx Effects
	if o.epoch != m.epoch {
		if m.global.Merge(o.Extracted) {
			fx.Globals = o.Extracted.NonNull()
		}
		return fx, ErrStaleTurn
	}
	if m.state != Evaluating {
		return fx, fmt.Errorf("resolve in %s: %w", m.state, ErrInvalidState)
	}

	if m.sc.ConceptCheck() {
		return m.resolveConcepts(o.Reply), nil
	}

	if len(o.Extracted) > 0 {
		for k, v := range o.Extracted {
			if v == nil {
				if _, ok := m.extracted[k]; !ok {
					m.extracted[k] = nil
				}
				continue
			}
			m.extracted.Set(k, *v)
		}
		if m.global.Merge(o.Extracted) {
			fx.Globals = o.Extracted.NonNull()
		}
		fx.SaveProgress = true
	}

	ev := o.Evaluation
	switch ev.Verdict {
	case gateway.Achieved:
		m.completed = append(m.completed, m.current)
		m.current++
		fx.SaveProgress = true
		if m.complete() {
			m.state = AllGoalsComplete
			m.say(m.opts.Messages.Completion)
			break
		}
		m.state = GoalAdvanced
		if !m.promptCurrent() {
			m.say(m.opts.Messages.Advanced)
		}
	case gateway.NotAchieved:
		m.state = Retry
		if ev.Detail != "" {
			m.say(m.opts.Messages.ErrorPrefix + ev.Detail)
		} else {
			m.say(m.opts.Messages.Retry)
		}
	default:
		m.state = Retry
		raw := strings.TrimSpace(ev.Raw)
		if raw == "" && ev.Err != nil {
			raw = ev.Err.Error()
		}
		if raw == "" || m.opts.HideRawResponses {
			m.say(m.opts.Messages.Retry)
		} else {
			m.say(m.opts.Messages.ErrorPrefix + raw)
		}
	}
	return fx, nil
}

func (m *Machine) resolveConcepts(r gateway.Reply) Effects {
	newly := false
	for _, id := range r.Covered {
		if slices.ContainsFunc(m.opts.Concepts, func(c gateway.Concept) bool { return c.ID == id }) &&
			!slices.Contains(m.covered, id) {
			m.covered = append(m.covered, id)
			newly = true
		}
	}
	text := strings.TrimSpace(r.Text)
	if r.Err != nil && text != "" {
		text = m.opts.Messages.ErrorPrefix + text
	}
	if text != "" {
		m.say(text)
	}
	switch {
	case m.complete():
		m.state = AllGoalsComplete
		m.say(m.opts.Messages.Completion)
	case newly:
		m.state = GoalAdvanced
	default:
		m.state = Retry
		if text == "" {
			m.say(m.opts.Messages.Retry)
		}
	}
	return Effects{}
}

// promptCurrent adds the rendered prompt of the current goal. It reports
// false when the goal has no prompt.
func (m *Machine) promptCurrent() bool {
	if m.sc.ConceptCheck() || m.current >= len(m.sc.Goals) {
		return false
	}
	p := m.sc.Goals[m.current].Prompt
	if strings.TrimSpace(p) == "" {
		return false
	}
	m.say(template.Render(p, m.global.Snapshot(), m.extracted.NonNull()))
	return true
}

func (m *Machine) say(text string) {
	m.transcript = append(m.transcript, gateway.Message{Role: gateway.RoleAssistant, Text: text})
}

func (m *Machine) complete() bool {
	if m.sc.ConceptCheck() {
		return len(m.covered) >= len(m.opts.Concepts)
	}
	return m.current >= len(m.sc.Goals)
}

func (m *Machine) pendingConcepts() []gateway.Concept {
	var out []gateway.Concept
	for _, c := range m.opts.Concepts {
		if !slices.Contains(m.covered, c.ID) {
			out = append(out, c)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Scenario returns the scenario definition.
func (m *Machine) Scenario() *lesson.Scenario { return m.sc }

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Transcript returns a copy of the chat transcript.
func (m *Machine) Transcript() []gateway.Message { return slices.Clone(m.transcript) }

// GoalIndex returns the index of the active goal, or the number of covered
// concepts for concept-check scenarios.
func (m *Machine) GoalIndex() int {
	if m.sc.ConceptCheck() {
		return len(m.covered)
	}
	return m.current
}

// GoalCount returns the number of goals or concepts.
func (m *Machine) GoalCount() int {
	if m.sc.ConceptCheck() {
		return len(m.opts.Concepts)
	}
	return len(m.sc.Goals)
}

// GoalTitle returns the active goal's title, or "" when complete.
func (m *Machine) GoalTitle() string {
	if m.sc.ConceptCheck() || m.current >= len(m.sc.Goals) {
		return ""
	}
	return m.sc.Goals[m.current].Title
}

// CompletedGoals returns the completed goal indexes.
func (m *Machine) CompletedGoals() []int { return slices.Clone(m.completed) }

// Covered returns the concept ids covered so far.
func (m *Machine) Covered() []string { return slices.Clone(m.covered) }

// Extracted returns a copy of the scenario-local extracted values.
func (m *Machine) Extracted() vars.Optional { return m.extracted.Clone() }

// Progress returns the persistable record.
func (m *Machine) Progress() *progress.ScenarioProgress {
	return &progress.ScenarioProgress{
		CompletedGoals:   slices.Clone(m.completed),
		CurrentGoalIndex: m.current,
		ExtractedInfo:    m.extracted.Clone(),
	}
}

// ---------------------------------------------------------------------------
// Turn
// ---------------------------------------------------------------------------

// Turn is one pending learner turn. Run touches no machine state, so it may
// execute on any goroutine.
type Turn struct {
	epoch   int
	concept bool

	Text       string
	Transcript []gateway.Message
	GoalIndex  int
	GoalTitle  string
	Extract    map[string]string
	Concepts   []gateway.Concept
}

// Outcome is the gateway's answer to a Turn.
type Outcome struct {
	epoch int

	Extracted  vars.Optional
	Evaluation gateway.Evaluation
	Reply      gateway.Reply
}

// Run performs the gateway calls: extraction (when the goal declares it)
// then evaluation, sequentially; or one open reply for concept checks.
func (t *Turn) Run(ctx context.Context, gw gateway.Gateway) Outcome {
	o := Outcome{epoch: t.epoch}
	if t.concept {
		o.Reply = gw.OpenReply(ctx, t.Transcript, t.Concepts)
		return o
	}
	if len(t.Extract) > 0 {
		o.Extracted = gw.ExtractInformation(ctx, t.Text, t.Extract)
	}
	o.Evaluation = gw.EvaluateGoal(ctx, t.Transcript, t.GoalTitle)
	return o
}
