// Package progress persists learner progress: completed lessons, slide
// positions, per-scenario goal counters and the global captured variables.
package progress

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/ormasoftchile/parla/pkg/vars"
)

// ErrNotFound is returned when no progress is stored for a scenario.
var ErrNotFound = errors.New("no progress recorded")

// ErrCorrupt is returned when a progress document cannot be decoded.
var ErrCorrupt = errors.New("corrupt progress document")

// ScenarioProgress is the resumable state of one scenario.
// CurrentGoalIndex always equals len(CompletedGoals).
type ScenarioProgress struct {
	CompletedGoals   []int         `json:"completed_goals"`
	CurrentGoalIndex int           `json:"current_goal_index"`
	ExtractedInfo    vars.Optional `json:"extracted_info"`
}

// Clone returns a deep copy.
func (p *ScenarioProgress) Clone() *ScenarioProgress {
	if p == nil {
		return nil
	}
	return &ScenarioProgress{
		CompletedGoals:   slices.Clone(p.CompletedGoals),
		CurrentGoalIndex: p.CurrentGoalIndex,
		ExtractedInfo:    p.ExtractedInfo.Clone(),
	}
}

// Check verifies the sequential-completion invariant.
func (p *ScenarioProgress) Check(goalCount int) error {
	if p.CurrentGoalIndex < 0 || p.CurrentGoalIndex > goalCount {
		return fmt.Errorf("current goal index %d out of range [0,%d]", p.CurrentGoalIndex, goalCount)
	}
	if len(p.CompletedGoals) != p.CurrentGoalIndex {
		return fmt.Errorf("current goal index %d but %d completed goals", p.CurrentGoalIndex, len(p.CompletedGoals))
	}
	for i, g := range p.CompletedGoals {
		if g != i {
			return fmt.Errorf("completed goals %v are not a prefix", p.CompletedGoals)
		}
	}
	return nil
}

// Store is the durable progress record. Every mutating call is durable when
// it returns; writes replace whole records.
type Store interface {
	ScenarioProgress(lessonID, scenarioID string) (*ScenarioProgress, error)
	PutScenarioProgress(lessonID, scenarioID string, p *ScenarioProgress) error
	ClearScenarioProgress(lessonID, scenarioID string) error

	MergeGlobalVariables(values map[string]string) error
	GlobalVariables() (map[string]string, error)

	MarkLessonCompleted(lessonID string) error
	CompletedLessons() (map[string]bool, error)

	SlidePosition(lessonID string) (int, error)
	PutSlidePosition(lessonID string, index int) error

	Snapshot() (*Record, error)
	Reset() error
	Close() error
}

// Record is the full progress document, as written by FileStore.
type Record struct {
	CompletedLessons []string                                `json:"completed_lessons"`
	Scenarios        map[string]map[string]*ScenarioProgress `json:"interactive_scenario_progress"`
	SlidePositions   map[string]int                          `json:"lesson_slide_positions"`
	UserData         map[string]string                       `json:"user_data"`
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	r := &Record{}
	r.normalize()
	return r
}

func (r *Record) normalize() {
	if r.CompletedLessons == nil {
		r.CompletedLessons = []string{}
	}
	if r.Scenarios == nil {
		r.Scenarios = map[string]map[string]*ScenarioProgress{}
	}
	if r.SlidePositions == nil {
		r.SlidePositions = map[string]int{}
	}
	if r.UserData == nil {
		r.UserData = map[string]string{}
	}
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	out := &Record{
		CompletedLessons: slices.Clone(r.CompletedLessons),
		Scenarios:        make(map[string]map[string]*ScenarioProgress, len(r.Scenarios)),
		SlidePositions:   maps.Clone(r.SlidePositions),
		UserData:         maps.Clone(r.UserData),
	}
	for l, byScenario := range r.Scenarios {
		m := make(map[string]*ScenarioProgress, len(byScenario))
		for s, p := range byScenario {
			m[s] = p.Clone()
		}
		out.Scenarios[l] = m
	}
	out.normalize()
	return out
}

func (r *Record) scenario(lessonID, scenarioID string) (*ScenarioProgress, error) {
	p, ok := r.Scenarios[lessonID][scenarioID]
	if !ok || p == nil {
		return nil, fmt.Errorf("scenario %s/%s: %w", lessonID, scenarioID, ErrNotFound)
	}
	return p.Clone(), nil
}

func (r *Record) putScenario(lessonID, scenarioID string, p *ScenarioProgress) {
	if r.Scenarios[lessonID] == nil {
		r.Scenarios[lessonID] = map[string]*ScenarioProgress{}
	}
	r.Scenarios[lessonID][scenarioID] = p.Clone()
}

func (r *Record) clearScenario(lessonID, scenarioID string) {
	delete(r.Scenarios[lessonID], scenarioID)
	if len(r.Scenarios[lessonID]) == 0 {
		delete(r.Scenarios, lessonID)
	}
}

func (r *Record) mergeGlobals(values map[string]string) {
	maps.Copy(r.UserData, values)
}

func (r *Record) markCompleted(lessonID string) bool {
	if slices.Contains(r.CompletedLessons, lessonID) {
		return false
	}
	r.CompletedLessons = append(r.CompletedLessons, lessonID)
	return true
}

func (r *Record) completed() map[string]bool {
	out := make(map[string]bool, len(r.CompletedLessons))
	for _, id := range r.CompletedLessons {
		out[id] = true
	}
	return out
}
