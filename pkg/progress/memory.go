package progress

import (
	"maps"
	"sync"
)

// MemoryStore keeps progress in memory only. It backs tests and ephemeral
// runs.
type MemoryStore struct {
	mu  sync.Mutex
	rec *Record
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rec: NewRecord()}
}

func (m *MemoryStore) ScenarioProgress(lessonID, scenarioID string) (*ScenarioProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec.scenario(lessonID, scenarioID)
}

func (m *MemoryStore) PutScenarioProgress(lessonID, scenarioID string, p *ScenarioProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec.putScenario(lessonID, scenarioID, p)
	return nil
}

func (m *MemoryStore) ClearScenarioProgress(lessonID, scenarioID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec.clearScenario(lessonID, scenarioID)
	return nil
}

func (m *MemoryStore) MergeGlobalVariables(values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec.mergeGlobals(values)
	return nil
}

func (m *MemoryStore) GlobalVariables() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.rec.UserData), nil
}

func (m *MemoryStore) MarkLessonCompleted(lessonID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec.markCompleted(lessonID)
	return nil
}

func (m *MemoryStore) CompletedLessons() (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec.completed(), nil
}

func (m *MemoryStore) SlidePosition(lessonID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec.SlidePositions[lessonID], nil
}

func (m *MemoryStore) PutSlidePosition(lessonID string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec.SlidePositions[lessonID] = index
	return nil
}

func (m *MemoryStore) Snapshot() (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec.Clone(), nil
}

func (m *MemoryStore) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = NewRecord()
	return nil
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
