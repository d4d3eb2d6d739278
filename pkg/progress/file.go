package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the whole progress record in one JSON document and
// rewrites it atomically on every mutation.
type FileStore struct {
	mu   sync.Mutex
	path string
	rec  *Record
}

// OpenFile loads the progress document at path. A missing file yields an
// empty record; the file is created on the first write.
func OpenFile(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("progress path is required")
	}
	rec, err := LoadRecord(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{path: path, rec: rec}, nil
}

// LoadRecord reads a progress document from disk.
func LoadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewRecord(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal progress: %w: %w", ErrCorrupt, err)
	}
	rec.normalize()
	return &rec, nil
}

// SaveRecord writes rec to path via a temp file and rename, so a crash
// never leaves a truncated document behind.
func SaveRecord(path string, rec *Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create progress dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".progress-*.json")
	if err != nil {
		return fmt.Errorf("create temp progress: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write progress: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close progress: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace progress: %w", err)
	}
	return nil
}

// Path returns the document location.
func (f *FileStore) Path() string { return f.path }

// update applies fn to a copy of the record and commits it only once the
// copy is on disk.
func (f *FileStore) update(fn func(r *Record)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.rec.Clone()
	fn(next)
	if err := SaveRecord(f.path, next); err != nil {
		return err
	}
	f.rec = next
	return nil
}

func (f *FileStore) ScenarioProgress(lessonID, scenarioID string) (*ScenarioProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rec.scenario(lessonID, scenarioID)
}

func (f *FileStore) PutScenarioProgress(lessonID, scenarioID string, p *ScenarioProgress) error {
	return f.update(func(r *Record) { r.putScenario(lessonID, scenarioID, p) })
}

func (f *FileStore) ClearScenarioProgress(lessonID, scenarioID string) error {
	return f.update(func(r *Record) { r.clearScenario(lessonID, scenarioID) })
}

func (f *FileStore) MergeGlobalVariables(values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	return f.update(func(r *Record) { r.mergeGlobals(values) })
}

func (f *FileStore) GlobalVariables() (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.rec.UserData), nil
}

func (f *FileStore) MarkLessonCompleted(lessonID string) error {
	return f.update(func(r *Record) { r.markCompleted(lessonID) })
}

func (f *FileStore) CompletedLessons() (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rec.completed(), nil
}

func (f *FileStore) SlidePosition(lessonID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rec.SlidePositions[lessonID], nil
}

func (f *FileStore) PutSlidePosition(lessonID string, index int) error {
	return f.update(func(r *Record) { r.SlidePositions[lessonID] = index })
}

func (f *FileStore) Snapshot() (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rec.Clone(), nil
}

func (f *FileStore) Reset() error {
	return f.update(func(r *Record) { *r = *NewRecord() })
}

func (f *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)
