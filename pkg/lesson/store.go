package lesson

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ormasoftchile/parla/pkg/logging"
)

// ErrNotFound is returned when a lesson or scenario id is unknown.
var ErrNotFound = errors.New("not found")

// Broken records a lesson document that could not be loaded. The player
// lists it as an empty, unplayable entry.
type Broken struct {
	Path   string
	Errors []*ValidationError
}

// Store is the read-only lesson content store. It is populated once and
// never mutated afterwards, so it is safe for concurrent readers.
type Store struct {
	lessons  []*Lesson
	byID     map[string]int
	concepts map[string]string
	broken   []Broken
}

// NewStore builds a store from already loaded lessons. Lessons are ordered by
// their Order field, then by id.
func NewStore(lessons []*Lesson) *Store {
	s := &Store{
		byID:     make(map[string]int, len(lessons)),
		concepts: map[string]string{},
	}
	sorted := slices.Clone(lessons)
	slices.SortStableFunc(sorted, func(a, b *Lesson) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), strings.Compare(a.ID, b.ID))
	})
	for _, l := range sorted {
		if _, dup := s.byID[l.ID]; dup {
			continue
		}
		s.byID[l.ID] = len(s.lessons)
		s.lessons = append(s.lessons, l)
		for _, sl := range l.Slides {
			if sl.ItemID == "" {
				continue
			}
			if text := conceptText(sl); text != "" {
				s.concepts[sl.ItemID] = text
			}
		}
	}
	return s
}

// documentExts lists the file extensions LoadDir picks up.
var documentExts = []string{".yaml", ".yml", ".json"}

// LoadDir loads every lesson document under dir concurrently. Documents that
// fail validation are logged, recorded as Broken and skipped; only a failure
// to read the directory itself is returned as an error.
func LoadDir(ctx context.Context, dir string, log *logging.Logger) (*Store, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if slices.Contains(documentExts, strings.ToLower(filepath.Ext(path))) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan lessons dir: %w", err)
	}
	slices.Sort(paths)

	var (
		mu      sync.Mutex
		lessons []*Lesson
		broken  []Broken
		seen    = map[string]string{}
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			l, errs := ValidateFile(path)
			for _, e := range errs {
				if e.Severity == "warning" {
					log.Warn("lesson warning", "path", path, "at", e.Path, "message", e.Message)
				}
			}

			mu.Lock()
			defer mu.Unlock()
			if HasErrors(errs) {
				for _, e := range errs {
					if e.Severity == "error" {
						log.Warn("skipping malformed lesson", "path", path, "phase", e.Phase, "at", e.Path, "message", e.Message)
					}
				}
				broken = append(broken, Broken{Path: path, Errors: errs})
				return nil
			}
			if other, dup := seen[l.ID]; dup {
				log.Warn("skipping duplicate lesson id", "path", path, "id", l.ID, "first", other)
				broken = append(broken, Broken{Path: path, Errors: []*ValidationError{{
					Phase: "domain", Path: "id", Severity: "error",
					Message: fmt.Sprintf("lesson id %q already defined in %s", l.ID, other),
				}}})
				return nil
			}
			seen[l.ID] = path
			lessons = append(lessons, l)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s := NewStore(lessons)
	slices.SortFunc(broken, func(a, b Broken) int { return strings.Compare(a.Path, b.Path) })
	s.broken = broken
	log.Info("lessons loaded", "dir", dir, "lessons", len(s.lessons), "skipped", len(broken))
	return s, nil
}

// Lessons returns the lessons in play order.
func (s *Store) Lessons() []*Lesson { return s.lessons }

// Broken returns the documents skipped during loading.
func (s *Store) Broken() []Broken { return s.broken }

// Lesson returns the lesson with the given id.
func (s *Store) Lesson(id string) (*Lesson, error) {
	i, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("lesson %q: %w", id, ErrNotFound)
	}
	return s.lessons[i], nil
}

// Position returns the zero-based play position of a lesson, or -1.
func (s *Store) Position(id string) int {
	if i, ok := s.byID[id]; ok {
		return i
	}
	return -1
}

// Scenario returns a scenario by lesson and scenario id.
func (s *Store) Scenario(lessonID, scenarioID string) (*Scenario, error) {
	l, err := s.Lesson(lessonID)
	if err != nil {
		return nil, err
	}
	for i := range l.Slides {
		if sc := l.Slides[i].Scenario; sc != nil && sc.ID == scenarioID {
			return sc, nil
		}
	}
	return nil, fmt.Errorf("scenario %q in lesson %q: %w", scenarioID, lessonID, ErrNotFound)
}

// ConceptText resolves a concept item id to the words a learner is expected
// to use: the vocabulary word, the expression phrase or the grammar title.
func (s *Store) ConceptText(itemID string) (string, bool) {
	t, ok := s.concepts[itemID]
	return t, ok
}

func conceptText(sl Slide) string {
	switch sl.Type {
	case SlideVocabulary:
		keys := make([]string, 0, len(sl.Words))
		for k := range sl.Words {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		return PlainText(strings.Join(keys, ", "))
	case SlideExpression:
		return PlainText(sl.Phrase)
	case SlideGrammar:
		return PlainText(sl.Title)
	}
	return ""
}
