package engine

import (
	"github.com/ormasoftchile/parla/pkg/lesson"
	"github.com/ormasoftchile/parla/pkg/logging"
)

// Cursor walks the slides of one lesson and remembers the position.
type Cursor struct {
	eng   *Engine
	l     *lesson.Lesson
	index int
	log   *logging.Logger
}

// OpenLesson positions a cursor at the saved slide of an unlocked lesson.
func (e *Engine) OpenLesson(lessonID string) (*Cursor, error) {
	if !e.d.Unlock.IsUnlocked(lessonID) {
		return nil, lockedErr(lessonID)
	}
	l, err := e.d.Lessons.Lesson(lessonID)
	if err != nil {
		return nil, err
	}
	c := &Cursor{eng: e, l: l, log: e.d.Log.With("lesson", lessonID)}
	pos, err := e.d.Progress.SlidePosition(lessonID)
	if err != nil {
		c.log.Warn("loading slide position failed", "error", err)
	}
	c.index = clamp(pos, 0, len(l.Slides)-1)
	return c, nil
}

// Lesson returns the lesson.
func (c *Cursor) Lesson() *lesson.Lesson { return c.l }

// Index returns the zero-based slide index.
func (c *Cursor) Index() int { return c.index }

// Len returns the number of slides.
func (c *Cursor) Len() int { return len(c.l.Slides) }

// Slide returns the current slide.
func (c *Cursor) Slide() *lesson.Slide { return &c.l.Slides[c.index] }

// Last reports whether the cursor is on the final slide.
func (c *Cursor) Last() bool { return c.index == len(c.l.Slides)-1 }

// Move shifts the cursor by delta slides, clamped to the lesson, and saves
// the new position. It reports whether the position changed.
func (c *Cursor) Move(delta int) bool {
	next := clamp(c.index+delta, 0, len(c.l.Slides)-1)
	if next == c.index {
		return false
	}
	c.index = next
	c.save()
	return true
}

// Finish marks the lesson completed, which unlocks its successor.
func (c *Cursor) Finish() {
	if err := c.eng.d.Progress.MarkLessonCompleted(c.l.ID); err != nil {
		c.log.Error("mark lesson completed failed", "error", err)
	}
	c.save()
	c.log.Info("lesson completed")
}

// Leave saves the current position.
func (c *Cursor) Leave() { c.save() }

func (c *Cursor) save() {
	if err := c.eng.d.Progress.PutSlidePosition(c.l.ID, c.index); err != nil {
		c.log.Error("persist slide position failed", "error", err)
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return max(lo, min(v, hi))
}
