package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/parla/pkg/engine"
	"github.com/ormasoftchile/parla/pkg/unlock"
)

// lessonItem holds the display state for a single lesson.
type lessonItem struct {
	ID        string
	Title     string
	Reason    unlock.Reason
	Completed bool
}

// lessonList renders the scrollable lesson list.
type lessonList struct {
	items  []lessonItem
	cursor int
	width  int
	height int
	offset int // scroll offset
}

// Refresh rebuilds the list from the engine, keeping the cursor on the
// same lesson when it still exists.
func (p *lessonList) Refresh(eng *engine.Engine) error {
	selected := p.SelectedID()
	completed, err := eng.Progress().CompletedLessons()
	lessons := eng.Lessons().Lessons()
	p.items = make([]lessonItem, len(lessons))
	for i, l := range lessons {
		p.items[i] = lessonItem{
			ID:        l.ID,
			Title:     l.Title,
			Reason:    eng.LockReason(l.ID),
			Completed: completed[l.ID],
		}
		if l.ID == selected {
			p.cursor = i
		}
	}
	if p.cursor >= len(p.items) {
		p.cursor = max(len(p.items)-1, 0)
	}
	p.ensureVisible()
	return err
}

// CursorUp moves the cursor up.
func (p *lessonList) CursorUp() {
	if p.cursor > 0 {
		p.cursor--
		p.ensureVisible()
	}
}

// CursorDown moves the cursor down.
func (p *lessonList) CursorDown() {
	if p.cursor < len(p.items)-1 {
		p.cursor++
		p.ensureVisible()
	}
}

// Selected returns the lesson under the cursor.
func (p *lessonList) Selected() (lessonItem, bool) {
	if p.cursor >= 0 && p.cursor < len(p.items) {
		return p.items[p.cursor], true
	}
	return lessonItem{}, false
}

// SelectedID returns the lesson id under the cursor.
func (p *lessonList) SelectedID() string {
	it, _ := p.Selected()
	return it.ID
}

func (p *lessonList) ensureVisible() {
	visible := max(p.height-3, 1)
	if p.cursor < p.offset {
		p.offset = p.cursor
	}
	if p.cursor >= p.offset+visible {
		p.offset = p.cursor - visible + 1
	}
}

// View renders the lesson list panel.
func (p *lessonList) View() string {
	if len(p.items) == 0 {
		return panelBorder.Width(p.width).Height(p.height).Render("  No lessons loaded")
	}

	visible := max(p.height-3, 1)
	end := min(p.offset+visible, len(p.items))

	var lines []string
	for i := p.offset; i < end; i++ {
		it := p.items[i]

		var glyph, badge string
		var style lipgloss.Style
		switch {
		case it.Completed:
			glyph, style = GlyphCompleted, lessonDone
		case it.Reason == unlock.Premium:
			glyph, style, badge = GlyphPremium, lessonPremium, " premium"
		case it.Reason == unlock.Progression:
			glyph, style, badge = GlyphLocked, lessonLocked, " locked"
		default:
			glyph, style = GlyphUnlocked, lessonNormal
		}

		title := it.Title
		if title == "" {
			title = it.ID
		}
		num := fmt.Sprintf("%d.", i+1)
		maxTitle := max(p.width-10-len(num)-len(badge), 4)
		title = runewidth.Truncate(title, maxTitle, "…")

		line := fmt.Sprintf(" %s %s %s%s", glyph, num, title, badge)
		if i == p.cursor {
			line = style.Reverse(true).Render(line)
		} else {
			line = style.Render(line)
		}
		lines = append(lines, line)
	}
	for len(lines) < visible {
		lines = append(lines, "")
	}

	return panelBorder.Width(p.width).Height(p.height).Render(
		panelTitle.Render("Lessons") + "\n" + strings.Join(lines, "\n"),
	)
}

// Stats returns the number of lessons and how many are completed.
func (p *lessonList) Stats() (total, completed int) {
	for _, it := range p.items {
		if it.Completed {
			completed++
		}
	}
	return len(p.items), completed
}
