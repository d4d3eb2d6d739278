package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ormasoftchile/parla/pkg/lesson"
)

// renderSlide renders the static part of a slide at the given width.
func renderSlide(sl *lesson.Slide, width int) string {
	var b strings.Builder
	if sl.Title != "" {
		b.WriteString(slideTitleStyle.Render(sl.Title) + "\n\n")
	}

	switch sl.Type {
	case lesson.SlideVocabulary:
		words := make([]string, 0, len(sl.Words))
		for w := range sl.Words {
			words = append(words, w)
		}
		slices.Sort(words)
		for _, w := range words {
			fmt.Fprintf(&b, "  %s  %s\n", phraseStyle.Render(w), translationStyle.Render(sl.Words[w]))
		}

	case lesson.SlideExpression:
		b.WriteString("  " + phraseStyle.Render(sl.Phrase) + "\n")
		if sl.Translation != "" {
			b.WriteString("  " + translationStyle.Render(sl.Translation) + "\n")
		}

	case lesson.SlideScenario:
		sc := sl.Scenario
		if sc == nil {
			break
		}
		if sc.Setting != "" {
			b.WriteString(renderMarkdown(sc.Setting, width) + "\n\n")
		}
		if sc.ConceptCheck() {
			b.WriteString(labelStyle.Render("Use these in conversation:") + "\n")
			for _, c := range sc.Concepts {
				b.WriteString("  " + GlyphGoalOpen + " " + c + "\n")
			}
		} else {
			b.WriteString(labelStyle.Render("Goals:") + "\n")
			for i, g := range sc.Goals {
				fmt.Fprintf(&b, "  %d. %s\n", i+1, g.Title)
			}
		}
		b.WriteString("\n" + keyDescStyle.Render("Press enter to start the conversation."))

	case lesson.SlideFreeTextCheck:
		b.WriteString(phraseStyle.Render(sl.Question) + "\n\n")
		b.WriteString(keyDescStyle.Render("Press enter to answer."))
	}

	if sl.Body != "" {
		b.WriteString("\n" + renderMarkdown(sl.Body, width) + "\n")
	}
	if len(sl.Examples) > 0 {
		b.WriteString("\n" + labelStyle.Render("Examples:") + "\n")
		for _, ex := range sl.Examples {
			b.WriteString("  • " + ex + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// goalLine renders one glyph per goal, filled for completed goals.
func goalLine(done, total int) string {
	var b strings.Builder
	for i := range total {
		if i < done {
			b.WriteString(goalDoneStyle.Render(GlyphGoalDone))
		} else {
			b.WriteString(goalOpenStyle.Render(GlyphGoalOpen))
		}
	}
	return b.String()
}
