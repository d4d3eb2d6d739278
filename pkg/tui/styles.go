// Package tui implements the terminal lesson player: a lesson list with
// unlock badges, a slide viewer and the scenario chat, rendered as a Bubble
// Tea app over an engine.Engine.
package tui

import "github.com/charmbracelet/lipgloss"

// Lesson and goal glyphs convey state without relying on color alone.
const (
	GlyphUnlocked  = "○"
	GlyphCompleted = "✓"
	GlyphPremium   = "★"
	GlyphLocked    = "⊘"
	GlyphCurrent   = "▸"
	GlyphGoalDone  = "●"
	GlyphGoalOpen  = "○"
)

// Palette adapts to terminal capabilities via lipgloss.
var (
	colorGreen   = lipgloss.Color("42")
	colorRed     = lipgloss.Color("196")
	colorYellow  = lipgloss.Color("214")
	colorBlue    = lipgloss.Color("39")
	colorCyan    = lipgloss.Color("51")
	colorDim     = lipgloss.Color("240")
	colorWhite   = lipgloss.Color("255")
	colorMagenta = lipgloss.Color("201")
)

// --- Header styles ---

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan).
	Padding(0, 1)

var badgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("0")).
	Background(colorYellow).
	Padding(0, 1)

// --- Lesson list styles ---

var (
	lessonNormal = lipgloss.NewStyle().
			Foreground(colorWhite)

	lessonDone = lipgloss.NewStyle().
			Foreground(colorGreen)

	lessonLocked = lipgloss.NewStyle().
			Faint(true)

	lessonPremium = lipgloss.NewStyle().
			Foreground(colorMagenta)
)

// --- Panel styles ---

var (
	panelBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim)

	panelTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan).
			Padding(0, 1)
)

// --- Slide styles ---

var (
	slideTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	phraseStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite)

	translationStyle = lipgloss.NewStyle().
				Foreground(colorDim).
				Italic(true)

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue)
)

// --- Chat styles ---

var (
	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorGreen)

	coachStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	goalDoneStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	goalOpenStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)

// --- Key bar styles ---

var (
	keyStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	keyDescStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	keyBarStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

// --- Banner ---

var completeBannerStyle = lipgloss.NewStyle().
	Border(lipgloss.DoubleBorder()).
	BorderForeground(colorGreen).
	Foreground(colorGreen).
	Bold(true).
	Padding(0, 2).
	Align(lipgloss.Center)

var (
	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(colorYellow)
)
