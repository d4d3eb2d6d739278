package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/parla/pkg/gateway"
)

// transcriptPanel renders the scrollable scenario conversation.
type transcriptPanel struct {
	viewport viewport.Model
	content  string

	width  int
	height int
	ready  bool
}

// SetSize updates the viewport dimensions.
func (p *transcriptPanel) SetSize(width, height int) {
	p.width = width
	p.height = height

	contentW := max(width-4, 1)  // border padding
	contentH := max(height-3, 1) // title + border

	if !p.ready {
		p.viewport = viewport.New(contentW, contentH)
		p.ready = true
	} else {
		p.viewport.Width = contentW
		p.viewport.Height = contentH
	}
	p.viewport.SetContent(p.content)
}

// SetMessages renders msgs and scrolls to the newest line.
func (p *transcriptPanel) SetMessages(msgs []gateway.Message) {
	width := 60
	if p.ready {
		width = p.viewport.Width
	}
	p.content = formatTranscript(msgs, width)
	if p.ready {
		p.viewport.SetContent(p.content)
		p.viewport.GotoBottom()
	}
}

// Content returns the rendered transcript text.
func (p *transcriptPanel) Content() string { return p.content }

// Update handles viewport-specific messages (mouse scroll, etc.).
func (p *transcriptPanel) Update(msg tea.Msg) {
	if p.ready {
		p.viewport, _ = p.viewport.Update(msg)
	}
}

// PageUp scrolls the viewport up.
func (p *transcriptPanel) PageUp() {
	if p.ready {
		p.viewport.HalfViewUp()
	}
}

// PageDown scrolls the viewport down.
func (p *transcriptPanel) PageDown() {
	if p.ready {
		p.viewport.HalfViewDown()
	}
}

func formatTranscript(msgs []gateway.Message, width int) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch m.Role {
		case gateway.RoleUser:
			b.WriteString(userStyle.Render("You") + "\n" + m.Text)
		default:
			b.WriteString(coachStyle.Render("Coach") + "\n" + lipgloss.NewStyle().Width(width).Render(m.Text))
		}
	}
	return b.String()
}

// View renders the transcript panel.
func (p *transcriptPanel) View(title string) string {
	var content string
	if p.ready {
		content = p.viewport.View()
	} else {
		content = p.content
	}

	header := panelTitle.Render(title)
	if p.ready && p.viewport.TotalLineCount() > p.viewport.VisibleLineCount() {
		scrollInfo := fmt.Sprintf(" %3.0f%%", p.viewport.ScrollPercent()*100)
		padding := max(p.width-4-len(title)-len(scrollInfo), 0)
		header += strings.Repeat(" ", padding) + keyDescStyle.Render(scrollInfo)
	}

	return panelBorder.Width(p.width).Height(p.height).Render(
		header + "\n" + content,
	)
}
