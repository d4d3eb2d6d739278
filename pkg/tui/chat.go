package tui

import (
	"slices"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/parla/pkg/engine"
	"github.com/ormasoftchile/parla/pkg/gateway"
	"github.com/ormasoftchile/parla/pkg/scenario"
)

// reveal tracks the typing animation over a transcript. Messages before
// index are fully shown and msgs[index] shows its first runes characters.
// Learner messages are never animated.
type reveal struct {
	msgs  []gateway.Message
	index int
	runes int
}

func newReveal(msgs []gateway.Message, from int) reveal {
	r := reveal{msgs: msgs, index: min(from, len(msgs))}
	r.skipUser()
	return r
}

func (r *reveal) skipUser() {
	for r.index < len(r.msgs) && r.msgs[r.index].Role == gateway.RoleUser {
		r.index++
	}
}

// Done reports whether every message is fully shown.
func (r *reveal) Done() bool { return r.index >= len(r.msgs) }

// Step shows one more character.
func (r *reveal) Step() {
	if r.Done() {
		return
	}
	r.runes++
	if r.runes >= len([]rune(r.msgs[r.index].Text)) {
		r.index++
		r.runes = 0
		r.skipUser()
	}
}

// Finish shows everything at once.
func (r *reveal) Finish() {
	r.index = len(r.msgs)
	r.runes = 0
}

// Visible returns the transcript as currently shown.
func (r *reveal) Visible() []gateway.Message {
	if r.Done() {
		return r.msgs
	}
	out := slices.Clone(r.msgs[:r.index])
	m := r.msgs[r.index]
	m.Text = string([]rune(m.Text)[:r.runes])
	return append(out, m)
}

// chatPanel is the scenario conversation: transcript, input line and the
// state of the in-flight turn.
type chatPanel struct {
	session *engine.Session
	slide   int
	snap    engine.Snapshot

	reveal    reveal
	typingSeq int // invalidates ticks from an abandoned animation
	turnSeq   int // invalidates outcomes the view no longer waits for
	busy      bool

	input      textinput.Model
	transcript transcriptPanel
	notice     string
}

func newChatPanel() chatPanel {
	ti := textinput.New()
	ti.Placeholder = "Type your reply..."
	ti.CharLimit = 500
	ti.Prompt = "› "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	return chatPanel{input: ti}
}

func (c *chatPanel) open(s *engine.Session, slide int) {
	c.session = s
	c.slide = slide
	c.snap = s.Snapshot()
	c.busy = c.snap.State == scenario.Evaluating
	c.notice = ""
	c.reveal = newReveal(c.snap.Transcript, 0)
	c.input.Reset()
	c.input.Focus()
	c.refresh()
}

func (c *chatPanel) close() {
	c.session = nil
	c.busy = false
	c.typingSeq++
	c.turnSeq++
	c.input.Blur()
}

// acceptsInput reports whether the learner may send a message now.
func (c *chatPanel) acceptsInput() bool {
	return c.session != nil && !c.busy && c.reveal.Done() && c.snap.InputEnabled
}

func (c *chatPanel) refresh() {
	c.transcript.SetMessages(c.reveal.Visible())
}
