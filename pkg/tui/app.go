package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/parla/pkg/engine"
	"github.com/ormasoftchile/parla/pkg/lesson"
	"github.com/ormasoftchile/parla/pkg/scenario"
	"github.com/ormasoftchile/parla/pkg/unlock"
)

// --- Tea messages ---

// turnDoneMsg carries a finished gateway round trip back to the loop.
type turnDoneMsg struct {
	session *engine.Session
	seq     int
	outcome engine.Outcome
}

// typeTickMsg advances the typing reveal by one character.
type typeTickMsg struct{ seq int }

// checkDoneMsg carries a free-text correction.
type checkDoneMsg struct {
	seq   int
	reply string
}

// --- Screens ---

type screen int

const (
	screenLessons screen = iota
	screenSlide
	screenChat
	screenCheck
)

// checkPanel is the free-text check: one answer line and the correction.
type checkPanel struct {
	input textinput.Model
	reply string
	seq   int
	busy  bool
}

// --- Model ---

// Model is the top-level Bubble Tea model for the player.
type Model struct {
	ctx context.Context
	eng *engine.Engine
	cfg Config

	screen  screen
	lessons lessonList
	cursor  *engine.Cursor
	// done marks interactive slides of the open lesson finished this visit.
	done map[int]bool

	chat    chatPanel
	check   checkPanel
	spinner spinner.Model

	notice string

	width  int
	height int
}

// Config holds the parameters needed to launch the TUI.
type Config struct {
	Engine *engine.Engine
	// TypingDelay is the per-character reveal delay for coach messages.
	// Zero shows messages at once.
	TypingDelay time.Duration
	// Language is shown in the header, e.g. "Dutch".
	Language string
}

// New builds the model without starting a program.
func New(ctx context.Context, cfg Config) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	ti := textinput.New()
	ti.Placeholder = "Your answer..."
	ti.CharLimit = 500
	ti.Prompt = "› "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)

	m := Model{
		ctx:     ctx,
		eng:     cfg.Engine,
		cfg:     cfg,
		chat:    newChatPanel(),
		check:   checkPanel{input: ti},
		spinner: sp,
		done:    map[int]bool{},
	}
	if err := m.lessons.Refresh(m.eng); err != nil {
		m.notice = "Could not read progress: " + err.Error()
	}
	return m
}

// Run starts the TUI and blocks until the learner quits.
func Run(ctx context.Context, cfg Config) error {
	p := tea.NewProgram(New(ctx, cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layoutPanels()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if m.screen == screenChat {
			m.chat.transcript.Update(msg)
		}

	case spinner.TickMsg:
		if m.chat.busy || m.check.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case turnDoneMsg:
		return m.completeTurn(msg)

	case typeTickMsg:
		if msg.seq != m.chat.typingSeq || m.chat.reveal.Done() {
			return m, nil
		}
		m.chat.reveal.Step()
		m.chat.refresh()
		if !m.chat.reveal.Done() {
			return m, m.typeTick()
		}

	case checkDoneMsg:
		if msg.seq != m.check.seq {
			return m, nil
		}
		m.check.busy = false
		m.check.reply = msg.reply
		if m.cursor != nil {
			m.done[m.cursor.Index()] = true
		}
	}

	return m, nil
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Abort) {
		m.leaveAll()
		return m, tea.Quit
	}
	m.notice = ""

	switch m.screen {
	case screenLessons:
		return m.lessonKey(msg)
	case screenSlide:
		return m.slideKey(msg)
	case screenChat:
		return m.chatKey(msg)
	case screenCheck:
		return m.checkKey(msg)
	}
	return m, nil
}

func (m Model) lessonKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Up):
		m.lessons.CursorUp()
	case key.Matches(msg, keys.Down):
		m.lessons.CursorDown()
	case key.Matches(msg, keys.Open):
		it, ok := m.lessons.Selected()
		if !ok {
			return m, nil
		}
		switch it.Reason {
		case unlock.Premium:
			m.notice = "This lesson is part of the premium course."
			return m, nil
		case unlock.Progression:
			m.notice = "Complete the previous lesson to unlock this one."
			return m, nil
		}
		c, err := m.eng.OpenLesson(it.ID)
		if err != nil {
			m.notice = err.Error()
			return m, nil
		}
		m.cursor = c
		m.done = map[int]bool{}
		m.screen = screenSlide
	}
	return m, nil
}

func (m Model) slideKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.leaveAll()
		return m, tea.Quit
	case key.Matches(msg, keys.Back):
		m.cursor.Leave()
		m.cursor = nil
		m.screen = screenLessons
	case key.Matches(msg, keys.Prev):
		m.cursor.Move(-1)
	case key.Matches(msg, keys.Next):
		return m.nextSlide()
	case key.Matches(msg, keys.Open):
		sl := m.cursor.Slide()
		switch sl.Type {
		case lesson.SlideScenario:
			return m.openScenario()
		case lesson.SlideFreeTextCheck:
			m.check.input.Reset()
			m.check.input.Focus()
			m.check.reply = ""
			m.check.busy = false
			m.screen = screenCheck
		}
	}
	return m, nil
}

// nextSlide advances, or finishes the lesson from the last slide once any
// exercise on it is done.
func (m Model) nextSlide() (tea.Model, tea.Cmd) {
	if !m.cursor.Last() {
		m.cursor.Move(1)
		return m, nil
	}
	if m.cursor.Slide().Type.Interactive() && !m.done[m.cursor.Index()] {
		m.notice = "Finish the exercise to complete the lesson."
		return m, nil
	}
	m.cursor.Finish()
	title := m.cursor.Lesson().Title
	m.cursor = nil
	m.screen = screenLessons
	if err := m.lessons.Refresh(m.eng); err != nil {
		m.notice = "Could not read progress: " + err.Error()
		return m, nil
	}
	m.lessons.CursorDown()
	m.notice = fmt.Sprintf("Lesson %q complete!", title)
	return m, nil
}

func (m Model) openScenario() (tea.Model, tea.Cmd) {
	sl := m.cursor.Slide()
	if sl.Scenario == nil {
		return m, nil
	}
	s, err := m.eng.Open(m.cursor.Lesson().ID, sl.Scenario.ID)
	if err != nil {
		m.notice = err.Error()
		return m, nil
	}
	m.chat.open(s, m.cursor.Index())
	m.screen = screenChat
	if m.chat.snap.NextUnlocked {
		m.done[m.chat.slide] = true
	}
	return m, m.startReveal(0)
}

func (m Model) chatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		if m.chat.busy {
			m.chat.notice = "Still thinking about your last message..."
			return m, nil
		}
		snap := m.chat.session.Leave()
		if snap.NextUnlocked {
			m.done[m.chat.slide] = true
		}
		m.chat.close()
		m.screen = screenSlide
		return m, nil
	case key.Matches(msg, keys.Restart):
		m.chat.snap = m.chat.session.Restart()
		m.chat.busy = false
		m.chat.turnSeq++
		m.chat.notice = ""
		return m, m.startReveal(0)
	case key.Matches(msg, keys.PgUp):
		m.chat.transcript.PageUp()
		return m, nil
	case key.Matches(msg, keys.PgDown):
		m.chat.transcript.PageDown()
		return m, nil
	case msg.Type == tea.KeyEnter:
		return m.send()
	}

	var cmd tea.Cmd
	m.chat.input, cmd = m.chat.input.Update(msg)
	return m, cmd
}

// send starts a turn: the learner message is recorded and shown at once,
// the gateway round trip runs off the loop.
func (m Model) send() (tea.Model, tea.Cmd) {
	if !m.chat.reveal.Done() {
		m.chat.reveal.Finish()
		m.chat.refresh()
		return m, nil
	}
	if !m.chat.acceptsInput() {
		return m, nil
	}
	text := strings.TrimSpace(m.chat.input.Value())
	if text == "" {
		return m, nil
	}

	turn, err := m.chat.session.Begin(text)
	switch {
	case errors.Is(err, engine.ErrBusy):
		m.chat.notice = "Still thinking about your last message..."
		return m, nil
	case errors.Is(err, scenario.ErrInvalidState):
		m.chat.notice = "This conversation is complete."
		return m, nil
	case err != nil:
		m.chat.notice = err.Error()
		return m, nil
	}

	m.chat.input.Reset()
	m.chat.busy = true
	m.chat.turnSeq++
	m.chat.snap = m.chat.session.Snapshot()
	m.chat.reveal = newReveal(m.chat.snap.Transcript, len(m.chat.snap.Transcript))
	m.chat.refresh()

	ctx, s, seq := m.ctx, m.chat.session, m.chat.turnSeq
	run := func() tea.Msg {
		return turnDoneMsg{session: s, seq: seq, outcome: turn.Run(ctx)}
	}
	return m, tea.Batch(m.spinner.Tick, run)
}

// completeTurn applies an outcome. Outcomes always reach their session so
// the result is persisted even after the learner left or restarted; the
// view only follows the turn it is waiting for.
func (m Model) completeTurn(msg turnDoneMsg) (tea.Model, tea.Cmd) {
	snap := msg.session.Complete(msg.outcome)
	if msg.session != m.chat.session || msg.seq != m.chat.turnSeq {
		return m, nil
	}
	from := len(m.chat.snap.Transcript)
	m.chat.busy = false
	m.chat.notice = ""
	m.chat.snap = snap
	if snap.NextUnlocked {
		m.done[m.chat.slide] = true
	}
	return m, m.startReveal(from)
}

// startReveal animates the transcript from message index from onward.
func (m *Model) startReveal(from int) tea.Cmd {
	m.chat.typingSeq++
	m.chat.reveal = newReveal(m.chat.snap.Transcript, from)
	if m.cfg.TypingDelay <= 0 {
		m.chat.reveal.Finish()
	}
	m.chat.refresh()
	if m.chat.reveal.Done() {
		return nil
	}
	return m.typeTick()
}

func (m Model) typeTick() tea.Cmd {
	seq := m.chat.typingSeq
	return tea.Tick(m.cfg.TypingDelay, func(time.Time) tea.Msg {
		return typeTickMsg{seq: seq}
	})
}

func (m Model) checkKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		m.check.seq++
		m.check.busy = false
		m.check.input.Blur()
		m.screen = screenSlide
		return m, nil
	case msg.Type == tea.KeyEnter:
		answer := strings.TrimSpace(m.check.input.Value())
		if answer == "" || m.check.busy {
			return m, nil
		}
		m.check.busy = true
		m.check.seq++
		ctx, eng, seq, question := m.ctx, m.eng, m.check.seq, m.cursor.Slide().Question
		run := func() tea.Msg {
			return checkDoneMsg{seq: seq, reply: eng.Check(ctx, question, answer)}
		}
		return m, tea.Batch(m.spinner.Tick, run)
	}

	var cmd tea.Cmd
	m.check.input, cmd = m.check.input.Update(msg)
	return m, cmd
}

// leaveAll persists whatever is open before quitting.
func (m *Model) leaveAll() {
	if m.chat.session != nil {
		m.chat.session.Leave()
		m.chat.close()
	}
	if m.cursor != nil {
		m.cursor.Leave()
	}
}

// layoutPanels recalculates panel dimensions based on terminal size.
func (m *Model) layoutPanels() {
	if m.width == 0 || m.height == 0 {
		return
	}
	// Layout: header(1) + main + input(1) + notice(1) + key bar(1)
	mainH := max(m.height-4, 4)
	m.lessons.width = m.width - 2
	m.lessons.height = mainH
	m.lessons.ensureVisible()
	m.chat.transcript.SetSize(m.width-2, mainH)
	m.chat.refresh()
	m.chat.input.Width = max(m.width-6, 10)
	m.check.input.Width = max(m.width-6, 10)
}

// View renders the complete TUI.
func (m Model) View() string {
	var main, input string
	interactive := false

	switch m.screen {
	case screenLessons:
		main = m.lessons.View()
	case screenSlide:
		sl := m.cursor.Slide()
		interactive = sl.Type.Interactive()
		main = m.panel(fmt.Sprintf("Slide %d/%d", m.cursor.Index()+1, m.cursor.Len()), renderSlide(sl, m.contentWidth()))
	case screenChat:
		main = m.chat.transcript.View("Conversation")
		input = m.chat.input.View()
		if m.chat.snap.State == scenario.AllGoalsComplete && m.chat.reveal.Done() {
			input = completeBannerStyle.Render("All goals complete! Press esc to continue.")
		}
	case screenCheck:
		sl := m.cursor.Slide()
		body := phraseStyle.Render(sl.Question)
		if m.check.reply != "" {
			body += "\n\n" + coachStyle.Render("Coach") + "\n" + renderMarkdown(m.check.reply, m.contentWidth())
		}
		main = m.panel("Check", body)
		input = m.check.input.View()
	}

	notice := m.notice
	if m.screen == screenChat && m.chat.notice != "" {
		notice = m.chat.notice
	}

	var b strings.Builder
	b.WriteString(m.renderHeader() + "\n" + main + "\n")
	if input != "" {
		b.WriteString(input + "\n")
	}
	if notice != "" {
		b.WriteString(noticeStyle.Render(notice) + "\n")
	}
	b.WriteString(keyBarStyle.Render(keyBarText(m.screen, interactive)))
	return b.String()
}

func (m Model) contentWidth() int {
	return max(m.width-6, 20)
}

func (m Model) panel(title, content string) string {
	style := panelBorder
	if m.width > 0 {
		style = style.Width(m.width - 2)
	}
	return style.Render(panelTitle.Render(title) + "\n" + content)
}

// renderHeader builds the top header line.
func (m Model) renderHeader() string {
	title := headerStyle.Render("parla")
	if m.cfg.Language != "" {
		title += " " + badgeStyle.Render(m.cfg.Language)
	}

	var name, status string
	switch m.screen {
	case screenLessons:
		total, completed := m.lessons.Stats()
		status = fmt.Sprintf("%d/%d complete", completed, total)
	case screenChat:
		name = m.cursor.Lesson().Title
		status = goalLine(m.chat.snap.GoalIndex, m.chat.snap.GoalCount)
		if m.chat.snap.GoalTitle != "" {
			status = m.chat.snap.GoalTitle + " " + status
		}
		if m.chat.busy {
			status = m.spinner.View() + " " + status
		}
	default:
		name = m.cursor.Lesson().Title
		if m.check.busy {
			status = m.spinner.View() + " checking"
		}
	}

	left := title
	if name != "" {
		room := max(m.width-lipgloss.Width(title)-lipgloss.Width(status)-6, 8)
		left += "  " + runewidth.Truncate(name, room, "…")
	}
	padding := max(m.width-lipgloss.Width(left)-lipgloss.Width(status)-2, 1)
	return left + strings.Repeat(" ", padding) + status
}
