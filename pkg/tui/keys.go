package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds all TUI key bindings.
type keyMap struct {
	Open    key.Binding
	Up      key.Binding
	Down    key.Binding
	Prev    key.Binding
	Next    key.Binding
	Back    key.Binding
	Restart key.Binding
	Quit    key.Binding
	Abort   key.Binding
	PgUp    key.Binding
	PgDown  key.Binding
}

var keys = keyMap{
	Open: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "open"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Prev: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←/h", "previous slide"),
	),
	Next: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→/l", "next slide"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Restart: key.NewBinding(
		key.WithKeys("ctrl+r"),
		key.WithHelp("ctrl+r", "restart"),
	),
	// Quit is only honoured outside text input; Abort always is.
	Quit: key.NewBinding(
		key.WithKeys("q"),
		key.WithHelp("q", "quit"),
	),
	Abort: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
	PgUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("PgUp", "scroll up"),
	),
	PgDown: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("PgDn", "scroll down"),
	),
}

func hint(k, desc string) string {
	return keyStyle.Render(k) + keyDescStyle.Render(":"+desc)
}

// keyBarText renders the context-sensitive key hint string.
func keyBarText(s screen, interactive bool) string {
	switch s {
	case screenChat:
		return hint("enter", "send") + "  " +
			hint("ctrl+r", "restart") + "  " +
			hint("PgUp/Dn", "scroll") + "  " +
			hint("esc", "back") + "  " +
			hint("ctrl+c", "quit")
	case screenCheck:
		return hint("enter", "check") + "  " +
			hint("esc", "back") + "  " +
			hint("ctrl+c", "quit")
	case screenSlide:
		bar := hint("←→", "slides") + "  "
		if interactive {
			bar += hint("enter", "start") + "  "
		}
		return bar + hint("esc", "lessons") + "  " + hint("q", "quit")
	}
	return hint("↑↓", "select") + "  " +
		hint("enter", "open") + "  " +
		hint("q", "quit")
}
