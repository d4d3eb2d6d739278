package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ormasoftchile/parla/pkg/engine"
	"github.com/ormasoftchile/parla/pkg/scenario"
)

// handleLine processes one input line. It reports whether to quit.
func (p *Player) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		p.handleSend(ctx, line)
		return false
	}

	switch strings.Fields(line)[0] {
	case "/restart", "/r":
		p.handleRestart()
	case "/goals", "/g":
		p.handleGoals()
	case "/vars", "/v":
		p.handleVars()
	case "/help", "/?":
		p.handleHelp()
	case "/quit", "/q":
		fmt.Fprintf(p.output, "Progress saved. Tot ziens!\n")
		return true
	default:
		fmt.Fprintf(p.output, "Unknown command: %q. Type '/help' for available commands.\n", line)
	}
	return false
}

// handleSend runs one turn synchronously and prints the coach's answer.
func (p *Player) handleSend(ctx context.Context, text string) {
	_, err := p.session.Submit(ctx, text)
	switch {
	case errors.Is(err, scenario.ErrInvalidState):
		fmt.Fprintf(p.output, "All goals are complete. Use '/restart' to practise again or '/quit'.\n")
		return
	case errors.Is(err, engine.ErrBusy):
		fmt.Fprintf(p.output, "Still evaluating the previous message.\n")
		return
	case err != nil:
		fmt.Fprintf(p.output, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(p.output)
	p.printNew()
}

// handleRestart resets the scenario and prints the first prompt again.
func (p *Player) handleRestart() {
	p.session.Restart()
	p.shown = 0
	fmt.Fprintf(p.output, "Scenario restarted.\n\n")
	p.printNew()
}

// handleGoals lists the goals with their completion state.
func (p *Player) handleGoals() {
	snap := p.session.Snapshot()
	sc := p.session.Scenario()
	if snap.ConceptCheck {
		fmt.Fprintf(p.output, "Concepts covered: %d/%d\n", snap.GoalIndex, snap.GoalCount)
		return
	}
	for i, g := range sc.Goals {
		mark := " "
		switch {
		case i < snap.GoalIndex:
			mark = "✓"
		case i == snap.GoalIndex:
			mark = "▸"
		}
		fmt.Fprintf(p.output, "  %s %d. %s\n", mark, i+1, g.Title)
	}
}

// handleVars prints the variables known to the session.
func (p *Player) handleVars() {
	vars := p.session.Snapshot().Variables
	if len(vars) == 0 {
		fmt.Fprintf(p.output, "(no variables set)\n")
		return
	}
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, k := range names {
		fmt.Fprintf(p.output, "  %s = %s\n", k, vars[k])
	}
}

// handleHelp prints the available commands.
func (p *Player) handleHelp() {
	fmt.Fprintf(p.output, `Anything not starting with '/' is sent to the coach.

  /restart, /r   start the scenario over
  /goals, /g     show goal progress
  /vars, /v      show remembered variables
  /help, /?      show this help
  /quit, /q      save progress and exit
`)
}
