// Package chat implements the line-mode scenario player: a readline REPL
// over one engine session, with slash commands for restart and quit.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/parla/pkg/engine"
	"github.com/ormasoftchile/parla/pkg/gateway"
)

// commands lists the slash commands offered by completion.
var commands = []string{"/restart", "/goals", "/vars", "/help", "/quit"}

// Player runs one scenario session in the terminal.
type Player struct {
	session *engine.Session
	output  io.Writer
	// shown is how many transcript messages have been printed.
	shown int
}

// New creates a player for an opened session.
func New(s *engine.Session) *Player {
	return &Player{session: s, output: os.Stdout}
}

// Run starts the interactive loop. It returns when the learner quits or
// input ends; progress is persisted on the way out.
func (p *Player) Run(ctx context.Context) error {
	completer := readline.NewPrefixCompleter()
	for _, cmd := range commands {
		completer.Children = append(completer.Children, readline.PcItem(cmd))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          p.buildPrompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()
	p.output = rl.Stdout()

	snap := p.session.Snapshot()
	if snap.Setting != "" {
		fmt.Fprintf(p.output, "%s\n\n", snap.Setting)
	}
	fmt.Fprintf(p.output, "Type your replies. '/help' lists commands.\n\n")
	p.printNew()

	defer p.session.Leave()
	for {
		rl.SetPrompt(p.buildPrompt())
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if p.handleLine(ctx, line) {
			return nil
		}
	}
}

// buildPrompt creates the prompt string: parla[goal N/total | title]>
func (p *Player) buildPrompt() string {
	snap := p.session.Snapshot()
	if !snap.InputEnabled {
		return "parla[done]> "
	}
	if snap.ConceptCheck {
		return fmt.Sprintf("parla[%d/%d concepts]> ", snap.GoalIndex, snap.GoalCount)
	}
	return fmt.Sprintf("parla[%d/%d | %s]> ", snap.GoalIndex+1, snap.GoalCount, snap.GoalTitle)
}

// printNew prints transcript messages not shown yet.
func (p *Player) printNew() {
	transcript := p.session.Snapshot().Transcript
	if p.shown > len(transcript) {
		p.shown = 0
	}
	for _, m := range transcript[p.shown:] {
		if m.Role == gateway.RoleUser {
			continue
		}
		for _, line := range strings.Split(m.Text, "\n") {
			fmt.Fprintf(p.output, "  %s\n", line)
		}
		fmt.Fprintln(p.output)
	}
	p.shown = len(transcript)
}
