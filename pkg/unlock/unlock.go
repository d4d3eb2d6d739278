// Package unlock decides which lessons a learner may open.
//
// A lesson is unlocked when it is the first lesson, or when the nearest
// preceding lesson that is not entitlement-gated has been completed. Without
// entitlement, gated lessons are locked outright and skipped when looking for
// the predecessor. Which lessons are gated is an expr-lang predicate over the
// lesson's 1-based number and 0-based position.
package unlock

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// DefaultGate gates every fourth lesson.
const DefaultGate = "number % 4 == 0"

// Reason explains a lesson's lock state.
type Reason string

const (
	Unlocked    Reason = "unlocked"
	Premium     Reason = "premium"
	Progression Reason = "progression"
)

// Policy is a compiled gating rule plus the learner's entitlement.
type Policy struct {
	Entitled bool
	source   string
	gate     *vm.Program
}

// NewPolicy compiles gate. An empty gate uses DefaultGate.
func NewPolicy(gate string, entitled bool) (*Policy, error) {
	if gate == "" {
		gate = DefaultGate
	}
	program, err := expr.Compile(gate, expr.Env(gateEnv(0)), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile gate %q: %w", gate, err)
	}
	return &Policy{Entitled: entitled, source: gate, gate: program}, nil
}

// Source returns the gate expression.
func (p *Policy) Source() string { return p.source }

func gateEnv(position int) map[string]any {
	return map[string]any{"number": position + 1, "position": position}
}

// Gated reports whether the lesson at position requires entitlement,
// regardless of whether the learner has it.
func (p *Policy) Gated(position int) (bool, error) {
	out, err := expr.Run(p.gate, gateEnv(position))
	if err != nil {
		return false, fmt.Errorf("eval gate %q: %w", p.source, err)
	}
	gated, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("gate %q did not return bool (got %T)", p.source, out)
	}
	return gated, nil
}

// locked reports whether position is gated for this learner. Evaluation
// errors count as not gated so a bad rule never hides content.
func (p *Policy) locked(position int) bool {
	if p.Entitled {
		return false
	}
	gated, err := p.Gated(position)
	return err == nil && gated
}

// Reason evaluates the lock state of the lesson id within order, the lesson
// ids in play order. Unknown ids are reported as Progression.
func (p *Policy) Reason(order []string, completed map[string]bool, id string) Reason {
	pos := -1
	for i, l := range order {
		if l == id {
			pos = i
			break
		}
	}
	switch {
	case pos < 0:
		return Progression
	case pos == 0:
		return Unlocked
	case p.locked(pos):
		return Premium
	}
	for i := pos - 1; i >= 0; i-- {
		if p.locked(i) {
			continue
		}
		if completed[order[i]] {
			return Unlocked
		}
		return Progression
	}
	return Unlocked
}

// CompletionSource reports the completed lesson ids.
type CompletionSource interface {
	CompletedLessons() (map[string]bool, error)
}

// Checker binds a policy to a lesson order and a live completion source.
type Checker struct {
	policy *Policy
	order  []string
	src    CompletionSource
}

// NewChecker returns a checker over the given play order.
func NewChecker(policy *Policy, order []string, src CompletionSource) *Checker {
	return &Checker{policy: policy, order: order, src: src}
}

// Reason returns the lock reason for id. If completion cannot be read, only
// ungated first lessons are considered unlocked.
func (c *Checker) Reason(id string) Reason {
	completed, err := c.src.CompletedLessons()
	if err != nil {
		completed = nil
	}
	return c.policy.Reason(c.order, completed, id)
}

// IsUnlocked reports whether the lesson may be opened.
func (c *Checker) IsUnlocked(id string) bool {
	return c.Reason(id) == Unlocked
}
