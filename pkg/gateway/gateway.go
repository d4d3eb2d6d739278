// Package gateway is the boundary to the text-generation service that judges
// learner replies. Every operation is fail-soft: transport and parse
// failures come back as well-formed values, never as errors, so callers only
// handle one outcome shape.
package gateway

import (
	"context"

	"github.com/ormasoftchile/parla/pkg/vars"
)

// Role identifies the author of a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Verdict is the outcome of a goal evaluation.
type Verdict int

const (
	// Unrecognized means the service answered with neither an achieved nor
	// a not-achieved signal.
	Unrecognized Verdict = iota
	Achieved
	NotAchieved
)

func (v Verdict) String() string {
	switch v {
	case Achieved:
		return "achieved"
	case NotAchieved:
		return "not_achieved"
	default:
		return "unrecognized"
	}
}

// Evaluation is the result of EvaluateGoal.
type Evaluation struct {
	Verdict Verdict
	// Reason is the service's own short justification. It is diagnostic only.
	Reason string
	// Detail is text that must be shown to the learner instead of the
	// standard retry message, e.g. a transport error.
	Detail string
	// Raw is the unparsed service output.
	Raw string
	// Err is the transport or service error, if any.
	Err error
}

// Concept is a lesson item the learner is expected to use in a concept-check
// conversation.
type Concept struct {
	ID   string `json:"item_id"`
	Text string `json:"text"`
}

// Reply is the result of OpenReply.
type Reply struct {
	// Covered lists the concept ids the learner's last message used.
	Covered []string
	Text    string
	Err     error
}

// Gateway is the text-generation surface the scenario engine depends on.
type Gateway interface {
	// EvaluateGoal judges whether the transcript completes goalTitle.
	EvaluateGoal(ctx context.Context, transcript []Message, goalTitle string) Evaluation
	// ExtractInformation pulls the named values described by spec out of
	// text. Names the service could not find map to nil. Failures yield an
	// empty map.
	ExtractInformation(ctx context.Context, text string, spec map[string]string) vars.Optional
	// OpenReply continues a free conversation and reports which concepts the
	// learner just used. With no concepts it acts as a concise teacher
	// correcting the learner's last message.
	OpenReply(ctx context.Context, transcript []Message, concepts []Concept) Reply
}
