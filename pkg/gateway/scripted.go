package gateway

import (
	"context"
	"sync"

	"github.com/ormasoftchile/parla/pkg/vars"
)

// Scripted replays canned answers in order; the last answer of each kind
// repeats once the script runs out. It records every call. It is safe for
// use from a goroutine other than the one inspecting it.
type Scripted struct {
	mu          sync.Mutex
	Evaluations []Evaluation
	Extractions []vars.Optional
	Replies     []Reply

	EvaluateCalls []EvaluateCall
	ExtractCalls  []ExtractCall
	ReplyCalls    []ReplyCall
}

// EvaluateCall records one EvaluateGoal invocation.
type EvaluateCall struct {
	Transcript []Message
	GoalTitle  string
}

// ExtractCall records one ExtractInformation invocation.
type ExtractCall struct {
	Text string
	Spec map[string]string
}

// ReplyCall records one OpenReply invocation.
type ReplyCall struct {
	Transcript []Message
	Concepts   []Concept
}

// AlwaysAchieved returns a script that approves every goal.
func AlwaysAchieved() *Scripted {
	return &Scripted{Evaluations: []Evaluation{{Verdict: Achieved}}}
}

// EvaluateGoal implements Gateway.
func (s *Scripted) EvaluateGoal(_ context.Context, transcript []Message, goalTitle string) Evaluation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EvaluateCalls = append(s.EvaluateCalls, EvaluateCall{Transcript: append([]Message(nil), transcript...), GoalTitle: goalTitle})
	return next(s.Evaluations, len(s.EvaluateCalls)-1, Evaluation{Verdict: NotAchieved})
}

// ExtractInformation implements Gateway.
func (s *Scripted) ExtractInformation(_ context.Context, text string, spec map[string]string) vars.Optional {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ExtractCalls = append(s.ExtractCalls, ExtractCall{Text: text, Spec: spec})
	return next(s.Extractions, len(s.ExtractCalls)-1, vars.Optional{}).Clone()
}

// OpenReply implements Gateway.
func (s *Scripted) OpenReply(_ context.Context, transcript []Message, concepts []Concept) Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReplyCalls = append(s.ReplyCalls, ReplyCall{Transcript: append([]Message(nil), transcript...), Concepts: concepts})
	return next(s.Replies, len(s.ReplyCalls)-1, Reply{})
}

// Calls reports how many evaluation and extraction calls were made.
func (s *Scripted) Calls() (evaluate, extract, reply int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.EvaluateCalls), len(s.ExtractCalls), len(s.ReplyCalls)
}

func next[T any](script []T, i int, zero T) T {
	if len(script) == 0 {
		return zero
	}
	if i >= len(script) {
		i = len(script) - 1
	}
	return script[i]
}

var _ Gateway = (*Scripted)(nil)
