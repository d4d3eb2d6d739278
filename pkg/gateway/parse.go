package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ormasoftchile/parla/pkg/vars"
)

// Legacy line markers understood when a backend answers in plain text.
const (
	goalMarker    = "GOAL_ACHIEVED:"
	conceptMarker = "CONCEPTS_COVERED:"
)

type evaluationResponse struct {
	Achieved *bool  `json:"achieved" jsonschema:"required,description=true only if the learner completed the goal"`
	Reason   string `json:"reason" jsonschema:"required,description=one short sentence explaining the decision"`
}

type replyResponse struct {
	Covered []string `json:"covered" jsonschema:"required,description=item ids of the concepts the learner just used"`
	Reply   string   `json:"reply" jsonschema:"required,description=your conversational answer"`
}

// ParseEvaluation interprets a goal-evaluation answer. Strict JSON
// ({"achieved": bool, "reason": string}) is preferred; a "GOAL_ACHIEVED:
// true|false" marker line is accepted for plain-text backends, in which case
// any further lines after a false marker become Detail. Anything else is
// Unrecognized.
func ParseEvaluation(text string) Evaluation {
	ev := Evaluation{Raw: text}
	body := stripFences(text)

	if strings.HasPrefix(body, "{") {
		var r evaluationResponse
		if err := json.Unmarshal([]byte(body), &r); err == nil && r.Achieved != nil {
			ev.Reason = r.Reason
			if *r.Achieved {
				ev.Verdict = Achieved
			} else {
				ev.Verdict = NotAchieved
			}
			return ev
		}
	}

	lines := strings.Split(body, "\n")
	for i, line := range lines {
		value, ok := strings.CutPrefix(strings.TrimSpace(line), goalMarker)
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true":
			ev.Verdict = Achieved
			return ev
		case "false":
			ev.Verdict = NotAchieved
			ev.Detail = strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
			return ev
		}
	}
	return ev
}

// ParseReply interprets an open-conversation answer: strict JSON
// ({"covered": [...], "reply": string}), a "CONCEPTS_COVERED: [...]" marker
// line followed by the reply, or plain text with nothing covered.
func ParseReply(text string) Reply {
	body := stripFences(text)

	if strings.HasPrefix(body, "{") {
		var r replyResponse
		if err := json.Unmarshal([]byte(body), &r); err == nil {
			return Reply{Covered: r.Covered, Text: strings.TrimSpace(r.Reply)}
		}
	}

	first, rest, _ := strings.Cut(body, "\n")
	if value, ok := strings.CutPrefix(strings.TrimSpace(first), conceptMarker); ok {
		var covered []string
		if err := json.Unmarshal([]byte(strings.TrimSpace(value)), &covered); err != nil {
			covered = nil
		}
		return Reply{Covered: covered, Text: strings.TrimSpace(rest)}
	}
	return Reply{Text: body}
}

// ParseExtraction decodes an extraction answer, keeping only the names in
// spec. Unparseable answers produce an empty map.
func ParseExtraction(text string, spec map[string]string) vars.Optional {
	out := vars.Optional{}
	var raw map[string]any
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return out
	}
	for name := range spec {
		v, ok := raw[name]
		if !ok {
			continue
		}
		switch x := v.(type) {
		case nil:
			out[name] = nil
		case string:
			if s := strings.TrimSpace(x); s != "" {
				out.Set(name, s)
			} else {
				out[name] = nil
			}
		case float64, bool:
			out.Set(name, fmt.Sprint(x))
		}
	}
	return out
}

// stripFences removes a surrounding markdown code fence, which chat models
// add even when asked not to.
func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
