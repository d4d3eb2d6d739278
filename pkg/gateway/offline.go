package gateway

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/ormasoftchile/parla/pkg/vars"
)

// Offline is a deterministic local stand-in used when no API key is
// configured. A goal counts as achieved when the learner's last message has
// at least MinWords words or shares a word with the goal title. Names are
// extracted with a few self-introduction patterns.
type Offline struct {
	MinWords int
}

// NewOffline returns an offline gateway with the default threshold.
func NewOffline() *Offline { return &Offline{MinWords: 3} }

var introPattern = regexp.MustCompile(`(?i)\b(?:ik ben|ik heet|mijn naam is|my name is|i am|i'm|me llamo|soy|je m'appelle|ich bin|ich heiße)\s+(\p{L}[\p{L}'-]*)`)

// EvaluateGoal implements Gateway.
func (o *Offline) EvaluateGoal(_ context.Context, transcript []Message, goalTitle string) Evaluation {
	last := lastUserText(transcript)
	words := tokenize(last)
	if len(words) == 0 {
		return Evaluation{Verdict: NotAchieved, Reason: "empty reply"}
	}
	if len(words) >= o.MinWords {
		return Evaluation{Verdict: Achieved, Reason: "reply is long enough"}
	}
	title := map[string]bool{}
	for _, w := range tokenize(goalTitle) {
		title[w] = true
	}
	for _, w := range words {
		if len([]rune(w)) >= 3 && title[w] {
			return Evaluation{Verdict: Achieved, Reason: "reply mentions the goal"}
		}
	}
	return Evaluation{Verdict: NotAchieved, Reason: "reply too short"}
}

// ExtractInformation implements Gateway. Only names are recognised; every
// other requested field comes back null.
func (o *Offline) ExtractInformation(_ context.Context, text string, spec map[string]string) vars.Optional {
	out := vars.Optional{}
	for name, desc := range spec {
		out[name] = nil
		if !strings.Contains(strings.ToLower(name+" "+desc), "name") {
			continue
		}
		if m := introPattern.FindStringSubmatch(text); m != nil {
			out.Set(name, capitalize(m[1]))
			continue
		}
		if w := strings.Fields(text); len(w) == 1 {
			out.Set(name, capitalize(strings.Trim(w[0], ".,!?")))
		}
	}
	return out
}

// OpenReply implements Gateway.
func (o *Offline) OpenReply(_ context.Context, transcript []Message, concepts []Concept) Reply {
	last := strings.ToLower(lastUserText(transcript))
	if len(concepts) == 0 {
		return Reply{Text: "Offline mode: answers cannot be corrected without a text-generation service."}
	}
	var covered []string
	for _, c := range concepts {
		for _, alt := range strings.Split(c.Text, ",") {
			alt = strings.ToLower(strings.TrimSpace(alt))
			if alt != "" && strings.Contains(last, alt) {
				covered = append(covered, c.ID)
				break
			}
		}
	}
	if len(covered) > 0 {
		return Reply{Covered: covered, Text: "Goed zo!"}
	}
	return Reply{Text: "Hmm, probeer het nog eens."}
}

func lastUserText(transcript []Message) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role == RoleUser {
			return transcript[i].Text
		}
	}
	return ""
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

var _ Gateway = (*Offline)(nil)
