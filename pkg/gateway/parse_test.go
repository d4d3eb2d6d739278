package gateway

import "testing"

func TestParseEvaluation(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		verdict Verdict
		detail  string
	}{
		{"json true", `{"achieved": true, "reason": "greeted"}`, Achieved, ""},
		{"json false", `{"achieved": false, "reason": "no greeting"}`, NotAchieved, ""},
		{"fenced json", "```json\n{\"achieved\": true, \"reason\": \"ok\"}\n```", Achieved, ""},
		{"marker true", "GOAL_ACHIEVED: true", Achieved, ""},
		{"marker false", "GOAL_ACHIEVED: false", NotAchieved, ""},
		{"marker false with error", "GOAL_ACHIEVED: false\nconnection refused\n\nUse your own API key", NotAchieved, "connection refused\n\nUse your own API key"},
		{"marker after chatter", "Let me think.\nGOAL_ACHIEVED: TRUE", Achieved, ""},
		{"json missing field", `{"reason": "hmm"}`, Unrecognized, ""},
		{"prose", "Great job, keep going!", Unrecognized, ""},
		{"empty", "", Unrecognized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := ParseEvaluation(tt.in)
			if ev.Verdict != tt.verdict {
				t.Errorf("verdict = %s, want %s", ev.Verdict, tt.verdict)
			}
			if ev.Detail != tt.detail {
				t.Errorf("detail = %q, want %q", ev.Detail, tt.detail)
			}
			if ev.Raw != tt.in {
				t.Errorf("raw = %q, want input", ev.Raw)
			}
		})
	}
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		covered int
		text    string
	}{
		{"json", `{"covered": ["L01_V01"], "reply": "Ja, natuurlijk."}`, 1, "Ja, natuurlijk."},
		{"marker", "CONCEPTS_COVERED: [\"L01_V01\", \"L01_G01\"]\nJa, natuurlijk. Een momentje.", 2, "Ja, natuurlijk. Een momentje."},
		{"marker empty", "CONCEPTS_COVERED: []\nHallo!", 0, "Hallo!"},
		{"marker bad list", "CONCEPTS_COVERED: oops\nHallo!", 0, "Hallo!"},
		{"plain", "Hallo! Wat kan ik voor je doen?", 0, "Hallo! Wat kan ik voor je doen?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseReply(tt.in)
			if len(r.Covered) != tt.covered {
				t.Errorf("covered = %v, want %d items", r.Covered, tt.covered)
			}
			if r.Text != tt.text {
				t.Errorf("text = %q, want %q", r.Text, tt.text)
			}
		})
	}
}

func TestParseExtraction(t *testing.T) {
	spec := map[string]string{"user_name": "the user's name", "age": "the user's age"}

	got := ParseExtraction(`{"user_name": "Ana", "age": null, "extra": "x"}`, spec)
	if v := got["user_name"]; v == nil || *v != "Ana" {
		t.Errorf("user_name = %v, want Ana", v)
	}
	if v, ok := got["age"]; !ok || v != nil {
		t.Errorf("age = %v, %v; want explicit null", v, ok)
	}
	if _, ok := got["extra"]; ok {
		t.Error("names that were not requested must be dropped")
	}

	if got := ParseExtraction(`{"age": 31}`, spec); got["age"] == nil || *got["age"] != "31" {
		t.Errorf("numeric age = %v, want 31", got["age"])
	}
	if got := ParseExtraction(`{"user_name": "  "}`, spec); got["user_name"] != nil {
		t.Error("blank values must be null")
	}
	if got := ParseExtraction("I think her name is Ana", spec); len(got) != 0 {
		t.Errorf("unparseable reply = %v, want empty map", got)
	}
}
