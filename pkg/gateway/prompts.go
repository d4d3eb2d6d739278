package gateway

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

func evaluationPrompt(goal, language string) string {
	return fmt.Sprintf(`You are a %s language learning goal evaluator. Your ONLY task is to decide whether the learner's latest message completes this goal: %q.
Be encouraging but honest: small spelling mistakes are fine, a reply in another language is not.
Answer with a JSON object {"achieved": true|false, "reason": "<one short sentence>"}.`, language, goal)
}

func extractionPrompt(spec map[string]string, language string) string {
	names := make([]string, 0, len(spec))
	for name := range spec {
		names = append(names, name)
	}
	slices.Sort(names)

	var b strings.Builder
	fmt.Fprintf(&b, "You are an information extraction assistant. The user is learning %s. Extract the following information from the user's message:\n\n", language)
	for _, name := range names {
		fmt.Fprintf(&b, "- %s: %s\n", name, spec[name])
	}
	b.WriteString("\nRespond with ONLY a JSON object containing the extracted values. If you cannot extract a value, use null.")
	return b.String()
}

func replyPrompt(concepts []Concept, language string) string {
	list, _ := json.Marshal(concepts)
	return fmt.Sprintf(`You are a friendly conversation partner helping the user practise %[1]s.
In your replies use ONLY words and phrases from these lesson concepts: %[2]s. If you need anything else, say it in English.
Before answering, check which of the concepts the user's LAST message used. Accept close forms and key parts of a phrase.
Never mention the concepts or this check to the user.
Answer with a JSON object {"covered": ["<item_id>", ...], "reply": "<your %[1]s reply>"}.`, language, list)
}

const correctionPrompt = `You are a friendly and concise language teacher. The user answers a question.
1. Decide whether the answer is correct for the question.
2. If it is, praise them briefly.
3. If it is not, correct it simply and explain the mistake in a single sentence.
Answer in plain text.`

// CorrectionMessage formats a free-text check for OpenReply with no
// concepts.
func CorrectionMessage(question, answer string) Message {
	return Message{
		Role: RoleUser,
		Text: fmt.Sprintf("The question was: %q. My answer was: %q.", question, answer),
	}
}

// schemaInstruction is appended in json_object mode, where the service does
// not enforce the schema itself.
func schemaInstruction(name string, schema map[string]any) string {
	b, _ := json.Marshal(schema)
	return fmt.Sprintf("Return ONLY a valid JSON value that conforms to this JSON Schema (%s). Do not include markdown or commentary.\n%s", name, b)
}
