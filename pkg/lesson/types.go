// Package lesson defines lesson documents and the read-only content store
// the player and the scenario engine consume.
package lesson

// ---------------------------------------------------------------------------
// Lesson
// ---------------------------------------------------------------------------

// Lesson is one lesson document: an ordered sequence of slides.
type Lesson struct {
	ID          string  `yaml:"id"                    json:"id"`
	Title       string  `yaml:"title"                 json:"title"`
	Order       int     `yaml:"order,omitempty"       json:"order,omitempty"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Slides      []Slide `yaml:"slides"                json:"slides" jsonschema:"minItems=1"`
}

// ---------------------------------------------------------------------------
// Slide
// ---------------------------------------------------------------------------

// SlideType enumerates the slide variants.
type SlideType string

const (
	SlideVocabulary      SlideType = "vocabulary"
	SlideExpression      SlideType = "expression"
	SlideGrammar         SlideType = "grammar"
	SlideTip             SlideType = "tip"
	SlidePracticeBuilder SlideType = "practice-builder"
	SlideExtra           SlideType = "extra"
	SlidePronunciation   SlideType = "pronunciation"
	SlideScenario        SlideType = "scenario"
	SlideFreeTextCheck   SlideType = "free-text-check"
)

// SlideTypes lists every slide variant in declaration order.
var SlideTypes = []SlideType{
	SlideVocabulary, SlideExpression, SlideGrammar, SlideTip, SlidePracticeBuilder,
	SlideExtra, SlidePronunciation, SlideScenario, SlideFreeTextCheck,
}

// Interactive reports whether the slide needs the learner to finish an
// exchange before the lesson may move on.
func (t SlideType) Interactive() bool {
	return t == SlideScenario || t == SlideFreeTextCheck
}

// Slide is the universal slide structure. Fields are populated based on Type.
type Slide struct {
	// Common fields
	Type   SlideType `yaml:"type"              json:"type" jsonschema:"enum=vocabulary,enum=expression,enum=grammar,enum=tip,enum=practice-builder,enum=extra,enum=pronunciation,enum=scenario,enum=free-text-check"`
	ItemID string    `yaml:"item_id,omitempty" json:"item_id,omitempty"`
	Title  string    `yaml:"title,omitempty"   json:"title,omitempty"`
	Body   string    `yaml:"body,omitempty"    json:"body,omitempty"` // markdown

	// Vocabulary slide: word → translation
	Words map[string]string `yaml:"words,omitempty" json:"words,omitempty"`

	// Expression slide
	Phrase      string `yaml:"phrase,omitempty"      json:"phrase,omitempty"`
	Translation string `yaml:"translation,omitempty" json:"translation,omitempty"`

	// Grammar, pronunciation and practice-builder slides
	Examples []string `yaml:"examples,omitempty" json:"examples,omitempty"`

	// Scenario slide
	Scenario *Scenario `yaml:"scenario,omitempty" json:"scenario,omitempty"`

	// Free-text check slide
	Question string `yaml:"question,omitempty" json:"question,omitempty"`
}

// ---------------------------------------------------------------------------
// Scenario
// ---------------------------------------------------------------------------

// Scenario is a multi-goal conversational exercise embedded in a slide.
// A scenario either lists goals, completed strictly in order, or lists
// concept item ids that the learner must use in free conversation.
type Scenario struct {
	ID       string   `yaml:"id"                 json:"id"`
	Setting  string   `yaml:"setting,omitempty"  json:"setting,omitempty"`
	Goals    []Goal   `yaml:"goals,omitempty"    json:"goals,omitempty"`
	Concepts []string `yaml:"concepts,omitempty" json:"concepts,omitempty"`
}

// ConceptCheck reports whether the scenario tracks concept coverage rather
// than sequential goals.
func (s *Scenario) ConceptCheck() bool {
	return len(s.Goals) == 0 && len(s.Concepts) > 0
}

// Goal is one conversational objective.
type Goal struct {
	Title  string `yaml:"title"  json:"title"`
	Prompt string `yaml:"prompt" json:"prompt"`
	// Extract maps a variable name to a description of what to pull out of
	// the learner's next message.
	Extract map[string]string `yaml:"extract,omitempty" json:"extract,omitempty"`
}
