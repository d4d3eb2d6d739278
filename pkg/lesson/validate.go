package lesson

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ormasoftchile/parla/pkg/template"
)

// ValidationError represents a single validation problem with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // e.g. "slides[3].scenario.goals[1].prompt"
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// HasErrors reports whether errs contains at least one error-severity entry.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

// ValidateFile runs the three validation phases on a lesson document.
// Phase 1: Structural (strict YAML decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (lesson rules)
func ValidateFile(path string) (*Lesson, []*ValidationError) {
	l, err := LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}
	errs := Validate(l)
	if len(errs) > 0 {
		return l, errs
	}
	return l, nil
}

// Validate runs the semantic and domain phases on an already decoded lesson.
func Validate(l *Lesson) []*ValidationError {
	errs := validateSemantic(l)
	return append(errs, ValidateDomain(l)...)
}

var (
	compiledOnce   sync.Once
	compiledSchema *sjsonschema.Schema
	compileErr     error
)

func lessonSchema() (*sjsonschema.Schema, error) {
	compiledOnce.Do(func() {
		raw, err := GenerateJSONSchema()
		if err != nil {
			compileErr = fmt.Errorf("generate schema: %w", err)
			return
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			compileErr = fmt.Errorf("unmarshal schema: %w", err)
			return
		}
		c := sjsonschema.NewCompiler()
		if err := c.AddResource("lesson-v1.json", doc); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile("lesson-v1.json")
	})
	return compiledSchema, compileErr
}

// validateSemantic validates the lesson against the reflected JSON Schema.
func validateSemantic(l *Lesson) []*ValidationError {
	semantic := func(msg string) []*ValidationError {
		return []*ValidationError{{Phase: "semantic", Message: msg, Severity: "error"}}
	}

	sch, err := lessonSchema()
	if err != nil {
		return semantic(err.Error())
	}
	data, err := json.Marshal(l)
	if err != nil {
		return semantic(fmt.Sprintf("marshal for schema validation: %v", err))
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return semantic(fmt.Sprintf("unmarshal document: %v", err))
	}

	err = sch.Validate(doc)
	if err == nil {
		return nil
	}
	ve, ok := err.(*sjsonschema.ValidationError)
	if !ok {
		return semantic(err.Error())
	}
	var errs []*ValidationError
	for _, cause := range flattenValidationErrors(ve) {
		errs = append(errs, &ValidationError{
			Phase:    "semantic",
			Path:     jsonPointer(cause.InstanceLocation),
			Message:  fmt.Sprintf("%v", cause.ErrorKind),
			Severity: "error",
		})
	}
	return errs
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

func jsonPointer(loc []string) string {
	p := ""
	for _, s := range loc {
		p += "/" + s
	}
	return p
}

// ValidateDomain checks rules the schema cannot express.
func ValidateDomain(l *Lesson) []*ValidationError {
	var errs []*ValidationError
	add := func(severity, path, format string, args ...any) {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     path,
			Message:  fmt.Sprintf(format, args...),
			Severity: severity,
		})
	}

	if l.ID == "" {
		add("error", "id", "lesson id is required")
	}
	if l.Title == "" {
		add("error", "title", "lesson title is required")
	}

	scenarioIDs := map[string]int{}
	itemIDs := map[string]int{}
	for i, s := range l.Slides {
		path := fmt.Sprintf("slides[%d]", i)
		if !slices.Contains(SlideTypes, s.Type) {
			add("error", path+".type", "unknown slide type %q", s.Type)
			continue
		}
		if s.ItemID != "" {
			if prev, dup := itemIDs[s.ItemID]; dup {
				add("error", path+".item_id", "duplicate item_id %q (also slides[%d])", s.ItemID, prev)
			}
			itemIDs[s.ItemID] = i
		}

		switch s.Type {
		case SlideScenario:
			if s.Scenario == nil {
				add("error", path+".scenario", "scenario slide requires a scenario block")
				continue
			}
			if s.Scenario.ID == "" {
				add("error", path+".scenario.id", "scenario id is required")
			} else if prev, dup := scenarioIDs[s.Scenario.ID]; dup {
				add("error", path+".scenario.id", "duplicate scenario id %q (also slides[%d])", s.Scenario.ID, prev)
			} else {
				scenarioIDs[s.Scenario.ID] = i
			}
			errs = append(errs, validateScenario(path+".scenario", s.Scenario)...)
		case SlideFreeTextCheck:
			if s.Question == "" {
				add("error", path+".question", "free-text-check slide requires a question")
			}
		default:
			if s.Scenario != nil {
				add("warning", path+".scenario", "scenario block ignored on %s slide", s.Type)
			}
		}
	}
	return errs
}

func validateScenario(path string, sc *Scenario) []*ValidationError {
	var errs []*ValidationError
	add := func(severity, p, format string, args ...any) {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     p,
			Message:  fmt.Sprintf(format, args...),
			Severity: severity,
		})
	}

	if len(sc.Goals) == 0 && len(sc.Concepts) == 0 {
		add("error", path, "scenario needs goals or concepts")
		return errs
	}
	if len(sc.Goals) > 0 && len(sc.Concepts) > 0 {
		add("warning", path+".concepts", "concepts are ignored when goals are present")
	}

	// First goal index that extracts each name.
	extracted := map[string]int{}
	for gi, g := range sc.Goals {
		for name := range g.Extract {
			if _, ok := extracted[name]; !ok {
				extracted[name] = gi
			}
		}
	}

	for gi, g := range sc.Goals {
		gp := fmt.Sprintf("%s.goals[%d]", path, gi)
		if g.Title == "" {
			add("error", gp+".title", "goal title is required")
		}
		if g.Prompt == "" {
			add("warning", gp+".prompt", "goal has no prompt; a generic message is shown instead")
		}
		// A goal's prompt is shown before the learner answers it, so only
		// names extracted by strictly earlier goals are guaranteed to exist.
		for _, name := range template.Placeholders(g.Prompt) {
			at, ok := extracted[name]
			switch {
			case !ok:
				add("warning", gp+".prompt", "placeholder {%s} is not extracted in this scenario; it renders only if an earlier scenario captured it", name)
			case at >= gi:
				add("warning", gp+".prompt", "placeholder {%s} is first extracted by goals[%d], after this prompt is shown", name, at)
			}
		}
		for name, desc := range g.Extract {
			if !template.IsName(name) {
				add("error", gp+".extract."+name, "extraction name %q is not a valid identifier", name)
			}
			if desc == "" {
				add("error", gp+".extract."+name, "extraction %q needs a description", name)
			}
		}
	}
	return errs
}
