// Package template renders goal prompts that reference captured variables
// with single-brace placeholders, e.g. "Nice to meet you, {user_name}!".
package template

import (
	"strings"
)

// Render substitutes every {name} placeholder in tmpl. Values are looked up
// in local first and global second. "{{" and "}}" render as literal braces.
//
// If any placeholder cannot be resolved, or the braces are unbalanced, the
// original template is returned unchanged: a prompt that references a
// variable the learner has not provided yet is shown verbatim rather than
// half-rendered.
func Render(tmpl string, global, local map[string]string) string {
	if !strings.ContainsAny(tmpl, "{}") {
		return tmpl // fast path for literals
	}
	out, ok := render(tmpl, func(name string) (string, bool) {
		if v, ok := local[name]; ok {
			return v, true
		}
		v, ok := global[name]
		return v, ok
	})
	if !ok {
		return tmpl
	}
	return out
}

// Placeholders lists the distinct placeholder names in tmpl, in order of
// first appearance. Escaped braces are ignored.
func Placeholders(tmpl string) []string {
	var names []string
	seen := map[string]bool{}
	render(tmpl, func(name string) (string, bool) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		return "", true
	})
	return names
}

func render(tmpl string, lookup func(string) (string, bool)) (string, bool) {
	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", false
			}
			name := strings.TrimSpace(tmpl[i+1 : i+1+end])
			if !isName(name) {
				return "", false
			}
			v, ok := lookup(name)
			if !ok {
				return "", false
			}
			b.WriteString(v)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", false
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), true
}

// isName reports whether s is a valid placeholder name: a letter or
// underscore followed by letters, digits or underscores.
func isName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// IsName is exported for validators that check extraction variable names.
func IsName(s string) bool { return isName(s) }
