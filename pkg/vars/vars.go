// Package vars holds the learner's captured variables: values extracted from
// free-text replies that later prompts may reference by name.
package vars

import "maps"

// Context is the global variable map shared by every scenario in a process.
// It is passed explicitly rather than held in a package global. Version
// increases on every mutation that changes a value, so callers can tell
// whether a rendered prompt is stale.
type Context struct {
	values  map[string]string
	version uint64
}

// NewContext returns a context seeded with values (which may be nil).
func NewContext(values map[string]string) *Context {
	c := &Context{values: make(map[string]string, len(values))}
	maps.Copy(c.values, values)
	return c
}

// Get returns the value stored under name.
func (c *Context) Get(name string) (string, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Version reports the mutation counter.
func (c *Context) Version() uint64 { return c.version }

// Len reports the number of stored variables.
func (c *Context) Len() int { return len(c.values) }

// Snapshot returns a copy of the stored values.
func (c *Context) Snapshot() map[string]string {
	out := make(map[string]string, len(c.values))
	maps.Copy(out, c.values)
	return out
}

// Merge overwrites entries with the non-null values of in. Keys are never
// deleted. It reports whether any stored value changed.
func (c *Context) Merge(in Optional) bool {
	changed := false
	for k, v := range in {
		if v == nil {
			continue
		}
		if old, ok := c.values[k]; ok && old == *v {
			continue
		}
		c.values[k] = *v
		changed = true
	}
	if changed {
		c.version++
	}
	return changed
}

// Optional maps variable names to possibly-null values, the shape produced by
// extraction where the service could not find a value.
type Optional map[string]*string

// Set stores a non-null value.
func (o Optional) Set(name, value string) {
	o[name] = &value
}

// NonNull returns the entries that carry a value.
func (o Optional) NonNull() map[string]string {
	out := make(map[string]string, len(o))
	for k, v := range o {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}

// Clone returns a deep copy.
func (o Optional) Clone() Optional {
	if o == nil {
		return nil
	}
	out := make(Optional, len(o))
	for k, v := range o {
		if v == nil {
			out[k] = nil
			continue
		}
		s := *v
		out[k] = &s
	}
	return out
}

// String returns a pointer to s, for building Optional literals.
func String(s string) *string { return &s }
