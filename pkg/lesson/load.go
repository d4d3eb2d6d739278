package lesson

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile parses a lesson document from disk.
func LoadFile(path string) (*Lesson, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lesson: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a lesson from YAML (or JSON, which YAML accepts) and rejects
// unknown fields.
func Load(r io.Reader) (*Lesson, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var l Lesson
	if err := dec.Decode(&l); err != nil {
		return nil, fmt.Errorf("decode lesson: %w", err)
	}
	return &l, nil
}
