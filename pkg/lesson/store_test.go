package lesson

import (
	"context"
	"errors"
	"testing"

	"github.com/ormasoftchile/parla/pkg/logging"
)

func TestLoadDir_Valid(t *testing.T) {
	s, err := LoadDir(context.Background(), "testdata/valid", logging.Nop())
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	ls := s.Lessons()
	if len(ls) != 2 {
		t.Fatalf("lessons = %d, want 2", len(ls))
	}
	if ls[0].ID != "L01" || ls[1].ID != "L02" {
		t.Errorf("order = %s,%s, want L01,L02", ls[0].ID, ls[1].ID)
	}
	if s.Position("L02") != 1 {
		t.Errorf("Position(L02) = %d, want 1", s.Position("L02"))
	}
	if s.Position("nope") != -1 {
		t.Error("unknown lesson must have position -1")
	}

	sc, err := s.Scenario("L01", "order-coffee")
	if err != nil {
		t.Fatalf("Scenario: %v", err)
	}
	if len(sc.Goals) != 3 {
		t.Errorf("goals = %d, want 3", len(sc.Goals))
	}
	if sc.Goals[0].Extract["user_name"] == "" {
		t.Error("extraction spec not loaded")
	}

	market, err := s.Scenario("L02", "market-chat")
	if err != nil {
		t.Fatalf("Scenario: %v", err)
	}
	if !market.ConceptCheck() {
		t.Error("market-chat should be a concept check")
	}
}

func TestLoadDir_SkipsMalformed(t *testing.T) {
	s, err := LoadDir(context.Background(), "testdata/mixed", logging.Nop())
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(s.Lessons()) != 1 {
		t.Fatalf("lessons = %d, want 1", len(s.Lessons()))
	}
	if len(s.Broken()) != 2 {
		t.Fatalf("broken = %d, want 2", len(s.Broken()))
	}
	if s.Broken()[0].Path != "testdata/mixed/02-bad.yaml" {
		t.Errorf("broken[0] = %s", s.Broken()[0].Path)
	}
}

func TestLoadDir_MissingDir(t *testing.T) {
	if _, err := LoadDir(context.Background(), "testdata/does-not-exist", logging.Nop()); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestStore_NotFound(t *testing.T) {
	s := NewStore([]*Lesson{{ID: "A", Title: "a"}})
	if _, err := s.Lesson("B"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lesson(B) err = %v, want ErrNotFound", err)
	}
	if _, err := s.Scenario("A", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Scenario(A, x) err = %v, want ErrNotFound", err)
	}
}

func TestStore_ConceptText(t *testing.T) {
	s, err := LoadDir(context.Background(), "testdata/valid", logging.Nop())
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	tests := map[string]string{
		"L01_V01": "koffie, thee",
		"L01_E01": "Mag ik een koffie?",
		"L01_G01": "Het werkwoord hebben",
	}
	for id, want := range tests {
		got, ok := s.ConceptText(id)
		if !ok || got != want {
			t.Errorf("ConceptText(%s) = %q, %v; want %q", id, got, ok, want)
		}
	}
}

func TestNewStore_OrdersByOrderThenID(t *testing.T) {
	s := NewStore([]*Lesson{
		{ID: "b", Order: 2},
		{ID: "c", Order: 1},
		{ID: "a", Order: 2},
	})
	var ids []string
	for _, l := range s.Lessons() {
		ids = append(ids, l.ID)
	}
	if got := ids[0] + ids[1] + ids[2]; got != "cab" {
		t.Errorf("order = %s, want cab", got)
	}
}
