package lesson

import "testing"

func TestPlainText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"koffie", "koffie"},
		{"  twee   woorden ", "twee woorden"},
		{"Mag ik een **koffie**?", "Mag ik een koffie?"},
		{"# Het *werkwoord*", "Het werkwoord"},
		{"Zie [de regel](https://example.com)", "Zie de regel"},
		{"- een\n- twee", "een twee"},
		{"`ik heb`", "ik heb"},
	}
	for _, tt := range tests {
		if got := PlainText(tt.in); got != tt.want {
			t.Errorf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
