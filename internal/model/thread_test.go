package model

import "testing"

func TestLessAlias(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"2", "10", true},
		{"10", "2", false},
		{"0", "1", true},
		{"3", "3", false},
		{"abc", "b", true},
		{"b", "abc", false},
		{"10", "a", true},
	}
	for _, tt := range tests {
		if got := LessAlias(tt.a, tt.b); got != tt.want {
			t.Errorf("LessAlias(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestChildrenOrderedByAlias(t *testing.T) {
	g := NewThreadGraph()
	for _, id := range []string{"10", "2", "9"} {
		g.AddNode(Envelope{ID: id})
		g.AddEdge(RootID, id, 0)
	}

	roots := g.Roots()
	if len(roots) != 3 || roots[0].ID != "2" || roots[1].ID != "9" || roots[2].ID != "10" {
		t.Errorf("Roots() = %+v, want 2, 9, 10", roots)
	}
}
