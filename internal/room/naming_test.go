package room

import (
	"strings"
	"testing"
)

func TestWordsNamer(t *testing.T) {
	for i := 0; i < 20; i++ {
		name := WordsNamer.Name(i + 1)
		parts := strings.Split(name, " ")
		if len(parts) != 2 {
			t.Fatalf("expected two words, got %q", name)
		}
		for _, p := range parts {
			if p == "" || strings.ToUpper(p[:1]) != p[:1] {
				t.Errorf("word %q in %q is not capitalised", p, name)
			}
		}
	}
}

func TestNamerByPolicy(t *testing.T) {
	n, err := NamerByPolicy("guest")
	if err != nil {
		t.Fatalf("guest: %v", err)
	}
	if got := n.Name(4); got != "Guest-4" {
		t.Errorf("got %q", got)
	}
	if _, err := NamerByPolicy(""); err != nil {
		t.Errorf("empty policy should default to words: %v", err)
	}
	if _, err := NamerByPolicy("numbers"); err == nil {
		t.Errorf("expected error for unknown policy")
	}
}

func TestCleanName(t *testing.T) {
	if got, ok := cleanName("  Ada  "); !ok || got != "Ada" {
		t.Errorf("cleanName trimmed = %q, %v", got, ok)
	}
	if _, ok := cleanName("   "); ok {
		t.Errorf("blank name must be rejected")
	}
	if _, ok := cleanName(strings.Repeat("é", MaxNameRunes)); !ok {
		t.Errorf("name at rune limit must be accepted")
	}
}

func TestNewID(t *testing.T) {
	id := NewID()
	if parts := strings.Split(id, "-"); len(parts) != 3 {
		t.Fatalf("unexpected id %q", id)
	}
	if strings.ToLower(id) != id {
		t.Fatalf("id should be lower case, got %q", id)
	}
}
