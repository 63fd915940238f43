package pollinations

import (
	"errors"
	"strings"
	"testing"
)

func TestImageURLDeterministic(t *testing.T) {
	b := New("https://img.example.com/")
	a, err := b.ImageURL("neon  city at night", 1280, 720, 7)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	again, _ := b.ImageURL("neon city at night", 1280, 720, 7)
	if a != again {
		t.Fatalf("expected identical urls, got %s and %s", a, again)
	}
	if !strings.HasPrefix(a, "https://img.example.com/prompt/neon%20city%20at%20night?") {
		t.Fatalf("unexpected url %s", a)
	}
	for _, part := range []string{"width=1280", "height=720", "seed=7", "nologo=true"} {
		if !strings.Contains(a, part) {
			t.Fatalf("expected %s in %s", part, a)
		}
	}
}

func TestImageURLEmptyPrompt(t *testing.T) {
	if _, err := New("").ImageURL("   ", 10, 10, 1); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
}
