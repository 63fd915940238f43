package planner

import (
	"context"
	"errors"
	"testing"
)

type fakeGenerator struct {
	out string
	err error
}

func (f fakeGenerator) ChatJSON(ctx context.Context, system, user string) (string, error) {
	return f.out, f.err
}

var brief = Brief{Prompt: "grand opening of a coffee shop", Platform: "instagram", Width: 1080, Height: 1080}

func TestPlanMissingColorsDefaulted(t *testing.T) {
	p := New(fakeGenerator{out: `{"headline":"Fresh Brews Daily","layout":"split","palette":{"primary":"#112233","accent":"orange"}}`})

	plan, err := p.Plan(context.Background(), brief)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	want := Palette{
		Primary:    "#112233",
		Secondary:  DefaultSecondary,
		Accent:     DefaultAccent,
		Background: DefaultBackground,
		Text:       DefaultText,
	}
	if plan.Palette != want {
		t.Fatalf("expected defaulted palette %+v, got %+v", want, plan.Palette)
	}
	if plan.Layout != "split" {
		t.Fatalf("expected layout kept, got %q", plan.Layout)
	}
}

func TestPlanFallbacks(t *testing.T) {
	plan, err := Parse("```json\n{\"headline\":\"Open Now\",\"layout\":\"diagonal\"}\n```", brief)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if plan.Layout != DefaultLayout {
		t.Fatalf("expected unknown layout to fall back, got %q", plan.Layout)
	}
	if plan.ImageQuery != "Open Now" {
		t.Fatalf("expected image query from headline, got %q", plan.ImageQuery)
	}
	if plan.ImagePrompt != brief.Prompt {
		t.Fatalf("expected image prompt from request, got %q", plan.ImagePrompt)
	}
}

func TestBrandColorsOverride(t *testing.T) {
	b := brief
	b.BrandColors = []string{"#ff0000", "not-a-color", "#0f0"}
	plan, err := Parse(`{"headline":"Hi","palette":{"primary":"#111111","secondary":"#222222"}}`, b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if plan.Palette.Primary != "#FF0000" || plan.Palette.Secondary != "#0F0" {
		t.Fatalf("expected brand colours in slot order, got %+v", plan.Palette)
	}
}

func TestPlanRejectsUnusableOutput(t *testing.T) {
	cases := []string{"not json", `{"layout":"bold"}`, `{"headline":"   "}`}
	for _, raw := range cases {
		if _, err := Parse(raw, brief); !errors.Is(err, ErrInvalidPlan) {
			t.Errorf("Parse(%q) expected ErrInvalidPlan, got %v", raw, err)
		}
	}
}

func TestPlanGeneratorError(t *testing.T) {
	_, err := New(fakeGenerator{err: errors.New("boom")}).Plan(context.Background(), brief)
	if !errors.Is(err, ErrGeneratorFailed) {
		t.Fatalf("expected ErrGeneratorFailed, got %v", err)
	}
}
