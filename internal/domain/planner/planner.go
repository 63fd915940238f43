package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bannerforge/bannerforge-api/internal/pkg/openai"
	"github.com/bannerforge/bannerforge-api/internal/pkg/validator"
)

var (
	// ErrInvalidPlan is returned when the model output cannot be used.
	ErrInvalidPlan = errors.New("invalid design plan")
	// ErrGeneratorFailed wraps text generation errors.
	ErrGeneratorFailed = errors.New("design generation failed")
)

// TextGenerator produces a JSON object from a system and user message.
type TextGenerator interface {
	ChatJSON(ctx context.Context, system, user string) (string, error)
}

var _ TextGenerator = (*openai.Client)(nil)

const systemContext = `You are a senior graphic designer creating social media banners and thumbnails.
Reply with a single JSON object with these keys:
headline (max 8 words), subheadline, cta, layout (one of: centered, left-aligned, split, minimal, bold),
palette {primary, secondary, accent, background, text} as #RRGGBB hex colours,
image_query (2-4 keywords for a stock photo search), image_prompt (one vivid sentence describing a background image with no text),
mood, font, use_background (boolean).`

// Planner turns a brief into a validated Plan.
type Planner struct {
	gen TextGenerator
}

func New(gen TextGenerator) *Planner {
	return &Planner{gen: gen}
}

// Plan asks the generator for a design and normalises the result. Missing
// optional fields are defaulted; a missing headline is an error.
func (p *Planner) Plan(ctx context.Context, brief Brief) (*Plan, error) {
	raw, err := p.gen.ChatJSON(ctx, systemContext, userMessage(brief))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneratorFailed, err)
	}
	return Parse(raw, brief)
}

// Parse decodes model output and applies defaults.
func Parse(raw string, brief Brief) (*Plan, error) {
	var plan Plan
	if err := json.Unmarshal([]byte(extractJSON(raw)), &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	plan.Headline = strings.TrimSpace(plan.Headline)
	if plan.Headline == "" {
		return nil, fmt.Errorf("%w: missing headline", ErrInvalidPlan)
	}

	applyDefaults(&plan, brief)

	if errs := validator.Validate(plan); errs != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, errs)
	}
	return &plan, nil
}

func applyDefaults(plan *Plan, brief Brief) {
	layout := strings.ToLower(strings.TrimSpace(plan.Layout))
	if validator.ValidateVar(layout, "layout") != nil {
		layout = DefaultLayout
	}
	plan.Layout = layout

	pal := &plan.Palette
	pal.Primary = colorOr(pal.Primary, DefaultPrimary)
	pal.Secondary = colorOr(pal.Secondary, DefaultSecondary)
	pal.Accent = colorOr(pal.Accent, DefaultAccent)
	pal.Background = colorOr(pal.Background, DefaultBackground)
	pal.Text = colorOr(pal.Text, DefaultText)

	// brand colours win over whatever the model picked, in slot order
	slots := []*string{&pal.Primary, &pal.Secondary, &pal.Accent}
	i := 0
	for _, c := range brief.BrandColors {
		if i == len(slots) {
			break
		}
		if validator.IsHexColor(c) {
			*slots[i] = strings.ToUpper(c)
			i++
		}
	}

	if strings.TrimSpace(plan.ImageQuery) == "" {
		plan.ImageQuery = plan.Headline
	}
	if strings.TrimSpace(plan.ImagePrompt) == "" {
		plan.ImagePrompt = brief.Prompt
	}
	if runes := []rune(plan.Headline); len(runes) > 120 {
		plan.Headline = string(runes[:120])
	}
	if runes := []rune(plan.Subheadline); len(runes) > 200 {
		plan.Subheadline = string(runes[:200])
	}
	if runes := []rune(plan.CTA); len(runes) > 40 {
		plan.CTA = string(runes[:40])
	}
}

func colorOr(value, fallback string) string {
	value = strings.TrimSpace(value)
	if validator.IsHexColor(value) {
		return strings.ToUpper(value)
	}
	return fallback
}

func userMessage(b Brief) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Design a %s banner (%dx%d).\n", b.Platform, b.Width, b.Height)
	fmt.Fprintf(&sb, "Request: %s\n", b.Prompt)
	if len(b.BrandColors) > 0 {
		fmt.Fprintf(&sb, "Brand colours: %s\n", strings.Join(b.BrandColors, ", "))
	}
	return sb.String()
}

// extractJSON tolerates models that wrap the object in prose or code fences.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return raw
	}
	return raw[start : end+1]
}
