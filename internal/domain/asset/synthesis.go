package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bannerforge/bannerforge-api/internal/pkg/imaging"
	"github.com/bannerforge/bannerforge-api/internal/pkg/openai"
	"github.com/bannerforge/bannerforge-api/internal/pkg/pollinations"
	"github.com/bannerforge/bannerforge-api/internal/pkg/storage"
)

var ErrNoStorage = errors.New("no storage configured for synthesized images")

// ImageGenerator synthesises an image from a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, size string) ([]byte, error)
}

// SynthesisProvider generates a background with an image model, crops it to
// the canvas and uploads it.
type SynthesisProvider struct {
	gen   ImageGenerator
	store storage.Storage
}

func NewSynthesisProvider(gen ImageGenerator, store storage.Storage) *SynthesisProvider {
	return &SynthesisProvider{gen: gen, store: store}
}

func (p *SynthesisProvider) Name() string { return ProviderOpenAI }

func (p *SynthesisProvider) Skip(spec Spec) bool {
	return p.store == nil || spec.Prompt == ""
}

func (p *SynthesisProvider) Fetch(ctx context.Context, spec Spec) (Result, error) {
	if p.store == nil {
		return Result{}, ErrNoStorage
	}

	raw, err := p.gen.GenerateImage(ctx, backgroundPrompt(spec.Prompt), openai.ImageSize(spec.Width, spec.Height))
	if err != nil {
		return Result{}, err
	}
	if _, err := storage.ValidateImage(raw, storage.MaxImageSize); err != nil {
		return Result{}, fmt.Errorf("generated image rejected: %w", err)
	}

	normalized, err := imaging.Normalize(raw, spec.Width, spec.Height)
	if err != nil {
		return Result{}, err
	}

	key := fmt.Sprintf("backgrounds/ai/%s.jpg", uuid.New())
	if err := p.store.Put(ctx, key, bytes.NewReader(normalized), "image/jpeg"); err != nil {
		return Result{}, fmt.Errorf("upload generated image: %w", err)
	}

	return Result{URL: p.store.GetURL(key)}, nil
}

func backgroundPrompt(prompt string) string {
	return prompt + ". Background image only, no text, no letters, no logos, leave space for a headline."
}

// PollinationsProvider returns a deterministic Pollinations URL. Nothing is
// fetched; the image renders when the client loads it.
type PollinationsProvider struct {
	builder *pollinations.URLBuilder
}

func NewPollinationsProvider(builder *pollinations.URLBuilder) *PollinationsProvider {
	return &PollinationsProvider{builder: builder}
}

func (p *PollinationsProvider) Name() string { return ProviderPollinations }

func (p *PollinationsProvider) Fetch(ctx context.Context, spec Spec) (Result, error) {
	u, err := p.builder.ImageURL(backgroundPrompt(spec.Prompt), spec.Width, spec.Height, spec.Seed)
	if err != nil {
		return Result{}, err
	}
	return Result{URL: u}, nil
}
