package asset

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image/color"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/bannerforge/bannerforge-api/internal/pkg/imaging"
	"github.com/bannerforge/bannerforge-api/internal/pkg/logger"
	"github.com/bannerforge/bannerforge-api/internal/pkg/storage"
)

// dataURLDownscale shrinks inline gradients; clients stretch them to the
// canvas and a smooth gradient survives the upscale.
const dataURLDownscale = 8

// uploadTimeout bounds the storage round trip before inlining instead.
const uploadTimeout = 5 * time.Second

// lastResortPNG is a 1x1 PNG used only if encoding itself fails.
const lastResortPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mMQ0tH5DwACSQFKqGk9KgAAAABJRU5ErkJggg=="

var defaultGradient = Palette{From: "#0F172A", To: "#6366F1", Accent: "#F59E0B"}

// GradientProvider renders a procedural background. It never fails: storage
// errors degrade to a data URL, and encoding errors to a solid colour.
type GradientProvider struct {
	store storage.Storage
}

// NewGradientProvider creates the renderer. store may be nil.
func NewGradientProvider(store storage.Storage) *GradientProvider {
	return &GradientProvider{store: store}
}

func (g *GradientProvider) Name() string { return ProviderGradient }

func (g *GradientProvider) Fetch(ctx context.Context, spec Spec) (Result, error) {
	return g.Render(ctx, spec), nil
}

// Render produces the gradient result.
func (g *GradientProvider) Render(ctx context.Context, spec Spec) Result {
	res := Result{Provider: ProviderGradient, Success: true}

	gs := imaging.GradientSpec{
		Width:  spec.Width,
		Height: spec.Height,
		From:   parseOr(spec.Palette.From, defaultGradient.From),
		To:     parseOr(spec.Palette.To, defaultGradient.To),
		Accent: parseOr(spec.Palette.Accent, defaultGradient.Accent),
		Seed:   spec.Seed,
	}

	if g.store != nil {
		uctx, cancel := context.WithTimeout(ctx, uploadTimeout)
		u, err := g.upload(uctx, gs)
		cancel()
		if err == nil {
			res.URL = u
			return res
		}
		logger.FromContext(ctx).Warn().Err(err).Msg("Gradient upload failed, inlining as data URL")
	}

	gs.Width = max(gs.Width/dataURLDownscale, 1)
	gs.Height = max(gs.Height/dataURLDownscale, 1)
	data, err := imaging.EncodePNG(imaging.RenderGradient(gs))
	if err != nil {
		data, err = imaging.EncodePNG(imaging.Solid(1, 1, gs.From))
	}
	if err != nil {
		res.URL = "data:image/png;base64," + lastResortPNG
		return res
	}

	res.URL = "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
	return res
}

func (g *GradientProvider) upload(ctx context.Context, gs imaging.GradientSpec) (string, error) {
	key := gradientKey(gs)

	exists, err := g.store.Exists(ctx, key)
	if err == nil && exists {
		return g.store.GetURL(key), nil
	}

	data, err := imaging.EncodePNG(imaging.RenderGradient(gs))
	if err != nil {
		return "", err
	}
	if err := g.store.Put(ctx, key, bytes.NewReader(data), "image/png"); err != nil {
		return "", err
	}
	return g.store.GetURL(key), nil
}

// gradientKey is content-addressed: the same spec always renders the same
// pixels, so it is uploaded once.
func gradientKey(gs imaging.GradientSpec) string {
	sum := blake2b.Sum256([]byte(fmt.Sprintf("%d|%d|%v|%v|%v|%d", gs.Width, gs.Height, gs.From, gs.To, gs.Accent, gs.Seed)))
	return fmt.Sprintf("backgrounds/gradient/%dx%d-%s.png", gs.Width, gs.Height, hex.EncodeToString(sum[:12]))
}

func parseOr(hexColor, fallback string) color.NRGBA {
	if c, err := imaging.ParseHex(hexColor); err == nil {
		return c
	}
	c, _ := imaging.ParseHex(fallback)
	return c
}
