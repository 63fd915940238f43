package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	// Quality is the JPEG quality used for normalised backgrounds.
	Quality = 85

	// gradients are painted at 1/downscale resolution and upscaled,
	// which keeps rendering cheap and smooths banding.
	downscale = 4

	MaxSide = 4096
)

// GradientSpec describes a procedural background.
type GradientSpec struct {
	Width  int
	Height int
	From   color.NRGBA
	To     color.NRGBA
	Accent color.NRGBA
	Seed   int64
}

// RenderGradient paints a linear gradient from From to To at a seed-derived
// angle, with a soft radial Accent glow. Same spec, same pixels.
func RenderGradient(spec GradientSpec) *image.NRGBA {
	w, h := clampSide(spec.Width), clampSide(spec.Height)
	sw, sh := max(w/downscale, 1), max(h/downscale, 1)

	rng := rand.New(rand.NewSource(spec.Seed))
	angle := rng.Float64() * 2 * math.Pi
	dx, dy := math.Cos(angle), math.Sin(angle)
	glowX := 0.2 + rng.Float64()*0.6
	glowY := 0.2 + rng.Float64()*0.6
	glowR := 0.35 + rng.Float64()*0.3

	small := imaging.New(sw, sh, spec.From)
	for y := 0; y < sh; y++ {
		fy := float64(y)/float64(sh) - 0.5
		for x := 0; x < sw; x++ {
			fx := float64(x)/float64(sw) - 0.5
			// projection onto the gradient axis, mapped to [0,1]
			t := clamp01((fx*dx+fy*dy)/math.Sqrt2 + 0.5)
			c := mix(spec.From, spec.To, t)

			gx := float64(x)/float64(sw) - glowX
			gy := float64(y)/float64(sh) - glowY
			d := math.Sqrt(gx*gx+gy*gy) / glowR
			if d < 1 {
				c = mix(c, spec.Accent, (1-d)*(1-d)*0.55)
			}
			small.SetNRGBA(x, y, c)
		}
	}

	return imaging.Resize(small, w, h, imaging.Linear)
}

// Solid returns a single-colour canvas.
func Solid(width, height int, c color.NRGBA) *image.NRGBA {
	return imaging.New(clampSide(width), clampSide(height), c)
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Normalize decodes an image, centre-crops it to width x height and
// re-encodes it as JPEG.
func Normalize(data []byte, width, height int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	filled := imaging.Fill(img, clampSide(width), clampSide(height), imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, filled, imaging.JPEG, imaging.JPEGQuality(Quality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseHex parses #RGB or #RRGGBB into an opaque colour.
func ParseHex(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

func mix(a, b color.NRGBA, t float64) color.NRGBA {
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return color.NRGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 0xff}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func clampSide(v int) int {
	if v <= 0 {
		return 1
	}
	if v > MaxSide {
		return MaxSide
	}
	return v
}
