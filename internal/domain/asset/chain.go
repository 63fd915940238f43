package asset

import (
	"context"
	"errors"
	"time"

	"github.com/bannerforge/bannerforge-api/internal/pkg/logger"
	"github.com/bannerforge/bannerforge-api/internal/pkg/metrics"
)

const defaultTierTimeout = 20 * time.Second

var ErrEmptyResult = errors.New("provider returned no image")

// Provider is one tier of the chain.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, spec Spec) (Result, error)
}

// Skipper is implemented by providers that do not apply to every spec.
type Skipper interface {
	Skip(spec Spec) bool
}

// Chain tries providers in order until one succeeds. The order is the slice
// order; the terminal gradient renderer runs if every tier fails.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	terminal  *GradientProvider
	metrics   *metrics.Metrics
}

// NewChain builds a chain. terminal may be nil, in which case a gradient
// renderer without storage is used.
func NewChain(timeout time.Duration, terminal *GradientProvider, providers ...Provider) *Chain {
	if timeout <= 0 {
		timeout = defaultTierTimeout
	}
	if terminal == nil {
		terminal = NewGradientProvider(nil)
	}
	return &Chain{providers: providers, timeout: timeout, terminal: terminal, metrics: metrics.Default()}
}

// WithMetrics overrides where tier outcomes are counted.
func (c *Chain) WithMetrics(m *metrics.Metrics) *Chain {
	c.metrics = m
	return c
}

// Providers returns the configured tier names in order.
func (c *Chain) Providers() []string {
	names := make([]string, 0, len(c.providers)+1)
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Acquire always returns a successful result.
func (c *Chain) Acquire(ctx context.Context, spec Spec) Result {
	log := logger.FromContext(ctx)

	for _, p := range c.providers {
		if s, ok := p.(Skipper); ok && s.Skip(spec) {
			log.Debug().Str("provider", p.Name()).Msg("Asset provider skipped")
			c.metrics.AssetTier(p.Name(), metrics.ResultSkipped)
			continue
		}

		start := time.Now()
		res, err := c.try(ctx, p, spec)
		if err != nil {
			log.Warn().
				Err(err).
				Str("provider", p.Name()).
				Dur("elapsed", time.Since(start)).
				Msg("Asset provider failed, trying next")
			c.metrics.AssetTier(p.Name(), tierResult(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		log.Info().
			Str("provider", res.Provider).
			Dur("elapsed", time.Since(start)).
			Msg("Asset acquired")
		c.metrics.AssetTier(res.Provider, metrics.ResultSuccess)
		return res
	}

	// the terminal tier talks to storage too and gets the same bound
	tctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	res := c.terminal.Render(tctx, spec)
	c.metrics.AssetTier(res.Provider, metrics.ResultSuccess)
	return res
}

func tierResult(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return metrics.ResultTimeout
	}
	return metrics.ResultFailed
}

func (c *Chain) try(ctx context.Context, p Provider, spec Spec) (res Result, err error) {
	tctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).Error().Interface("panic", r).Str("provider", p.Name()).Msg("Asset provider panicked")
			err = errors.New("provider panicked")
		}
	}()

	res, err = p.Fetch(tctx, spec)
	if err != nil {
		return Result{}, err
	}
	if res.URL == "" {
		return Result{}, ErrEmptyResult
	}
	res.Provider = p.Name()
	res.Success = true
	return res, nil
}
