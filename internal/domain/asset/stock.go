package asset

import (
	"context"
	"time"

	"github.com/bannerforge/bannerforge-api/internal/pkg/logger"
	"github.com/bannerforge/bannerforge-api/internal/pkg/unsplash"
)

const trackTimeout = 5 * time.Second

// PhotoSearcher finds a stock photo for a keyword query.
type PhotoSearcher interface {
	SearchPhoto(ctx context.Context, query string, width, height int) (*unsplash.Photo, error)
	TrackDownload(ctx context.Context, downloadLocation string) error
}

// StockProvider searches Unsplash. It is skipped when the caller asked for a
// synthetic background.
type StockProvider struct {
	search PhotoSearcher
}

func NewStockProvider(search PhotoSearcher) *StockProvider {
	return &StockProvider{search: search}
}

func (p *StockProvider) Name() string { return ProviderUnsplash }

func (p *StockProvider) Skip(spec Spec) bool {
	return spec.ForceSynthetic || spec.Query == ""
}

func (p *StockProvider) Fetch(ctx context.Context, spec Spec) (Result, error) {
	photo, err := p.search.SearchPhoto(ctx, spec.Query, spec.Width, spec.Height)
	if err != nil {
		return Result{}, err
	}

	// required by the API guidelines; never blocks the pipeline
	go func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, trackTimeout)
		defer cancel()
		if err := p.search.TrackDownload(ctx, photo.DownloadLocation); err != nil {
			logger.FromContext(ctx).Debug().Err(err).Msg("Unsplash download tracking failed")
		}
	}(context.WithoutCancel(ctx))

	return Result{
		URL: photo.URL,
		Attribution: &Attribution{
			Source:           ProviderUnsplash,
			PhotographerName: photo.PhotographerName,
			PhotographerURL:  photo.PhotographerURL,
			PhotoURL:         photo.PageURL,
		},
	}, nil
}
