package unsplash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bannerforge/bannerforge-api/internal/pkg/httpx"
)

const DefaultBaseURL = "https://api.unsplash.com"

var (
	ErrNotConfigured = errors.New("unsplash client is not configured")
	ErrNoResults     = errors.New("unsplash returned no results")
)

// Photo is a search hit sized for a canvas, with the attribution Unsplash
// requires.
type Photo struct {
	ID               string
	URL              string
	PhotographerName string
	PhotographerURL  string
	PageURL          string
	DownloadLocation string
}

// Client talks to the Unsplash REST API.
type Client struct {
	baseURL   string
	accessKey string
	http      *http.Client
}

func NewClient(baseURL, accessKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		accessKey: accessKey,
		http:      httpx.NewClient(timeout),
	}
}

func (c *Client) Configured() bool {
	return c != nil && strings.TrimSpace(c.accessKey) != ""
}

type searchResponse struct {
	Results []struct {
		ID   string `json:"id"`
		URLs struct {
			Raw     string `json:"raw"`
			Regular string `json:"regular"`
		} `json:"urls"`
		Links struct {
			HTML             string `json:"html"`
			DownloadLocation string `json:"download_location"`
		} `json:"links"`
		User struct {
			Name  string `json:"name"`
			Links struct {
				HTML string `json:"html"`
			} `json:"links"`
		} `json:"user"`
	} `json:"results"`
}

// Orientation maps a canvas to the search orientation filter.
func Orientation(width, height int) string {
	switch {
	case width > height:
		return "landscape"
	case height > width:
		return "portrait"
	default:
		return "squarish"
	}
}

// SearchPhoto returns the top hit for query, cropped to width x height via
// the imgix parameters Unsplash supports on raw URLs.
func (c *Client) SearchPhoto(ctx context.Context, query string, width, height int) (*Photo, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", "1")
	q.Set("orientation", Orientation(width, height))
	q.Set("content_filter", "high")

	var resp searchResponse
	if err := c.get(ctx, "unsplash search", c.baseURL+"/search/photos?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, ErrNoResults
	}

	hit := resp.Results[0]
	imageURL := hit.URLs.Regular
	if hit.URLs.Raw != "" {
		imageURL = sized(hit.URLs.Raw, width, height)
	}
	if imageURL == "" {
		return nil, ErrNoResults
	}

	return &Photo{
		ID:               hit.ID,
		URL:              imageURL,
		PhotographerName: hit.User.Name,
		PhotographerURL:  hit.User.Links.HTML,
		PageURL:          hit.Links.HTML,
		DownloadLocation: hit.Links.DownloadLocation,
	}, nil
}

// TrackDownload pings the download endpoint, which the API guidelines
// require whenever a photo is used.
func (c *Client) TrackDownload(ctx context.Context, downloadLocation string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if downloadLocation == "" {
		return nil
	}
	var discard json.RawMessage
	return c.get(ctx, "unsplash download", downloadLocation, &discard)
}

func (c *Client) get(ctx context.Context, op, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%s request error: %w", op, err)
	}
	req.Header.Set("Authorization", "Client-ID "+c.accessKey)
	req.Header.Set("Accept-Version", "v1")

	resp, err := c.http.Do(req)
	if err != nil {
		return httpx.ClassifyError(ctx, op, err)
	}
	defer resp.Body.Close()

	if err := httpx.CheckResponse(op, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s decode error: %w", op, err)
	}
	return nil
}

func sized(raw string, width, height int) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("w", strconv.Itoa(width))
	q.Set("h", strconv.Itoa(height))
	q.Set("fit", "crop")
	q.Set("crop", "entropy")
	q.Set("fm", "jpg")
	q.Set("q", "80")
	u.RawQuery = q.Encode()
	return u.String()
}
