package asset

import (
	"errors"
	"fmt"
	"net/url"
)

// Provider tags reported in results.
const (
	ProviderUnsplash     = "unsplash"
	ProviderOpenAI       = "openai"
	ProviderPollinations = "pollinations"
	ProviderGradient     = "gradient"
)

var ErrInvalidResult = errors.New("invalid asset result")

// Spec describes the background to acquire. Stock search uses Query,
// synthesis uses Prompt.
type Spec struct {
	Query          string
	Prompt         string
	Width          int
	Height         int
	Palette        Palette
	Seed           int64
	ForceSynthetic bool
}

// Palette holds hex colours for procedural backgrounds.
type Palette struct {
	From   string
	To     string
	Accent string
}

// Attribution credits the author of a stock photo.
type Attribution struct {
	Source           string `json:"source"`
	PhotographerName string `json:"photographer_name"`
	PhotographerURL  string `json:"photographer_url"`
	PhotoURL         string `json:"photo_url"`
}

// Result is the acquired background.
type Result struct {
	URL         string       `json:"url"`
	Provider    string       `json:"provider"`
	Attribution *Attribution `json:"attribution,omitempty"`
	Success     bool         `json:"success"`
}

// Validate checks that a result can be handed to a client.
func (r Result) Validate() error {
	if !r.Success {
		return fmt.Errorf("%w: not successful", ErrInvalidResult)
	}
	if r.Provider == "" {
		return fmt.Errorf("%w: missing provider", ErrInvalidResult)
	}
	u, err := url.Parse(r.URL)
	if err != nil || r.URL == "" {
		return fmt.Errorf("%w: bad url", ErrInvalidResult)
	}
	switch u.Scheme {
	case "https", "http", "data":
		return nil
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidResult, u.Scheme)
	}
}
