package pollinations

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

const DefaultBaseURL = "https://image.pollinations.ai"

var ErrEmptyPrompt = errors.New("pollinations prompt is empty")

// maxPromptRunes keeps generated URLs well under common proxy limits.
const maxPromptRunes = 400

// URLBuilder builds deterministic image URLs. Pollinations renders on first
// fetch, so building the URL needs no network round trip.
type URLBuilder struct {
	baseURL string
}

func New(baseURL string) *URLBuilder {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &URLBuilder{baseURL: strings.TrimRight(baseURL, "/")}
}

// ImageURL returns the URL for prompt at the given size. The same inputs
// always produce the same URL.
func (b *URLBuilder) ImageURL(prompt string, width, height int, seed int64) (string, error) {
	prompt = strings.Join(strings.Fields(prompt), " ")
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	if r := []rune(prompt); len(r) > maxPromptRunes {
		prompt = string(r[:maxPromptRunes])
	}

	q := url.Values{}
	q.Set("width", strconv.Itoa(width))
	q.Set("height", strconv.Itoa(height))
	q.Set("seed", strconv.FormatInt(seed, 10))
	q.Set("nologo", "true")

	return b.baseURL + "/prompt/" + url.PathEscape(prompt) + "?" + q.Encode(), nil
}
