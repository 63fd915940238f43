package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bannerforge/bannerforge-api/internal/pkg/httpx"
)

const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultTextModel  = "gpt-4o-mini"
	DefaultImageModel = "gpt-image-1"
	moderationModel   = "omni-moderation-latest"
)

var (
	ErrNotConfigured = errors.New("openai client is not configured")
	ErrEmptyResponse = errors.New("openai returned an empty response")
)

// Client is a minimal client for the chat completions, images and
// moderations endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	textModel  string
	imageModel string
	http       *http.Client
}

// Config for Client.
type Config struct {
	APIKey     string
	BaseURL    string
	TextModel  string
	ImageModel string
	Timeout    time.Duration
}

// NewClient creates a client. An empty API key yields a client whose calls
// fail with ErrNotConfigured.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TextModel == "" {
		cfg.TextModel = DefaultTextModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = DefaultImageModel
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		textModel:  cfg.TextModel,
		imageModel: cfg.ImageModel,
		http:       httpx.NewClient(cfg.Timeout),
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c != nil && strings.TrimSpace(c.apiKey) != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ChatJSON runs a chat completion in JSON mode and returns the raw content of
// the first choice.
func (c *Client) ChatJSON(ctx context.Context, system, user string) (string, error) {
	req := chatRequest{
		Model: c.textModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0.8,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	var resp chatResponse
	if err := c.post(ctx, "openai chat", "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("openai chat: %w", ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Size   string `json:"size"`
	N      int    `json:"n"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// ImageSize picks the closest supported generation size for a canvas.
func ImageSize(width, height int) string {
	switch {
	case width > height*5/4:
		return "1536x1024"
	case height > width*5/4:
		return "1024x1536"
	default:
		return "1024x1024"
	}
}

// GenerateImage synthesises one image and returns its decoded bytes.
func (c *Client) GenerateImage(ctx context.Context, prompt, size string) ([]byte, error) {
	req := imageRequest{Model: c.imageModel, Prompt: prompt, Size: size, N: 1}

	var resp imageResponse
	if err := c.post(ctx, "openai image", "/images/generations", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("openai image: %w", ErrEmptyResponse)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("openai image: invalid base64 payload: %w", err)
	}
	return data, nil
}

// ModerationResult is the verdict for a single input.
type ModerationResult struct {
	Flagged    bool            `json:"flagged"`
	Categories map[string]bool `json:"categories"`
}

type moderationRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []ModerationResult `json:"results"`
}

// Moderate classifies text with the moderation endpoint.
func (c *Client) Moderate(ctx context.Context, text string) (*ModerationResult, error) {
	var resp moderationResponse
	if err := c.post(ctx, "openai moderation", "/moderations", moderationRequest{Model: moderationModel, Input: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("openai moderation: %w", ErrEmptyResponse)
	}
	return &resp.Results[0], nil
}

func (c *Client) post(ctx context.Context, op, path string, in, out interface{}) error {
	if !c.Configured() {
		return fmt.Errorf("%s: %w", op, ErrNotConfigured)
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s request error: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s request error: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

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
