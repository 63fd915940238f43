package safety

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bannerforge/bannerforge-api/internal/pkg/logger"
	"github.com/bannerforge/bannerforge-api/internal/pkg/openai"
)

const (
	ReasonInjection = "prompt_injection"
	ReasonFlagged   = "unsafe_content"
)

// BlockedCategories are the classifier categories that reject a prompt.
var BlockedCategories = map[string]bool{
	"hate":                   true,
	"hate/threatening":       true,
	"harassment/threatening": true,
	"self-harm":              true,
	"self-harm/intent":       true,
	"self-harm/instructions": true,
	"sexual/minors":          true,
	"violence/graphic":       true,
	"illicit/violent":        true,
}

// Verdict is the combined outcome of both checks.
type Verdict struct {
	Safe       bool     `json:"safe"`
	Reason     string   `json:"reason,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// Classifier is an external unsafe-content classifier. It returns the
// categories it flagged.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]string, error)
}

// Gate runs the local detector, then the classifier.
type Gate struct {
	detector   *Detector
	classifier Classifier
}

// NewGate creates a gate. A nil classifier runs only the local detector.
func NewGate(classifier Classifier) *Gate {
	return &Gate{detector: NewDetector(), classifier: classifier}
}

// Classify returns an unsafe verdict if either check fails. A classifier
// error returns ErrClassifierUnavailable and no verdict.
func (g *Gate) Classify(ctx context.Context, text string) (*Verdict, error) {
	if match := g.detector.Match(text); match != "" {
		logger.FromContext(ctx).Info().
			Str("reason", ReasonInjection).
			Str("match", match).
			Msg("Prompt rejected by injection detector")
		return &Verdict{Safe: false, Reason: ReasonInjection}, nil
	}

	if g.classifier == nil {
		return &Verdict{Safe: true}, nil
	}

	flagged, err := g.classifier.Classify(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}

	var blocked []string
	for _, c := range flagged {
		if BlockedCategories[c] {
			blocked = append(blocked, c)
		}
	}
	if len(blocked) > 0 {
		sort.Strings(blocked)
		logger.FromContext(ctx).Info().
			Str("reason", ReasonFlagged).
			Str("categories", strings.Join(blocked, ",")).
			Msg("Prompt rejected by content classifier")
		return &Verdict{Safe: false, Reason: ReasonFlagged, Categories: blocked}, nil
	}

	return &Verdict{Safe: true}, nil
}

// ModerationClassifier adapts the OpenAI moderation endpoint.
type ModerationClassifier struct {
	client *openai.Client
}

func NewModerationClassifier(client *openai.Client) *ModerationClassifier {
	return &ModerationClassifier{client: client}
}

func (c *ModerationClassifier) Classify(ctx context.Context, text string) ([]string, error) {
	result, err := c.client.Moderate(ctx, text)
	if err != nil {
		return nil, err
	}

	var flagged []string
	for category, hit := range result.Categories {
		if hit {
			flagged = append(flagged, category)
		}
	}
	return flagged, nil
}
