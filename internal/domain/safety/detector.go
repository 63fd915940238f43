package safety

import (
	"regexp"
	"strings"
)

// injectionPatterns match attempts to override the planner's instructions.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(ignore|disregard|forget|override)\s+(all\s+|any\s+|the\s+)?(previous|prior|above|earlier|preceding)\s+(instructions?|prompts?|rules?|directions?|context)`),
	regexp.MustCompile(`(?i)\bdisregard\s+(the\s+|everything\s+)?above\b`),
	regexp.MustCompile(`(?i)\byou\s+are\s+now\s+(a|an|the|in)\b`),
	regexp.MustCompile(`(?i)\b(reveal|print|show|repeat|output)\s+(me\s+)?(your|the)\s+(system\s+)?(prompt|instructions)`),
	regexp.MustCompile(`(?i)\bsystem\s+prompt\b`),
	regexp.MustCompile(`(?i)\bjail\s*break`),
	regexp.MustCompile(`(?i)\b(developer|god|dan)\s+mode\b`),
	regexp.MustCompile(`(?i)\bact\s+as\b.{0,60}\bwithout\s+(any\s+)?(restrictions|limits|filters|rules)`),
	regexp.MustCompile(`(?i)\bpretend\s+(that\s+)?you\s+(have\s+no|are\s+not\s+bound)`),
	regexp.MustCompile(`(?i)\bnew\s+instructions?\s*:`),
	regexp.MustCompile(`(?i)</?\s*(system|assistant)\s*>`),
	regexp.MustCompile(`(?i)^\s*(system|assistant)\s*:`),
}

// Detector flags instruction-override phrases locally.
type Detector struct {
	patterns []*regexp.Regexp
}

func NewDetector() *Detector {
	return &Detector{patterns: injectionPatterns}
}

// Match returns the matched phrase, or "" when the text is clean.
func (d *Detector) Match(text string) string {
	normalized := normalize(text)
	for _, p := range d.patterns {
		if m := p.FindString(normalized); m != "" {
			return m
		}
	}
	return ""
}

// normalize collapses whitespace and strips zero-width characters that are
// commonly used to split trigger words.
func normalize(text string) string {
	text = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
			return -1
		}
		return r
	}, text)
	return strings.Join(strings.Fields(text), " ")
}
