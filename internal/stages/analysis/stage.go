// Package analysis runs the sentiment collaborator over the extracted text.
package analysis

import (
	"context"
	"fmt"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

// DefaultMaxChars caps the text sent to the sentiment collaborator, which
// enforces its own input limit. Truncation happens before the call and is
// not an error.
const DefaultMaxChars = 5000

type Stage struct {
	detector     ports.SentimentDetector
	languageCode string
	maxChars     int
}

func New(detector ports.SentimentDetector, languageCode string, maxChars int) *Stage {
	if languageCode == "" {
		languageCode = "en"
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Stage{detector: detector, languageCode: languageCode, maxChars: maxChars}
}

func (s *Stage) Execute(ctx context.Context, ref domain.DocumentRef, payload domain.Payload) (domain.Payload, error) {
	text, ok := payload[domain.KeyText].(string)
	if !ok || text == "" {
		return nil, domain.WrapError(domain.ErrPermanent, "analyze sentiment", fmt.Errorf("payload has no extracted text for %s", ref))
	}

	result, err := s.detector.DetectSentiment(ctx, truncate(text, s.maxChars), s.languageCode)
	if err != nil {
		return nil, fmt.Errorf("detect sentiment for %s: %w", ref, err)
	}

	payload[domain.KeyAnalysis] = map[string]any{
		"sentiment": result.Label,
		"scores":    result.Scores,
	}
	return payload, nil
}

// truncate cuts on rune boundaries so a multi-byte character is never split.
func truncate(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}
