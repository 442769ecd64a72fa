package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// ExecutionStore persists execution records. Save is a versioned
// compare-and-swap: it succeeds only when the stored version matches
// record.Version and increments it, so two workers can never both advance
// the same execution.
type ExecutionStore interface {
	Load(ctx context.Context, executionID string) (*domain.ExecutionRecord, error)
	Save(ctx context.Context, record *domain.ExecutionRecord) error
	Exists(ctx context.Context, ref domain.DocumentRef) (string, bool, error)
}

// ObjectStorage reads source documents and writes result artifacts.
type ObjectStorage interface {
	Save(ctx context.Context, container, key string, data io.Reader) error
	Open(ctx context.Context, container, key string) (io.ReadCloser, error)
}

// TriggerQueue delivers object-created events to the orchestrator.
type TriggerQueue interface {
	PublishDocumentCreated(ctx context.Context, ref domain.DocumentRef) error
	SubscribeDocumentCreated(ctx context.Context, handler func(context.Context, domain.DocumentRef) error) error
}

// TextDetector is the OCR collaborator boundary. Lines come back in reading
// order and are joined with newlines to form the extracted text.
type TextDetector interface {
	DetectText(ctx context.Context, ref domain.DocumentRef) ([]string, error)
}

// Sentiment is a sentiment collaborator verdict for one text.
type Sentiment struct {
	Label  string             `json:"sentiment"`
	Scores map[string]float64 `json:"scores"`
}

// SentimentDetector is the sentiment collaborator boundary.
type SentimentDetector interface {
	DetectSentiment(ctx context.Context, text, languageCode string) (Sentiment, error)
}
