package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/infrastructure/repository/memory"
	"github.com/kirillkom/docflow/internal/stages/analysis"
	"github.com/kirillkom/docflow/internal/stages/metadata"
	"github.com/kirillkom/docflow/internal/stages/persistence"
	"github.com/kirillkom/docflow/internal/stages/textextract"
)

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (s *fakeStorage) Save(_ context.Context, container, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[container+"/"+key] = raw
	return nil
}

func (s *fakeStorage) Open(_ context.Context, container, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.objects[container+"/"+key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s/%s", container, key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type fakeDetector struct {
	lines []string
}

func (d *fakeDetector) DetectText(context.Context, domain.DocumentRef) ([]string, error) {
	return d.lines, nil
}

type fakeSentiment struct {
	lastText string
}

func (d *fakeSentiment) DetectSentiment(_ context.Context, text, _ string) (ports.Sentiment, error) {
	d.lastText = text
	return ports.Sentiment{
		Label:  "POSITIVE",
		Scores: map[string]float64{"POSITIVE": 0.97, "NEGATIVE": 0.03},
	}, nil
}

// Full pipeline walk with the real stage implementations: a scanned PDF in
// "docs" goes metadata → OCR text extraction → sentiment → result artifact.
func TestScenarioScannedPDFEndToEnd(t *testing.T) {
	storage := newFakeStorage()
	// Not a real PDF text layer, so extraction falls back to OCR.
	if err := storage.Save(context.Background(), "docs", "a.pdf", strings.NewReader("%PDF-1.4 scanned")); err != nil {
		t.Fatalf("seed object: %v", err)
	}

	detector := &fakeDetector{lines: []string{"Hello world"}}
	store := memory.New()
	registry := Registry{
		domain.StageMetadata:    metadata.New(),
		domain.StageTextExtract: textextract.New(storage, detector),
		domain.StageAnalysis:    analysis.New(&fakeSentiment{}, "en", 5000),
		domain.StagePersistence: persistence.New(storage, "results"),
	}
	orch := newTestOrchestrator(t, store, domain.DefaultPipeline(), registry)

	ref := domain.DocumentRef{Container: "docs", Key: "a.pdf"}
	executionID, err := orch.Start(context.Background(), ref)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := orch.Run(context.Background(), executionID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	record := mustLoad(t, store, executionID)
	if record.Status != domain.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s (last error %q)", record.Status, record.LastError)
	}
	if record.Payload[domain.KeyTitle] != "a.pdf" || record.Payload[domain.KeySource] != "docs" {
		t.Fatalf("unexpected metadata: %v", record.Payload)
	}
	if record.Payload[domain.KeyText] != "Hello world" {
		t.Fatalf("unexpected text: %v", record.Payload[domain.KeyText])
	}

	raw, err := storage.Open(context.Background(), "docs", "results/a.pdf.json")
	if err != nil {
		t.Fatalf("result artifact missing: %v", err)
	}
	defer raw.Close()

	var artifact map[string]any
	if err := json.NewDecoder(raw).Decode(&artifact); err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if artifact["container"] != "docs" || artifact["key"] != "a.pdf" {
		t.Fatalf("artifact must carry the document identity: %v", artifact)
	}
	sentimentResult, ok := artifact[domain.KeyAnalysis].(map[string]any)
	if !ok || sentimentResult["sentiment"] != "POSITIVE" {
		t.Fatalf("unexpected analysis in artifact: %v", artifact[domain.KeyAnalysis])
	}
}
