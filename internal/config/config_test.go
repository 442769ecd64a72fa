package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.APIPort != "8080" {
		t.Errorf("APIPort = %q, want 8080", cfg.APIPort)
	}
	if cfg.Store != "postgres" {
		t.Errorf("Store = %q, want postgres", cfg.Store)
	}
	if cfg.NATSSubject != "documents.created" {
		t.Errorf("NATSSubject = %q, want documents.created", cfg.NATSSubject)
	}
	if cfg.SentimentLanguage != "en" {
		t.Errorf("SentimentLanguage = %q, want en", cfg.SentimentLanguage)
	}
	if cfg.AnalysisMaxChars != 5000 {
		t.Errorf("AnalysisMaxChars = %d, want 5000", cfg.AnalysisMaxChars)
	}
	if cfg.ExecutionTimeoutSec != 300 {
		t.Errorf("ExecutionTimeoutSec = %d, want 300", cfg.ExecutionTimeoutSec)
	}
	if cfg.ResultPrefix != "results" {
		t.Errorf("ResultPrefix = %q, want results", cfg.ResultPrefix)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("EXECUTION_STORE", "memory")
	t.Setenv("STORAGE_BACKEND", "minio")
	t.Setenv("VISION_RPS", "2.5")
	t.Setenv("ANALYSIS_MAX_CHARS", "1000")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := Load()

	if cfg.Store != "memory" {
		t.Errorf("Store = %q, want memory", cfg.Store)
	}
	if cfg.StorageBackend != "minio" {
		t.Errorf("StorageBackend = %q, want minio", cfg.StorageBackend)
	}
	if cfg.VisionRPS != 2.5 {
		t.Errorf("VisionRPS = %v, want 2.5", cfg.VisionRPS)
	}
	if cfg.AnalysisMaxChars != 1000 {
		t.Errorf("AnalysisMaxChars = %d, want 1000", cfg.AnalysisMaxChars)
	}
	if !cfg.MinioUseSSL {
		t.Error("MinioUseSSL = false, want true")
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("ANALYSIS_MAX_CHARS", "lots")

	cfg := Load()
	if cfg.AnalysisMaxChars != 5000 {
		t.Errorf("AnalysisMaxChars = %d, want fallback 5000", cfg.AnalysisMaxChars)
	}
}

func TestLoadPipelineDefault(t *testing.T) {
	pipeline, err := LoadPipeline("")
	if err != nil {
		t.Fatalf("LoadPipeline() error = %v", err)
	}
	want := []string{domain.StageMetadata, domain.StageTextExtract, domain.StageAnalysis, domain.StagePersistence}
	got := pipeline.StageNames()
	if len(got) != len(want) {
		t.Fatalf("stage names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stage names = %v, want %v", got, want)
		}
	}
}

func TestLoadPipelineFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	raw := `
stages:
  - name: metadata
    max_attempts: 2
    backoff_base: 100ms
    timeout: 5s
  - name: textextract
    max_attempts: 5
    backoff_base: 200ms
    backoff_cap: 2s
    timeout: 60s
  - name: analysis
    max_attempts: 3
    backoff_base: 100ms
    timeout: 30s
  - name: persistence
    max_attempts: 4
    backoff_base: 100ms
    timeout: 30s
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write pipeline file: %v", err)
	}

	pipeline, err := LoadPipeline(path)
	if err != nil {
		t.Fatalf("LoadPipeline() error = %v", err)
	}
	if pipeline.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", pipeline.Len())
	}

	stage, ok := pipeline.Stage(1)
	if !ok {
		t.Fatal("Stage(1) out of range")
	}
	if stage.Name != domain.StageTextExtract || stage.MaxAttempts != 5 {
		t.Fatalf("unexpected stage: %+v", stage)
	}
	if stage.BackoffCap != 2*time.Second {
		t.Fatalf("BackoffCap = %v, want 2s", stage.BackoffCap)
	}
}

func TestLoadPipelineRejectsInvalidSpec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	raw := `
stages:
  - name: metadata
    max_attempts: 0
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write pipeline file: %v", err)
	}

	if _, err := LoadPipeline(path); err == nil {
		t.Fatal("expected validation error for zero attempt budget")
	}
}

func TestLoadPipelineMissingFile(t *testing.T) {
	if _, err := LoadPipeline(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
