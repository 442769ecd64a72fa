package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type pipelineFile struct {
	Stages []stageEntry `yaml:"stages"`
}

type stageEntry struct {
	Name        string        `yaml:"name"`
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffCap  time.Duration `yaml:"backoff_cap"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LoadPipeline builds the pipeline definition from a YAML file, or the stock
// four-stage pipeline when path is empty. Attempt budgets and backoff
// constants are operator-tunable, not fixed.
func LoadPipeline(path string) (*domain.PipelineDefinition, error) {
	if path == "" {
		return domain.DefaultPipeline(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline config: %w", err)
	}

	var file pipelineFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse pipeline config: %w", err)
	}

	specs := make([]domain.StageSpec, len(file.Stages))
	for i, entry := range file.Stages {
		specs[i] = domain.StageSpec{
			Name:        entry.Name,
			MaxAttempts: entry.MaxAttempts,
			BackoffBase: entry.BackoffBase,
			BackoffCap:  entry.BackoffCap,
			Timeout:     entry.Timeout,
		}
	}

	pipeline, err := domain.NewPipeline(specs)
	if err != nil {
		return nil, fmt.Errorf("validate pipeline config: %w", err)
	}
	return pipeline, nil
}
