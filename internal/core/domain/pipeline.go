package domain

import (
	"fmt"
	"time"
)

// Stage names of the stock document pipeline.
const (
	StageMetadata    = "metadata"
	StageTextExtract = "textextract"
	StageAnalysis    = "analysis"
	StagePersistence = "persistence"
)

// StageSpec configures one named unit of work: its retry budget, backoff
// curve and per-attempt timeout.
type StageSpec struct {
	Name        string        `yaml:"name"`
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffCap  time.Duration `yaml:"backoff_cap"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Backoff returns the capped exponential delay before the given attempt
// (1-based) is retried.
func (s StageSpec) Backoff(attempt int) time.Duration {
	if s.BackoffBase <= 0 || attempt < 1 {
		return 0
	}
	wait := s.BackoffBase
	for i := 1; i < attempt; i++ {
		wait *= 2
		if s.BackoffCap > 0 && wait >= s.BackoffCap {
			return s.BackoffCap
		}
	}
	if s.BackoffCap > 0 && wait > s.BackoffCap {
		return s.BackoffCap
	}
	return wait
}

// PipelineDefinition is the immutable ordered stage sequence shared by all
// executions. Construct it through NewPipeline so the invariants hold.
type PipelineDefinition struct {
	stages []StageSpec
}

func NewPipeline(stages []StageSpec) (*PipelineDefinition, error) {
	if len(stages) == 0 {
		return nil, WrapError(ErrInvalidInput, "build pipeline", fmt.Errorf("no stages"))
	}
	seen := make(map[string]struct{}, len(stages))
	for i, spec := range stages {
		if spec.Name == "" {
			return nil, WrapError(ErrInvalidInput, "build pipeline", fmt.Errorf("stage %d has empty name", i))
		}
		if _, dup := seen[spec.Name]; dup {
			return nil, WrapError(ErrInvalidInput, "build pipeline", fmt.Errorf("duplicate stage name %q", spec.Name))
		}
		seen[spec.Name] = struct{}{}
		if spec.MaxAttempts < 1 {
			return nil, WrapError(ErrInvalidInput, "build pipeline", fmt.Errorf("stage %q: max_attempts must be >= 1", spec.Name))
		}
		if spec.BackoffBase < 0 {
			return nil, WrapError(ErrInvalidInput, "build pipeline", fmt.Errorf("stage %q: backoff_base must be >= 0", spec.Name))
		}
	}
	copied := make([]StageSpec, len(stages))
	copy(copied, stages)
	for i := range copied {
		if copied[i].BackoffCap <= 0 {
			copied[i].BackoffCap = copied[i].BackoffBase
		}
	}
	return &PipelineDefinition{stages: copied}, nil
}

func (p *PipelineDefinition) Len() int { return len(p.stages) }

func (p *PipelineDefinition) Stage(index int) (StageSpec, bool) {
	if index < 0 || index >= len(p.stages) {
		return StageSpec{}, false
	}
	return p.stages[index], true
}

func (p *PipelineDefinition) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// DefaultPipeline is the stock four-stage document pipeline. The pure
// metadata stage gets a single attempt; collaborator-backed stages get a
// retry budget.
func DefaultPipeline() *PipelineDefinition {
	pipeline, err := NewPipeline([]StageSpec{
		{Name: StageMetadata, MaxAttempts: 1, Timeout: 5 * time.Second},
		{Name: StageTextExtract, MaxAttempts: 3, BackoffBase: 500 * time.Millisecond, BackoffCap: 5 * time.Second, Timeout: 60 * time.Second},
		{Name: StageAnalysis, MaxAttempts: 3, BackoffBase: 500 * time.Millisecond, BackoffCap: 5 * time.Second, Timeout: 30 * time.Second},
		{Name: StagePersistence, MaxAttempts: 3, BackoffBase: 250 * time.Millisecond, BackoffCap: 2 * time.Second, Timeout: 30 * time.Second},
	})
	if err != nil {
		panic(err)
	}
	return pipeline
}
