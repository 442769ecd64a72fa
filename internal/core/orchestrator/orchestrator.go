package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

// Registry maps stage names to their executors. Pipeline order selects which
// executor runs next; the registry only resolves names.
type Registry map[string]ports.StageExecutor

// StageObserver receives per-stage outcomes for metrics. A nil observer is
// allowed.
type StageObserver interface {
	ObserveStage(stage, outcome string, duration time.Duration)
	ObserveRetry(stage string)
}

// Orchestrator drives executions through the pipeline definition stage by
// stage, checkpointing the record after every transition. Ownership of an
// execution is the store's versioned Save: the first conflicting write loses
// and abandons the run.
type Orchestrator struct {
	store    ports.ExecutionStore
	pipeline *domain.PipelineDefinition
	registry Registry
	logger   *slog.Logger
	observer StageObserver

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(
	store ports.ExecutionStore,
	pipeline *domain.PipelineDefinition,
	registry Registry,
	logger *slog.Logger,
	observer StageObserver,
) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, name := range pipeline.StageNames() {
		if _, ok := registry[name]; !ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, "build orchestrator", fmt.Errorf("no executor registered for stage %q", name))
		}
	}
	return &Orchestrator{
		store:    store,
		pipeline: pipeline,
		registry: registry,
		logger:   logger,
		observer: observer,
		now:      time.Now,
		sleep:    sleepContext,
	}, nil
}

// Start computes the execution ID for the document and creates a pending
// record if none exists. Duplicate triggers and already-completed documents
// both return the existing ID unchanged.
func (o *Orchestrator) Start(ctx context.Context, ref domain.DocumentRef) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}

	executionID := domain.ExecutionIDFor(ref)
	_, err := o.store.Load(ctx, executionID)
	if err == nil {
		return executionID, nil
	}
	if !domain.IsKind(err, domain.ErrExecutionNotFound) {
		return "", fmt.Errorf("load execution %s: %w", executionID, err)
	}

	record := domain.NewExecution(ref, o.now())
	if err := o.store.Save(ctx, record); err != nil {
		// Lost the create race to a duplicate trigger: same deterministic ID.
		if domain.IsKind(err, domain.ErrConflict) {
			return executionID, nil
		}
		return "", fmt.Errorf("create execution %s: %w", executionID, err)
	}

	o.logger.Info("execution_created", "execution_id", executionID, "container", ref.Container, "key", ref.Key)
	return executionID, nil
}

// Run is the state-machine loop. It claims the record, walks stages from the
// last checkpoint, applies the per-stage retry budget with capped exponential
// backoff, and persists progress after every stage. A crash mid-pipeline
// resumes at CurrentStageIndex and never re-runs completed stages.
func (o *Orchestrator) Run(ctx context.Context, executionID string) error {
	record, err := o.store.Load(ctx, executionID)
	if err != nil {
		return fmt.Errorf("load execution %s: %w", executionID, err)
	}
	if record.Status.Terminal() {
		o.logger.Info("execution_already_terminal", "execution_id", executionID, "status", record.Status)
		return nil
	}

	// Claim. A record left Running by a crashed worker is resumable: the
	// versioned Save below only rejects a writer racing us right now.
	record.Status = domain.StatusRunning
	if err := o.checkpoint(ctx, record); err != nil {
		return err
	}

	for record.CurrentStageIndex < o.pipeline.Len() {
		spec, _ := o.pipeline.Stage(record.CurrentStageIndex)
		if err := o.runStage(ctx, record, spec); err != nil {
			return err
		}
	}

	record.Status = domain.StatusSucceeded
	record.Attempt = 0
	if err := o.checkpoint(ctx, record); err != nil {
		return err
	}
	o.logger.Info("execution_succeeded", "execution_id", record.ID, "stages", o.pipeline.Len())
	return nil
}

// runStage drives one stage to success, exhaustion, or fatal failure.
// record.Attempt persists between attempts so the retry budget survives a
// crash mid-backoff.
func (o *Orchestrator) runStage(ctx context.Context, record *domain.ExecutionRecord, spec domain.StageSpec) error {
	executor := o.registry[spec.Name]

	for attempt := record.Attempt + 1; attempt <= spec.MaxAttempts; attempt++ {
		updated, duration, execErr := o.invoke(ctx, executor, spec, record)
		if execErr == nil {
			o.observeStage(spec.Name, "success", duration)
			record.Payload = record.Payload.MergeAdditive(updated)
			record.CurrentStageIndex++
			record.Attempt = 0
			if err := o.checkpoint(ctx, record); err != nil {
				return err
			}
			o.logger.Info("stage_succeeded", "execution_id", record.ID, "stage", spec.Name, "attempt", attempt)
			return nil
		}

		if ctx.Err() != nil {
			// Cancelled between checkpoints: leave the record where it is.
			o.observeStage(spec.Name, "cancelled", duration)
			return ctx.Err()
		}

		if domain.IsKind(execErr, domain.ErrTransient) && attempt < spec.MaxAttempts {
			o.observeStage(spec.Name, "retryable", duration)
			record.Attempt = attempt
			if err := o.checkpoint(ctx, record); err != nil {
				return err
			}
			if o.observer != nil {
				o.observer.ObserveRetry(spec.Name)
			}
			wait := spec.Backoff(attempt)
			o.logger.Warn("stage_retry",
				"execution_id", record.ID,
				"stage", spec.Name,
				"attempt", attempt,
				"max_attempts", spec.MaxAttempts,
				"backoff_ms", float64(wait.Microseconds())/1000.0,
				"error", execErr,
			)
			if err := o.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		outcome := "fatal"
		if domain.IsKind(execErr, domain.ErrTransient) {
			outcome = "exhausted"
		}
		o.observeStage(spec.Name, outcome, duration)
		return o.fail(ctx, record, spec.Name, execErr)
	}

	// Attempt budget already spent before this Run (crash after the last
	// checkpointed attempt).
	return o.fail(ctx, record, spec.Name, domain.WrapError(domain.ErrTransient, "run stage "+spec.Name, fmt.Errorf("attempt budget exhausted")))
}

func (o *Orchestrator) invoke(ctx context.Context, executor ports.StageExecutor, spec domain.StageSpec, record *domain.ExecutionRecord) (domain.Payload, time.Duration, error) {
	stageCtx := ctx
	cancel := func() {}
	if spec.Timeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
	}
	defer cancel()

	start := o.now()
	updated, err := executor.Execute(stageCtx, record.Ref, record.Payload.Clone())
	duration := o.now().Sub(start)

	// The stage's own deadline expiring is a transient collaborator failure;
	// the parent context being cancelled is handled by the caller.
	if err != nil && ctx.Err() == nil && stageCtx.Err() != nil {
		err = domain.WrapError(domain.ErrTransient, "stage "+spec.Name+" timeout", err)
	}
	return updated, duration, err
}

// fail moves the record to its terminal failed state. Prior stages' payload
// stays intact in the record for diagnostics.
func (o *Orchestrator) fail(ctx context.Context, record *domain.ExecutionRecord, stage string, execErr error) error {
	record.Status = domain.StatusFailed
	record.LastError = execErr.Error()
	if err := o.checkpoint(ctx, record); err != nil {
		return fmt.Errorf("%w; persist failed status: %w", execErr, err)
	}
	o.logger.Error("execution_failed",
		"execution_id", record.ID,
		"stage", stage,
		"stage_index", record.CurrentStageIndex,
		"error", execErr,
	)
	return fmt.Errorf("stage %s: %w", stage, execErr)
}

func (o *Orchestrator) checkpoint(ctx context.Context, record *domain.ExecutionRecord) error {
	record.UpdatedAt = o.now()
	if err := o.store.Save(ctx, record); err != nil {
		return fmt.Errorf("checkpoint execution %s at stage %d: %w", record.ID, record.CurrentStageIndex, err)
	}
	return nil
}

func (o *Orchestrator) observeStage(stage, outcome string, duration time.Duration) {
	if o.observer != nil {
		o.observer.ObserveStage(stage, outcome, duration)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
