package orchestrator

import (
	"context"
	"fmt"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

// GetExecutionStatus is the operational visibility surface: terminal status,
// current stage and last error for a document.
func (o *Orchestrator) GetExecutionStatus(ctx context.Context, ref domain.DocumentRef) (ports.ExecutionStatusView, error) {
	if err := ref.Validate(); err != nil {
		return ports.ExecutionStatusView{}, err
	}

	record, err := o.store.Load(ctx, domain.ExecutionIDFor(ref))
	if err != nil {
		return ports.ExecutionStatusView{}, err
	}

	view := ports.ExecutionStatusView{
		ExecutionID: record.ID,
		Status:      record.Status,
		StageIndex:  record.CurrentStageIndex,
		LastError:   record.LastError,
	}
	if spec, ok := o.pipeline.Stage(record.CurrentStageIndex); ok {
		view.CurrentStage = spec.Name
	}
	return view, nil
}

// Replay is the explicit retry-from-stage operation, the only way a terminal
// record changes. It appends an audit event and returns the execution to
// Pending at fromStage; payload keys from replayed stages are overwritten
// additively on the next run.
func (o *Orchestrator) Replay(ctx context.Context, ref domain.DocumentRef, fromStage int, reason string) error {
	if err := ref.Validate(); err != nil {
		return err
	}

	record, err := o.store.Load(ctx, domain.ExecutionIDFor(ref))
	if err != nil {
		return err
	}
	if !record.Status.Terminal() {
		return domain.WrapError(domain.ErrConflict, "replay execution", fmt.Errorf("execution %s is %s, not terminal", record.ID, record.Status))
	}
	if fromStage < 0 || fromStage >= o.pipeline.Len() || fromStage > record.CurrentStageIndex {
		return domain.WrapError(domain.ErrInvalidInput, "replay execution", fmt.Errorf("from_stage %d out of range", fromStage))
	}

	record.Audit = append(record.Audit, domain.ReplayEvent{
		At:        o.now(),
		FromStage: fromStage,
		Reason:    reason,
	})
	record.CurrentStageIndex = fromStage
	record.Attempt = 0
	record.LastError = ""
	record.Status = domain.StatusPending

	if err := o.checkpoint(ctx, record); err != nil {
		return err
	}
	o.logger.Info("execution_replayed", "execution_id", record.ID, "from_stage", fromStage, "reason", reason)
	return nil
}
