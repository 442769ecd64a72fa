package ports

import (
	"context"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// StageExecutor runs one named unit of work against a copy of the
// accumulated payload. A nil error is success; retryable failures carry
// domain.ErrTransient, fatal ones domain.ErrPermanent. Implementations must
// depend only on the input payload and their own collaborator, never on
// another stage's in-process state.
type StageExecutor interface {
	Execute(ctx context.Context, ref domain.DocumentRef, payload domain.Payload) (domain.Payload, error)
}

// ExecutionStatusView is the operational status surface for one document.
type ExecutionStatusView struct {
	ExecutionID  string                 `json:"execution_id"`
	Status       domain.ExecutionStatus `json:"status"`
	CurrentStage string                 `json:"current_stage"`
	StageIndex   int                    `json:"stage_index"`
	LastError    string                 `json:"last_error,omitempty"`
}

// PipelineOrchestrator is the inbound contract for driving executions.
type PipelineOrchestrator interface {
	Start(ctx context.Context, ref domain.DocumentRef) (string, error)
	Run(ctx context.Context, executionID string) error
	Replay(ctx context.Context, ref domain.DocumentRef, fromStage int, reason string) error
	GetExecutionStatus(ctx context.Context, ref domain.DocumentRef) (ExecutionStatusView, error)
}
