package domain

import "time"

type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusSucceeded ExecutionStatus = "succeeded"
	StatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status admits no further stage transitions.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ReplayEvent is an audit entry appended when a terminal execution is
// manually replayed. Terminal records are otherwise immutable.
type ReplayEvent struct {
	At        time.Time `json:"at"`
	FromStage int       `json:"from_stage"`
	Reason    string    `json:"reason,omitempty"`
}

// ExecutionRecord is the persisted state of one pipeline run for one
// document. CurrentStageIndex only moves forward except through Replay.
// Version is the optimistic concurrency token: Save succeeds only against
// the version it loaded, which keeps a single writer per execution.
type ExecutionRecord struct {
	ID                string          `json:"id"`
	Ref               DocumentRef     `json:"ref"`
	Status            ExecutionStatus `json:"status"`
	CurrentStageIndex int             `json:"current_stage_index"`
	Payload           Payload         `json:"payload"`
	Attempt           int             `json:"attempt"`
	LastError         string          `json:"last_error,omitempty"`
	Audit             []ReplayEvent   `json:"audit,omitempty"`
	Version           int64           `json:"version"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NewExecution creates the pending record for a first-time trigger.
func NewExecution(ref DocumentRef, now time.Time) *ExecutionRecord {
	return &ExecutionRecord{
		ID:        ExecutionIDFor(ref),
		Ref:       ref,
		Status:    StatusPending,
		Payload:   Payload{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
