package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DocumentRef is the immutable identity of a document in object storage.
// It is the idempotency key for executions: duplicate creation events for
// the same object map to the same execution.
type DocumentRef struct {
	Container string `json:"container"`
	Key       string `json:"key"`
}

func (r DocumentRef) String() string {
	return r.Container + "/" + r.Key
}

func (r DocumentRef) Validate() error {
	if strings.TrimSpace(r.Container) == "" {
		return WrapError(ErrInvalidInput, "validate document ref", fmt.Errorf("empty container"))
	}
	if strings.TrimSpace(r.Key) == "" {
		return WrapError(ErrInvalidInput, "validate document ref", fmt.Errorf("empty key"))
	}
	return nil
}

// nsExecution is the fixed UUIDv5 namespace for execution IDs.
var nsExecution = uuid.MustParse("79d7a3c1-44f0-4c3f-9f3a-6a2f0b6f8f21")

// ExecutionIDFor derives the execution ID deterministically from the document
// reference, so repeated trigger events coalesce onto one execution instead of
// spawning a parallel one.
func ExecutionIDFor(ref DocumentRef) string {
	return uuid.NewSHA1(nsExecution, []byte(ref.String())).String()
}
