package domain

import (
	"errors"
	"fmt"
)

var (
	ErrExecutionNotFound = errors.New("execution not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("version conflict")
	ErrTransient         = errors.New("transient failure")
	ErrPermanent         = errors.New("permanent failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
