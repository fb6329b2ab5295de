package service

import (
	"errors"
	"fmt"

	"content-batch/internal/models"
)

var (
	ErrNoJob        = errors.New("no job")
	ErrItemNotFound = errors.New("item not found")
)

// ValidationError is returned when the caller supplied invalid arguments
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidStateError is returned when the job state forbids the requested operation
type InvalidStateError struct {
	Op     string
	Status models.JobStatus
	Reason string
	Err    error
}

func (e *InvalidStateError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("cannot %s: %v", e.Op, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("cannot %s: %s", e.Op, e.Reason)
	default:
		return fmt.Sprintf("cannot %s: job is %s", e.Op, e.Status)
	}
}

func (e *InvalidStateError) Unwrap() error {
	return e.Err
}
