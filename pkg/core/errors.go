package core

import (
	"errors"
	"fmt"
)

// Predefined errors for the failure classes of an evaluation run.
//
// Every one of them is fatal: the evaluator never converts them into warnings.
var (
	// ErrInvalidConfig indicates that the models configuration is malformed.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnknownModelType indicates a model_type outside the recognized set.
	ErrUnknownModelType = errors.New("unknown type of model")

	// ErrBackendLoad indicates that a model backend could not be constructed.
	ErrBackendLoad = errors.New("backend load failed")

	// ErrExecution indicates that evaluating a task failed.
	ErrExecution = errors.New("task execution failed")

	// ErrEmbeddingFailed indicates that a backend returned no usable vectors.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// EvalError wraps errors with operation context.
//
// Example:
//
//	err := &EvalError{
//	    Op:  "NewBackend",
//	    Err: ErrUnknownModelType,
//	}
//	// Error() returns: "plmteb: NewBackend: unknown type of model"
type EvalError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
func (e *EvalError) Error() string {
	return fmt.Sprintf("plmteb: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error so errors.Is and errors.As work.
func (e *EvalError) Unwrap() error {
	return e.Err
}

// NewEvalError creates a new EvalError wrapping err.
//
// If err is nil, returns nil:
//
//	if err != nil {
//	    return NewEvalError("Run", err)
//	}
func NewEvalError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EvalError{
		Op:  op,
		Err: err,
	}
}
