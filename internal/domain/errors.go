package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRunCancelled is the failure cause of a run whose cancellation
	// token fired before or during a stage.
	ErrRunCancelled = errors.New("run cancelled")

	// ErrRunNotFound is returned when a run ID is unknown to the registry.
	ErrRunNotFound = errors.New("run not found")

	// ErrDuplicateResult is returned when two stages attempt to fill the
	// same context slot. Graph validation makes this unreachable for valid
	// definitions; the context still enforces it.
	ErrDuplicateResult = errors.New("stage result already recorded")
)

// ModelError is a failure of a model provider call. Transient errors
// (rate limit, timeout, 5xx-equivalent) are retried inside the call
// adapter; permanent errors propagate to the calling stage immediately.
type ModelError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *ModelError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("model error (%s) in %s: %v", kind, e.Op, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// NewTransientError wraps err as a retryable model failure.
func NewTransientError(op string, err error) *ModelError {
	return &ModelError{Op: op, Transient: true, Err: err}
}

// NewPermanentError wraps err as a non-retryable model failure.
func NewPermanentError(op string, err error) *ModelError {
	return &ModelError{Op: op, Transient: false, Err: err}
}

// IsTransient reports whether err is (or wraps) a transient ModelError.
func IsTransient(err error) bool {
	var me *ModelError
	return errors.As(err, &me) && me.Transient
}

// SchemaValidationError reports a model response that did not match the
// expected structured-output schema for the calling stage. The adapter
// treats it as transient exactly once (one repair retry) and permanent
// thereafter.
type SchemaValidationError struct {
	Stage string
	Raw   string
	Err   error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("schema validation failed for stage %s: %v", e.Stage, e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

// GraphDefinitionError reports an invalid graph definition. It is raised
// at construction time only; a validated graph never produces one at run
// time.
type GraphDefinitionError struct {
	Node string
	Msg  string
}

func (e *GraphDefinitionError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("invalid graph definition: %s", e.Msg)
	}
	return fmt.Sprintf("invalid graph definition at node %s: %s", e.Node, e.Msg)
}

// FailureReason classifies why a run ended in the failed state.
type FailureReason string

const (
	FailureCancelled FailureReason = "cancelled"
	FailureModel     FailureReason = "model_error"
	FailureSchema    FailureReason = "schema_invalid"
	FailureStage     FailureReason = "stage_error"
)

// ClassifyFailure maps an error to its failure reason.
func ClassifyFailure(err error) FailureReason {
	var (
		sve *SchemaValidationError
		me  *ModelError
	)
	switch {
	case errors.Is(err, ErrRunCancelled):
		return FailureCancelled
	case errors.As(err, &sve):
		return FailureSchema
	case errors.As(err, &me):
		return FailureModel
	default:
		return FailureStage
	}
}
