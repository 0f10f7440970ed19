package scheduler

import "fmt"

// EvaluationError reports the project whose evaluator failed. It is returned
// for the failing run and for every later call on the halted scheduler.
type EvaluationError struct {
	Project string
	Cause   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate project %q: %v", e.Project, e.Cause)
}

func (e *EvaluationError) Unwrap() error { return e.Cause }

// ReentrantEvaluationError is returned when a project that is already being
// evaluated is requested again, which means a runtime request loops back on
// itself.
type ReentrantEvaluationError struct {
	Project string
}

func (e *ReentrantEvaluationError) Error() string {
	return fmt.Sprintf("project %q requested while its evaluation is in progress", e.Project)
}
