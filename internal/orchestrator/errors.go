package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TaskError reports a single task's execution failure, with enough
// context to trace it back to its place in the job.
type TaskError struct {
	TaskID    string
	Message   string
	Err       error
	Timestamp time.Time
}

// NewTaskError creates a TaskError stamped with the current time.
func NewTaskError(taskID, msg string, err error) *TaskError {
	return &TaskError{TaskID: taskID, Message: msg, Err: err, Timestamp: time.Now()}
}

func (e *TaskError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("task %s: %s", e.TaskID, e.Message))
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

func (e *TaskError) Unwrap() error { return e.Err }

// JobError aggregates every task failure that contributed to a job's
// overall failure.
type JobError struct {
	TaskErrors []*TaskError
	TotalTasks int
}

func (e *JobError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("job failed: %d/%d tasks failed", len(e.TaskErrors), e.TotalTasks))
	for _, te := range e.TaskErrors {
		sb.WriteString(fmt.Sprintf("\n  - %s", te.Error()))
	}
	return sb.String()
}

func (e *JobError) Unwrap() []error {
	errs := make([]error, len(e.TaskErrors))
	for i, te := range e.TaskErrors {
		errs[i] = te
	}
	return errs
}

// DeadlockError reports that the orchestrator loop reached a fixpoint
// with pending tasks remaining, none of which are executable: a
// dependency cycle slipped past submission-time validation, or
// dependsOn names a task that can never complete.
type DeadlockError struct {
	StuckTaskIDs []string
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("deadlock: %d task(s) can never become executable: %v", len(e.StuckTaskIDs), e.StuckTaskIDs)
}

// TimeoutError reports that a job's overall deadline elapsed with
// tasks still outstanding.
type TimeoutError struct {
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job timed out after %v", e.Elapsed)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// LimitError reports that a job exceeded its configured maxTasks or
// maxDepth ceiling while spawning children.
type LimitError struct {
	Limit string // "maxTasks" or "maxDepth"
	Value int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s limit of %d exceeded", e.Limit, e.Value)
}

// IsDeadlock reports whether err is or wraps a DeadlockError.
func IsDeadlock(err error) bool {
	var de *DeadlockError
	return errors.As(err, &de)
}

// IsTimeout reports whether err is or wraps a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te) || errors.Is(err, context.DeadlineExceeded)
}
