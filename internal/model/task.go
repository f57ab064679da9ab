// Package model defines the data types shared by the task graph, the
// handler registry, the plan validator, and the orchestrator: tasks,
// their statuses, child-task specs, plans, and job-level results.
package model

import "time"

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusPlanned   Status = "Planned"
	StatusApproved  Status = "Approved"
	StatusStarted   Status = "Started"
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
	StatusAborted   Status = "Aborted"
)

// Terminal reports whether the status is one a task never leaves.
// Planned is terminal for completion-counting purposes even though a
// later approval step may flip it back to Pending out of band.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusAborted, StatusPlanned:
		return true
	default:
		return false
	}
}

// precedence orders statuses for propagation: higher wins.
// Failed and Aborted are equal precedence (both outrank Planned);
// which of the two a dependent receives is decided by the caller,
// not by this ranking.
func (s Status) precedence() int {
	switch s {
	case StatusFailed, StatusAborted:
		return 2
	case StatusPlanned:
		return 1
	default:
		return 0
	}
}

// Outranks reports whether s takes priority over other when both are
// candidate statuses for the same Pending task during propagation.
func (s Status) Outranks(other Status) bool {
	return s.precedence() > other.precedence()
}

// Task is the atomic unit of work in a job's dependency graph.
type Task struct {
	ID         string
	Service    string
	Command    string
	Input      map[string]interface{}
	Output     map[string]interface{}
	Audit      map[string]interface{}
	ChildTasks []ChildTaskSpec

	Status Status

	StartedAt   *time.Time
	CompletedAt *time.Time

	DependsOn []string
	Depth     int
}

// ChildTaskSpec is a value-type record a handler returns to request a
// child task be spawned into the running job.
type ChildTaskSpec struct {
	ID        string                 `json:"id,omitempty"`
	Service   string                 `json:"service"`
	Command   string                 `json:"command"`
	Input     map[string]interface{} `json:"input,omitempty"`
	DependsOn []string               `json:"dependsOn,omitempty"`
}

// HandlerResult is what a handler function returns. A handler may
// populate Output with anything meaningful to its own domain; the
// scheduler never inspects Output's shape, only Audit and ChildTasks.
type HandlerResult struct {
	Output     map[string]interface{}
	Audit      map[string]interface{}
	ChildTasks []ChildTaskSpec
}

// TaskSnapshot is the reporting view of a Task returned to a caller:
// an immutable copy safe to hand outside the orchestrator's mutex.
type TaskSnapshot struct {
	ID          string                 `json:"id"`
	Service     string                 `json:"service"`
	Command     string                 `json:"command"`
	Status      Status                 `json:"status"`
	Input       map[string]interface{} `json:"input,omitempty"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Audit       map[string]interface{} `json:"audit,omitempty"`
	ChildTasks  []ChildTaskSpec        `json:"childTasks,omitempty"`
	StartedAt   *time.Time             `json:"startedAt,omitempty"`
	CompletedAt *time.Time             `json:"completedAt,omitempty"`
	DependsOn   []string               `json:"dependsOn,omitempty"`
	Depth       int                    `json:"depth"`
}

// Snapshot produces the reporting view of a task. Callers must hold
// whatever lock guards t while calling this, since Task is a live,
// mutable vertex owned by the graph.
func (t *Task) Snapshot() TaskSnapshot {
	return TaskSnapshot{
		ID:          t.ID,
		Service:     t.Service,
		Command:     t.Command,
		Status:      t.Status,
		Input:       t.Input,
		Output:      t.Output,
		Audit:       t.Audit,
		ChildTasks:  t.ChildTasks,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
		DependsOn:   append([]string(nil), t.DependsOn...),
		Depth:       t.Depth,
	}
}
