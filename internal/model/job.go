package model

import (
	"strconv"
	"time"
)

// TaskSpec is the wire shape of a task as declared in a job submission
// or inside an AI-generated Plan, before it has been inserted into a
// graph and assigned a Task.
type TaskSpec struct {
	ID        string                 `yaml:"id,omitempty" json:"id,omitempty"`
	Service   string                 `yaml:"service" json:"service"`
	Command   string                 `yaml:"command" json:"command"`
	Input     map[string]interface{} `yaml:"input,omitempty" json:"input,omitempty"`
	DependsOn []string               `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
}

// JobSpec is the submission input for a job.
type JobSpec struct {
	Name           string     `yaml:"name" json:"name"`
	Tasks          []TaskSpec `yaml:"tasks" json:"tasks"`
	AbortOnFailure *bool      `yaml:"abortOnFailure,omitempty" json:"abortOnFailure,omitempty"`
	MaxTasks       int        `yaml:"maxTasks,omitempty" json:"maxTasks,omitempty"`
	MaxDepth       int        `yaml:"maxDepth,omitempty" json:"maxDepth,omitempty"`
	TimeoutMillis  int        `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Verbose        bool       `yaml:"verbose,omitempty" json:"verbose,omitempty"`
	AIPlanning     bool       `yaml:"aiPlanning,omitempty" json:"aiPlanning,omitempty"`
	Persist        bool       `yaml:"persist,omitempty" json:"persist,omitempty"`
}

// AbortOnFailureOrDefault returns the configured AbortOnFailure flag,
// defaulting to true when the submission left it unset.
func (j JobSpec) AbortOnFailureOrDefault() bool {
	if j.AbortOnFailure == nil {
		return true
	}
	return *j.AbortOnFailure
}

// MaxTasksOrDefault returns the configured task-count limit, defaulting to 1000.
func (j JobSpec) MaxTasksOrDefault() int {
	if j.MaxTasks <= 0 {
		return 1000
	}
	return j.MaxTasks
}

// MaxDepthOrDefault returns the configured depth limit, defaulting to 10.
func (j JobSpec) MaxDepthOrDefault() int {
	if j.MaxDepth <= 0 {
		return 10
	}
	return j.MaxDepth
}

// JobStatus is the aggregate outcome of a finished job.
type JobStatus string

const (
	JobSucceeded JobStatus = "Succeeded"
	JobFailed    JobStatus = "Failed"
)

// JobResult is the submission output for a completed job.
type JobResult struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name"`
	Status      JobStatus      `json:"status"`
	Tasks       []TaskSnapshot `json:"tasks"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt time.Time      `json:"completedAt"`
}

// Plan is an AI-generated document produced by the orchestrate handler.
type Plan struct {
	Tasks     []TaskSpec `json:"tasks"`
	Reasoning string     `json:"reasoning,omitempty"`
}

// ValidationReport is the output of the plan validator's structural,
// schema, identifier-normalization, and graph-shape passes.
type ValidationReport struct {
	IsValid        bool      `json:"isValid"`
	Errors         []string  `json:"errors"`
	Warnings       []string  `json:"warnings"`
	TasksValidated int       `json:"tasksValidated"`
	Timestamp      time.Time `json:"timestamp"`
}

// AddError records a validation error and flips IsValid false.
func (r *ValidationReport) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.IsValid = false
}

// AddWarning records a non-fatal validation warning.
func (r *ValidationReport) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// String renders the report as a human-readable multi-line summary,
// one error or warning per line.
func (r *ValidationReport) String() string {
	out := "validation: "
	if r.IsValid {
		out += "ok"
	} else {
		out += "failed"
	}
	out += " (" + strconv.Itoa(r.TasksValidated) + " tasks validated)"
	for _, e := range r.Errors {
		out += "\n  error: " + e
	}
	for _, w := range r.Warnings {
		out += "\n  warning: " + w
	}
	return out
}
