// Package orchestrator runs a job's task graph to completion: it
// computes the executable set on every iteration (never a
// precomputed topological order, since handlers may spawn new
// children at runtime), fans execution out across goroutines bounded
// by a semaphore, and propagates failure and plan-mode status down
// through dependents via a cascade fixpoint.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rparedes/taskgraph/internal/graph"
	"github.com/rparedes/taskgraph/internal/model"
	"github.com/rparedes/taskgraph/internal/registry"
	"github.com/rparedes/taskgraph/internal/validate"
)

// Logger observes orchestrator lifecycle events. Every method may be
// called concurrently. A nil Logger disables observation.
type Logger interface {
	LogTaskStart(task model.TaskSnapshot)
	LogTaskComplete(task model.TaskSnapshot)
	LogCascade(taskID string, from, to model.Status)
	LogSpawn(parentID string, childIDs []string)
	LogDeadlock(stuckIDs []string)
}

// defaultConcurrency bounds how many tasks run at once within a
// single iteration when the job spec does not say otherwise.
const defaultConcurrency = 8

// Orchestrator runs one job's graph. A single mutex guards every
// mutation to the graph and to task state; handler execution itself
// always happens outside the mutex.
type Orchestrator struct {
	mu sync.Mutex

	id    string
	spec  model.JobSpec
	graph *graph.Graph

	registry  *registry.Registry
	validator *validate.Validator
	logger    Logger

	concurrency int
	taskCount   int
}

// New validates spec's initial task list and builds the job's graph.
// It returns an error if validation fails; the caller can render the
// returned report for diagnostics.
func New(spec model.JobSpec, reg *registry.Registry, logger Logger) (*Orchestrator, model.ValidationReport, error) {
	v := validate.New(reg)
	report, children := v.Validate("", spec.Tasks, validate.EmptyGraph)
	if !report.IsValid {
		return nil, report, fmt.Errorf("job %q: %s", spec.Name, report.String())
	}

	o := &Orchestrator{
		id:          uuid.NewString(),
		spec:        spec,
		graph:       graph.New(),
		registry:    reg,
		validator:   v,
		logger:      logger,
		concurrency: defaultConcurrency,
	}

	for _, c := range children {
		task := &model.Task{
			ID:        c.ID,
			Service:   c.Service,
			Command:   c.Command,
			Input:     c.Input,
			Status:    initialStatus(reg, c.Service, c.Command, spec.AIPlanning),
			DependsOn: c.DependsOn,
			Depth:     0,
		}
		if err := o.graph.AddNode(c.ID, task); err != nil {
			return nil, report, fmt.Errorf("job %q: %w", spec.Name, err)
		}
		o.taskCount++
	}
	for _, c := range children {
		for _, dep := range c.DependsOn {
			if err := o.graph.AddEdge(dep, c.ID); err != nil {
				return nil, report, fmt.Errorf("job %q: %w", spec.Name, err)
			}
		}
	}

	return o, report, nil
}

// SetConcurrency overrides the number of tasks run at once within a
// single iteration. Call before Run; n <= 0 is ignored.
func (o *Orchestrator) SetConcurrency(n int) {
	if n > 0 {
		o.concurrency = n
	}
}

// initialStatus decides whether a freshly inserted task starts out
// Pending (it will run) or Planned (aiPlanning is on and its handler
// has not opted into running during plan mode).
func initialStatus(reg *registry.Registry, service, command string, aiPlanning bool) model.Status {
	if !aiPlanning {
		return model.StatusPending
	}
	def, ok := reg.GetDefinition(service, command)
	if ok && def.AllowInPlanMode {
		return model.StatusPending
	}
	return model.StatusPlanned
}

// Run drives the job to completion: every task reaches a terminal
// status, the graph deadlocks, or ctx/the job's own timeout expires.
func (o *Orchestrator) Run(ctx context.Context) (model.JobResult, error) {
	startedAt := time.Now()

	if o.spec.TimeoutMillis > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(o.spec.TimeoutMillis)*time.Millisecond)
		defer cancel()
	}

	agg := &JobError{}

loop:
	for {
		select {
		case <-ctx.Done():
			return o.buildResult(startedAt), &TimeoutError{Elapsed: time.Since(startedAt)}
		default:
		}

		o.mu.Lock()
		o.cascadeLocked()
		completed := o.completedSetLocked()
		o.stampPlannedLocked()
		ready := o.readyLocked(completed)
		done := o.isDoneLocked()
		o.mu.Unlock()

		if done {
			break loop
		}

		if len(ready) == 0 {
			stuck := o.stuckTaskIDs()
			if o.logger != nil {
				o.logger.LogDeadlock(stuck)
			}
			return o.buildResult(startedAt), &DeadlockError{StuckTaskIDs: stuck}
		}

		if batchErr := o.executeBatch(ctx, ready); batchErr != nil {
			agg.TaskErrors = append(agg.TaskErrors, batchErr.TaskErrors...)
			agg.TotalTasks += batchErr.TotalTasks

			if o.spec.AbortOnFailureOrDefault() {
				o.mu.Lock()
				o.abortAllPendingLocked()
				o.mu.Unlock()
				break loop
			}
		}
	}

	result := o.buildResult(startedAt)
	if len(agg.TaskErrors) == 0 {
		return result, nil
	}
	return result, agg
}

// completedSetLocked returns the ids of every Succeeded task: the
// only status that unblocks dependents for execution. Callers must
// hold o.mu.
func (o *Orchestrator) completedSetLocked() map[string]struct{} {
	completed := make(map[string]struct{})
	for _, id := range o.graph.Ids() {
		if t := o.graph.GetNode(id); t.Status == model.StatusSucceeded {
			completed[id] = struct{}{}
		}
	}
	return completed
}

// readyLocked returns the tasks eligible to execute this iteration:
// status Pending with every predecessor Succeeded. Planned tasks are
// also surfaced by the graph's ExecutableTasks but are never run —
// they are plan-mode material, filtered out here and handled instead
// by stampPlannedLocked. Callers must hold o.mu.
func (o *Orchestrator) readyLocked(completed map[string]struct{}) []*model.Task {
	var ready []*model.Task
	for _, t := range o.graph.ExecutableTasks(completed) {
		if t.Status == model.StatusPending {
			ready = append(ready, t)
		}
	}
	return ready
}

// stampPlannedLocked records startedAt = completedAt = now for every
// Planned task whose predecessors have all reached a terminal status
// and which has not yet been stamped: a Planned task is skipped rather
// than run, but still needs wall-clock timestamps so it sorts
// correctly and doesn't report as never-started. Tasks cascaded into
// Planned are stamped by cascadeLocked itself; this covers tasks
// inserted with Planned as their initial status (root submissions and
// plan-mode children). Callers must hold o.mu.
func (o *Orchestrator) stampPlannedLocked() {
	now := time.Now()
	for _, id := range o.graph.Ids() {
		t := o.graph.GetNode(id)
		if t.Status != model.StatusPlanned || t.StartedAt != nil {
			continue
		}
		resolved := true
		for _, predID := range o.graph.Predecessors(id) {
			if !o.graph.GetNode(predID).Status.Terminal() {
				resolved = false
				break
			}
		}
		if resolved {
			t.StartedAt = &now
			t.CompletedAt = &now
		}
	}
}

// isDoneLocked reports whether every task has reached a terminal
// status. Callers must hold o.mu.
func (o *Orchestrator) isDoneLocked() bool {
	for _, id := range o.graph.Ids() {
		if !o.graph.GetNode(id).Status.Terminal() {
			return false
		}
	}
	return true
}

// stuckTaskIDs returns every Pending task id for which no sequence of
// future executions can ever make it ready: the fixpoint cascade
// already ran this iteration, so any Pending task that ExecutableTasks
// does not surface has an unresolvable predecessor.
func (o *Orchestrator) stuckTaskIDs() []string {
	var stuck []string
	for _, id := range o.graph.Ids() {
		t := o.graph.GetNode(id)
		if t.Status == model.StatusPending {
			stuck = append(stuck, id)
		}
	}
	sort.Strings(stuck)
	return stuck
}

// abortAllPendingLocked marks every remaining Pending task Aborted.
// It is used when a task fails and the job is configured to stop on
// first failure: every task that has not yet started, related or not,
// is abandoned rather than left Pending forever. Callers must hold
// o.mu.
func (o *Orchestrator) abortAllPendingLocked() {
	now := time.Now()
	for _, id := range o.graph.Ids() {
		t := o.graph.GetNode(id)
		if t.Status == model.StatusPending {
			if o.logger != nil {
				o.logger.LogCascade(id, t.Status, model.StatusAborted)
			}
			t.Status = model.StatusAborted
			t.CompletedAt = &now
		}
	}
}

// cascadeLocked propagates Failed/Aborted/Planned status down through
// dependents by fixpoint iteration: a Pending task becomes Aborted if
// any predecessor is Failed or Aborted, otherwise Planned if any
// predecessor is Planned, repeating until no task changes in a full
// pass. Callers must hold o.mu.
func (o *Orchestrator) cascadeLocked() {
	for {
		changed := false
		for _, id := range o.graph.Ids() {
			t := o.graph.GetNode(id)
			if t.Status != model.StatusPending {
				continue
			}
			var candidate model.Status
			for _, predID := range o.graph.Predecessors(id) {
				pred := o.graph.GetNode(predID)
				switch pred.Status {
				case model.StatusFailed, model.StatusAborted:
					if candidate == "" || model.StatusAborted.Outranks(candidate) {
						candidate = model.StatusAborted
					}
				case model.StatusPlanned:
					if candidate == "" {
						candidate = model.StatusPlanned
					}
				}
			}
			if candidate != "" {
				if o.logger != nil {
					o.logger.LogCascade(id, t.Status, candidate)
				}
				t.Status = candidate
				now := time.Now()
				t.CompletedAt = &now
				if candidate == model.StatusPlanned {
					t.StartedAt = &now
				}
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// executeBatch runs every task in ready concurrently, bounded by
// o.concurrency, and applies each result under the mutex once it
// completes.
func (o *Orchestrator) executeBatch(ctx context.Context, ready []*model.Task) *JobError {
	limit := o.concurrency
	if limit <= 0 || limit > len(ready) {
		limit = len(ready)
	}
	if limit == 0 {
		limit = 1
	}

	type outcome struct {
		taskID string
		result model.HandlerResult
		err    error
	}

	sem := make(chan struct{}, limit)
	results := make(chan outcome, len(ready))
	var wg sync.WaitGroup

	for _, t := range ready {
		o.mu.Lock()
		now := time.Now()
		t.Status = model.StatusStarted
		t.StartedAt = &now
		snapshot := t.Snapshot()
		o.mu.Unlock()
		if o.logger != nil {
			o.logger.LogTaskStart(snapshot)
		}

		handler, ok := o.registry.Get(t.Service, t.Command)
		if !ok {
			results <- outcome{taskID: t.ID, err: fmt.Errorf("no handler registered for %s/%s", t.Service, t.Command)}
			continue
		}

		select {
		case <-ctx.Done():
			results <- outcome{taskID: t.ID, err: ctx.Err()}
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(t *model.Task, handler registry.Handler) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := handler(ctx, *t, o.jobContext())
			results <- outcome{taskID: t.ID, result: res, err: err}
		}(t, handler)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var jobErr *JobError
	for out := range results {
		o.mu.Lock()
		t := o.graph.GetNode(out.taskID)
		now := time.Now()
		t.CompletedAt = &now

		if out.err != nil {
			t.Status = model.StatusFailed
			t.Output = map[string]interface{}{"error": out.err.Error()}
			if jobErr == nil {
				jobErr = &JobError{}
			}
			jobErr.TaskErrors = append(jobErr.TaskErrors, NewTaskError(out.taskID, "execution failed", out.err))
		} else {
			t.Status = model.StatusSucceeded
			t.Output = out.result.Output
			t.Audit = out.result.Audit
			t.ChildTasks = out.result.ChildTasks
			if len(out.result.ChildTasks) > 0 {
				if err := o.spawnChildrenLocked(t, out.result.ChildTasks); err != nil {
					t.Status = model.StatusFailed
					if jobErr == nil {
						jobErr = &JobError{}
					}
					jobErr.TaskErrors = append(jobErr.TaskErrors, NewTaskError(out.taskID, "spawn failed", err))
				}
			}
		}
		snapshot := t.Snapshot()
		o.mu.Unlock()
		if o.logger != nil {
			o.logger.LogTaskComplete(snapshot)
		}
	}

	if jobErr != nil {
		jobErr.TotalTasks = len(ready)
		return jobErr
	}
	return nil
}

// spawnChildrenLocked validates and inserts specs as children of
// parent, enforcing maxTasks/maxDepth, then extends every existing
// dependent of parent to also depend on the new children (fan-out
// propagation): a task that was waiting on parent alone must now also
// wait on whatever parent decided, at runtime, it actually needed
// done first. Callers must hold o.mu.
func (o *Orchestrator) spawnChildrenLocked(parent *model.Task, specs []model.ChildTaskSpec) error {
	maxTasks := o.spec.MaxTasksOrDefault()
	if o.taskCount+len(specs) > maxTasks {
		return &LimitError{Limit: "maxTasks", Value: maxTasks}
	}
	maxDepth := o.spec.MaxDepthOrDefault()
	if parent.Depth+1 > maxDepth {
		return &LimitError{Limit: "maxDepth", Value: maxDepth}
	}

	rawSpecs := make([]model.TaskSpec, len(specs))
	for i, c := range specs {
		rawSpecs[i] = model.TaskSpec{ID: c.ID, Service: c.Service, Command: c.Command, Input: c.Input, DependsOn: c.DependsOn}
	}

	report, children := o.validator.Validate(parent.ID, rawSpecs, o.graph)
	if !report.IsValid {
		return fmt.Errorf("spawn from %s: %s", parent.ID, report.String())
	}

	// Find every existing task that currently depends on parent, so it
	// can be extended to depend on the new children too.
	var parentDependents []string
	for _, id := range o.graph.Ids() {
		t := o.graph.GetNode(id)
		for _, dep := range t.DependsOn {
			if dep == parent.ID {
				parentDependents = append(parentDependents, id)
				break
			}
		}
	}

	childIDs := make([]string, 0, len(children))
	for _, c := range children {
		task := &model.Task{
			ID:        c.ID,
			Service:   c.Service,
			Command:   c.Command,
			Input:     c.Input,
			Status:    initialStatus(o.registry, c.Service, c.Command, o.spec.AIPlanning),
			DependsOn: append([]string{parent.ID}, c.DependsOn...),
			Depth:     parent.Depth + 1,
		}
		if err := o.graph.AddNode(c.ID, task); err != nil {
			return err
		}
		childIDs = append(childIDs, c.ID)
		o.taskCount++
	}
	for _, c := range children {
		if err := o.graph.AddEdge(parent.ID, c.ID); err != nil {
			return err
		}
		for _, dep := range c.DependsOn {
			if dep == parent.ID {
				continue
			}
			if err := o.graph.AddEdge(dep, c.ID); err != nil {
				return err
			}
		}
	}

	for _, depID := range parentDependents {
		dependent := o.graph.GetNode(depID)
		for _, childID := range childIDs {
			if err := o.graph.AddEdge(childID, depID); err != nil {
				return err
			}
			dependent.DependsOn = append(dependent.DependsOn, childID)
		}
	}

	if o.logger != nil && len(childIDs) > 0 {
		o.logger.LogSpawn(parent.ID, childIDs)
	}

	return nil
}

// buildResult snapshots every task and aggregates the job's outcome.
// Tasks are ordered by StartedAt ascending; tasks that never started
// (skipped by cascade before they ever ran) sort last.
func (o *Orchestrator) buildResult(startedAt time.Time) model.JobResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	snapshots := make([]model.TaskSnapshot, 0, len(o.graph.Ids()))
	status := model.JobSucceeded
	for _, id := range o.graph.Ids() {
		t := o.graph.GetNode(id)
		snapshots = append(snapshots, t.Snapshot())
		if t.Status == model.StatusFailed || t.Status == model.StatusAborted {
			status = model.JobFailed
		}
	}

	sort.Slice(snapshots, func(i, j int) bool {
		a, b := snapshots[i].StartedAt, snapshots[j].StartedAt
		switch {
		case a == nil && b == nil:
			return snapshots[i].ID < snapshots[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})

	return model.JobResult{
		ID:          o.id,
		Name:        o.spec.Name,
		Status:      status,
		Tasks:       snapshots,
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
	}
}
